// Copyright 2024 The Latticegate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package socks5wire

import (
	"io"
	"strconv"

	"github.com/things-go/go-socks5/statute"
)

// ReplyCode is the REP field of a SOCKS5 reply, as enumerated in
// https://datatracker.ietf.org/doc/html/rfc1928#section-6.
type ReplyCode byte

// Reply codes used by the relay. Aliased onto statute's constants.
const (
	ReplySucceeded               = ReplyCode(statute.RepSuccess)
	ReplyGeneralFailure          = ReplyCode(statute.RepServerFailure)
	ReplyNetworkUnreachable      = ReplyCode(statute.RepNetworkUnreachable)
	ReplyHostUnreachable         = ReplyCode(statute.RepHostUnreachable)
	ReplyConnectionRefused       = ReplyCode(statute.RepConnectionRefused)
	ReplyCommandNotSupported     = ReplyCode(statute.RepCommandNotSupported)
	ReplyAddressTypeNotSupported = ReplyCode(statute.RepAddrTypeNotSupported)
)

var _ error = ReplyCode(0)

func (c ReplyCode) Error() string {
	switch c {
	case ReplySucceeded:
		return "succeeded"
	case ReplyGeneralFailure:
		return "general SOCKS server failure"
	case ReplyNetworkUnreachable:
		return "network unreachable"
	case ReplyHostUnreachable:
		return "host unreachable"
	case ReplyConnectionRefused:
		return "connection refused"
	case ReplyCommandNotSupported:
		return "command not supported"
	case ReplyAddressTypeNotSupported:
		return "address type not supported"
	default:
		return "SOCKS5 reply code " + strconv.Itoa(int(c))
	}
}

// AppendReply appends a full SOCKS5 reply (VER, REP, RSV, ATYP, BND.ADDR,
// BND.PORT) to b, using bound for the bound address (the request's own
// destination address when no genuine bound address is available yet, per
// the relay's pre-dial SUCCEEDED behavior).
func AppendReply(b []byte, code ReplyCode, bound Address) ([]byte, error) {
	b = append(b, statute.VersionSocks5, byte(code), 0x00)
	return AppendAddress(b, bound)
}

// ReadReply reads a full SOCKS5 reply (VER, REP, RSV, ATYP, BND.ADDR,
// BND.PORT) from r, as sent by an upstream SOCKS5 proxy in response to a
// CONNECT request. A non-SUCCEEDED code is returned as the error, with
// bound still populated from the bytes on the wire.
func ReadReply(r io.Reader) (bound Address, err error) {
	var header [3]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Address{}, err
	}
	if header[0] != statute.VersionSocks5 {
		return Address{}, ErrBadVersion
	}
	bound, err = ReadAddress(r)
	if err != nil {
		return Address{}, err
	}
	if code := ReplyCode(header[1]); code != ReplySucceeded {
		return bound, code
	}
	return bound, nil
}
