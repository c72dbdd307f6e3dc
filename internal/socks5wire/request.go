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

	"github.com/things-go/go-socks5/statute"
)

// Command is the CMD field of a SOCKS5 request.
type Command = byte

// Commands defined by RFC 1928 section 4. The relay only implements
// CmdConnect; BIND and UDP ASSOCIATE are out of scope.
const (
	CmdConnect   Command = statute.CommandConnect
	CmdBind      Command = statute.CommandBind
	CmdAssociate Command = statute.CommandAssociate
)

// Request is a parsed SOCKS5 client request (VER, CMD, RSV, DST.ADDR,
// DST.PORT).
type Request struct {
	Command Command
	Dest    Address
}

// ReadRequest reads a SOCKS5 request header and destination address. It
// returns ErrBadVersion if VER != 5.
func ReadRequest(r io.Reader) (Request, error) {
	var header [3]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Request{}, err
	}
	if header[0] != statute.VersionSocks5 {
		return Request{}, ErrBadVersion
	}
	dest, err := ReadAddress(r)
	if err != nil {
		return Request{}, err
	}
	return Request{Command: header[1], Dest: dest}, nil
}

// AppendRequest appends a CONNECT or UDP-ASSOCIATE request (VER, CMD, RSV,
// DST.ADDR, DST.PORT) to b.
func AppendRequest(b []byte, cmd Command, dest string) ([]byte, error) {
	b = append(b, statute.VersionSocks5, cmd, 0x00)
	return AppendHostPort(b, dest)
}
