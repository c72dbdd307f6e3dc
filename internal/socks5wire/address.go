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

// Package socks5wire is a bit-exact reader/writer for the RFC 1928 SOCKS5
// framing used on both sides of the relay: the listener's accept path and
// the upstream SOCKS5 egress's client dial path share this codec instead of
// each growing its own.
package socks5wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/things-go/go-socks5/statute"
)

// AddrType is the ATYP field of a SOCKS5 address, as enumerated in
// https://datatracker.ietf.org/doc/html/rfc1928#section-5.
type AddrType = byte

// Address types. Aliased onto statute's constants so the wire codec and the
// upstream things-go/go-socks5 server use the exact same byte values.
const (
	AddrIPv4   AddrType = statute.ATYPIPv4
	AddrDomain AddrType = statute.ATYPDomain
	AddrIPv6   AddrType = statute.ATYPIPv6
)

// ErrUnrecognizedAddrType is returned by ReadAddress for any ATYP byte
// outside {IPv4, Domain, IPv6}.
var ErrUnrecognizedAddrType = errors.New("socks5wire: unrecognized address type")

// ErrDomainTooLong is returned when encoding an address whose host exceeds
// the 255-byte domain name limit.
var ErrDomainTooLong = errors.New("socks5wire: domain name exceeds 255 bytes")

// Address is a SOCKS5 destination or bound address. Exactly one of Name or
// IP is set; Name is the byte string exactly as received on the wire
// (never lowercased or otherwise normalized).
type Address struct {
	Name string
	IP   net.IP
	Port uint16
}

// String renders the address as a host:port pair suitable for dialing,
// preferring the IP form when present.
func (a Address) String() string {
	host := a.Name
	if a.IP != nil {
		host = a.IP.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(int(a.Port)))
}

// Type reports the ATYP this address would be encoded with.
func (a Address) Type() AddrType {
	switch {
	case a.IP == nil:
		return AddrDomain
	case a.IP.To4() != nil:
		return AddrIPv4
	default:
		return AddrIPv6
	}
}

// AppendAddress appends addr to b in SOCKS5 wire format (ATYP, address,
// port), returning the extended slice.
func AppendAddress(b []byte, addr Address) ([]byte, error) {
	switch addr.Type() {
	case AddrIPv4:
		b = append(b, AddrIPv4)
		b = append(b, addr.IP.To4()...)
	case AddrIPv6:
		b = append(b, AddrIPv6)
		b = append(b, addr.IP.To16()...)
	default:
		if len(addr.Name) > 255 {
			return nil, ErrDomainTooLong
		}
		b = append(b, AddrDomain)
		b = append(b, byte(len(addr.Name)))
		b = append(b, addr.Name...)
	}
	b = binary.BigEndian.AppendUint16(b, addr.Port)
	return b, nil
}

// AppendHostPort parses a "host:port" string and appends it to b in SOCKS5
// wire format, choosing IPv4/IPv6/domain encoding based on whether host
// parses as an IP literal.
func AppendHostPort(b []byte, hostport string) ([]byte, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, fmt.Errorf("socks5wire: %w", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("socks5wire: invalid port %q: %w", portStr, err)
	}
	addr := Address{Port: uint16(port)}
	if ip := net.ParseIP(host); ip != nil {
		addr.IP = ip
	} else {
		addr.Name = host
	}
	return AppendAddress(b, addr)
}

// ReadAddress reads one SOCKS5 address (ATYP, address, port) from r.
func ReadAddress(r io.Reader) (Address, error) {
	var atyp [1]byte
	if _, err := io.ReadFull(r, atyp[:]); err != nil {
		return Address{}, err
	}

	var addr Address
	switch atyp[0] {
	case AddrIPv4:
		ip := make(net.IP, net.IPv4len)
		if _, err := io.ReadFull(r, ip); err != nil {
			return Address{}, err
		}
		addr.IP = ip
	case AddrIPv6:
		ip := make(net.IP, net.IPv6len)
		if _, err := io.ReadFull(r, ip); err != nil {
			return Address{}, err
		}
		addr.IP = ip
	case AddrDomain:
		var length [1]byte
		if _, err := io.ReadFull(r, length[:]); err != nil {
			return Address{}, err
		}
		name := make([]byte, length[0])
		if _, err := io.ReadFull(r, name); err != nil {
			return Address{}, err
		}
		addr.Name = string(name)
	default:
		return Address{}, ErrUnrecognizedAddrType
	}

	var port [2]byte
	if _, err := io.ReadFull(r, port[:]); err != nil {
		return Address{}, err
	}
	addr.Port = binary.BigEndian.Uint16(port[:])
	return addr, nil
}
