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
	"errors"
	"io"

	"github.com/things-go/go-socks5/statute"
)

// ErrBadVersion is returned when the first byte of a greeting or request is
// not the SOCKS version 5.
var ErrBadVersion = errors.New("socks5wire: unsupported SOCKS version")

// ErrNoAcceptableMethod is returned when a client greeting does not offer
// the NONE authentication method. The relay never negotiates any other
// method.
var ErrNoAcceptableMethod = errors.New("socks5wire: client offered no acceptable auth method")

// ReadGreeting reads the version-identifier/method-selection message
// (VER, NMETHODS, METHODS) and reports whether NONE (0x00) is among the
// offered methods. It returns ErrBadVersion if VER != 5.
func ReadGreeting(r io.Reader) (offersNoAuth bool, err error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return false, err
	}
	if header[0] != statute.VersionSocks5 {
		return false, ErrBadVersion
	}
	methods := make([]byte, header[1])
	if _, err := io.ReadFull(r, methods); err != nil {
		return false, err
	}
	for _, m := range methods {
		if m == statute.MethodNoAuth {
			return true, nil
		}
	}
	return false, nil
}

// AppendMethodSelection appends the server's method-selection reply
// (VER, METHOD) to b.
func AppendMethodSelection(b []byte, method byte) []byte {
	return append(b, statute.VersionSocks5, method)
}

// AppendGreeting appends a client's version-identifier/method-selection
// message (VER, NMETHODS, METHODS) to b, as sent to an upstream SOCKS5
// proxy before a request.
func AppendGreeting(b []byte, methods ...byte) []byte {
	b = append(b, statute.VersionSocks5, byte(len(methods)))
	return append(b, methods...)
}

// ReadMethodSelection reads a server's method-selection reply (VER, METHOD),
// as sent in response to a client greeting. It returns ErrBadVersion if
// VER != 5.
func ReadMethodSelection(r io.Reader) (method byte, err error) {
	var resp [2]byte
	if _, err := io.ReadFull(r, resp[:]); err != nil {
		return 0, err
	}
	if resp[0] != statute.VersionSocks5 {
		return 0, ErrBadVersion
	}
	return resp[1], nil
}
