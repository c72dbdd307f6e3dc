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
	"bytes"
	"net"
	"testing"

	"github.com/things-go/go-socks5/statute"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	cases := []Address{
		{IP: net.ParseIP("127.0.0.1").To4(), Port: 80},
		{IP: net.ParseIP("::1"), Port: 443},
		{Name: "example.test", Port: 8080},
	}
	for _, addr := range cases {
		encoded, err := AppendAddress(nil, addr)
		require.NoError(t, err)

		decoded, err := ReadAddress(bytes.NewReader(encoded))
		require.NoError(t, err)
		require.Equal(t, addr.Port, decoded.Port)
		require.Equal(t, addr.Name, decoded.Name)
		if addr.IP != nil {
			require.True(t, addr.IP.Equal(decoded.IP))
		}
	}
}

func TestAppendHostPortChoosesCorrectAtyp(t *testing.T) {
	b, err := AppendHostPort(nil, "10.0.0.1:53")
	require.NoError(t, err)
	require.Equal(t, AddrIPv4, b[0])

	b, err = AppendHostPort(nil, "example.test:53")
	require.NoError(t, err)
	require.Equal(t, AddrDomain, b[0])
}

func TestAppendHostPortRejectsLongDomain(t *testing.T) {
	host := bytes.Repeat([]byte("a"), 256)
	_, err := AppendHostPort(nil, string(host)+":80")
	require.ErrorIs(t, err, ErrDomainTooLong)
}

func TestReadAddressRejectsUnknownAtyp(t *testing.T) {
	_, err := ReadAddress(bytes.NewReader([]byte{0x09}))
	require.ErrorIs(t, err, ErrUnrecognizedAddrType)
}

func TestReadGreetingRequiresNoAuth(t *testing.T) {
	withNoAuth := []byte{statute.VersionSocks5, 2, statute.MethodUserPassAuth, statute.MethodNoAuth}
	ok, err := ReadGreeting(bytes.NewReader(withNoAuth))
	require.NoError(t, err)
	require.True(t, ok)

	withoutNoAuth := []byte{statute.VersionSocks5, 1, statute.MethodUserPassAuth}
	ok, err = ReadGreeting(bytes.NewReader(withoutNoAuth))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReadGreetingRejectsBadVersion(t *testing.T) {
	_, err := ReadGreeting(bytes.NewReader([]byte{0x04, 0}))
	require.ErrorIs(t, err, ErrBadVersion)
}

func TestReadGreetingZeroMethodsRejected(t *testing.T) {
	ok, err := ReadGreeting(bytes.NewReader([]byte{statute.VersionSocks5, 0}))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReadRequestConnect(t *testing.T) {
	raw := []byte{statute.VersionSocks5, CmdConnect, 0x00}
	raw, err := AppendHostPort(raw, "127.0.0.1:80")
	require.NoError(t, err)

	req, err := ReadRequest(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, CmdConnect, req.Command)
	require.Equal(t, "127.0.0.1:80", req.Dest.String())
}

func TestAppendReplyUsesBoundAddress(t *testing.T) {
	b, err := AppendReply(nil, ReplySucceeded, Address{IP: net.ParseIP("0.0.0.0").To4(), Port: 1080})
	require.NoError(t, err)
	require.Equal(t, byte(statute.VersionSocks5), b[0])
	require.Equal(t, byte(ReplySucceeded), b[1])
	require.Equal(t, byte(0x00), b[2])
	require.Equal(t, AddrIPv4, b[3])
}

func TestReadReplySucceeded(t *testing.T) {
	raw, err := AppendReply(nil, ReplySucceeded, Address{IP: net.ParseIP("203.0.113.9").To4(), Port: 443})
	require.NoError(t, err)

	bound, err := ReadReply(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, uint16(443), bound.Port)
}

func TestReadReplyPropagatesFailureCode(t *testing.T) {
	raw, err := AppendReply(nil, ReplyHostUnreachable, Address{IP: net.ParseIP("0.0.0.0").To4(), Port: 0})
	require.NoError(t, err)

	_, err = ReadReply(bytes.NewReader(raw))
	require.ErrorIs(t, err, ReplyHostUnreachable)
}

func TestAppendGreetingAndReadMethodSelection(t *testing.T) {
	greeting := AppendGreeting(nil, statute.MethodNoAuth)
	require.Equal(t, []byte{statute.VersionSocks5, 1, statute.MethodNoAuth}, greeting)

	reply := AppendMethodSelection(nil, statute.MethodNoAuth)
	method, err := ReadMethodSelection(bytes.NewReader(reply))
	require.NoError(t, err)
	require.Equal(t, byte(statute.MethodNoAuth), method)
}

func TestReadMethodSelectionRejectsBadVersion(t *testing.T) {
	_, err := ReadMethodSelection(bytes.NewReader([]byte{0x04, 0x00}))
	require.ErrorIs(t, err, ErrBadVersion)
}
