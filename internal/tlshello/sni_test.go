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

package tlshello

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildClientHello assembles a minimal, well-formed TLS record carrying a
// ClientHello with an optional SNI host name.
func buildClientHello(t *testing.T, sni string) []byte {
	t.Helper()

	var hs []byte
	hs = append(hs, 0x03, 0x03)      // legacy_version
	hs = append(hs, make([]byte, 32)...) // random
	hs = append(hs, 0x00)            // session_id length
	hs = binary.BigEndian.AppendUint16(hs, 2)
	hs = append(hs, 0x00, 0xFF) // one cipher suite
	hs = append(hs, 0x01, 0x00) // compression methods

	var extensions []byte
	if sni != "" {
		var nameList []byte
		nameList = append(nameList, serverNameTypeHost)
		nameList = binary.BigEndian.AppendUint16(nameList, uint16(len(sni)))
		nameList = append(nameList, sni...)

		var sniExt []byte
		sniExt = binary.BigEndian.AppendUint16(sniExt, uint16(len(nameList)))
		sniExt = append(sniExt, nameList...)

		extensions = binary.BigEndian.AppendUint16(extensions, extensionServerName)
		extensions = binary.BigEndian.AppendUint16(extensions, uint16(len(sniExt)))
		extensions = append(extensions, sniExt...)
	}
	var extBlock []byte
	extBlock = binary.BigEndian.AppendUint16(extBlock, uint16(len(extensions)))
	extBlock = append(extBlock, extensions...)
	hs = append(hs, extBlock...)

	var handshake []byte
	handshake = append(handshake, handshakeTypeClientHi)
	handshake = append(handshake, byte(len(hs)>>16), byte(len(hs)>>8), byte(len(hs)))
	handshake = append(handshake, hs...)

	var record []byte
	record = append(record, contentTypeHandshake, 0x03, 0x01)
	record = binary.BigEndian.AppendUint16(record, uint16(len(handshake)))
	record = append(record, handshake...)
	return record
}

func TestParseClientHelloExtractsSNI(t *testing.T) {
	buf := buildClientHello(t, "example.test")
	name, result := ParseClientHello(buf)
	require.Equal(t, Ok, result)
	require.Equal(t, "example.test", name)
}

func TestParseClientHelloNoSNI(t *testing.T) {
	buf := buildClientHello(t, "")
	name, result := ParseClientHello(buf)
	require.Equal(t, Ok, result)
	require.Empty(t, name)
}

func TestParseClientHelloNeedsMoreBytes(t *testing.T) {
	buf := buildClientHello(t, "foo.example")
	for cut := 1; cut < len(buf); cut++ {
		_, result := ParseClientHello(buf[:cut])
		require.NotEqual(t, Ok, result, "truncated to %d bytes falsely reported Ok", cut)
	}
}

func TestParseClientHelloRejectsWrongContentType(t *testing.T) {
	buf := buildClientHello(t, "example.test")
	buf[0] = 0x17 // application_data, not handshake
	_, result := ParseClientHello(buf)
	require.Equal(t, Invalid, result)
}

func TestParseClientHelloRejectsWrongHandshakeType(t *testing.T) {
	buf := buildClientHello(t, "example.test")
	// handshake type is the first byte after the 5-byte record header.
	buf[5] = 0x02 // ServerHello, not ClientHello
	_, result := ParseClientHello(buf)
	require.Equal(t, Invalid, result)
}

func TestParseClientHelloTerminatesOnShortRandomInput(t *testing.T) {
	inputs := [][]byte{
		{},
		{0x00},
		{0x16, 0x03},
		{0x16, 0x03, 0x01},
		{0xFF, 0xFF},
	}
	for _, in := range inputs {
		name, result := ParseClientHello(in)
		require.Contains(t, []Result{NeedMore, Invalid, Ok}, result)
		if result != Ok {
			require.Empty(t, name)
		}
	}
}
