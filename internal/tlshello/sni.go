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

// Package tlshello extracts the SNI server name from the leading bytes of a
// TLS ClientHello without consuming them. Unlike a one-shot unmarshaler, it
// distinguishes a buffer that is merely incomplete (more bytes are still
// expected off the wire) from one that is structurally not a ClientHello at
// all, so a caller can keep peeking in the first case and give up
// immediately in the second.
package tlshello

import "encoding/binary"

// Result classifies the outcome of parsing a byte prefix.
type Result int

const (
	// NeedMore means the prefix parsed consistently so far but ran out of
	// bytes before a conclusion could be reached; the caller should peek
	// more bytes and retry.
	NeedMore Result = iota
	// Invalid means the prefix is definitively not a TLS 1.x ClientHello.
	Invalid
	// Ok means a complete ClientHello (with or without an SNI extension)
	// was parsed. Hostname is the extracted SNI, or "" if the ClientHello
	// carries none.
	Ok
)

const (
	contentTypeHandshake  = 0x16
	handshakeTypeClientHi = 0x01
	extensionServerName   = 0x0000
	serverNameTypeHost    = 0x00
	maxSessionIDLen       = 32
)

// cursor is a bounds-checked reader over a byte prefix that may be
// incomplete. Every read that runs past the end of buf marks short=true
// instead of panicking or returning a generic error, so the caller can tell
// "not enough bytes yet" apart from "the bytes we do have are wrong".
type cursor struct {
	buf   []byte
	pos   int
	short bool
}

func (c *cursor) u8() (byte, bool) {
	if c.pos+1 > len(c.buf) {
		c.short = true
		return 0, false
	}
	b := c.buf[c.pos]
	c.pos++
	return b, true
}

func (c *cursor) u16() (uint16, bool) {
	if c.pos+2 > len(c.buf) {
		c.short = true
		return 0, false
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos : c.pos+2])
	c.pos += 2
	return v, true
}

func (c *cursor) u24() (uint32, bool) {
	if c.pos+3 > len(c.buf) {
		c.short = true
		return 0, false
	}
	v := uint32(c.buf[c.pos])<<16 | uint32(c.buf[c.pos+1])<<8 | uint32(c.buf[c.pos+2])
	c.pos += 3
	return v, true
}

func (c *cursor) skip(n int) bool {
	if c.pos+n > len(c.buf) {
		c.short = true
		return false
	}
	c.pos += n
	return true
}

func (c *cursor) take(n int) ([]byte, bool) {
	if c.pos+n > len(c.buf) {
		c.short = true
		return nil, false
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, true
}

// ParseClientHello walks the fixed fields of a TLS record carrying a
// ClientHello (legacy_version, random, session_id, cipher_suites,
// compression_methods) to reach the extensions, then scans extensions for
// server_name (type 0x0000) and, within it, a host_name entry (name_type
// 0x00). It never mutates or retains buf.
func ParseClientHello(buf []byte) (hostname string, result Result) {
	c := &cursor{buf: buf}

	recordType, ok := c.u8()
	if !ok {
		return "", NeedMore
	}
	if recordType != contentTypeHandshake {
		return "", Invalid
	}
	verMajor, ok := c.u8()
	if !ok {
		return "", NeedMore
	}
	if verMajor != 0x03 {
		return "", Invalid
	}
	if _, ok := c.u8(); !ok { // version minor: any value accepted
		return "", NeedMore
	}
	recLen, ok := c.u16()
	if !ok {
		return "", NeedMore
	}
	recordEnd := c.pos + int(recLen)

	hsType, ok := c.u8()
	if !ok {
		return "", boundedNeedMore(c, recordEnd)
	}
	if hsType != handshakeTypeClientHi {
		return "", Invalid
	}
	if _, ok := c.u24(); !ok { // handshake body length, unchecked against recLen
		return "", boundedNeedMore(c, recordEnd)
	}
	if !c.skip(2 + 32) { // legacy_version + random
		return "", boundedNeedMore(c, recordEnd)
	}
	sessionIDLen, ok := c.u8()
	if !ok {
		return "", boundedNeedMore(c, recordEnd)
	}
	if sessionIDLen > maxSessionIDLen {
		return "", Invalid
	}
	if !c.skip(int(sessionIDLen)) {
		return "", boundedNeedMore(c, recordEnd)
	}
	cipherSuitesLen, ok := c.u16()
	if !ok {
		return "", boundedNeedMore(c, recordEnd)
	}
	if !c.skip(int(cipherSuitesLen)) {
		return "", boundedNeedMore(c, recordEnd)
	}
	compressionLen, ok := c.u8()
	if !ok {
		return "", boundedNeedMore(c, recordEnd)
	}
	if !c.skip(int(compressionLen)) {
		return "", boundedNeedMore(c, recordEnd)
	}

	if c.pos >= recordEnd && recordEnd <= len(buf) {
		// No extensions block present: a legal ClientHello with no SNI.
		return "", Ok
	}

	extensionsLen, ok := c.u16()
	if !ok {
		return "", boundedNeedMore(c, recordEnd)
	}
	extensionsEnd := c.pos + int(extensionsLen)
	if extensionsEnd > len(buf) {
		return "", NeedMore
	}

	for c.pos < extensionsEnd {
		extType, ok := c.u16()
		if !ok {
			return "", NeedMore
		}
		extData, ok := c.u16()
		if !ok {
			return "", NeedMore
		}
		body, ok := c.take(int(extData))
		if !ok {
			return "", NeedMore
		}
		if extType != extensionServerName {
			continue
		}
		name, found, validSNI := parseServerNameList(body)
		if !validSNI {
			return "", Invalid
		}
		if found {
			return name, Ok
		}
	}
	return "", Ok
}

// boundedNeedMore reports Invalid instead of NeedMore when the declared
// record length has already been fully consumed from buf: at that point no
// amount of additional peeking will make the record valid.
func boundedNeedMore(c *cursor, recordEnd int) Result {
	if recordEnd <= len(c.buf) {
		return Invalid
	}
	return NeedMore
}

// parseServerNameList parses RFC 6066 §3 ServerNameList. It returns the
// first host_name entry found. valid is false if the list is malformed
// given the bytes available (which, because the extension body was already
// fully buffered by the caller, means definitively malformed rather than
// short).
func parseServerNameList(body []byte) (name string, found bool, valid bool) {
	c := &cursor{buf: body}
	listLen, ok := c.u16()
	if !ok || int(listLen) != len(body)-2 {
		return "", false, false
	}
	for c.pos < len(body) {
		nameType, ok := c.u8()
		if !ok {
			return "", false, false
		}
		nameLen, ok := c.u16()
		if !ok {
			return "", false, false
		}
		raw, ok := c.take(int(nameLen))
		if !ok {
			return "", false, false
		}
		if nameType == serverNameTypeHost && len(raw) > 0 {
			return string(raw), true, true
		}
	}
	return "", false, true
}
