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

// Package inspect peeks the first bytes a freshly dispatched connection
// sends, without consuming them, to classify the protocol and (for TLS)
// extract the SNI hostname for the routing engine.
package inspect

import (
	"bufio"
	"time"

	"github.com/latticegate/relay/internal/tlshello"
	"github.com/latticegate/relay/transport"
)

const (
	// MaxPeek bounds how many bytes of the initial payload are buffered
	// while looking for a ClientHello.
	MaxPeek = 4096
	// Budget is the default time allotted to wait for enough bytes to
	// make a determination before giving up and proceeding without SNI.
	Budget = 2 * time.Second
)

// Result is the outcome of inspecting a connection's leading bytes.
type Result struct {
	// Protocol is "tls" when a ClientHello was recognized, "" otherwise.
	Protocol string
	// SNI is the extracted server name, or "" if absent or not found.
	SNI string
}

// Peek wraps conn in a buffered reader, peeks up to MaxPeek bytes within
// budget looking for a TLS ClientHello, and returns a Result plus a
// StreamConn that still delivers every peeked byte to subsequent readers.
// It never closes conn and never returns an error: an inspection failure
// (timeout, non-TLS traffic, malformed input) simply yields an empty
// Result; the inspector is a best-effort routing input, not a
// protocol gate.
func Peek(conn transport.StreamConn, budget time.Duration) (transport.StreamConn, Result) {
	if budget <= 0 {
		budget = Budget
	}
	br := bufio.NewReaderSize(conn, MaxPeek)
	wrapped := transport.WrapConn(conn, br, conn)

	deadline := time.Now().Add(budget)
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	// Peek asks for the full budget of bytes; bufio.Reader blocks on the
	// underlying Read until either MaxPeek bytes are available or the read
	// deadline trips, at which point it returns whatever prefix it has
	// buffered alongside the deadline error.
	buf, _ := br.Peek(MaxPeek)

	if len(buf) == 0 {
		return wrapped, Result{}
	}

	name, result := tlshello.ParseClientHello(buf)
	switch result {
	case tlshello.Ok:
		return wrapped, Result{Protocol: "tls", SNI: name}
	default:
		return wrapped, Result{}
	}
}
