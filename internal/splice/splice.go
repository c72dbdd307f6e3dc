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

// Package splice pipes bytes bidirectionally between a client and an
// egress connection once a routing decision has dialed the upstream. Each
// direction runs as its own task; on EOF in one direction the
// corresponding write side of the peer is half-closed while the other
// direction keeps running, and an idle timer closes both sides when
// neither direction has moved a byte recently.
package splice

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/latticegate/relay/internal/ddltimer"
	"github.com/latticegate/relay/transport"
)

// DefaultIdleTimeout closes a connection pair that has carried no traffic
// in either direction for this long.
const DefaultIdleTimeout = 5 * time.Minute

// bufferSize is the per-direction copy buffer, matching the relay's
// documented per-connection memory budget.
const bufferSize = 16 * 1024

// Stats reports bytes moved in each direction once both halves of a
// spliced pair have finished.
type Stats struct {
	// BytesUp is bytes copied from client to upstream.
	BytesUp int64
	// BytesDown is bytes copied from upstream to client.
	BytesDown int64
}

// Pipe copies bytes between client and upstream until both directions
// have finished, either because both sides hit EOF, an idle timeout
// elapsed, or one side returned a non-EOF error. idleTimeout <= 0 uses
// DefaultIdleTimeout. Pipe always closes both conns before returning.
func Pipe(client, upstream transport.StreamConn, idleTimeout time.Duration, log *slog.Logger) Stats {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	timer := ddltimer.New()
	defer timer.Stop()
	timer.SetDeadline(time.Now().Add(idleTimeout))

	watch := make(chan struct{})
	defer close(watch)
	go func() {
		select {
		case <-timer.Timeout():
			log.Debug("splice: idle timeout, closing both sides")
			client.Close()
			upstream.Close()
		case <-watch:
		}
	}()

	var stats Stats
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		stats.BytesUp = pump(upstream, client, timer, idleTimeout, log, "up")
	}()
	go func() {
		defer wg.Done()
		stats.BytesDown = pump(client, upstream, timer, idleTimeout, log, "down")
	}()

	wg.Wait()
	client.Close()
	upstream.Close()
	return stats
}

// pump copies from src to dst, resetting the idle timer on every read, and
// once src reaches EOF or either side fails, half-closes src's read side and
// dst's write side. It never closes
// either conn fully; Pipe owns that.
func pump(dst, src transport.StreamConn, timer *ddltimer.DeadlineTimer, idleTimeout time.Duration, log *slog.Logger, dir string) int64 {
	buf := make([]byte, bufferSize)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			timer.SetDeadline(time.Now().Add(idleTimeout))
			if _, werr := dst.Write(buf[:n]); werr != nil {
				log.Debug("splice: write failed", "dir", dir, "err", werr)
				break
			}
			total += int64(n)
		}
		if rerr != nil {
			if rerr != io.EOF {
				log.Debug("splice: read failed", "dir", dir, "err", rerr)
			}
			break
		}
	}
	src.CloseRead()
	dst.CloseWrite()
	return total
}
