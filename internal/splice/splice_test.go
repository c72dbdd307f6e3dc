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

package splice

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/latticegate/relay/transport"
	"github.com/stretchr/testify/require"
)

// halfCloseConn adapts a net.Conn from net.Pipe into a transport.StreamConn,
// tracking half-close calls so tests can assert on them.
type halfCloseConn struct {
	net.Conn
	mu          sync.Mutex
	readClosed  bool
	writeClosed bool
}

func (c *halfCloseConn) CloseRead() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readClosed = true
	return nil
}

func (c *halfCloseConn) CloseWrite() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeClosed = true
	return c.Conn.Close()
}

func (c *halfCloseConn) wasReadClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readClosed
}

var _ transport.StreamConn = (*halfCloseConn)(nil)

func TestPipeCopiesBothDirections(t *testing.T) {
	clientLocal, clientRemote := net.Pipe()
	upstreamLocal, upstreamRemote := net.Pipe()

	client := &halfCloseConn{Conn: clientRemote}
	upstream := &halfCloseConn{Conn: upstreamRemote}

	done := make(chan Stats)
	go func() {
		done <- Pipe(client, upstream, time.Second, nil)
	}()

	go func() {
		clientLocal.Write([]byte("hello upstream"))
		clientLocal.Close()
	}()
	upGot := make([]byte, 64)
	n, _ := io.ReadFull(upstreamLocal, upGot[:len("hello upstream")])
	require.Equal(t, "hello upstream", string(upGot[:n]))

	upstreamLocal.Write([]byte("hello client"))
	upstreamLocal.Close()
	clGot := make([]byte, 64)
	n, _ = io.ReadFull(clientLocal, clGot[:len("hello client")])
	require.Equal(t, "hello client", string(clGot[:n]))

	stats := <-done
	require.Equal(t, int64(len("hello upstream")), stats.BytesUp)
	require.Equal(t, int64(len("hello client")), stats.BytesDown)
}

func TestPipeIdleTimeoutClosesBothSides(t *testing.T) {
	_, clientRemote := net.Pipe()
	_, upstreamRemote := net.Pipe()

	client := &halfCloseConn{Conn: clientRemote}
	upstream := &halfCloseConn{Conn: upstreamRemote}

	start := time.Now()
	Pipe(client, upstream, 20*time.Millisecond, nil)
	require.Less(t, time.Since(start), time.Second)
}

func TestPumpHalfClosesOnEOF(t *testing.T) {
	clientLocal, clientRemote := net.Pipe()
	upstreamLocal, upstreamRemote := net.Pipe()

	client := &halfCloseConn{Conn: clientRemote}
	upstream := &halfCloseConn{Conn: upstreamRemote}

	go func() {
		clientLocal.Close()
	}()
	go io.Copy(io.Discard, upstreamLocal)

	Pipe(client, upstream, time.Second, nil)
	require.True(t, client.wasReadClosed())
}
