// Copyright 2019 Jigsaw Operations LLC
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

package transport

import (
	"context"
	"net"
)

// PacketDialer provides a way to dial a destination and establish datagram
// connections, used by the DNS proxy's plain-UDP nameserver kind.
type PacketDialer interface {
	// Dial connects to raddr, which has the form host:port.
	Dial(ctx context.Context, raddr string) (net.Conn, error)
}

// UDPPacketDialer is a [PacketDialer] that uses the standard [net.Dialer] to
// dial.
type UDPPacketDialer struct {
	Dialer net.Dialer
}

var _ PacketDialer = (*UDPPacketDialer)(nil)

// Dial implements [PacketDialer].Dial.
func (d *UDPPacketDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	return d.Dialer.DialContext(ctx, "udp", addr)
}
