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

package egress

import (
	"context"
	"fmt"
	"net"

	"github.com/latticegate/relay/internal/socks5wire"
	"github.com/latticegate/relay/transport"
	"github.com/things-go/go-socks5/statute"
)

// ResolverPolicy controls whether a Socks5 egress sends the destination to
// the upstream as the original domain name (the upstream resolves it) or
// as an address this process has already resolved locally.
type ResolverPolicy int

const (
	// ResolverRemote forwards the original domain name; the upstream
	// proxy performs the DNS resolution.
	ResolverRemote ResolverPolicy = iota
	// ResolverLocal resolves the domain name here and forwards an IP
	// literal to the upstream.
	ResolverLocal
)

// socks5Adapter dials an upstream SOCKS5 proxy and issues a CONNECT request
// for the destination.
type socks5Adapter struct {
	upstream transport.StreamEndpoint
	policy   ResolverPolicy
	resolve  func(ctx context.Context, host string) (net.IP, error)
}

// NewSocks5 builds the upstream-SOCKS5 egress adapter. resolve is only
// consulted when policy is ResolverLocal; it may be nil otherwise.
func NewSocks5(name string, upstream transport.StreamEndpoint, policy ResolverPolicy, resolve func(ctx context.Context, host string) (net.IP, error)) *Egress {
	return &Egress{
		Name: name,
		Kind: KindSocks5,
		Adapter: &socks5Adapter{
			upstream: upstream,
			policy:   policy,
			resolve:  resolve,
		},
	}
}

func (a *socks5Adapter) Dial(ctx context.Context, dest string) (transport.StreamConn, error) {
	forwardDest, err := a.resolveDest(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("egress: resolving %q for upstream SOCKS5: %w", dest, err)
	}

	conn, err := a.upstream.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("egress: could not connect to upstream SOCKS5 proxy: %w", err)
	}
	succeeded := false
	defer func() {
		if !succeeded {
			conn.Close()
		}
	}()

	greeting := socks5wire.AppendGreeting(nil, statute.MethodNoAuth)
	if _, err := conn.Write(greeting); err != nil {
		return nil, fmt.Errorf("egress: writing SOCKS5 greeting: %w", err)
	}

	method, err := socks5wire.ReadMethodSelection(conn)
	if err != nil {
		return nil, fmt.Errorf("egress: reading upstream method selection: %w", err)
	}
	if method != statute.MethodNoAuth {
		return nil, fmt.Errorf("egress: upstream SOCKS5 proxy rejected method NONE")
	}

	request, err := socks5wire.AppendRequest(nil, socks5wire.CmdConnect, forwardDest)
	if err != nil {
		return nil, fmt.Errorf("egress: building SOCKS5 request: %w", err)
	}
	if _, err := conn.Write(request); err != nil {
		return nil, fmt.Errorf("egress: writing SOCKS5 request: %w", err)
	}

	if _, err := socks5wire.ReadReply(conn); err != nil {
		return nil, fmt.Errorf("egress: upstream SOCKS5 connect failed: %w", err)
	}

	succeeded = true
	return conn, nil
}

func (a *socks5Adapter) resolveDest(ctx context.Context, dest string) (string, error) {
	if a.policy == ResolverRemote || a.resolve == nil {
		return dest, nil
	}
	host, port, err := net.SplitHostPort(dest)
	if err != nil {
		return "", err
	}
	if net.ParseIP(host) != nil {
		return dest, nil
	}
	ip, err := a.resolve(ctx, host)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(ip.String(), port), nil
}
