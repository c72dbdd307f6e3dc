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

package config

import (
	"strings"
	"time"

	"github.com/latticegate/relay/dns"
	"github.com/latticegate/relay/internal/dnsproxy"
	"github.com/latticegate/relay/internal/egress"
	"github.com/latticegate/relay/internal/route"
	"github.com/latticegate/relay/transport"
)

// DefaultCacheMinTTL and DefaultCacheMaxTTL bound every upstream resolver's
// answer cache. The schema has no per-upstream override yet.
const (
	DefaultCacheMinTTL = 5 * time.Second
	DefaultCacheMaxTTL = 1 * time.Hour
)

// DNS is the linked DNS proxy configuration: a bind address and a built
// *dnsproxy.Proxy ready to serve.
type DNS struct {
	Bind  string
	Proxy *dnsproxy.Proxy
}

func buildDNS(y *yamlDNS, b *builder, matches *route.Matchers) (*DNS, error) {
	if y == nil {
		return nil, nil
	}

	upstreams := make(map[string]dns.Resolver, len(y.NameServers))
	for _, ns := range y.NameServers {
		resolver, err := buildNameServer(ns)
		if err != nil {
			return nil, err
		}
		ttlMin, ttlMax := DefaultCacheMinTTL, DefaultCacheMaxTTL
		upstreams[ns.Name] = dns.NewCachingResolver(resolver, ttlMin, ttlMax)
	}

	var tree *route.Node
	if y.Rule != "" {
		r := ref[*route.Node](y.Rule)
		b.ruleRefs = append(b.ruleRefs, &r)
		tree = route.NamedRule(y.Rule)
	} else {
		tree = route.Reset()
	}

	return &DNS{
		Bind: y.Bind,
		Proxy: &dnsproxy.Proxy{
			Tree:      tree,
			Matches:   matches,
			Upstreams: upstreams,
		},
	}, nil
}

// buildNameServer parses a nameserver URL of the form "udp://host:port" or
// "socks5://proxy-host:port->resolver-host:port" (the latter tunneling
// DNS-over-TCP through the named upstream SOCKS5 proxy).
func buildNameServer(ns yamlNameServer) (dns.Resolver, error) {
	switch {
	case strings.HasPrefix(ns.URL, "udp://"):
		addr := strings.TrimPrefix(ns.URL, "udp://")
		return dns.NewUDPResolver(&transport.UDPPacketDialer{}, addr), nil

	case strings.HasPrefix(ns.URL, "socks5://"):
		rest := strings.TrimPrefix(ns.URL, "socks5://")
		proxyAddr, resolverAddr, ok := strings.Cut(rest, "->")
		if !ok {
			return nil, newError(BadYAML, "nameserver %q: socks5 URL must be proxy->resolver", ns.Name)
		}
		tunnel := egress.NewSocks5(ns.Name, &transport.TCPEndpoint{Address: proxyAddr}, egress.ResolverRemote, nil)
		return dns.NewTCPResolver(tunnel.Adapter, resolverAddr), nil

	default:
		return nil, newError(BadYAML, "nameserver %q: unsupported scheme in %q", ns.Name, ns.URL)
	}
}
