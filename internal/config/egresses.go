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
	"context"
	"net"

	"github.com/latticegate/relay/internal/egress"
	"github.com/latticegate/relay/transport"
)

func buildEgressTable(y yamlEgresses) (egress.Table, error) {
	table := make(egress.Table, len(y.Egresses))
	for _, e := range y.Egresses {
		if _, dup := table[e.Name]; dup {
			return nil, newError(BadYAML, "duplicate egress name %q", e.Name)
		}
		built, err := buildEgress(e)
		if err != nil {
			return nil, err
		}
		table[e.Name] = built
	}
	return table, nil
}

func buildEgress(e yamlEgress) (*egress.Egress, error) {
	switch e.Kind {
	case "direct":
		return egress.NewDirect(e.Name, nil, e.DialTimeout), nil
	case "socks5":
		policy, err := parseResolverPolicy(e.ResolverPolicy)
		if err != nil {
			return nil, err
		}
		endpoint := &transport.TCPEndpoint{Address: e.Upstream}
		var resolve func(ctx context.Context, host string) (net.IP, error)
		if policy == egress.ResolverLocal {
			resolve = func(ctx context.Context, host string) (net.IP, error) {
				ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
				if err != nil {
					return nil, err
				}
				if len(ips) == 0 {
					return nil, &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
				}
				return ips[0], nil
			}
		}
		return egress.NewSocks5(e.Name, endpoint, policy, resolve), nil
	case "reset":
		return egress.NewReset(e.Name), nil
	default:
		return nil, newError(BadYAML, "egress %q: unknown kind %q", e.Name, e.Kind)
	}
}

func parseResolverPolicy(s string) (egress.ResolverPolicy, error) {
	switch s {
	case "", "remote":
		return egress.ResolverRemote, nil
	case "local":
		return egress.ResolverLocal, nil
	default:
		return 0, newError(BadYAML, "unknown resolverPolicy %q", s)
	}
}
