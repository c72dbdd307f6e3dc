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

package route

import (
	"context"
	"net/netip"

	"github.com/latticegate/relay/internal/match"
)

// Matchers bundles the two immutable matchers the engine consults. Both are
// built once at startup and shared by reference across every connection.
type Matchers struct {
	Domain *match.DomainMatcher
	IP     *match.IPMatcher
}

// AnyInIPSet reports whether any of ips is a member of the named IP set. A
// nil Matchers, or one without an IP matcher, never matches.
func (m *Matchers) AnyInIPSet(setName string, ips []netip.Addr) bool {
	if m == nil || m.IP == nil {
		return false
	}
	return m.IP.AnyInIPSet(setName, ips)
}

func (m *Matchers) domainSets(host string) []string {
	if m == nil || m.Domain == nil {
		return nil
	}
	return m.Domain.Sets(host)
}

// Facts is the per-connection scratch record the engine evaluates
// predicates against. Every field beyond the always-known destination is
// lazy: it is resolved at most once, on first predicate access, and
// memoized for the remainder of the connection's evaluation.
//
// Facts is owned exclusively by the connection that created it and must
// not be shared across goroutines.
type Facts struct {
	ctx context.Context

	host string
	port int

	matchers *Matchers

	resolve    func(ctx context.Context, host string) ([]netip.Addr, error)
	resolved   bool
	resolvedV  []netip.Addr
	resolvedOK bool

	sni      func() (string, bool)
	protocol func() (string, bool)

	visited []string
}

// NewFacts builds a Facts record for a connection headed to host:port.
// resolve, sni, and protocol may be nil, in which case the corresponding
// predicates evaluate Unknown (an IP-literal host still satisfies IP-set
// predicates without a resolver).
func NewFacts(
	ctx context.Context,
	host string,
	port int,
	matchers *Matchers,
	resolve func(ctx context.Context, host string) ([]netip.Addr, error),
	sni func() (string, bool),
	protocol func() (string, bool),
) *Facts {
	return &Facts{
		ctx:      ctx,
		host:     host,
		port:     port,
		matchers: matchers,
		resolve:  resolve,
		sni:      sni,
		protocol: protocol,
	}
}

// Host returns the connection's requested destination host (a domain name
// or the textual form of an IP literal).
func (f *Facts) Host() string { return f.host }

// Port returns the connection's requested destination port.
func (f *Facts) Port() int { return f.port }

// InDomainSet reports whether the destination host is a member of the
// named domain set. A literal IP destination is never a domain-set member.
func (f *Facts) InDomainSet(setName string) bool {
	if _, err := netip.ParseAddr(f.host); err == nil {
		return false
	}
	for _, name := range f.matchers.domainSets(f.host) {
		if name == setName {
			return true
		}
	}
	return false
}

// ResolvedIPs returns the destination's resolved addresses, resolving them
// on first call. ok is false when no resolver was configured or resolution
// failed; a resolution failure makes IP-set predicates evaluate
// false rather than aborting the connection.
func (f *Facts) ResolvedIPs() (ips []netip.Addr, ok bool) {
	if f.resolved {
		return f.resolvedV, f.resolvedOK
	}
	f.resolved = true
	if addr, err := netip.ParseAddr(f.host); err == nil {
		f.resolvedV = []netip.Addr{addr}
		f.resolvedOK = true
		return f.resolvedV, true
	}
	if f.resolve == nil {
		return nil, false
	}
	resolvedIPs, err := f.resolve(f.ctx, f.host)
	if err != nil || len(resolvedIPs) == 0 {
		return nil, false
	}
	f.resolvedV = resolvedIPs
	f.resolvedOK = true
	return f.resolvedV, true
}

// SNI returns the TLS SNI hostname extracted by the inspector. ok is false
// until the inspector has produced a result.
func (f *Facts) SNI() (string, bool) {
	if f.sni == nil {
		return "", false
	}
	return f.sni()
}

// Protocol returns the protocol classification produced by the inspector
// (currently "tls" or ""). ok is false until the inspector has run.
func (f *Facts) Protocol() (string, bool) {
	if f.protocol == nil {
		return "", false
	}
	return f.protocol()
}

// enterRule pushes name onto the visited-rule stack, returning an error if
// name is already present (a cycle). The caller must call exitRule when
// finished recursing, even on error paths where enterRule failed it must
// not call exitRule.
func (f *Facts) enterRule(name string) error {
	for _, v := range f.visited {
		if v == name {
			return &CycleError{Rule: name, Stack: append([]string(nil), f.visited...)}
		}
	}
	f.visited = append(f.visited, name)
	return nil
}

func (f *Facts) exitRule() {
	f.visited = f.visited[:len(f.visited)-1]
}
