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

package match

import (
	"fmt"
	"net/netip"

	"github.com/gaissmai/bart"
)

// ipSet holds one longest-prefix table per address family for a single
// named IP set.
type ipSet struct {
	v4 *bart.Table[struct{}]
	v6 *bart.Table[struct{}]
}

// IPMatcher answers "which IP sets cover this address" queries using one
// BART longest-prefix table per set per address family. It is immutable
// after construction.
type IPMatcher struct {
	sets map[string]*ipSet
}

// NewIPMatcher builds a matcher from named CIDR sets.
func NewIPMatcher(sets map[string][]netip.Prefix) (*IPMatcher, error) {
	m := &IPMatcher{sets: make(map[string]*ipSet, len(sets))}
	for name, prefixes := range sets {
		s := &ipSet{v4: new(bart.Table[struct{}]), v6: new(bart.Table[struct{}])}
		for _, pfx := range prefixes {
			if !pfx.IsValid() {
				return nil, fmt.Errorf("match: invalid prefix in set %q", name)
			}
			pfx = pfx.Masked()
			if pfx.Addr().Is4() {
				s.v4.Insert(pfx, struct{}{})
			} else {
				s.v6.Insert(pfx, struct{}{})
			}
		}
		m.sets[name] = s
	}
	return m, nil
}

// Sets returns the IP-set names whose prefix covers ip.
func (m *IPMatcher) Sets(ip netip.Addr) []string {
	var out []string
	for name, s := range m.sets {
		table := s.v6
		if ip.Is4() {
			table = s.v4
		}
		if table.Contains(ip) {
			out = append(out, name)
		}
	}
	return out
}

// Contains reports whether ip falls inside the named IP set.
func (m *IPMatcher) Contains(ip netip.Addr, setName string) bool {
	s, ok := m.sets[setName]
	if !ok {
		return false
	}
	table := s.v6
	if ip.Is4() {
		table = s.v4
	}
	return table.Contains(ip)
}

// AnyInIPSet reports whether any of ips falls inside the named set.
func (m *IPMatcher) AnyInIPSet(setName string, ips []netip.Addr) bool {
	for _, ip := range ips {
		if m.Contains(ip, setName) {
			return true
		}
	}
	return false
}
