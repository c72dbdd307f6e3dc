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

// Tri is a three-valued logic result: predicates may not yet know their
// answer (the fact they depend on has not been resolved), in which case the
// engine treats Unknown the same as False. The engine does not record which
// facts evaluated Unknown.
type Tri int

const (
	False Tri = iota
	True
	Unknown
)

// Predicate is a condition over a connection's facts.
type Predicate interface {
	Eval(f *Facts) Tri
}

// AnyPredicate always matches. It backs both the "any" and "else" predicate
// spellings; the two exist as distinct reserved words in configuration but
// evaluate identically.
type AnyPredicate struct{}

func (AnyPredicate) Eval(*Facts) Tri { return True }

// PortPredicate matches when the destination port is in Ports.
type PortPredicate struct {
	Ports map[int]struct{}
}

// NewPortPredicate builds a PortPredicate from a literal port list.
func NewPortPredicate(ports ...int) PortPredicate {
	set := make(map[int]struct{}, len(ports))
	for _, p := range ports {
		set[p] = struct{}{}
	}
	return PortPredicate{Ports: set}
}

func (p PortPredicate) Eval(f *Facts) Tri {
	_, ok := p.Ports[f.Port()]
	return boolToTri(ok)
}

// DomainSetPredicate matches when the destination host is a domain name
// contained in the named domain set.
type DomainSetPredicate struct {
	SetName string
}

func (p DomainSetPredicate) Eval(f *Facts) Tri {
	return boolToTri(f.InDomainSet(p.SetName))
}

// IPSetPredicate matches when one of the destination's resolved addresses
// falls inside the named CIDR set. Resolution is lazy and may block.
type IPSetPredicate struct {
	SetName string
}

func (p IPSetPredicate) Eval(f *Facts) Tri {
	ips, ok := f.ResolvedIPs()
	if !ok {
		return Unknown
	}
	return boolToTri(f.matchers.AnyInIPSet(p.SetName, ips))
}

// ProtocolPredicate matches the protocol classification produced by the
// inspector (currently "tls" or "" for unclassified). It is Unknown until
// the inspector has run.
type ProtocolPredicate struct {
	Protocol string
}

func (p ProtocolPredicate) Eval(f *Facts) Tri {
	proto, ok := f.Protocol()
	if !ok {
		return Unknown
	}
	return boolToTri(proto == p.Protocol)
}

// SNIPredicate matches an exact SNI hostname extracted by the inspector. It
// is Unknown until the inspector has run or has given up.
type SNIPredicate struct {
	Hostname string
}

func (p SNIPredicate) Eval(f *Facts) Tri {
	sni, ok := f.SNI()
	if !ok {
		return Unknown
	}
	return boolToTri(sni == p.Hostname)
}

func boolToTri(b bool) Tri {
	if b {
		return True
	}
	return False
}
