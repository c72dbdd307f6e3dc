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

// Package config loads a config directory into the immutable structures
// the relay core consumes: relays, an egress table, a named rule
// dictionary, an optional DNS proxy block, and the two matchers. It owns
// the two-phase Ref/Val linking pass described in the data model; the
// core is never handed an unresolved reference.
package config

import "time"

// yamlRelay is the on-disk shape of one entry in relays.yaml.
type yamlRelay struct {
	Name string `yaml:"name"`
	Bind string `yaml:"bind"`
	Rule string `yaml:"rule"`
}

// yamlRelays is the top-level shape of relays.yaml.
type yamlRelays struct {
	Relays []yamlRelay `yaml:"relays"`
}

// yamlEgress is the on-disk shape of one entry in egresses.yaml. Exactly
// one of the kind-specific fields is meaningful, selected by Kind.
type yamlEgress struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "direct", "socks5", or "reset"

	// Direct
	DialTimeout time.Duration `yaml:"dialTimeout"`

	// Socks5
	Upstream       string `yaml:"upstream"` // host:port
	ResolverPolicy string `yaml:"resolverPolicy"` // "remote" or "local"
}

// yamlEgresses is the top-level shape of egresses.yaml.
type yamlEgresses struct {
	Egresses []yamlEgress `yaml:"egresses"`
}

// yamlNode is the on-disk shape of a routing tree node. Exactly one of the
// kind-specific fields is populated, selected by Kind.
type yamlNode struct {
	Kind string `yaml:"kind"` // "reset", "egress", "rule", "sequence", "if"

	// "egress" / "rule"
	Name string `yaml:"name"`

	// "sequence"
	Children []yamlNode `yaml:"children"`

	// "if"
	Pred yamlPredicate `yaml:"pred"`
	Then *yamlNode     `yaml:"then"`
	Else *yamlNode     `yaml:"else"`
}

// yamlPredicate is the on-disk shape of a routing predicate. Exactly one
// field beyond Kind is populated, selected by Kind.
type yamlPredicate struct {
	Kind string `yaml:"kind"` // "any", "port", "domain", "ip", "protocol", "sni"

	Ports    []int  `yaml:"ports"`
	SetName  string `yaml:"setName"`
	Protocol string `yaml:"protocol"`
	Hostname string `yaml:"hostname"`
}

// yamlRules is the top-level shape of rules.yaml: a dictionary of named
// routing-tree fragments.
type yamlRules struct {
	Rules map[string]yamlNode `yaml:"rules"`
}

// yamlNameServer is the on-disk shape of one DNS upstream.
type yamlNameServer struct {
	Name string `yaml:"name"`
	// URL is either "udp://ip:port" or "socks5://proxy-ip:port->resolver-ip:port".
	URL string `yaml:"url"`
	// Timeout is parsed but not applied: every upstream query is bounded
	// by the proxy's single UpstreamTimeout, which the loader leaves at
	// zero so dnsproxy.DefaultUpstreamTimeout applies.
	Timeout time.Duration `yaml:"timeout"`
}

// yamlDNS is the top-level shape of the optional dns.yaml.
type yamlDNS struct {
	Bind        string           `yaml:"bind"`
	Rule        string           `yaml:"rule"`
	NameServers []yamlNameServer `yaml:"nameservers"`
}

// reservedNames are the identifiers forbidden as user-defined rule or
// egress names, checked over both dictionaries together.
var reservedNames = map[string]struct{}{
	"bind":   {},
	"else":   {},
	"socks5": {},
	"direct": {},
	"reset":  {},
	"any":    {},
	"cond":   {},
}
