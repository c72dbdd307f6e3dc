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
	"errors"
	"os"
	"path/filepath"

	"github.com/latticegate/relay/internal/egress"
	"github.com/latticegate/relay/internal/route"
	"gopkg.in/yaml.v3"
)

// ErrDirMissing is returned by Load when the config directory does not
// exist. The caller maps this to process exit code 99.
var ErrDirMissing = errors.New("config: config directory does not exist")

// RelaySpec is one linked relay ready to hand to the listener.
type RelaySpec struct {
	Name string
	Bind string
	Tree *route.Node
}

// Config is the fully linked configuration the relay core consumes: every
// Egress(name) and NamedRule(name) reachable from a relay or the DNS
// proxy's tree has been confirmed to resolve, the rule-name graph has been
// confirmed acyclic, and no rule or egress name collides with a reserved
// identifier.
type Config struct {
	Relays  []RelaySpec
	Egress  egress.Table
	Rules   route.Rules
	Matches *route.Matchers
	DNS     *DNS // nil if dns.yaml is absent
}

// Load reads dir and returns a fully linked Config, or a *Error
// describing the first config problem encountered. A missing dir returns
// ErrDirMissing, distinguished so the caller can choose exit code 99
// instead of 100.
func Load(dir string) (*Config, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, ErrDirMissing
	}

	var rawEgresses yamlEgresses
	if err := readYAML(filepath.Join(dir, "egresses.yaml"), &rawEgresses); err != nil {
		return nil, err
	}
	egressTable, err := buildEgressTable(rawEgresses)
	if err != nil {
		return nil, err
	}

	var rawRules yamlRules
	if err := readYAML(filepath.Join(dir, "rules.yaml"), &rawRules); err != nil {
		return nil, err
	}
	if err := checkRuleCycles(rawRules.Rules); err != nil {
		return nil, err
	}

	egressNames := make([]string, 0, len(egressTable))
	for name := range egressTable {
		egressNames = append(egressNames, name)
	}
	ruleNames := make([]string, 0, len(rawRules.Rules))
	for name := range rawRules.Rules {
		ruleNames = append(ruleNames, name)
	}
	if err := checkReservedNames(egressNames, ruleNames); err != nil {
		return nil, err
	}

	b := &builder{}
	rules := make(route.Rules, len(rawRules.Rules))
	for name, node := range rawRules.Rules {
		parsed, err := b.parseNode(node)
		if err != nil {
			return nil, err
		}
		rules[name] = parsed
	}

	var rawRelays yamlRelays
	if err := readYAML(filepath.Join(dir, "relays.yaml"), &rawRelays); err != nil {
		return nil, err
	}
	relays := make([]RelaySpec, 0, len(rawRelays.Relays))
	for _, r := range rawRelays.Relays {
		ruleRef := ref[*route.Node](r.Rule)
		b.ruleRefs = append(b.ruleRefs, &ruleRef)
		relays = append(relays, RelaySpec{Name: r.Name, Bind: r.Bind, Tree: route.NamedRule(r.Rule)})
	}

	matches, err := loadMatchers(dir)
	if err != nil {
		return nil, err
	}

	var rawDNS *yamlDNS
	if path := filepath.Join(dir, "dns.yaml"); fileExists(path) {
		var d yamlDNS
		if err := readYAML(path, &d); err != nil {
			return nil, err
		}
		rawDNS = &d
	}
	dnsConf, err := buildDNS(rawDNS, b, matches)
	if err != nil {
		return nil, err
	}
	if dnsConf != nil {
		dnsConf.Proxy.Rules = rules
	}

	if err := link(b, egressTable, rules); err != nil {
		return nil, err
	}

	return &Config{
		Relays:  relays,
		Egress:  egressTable,
		Rules:   rules,
		Matches: matches,
		DNS:     dnsConf,
	}, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newError(BadYAML, "%v", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return newError(BadYAML, "%s: %v", filepath.Base(path), err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
