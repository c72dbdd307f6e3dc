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
	"github.com/latticegate/relay/internal/egress"
	"github.com/latticegate/relay/internal/route"
)

// link resolves every reference builder collected against the built
// egress table and rule dictionary, mutating each refVal from Ref(name)
// to Val(x) exactly once. It is the only place a refVal is written after
// parsing.
func link(b *builder, egresses egress.Table, rules route.Rules) error {
	for _, r := range b.egressRefs {
		e, ok := egresses[r.name]
		if !ok {
			return newError(UnresolvedRef, "egress %q is not defined", r.name)
		}
		r.resolve(e)
	}
	for _, r := range b.ruleRefs {
		n, ok := rules[r.name]
		if !ok {
			return newError(UnresolvedRef, "rule %q is not defined", r.name)
		}
		r.resolve(n)
	}
	return nil
}

// checkReservedNames rejects any egress or rule name that collides with a
// reserved identifier, over both dictionaries together.
func checkReservedNames(egressNames, ruleNames []string) error {
	for _, name := range egressNames {
		if _, reserved := reservedNames[name]; reserved {
			return newError(ReservedName, "egress name %q is reserved", name)
		}
	}
	for _, name := range ruleNames {
		if _, reserved := reservedNames[name]; reserved {
			return newError(ReservedName, "rule name %q is reserved", name)
		}
	}
	return nil
}

// checkRuleCycles walks the named-rule reference graph built from the raw
// YAML (before parseNode ever runs) and fails fast if it is not acyclic.
// The engine's own Facts.enterRule check is a second line of defense at
// evaluation time; this is the first.
func checkRuleCycles(rawRules map[string]yamlNode) error {
	refs := make(map[string][]string, len(rawRules))
	for name, node := range rawRules {
		refs[name] = collectRuleRefs(node)
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(refs))

	var visit func(name string, stack []string) error
	visit = func(name string, stack []string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return newError(CycleInRules, "cycle detected re-entering rule %q (visiting %v)", name, append(stack, name))
		}
		state[name] = visiting
		for _, next := range refs[name] {
			if _, defined := refs[next]; !defined {
				// An unresolved rule reference is reported by the
				// normal linking pass; skip it here so one bad
				// reference doesn't also surface as a false cycle.
				continue
			}
			if err := visit(next, append(stack, name)); err != nil {
				return err
			}
		}
		state[name] = visited
		return nil
	}

	for name := range refs {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

func collectRuleRefs(y yamlNode) []string {
	switch y.Kind {
	case "rule":
		return []string{y.Name}
	case "sequence":
		var out []string
		for _, c := range y.Children {
			out = append(out, collectRuleRefs(c)...)
		}
		return out
	case "if":
		var out []string
		if y.Then != nil {
			out = append(out, collectRuleRefs(*y.Then)...)
		}
		if y.Else != nil {
			out = append(out, collectRuleRefs(*y.Else)...)
		}
		return out
	default:
		return nil
	}
}
