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

// builder accumulates the unresolved references a routing tree makes while
// its nodes are parsed from YAML, for the linking pass to resolve
// afterwards. The route.Node tree itself is built immediately and always
// carries the plain name string (the engine resolves Egress/NamedRule
// names against its tables at evaluation time); the refVals exist purely
// so the loader can validate every reference once, up front, rather than
// deferring discovery of a typo to the first connection that hits it.
type builder struct {
	egressRefs []*refVal[*egress.Egress]
	ruleRefs   []*refVal[*route.Node]
}

func (b *builder) parseNode(y yamlNode) (*route.Node, error) {
	switch y.Kind {
	case "reset":
		return route.Reset(), nil

	case "egress":
		r := ref[*egress.Egress](y.Name)
		b.egressRefs = append(b.egressRefs, &r)
		return route.Egress(y.Name), nil

	case "rule":
		r := ref[*route.Node](y.Name)
		b.ruleRefs = append(b.ruleRefs, &r)
		return route.NamedRule(y.Name), nil

	case "sequence":
		children := make([]*route.Node, 0, len(y.Children))
		for _, c := range y.Children {
			child, err := b.parseNode(c)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return route.Sequence(children...), nil

	case "if":
		pred, err := parsePredicate(y.Pred)
		if err != nil {
			return nil, err
		}
		if y.Then == nil || y.Else == nil {
			return nil, newError(BadYAML, "if node requires both then and else")
		}
		then, err := b.parseNode(*y.Then)
		if err != nil {
			return nil, err
		}
		els, err := b.parseNode(*y.Else)
		if err != nil {
			return nil, err
		}
		return route.If(pred, then, els), nil

	default:
		return nil, newError(BadYAML, "unknown node kind %q", y.Kind)
	}
}

func parsePredicate(y yamlPredicate) (route.Predicate, error) {
	switch y.Kind {
	case "any", "else":
		return route.AnyPredicate{}, nil
	case "port":
		return route.NewPortPredicate(y.Ports...), nil
	case "domain":
		return route.DomainSetPredicate{SetName: y.SetName}, nil
	case "ip":
		return route.IPSetPredicate{SetName: y.SetName}, nil
	case "protocol":
		return route.ProtocolPredicate{Protocol: y.Protocol}, nil
	case "sni":
		return route.SNIPredicate{Hostname: y.Hostname}, nil
	default:
		return nil, newError(BadYAML, "unknown predicate kind %q", y.Kind)
	}
}
