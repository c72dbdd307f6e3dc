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

import "fmt"

// CycleError reports that evaluation revisited a NamedRule already on the
// visit stack. The config loader is expected to reject cyclic rule graphs
// before the engine ever sees them; this is the second line of defense
// mentioned in the data model, guarding against a config-layer bug rather
// than something a well-formed configuration can trigger.
type CycleError struct {
	Rule  string
	Stack []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("route: cycle detected re-entering rule %q (visiting %v)", e.Rule, e.Stack)
}

// UnresolvedRuleError reports a NamedRule leaf naming a rule absent from
// the rule table handed to Decide. Like CycleError, a correctly linked
// configuration never produces this.
type UnresolvedRuleError struct {
	Rule string
}

func (e *UnresolvedRuleError) Error() string {
	return fmt.Sprintf("route: no rule named %q", e.Rule)
}

// Rules maps rule names to their root node, as built by the config linking
// pass.
type Rules map[string]*Node

// Decide evaluates tree against facts and returns the action it resolves
// to. The result may be Abstain: the caller (typically the SOCKS5 listener
// or the DNS router) is responsible for deciding what Abstain means at the
// top of its own tree; per the data model, the top-level caller promotes
// Abstain to Reset.
func Decide(tree *Node, rules Rules, facts *Facts) (Action, error) {
	return decide(tree, rules, facts)
}

// Evaluate is Decide plus the top-level Abstain-to-Reset promotion.
func Evaluate(tree *Node, rules Rules, facts *Facts) Action {
	action, err := Decide(tree, rules, facts)
	if err != nil {
		return Action{Kind: ActionReset}
	}
	if action.Kind == Abstain {
		return Action{Kind: ActionReset}
	}
	return action
}

func decide(node *Node, rules Rules, facts *Facts) (Action, error) {
	switch node.Kind {
	case KindReset:
		return Action{Kind: ActionReset}, nil

	case KindEgress:
		return Action{Kind: ActionEgress, EgressName: node.Name}, nil

	case KindNamedRule:
		target, ok := rules[node.Name]
		if !ok {
			return Action{}, &UnresolvedRuleError{Rule: node.Name}
		}
		if err := facts.enterRule(node.Name); err != nil {
			return Action{}, err
		}
		defer facts.exitRule()
		return decide(target, rules, facts)

	case KindSequence:
		for _, child := range node.Children {
			action, err := decide(child, rules, facts)
			if err != nil {
				return Action{}, err
			}
			if action.Kind != Abstain {
				return action, nil
			}
		}
		return Action{Kind: Abstain}, nil

	case KindConditional:
		result := node.Pred.Eval(facts)
		if result == True {
			return decide(node.Then, rules, facts)
		}
		return decide(node.Else, rules, facts)

	default:
		return Action{}, fmt.Errorf("route: unknown node kind %d", node.Kind)
	}
}
