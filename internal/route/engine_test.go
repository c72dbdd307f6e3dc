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
	"testing"

	"github.com/latticegate/relay/internal/match"
	"github.com/stretchr/testify/require"
)

func TestDecideSequenceFirstMatchWins(t *testing.T) {
	tree := Sequence(
		If(PortPredicate{Ports: map[int]struct{}{22: {}}}, Egress("ssh"), Sequence()),
		If(PortPredicate{Ports: map[int]struct{}{443: {}}}, Egress("https"), Sequence()),
		Egress("default"),
	)
	facts := NewFacts(context.Background(), "example.test", 443, nil, nil, nil, nil)

	action, err := Decide(tree, nil, facts)
	require.NoError(t, err)
	require.Equal(t, Action{Kind: ActionEgress, EgressName: "https"}, action)
}

func TestDecideAbstainsWhenNothingMatches(t *testing.T) {
	tree := Sequence(
		If(PortPredicate{Ports: map[int]struct{}{22: {}}}, Egress("ssh"), Sequence()),
	)
	facts := NewFacts(context.Background(), "example.test", 443, nil, nil, nil, nil)

	action, err := Decide(tree, nil, facts)
	require.NoError(t, err)
	require.Equal(t, Abstain, action.Kind)

	require.Equal(t, Action{Kind: ActionReset}, Evaluate(tree, nil, facts))
}

func TestDecideDomainSetPredicate(t *testing.T) {
	matchers := &Matchers{Domain: match.NewDomainMatcher(map[string][]string{
		"blocked": {"example.test"},
	})}
	tree := If(DomainSetPredicate{SetName: "blocked"}, Reset(), Egress("proxy"))

	blockedFacts := NewFacts(context.Background(), "example.test", 443, matchers, nil, nil, nil)
	action, err := Decide(tree, nil, blockedFacts)
	require.NoError(t, err)
	require.Equal(t, Action{Kind: ActionReset}, action)

	allowedFacts := NewFacts(context.Background(), "other.test", 443, matchers, nil, nil, nil)
	action, err = Decide(tree, nil, allowedFacts)
	require.NoError(t, err)
	require.Equal(t, Action{Kind: ActionEgress, EgressName: "proxy"}, action)
}

func TestDecideUnknownSNITreatedAsFalse(t *testing.T) {
	tree := If(SNIPredicate{Hostname: "foo.example"}, Egress("a"), Egress("b"))

	// SNI unresolved (inspector gave up or timed out): predicate is Unknown,
	// engine treats it as false.
	facts := NewFacts(context.Background(), "1.2.3.4", 443, nil, nil, nil, nil)
	action, err := Decide(tree, nil, facts)
	require.NoError(t, err)
	require.Equal(t, Action{Kind: ActionEgress, EgressName: "b"}, action)

	knownFacts := NewFacts(context.Background(), "1.2.3.4", 443, nil, nil, func() (string, bool) {
		return "foo.example", true
	}, nil)
	action, err = Decide(tree, nil, knownFacts)
	require.NoError(t, err)
	require.Equal(t, Action{Kind: ActionEgress, EgressName: "a"}, action)
}

func TestDecideNamedRuleIndirection(t *testing.T) {
	rules := Rules{
		"inner": Egress("direct"),
	}
	tree := NamedRule("inner")
	facts := NewFacts(context.Background(), "example.test", 80, nil, nil, nil, nil)

	action, err := Decide(tree, rules, facts)
	require.NoError(t, err)
	require.Equal(t, Action{Kind: ActionEgress, EgressName: "direct"}, action)
}

func TestDecideDetectsCycle(t *testing.T) {
	rules := Rules{
		"a": NamedRule("b"),
		"b": NamedRule("a"),
	}
	facts := NewFacts(context.Background(), "example.test", 80, nil, nil, nil, nil)

	_, err := Decide(NamedRule("a"), rules, facts)
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestDecideUnresolvedNamedRule(t *testing.T) {
	facts := NewFacts(context.Background(), "example.test", 80, nil, nil, nil, nil)
	_, err := Decide(NamedRule("missing"), Rules{}, facts)
	require.Error(t, err)
	var unresolved *UnresolvedRuleError
	require.ErrorAs(t, err, &unresolved)
}

func TestDecideIsDeterministic(t *testing.T) {
	matchers := &Matchers{IP: mustIPMatcher(t)}
	tree := If(IPSetPredicate{SetName: "private"}, Reset(), Egress("direct"))
	resolve := func(ctx context.Context, host string) ([]netip.Addr, error) {
		return []netip.Addr{netip.MustParseAddr("10.0.0.5")}, nil
	}

	facts := NewFacts(context.Background(), "internal.example", 80, matchers, resolve, nil, nil)
	first, err := Decide(tree, nil, facts)
	require.NoError(t, err)

	facts2 := NewFacts(context.Background(), "internal.example", 80, matchers, resolve, nil, nil)
	second, err := Decide(tree, nil, facts2)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, Action{Kind: ActionReset}, first)
}

func mustIPMatcher(t *testing.T) *match.IPMatcher {
	t.Helper()
	m, err := match.NewIPMatcher(map[string][]netip.Prefix{
		"private": {netip.MustParsePrefix("10.0.0.0/8")},
	})
	require.NoError(t, err)
	return m
}
