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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDomainMatcherExactAndSuffix(t *testing.T) {
	m := NewDomainMatcher(map[string][]string{
		"blocked": {".ads.example", "tracker.test"},
		"vip":     {"example.test"},
	})

	require.True(t, m.Contains("ads.example", "blocked"))
	require.True(t, m.Contains("sub.ads.example", "blocked"))
	require.False(t, m.Contains("ads.example.evil", "blocked"))

	require.True(t, m.Contains("tracker.test", "blocked"))
	require.False(t, m.Contains("sub.tracker.test", "blocked"))

	require.True(t, m.Contains("example.test", "vip"))
	require.False(t, m.Contains("sub.example.test", "vip"))
}

func TestDomainMatcherSetsUnion(t *testing.T) {
	m := NewDomainMatcher(map[string][]string{
		"a": {".example.com"},
		"b": {"www.example.com"},
	})
	sets := m.Sets("www.example.com")
	require.ElementsMatch(t, []string{"a", "b"}, sets)
}

func TestDomainMatcherByteExact(t *testing.T) {
	m := NewDomainMatcher(map[string][]string{
		"caps": {".Example.com"},
	})
	require.False(t, m.Contains("sub.example.com", "caps"))
	require.True(t, m.Contains("sub.Example.com", "caps"))
}

func TestDomainMatcherEmptyQuery(t *testing.T) {
	m := NewDomainMatcher(map[string][]string{"any": {".example.com"}})
	require.Empty(t, m.Sets(""))
}
