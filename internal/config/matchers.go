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
	"bufio"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"github.com/latticegate/relay/internal/match"
	"github.com/latticegate/relay/internal/route"
)

// loadMatchers builds the domain and IP matchers from domains/*.txt and
// ips/*.txt under dir, one named set per file (the file's base name, minus
// its extension, is the set name). Either directory may be absent, in
// which case that matcher has no sets.
func loadMatchers(dir string) (*route.Matchers, error) {
	domainSets, err := loadLineSets(filepath.Join(dir, "domains"))
	if err != nil {
		return nil, err
	}
	ipLines, err := loadLineSets(filepath.Join(dir, "ips"))
	if err != nil {
		return nil, err
	}

	ipSets := make(map[string][]netip.Prefix, len(ipLines))
	for name, lines := range ipLines {
		prefixes := make([]netip.Prefix, 0, len(lines))
		for _, line := range lines {
			pfx, err := parsePrefix(line)
			if err != nil {
				return nil, newError(BadMatcherFile, "ip set %q: %v", name, err)
			}
			prefixes = append(prefixes, pfx)
		}
		ipSets[name] = prefixes
	}

	ipMatcher, err := match.NewIPMatcher(ipSets)
	if err != nil {
		return nil, newError(BadMatcherFile, "%v", err)
	}

	return &route.Matchers{Domain: match.NewDomainMatcher(domainSets), IP: ipMatcher}, nil
}

// parsePrefix accepts either a bare IP (treated as a /32 or /128 host
// route) or a CIDR.
func parsePrefix(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		return netip.ParsePrefix(s)
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// loadLineSets reads every *.txt file in dir into a set keyed by its base
// name, one non-empty, non-comment line per pattern. A missing dir yields
// an empty result, not an error: domains/ or ips/ is optional when a
// deployment only needs one kind of set.
func loadLineSets(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, newError(BadMatcherFile, "%v", err)
	}

	sets := make(map[string][]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".txt" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".txt")
		lines, err := readLines(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, newError(BadMatcherFile, "%s: %v", entry.Name(), err)
		}
		sets[name] = lines
	}
	return sets, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
