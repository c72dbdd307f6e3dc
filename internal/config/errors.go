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

import "fmt"

// Kind discriminates which class of fatal error a config load failed with.
type Kind int

const (
	// UnresolvedRef: an Egress(name) or NamedRule(name) names an entry
	// absent from its dictionary.
	UnresolvedRef Kind = iota
	// CycleInRules: the named-rule reference graph is not acyclic.
	CycleInRules
	// ReservedName: a rule or egress name collides with a reserved
	// identifier.
	ReservedName
	// BadMatcherFile: a domain/IP set file is malformed.
	BadMatcherFile
	// BadYAML: a config file failed to parse as YAML, or a node used a
	// kind or atyp not in its closed set.
	BadYAML
)

func (k Kind) String() string {
	switch k {
	case UnresolvedRef:
		return "UnresolvedRef"
	case CycleInRules:
		return "CycleInRules"
	case ReservedName:
		return "ReservedName"
	case BadMatcherFile:
		return "BadMatcherFile"
	case BadYAML:
		return "BadYAML"
	default:
		return "Unknown"
	}
}

// Error is a fatal configuration-load error. Every error Load returns
// (other than a missing directory, reported separately) is an *Error.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Kind, e.Detail)
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
