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

// Package egress implements the three egress kinds a routing decision can
// select: a direct kernel dial, a dial tunneled through an upstream SOCKS5
// proxy, and a reset. Each adapter produces a transport.StreamConn ready to
// be handed to the splicer.
package egress

import (
	"context"
	"errors"
	"fmt"

	"github.com/latticegate/relay/transport"
)

// Kind discriminates an Egress entry.
type Kind int

const (
	KindDirect Kind = iota
	KindSocks5
	KindReset
)

// ErrReset is returned by Reset's Dial to signal the connection should be
// closed immediately; it carries no further information.
var ErrReset = errors.New("egress: reset")

// Adapter dials the egress's destination for a given request address.
type Adapter interface {
	Dial(ctx context.Context, dest string) (transport.StreamConn, error)
}

// Egress is one named entry in the egress table.
type Egress struct {
	Name    string
	Kind    Kind
	Adapter Adapter
}

// Table is the immutable, named collection of egresses built once at
// startup and shared by reference across every connection.
type Table map[string]*Egress

// Dial resolves name in the table and dials dest through it.
func (t Table) Dial(ctx context.Context, name, dest string) (transport.StreamConn, error) {
	e, ok := t[name]
	if !ok {
		return nil, fmt.Errorf("egress: no egress named %q", name)
	}
	return e.Adapter.Dial(ctx, dest)
}

// resetAdapter always reports ErrReset.
type resetAdapter struct{}

func (resetAdapter) Dial(context.Context, string) (transport.StreamConn, error) {
	return nil, ErrReset
}

// NewReset builds the Reset egress adapter.
func NewReset(name string) *Egress {
	return &Egress{Name: name, Kind: KindReset, Adapter: resetAdapter{}}
}
