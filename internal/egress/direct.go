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

package egress

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/latticegate/relay/transport"
	"github.com/latticegate/relay/transport/happyeyeballs"
)

// DirectError classifies a Direct egress dial failure.
type DirectError struct {
	Kind DirectErrorKind
	Err  error
}

type DirectErrorKind int

const (
	DirectDNSFail DirectErrorKind = iota
	DirectConnectRefused
	DirectUnreachable
	DirectTimeout
)

func (e *DirectError) Error() string {
	return fmt.Sprintf("egress: direct dial failed (%v): %v", e.Kind, e.Err)
}

func (e *DirectError) Unwrap() error { return e.Err }

func (k DirectErrorKind) String() string {
	switch k {
	case DirectDNSFail:
		return "dns-fail"
	case DirectConnectRefused:
		return "connection-refused"
	case DirectTimeout:
		return "timeout"
	default:
		return "unreachable"
	}
}

// DefaultDialTimeout is applied to a Direct dial unless the adapter is
// built with a different value.
const DefaultDialTimeout = 10 * time.Second

// directAdapter dials a destination directly, iterating every resolved
// address on failure rather than giving up after the first (the
// multi-IP fallback open question is resolved as a requirement here).
type directAdapter struct {
	dialer  *happyeyeballs.StreamDialer
	timeout time.Duration
}

// NewDirect builds the Direct egress adapter. resolve may be nil to use the
// system resolver for both address families.
func NewDirect(name string, resolve func(ctx context.Context, network, host string) ([]net.IP, error), timeout time.Duration) *Egress {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	dialer := &happyeyeballs.StreamDialer{}
	if resolve != nil {
		dialer.LookupIPv4 = func(ctx context.Context, host string) ([]net.IP, error) {
			return resolve(ctx, "ip4", host)
		}
		dialer.LookupIPv6 = func(ctx context.Context, host string) ([]net.IP, error) {
			return resolve(ctx, "ip6", host)
		}
	}
	return &Egress{
		Name:    name,
		Kind:    KindDirect,
		Adapter: &directAdapter{dialer: dialer, timeout: timeout},
	}
}

func (a *directAdapter) Dial(ctx context.Context, dest string) (transport.StreamConn, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	conn, err := a.dialer.Dial(ctx, dest)
	if err == nil {
		return conn, nil
	}
	return nil, classifyDirectError(err)
}

func classifyDirectError(err error) *DirectError {
	kind := DirectUnreachable
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = DirectTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = DirectConnectRefused
	case errors.As(err, &dnsErr):
		kind = DirectDNSFail
	}
	return &DirectError{Kind: kind, Err: err}
}
