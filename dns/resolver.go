// Copyright 2024 Jigsaw Operations LLC
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

package dns

import (
	"context"
	"sync"
	"time"

	"github.com/latticegate/relay/transport"
	"golang.org/x/net/dns/dnsmessage"
)

// Resolver answers a single DNS question. It is the primary abstraction used
// by callers that need to map a domain name to an address; the transport
// used to reach the upstream nameserver is hidden behind it.
type Resolver interface {
	Query(ctx context.Context, q dnsmessage.Question) (*dnsmessage.Message, error)
}

// FuncResolver is a [Resolver] that uses the given function to answer queries.
type FuncResolver func(ctx context.Context, q dnsmessage.Question) (*dnsmessage.Message, error)

// Query implements [Resolver].
func (f FuncResolver) Query(ctx context.Context, q dnsmessage.Question) (*dnsmessage.Message, error) {
	return f(ctx, q)
}

// NewResolver creates a [Resolver] that answers queries by issuing a single
// DNS transaction over rt.
func NewResolver(rt RoundTripper) Resolver {
	return FuncResolver(func(ctx context.Context, q dnsmessage.Question) (*dnsmessage.Message, error) {
		return rt.RoundTrip(ctx, q)
	})
}

// NewUDPResolver creates a [Resolver] that queries resolverAddr over
// DNS-over-UDP, using pd to reach it.
func NewUDPResolver(pd transport.PacketDialer, resolverAddr string) Resolver {
	return NewResolver(NewUDPRoundTripper(pd, resolverAddr))
}

// NewTCPResolver creates a [Resolver] that queries resolverAddr over
// DNS-over-TCP, using sd to reach it. sd may tunnel the connection through
// an upstream SOCKS5 proxy.
func NewTCPResolver(sd transport.StreamDialer, resolverAddr string) Resolver {
	return NewResolver(NewTCPRoundTripper(sd, resolverAddr))
}

type cacheEntry struct {
	msg     *dnsmessage.Message
	expires time.Time
}

// CachingResolver wraps a [Resolver] with an in-memory answer cache, keyed by
// question name, type and class. An entry is kept until the TTL of its
// weakest record expires; negative and failed answers are never cached.
//
// A CachingResolver is safe for concurrent use. It is the DNS proxy's only
// mutable shared state outside of its static configuration, and must remain
// internally synchronized.
type CachingResolver struct {
	upstream Resolver
	minTTL   time.Duration
	maxTTL   time.Duration

	mu      sync.Mutex
	entries map[dnsmessage.Question]cacheEntry
}

var _ Resolver = (*CachingResolver)(nil)

// NewCachingResolver wraps upstream with an answer cache. TTLs observed from
// upstream are clamped to [minTTL, maxTTL] before being applied to a cache
// entry; a maxTTL of 0 means no cap.
func NewCachingResolver(upstream Resolver, minTTL, maxTTL time.Duration) *CachingResolver {
	return &CachingResolver{
		upstream: upstream,
		minTTL:   minTTL,
		maxTTL:   maxTTL,
		entries:  make(map[dnsmessage.Question]cacheEntry),
	}
}

// Query implements [Resolver]. It serves a cached answer when one is fresh,
// otherwise queries upstream and caches the result according to its TTL.
func (c *CachingResolver) Query(ctx context.Context, q dnsmessage.Question) (*dnsmessage.Message, error) {
	if msg, ok := c.lookup(q); ok {
		return msg, nil
	}
	msg, err := c.upstream.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	c.store(q, msg)
	return msg, nil
}

func (c *CachingResolver) lookup(q dnsmessage.Question) (*dnsmessage.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[q]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, q)
		return nil, false
	}
	return entry.msg, true
}

func (c *CachingResolver) store(q dnsmessage.Question, msg *dnsmessage.Message) {
	if msg.RCode != dnsmessage.RCodeSuccess || len(msg.Answers) == 0 {
		return
	}
	ttl := minAnswerTTL(msg)
	if c.minTTL > 0 && ttl < c.minTTL {
		ttl = c.minTTL
	}
	if c.maxTTL > 0 && ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[q] = cacheEntry{msg: msg, expires: time.Now().Add(ttl)}
}

func minAnswerTTL(msg *dnsmessage.Message) time.Duration {
	var min uint32
	for i, answer := range msg.Answers {
		if i == 0 || answer.Header.TTL < min {
			min = answer.Header.TTL
		}
	}
	return time.Duration(min) * time.Second
}
