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

// Package dnsproxy implements the DNS router: it answers queries
// received over UDP by selecting an upstream nameserver through the same
// routing engine the TCP relays use, evaluated against a domain-only fact
// set, and forwards the query to whichever upstream the decision names.
package dnsproxy

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/latticegate/relay/dns"
	"github.com/latticegate/relay/internal/route"
	"golang.org/x/net/dns/dnsmessage"
)

// DefaultUpstreamTimeout bounds how long the single selected upstream's
// query is allowed to take before the proxy gives up and answers SERVFAIL.
const DefaultUpstreamTimeout = 5 * time.Second

// Proxy answers DNS queries received on a UDP socket, selecting an upstream
// resolver per query name via a routing tree evaluated over a domain-only
// Facts set.
type Proxy struct {
	Tree    *route.Node
	Rules   route.Rules
	Matches *route.Matchers
	// Upstreams maps an egress-style name (as named in Tree) to the
	// Resolver that serves it.
	Upstreams map[string]dns.Resolver

	// UpstreamTimeout bounds each upstream query. Zero uses
	// DefaultUpstreamTimeout.
	UpstreamTimeout time.Duration
}

// ErrNoUpstreamMatched is returned when the routing tree abstains (or
// resets) for a query; the caller answers SERVFAIL.
var ErrNoUpstreamMatched = errors.New("dnsproxy: no upstream matched")

// ErrUnknownUpstream is returned when the tree names an upstream absent
// from Upstreams; a correctly linked configuration never produces this.
var ErrUnknownUpstream = errors.New("dnsproxy: tree names an unconfigured upstream")

// Resolve answers a single question by evaluating the routing tree against
// the question's name and forwarding to the selected upstream.
func (p *Proxy) Resolve(ctx context.Context, q dnsmessage.Question) (*dnsmessage.Message, error) {
	// dnsmessage always renders a fully-qualified name with a trailing
	// dot; domain sets are authored without one.
	name := strings.TrimSuffix(q.Name.String(), ".")
	facts := route.NewFacts(ctx, name, 0, p.Matches, nil, nil, nil)

	action := route.Evaluate(p.Tree, p.Rules, facts)
	if action.Kind != route.ActionEgress {
		return nil, ErrNoUpstreamMatched
	}

	upstream, ok := p.Upstreams[action.EgressName]
	if !ok {
		return nil, ErrUnknownUpstream
	}

	if trace := dns.GetDNSClientTrace(ctx); trace != nil && trace.QuestionReady != nil {
		trace.QuestionReady(q)
	}

	timeout := p.UpstreamTimeout
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := upstream.Query(qctx, q)
	if trace := dns.GetDNSClientTrace(ctx); trace != nil && trace.ResponseDone != nil {
		trace.ResponseDone(q, resp, err)
	}
	return resp, err
}

// ListenAndServe listens on bind for DNS-over-UDP queries and answers them
// until ctx is canceled. A resolution failure or a tree that selects no
// upstream produces a SERVFAIL reply to the client rather than silence. A
// request that cannot be decoded, or that carries no question, is dropped
// without a reply.
func (p *Proxy) ListenAndServe(ctx context.Context, bind string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	conn, err := net.ListenPacket("udp", bind)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 1500)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		reqBuf := append([]byte(nil), buf[:n]...)
		go p.handle(ctx, conn, addr, reqBuf, log)
	}
}

func (p *Proxy) handle(ctx context.Context, conn net.PacketConn, addr net.Addr, reqBuf []byte, log *slog.Logger) {
	var req dnsmessage.Message
	if err := req.Unpack(reqBuf); err != nil {
		log.Debug("dnsproxy: malformed query", "addr", addr, "err", err)
		return
	}
	if len(req.Questions) == 0 {
		return
	}
	q := req.Questions[0]
	log = log.With("query", q.Name.String(), "type", q.Type.String())

	resp, err := p.Resolve(ctx, q)
	if err != nil {
		log.Warn("dnsproxy: resolution failed", "err", err)
		resp = servfail(req.ID, q)
	}

	out, err := resp.Pack()
	if err != nil {
		log.Warn("dnsproxy: failed to pack response", "err", err)
		return
	}
	if _, err := conn.WriteTo(out, addr); err != nil {
		log.Warn("dnsproxy: failed to write response", "err", err)
	}
}

func servfail(id uint16, q dnsmessage.Question) *dnsmessage.Message {
	return &dnsmessage.Message{
		Header:    dnsmessage.Header{ID: id, Response: true, RCode: dnsmessage.RCodeServerFailure},
		Questions: []dnsmessage.Question{q},
	}
}
