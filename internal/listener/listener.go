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

// Package listener runs the SOCKS5 server side of a relay: accepts
// connections, drives the handshake/request/dispatch/forward state
// machine, and hands the resulting pair of streams to the splicer.
package listener

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/latticegate/relay/internal/egress"
	"github.com/latticegate/relay/internal/inspect"
	"github.com/latticegate/relay/internal/route"
	"github.com/latticegate/relay/internal/socks5wire"
	"github.com/latticegate/relay/internal/splice"
	"github.com/latticegate/relay/transport"
	"github.com/things-go/go-socks5/statute"
)

// Resolve maps a host name to its addresses. It is consulted only by the
// routing engine's IP-set predicate; a nil Resolve makes IP-set predicates
// evaluate Unknown for a domain-name destination.
type Resolve func(ctx context.Context, host string) ([]netip.Addr, error)

// Relay is one configured SOCKS5 front end: a bind address, the root of its
// routing tree, and the shared tables it evaluates against.
type Relay struct {
	Name    string
	Bind    string
	Tree    *route.Node
	Rules   route.Rules
	Matches *route.Matchers
	Egress  egress.Table
	Resolve Resolve

	// IdleTimeout bounds how long the splicer waits between bytes before
	// closing both sides of a forwarded connection. Zero uses
	// splice.DefaultIdleTimeout.
	IdleTimeout time.Duration
	// InspectBudget bounds how long the SNI inspector waits for enough
	// bytes to make a determination. Zero uses inspect.Budget.
	InspectBudget time.Duration
}

// Serve accepts connections on ln until ctx is canceled or Accept fails,
// handling each on its own goroutine. It always closes ln before returning.
func (r *Relay) Serve(ctx context.Context, ln net.Listener, log *slog.Logger) error {
	defer ln.Close()
	if log == nil {
		log = slog.Default()
	}
	log = log.With("relay", r.Name)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		streamConn, ok := conn.(transport.StreamConn)
		if !ok {
			conn.Close()
			continue
		}
		go r.handle(ctx, streamConn, log)
	}
}

func (r *Relay) handle(ctx context.Context, conn transport.StreamConn, log *slog.Logger) {
	defer conn.Close()
	log = log.With("client", conn.RemoteAddr().String())

	dest, err := r.handshake(conn)
	if err != nil {
		log.Warn("socks5 handshake failed", "err", err)
		return
	}
	log = log.With("dest", dest.Dest.String())

	// The routing tree isn't statically analyzed for which predicates it
	// references, so every connection is inspected; SNI/protocol facts
	// simply stay Unknown when the tree never asks for them.
	forwarded, result := inspect.Peek(conn, r.InspectBudget)

	host := dest.Dest.Name
	if dest.Dest.IP != nil {
		host = dest.Dest.IP.String()
	}
	facts := route.NewFacts(ctx, host, int(dest.Dest.Port), r.Matches,
		func(ctx context.Context, host string) ([]netip.Addr, error) {
			if r.Resolve == nil {
				return nil, errors.New("listener: no resolver configured")
			}
			return r.Resolve(ctx, host)
		},
		func() (string, bool) { return result.SNI, result.SNI != "" },
		func() (string, bool) { return result.Protocol, result.Protocol != "" },
	)

	action := route.Evaluate(r.Tree, r.Rules, facts)
	if action.Kind == route.ActionReset {
		log.Debug("routed to reset")
		return
	}

	upstream, err := r.Egress.Dial(ctx, action.EgressName, dest.Dest.String())
	if err != nil {
		if errors.Is(err, egress.ErrReset) {
			log.Debug("egress reset", "egress", action.EgressName)
		} else {
			log.Warn("egress dial failed", "egress", action.EgressName, "err", err)
		}
		return
	}

	stats := splice.Pipe(forwarded, upstream, r.IdleTimeout, log)
	log.Debug("connection closed", "bytes_up", stats.BytesUp, "bytes_down", stats.BytesDown)
}

// handshake drives AwaitGreeting and AwaitRequest, replying with the
// pre-dial SUCCEEDED once a CONNECT request parses.
func (r *Relay) handshake(conn transport.StreamConn) (socks5wire.Request, error) {
	offersNoAuth, err := socks5wire.ReadGreeting(conn)
	if err != nil {
		return socks5wire.Request{}, err
	}
	if !offersNoAuth {
		conn.Write(socks5wire.AppendMethodSelection(nil, 0xFF))
		return socks5wire.Request{}, socks5wire.ErrNoAcceptableMethod
	}
	if _, err := conn.Write(socks5wire.AppendMethodSelection(nil, statute.MethodNoAuth)); err != nil {
		return socks5wire.Request{}, err
	}

	req, err := socks5wire.ReadRequest(conn)
	if err != nil {
		return socks5wire.Request{}, err
	}
	if req.Command != socks5wire.CmdConnect {
		reply, _ := socks5wire.AppendReply(nil, socks5wire.ReplyCommandNotSupported, req.Dest)
		conn.Write(reply)
		return socks5wire.Request{}, errors.New("listener: command not supported")
	}

	reply, err := socks5wire.AppendReply(nil, socks5wire.ReplySucceeded, req.Dest)
	if err != nil {
		return socks5wire.Request{}, err
	}
	if _, err := conn.Write(reply); err != nil {
		return socks5wire.Request{}, err
	}
	return req, nil
}
