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

package main

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os/signal"
	"sync"
	"syscall"

	"github.com/latticegate/relay/internal/config"
	"github.com/latticegate/relay/internal/listener"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runRelay(_ *cobra.Command, _ []string) error {
	log := buildLogger()

	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		log.Error("config load failed", "err", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	errs := make(chan error, len(cfg.Relays)+1)

	for _, r := range cfg.Relays {
		ln, err := net.Listen("tcp", r.Bind)
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("relay %q: listening on %q: %w", r.Name, r.Bind, err)
		}

		relay := &listener.Relay{
			Name:    r.Name,
			Bind:    r.Bind,
			Tree:    r.Tree,
			Rules:   cfg.Rules,
			Matches: cfg.Matches,
			Egress:  cfg.Egress,
			Resolve: resolveHost,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Serve(ctx, ln, log); err != nil {
				errs <- fmt.Errorf("relay %q: %w", relay.Name, err)
			}
		}()
		log.Info("relay listening", "relay", r.Name, "bind", r.Bind)
	}

	if cfg.DNS != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cfg.DNS.Proxy.ListenAndServe(ctx, cfg.DNS.Bind, log); err != nil && ctx.Err() == nil {
				errs <- fmt.Errorf("dns proxy: %w", err)
			}
		}()
		log.Info("dns proxy listening", "bind", cfg.DNS.Bind)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		log.Error("listener exited with error", "err", err)
	}
	return nil
}

// resolveHost is the system resolver used by the routing engine's IP-set
// predicate. Direct egresses resolve through their own dialer.
func resolveHost(ctx context.Context, host string) ([]netip.Addr, error) {
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}
