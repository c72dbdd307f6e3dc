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
	"log/slog"
	"os"

	"github.com/latticegate/relay/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfigDir = "/etc/relay"

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Policy-driven SOCKS5 relay and DNS proxy",
	Long: `relay accepts SOCKS5 client connections, classifies each one by
destination against a configured routing tree, and forwards it through a
direct dial, an upstream SOCKS5 proxy, or drops it. It also runs a DNS
proxy that selects an upstream nameserver per query name using the same
routing engine.`,
	RunE: runRelay,
}

func init() {
	rootCmd.PersistentFlags().String("config", defaultConfigDir, "Path to the config directory")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.SetEnvPrefix("RELAY")
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relay (default action)",
	RunE:  runRelay,
}

func buildLogger() *slog.Logger {
	level, err := logging.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = slog.LevelInfo
	}
	log := logging.New(level, viper.GetString("log-format"), os.Stderr)
	if err != nil {
		log.Warn("falling back to info log level", "err", err)
	}
	return log
}

// Execute runs the root command. Cobra invokes the root's own RunE
// (runRelay) when no subcommand is given, so bare `relay` and `relay run`
// behave identically.
func Execute() error {
	return rootCmd.Execute()
}
