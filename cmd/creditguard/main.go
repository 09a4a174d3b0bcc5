// CreditGuard - Rule-based card fraud detection.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/opensource-finance/creditguard/internal/config"
	"github.com/opensource-finance/creditguard/internal/domain"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "creditguard",
	Short: "Rule-based card fraud detection",
	Long: `CreditGuard scores card transactions against a fixed set of weighted
fraud rules and reports LOW, MEDIUM or HIGH risk with the reason for
every rule that fired.`,
	SilenceUsage: true,
	// Without a subcommand the service runs, as it always has.
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML configuration file")
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration and installs the default logger.
func loadConfig() (*domain.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(config.NewLogger(cfg.Logging, os.Stderr))
	return cfg, nil
}
