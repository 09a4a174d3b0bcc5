package main

import (
	"context"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(rulesCmd)
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the configured rules in evaluation order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// Listing rules needs no shared state.
		cfg.State.Backend = "memory"
		engine, stores, err := newEngine(context.Background(), cfg, nil)
		if err != nil {
			return err
		}
		defer stores.Close()

		printRules(cmd.OutOrStdout(), engine.Rules())
		return nil
	},
}
