package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"budgetwatch/internal/shared/config"
)

var rootCmd = &cobra.Command{
	Use:   "budgetwatch",
	Short: "Budget tracking and reminder scheduling",
	Long: "Refreshes linked account balances, recomputes month-to-date spend on " +
		"budget trackers and texts reminders when they fall due.",
	SilenceUsage: true,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration. Commands that talk to
// the provider or the notifier also need their credentials.
func loadConfig(needProviders bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if needProviders {
		if err := cfg.ValidateProviders(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
