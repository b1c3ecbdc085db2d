// Package main is the entry point for the themeline CLI.
package main

import (
	"fmt"
	"os"

	"github.com/pulselens/themeline/internal/config"
	"github.com/spf13/cobra"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "themeline",
		Short: "Themeline incremental theme evolution engine",
		Long:  `Themeline processes survey response batches incrementally, matching responses to evolving themes and merging, splitting, and updating themes as the response population shifts.`,
	}

	cmd.AddCommand(processCmd())
	cmd.AddCommand(themesCmd())
	cmd.AddCommand(healthCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

// loadConfig loads configuration from a .env file and environment variables.
func loadConfig(envFile string) (config.AppConfig, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.AppConfig{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
