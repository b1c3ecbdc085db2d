package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the database and model backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(envFile, func(ctx context.Context, a *app) error {
				report := a.health.Check(ctx)

				out, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))

				if !report.Healthy {
					os.Exit(1)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")

	return cmd
}
