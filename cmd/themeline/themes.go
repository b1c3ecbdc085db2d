package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pulselens/themeline/domain/storage"
	"github.com/pulselens/themeline/domain/theme"
	"github.com/pulselens/themeline/internal/log"
)

func themesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "themes",
		Short: "Inspect the current theme set",
	}

	cmd.AddCommand(themesListCmd())
	cmd.AddCommand(themesSimilarCmd())
	cmd.AddCommand(themesHistoryCmd())

	return cmd
}

func themesListCmd() *cobra.Command {
	var (
		envFile string
		status  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List themes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(envFile, func(ctx context.Context, a *app) error {
				themes, err := a.themes.Find(ctx, theme.WithStatus(theme.Status(status)), storage.WithOrderDesc("response_count"))
				if err != nil {
					return err
				}
				for _, t := range themes {
					fmt.Printf("%d\t%s\t%d responses\t%s\n", t.ID(), t.Status(), t.ResponseCount(), t.Name())
					fmt.Printf("\t%s\n", t.Description())
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().StringVar(&status, "status", string(theme.StatusActive), "Theme status filter (active, merged, split, deleted)")

	return cmd
}

func themesSimilarCmd() *cobra.Command {
	var (
		envFile   string
		threshold float64
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "similar <text>",
		Short: "Find active themes similar to a text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(envFile, func(ctx context.Context, a *app) error {
				vector, err := a.embeddings.Embed(ctx, args[0])
				if err != nil {
					return fmt.Errorf("embed query: %w", err)
				}
				matches, err := a.themes.SearchSimilar(ctx, vector, theme.StatusActive, threshold, limit)
				if err != nil {
					return err
				}
				for _, m := range matches {
					fmt.Printf("%.3f\t%s\n", m.Similarity(), m.Theme().Name())
					fmt.Printf("\t%s\n", m.Theme().Description())
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.5, "Minimum similarity")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum results")

	return cmd
}

func themesHistoryCmd() *cobra.Command {
	var (
		envFile string
		batchID int64
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the theme evolution log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(envFile, func(ctx context.Context, a *app) error {
				options := []storage.Option{storage.WithOrderAsc("id")}
				if batchID != 0 {
					options = append(options, theme.WithBatchID(batchID))
				}
				records, err := a.evolution.Find(ctx, options...)
				if err != nil {
					return err
				}
				for _, r := range records {
					fmt.Printf("batch %d\t%s\ttheme %d\t%d responses affected\n",
						r.BatchID(), r.Action(), r.ThemeID(), r.AffectedResponses())
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file")
	cmd.Flags().Int64Var(&batchID, "batch", 0, "Filter by batch ID")

	return cmd
}

// withApp builds the wired application for a read-mostly command and tears
// it down afterwards.
func withApp(envFile string, fn func(context.Context, *app) error) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	logger := log.Configure(cfg)

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close database", "error", err)
		}
	}()

	return fn(ctx, a)
}
