package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pulselens/themeline/domain/survey"
	"github.com/pulselens/themeline/internal/log"
)

// batchFile is the on-disk batch format. YAML and JSON are both accepted;
// JSON is a YAML subset.
type batchFile struct {
	BatchID   int64    `yaml:"batch_id" json:"batch_id"`
	Question  string   `yaml:"question" json:"question"`
	Responses []string `yaml:"responses" json:"responses"`
}

func processCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "process <batch-file>...",
		Short: "Process one or more survey response batches",
		Long: `Process survey response batches through the theme evolution pipeline.

Each batch file is YAML or JSON with the shape:

  batch_id: 1
  question: "What should we improve?"
  responses:
    - "The onboarding flow is confusing"
    - "Docs are out of date"

Batches are processed sequentially in argument order; each batch sees the
theme state the previous batches left behind.

Environment variables (prefix THEMELINE_):
  DATA_DIR                     Data directory (default: ~/.themeline)
  DB_URL                       Database URL (default: sqlite:///{data_dir}/themeline.db)
  LOG_LEVEL                    Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   Log format: pretty, json (default: pretty)

  EMBEDDING_ENDPOINT_*         Embedding AI service configuration
    BASE_URL                   Base URL (e.g., https://api.openai.com/v1)
    MODEL                      Model identifier (e.g., text-embedding-3-small)
    API_KEY                    API key for authentication

  GENERATION_ENDPOINT_*        Text-generation AI service configuration
    (same fields as EMBEDDING_ENDPOINT)

  THRESHOLD_*                  Evolution thresholds (similarity, drift, split)
  NGRAM_*                      Keyword highlighting configuration`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(envFile, args)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")

	return cmd
}

func runProcess(envFile string, paths []string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	logger := log.Configure(cfg)

	batches := make([]survey.Batch, 0, len(paths))
	for _, path := range paths {
		batch, err := readBatchFile(path)
		if err != nil {
			return err
		}
		batches = append(batches, batch)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close database", "error", err)
		}
	}()

	var results []survey.ProcessingResult
	for _, batch := range batches {
		bctx := log.WithCorrelationID(ctx, uuid.NewString())
		bctx = log.WithBatchID(bctx, batch.ID())

		result, err := a.processor.ProcessBatch(bctx, batch)
		if err != nil {
			logger.ErrorContext(bctx, "batch failed", "batch_id", batch.ID(), "error", err)
			return fmt.Errorf("process batch %d: %w", batch.ID(), err)
		}
		results = append(results, result)
		printResult(result)
	}

	printSummary(survey.Aggregate(results))
	return nil
}

func readBatchFile(path string) (survey.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return survey.Batch{}, fmt.Errorf("read batch file: %w", err)
	}

	var bf batchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return survey.Batch{}, fmt.Errorf("parse batch file %s: %w", path, err)
	}
	if bf.BatchID == 0 {
		return survey.Batch{}, fmt.Errorf("batch file %s: batch_id is required", path)
	}
	if len(bf.Responses) == 0 {
		return survey.Batch{}, fmt.Errorf("batch file %s: responses must not be empty", path)
	}

	return survey.NewBatch(bf.BatchID, bf.Question, bf.Responses), nil
}

func printResult(r survey.ProcessingResult) {
	fmt.Printf("batch %d: %d responses (%d matched, %d unmatched) in %s\n",
		r.BatchID(), r.TotalResponses(), r.Matched(), r.Unmatched(), r.Duration().Round(time.Millisecond))
	for _, t := range r.NewThemes() {
		fmt.Printf("  + %s: %s\n", t.Name, t.Description)
	}
	for _, t := range r.UpdatedThemes() {
		fmt.Printf("  ~ %s: %s\n", t.Name, t.Description)
	}
	for _, t := range r.RetiredThemes() {
		fmt.Printf("  - %s (%s)\n", t.Name, t.Reason)
	}
}

func printSummary(s survey.RunSummary) {
	fmt.Printf("\nprocessed %d batches, %d responses in %s\n",
		s.Batches, s.TotalResponses, s.Duration.Round(time.Millisecond))
	fmt.Printf("  themes: %d created, %d updated, %d merged, %d split\n",
		s.ThemesCreated, s.ThemesUpdated, s.ThemesMerged, s.ThemesSplit)
}
