package main

import (
	"context"
	"fmt"

	"github.com/pulselens/themeline/application/service"
	"github.com/pulselens/themeline/infrastructure/persistence"
	"github.com/pulselens/themeline/infrastructure/provider"
	"github.com/pulselens/themeline/internal/config"
	"github.com/pulselens/themeline/internal/database"
	"github.com/pulselens/themeline/internal/log"
)

// app bundles the wired services behind one Close. Commands build it once
// and pull what they need.
type app struct {
	cfg    config.AppConfig
	logger *log.Logger

	db          database.Database
	themes      *persistence.ThemeStore
	responses   *persistence.ResponseStore
	assignments *persistence.AssignmentStore
	evolution   *persistence.EvolutionStore
	batches     *persistence.BatchStore

	embedder  provider.Embedder
	generator provider.TextGenerator

	embeddings *service.EmbeddingService
	processor  *service.ThemeProcessor
	health     *service.HealthService
}

func newApp(ctx context.Context, cfg config.AppConfig, logger *log.Logger) (*app, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := database.NewDatabase(ctx, cfg.DBURL())
	if err != nil {
		return nil, err
	}
	if err := persistence.AutoMigrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	themes, err := persistence.NewThemeStore(ctx, db, cfg.EmbeddingDimension(), logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	responses := persistence.NewResponseStore(db)
	assignments := persistence.NewAssignmentStore(db)
	evolution := persistence.NewEvolutionStore(db)
	batches := persistence.NewBatchStore(db)
	cache := persistence.NewEmbeddingCacheStore(db)

	embedder := provider.NewOpenAIProviderFromEndpoint(cfg.EmbeddingEndpoint())
	generator := provider.NewOpenAIProviderFromEndpoint(cfg.GenerationEndpoint())

	embeddings := service.NewEmbeddingService(
		embedder, cache,
		cfg.EmbeddingDimension(), cfg.BatchChunkSize(), cfg.EmbedParallelism(),
		logger,
	)
	evolver := service.NewThemeEvolver(themes, assignments, evolution, responses, embeddings, cfg.Thresholds(), logger)
	extractor := service.NewThemeExtractor(generator, embeddings, cfg.GenerationEndpoint().Model(), logger)
	highlighter := service.NewKeywordHighlighter(embeddings, cfg.Ngrams(), cfg.Thresholds().KeywordContribution(), logger)
	processor := service.NewThemeProcessor(
		responses, batches, themes, assignments, evolution,
		embeddings, evolver, extractor, highlighter,
		cfg.Thresholds(), logger,
	)
	health := service.NewHealthService(db, embedder, generator, logger)

	return &app{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		themes:      themes,
		responses:   responses,
		assignments: assignments,
		evolution:   evolution,
		batches:     batches,
		embedder:    embedder,
		generator:   generator,
		embeddings:  embeddings,
		processor:   processor,
		health:      health,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
