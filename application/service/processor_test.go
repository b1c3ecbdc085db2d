package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulselens/themeline/domain/survey"
	"github.com/pulselens/themeline/domain/theme"
	"github.com/pulselens/themeline/infrastructure/persistence"
	"github.com/pulselens/themeline/internal/config"
	"github.com/pulselens/themeline/internal/database"
	"github.com/pulselens/themeline/internal/testdb"
)

type processorFixture struct {
	ctx         context.Context
	db          database.Database
	processor   *ThemeProcessor
	responses   *persistence.ResponseStore
	batches     *persistence.BatchStore
	themes      *persistence.ThemeStore
	assignments *persistence.AssignmentStore
	evolution   *persistence.EvolutionStore
	embedder    *fakeEmbedder
	generator   *fakeGenerator
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	ctx := context.Background()
	db := testdb.New(t)

	themes, err := persistence.NewThemeStore(ctx, db, 8, nil)
	require.NoError(t, err)
	responses := persistence.NewResponseStore(db)
	assignments := persistence.NewAssignmentStore(db)
	evolution := persistence.NewEvolutionStore(db)
	batches := persistence.NewBatchStore(db)
	cache := persistence.NewEmbeddingCacheStore(db)

	embedder := &fakeEmbedder{vectors: map[string][]float64{}}
	generator := &fakeGenerator{}
	embeddings := NewEmbeddingService(embedder, cache, 8, 4, 2, nil)
	thresholds := config.NewThresholds()
	evolver := NewThemeEvolver(themes, assignments, evolution, responses, embeddings, thresholds, nil)
	extractor := NewThemeExtractor(generator, embeddings, "test-model", nil)
	highlighter := NewKeywordHighlighter(embeddings, config.NewNgrams(), thresholds.KeywordContribution(), nil)

	processor := NewThemeProcessor(
		responses, batches, themes, assignments, evolution,
		embeddings, evolver, extractor, highlighter,
		thresholds, nil,
	)

	return &processorFixture{
		ctx:         ctx,
		db:          db,
		processor:   processor,
		responses:   responses,
		batches:     batches,
		themes:      themes,
		assignments: assignments,
		evolution:   evolution,
		embedder:    embedder,
		generator:   generator,
	}
}

func TestProcessBatch_FirstBatchCreatesThemes(t *testing.T) {
	f := newProcessorFixture(t)

	texts := []string{
		"the app takes forever to load",
		"loading spinners everywhere, so slow",
		"performance on mobile is terrible",
		"pages lag when I scroll",
		"pricing is too high for small teams",
		"the subscription cost doubled this year",
		"I cannot justify the price anymore",
		"billing tiers make no sense",
	}
	// Pin embeddings into two well-separated groups so matching, merging,
	// and splitting behave deterministically.
	perf := []float64{1, 0, 0, 0, 0, 0, 0, 0}
	price := []float64{0, 1, 0, 0, 0, 0, 0, 0}
	for i, text := range texts {
		if i < 4 {
			f.embedder.vectors[text] = perf
		} else {
			f.embedder.vectors[text] = price
		}
	}
	f.embedder.vectors["Slow Performance: Responses about load times and lag."] = perf
	f.embedder.vectors["Pricing Concerns: Responses about cost and billing."] = price

	f.generator.responses = []string{
		`[
  {"name": "Slow Performance", "description": "Responses about load times and lag."},
  {"name": "Pricing Concerns", "description": "Responses about cost and billing."}
]`,
	}

	batch := survey.NewBatch(1, "What frustrates you most?", texts)
	result, err := f.processor.ProcessBatch(f.ctx, batch)
	require.NoError(t, err)

	require.Equal(t, 8, result.TotalResponses())
	require.Zero(t, result.Matched())
	require.Equal(t, 8, result.Unmatched())
	require.Equal(t, 2, result.ThemesCreated())
	require.Positive(t, result.Duration())

	// All responses are persisted with embeddings.
	saved, err := f.responses.Find(f.ctx, survey.WithBatchID(1))
	require.NoError(t, err)
	require.Len(t, saved, 8)
	for _, r := range saved {
		require.True(t, r.HasEmbedding())
	}

	// Both extracted themes are active with creation records.
	activeThemes, err := f.themes.Find(f.ctx, theme.WithStatus(theme.StatusActive))
	require.NoError(t, err)
	require.Len(t, activeThemes, 2)

	records, err := f.evolution.Find(f.ctx, theme.WithBatchID(1))
	require.NoError(t, err)
	created := 0
	for _, r := range records {
		if r.Action() == theme.ActionCreated {
			created++
		}
	}
	require.Equal(t, 2, created)

	// Every response is assigned to exactly one theme.
	total, err := f.assignments.Count(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 8, int(total))

	// Theme response counts match their assignments.
	counted := 0
	for _, th := range activeThemes {
		n, err := f.assignments.Count(f.ctx, theme.WithThemeID(th.ID()))
		require.NoError(t, err)
		counted += int(n)
	}
	require.Equal(t, 8, counted)

	// The metadata row marks the batch as fully processed.
	meta, err := f.batches.FindOne(f.ctx, survey.WithBatchID(1))
	require.NoError(t, err)
	require.Equal(t, 8, meta.TotalResponses())
	require.Equal(t, 2, meta.NewThemes())
	require.Zero(t, meta.DeletedThemes())
}

func TestProcessBatch_SecondBatchMatchesExisting(t *testing.T) {
	f := newProcessorFixture(t)

	// Seed one active theme aligned with the embedding of "slow again".
	vec := hashVector("slow again")
	th := theme.NewTheme("Slow Performance", "Load time complaints.", vec, 1)
	_, err := f.themes.Save(f.ctx, th)
	require.NoError(t, err)

	batch := survey.NewBatch(2, "What frustrates you most?", []string{"slow again"})
	result, err := f.processor.ProcessBatch(f.ctx, batch)
	require.NoError(t, err)

	require.Equal(t, 1, result.Matched())
	require.Zero(t, result.Unmatched())
	require.Zero(t, result.ThemesCreated())
	// No extraction happened, so the canned generator was never consulted.
	require.Empty(t, f.generator.prompts)
}

func TestProcessBatch_SmallRemainderStillExtracts(t *testing.T) {
	f := newProcessorFixture(t)

	// Even a two-response remainder gets extraction; unmatched responses are
	// never re-fed in a later batch, so skipping them would lose them.
	vec := []float64{0, 0, 1, 0, 0, 0, 0, 0}
	f.embedder.vectors["checkout keeps timing out"] = vec
	f.embedder.vectors["payment page errors"] = vec
	f.embedder.vectors["Checkout Issues: Failures during payment and checkout."] = vec
	f.generator.responses = []string{
		`[{"name": "Checkout Issues", "description": "Failures during payment and checkout."}]`,
	}

	batch := survey.NewBatch(3, "q", []string{"checkout keeps timing out", "payment page errors"})
	result, err := f.processor.ProcessBatch(f.ctx, batch)
	require.NoError(t, err)

	require.Equal(t, 2, result.Unmatched())
	require.Equal(t, 1, result.ThemesCreated())
	require.NotEmpty(t, f.generator.prompts)

	// Both responses land on the new theme.
	total, err := f.assignments.Count(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 2, int(total))

	meta, err := f.batches.FindOne(f.ctx, survey.WithBatchID(3))
	require.NoError(t, err)
	require.Equal(t, 2, meta.TotalResponses())
	require.Equal(t, 1, meta.NewThemes())
}

func TestProcessBatch_BelowThresholdLeavesUnassigned(t *testing.T) {
	f := newProcessorFixture(t)

	// One active theme orthogonal to the incoming response.
	seeded := theme.NewTheme("Pricing", "Cost concerns.", []float64{1, 0, 0, 0, 0, 0, 0, 0}, 1)
	_, err := f.themes.Save(f.ctx, seeded)
	require.NoError(t, err)

	f.embedder.vectors["the office plants are dying"] = []float64{0, 1, 0, 0, 0, 0, 0, 0}
	// Extraction proposes a theme that still lands far from the response.
	f.embedder.vectors["Workplace Environment: Comments about the office itself."] = []float64{0, 0, 1, 0, 0, 0, 0, 0}
	f.generator.responses = []string{
		`[{"name": "Workplace Environment", "description": "Comments about the office itself."}]`,
	}

	batch := survey.NewBatch(6, "q", []string{"the office plants are dying"})
	result, err := f.processor.ProcessBatch(f.ctx, batch)
	require.NoError(t, err)
	require.Equal(t, 1, result.Unmatched())

	// No active theme clears the match threshold, so the response stays
	// unassigned instead of being attached to its nearest unrelated theme.
	all, err := f.assignments.Find(f.ctx)
	require.NoError(t, err)
	require.Empty(t, all)

	// The batch itself still completes.
	_, err = f.batches.FindOne(f.ctx, survey.WithBatchID(6))
	require.NoError(t, err)
}

func TestProcessBatch_EmbedFailureLeavesNoMetadata(t *testing.T) {
	f := newProcessorFixture(t)
	f.embedder.err = errors.New("backend unavailable")

	batch := survey.NewBatch(4, "q", []string{"a", "b", "c"})
	result, err := f.processor.ProcessBatch(f.ctx, batch)
	require.Error(t, err)
	require.Positive(t, result.Duration())

	_, err = f.batches.FindOne(f.ctx, survey.WithBatchID(4))
	require.ErrorIs(t, err, database.ErrNotFound)
}

func TestProcessBatch_ExtractionFailureLeavesNoMetadata(t *testing.T) {
	f := newProcessorFixture(t)
	f.generator.responses = []string{"no array here"}

	batch := survey.NewBatch(5, "q", []string{"r1", "r2", "r3", "r4"})
	_, err := f.processor.ProcessBatch(f.ctx, batch)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)

	_, err = f.batches.FindOne(f.ctx, survey.WithBatchID(5))
	require.ErrorIs(t, err, database.ErrNotFound)
}
