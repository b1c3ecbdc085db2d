package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulselens/themeline/domain/storage"
	"github.com/pulselens/themeline/domain/survey"
	"github.com/pulselens/themeline/domain/theme"
	"github.com/pulselens/themeline/infrastructure/persistence"
	"github.com/pulselens/themeline/internal/config"
	"github.com/pulselens/themeline/internal/testdb"
)

type evolverFixture struct {
	ctx         context.Context
	evolver     *ThemeEvolver
	themes      *persistence.ThemeStore
	assignments *persistence.AssignmentStore
	evolution   *persistence.EvolutionStore
	responses   *persistence.ResponseStore
	embedder    *fakeEmbedder
	extractor   *ThemeExtractor
	generator   *fakeGenerator
}

func newEvolverFixture(t *testing.T) *evolverFixture {
	t.Helper()
	ctx := context.Background()
	db := testdb.New(t)

	themes, err := persistence.NewThemeStore(ctx, db, 2, nil)
	require.NoError(t, err)
	assignments := persistence.NewAssignmentStore(db)
	evolution := persistence.NewEvolutionStore(db)
	responses := persistence.NewResponseStore(db)

	embedder := &fakeEmbedder{vectors: map[string][]float64{}}
	embeddings := NewEmbeddingService(embedder, nil, 2, 3, 1, nil)
	generator := &fakeGenerator{}
	extractor := NewThemeExtractor(generator, embeddings, "test-model", nil)

	evolver := NewThemeEvolver(themes, assignments, evolution, responses, embeddings, config.NewThresholds(), nil)

	return &evolverFixture{
		ctx:         ctx,
		evolver:     evolver,
		themes:      themes,
		assignments: assignments,
		evolution:   evolution,
		responses:   responses,
		embedder:    embedder,
		extractor:   extractor,
		generator:   generator,
	}
}

func (f *evolverFixture) saveTheme(t *testing.T, name string, embedding []float64, count int) theme.Theme {
	t.Helper()
	th := theme.NewTheme(name, "About "+name+".", embedding, 1).WithResponseCount(count)
	saved, err := f.themes.Save(f.ctx, th)
	require.NoError(t, err)
	return saved
}

func (f *evolverFixture) saveResponse(t *testing.T, text string, embedding []float64) survey.Response {
	t.Helper()
	r := survey.NewResponse(1, "q", text).WithEmbedding(embedding)
	saved, err := f.responses.Save(f.ctx, r)
	require.NoError(t, err)
	return saved
}

func (f *evolverFixture) assign(t *testing.T, responseID, themeID int64, confidence float64) theme.Assignment {
	t.Helper()
	a, err := theme.NewAssignment(responseID, themeID, confidence, nil, 1)
	require.NoError(t, err)
	saved, err := f.assignments.Upsert(f.ctx, a)
	require.NoError(t, err)
	return saved
}

func TestMatchToExisting(t *testing.T) {
	f := newEvolverFixture(t)
	now := time.Now()

	themes := []theme.Theme{
		theme.NewTheme("Performance", "d", []float64{1, 0}, 1).WithID(1),
		theme.NewTheme("Pricing", "d", []float64{0, 1}, 1).WithID(2),
	}
	responses := []survey.Response{
		survey.ReconstructResponse(1, 1, "q", "fast please", []float64{0.9, 0.1}, now),
		survey.ReconstructResponse(2, 1, "q", "somewhere between", []float64{0.5, 0.5}, now),
		survey.ReconstructResponse(3, 1, "q", "no embedding", nil, now),
	}

	results := f.evolver.MatchToExisting(responses, themes)
	require.Len(t, results, 3)

	require.True(t, results[0].Matched)
	require.Equal(t, int64(1), results[0].Theme.ID())
	require.Greater(t, results[0].Similarity, 0.6)

	// 0.5/0.5 has similarity ~0.707 to both; the first theme wins the tie.
	require.True(t, results[1].Matched)
	require.Equal(t, int64(1), results[1].Theme.ID())

	require.False(t, results[2].Matched)
}

func TestMatchToExisting_BelowThreshold(t *testing.T) {
	f := newEvolverFixture(t)

	themes := []theme.Theme{theme.NewTheme("Performance", "d", []float64{1, 0}, 1).WithID(1)}
	responses := []survey.Response{
		survey.ReconstructResponse(1, 1, "q", "unrelated", []float64{0.3, 0.954}, time.Now()),
	}

	results := f.evolver.MatchToExisting(responses, themes)
	require.False(t, results[0].Matched)
}

func TestDetectMerges(t *testing.T) {
	f := newEvolverFixture(t)

	a := theme.NewTheme("Slow app", "d", []float64{1, 0}, 1).WithID(1)
	b := theme.NewTheme("App speed", "d", []float64{0.995, 0.0999}, 1).WithID(2)
	c := theme.NewTheme("Pricing", "d", []float64{0, 1}, 1).WithID(3)

	candidates := f.evolver.DetectMerges([]theme.Theme{a, b, c})
	require.Len(t, candidates, 1)
	require.Equal(t, int64(1), candidates[0].A.ID())
	require.Equal(t, int64(2), candidates[0].B.ID())
	require.Greater(t, candidates[0].Similarity, 0.85)
}

func TestExecuteMerge(t *testing.T) {
	f := newEvolverFixture(t)

	a := f.saveTheme(t, "Slow app", []float64{1, 0}, 2)
	b := f.saveTheme(t, "App speed", []float64{0.9, 0.1}, 3)

	r1 := f.saveResponse(t, "so slow", []float64{1, 0})
	r2 := f.saveResponse(t, "speed it up", []float64{0.9, 0.2})
	f.assign(t, r1.ID(), a.ID(), 0.9)
	f.assign(t, r2.ID(), b.ID(), 0.8)
	// r1 is assigned to both sources; the higher-confidence row must win.
	f.assign(t, r1.ID(), b.ID(), 0.7)

	outcome, err := f.evolver.ExecuteMerge(f.ctx, MergeCandidate{A: a, B: b, Similarity: 0.98}, 5)
	require.NoError(t, err)
	require.False(t, outcome.Skipped)

	merged := outcome.Merged
	require.Equal(t, "Slow app & App speed", merged.Name())
	require.Equal(t, "Combined theme covering: About Slow app. and About App speed.", merged.Description())
	require.InDelta(t, 0.95, merged.Embedding()[0], 1e-9)
	require.InDelta(t, 0.05, merged.Embedding()[1], 1e-9)

	// Sources are retired with a back-reference to the merged theme.
	for _, id := range []int64{a.ID(), b.ID()} {
		src, err := f.themes.FindOne(f.ctx, storage.WithID(id))
		require.NoError(t, err)
		require.Equal(t, theme.StatusMerged, src.Status())
		require.EqualValues(t, merged.ID(), src.Metadata()[theme.MetaMergedInto])
	}

	// Assignments are repointed with the duplicate collapsed to the winner.
	moved, err := f.assignments.Find(f.ctx, theme.WithThemeIDIn([]int64{merged.ID()}))
	require.NoError(t, err)
	require.Len(t, moved, 2)
	byResponse := map[int64]theme.Assignment{}
	for _, m := range moved {
		byResponse[m.ResponseID()] = m
	}
	require.Equal(t, 0.9, byResponse[r1.ID()].Confidence())
	require.Equal(t, 0.8, byResponse[r2.ID()].Confidence())

	// No assignments remain on the sources.
	leftover, err := f.assignments.Count(f.ctx, theme.WithThemeIDIn([]int64{a.ID(), b.ID()}))
	require.NoError(t, err)
	require.Zero(t, leftover)

	// The merged theme's count reflects its actual assignments.
	reloaded, err := f.themes.FindOne(f.ctx, storage.WithID(merged.ID()))
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.ResponseCount())

	records, err := f.evolution.Find(f.ctx, theme.WithBatchID(5))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, theme.ActionMerged, records[0].Action())
	require.Equal(t, merged.ID(), records[0].ThemeID())
	require.Equal(t, a.ID(), records[0].RelatedThemeID())
	require.Equal(t, 5, records[0].AffectedResponses())
}

func TestExecuteMerge_SkipsRetiredTheme(t *testing.T) {
	f := newEvolverFixture(t)

	a := f.saveTheme(t, "A", []float64{1, 0}, 1)
	b := f.saveTheme(t, "B", []float64{0.9, 0.1}, 1)

	// Retire b as if an earlier merge in the same pass consumed it.
	retired, err := b.Transition(theme.StatusMerged, 4)
	require.NoError(t, err)
	require.NoError(t, f.themes.Update(f.ctx, retired))

	outcome, err := f.evolver.ExecuteMerge(f.ctx, MergeCandidate{A: a, B: b, Similarity: 0.99}, 5)
	require.NoError(t, err)
	require.True(t, outcome.Skipped)

	// a is untouched and no record was written.
	reloaded, err := f.themes.FindOne(f.ctx, storage.WithID(a.ID()))
	require.NoError(t, err)
	require.True(t, reloaded.IsActive())

	records, err := f.evolution.Find(f.ctx, theme.WithBatchID(5))
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestTrySplit_TooFewAssignments(t *testing.T) {
	f := newEvolverFixture(t)

	th := f.saveTheme(t, "Mixed", []float64{0.7, 0.7}, 5)
	for i := 0; i < 5; i++ {
		r := f.saveResponse(t, fmt.Sprintf("resp %d", i), []float64{1, 0})
		f.assign(t, r.ID(), th.ID(), 0.8)
	}

	subThemes, err := f.evolver.TrySplit(f.ctx, th, 6)
	require.NoError(t, err)
	require.Empty(t, subThemes)

	reloaded, err := f.themes.FindOne(f.ctx, storage.WithID(th.ID()))
	require.NoError(t, err)
	require.True(t, reloaded.IsActive())
}

func TestTrySplit_SeparatedClusters(t *testing.T) {
	f := newEvolverFixture(t)

	th := f.saveTheme(t, "Mixed feedback", []float64{0.7, 0.7}, 6)

	groupA := [][]float64{{1, 0}, {0.99, 0.05}, {0.98, 0.1}}
	groupB := [][]float64{{0, 1}, {0.05, 0.99}, {0.1, 0.98}}
	for i, vec := range append(groupA, groupB...) {
		r := f.saveResponse(t, fmt.Sprintf("resp %d", i), vec)
		f.assign(t, r.ID(), th.ID(), 0.8)
	}

	subThemes, err := f.evolver.TrySplit(f.ctx, th, 7)
	require.NoError(t, err)
	require.Len(t, subThemes, 2)

	names := []string{subThemes[0].Name(), subThemes[1].Name()}
	require.Contains(t, names, "Mixed feedback - Cluster 1")
	require.Contains(t, names, "Mixed feedback - Cluster 2")
	for _, sub := range subThemes {
		require.Equal(t, "Sub-theme of Mixed feedback: About Mixed feedback.", sub.Description())
		require.Equal(t, th.ID(), sub.ParentThemeID())
		require.Equal(t, th.CreatedBatch(), sub.CreatedBatch())
		require.EqualValues(t, th.ID(), sub.Metadata()[theme.MetaSplitFrom])
	}

	// The parent is retired and holds no assignments.
	parent, err := f.themes.FindOne(f.ctx, storage.WithID(th.ID()))
	require.NoError(t, err)
	require.Equal(t, theme.StatusSplit, parent.Status())
	remaining, err := f.assignments.Count(f.ctx, theme.WithThemeID(th.ID()))
	require.NoError(t, err)
	require.Zero(t, remaining)

	// Each cluster's responses land on its own sub-theme.
	for _, sub := range subThemes {
		count, err := f.assignments.Count(f.ctx, theme.WithThemeID(sub.ID()))
		require.NoError(t, err)
		require.Equal(t, 3, int(count))

		reloaded, err := f.themes.FindOne(f.ctx, storage.WithID(sub.ID()))
		require.NoError(t, err)
		require.Equal(t, 3, reloaded.ResponseCount())
	}

	records, err := f.evolution.Find(f.ctx, theme.WithBatchID(7))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, theme.ActionSplit, records[0].Action())
	require.Equal(t, th.ID(), records[0].ThemeID())
	require.Equal(t, 6, records[0].AffectedResponses())
}

func TestPropagateSplit_TieKeepsOriginalAssignment(t *testing.T) {
	f := newEvolverFixture(t)

	parent := f.saveTheme(t, "Mixed feedback", []float64{0.7, 0.7}, 2)
	subA := f.saveTheme(t, "Mixed feedback - Cluster 1", []float64{1, 0}, 0)
	subB := f.saveTheme(t, "Mixed feedback - Cluster 2", []float64{0, 1}, 0)

	r1 := f.saveResponse(t, "clearly cluster one", []float64{1, 0})
	a1 := f.assign(t, r1.ID(), parent.ID(), 0.8)

	// Equidistant from both sub-theme embeddings.
	r2 := f.saveResponse(t, "right in the middle", []float64{0.7, 0.7})
	a2 := f.assign(t, r2.ID(), parent.ID(), 0.8)

	embedded := []assignmentEmbedding{
		{assignment: a1, embedding: r1.Embedding()},
		{assignment: a2, embedding: r2.Embedding()},
	}
	err := f.evolver.propagateSplit(f.ctx, parent, []theme.Theme{subA, subB}, embedded, 5)
	require.NoError(t, err)

	// The unambiguous assignment repoints to its sub-theme.
	moved, err := f.assignments.Find(f.ctx, theme.WithResponseID(r1.ID()))
	require.NoError(t, err)
	require.Len(t, moved, 1)
	require.Equal(t, subA.ID(), moved[0].ThemeID())

	// The tied assignment stays on the original theme, untouched.
	stayed, err := f.assignments.Find(f.ctx, theme.WithResponseID(r2.ID()))
	require.NoError(t, err)
	require.Len(t, stayed, 1)
	require.Equal(t, parent.ID(), stayed[0].ThemeID())
	require.Equal(t, 0.8, stayed[0].Confidence())

	// Response counts track where the assignments ended up.
	for _, tc := range []struct {
		id   int64
		want int
	}{
		{parent.ID(), 1},
		{subA.ID(), 1},
		{subB.ID(), 0},
	} {
		reloaded, err := f.themes.FindOne(f.ctx, storage.WithID(tc.id))
		require.NoError(t, err)
		require.Equal(t, tc.want, reloaded.ResponseCount())
	}
}

func TestUpdateThemeDescription_DriftTriggersUpdate(t *testing.T) {
	f := newEvolverFixture(t)

	th := f.saveTheme(t, "Pricing", []float64{1, 0}, 5)
	for i := 0; i < 5; i++ {
		r := f.saveResponse(t, fmt.Sprintf("old %d", i), []float64{1, 0})
		f.assign(t, r.ID(), th.ID(), 0.9)
	}

	// New responses at similarity 0.6: drift 0.4 is over the 0.2 threshold.
	newResponses := []survey.Response{
		f.saveResponse(t, "new a", []float64{0.6, 0.8}),
		f.saveResponse(t, "new b", []float64{0.6, 0.8}),
	}

	f.generator.responses = []string{"A broader take on pricing."}
	// The refreshed description embeds far from the old embedding, forcing
	// an embedding replacement and assignment re-scoring.
	f.embedder.vectors["Pricing: A broader take on pricing."] = []float64{0, 1}

	updated, changed, err := f.evolver.UpdateThemeDescription(f.ctx, th, newResponses, f.extractor, 9)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "A broader take on pricing.", updated.Description())
	require.Equal(t, []float64{0, 1}, updated.Embedding())

	// Old responses now score 0 against the replaced embedding.
	assignments, err := f.assignments.Find(f.ctx, theme.WithThemeID(th.ID()))
	require.NoError(t, err)
	require.Len(t, assignments, 5)
	for _, a := range assignments {
		require.Zero(t, a.Confidence())
		require.Equal(t, int64(9), a.LastUpdatedBatch())
	}

	records, err := f.evolution.Find(f.ctx, theme.WithBatchID(9))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, theme.ActionUpdated, records[0].Action())
	details := records[0].Details()
	require.Equal(t, "About Pricing.", details["old_description"])
	require.Equal(t, "A broader take on pricing.", details["new_description"])
	require.InDelta(t, 0.4, details["drift_score"].(float64), 1e-9)
}

func TestUpdateThemeDescription_LowDriftIsNoop(t *testing.T) {
	f := newEvolverFixture(t)

	th := f.saveTheme(t, "Pricing", []float64{1, 0}, 5)
	for i := 0; i < 5; i++ {
		r := f.saveResponse(t, fmt.Sprintf("old %d", i), []float64{1, 0})
		f.assign(t, r.ID(), th.ID(), 0.9)
	}
	newResponses := []survey.Response{
		f.saveResponse(t, "aligned a", []float64{1, 0}),
		f.saveResponse(t, "aligned b", []float64{0.99, 0.05}),
	}

	_, changed, err := f.evolver.UpdateThemeDescription(f.ctx, th, newResponses, f.extractor, 9)
	require.NoError(t, err)
	require.False(t, changed)
	require.Empty(t, f.generator.prompts)
}

func TestUpdateThemeDescription_RequiresHistory(t *testing.T) {
	f := newEvolverFixture(t)

	th := f.saveTheme(t, "Pricing", []float64{1, 0}, 2)
	// Only two historical assignments: not enough to measure drift.
	for i := 0; i < 2; i++ {
		r := f.saveResponse(t, fmt.Sprintf("old %d", i), []float64{1, 0})
		f.assign(t, r.ID(), th.ID(), 0.9)
	}
	newResponses := []survey.Response{
		f.saveResponse(t, "new a", []float64{0, 1}),
		f.saveResponse(t, "new b", []float64{0, 1}),
	}

	_, changed, err := f.evolver.UpdateThemeDescription(f.ctx, th, newResponses, f.extractor, 9)
	require.NoError(t, err)
	require.False(t, changed)
	require.Empty(t, f.generator.prompts)
}
