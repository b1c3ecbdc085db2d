package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/pulselens/themeline/domain/storage"
	"github.com/pulselens/themeline/domain/survey"
	"github.com/pulselens/themeline/domain/theme"
	"github.com/pulselens/themeline/infrastructure/search"
	"github.com/pulselens/themeline/internal/config"
	"github.com/pulselens/themeline/internal/log"
)

// MatchResult is the outcome of matching one response against the active
// theme set. Unmatched responses feed new-theme extraction.
type MatchResult struct {
	Response   survey.Response
	Theme      theme.Theme
	Similarity float64
	Matched    bool
}

// MergeCandidate is a pair of active themes similar enough to merge.
type MergeCandidate struct {
	A          theme.Theme
	B          theme.Theme
	Similarity float64
}

// MergeOutcome reports one executed or skipped merge. A candidate is skipped
// when either theme already left active status earlier in the same pass.
type MergeOutcome struct {
	Merged  theme.Theme
	Sources [2]theme.Theme
	Skipped bool
	Reason  string
}

// ThemeEvolver is the core state machine: matching, merge detection and
// execution, split detection and execution, drift-triggered description
// updates, and retroactive propagation to historical assignments.
type ThemeEvolver struct {
	themes      theme.Store
	assignments theme.AssignmentStore
	evolution   theme.EvolutionStore
	responses   survey.ResponseStore
	embeddings  *EmbeddingService
	thresholds  config.Thresholds
	logger      *log.Logger
}

// NewThemeEvolver creates a ThemeEvolver.
func NewThemeEvolver(
	themes theme.Store,
	assignments theme.AssignmentStore,
	evolution theme.EvolutionStore,
	responses survey.ResponseStore,
	embeddings *EmbeddingService,
	thresholds config.Thresholds,
	logger *log.Logger,
) *ThemeEvolver {
	if logger == nil {
		logger = log.Default()
	}
	return &ThemeEvolver{
		themes:      themes,
		assignments: assignments,
		evolution:   evolution,
		responses:   responses,
		embeddings:  embeddings,
		thresholds:  thresholds,
		logger:      logger,
	}
}

// MatchToExisting matches each embedded response against the active themes,
// picking the highest similarity. A response only matches when the best
// similarity strictly exceeds the configured threshold. Ties keep the
// first-encountered theme; the ordering is implementation-defined and not
// to be relied upon.
func (e *ThemeEvolver) MatchToExisting(responses []survey.Response, activeThemes []theme.Theme) []MatchResult {
	results := make([]MatchResult, 0, len(responses))

	for _, response := range responses {
		if !response.HasEmbedding() {
			e.logger.Warn("response has no embedding, leaving unmatched", "response_id", response.ID())
			results = append(results, MatchResult{Response: response})
			continue
		}

		result := MatchResult{Response: response}
		for _, t := range activeThemes {
			if !t.HasEmbedding() {
				continue
			}
			sim := e.embeddings.Similarity(response.Embedding(), t.Embedding())
			if sim > result.Similarity && sim > e.thresholds.SimilarityExistingTheme() {
				result.Similarity = sim
				result.Theme = t
				result.Matched = true
			}
		}
		results = append(results, result)
	}

	return results
}

// DetectMerges finds every unordered pair of themes whose similarity exceeds
// the merge threshold, sorted by similarity descending. O(n²) in theme
// count; acceptable while active theme counts stay in the tens.
func (e *ThemeEvolver) DetectMerges(themes []theme.Theme) []MergeCandidate {
	var candidates []MergeCandidate

	for i := range themes {
		for j := i + 1; j < len(themes); j++ {
			a, b := themes[i], themes[j]
			if !a.HasEmbedding() || !b.HasEmbedding() {
				continue
			}
			sim := e.embeddings.Similarity(a.Embedding(), b.Embedding())
			if sim > e.thresholds.SimilarityMergeThemes() {
				candidates = append(candidates, MergeCandidate{A: a, B: b, Similarity: sim})
				e.logger.Info("merge candidate", "theme_a", a.Name(), "theme_b", b.Name(), "similarity", sim)
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	return candidates
}

// ExecuteMerge merges one candidate pair. Both themes are re-loaded and
// their status re-checked immediately before merging so a theme already
// consumed by an earlier candidate in the same pass is never double-merged.
func (e *ThemeEvolver) ExecuteMerge(ctx context.Context, candidate MergeCandidate, batchID int64) (MergeOutcome, error) {
	a, err := e.themes.FindOne(ctx, storage.WithID(candidate.A.ID()))
	if err != nil {
		return MergeOutcome{}, fmt.Errorf("reload merge source %d: %w", candidate.A.ID(), err)
	}
	b, err := e.themes.FindOne(ctx, storage.WithID(candidate.B.ID()))
	if err != nil {
		return MergeOutcome{}, fmt.Errorf("reload merge source %d: %w", candidate.B.ID(), err)
	}
	if !a.IsActive() || !b.IsActive() {
		e.logger.InfoContext(ctx, "skipping merge, theme no longer active",
			"theme_a", a.Name(), "theme_b", b.Name())
		return MergeOutcome{Sources: [2]theme.Theme{a, b}, Skipped: true, Reason: "theme no longer active"}, nil
	}

	e.logger.InfoContext(ctx, "merging themes", "theme_a", a.Name(), "theme_b", b.Name())

	mergedName := fmt.Sprintf("%s & %s", a.Name(), b.Name())
	mergedDescription := fmt.Sprintf("Combined theme covering: %s and %s", a.Description(), b.Description())
	mergedEmbedding := search.Centroid([][]float64{a.Embedding(), b.Embedding()})

	merged := theme.NewTheme(mergedName, mergedDescription, mergedEmbedding, batchID).
		WithResponseCount(a.ResponseCount() + b.ResponseCount()).
		WithMetadata(theme.Metadata{
			theme.MetaMergedFrom: []int64{a.ID(), b.ID()},
			theme.MetaMergeBatch: batchID,
		})
	merged, err = e.themes.Save(ctx, merged)
	if err != nil {
		return MergeOutcome{}, fmt.Errorf("save merged theme: %w", err)
	}

	for _, source := range []theme.Theme{a, b} {
		retired, err := source.Transition(theme.StatusMerged, batchID)
		if err != nil {
			return MergeOutcome{}, fmt.Errorf("retire theme %d: %w", source.ID(), err)
		}
		retired = retired.WithMetadataValue(theme.MetaMergedInto, merged.ID())
		if err := e.themes.Update(ctx, retired); err != nil {
			return MergeOutcome{}, fmt.Errorf("retire theme %d: %w", source.ID(), err)
		}
	}

	if err := e.propagateMerge(ctx, merged, []int64{a.ID(), b.ID()}, batchID); err != nil {
		return MergeOutcome{}, err
	}

	record := theme.NewEvolutionRecord(batchID, theme.ActionMerged, merged.ID(), map[string]any{
		"merged_themes":     []int64{a.ID(), b.ID()},
		"merged_theme_name": mergedName,
		"similarity":        candidate.Similarity,
	}, a.ResponseCount()+b.ResponseCount()).WithRelatedTheme(a.ID())
	if _, err := e.evolution.Append(ctx, record); err != nil {
		return MergeOutcome{}, fmt.Errorf("record merge: %w", err)
	}

	return MergeOutcome{Merged: merged, Sources: [2]theme.Theme{a, b}}, nil
}

// propagateMerge repoints every historical assignment of the source themes
// at the merged theme, preserving confidence and keywords. When one response
// was assigned to both sources, the higher-confidence assignment wins and
// the other is removed. Runs as one transaction.
func (e *ThemeEvolver) propagateMerge(ctx context.Context, merged theme.Theme, sourceIDs []int64, batchID int64) error {
	affected, err := e.assignments.Find(ctx, theme.WithThemeIDIn(sourceIDs))
	if err != nil {
		return fmt.Errorf("load assignments for merge: %w", err)
	}

	winners := map[int64]theme.Assignment{}
	var removeIDs []int64
	for _, a := range affected {
		existing, ok := winners[a.ResponseID()]
		if !ok {
			winners[a.ResponseID()] = a
			continue
		}
		if a.Confidence() > existing.Confidence() {
			removeIDs = append(removeIDs, existing.ID())
			winners[a.ResponseID()] = a
		} else {
			removeIDs = append(removeIDs, a.ID())
		}
	}

	updates := make([]theme.Assignment, 0, len(winners))
	for _, a := range winners {
		updates = append(updates, a.Repoint(merged.ID(), batchID))
	}

	if err := e.assignments.Reconcile(ctx, updates, removeIDs); err != nil {
		return fmt.Errorf("repoint assignments to merged theme: %w", err)
	}
	return e.refreshResponseCount(ctx, merged)
}

// TrySplit checks whether the theme's assigned responses separate into two
// well-distinguished clusters and, if so, executes the split. A split may
// yield zero, one, or two sub-themes because candidate clusters below the
// minimum size are discarded; with zero qualifying sub-themes the theme is
// left untouched.
func (e *ThemeEvolver) TrySplit(ctx context.Context, t theme.Theme, batchID int64) ([]theme.Theme, error) {
	assignments, err := e.assignments.Find(ctx, theme.WithThemeID(t.ID()))
	if err != nil {
		return nil, fmt.Errorf("load assignments for split: %w", err)
	}
	// Meaningful clustering needs a minimum population.
	if len(assignments) < 6 {
		return nil, nil
	}

	embedded, err := e.loadAssignmentEmbeddings(ctx, assignments)
	if err != nil {
		return nil, err
	}
	if len(embedded) < 6 {
		return nil, nil
	}

	vectors := make([][]float64, len(embedded))
	for i, ae := range embedded {
		vectors[i] = ae.embedding
	}
	clustering, ok := search.TwoMeans(vectors)
	if !ok {
		return nil, nil
	}
	if clustering.Score() <= e.thresholds.ThemeSplitVariance() {
		e.logger.DebugContext(ctx, "split rejected", "theme", t.Name(), "silhouette", clustering.Score())
		return nil, nil
	}

	e.logger.InfoContext(ctx, "splitting theme", "theme", t.Name(), "silhouette", clustering.Score())

	labels := clustering.Labels()
	clusters := [2][]assignmentEmbedding{}
	for i, ae := range embedded {
		clusters[labels[i]] = append(clusters[labels[i]], ae)
	}

	var subThemes []theme.Theme
	for clusterID, members := range clusters {
		if len(members) < e.thresholds.MinResponsesPerTheme() {
			continue
		}

		memberVectors := make([][]float64, len(members))
		for i, m := range members {
			memberVectors[i] = m.embedding
		}

		// Sub-themes inherit the original's creation batch so lineage
		// queries by creation batch still find them.
		sub := theme.NewTheme(
			fmt.Sprintf("%s - Cluster %d", t.Name(), clusterID+1),
			fmt.Sprintf("Sub-theme of %s: %s", t.Name(), t.Description()),
			search.Centroid(memberVectors),
			t.CreatedBatch(),
		).
			WithParent(t.ID()).
			WithResponseCount(len(members)).
			WithMetadata(theme.Metadata{
				theme.MetaSplitFrom: t.ID(),
				theme.MetaClusterID: clusterID,
			})
		sub, err := e.themes.Save(ctx, sub)
		if err != nil {
			return nil, fmt.Errorf("save split sub-theme: %w", err)
		}
		subThemes = append(subThemes, sub)
	}

	if len(subThemes) == 0 {
		return nil, nil
	}

	parent, err := t.Transition(theme.StatusSplit, batchID)
	if err != nil {
		return nil, fmt.Errorf("retire split theme %d: %w", t.ID(), err)
	}
	if err := e.themes.Update(ctx, parent); err != nil {
		return nil, fmt.Errorf("retire split theme %d: %w", t.ID(), err)
	}

	if err := e.propagateSplit(ctx, parent, subThemes, embedded, batchID); err != nil {
		return nil, err
	}

	subIDs := make([]int64, len(subThemes))
	for i, s := range subThemes {
		subIDs[i] = s.ID()
	}
	record := theme.NewEvolutionRecord(batchID, theme.ActionSplit, parent.ID(), map[string]any{
		"sub_themes": subIDs,
		"silhouette": clustering.Score(),
	}, len(assignments))
	if _, err := e.evolution.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("record split: %w", err)
	}

	return subThemes, nil
}

// assignmentEmbedding pairs an assignment with its response's embedding.
type assignmentEmbedding struct {
	assignment theme.Assignment
	embedding  []float64
}

func (e *ThemeEvolver) loadAssignmentEmbeddings(ctx context.Context, assignments []theme.Assignment) ([]assignmentEmbedding, error) {
	ids := make([]int64, len(assignments))
	for i, a := range assignments {
		ids[i] = a.ResponseID()
	}
	responses, err := e.responses.Find(ctx, storage.WithIDIn(ids))
	if err != nil {
		return nil, fmt.Errorf("load responses for assignments: %w", err)
	}
	byID := make(map[int64]survey.Response, len(responses))
	for _, r := range responses {
		byID[r.ID()] = r
	}

	var out []assignmentEmbedding
	for _, a := range assignments {
		r, ok := byID[a.ResponseID()]
		if !ok || !r.HasEmbedding() {
			continue
		}
		out = append(out, assignmentEmbedding{assignment: a, embedding: r.Embedding()})
	}
	return out, nil
}

// propagateSplit re-evaluates each affected assignment against the new
// sub-theme embeddings and repoints it at whichever sub-theme its response
// is now most similar to. An exact tie between sub-themes keeps the
// assignment on the original theme. Runs as one transaction.
func (e *ThemeEvolver) propagateSplit(ctx context.Context, parent theme.Theme, subThemes []theme.Theme, embedded []assignmentEmbedding, batchID int64) error {
	var updates []theme.Assignment
	for _, ae := range embedded {
		best := -1
		bestSim := 0.0
		tied := false
		for i, sub := range subThemes {
			sim := e.embeddings.Similarity(ae.embedding, sub.Embedding())
			switch {
			case best == -1 || sim > bestSim:
				best = i
				bestSim = sim
				tied = false
			case sim == bestSim:
				tied = true
			}
		}
		if best == -1 || tied {
			continue
		}

		repointed, err := ae.assignment.Repoint(subThemes[best].ID(), batchID).Rescore(clamp01(bestSim), batchID)
		if err != nil {
			return fmt.Errorf("rescore split assignment %d: %w", ae.assignment.ID(), err)
		}
		updates = append(updates, repointed)
	}

	if err := e.assignments.Reconcile(ctx, updates, nil); err != nil {
		return fmt.Errorf("repoint assignments to sub-themes: %w", err)
	}

	for _, sub := range subThemes {
		if err := e.refreshResponseCount(ctx, sub); err != nil {
			return err
		}
	}
	return e.refreshResponseCount(ctx, parent)
}

// UpdateThemeDescription refreshes a theme's description when newly matched
// responses drift from its embedding. Requires at least 2 new responses and
// 5 pre-existing assignments; with less history drift is unmeasurable.
// Returns the updated theme and true when an update was recorded.
func (e *ThemeEvolver) UpdateThemeDescription(ctx context.Context, t theme.Theme, newResponses []survey.Response, extractor *ThemeExtractor, batchID int64) (theme.Theme, bool, error) {
	if len(newResponses) < 2 {
		return t, false, nil
	}
	history, err := e.assignments.Count(ctx, theme.WithThemeID(t.ID()))
	if err != nil {
		return t, false, fmt.Errorf("count assignments: %w", err)
	}
	if history < 5 {
		return t, false, nil
	}

	drift := e.themeDrift(t, newResponses)
	if drift < e.thresholds.ThemeUpdateDrift() {
		e.logger.DebugContext(ctx, "drift below threshold", "theme", t.Name(), "drift", drift)
		return t, false, nil
	}

	e.logger.InfoContext(ctx, "updating theme description", "theme", t.Name(), "drift", drift)

	texts := make([]string, len(newResponses))
	for i, r := range newResponses {
		texts[i] = r.Text()
	}
	newDescription, err := extractor.UpdateDescription(ctx, t, texts)
	if err != nil {
		return t, false, err
	}
	if newDescription == t.Description() {
		e.logger.DebugContext(ctx, "description unchanged", "theme", t.Name())
		return t, false, nil
	}

	newEmbedding, err := e.embeddings.Embed(ctx, themeEmbeddingText(t.Name(), newDescription))
	if err != nil {
		return t, false, fmt.Errorf("embed updated description: %w", err)
	}
	shift := 1 - e.embeddings.Similarity(t.Embedding(), newEmbedding)

	oldDescription := t.Description()
	updated := t.WithDescription(newDescription, batchID)
	embeddingReplaced := shift > e.thresholds.EmbeddingShiftRecompute()
	if embeddingReplaced {
		e.logger.InfoContext(ctx, "theme embedding shifted, replacing", "theme", t.Name(), "shift", shift)
		updated = updated.WithEmbedding(newEmbedding)
	}

	if err := e.themes.Update(ctx, updated); err != nil {
		return t, false, fmt.Errorf("update theme %d: %w", t.ID(), err)
	}

	if embeddingReplaced {
		if err := e.propagateUpdate(ctx, updated, batchID); err != nil {
			return t, false, err
		}
	}

	record := theme.NewEvolutionRecord(batchID, theme.ActionUpdated, updated.ID(), map[string]any{
		"old_description": oldDescription,
		"new_description": newDescription,
		"drift_score":     drift,
		"embedding_shift": shift,
	}, len(newResponses))
	if _, err := e.evolution.Append(ctx, record); err != nil {
		return t, false, fmt.Errorf("record update: %w", err)
	}

	return updated, true, nil
}

// themeDrift is 1 minus the average similarity of the new responses to the
// theme embedding. Responses without an embedding are skipped per item.
func (e *ThemeEvolver) themeDrift(t theme.Theme, newResponses []survey.Response) float64 {
	if !t.HasEmbedding() {
		return 0
	}
	var sum float64
	counted := 0
	for _, r := range newResponses {
		if !r.HasEmbedding() {
			e.logger.Warn("skipping drift contribution, response has no embedding", "response_id", r.ID())
			continue
		}
		sum += e.embeddings.Similarity(r.Embedding(), t.Embedding())
		counted++
	}
	if counted == 0 {
		return 0
	}
	return 1 - sum/float64(counted)
}

// propagateUpdate re-scores the theme's assignments against its replaced
// embedding. Keyword highlights are left to be recomputed lazily. Runs as
// one transaction.
func (e *ThemeEvolver) propagateUpdate(ctx context.Context, t theme.Theme, batchID int64) error {
	assignments, err := e.assignments.Find(ctx, theme.WithThemeID(t.ID()))
	if err != nil {
		return fmt.Errorf("load assignments for update: %w", err)
	}
	embedded, err := e.loadAssignmentEmbeddings(ctx, assignments)
	if err != nil {
		return err
	}

	var updates []theme.Assignment
	for _, ae := range embedded {
		sim := e.embeddings.Similarity(ae.embedding, t.Embedding())
		rescored, err := ae.assignment.Rescore(clamp01(sim), batchID)
		if err != nil {
			return fmt.Errorf("rescore assignment %d: %w", ae.assignment.ID(), err)
		}
		updates = append(updates, rescored)
	}

	if err := e.assignments.Reconcile(ctx, updates, nil); err != nil {
		return fmt.Errorf("rescore assignments: %w", err)
	}
	return nil
}

// refreshResponseCount restores the invariant that a theme's response count
// equals the count of its assignments.
func (e *ThemeEvolver) refreshResponseCount(ctx context.Context, t theme.Theme) error {
	count, err := e.assignments.Count(ctx, theme.WithThemeID(t.ID()))
	if err != nil {
		return fmt.Errorf("count assignments for theme %d: %w", t.ID(), err)
	}
	if err := e.themes.Update(ctx, t.WithResponseCount(int(count))); err != nil {
		return fmt.Errorf("refresh response count for theme %d: %w", t.ID(), err)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
