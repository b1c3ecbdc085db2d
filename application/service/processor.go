package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pulselens/themeline/domain/storage"
	"github.com/pulselens/themeline/domain/survey"
	"github.com/pulselens/themeline/domain/theme"
	"github.com/pulselens/themeline/internal/config"
	"github.com/pulselens/themeline/internal/log"
)

// ThemeProcessor orchestrates one batch through the full pipeline: embed and
// persist responses, match against active themes, extract new themes for the
// unmatched remainder, merge, split, refresh drifted descriptions, assign
// responses, and record batch metadata. Phases run in a fixed order so
// later phases always observe the theme set the earlier phases produced.
type ThemeProcessor struct {
	responses   survey.ResponseStore
	batches     survey.BatchStore
	themes      theme.Store
	assignments theme.AssignmentStore
	evolution   theme.EvolutionStore
	embeddings  *EmbeddingService
	evolver     *ThemeEvolver
	extractor   *ThemeExtractor
	highlighter *KeywordHighlighter
	thresholds  config.Thresholds
	logger      *log.Logger
}

// NewThemeProcessor creates a ThemeProcessor.
func NewThemeProcessor(
	responses survey.ResponseStore,
	batches survey.BatchStore,
	themes theme.Store,
	assignments theme.AssignmentStore,
	evolution theme.EvolutionStore,
	embeddings *EmbeddingService,
	evolver *ThemeEvolver,
	extractor *ThemeExtractor,
	highlighter *KeywordHighlighter,
	thresholds config.Thresholds,
	logger *log.Logger,
) *ThemeProcessor {
	if logger == nil {
		logger = log.Default()
	}
	return &ThemeProcessor{
		responses:   responses,
		batches:     batches,
		themes:      themes,
		assignments: assignments,
		evolution:   evolution,
		embeddings:  embeddings,
		evolver:     evolver,
		extractor:   extractor,
		highlighter: highlighter,
		thresholds:  thresholds,
		logger:      logger,
	}
}

// ProcessBatch runs one batch through every phase. On error the partial
// result carries the elapsed duration but no batch metadata row is written,
// which is how an operator distinguishes a failed batch from a processed one.
func (p *ThemeProcessor) ProcessBatch(ctx context.Context, batch survey.Batch) (survey.ProcessingResult, error) {
	started := time.Now()
	result := survey.NewProcessingResult(batch.ID(), batch.Question())

	p.logger.InfoContext(ctx, "processing batch", "batch_id", batch.ID(), "responses", batch.Size())

	// Phase 1: embed and persist responses.
	responses, err := p.ingestResponses(ctx, batch)
	if err != nil {
		return result.WithDuration(time.Since(started)), err
	}

	// Phase 2: load the active theme set.
	activeThemes, err := p.themes.Find(ctx, theme.WithStatus(theme.StatusActive))
	if err != nil {
		return result.WithDuration(time.Since(started)), fmt.Errorf("load active themes: %w", err)
	}

	// Phase 3: match responses against the active themes.
	matches := p.evolver.MatchToExisting(responses, activeThemes)
	var unmatched []survey.Response
	matchedByTheme := map[int64][]survey.Response{}
	for _, m := range matches {
		if m.Matched {
			matchedByTheme[m.Theme.ID()] = append(matchedByTheme[m.Theme.ID()], m.Response)
		} else {
			unmatched = append(unmatched, m.Response)
		}
	}
	result = result.WithCounts(len(responses), len(responses)-len(unmatched), len(unmatched))

	// Phase 4: extract new themes from the unmatched remainder.
	result, err = p.extractNewThemes(ctx, batch, unmatched, result)
	if err != nil {
		return result.WithDuration(time.Since(started)), err
	}

	// Phase 5: merge near-duplicate themes, highest similarity first.
	result, err = p.executeMerges(ctx, batch.ID(), result)
	if err != nil {
		return result.WithDuration(time.Since(started)), err
	}

	// Phase 6: split themes whose populations separated into two clusters.
	result, err = p.executeSplits(ctx, batch.ID(), result)
	if err != nil {
		return result.WithDuration(time.Since(started)), err
	}

	// Phase 7: refresh descriptions of themes the batch drifted.
	result, err = p.refreshDrifted(ctx, batch.ID(), matchedByTheme, result)
	if err != nil {
		return result.WithDuration(time.Since(started)), err
	}

	// Phase 8: assign responses to their best surviving theme.
	if err := p.assignResponses(ctx, batch.ID(), responses); err != nil {
		return result.WithDuration(time.Since(started)), err
	}

	// Phase 9: record batch metadata. Written last so its presence means
	// every prior phase completed.
	result = result.WithDuration(time.Since(started))
	metadata := survey.NewBatchMetadata(
		batch.ID(), batch.Question(),
		result.TotalResponses(),
		result.ThemesCreated(), result.ThemesUpdated(), result.ThemesMerged(),
		result.Duration(),
	)
	if err := p.batches.Upsert(ctx, metadata); err != nil {
		return result, fmt.Errorf("record batch metadata: %w", err)
	}

	p.logger.InfoContext(ctx, "batch processed",
		"batch_id", batch.ID(),
		"matched", result.Matched(),
		"unmatched", result.Unmatched(),
		"created", result.ThemesCreated(),
		"updated", result.ThemesUpdated(),
		"merged", result.ThemesMerged(),
		"split", result.ThemesSplit(),
		"duration", result.Duration())
	return result, nil
}

// ingestResponses embeds the batch texts and persists one response row each.
func (p *ThemeProcessor) ingestResponses(ctx context.Context, batch survey.Batch) ([]survey.Response, error) {
	texts := batch.Responses()
	vectors, err := p.embeddings.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch responses: %w", err)
	}

	responses := make([]survey.Response, 0, len(texts))
	for i, text := range texts {
		r := survey.NewResponse(batch.ID(), batch.Question(), text).WithEmbedding(vectors[i])
		r, err := p.responses.Save(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("save response: %w", err)
		}
		responses = append(responses, r)
	}
	return responses, nil
}

// extractNewThemes runs theme extraction over whatever matched nothing, so
// even a single stray response gets a chance at representation; responses
// are never re-fed in later batches.
func (p *ThemeProcessor) extractNewThemes(ctx context.Context, batch survey.Batch, unmatched []survey.Response, result survey.ProcessingResult) (survey.ProcessingResult, error) {
	if len(unmatched) == 0 {
		return result, nil
	}

	texts := make([]string, len(unmatched))
	for i, r := range unmatched {
		texts[i] = r.Text()
	}
	extracted, err := p.extractor.ExtractThemes(ctx, batch.Question(), texts, batch.ID())
	if err != nil {
		return result, fmt.Errorf("extract themes for batch %d: %w", batch.ID(), err)
	}

	for _, t := range extracted {
		saved, err := p.themes.Save(ctx, t)
		if err != nil {
			return result, fmt.Errorf("save extracted theme %q: %w", t.Name(), err)
		}
		record := theme.NewEvolutionRecord(batch.ID(), theme.ActionCreated, saved.ID(), map[string]any{
			"name":        saved.Name(),
			"description": saved.Description(),
		}, len(unmatched))
		if _, err := p.evolution.Append(ctx, record); err != nil {
			return result, fmt.Errorf("record theme creation: %w", err)
		}
		result = result.WithNewTheme(survey.ThemeSummary{
			ThemeID:     saved.ID(),
			Name:        saved.Name(),
			Description: saved.Description(),
		})
	}
	return result, nil
}

// executeMerges detects candidate pairs over the current active set and
// merges them sequentially, highest similarity first. Candidates whose
// themes were consumed by an earlier merge in the same pass are skipped
// inside ExecuteMerge.
func (p *ThemeProcessor) executeMerges(ctx context.Context, batchID int64, result survey.ProcessingResult) (survey.ProcessingResult, error) {
	activeThemes, err := p.themes.Find(ctx, theme.WithStatus(theme.StatusActive))
	if err != nil {
		return result, fmt.Errorf("load themes for merge detection: %w", err)
	}

	for _, candidate := range p.evolver.DetectMerges(activeThemes) {
		outcome, err := p.evolver.ExecuteMerge(ctx, candidate, batchID)
		if err != nil {
			return result, err
		}
		if outcome.Skipped {
			continue
		}
		result = result.WithMerge(
			survey.ThemeSummary{ThemeID: outcome.Sources[0].ID(), Name: outcome.Sources[0].Name(), Reason: "merged into " + outcome.Merged.Name()},
			survey.ThemeSummary{ThemeID: outcome.Sources[1].ID(), Name: outcome.Sources[1].Name(), Reason: "merged into " + outcome.Merged.Name()},
		)
	}
	return result, nil
}

// executeSplits attempts a split on every theme still active after merging.
func (p *ThemeProcessor) executeSplits(ctx context.Context, batchID int64, result survey.ProcessingResult) (survey.ProcessingResult, error) {
	activeThemes, err := p.themes.Find(ctx, theme.WithStatus(theme.StatusActive))
	if err != nil {
		return result, fmt.Errorf("load themes for split detection: %w", err)
	}

	for _, t := range activeThemes {
		subThemes, err := p.evolver.TrySplit(ctx, t, batchID)
		if err != nil {
			return result, fmt.Errorf("split theme %q: %w", t.Name(), err)
		}
		if len(subThemes) == 0 {
			continue
		}
		result = result.WithSplit(survey.ThemeSummary{
			ThemeID: t.ID(),
			Name:    t.Name(),
			Reason:  fmt.Sprintf("split into %d sub-themes", len(subThemes)),
		}, len(subThemes))
	}
	return result, nil
}

// refreshDrifted re-examines the themes that received matches this batch.
// Themes retired by an intervening merge or split are skipped; their matched
// responses are picked up by assignment against the surviving theme set.
func (p *ThemeProcessor) refreshDrifted(ctx context.Context, batchID int64, matchedByTheme map[int64][]survey.Response, result survey.ProcessingResult) (survey.ProcessingResult, error) {
	for themeID, newResponses := range matchedByTheme {
		t, err := p.themes.FindOne(ctx, storage.WithID(themeID))
		if err != nil {
			return result, fmt.Errorf("reload theme %d: %w", themeID, err)
		}
		if !t.IsActive() {
			continue
		}

		updated, changed, err := p.evolver.UpdateThemeDescription(ctx, t, newResponses, p.extractor, batchID)
		if err != nil {
			return result, fmt.Errorf("update theme %q: %w", t.Name(), err)
		}
		if changed {
			result = result.WithUpdatedTheme(survey.ThemeSummary{
				ThemeID:     updated.ID(),
				Name:        updated.Name(),
				Description: updated.Description(),
			})
		}
	}
	return result, nil
}

// assignResponses links each embedded response of the batch to its most
// similar surviving theme, provided the similarity clears the match
// threshold; responses below it stay unassigned until a later batch grows a
// closer theme. Touched themes get their response counts refreshed. A
// keyword highlighting failure degrades to an assignment without keywords;
// it never fails the batch.
func (p *ThemeProcessor) assignResponses(ctx context.Context, batchID int64, responses []survey.Response) error {
	activeThemes, err := p.themes.Find(ctx, theme.WithStatus(theme.StatusActive))
	if err != nil {
		return fmt.Errorf("load themes for assignment: %w", err)
	}
	if len(activeThemes) == 0 {
		p.logger.WarnContext(ctx, "no active themes, leaving batch unassigned", "batch_id", batchID)
		return nil
	}

	touched := map[int64]theme.Theme{}
	for _, r := range responses {
		if !r.HasEmbedding() {
			continue
		}

		var best theme.Theme
		bestSim := -1.0
		for _, t := range activeThemes {
			if !t.HasEmbedding() {
				continue
			}
			if sim := p.embeddings.Similarity(r.Embedding(), t.Embedding()); sim > bestSim {
				bestSim = sim
				best = t
			}
		}
		if bestSim <= p.thresholds.SimilarityExistingTheme() {
			continue
		}

		keywords, err := p.highlighter.Highlight(ctx, r.Text(), best.Embedding())
		if err != nil {
			p.logger.WarnContext(ctx, "keyword highlighting failed, assigning without keywords",
				"response_id", r.ID(), "error", err)
			keywords = nil
		}

		assignment, err := theme.NewAssignment(r.ID(), best.ID(), clamp01(bestSim), keywords, batchID)
		if err != nil {
			return fmt.Errorf("build assignment for response %d: %w", r.ID(), err)
		}
		if _, err := p.assignments.Upsert(ctx, assignment); err != nil {
			return fmt.Errorf("save assignment for response %d: %w", r.ID(), err)
		}
		touched[best.ID()] = best
	}

	for _, t := range touched {
		if err := p.evolver.refreshResponseCount(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
