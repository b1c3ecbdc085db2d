package survey

import "time"

// ThemeSummary is a read-only view of a theme for processing results.
type ThemeSummary struct {
	ThemeID     int64  `json:"theme_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Reason      string `json:"reason,omitempty"`
}

// ProcessingResult is the outcome of processing one batch. It replaces the
// original's shared statistics accumulator: each call returns its own counts
// and the caller aggregates across batches.
type ProcessingResult struct {
	batchID        int64
	question       string
	newThemes      []ThemeSummary
	updatedThemes  []ThemeSummary
	retiredThemes  []ThemeSummary
	totalResponses int
	matched        int
	unmatched      int
	themesCreated  int
	themesUpdated  int
	themesMerged   int
	themesSplit    int
	duration       time.Duration
}

// NewProcessingResult creates an empty result for a batch.
func NewProcessingResult(batchID int64, question string) ProcessingResult {
	return ProcessingResult{
		batchID:  batchID,
		question: question,
	}
}

// BatchID returns the processed batch's identifier.
func (r ProcessingResult) BatchID() int64 { return r.batchID }

// Question returns the batch's survey question.
func (r ProcessingResult) Question() string { return r.question }

// NewThemes returns summaries of themes created by the batch.
func (r ProcessingResult) NewThemes() []ThemeSummary { return copySummaries(r.newThemes) }

// UpdatedThemes returns summaries of themes whose descriptions were updated.
func (r ProcessingResult) UpdatedThemes() []ThemeSummary { return copySummaries(r.updatedThemes) }

// RetiredThemes returns summaries of themes that left active status.
func (r ProcessingResult) RetiredThemes() []ThemeSummary { return copySummaries(r.retiredThemes) }

// TotalResponses returns how many responses the batch contained.
func (r ProcessingResult) TotalResponses() int { return r.totalResponses }

// Matched returns how many responses matched an existing theme.
func (r ProcessingResult) Matched() int { return r.matched }

// Unmatched returns how many responses fed new-theme extraction.
func (r ProcessingResult) Unmatched() int { return r.unmatched }

// ThemesCreated returns the number of themes created.
func (r ProcessingResult) ThemesCreated() int { return r.themesCreated }

// ThemesUpdated returns the number of theme descriptions updated.
func (r ProcessingResult) ThemesUpdated() int { return r.themesUpdated }

// ThemesMerged returns the number of merges executed.
func (r ProcessingResult) ThemesMerged() int { return r.themesMerged }

// ThemesSplit returns the number of new sub-themes produced by splits.
func (r ProcessingResult) ThemesSplit() int { return r.themesSplit }

// Duration returns the wall-clock processing time.
func (r ProcessingResult) Duration() time.Duration { return r.duration }

// WithCounts returns a copy with the response counters set.
func (r ProcessingResult) WithCounts(total, matched, unmatched int) ProcessingResult {
	r.totalResponses = total
	r.matched = matched
	r.unmatched = unmatched
	return r
}

// WithNewTheme appends a created theme summary.
func (r ProcessingResult) WithNewTheme(s ThemeSummary) ProcessingResult {
	r.newThemes = append(copySummaries(r.newThemes), s)
	r.themesCreated++
	return r
}

// WithUpdatedTheme appends an updated theme summary.
func (r ProcessingResult) WithUpdatedTheme(s ThemeSummary) ProcessingResult {
	r.updatedThemes = append(copySummaries(r.updatedThemes), s)
	r.themesUpdated++
	return r
}

// WithMerge appends a retired theme summary for an executed merge.
func (r ProcessingResult) WithMerge(retired ...ThemeSummary) ProcessingResult {
	r.retiredThemes = append(copySummaries(r.retiredThemes), retired...)
	r.themesMerged++
	return r
}

// WithSplit records sub-themes produced by a split and the retired parent.
func (r ProcessingResult) WithSplit(parent ThemeSummary, subThemes int) ProcessingResult {
	r.retiredThemes = append(copySummaries(r.retiredThemes), parent)
	r.themesSplit += subThemes
	return r
}

// WithDuration returns a copy with the duration set.
func (r ProcessingResult) WithDuration(d time.Duration) ProcessingResult {
	r.duration = d
	return r
}

func copySummaries(in []ThemeSummary) []ThemeSummary {
	if in == nil {
		return nil
	}
	out := make([]ThemeSummary, len(in))
	copy(out, in)
	return out
}

// RunSummary aggregates processing results across batches.
type RunSummary struct {
	Batches        int
	TotalResponses int
	ThemesCreated  int
	ThemesUpdated  int
	ThemesMerged   int
	ThemesSplit    int
	Duration       time.Duration
}

// Aggregate folds a set of per-batch results into a run summary.
func Aggregate(results []ProcessingResult) RunSummary {
	var s RunSummary
	for _, r := range results {
		s.Batches++
		s.TotalResponses += r.TotalResponses()
		s.ThemesCreated += r.ThemesCreated()
		s.ThemesUpdated += r.ThemesUpdated()
		s.ThemesMerged += r.ThemesMerged()
		s.ThemesSplit += r.ThemesSplit()
		s.Duration += r.Duration()
	}
	return s
}
