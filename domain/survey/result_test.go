package survey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProcessingResult_Accumulates(t *testing.T) {
	r := NewProcessingResult(3, "What should we improve?").
		WithCounts(10, 7, 3).
		WithNewTheme(ThemeSummary{ThemeID: 1, Name: "Pricing"}).
		WithUpdatedTheme(ThemeSummary{ThemeID: 2, Name: "Speed"}).
		WithMerge(
			ThemeSummary{ThemeID: 4, Name: "A", Reason: "merged into C"},
			ThemeSummary{ThemeID: 5, Name: "B", Reason: "merged into C"},
		).
		WithSplit(ThemeSummary{ThemeID: 6, Name: "Mixed"}, 2).
		WithDuration(2 * time.Second)

	require.Equal(t, int64(3), r.BatchID())
	require.Equal(t, 10, r.TotalResponses())
	require.Equal(t, 7, r.Matched())
	require.Equal(t, 3, r.Unmatched())
	require.Equal(t, 1, r.ThemesCreated())
	require.Equal(t, 1, r.ThemesUpdated())
	require.Equal(t, 1, r.ThemesMerged())
	require.Equal(t, 2, r.ThemesSplit())
	require.Len(t, r.RetiredThemes(), 3)
	require.Equal(t, 2*time.Second, r.Duration())
}

func TestProcessingResult_CopiesAreIndependent(t *testing.T) {
	base := NewProcessingResult(1, "q")
	a := base.WithNewTheme(ThemeSummary{ThemeID: 1, Name: "A"})
	b := base.WithNewTheme(ThemeSummary{ThemeID: 2, Name: "B"})

	require.Zero(t, base.ThemesCreated())
	require.Equal(t, "A", a.NewThemes()[0].Name)
	require.Equal(t, "B", b.NewThemes()[0].Name)
}

func TestAggregate(t *testing.T) {
	results := []ProcessingResult{
		NewProcessingResult(1, "q").WithCounts(5, 0, 5).
			WithNewTheme(ThemeSummary{ThemeID: 1}).
			WithDuration(time.Second),
		NewProcessingResult(2, "q").WithCounts(8, 6, 2).
			WithMerge(ThemeSummary{ThemeID: 2}, ThemeSummary{ThemeID: 3}).
			WithDuration(2 * time.Second),
	}

	s := Aggregate(results)
	require.Equal(t, 2, s.Batches)
	require.Equal(t, 13, s.TotalResponses)
	require.Equal(t, 1, s.ThemesCreated)
	require.Equal(t, 1, s.ThemesMerged)
	require.Equal(t, 3*time.Second, s.Duration)
}
