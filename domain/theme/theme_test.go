package theme

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTheme_Transition(t *testing.T) {
	th := NewTheme("Pricing concerns", "Responses about cost and value.", []float64{0.1, 0.2}, 1)
	require.True(t, th.IsActive())

	merged, err := th.Transition(StatusMerged, 3)
	require.NoError(t, err)
	require.Equal(t, StatusMerged, merged.Status())
	require.Equal(t, int64(3), merged.LastUpdatedBatch())

	// Terminal statuses cannot be left.
	_, err = merged.Transition(StatusActive, 4)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = merged.Transition(StatusSplit, 4)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTheme_TransitionRejectsActiveTarget(t *testing.T) {
	th := NewTheme("Support quality", "Responses about support.", []float64{0.5}, 1)
	_, err := th.Transition(StatusActive, 2)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTheme_MetadataIsolation(t *testing.T) {
	th := NewTheme("Onboarding", "Getting started friction.", nil, 1).
		WithMetadataValue(MetaExtractor, "gpt-4o-mini")

	m := th.Metadata()
	m["injected"] = true

	require.NotContains(t, th.Metadata(), "injected")
	require.Equal(t, "gpt-4o-mini", th.Metadata()[MetaExtractor])
}

func TestTheme_EmbeddingCopies(t *testing.T) {
	vec := []float64{1, 2, 3}
	th := NewTheme("A", "B", vec, 1)
	vec[0] = 99
	require.Equal(t, 1.0, th.Embedding()[0])

	out := th.Embedding()
	out[1] = 99
	require.Equal(t, 2.0, th.Embedding()[1])
}

func TestNewAssignment_ConfidenceRange(t *testing.T) {
	_, err := NewAssignment(1, 2, -0.01, nil, 1)
	require.Error(t, err)
	_, err = NewAssignment(1, 2, 1.01, nil, 1)
	require.Error(t, err)

	a, err := NewAssignment(1, 2, 0.73, nil, 1)
	require.NoError(t, err)
	require.Equal(t, 0.73, a.Confidence())
}

func TestAssignment_RepointPreservesScore(t *testing.T) {
	kw := NewHighlightedKeyword("slow loading", 0.12, []int{4})
	a, err := NewAssignment(10, 20, 0.8, []HighlightedKeyword{kw}, 1)
	require.NoError(t, err)

	moved := a.Repoint(30, 2)
	require.Equal(t, int64(30), moved.ThemeID())
	require.Equal(t, 0.8, moved.Confidence())
	require.Len(t, moved.Keywords(), 1)
	require.Equal(t, int64(2), moved.LastUpdatedBatch())
	// Original is untouched.
	require.Equal(t, int64(20), a.ThemeID())
}

func TestAssignment_RescoreValidates(t *testing.T) {
	a, err := NewAssignment(1, 2, 0.5, nil, 1)
	require.NoError(t, err)

	_, err = a.Rescore(1.5, 2)
	require.Error(t, err)

	rescored, err := a.Rescore(0.9, 2)
	require.NoError(t, err)
	require.Equal(t, 0.9, rescored.Confidence())
}
