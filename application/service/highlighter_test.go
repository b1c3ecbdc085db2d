package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulselens/themeline/internal/config"
)

func newTestHighlighter(embedder *fakeEmbedder) *KeywordHighlighter {
	embeddings := NewEmbeddingService(embedder, nil, 2, 3, 1, nil)
	return NewKeywordHighlighter(embeddings, config.NewNgrams(), 0.01, nil)
}

func TestExtractPhrases_Unigrams(t *testing.T) {
	h := newTestHighlighter(&fakeEmbedder{})

	phrases := h.extractPhrases("the ui is very slow")
	// "the" and "is" are stop words, "ui" is below the minimum word length,
	// "very" survives because it carries sentiment signal.
	require.Contains(t, phrases, "very")
	require.Contains(t, phrases, "slow")
	require.NotContains(t, phrases, "the")
	require.NotContains(t, phrases, "ui")
}

func TestExtractPhrases_BigramsSkipDoubleStopwords(t *testing.T) {
	h := newTestHighlighter(&fakeEmbedder{})

	phrases := h.extractPhrases("it is slow today")
	require.NotContains(t, phrases, "it is")
	require.Contains(t, phrases, "is slow")
	require.Contains(t, phrases, "slow today")
}

func TestExtractPhrases_TrigramStopwordCap(t *testing.T) {
	h := newTestHighlighter(&fakeEmbedder{})

	phrases := h.extractPhrases("it is what slow loading page")
	// "it is what" has three stop words, over the cap of one.
	require.NotContains(t, phrases, "it is what")
	require.Contains(t, phrases, "slow loading page")
}

func TestExtractPhrases_Deduplicates(t *testing.T) {
	h := newTestHighlighter(&fakeEmbedder{})

	phrases := h.extractPhrases("slow slow slow")
	count := 0
	for _, p := range phrases {
		if p == "slow" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestHighlight_ScoresAndCaps(t *testing.T) {
	// Theme points along [1,0]. The full text aligns with the theme; with
	// "product" removed only "great" is left, which is orthogonal, so the
	// "product" unigram carries the full similarity. Removing "great" leaves
	// "product", still aligned, so "great" contributes nothing.
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"great product": {1, 0},
		"product":       {1, 0},
		"great":         {0, 1},
	}}
	h := newTestHighlighter(embedder)

	keywords, err := h.Highlight(context.Background(), "great product", []float64{1, 0})
	require.NoError(t, err)
	require.NotEmpty(t, keywords)

	byKeyword := map[string]float64{}
	for _, kw := range keywords {
		byKeyword[kw.Keyword()] = kw.Score()
	}
	// Removing the full bigram empties the text: maximal contribution.
	require.InDelta(t, 1.0, byKeyword["great product"], 1e-9)
	require.InDelta(t, 1.0, byKeyword["product"], 1e-9)
	require.NotContains(t, byKeyword, "great")

	// Scores are sorted descending.
	for i := 1; i < len(keywords); i++ {
		require.GreaterOrEqual(t, keywords[i-1].Score(), keywords[i].Score())
	}
}

func TestHighlightAcrossThemes_KeepsHighestScore(t *testing.T) {
	// Two orthogonal themes in a 3-dim space. The base text sits at [0.8,0.6]
	// across them; each single-word remainder leans on the third axis so the
	// same keyword scores differently against each theme.
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"slow checkout": {0.8, 0.6, 0},
		"checkout":      {0.5, 0, 0.866},
		"slow":          {0, 0.5, 0.866},
	}}
	embeddings := NewEmbeddingService(embedder, nil, 3, 3, 1, nil)
	h := NewKeywordHighlighter(embeddings, config.NewNgrams(), 0.01, nil)

	themeA := []float64{1, 0, 0}
	themeB := []float64{0, 1, 0}

	merged, err := h.HighlightAcrossThemes(context.Background(), "slow checkout", [][]float64{themeA, themeB})
	require.NoError(t, err)
	require.Len(t, merged, 3)

	// Each keyword keeps its best score: the full bigram empties the text
	// under both themes (1.0), "checkout" scores 0.8 against the first theme
	// versus 0.1 against the second, "slow" 0.6 against the second versus
	// 0.3 against the first. The merge is sorted descending.
	require.Equal(t, "slow checkout", merged[0].Keyword())
	require.InDelta(t, 1.0, merged[0].Score(), 1e-9)
	require.Equal(t, "checkout", merged[1].Keyword())
	require.InDelta(t, 0.8, merged[1].Score(), 1e-3)
	require.Equal(t, "slow", merged[2].Keyword())
	require.InDelta(t, 0.6, merged[2].Score(), 1e-3)

	// The merged list re-truncates to the configured cap.
	capped := NewKeywordHighlighter(embeddings,
		config.NewNgramsWithOptions(config.WithMaxKeywordsPerResponse(2)), 0.01, nil)
	merged, err = capped.HighlightAcrossThemes(context.Background(), "slow checkout", [][]float64{themeA, themeB})
	require.NoError(t, err)
	require.Len(t, merged, 2)
	require.Equal(t, "slow checkout", merged[0].Keyword())
	require.Equal(t, "checkout", merged[1].Keyword())
}

func TestHighlight_EmptyText(t *testing.T) {
	h := newTestHighlighter(&fakeEmbedder{})

	keywords, err := h.Highlight(context.Background(), "   ", []float64{1, 0})
	require.NoError(t, err)
	require.Empty(t, keywords)
}

func TestPhrasePositions(t *testing.T) {
	positions := phrasePositions("Slow loading. So slow!", "slow")
	require.Equal(t, []int{0, 17}, positions)

	require.Empty(t, phrasePositions("fast", "slow"))
}

func TestRemovePhrase(t *testing.T) {
	require.Equal(t, "loading today", removePhrase("slow loading Slow today", "slow"))
	// Whole-word only: "slowly" survives.
	require.Equal(t, "slowly going", removePhrase("slowly going", "slow"))
}

func TestTokenize(t *testing.T) {
	require.Equal(t, []string{"it", "s", "a", "great", "day"}, tokenize("It's a GREAT day!"))
}
