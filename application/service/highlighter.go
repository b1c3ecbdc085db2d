package service

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/pulselens/themeline/domain/theme"
	"github.com/pulselens/themeline/internal/config"
	"github.com/pulselens/themeline/internal/log"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// KeywordHighlighter computes which sub-phrases of a response drive its
// similarity to a theme, using leave-one-out contribution: remove the
// phrase, re-embed the remainder, and measure how much similarity drops.
type KeywordHighlighter struct {
	embeddings            *EmbeddingService
	ngrams                config.Ngrams
	contributionThreshold float64
	logger                *log.Logger
}

// NewKeywordHighlighter creates a KeywordHighlighter.
func NewKeywordHighlighter(embeddings *EmbeddingService, ngrams config.Ngrams, contributionThreshold float64, logger *log.Logger) *KeywordHighlighter {
	if logger == nil {
		logger = log.Default()
	}
	return &KeywordHighlighter{
		embeddings:            embeddings,
		ngrams:                ngrams,
		contributionThreshold: contributionThreshold,
		logger:                logger,
	}
}

// Highlight returns the phrases of the response that contribute most to its
// similarity with the theme embedding, sorted by contribution descending and
// capped at the configured maximum. A per-phrase embedding failure skips that
// phrase; it never aborts highlighting for the whole response.
func (h *KeywordHighlighter) Highlight(ctx context.Context, responseText string, themeEmbedding []float64) ([]theme.HighlightedKeyword, error) {
	if strings.TrimSpace(responseText) == "" {
		return nil, nil
	}

	phrases := h.extractPhrases(responseText)
	if len(phrases) == 0 {
		return nil, nil
	}

	baseEmbedding, err := h.embeddings.Embed(ctx, responseText)
	if err != nil {
		return nil, err
	}
	baseSimilarity := h.embeddings.Similarity(baseEmbedding, themeEmbedding)

	var keywords []theme.HighlightedKeyword
	for _, phrase := range phrases {
		contribution, err := h.contribution(ctx, responseText, phrase, themeEmbedding, baseSimilarity)
		if err != nil {
			h.logger.WarnContext(ctx, "skipping phrase, contribution failed", "phrase", phrase, "error", err)
			continue
		}
		if contribution <= h.contributionThreshold {
			continue
		}
		positions := phrasePositions(responseText, phrase)
		keywords = append(keywords, theme.NewHighlightedKeyword(phrase, contribution, positions))
	}

	sort.SliceStable(keywords, func(i, j int) bool {
		return keywords[i].Score() > keywords[j].Score()
	})
	if max := h.ngrams.MaxKeywordsPerResponse(); len(keywords) > max {
		keywords = keywords[:max]
	}
	return keywords, nil
}

// HighlightAcrossThemes merges highlights for one response against multiple
// theme embeddings, keeping each distinct keyword's highest score, then
// re-truncates to the configured maximum.
func (h *KeywordHighlighter) HighlightAcrossThemes(ctx context.Context, responseText string, themeEmbeddings [][]float64) ([]theme.HighlightedKeyword, error) {
	best := map[string]theme.HighlightedKeyword{}
	for _, embedding := range themeEmbeddings {
		keywords, err := h.Highlight(ctx, responseText, embedding)
		if err != nil {
			return nil, err
		}
		for _, kw := range keywords {
			if existing, ok := best[kw.Keyword()]; !ok || kw.Score() > existing.Score() {
				best[kw.Keyword()] = kw
			}
		}
	}

	merged := make([]theme.HighlightedKeyword, 0, len(best))
	for _, kw := range best {
		merged = append(merged, kw)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score() > merged[j].Score()
	})
	if max := h.ngrams.MaxKeywordsPerResponse(); len(merged) > max {
		merged = merged[:max]
	}
	return merged, nil
}

// contribution measures how much similarity drops when the phrase is removed.
// A phrase whose removal empties the text is maximally important (1.0).
func (h *KeywordHighlighter) contribution(ctx context.Context, text, phrase string, themeEmbedding []float64, baseSimilarity float64) (float64, error) {
	remainder := removePhrase(text, phrase)
	if strings.TrimSpace(remainder) == "" {
		return 1.0, nil
	}

	remainderEmbedding, err := h.embeddings.Embed(ctx, remainder)
	if err != nil {
		return 0, err
	}
	contribution := baseSimilarity - h.embeddings.Similarity(remainderEmbedding, themeEmbedding)
	if contribution < 0 {
		return 0, nil
	}
	return contribution, nil
}

// extractPhrases tokenizes the text and generates deduplicated candidate
// unigrams, bigrams, and trigrams with stop-word filtering, order preserved.
func (h *KeywordHighlighter) extractPhrases(text string) []string {
	words := tokenize(text)

	var phrases []string

	if h.ngrams.UseUnigrams() {
		for _, w := range words {
			if isStopWord(w) || len(w) < h.ngrams.MinWordLength() {
				continue
			}
			phrases = append(phrases, w)
		}
	}

	if h.ngrams.UseBigrams() {
		for i := 0; i+1 < len(words); i++ {
			// Dropped only when both tokens are stop words.
			if isStopWord(words[i]) && isStopWord(words[i+1]) {
				continue
			}
			phrases = append(phrases, words[i]+" "+words[i+1])
		}
	}

	if h.ngrams.UseTrigrams() {
		for i := 0; i+2 < len(words); i++ {
			stops := 0
			for _, w := range words[i : i+3] {
				if isStopWord(w) {
					stops++
				}
			}
			if stops > h.ngrams.MaxStopwordsInGram() {
				continue
			}
			phrases = append(phrases, words[i]+" "+words[i+1]+" "+words[i+2])
		}
	}

	seen := make(map[string]struct{}, len(phrases))
	unique := phrases[:0]
	for _, p := range phrases {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	return unique
}

// tokenize lowercases the text and splits it into alphanumeric tokens.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// removePhrase deletes every whole-word, case-insensitive occurrence of the
// phrase and collapses the resulting whitespace.
func removePhrase(text, phrase string) string {
	pattern, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`)
	if err != nil {
		return text
	}
	out := pattern.ReplaceAllString(text, "")
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(out, " "))
}

// phrasePositions returns the 0-indexed character offset of every
// case-insensitive occurrence of the phrase in the original text.
func phrasePositions(text, phrase string) []int {
	lowerText := strings.ToLower(text)
	lowerPhrase := strings.ToLower(phrase)

	var positions []int
	start := 0
	for {
		pos := strings.Index(lowerText[start:], lowerPhrase)
		if pos == -1 {
			break
		}
		positions = append(positions, start+pos)
		start += pos + 1
	}
	return positions
}
