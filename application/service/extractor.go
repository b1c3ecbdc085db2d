package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pulselens/themeline/domain/theme"
	"github.com/pulselens/themeline/infrastructure/provider"
	"github.com/pulselens/themeline/internal/log"
)

// Sampling settings for theme extraction. Low temperature keeps repeated
// extractions consistent without promising exact determinism.
const (
	extractionTemperature = 0.3
	extractionTopP        = 0.9
	extractionMaxTokens   = 2000
	updateMaxTokens       = 200
)

var surroundingQuotes = regexp.MustCompile(`^["']|["']$`)

// ThemeExtractor turns a batch of unmatched responses into candidate themes
// via a generation backend, and regenerates a theme's description when its
// response population drifts.
type ThemeExtractor struct {
	generator  provider.TextGenerator
	embeddings *EmbeddingService
	model      string
	logger     *log.Logger
}

// NewThemeExtractor creates a ThemeExtractor. The model name is recorded in
// extracted theme metadata for provenance.
func NewThemeExtractor(generator provider.TextGenerator, embeddings *EmbeddingService, model string, logger *log.Logger) *ThemeExtractor {
	if logger == nil {
		logger = log.Default()
	}
	return &ThemeExtractor{
		generator:  generator,
		embeddings: embeddings,
		model:      model,
		logger:     logger,
	}
}

// themeCandidate is one element of the backend's extraction payload.
type themeCandidate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ExtractThemes asks the generation backend for 3-5 themes covering the
// given responses and returns them as embedding-ready entities. Zero valid
// themes after validation is a ValidationError; callers must not proceed
// with an empty theme set when extraction was expected to produce themes.
func (e *ThemeExtractor) ExtractThemes(ctx context.Context, question string, responseTexts []string, batchID int64) ([]theme.Theme, error) {
	e.logger.InfoContext(ctx, "extracting themes", "responses", len(responseTexts))

	prompt := extractionPrompt(question, responseTexts)
	opts := provider.NewGenerationOptions().
		WithTemperature(extractionTemperature).
		WithTopP(extractionTopP).
		WithMaxTokens(extractionMaxTokens)

	raw, err := e.generator.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("extract themes: %w", err)
	}

	candidates, err := e.parseThemePayload(ctx, raw)
	if err != nil {
		return nil, err
	}

	themes := make([]theme.Theme, 0, len(candidates))
	for _, c := range candidates {
		embedding, err := e.embeddings.Embed(ctx, themeEmbeddingText(c.Name, c.Description))
		if err != nil {
			return nil, fmt.Errorf("embed extracted theme %q: %w", c.Name, err)
		}
		t := theme.NewTheme(c.Name, c.Description, embedding, batchID).
			WithMetadataValue(theme.MetaExtractor, e.model)
		themes = append(themes, t)
	}

	e.logger.InfoContext(ctx, "extracted themes", "count", len(themes))
	return themes, nil
}

// UpdateDescription issues a narrower prompt with the theme's current
// name and description plus the drift-triggering responses, and expects
// description text only. Empty results fall back to the original
// description; a theme never regresses to an empty description.
func (e *ThemeExtractor) UpdateDescription(ctx context.Context, t theme.Theme, newResponseTexts []string) (string, error) {
	prompt := updatePrompt(t, newResponseTexts)
	opts := provider.NewGenerationOptions().
		WithTemperature(extractionTemperature).
		WithMaxTokens(updateMaxTokens)

	raw, err := e.generator.Generate(ctx, prompt, opts)
	if err != nil {
		return "", fmt.Errorf("update theme description: %w", err)
	}

	updated := strings.TrimSpace(raw)
	updated = strings.TrimSpace(surroundingQuotes.ReplaceAllString(updated, ""))
	if updated == "" {
		e.logger.WarnContext(ctx, "empty description returned, keeping original", "theme", t.Name())
		return t.Description(), nil
	}
	return updated, nil
}

// parseThemePayload extracts the JSON array from the raw backend output,
// tolerating leading and trailing commentary, and validates each element.
func (e *ThemeExtractor) parseThemePayload(ctx context.Context, raw string) ([]themeCandidate, error) {
	start := strings.Index(raw, "[")
	if start == -1 {
		return nil, NewParseError("parse themes", "no JSON array found in response", nil)
	}
	end := strings.LastIndex(raw, "]")
	if end == -1 || end < start {
		return nil, NewParseError("parse themes", "no complete JSON array found in response", nil)
	}

	payload := whitespaceRun.ReplaceAllString(raw[start:end+1], " ")

	var candidates []themeCandidate
	if err := json.Unmarshal([]byte(payload), &candidates); err != nil {
		return nil, NewParseError("parse themes", "invalid JSON payload", err)
	}

	valid := candidates[:0]
	for _, c := range candidates {
		c.Name = strings.TrimSpace(c.Name)
		c.Description = strings.TrimSpace(c.Description)
		if c.Name == "" || c.Description == "" {
			e.logger.WarnContext(ctx, "dropping theme with missing name or description", "name", c.Name)
			continue
		}
		valid = append(valid, c)
	}

	if len(valid) == 0 {
		return nil, NewValidationError("parse themes", "no valid themes found in response")
	}
	return valid, nil
}

// themeEmbeddingText is the canonical text a theme's embedding is computed from.
func themeEmbeddingText(name, description string) string {
	return name + ": " + description
}

func formatResponses(texts []string) string {
	var b strings.Builder
	for i, text := range texts {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Response %d: %s", i+1, text)
	}
	return b.String()
}

func extractionPrompt(question string, responseTexts []string) string {
	return fmt.Sprintf(`You are analyzing survey responses to identify high-level themes.

Question: %s

Responses:
%s

Extract 3-5 high-level themes that capture the main patterns in these responses. Each theme should:
1. Represent a distinct concept or concern
2. Be broad enough to encompass multiple responses
3. Be specific enough to be actionable

For each theme provide:
1. A concise name (3-5 words)
2. A detailed description (1-2 sentences explaining what this theme represents)

Output as JSON array:
[
  {"name": "Theme Name", "description": "Theme description"},
  {"name": "Another Theme", "description": "Another description"}
]

Focus on identifying the core patterns, not just summarizing individual responses. Look for underlying concerns, motivations, or challenges that multiple people are expressing.`, question, formatResponses(responseTexts))
}

func updatePrompt(t theme.Theme, newResponseTexts []string) string {
	return fmt.Sprintf(`You are updating a theme description based on new survey responses.

Existing Theme:
Name: %s
Current Description: %s

New Responses:
%s

Update the theme description to better reflect both the original theme and these new responses. The description should:
1. Maintain the core concept of the original theme
2. Incorporate insights from the new responses
3. Be more comprehensive and accurate
4. Remain concise (1-2 sentences)

Provide only the updated description, no other text.`, t.Name(), t.Description(), formatResponses(newResponseTexts))
}
