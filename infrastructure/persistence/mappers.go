package persistence

import (
	"time"

	"github.com/pulselens/themeline/domain/survey"
	"github.com/pulselens/themeline/domain/theme"
)

// responseMapper maps between survey.Response and ResponseModel.
type responseMapper struct{}

func (responseMapper) ToDomain(m ResponseModel) survey.Response {
	var processedAt time.Time
	if m.ProcessedAt != nil {
		processedAt = *m.ProcessedAt
	}
	return survey.ReconstructResponse(m.ID, m.BatchID, m.Question, m.Text, m.Embedding, processedAt)
}

func (responseMapper) ToModel(r survey.Response) ResponseModel {
	m := ResponseModel{
		ID:        r.ID(),
		BatchID:   r.BatchID(),
		Question:  r.Question(),
		Text:      r.Text(),
		Embedding: r.Embedding(),
	}
	if !r.ProcessedAt().IsZero() {
		t := r.ProcessedAt()
		m.ProcessedAt = &t
	}
	return m
}

// themeMapper maps between theme.Theme and ThemeModel.
type themeMapper struct{}

func (themeMapper) ToDomain(m ThemeModel) theme.Theme {
	return theme.ReconstructTheme(
		m.ID,
		m.Name, m.Description,
		m.Embedding,
		m.CreatedBatch, m.LastUpdatedBatch,
		theme.Status(m.Status),
		m.ParentThemeID,
		m.ResponseCount,
		theme.Metadata(m.Metadata),
		m.CreatedAt,
	)
}

func (themeMapper) ToModel(t theme.Theme) ThemeModel {
	return ThemeModel{
		ID:               t.ID(),
		Name:             t.Name(),
		Description:      t.Description(),
		Embedding:        t.Embedding(),
		CreatedBatch:     t.CreatedBatch(),
		LastUpdatedBatch: t.LastUpdatedBatch(),
		Status:           string(t.Status()),
		ParentThemeID:    t.ParentThemeID(),
		ResponseCount:    t.ResponseCount(),
		Metadata:         JSONMap(t.Metadata()),
		CreatedAt:        t.CreatedAt(),
	}
}

// assignmentMapper maps between theme.Assignment and AssignmentModel.
type assignmentMapper struct{}

func (assignmentMapper) ToDomain(m AssignmentModel) theme.Assignment {
	return theme.ReconstructAssignment(
		m.ID, m.ResponseID, m.ThemeID,
		m.Confidence,
		keywordsToDomain(m.Keywords),
		m.AssignedBatch, m.LastUpdatedBatch,
		m.CreatedAt,
	)
}

func (assignmentMapper) ToModel(a theme.Assignment) AssignmentModel {
	return AssignmentModel{
		ID:               a.ID(),
		ResponseID:       a.ResponseID(),
		ThemeID:          a.ThemeID(),
		Confidence:       a.Confidence(),
		Keywords:         keywordsToModel(a.Keywords()),
		AssignedBatch:    a.AssignedBatch(),
		LastUpdatedBatch: a.LastUpdatedBatch(),
		CreatedAt:        a.CreatedAt(),
	}
}

func keywordsToDomain(in KeywordsJSON) []theme.HighlightedKeyword {
	if in == nil {
		return nil
	}
	out := make([]theme.HighlightedKeyword, len(in))
	for i, k := range in {
		out[i] = theme.NewHighlightedKeyword(k.Keyword, k.Score, k.Positions)
	}
	return out
}

func keywordsToModel(in []theme.HighlightedKeyword) KeywordsJSON {
	if in == nil {
		return nil
	}
	out := make(KeywordsJSON, len(in))
	for i, k := range in {
		out[i] = KeywordJSON{
			Keyword:   k.Keyword(),
			Score:     k.Score(),
			Positions: k.Positions(),
		}
	}
	return out
}

// evolutionMapper maps between theme.EvolutionRecord and EvolutionModel.
type evolutionMapper struct{}

func (evolutionMapper) ToDomain(m EvolutionModel) theme.EvolutionRecord {
	return theme.ReconstructEvolutionRecord(
		m.ID, m.BatchID,
		theme.Action(m.Action),
		m.ThemeID, m.RelatedThemeID,
		m.Details,
		m.AffectedResponses,
		m.CreatedAt,
	)
}

func (evolutionMapper) ToModel(r theme.EvolutionRecord) EvolutionModel {
	return EvolutionModel{
		ID:                r.ID(),
		BatchID:           r.BatchID(),
		Action:            string(r.Action()),
		ThemeID:           r.ThemeID(),
		RelatedThemeID:    r.RelatedThemeID(),
		Details:           r.Details(),
		AffectedResponses: r.AffectedResponses(),
		CreatedAt:         r.CreatedAt(),
	}
}

// batchMapper maps between survey.BatchMetadata and BatchModel.
type batchMapper struct{}

func (batchMapper) ToDomain(m BatchModel) survey.BatchMetadata {
	return survey.ReconstructBatchMetadata(
		m.BatchID, m.Question,
		m.TotalResponses, m.NewThemes, m.UpdatedThemes, m.DeletedThemes,
		time.Duration(m.DurationMs)*time.Millisecond,
		m.ProcessedAt,
	)
}

func (batchMapper) ToModel(b survey.BatchMetadata) BatchModel {
	return BatchModel{
		BatchID:        b.BatchID(),
		Question:       b.Question(),
		TotalResponses: b.TotalResponses(),
		NewThemes:      b.NewThemes(),
		UpdatedThemes:  b.UpdatedThemes(),
		DeletedThemes:  b.DeletedThemes(),
		DurationMs:     b.Duration().Milliseconds(),
		ProcessedAt:    b.ProcessedAt(),
	}
}
