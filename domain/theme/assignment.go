package theme

import (
	"fmt"
	"time"
)

// HighlightedKeyword is a sub-phrase of a response that drives its similarity
// to a theme, with its contribution score and the character offsets where it
// occurs in the original text.
type HighlightedKeyword struct {
	keyword   string
	score     float64
	positions []int
}

// NewHighlightedKeyword creates a highlighted keyword.
func NewHighlightedKeyword(keyword string, score float64, positions []int) HighlightedKeyword {
	pos := make([]int, len(positions))
	copy(pos, positions)
	return HighlightedKeyword{
		keyword:   keyword,
		score:     score,
		positions: pos,
	}
}

// Keyword returns the phrase text.
func (k HighlightedKeyword) Keyword() string { return k.keyword }

// Score returns the phrase's contribution score.
func (k HighlightedKeyword) Score() float64 { return k.score }

// Positions returns the 0-indexed character offsets of each occurrence.
func (k HighlightedKeyword) Positions() []int {
	pos := make([]int, len(k.positions))
	copy(pos, k.positions)
	return pos
}

// Assignment links one response to the theme it currently belongs to.
// Unique per (response_id, theme_id); re-assignment upserts the confidence
// and keywords rather than duplicating the row.
type Assignment struct {
	id               int64
	responseID       int64
	themeID          int64
	confidence       float64
	keywords         []HighlightedKeyword
	assignedBatch    int64
	lastUpdatedBatch int64
	createdAt        time.Time
}

// NewAssignment creates an assignment, validating the confidence range.
func NewAssignment(responseID, themeID int64, confidence float64, keywords []HighlightedKeyword, assignedBatch int64) (Assignment, error) {
	if confidence < 0 || confidence > 1 {
		return Assignment{}, fmt.Errorf("assignment confidence %v outside [0,1]", confidence)
	}
	kws := make([]HighlightedKeyword, len(keywords))
	copy(kws, keywords)
	return Assignment{
		responseID:    responseID,
		themeID:       themeID,
		confidence:    confidence,
		keywords:      kws,
		assignedBatch: assignedBatch,
		createdAt:     time.Now(),
	}, nil
}

// ReconstructAssignment recreates an assignment from persistence.
func ReconstructAssignment(id, responseID, themeID int64, confidence float64, keywords []HighlightedKeyword, assignedBatch, lastUpdatedBatch int64, createdAt time.Time) Assignment {
	return Assignment{
		id:               id,
		responseID:       responseID,
		themeID:          themeID,
		confidence:       confidence,
		keywords:         keywords,
		assignedBatch:    assignedBatch,
		lastUpdatedBatch: lastUpdatedBatch,
		createdAt:        createdAt,
	}
}

// ID returns the assignment's database identifier.
func (a Assignment) ID() int64 { return a.id }

// ResponseID returns the assigned response's identifier.
func (a Assignment) ResponseID() int64 { return a.responseID }

// ThemeID returns the theme the response currently belongs to.
func (a Assignment) ThemeID() int64 { return a.themeID }

// Confidence returns the assignment confidence in [0,1].
func (a Assignment) Confidence() float64 { return a.confidence }

// Keywords returns the highlighted contributing phrases.
func (a Assignment) Keywords() []HighlightedKeyword {
	kws := make([]HighlightedKeyword, len(a.keywords))
	copy(kws, a.keywords)
	return kws
}

// AssignedBatch returns the batch the assignment was first made in.
func (a Assignment) AssignedBatch() int64 { return a.assignedBatch }

// LastUpdatedBatch returns the batch of the last re-assignment (0 if never).
func (a Assignment) LastUpdatedBatch() int64 { return a.lastUpdatedBatch }

// CreatedAt returns when the assignment was created.
func (a Assignment) CreatedAt() time.Time { return a.createdAt }

// WithID returns a copy with the specified ID.
func (a Assignment) WithID(id int64) Assignment {
	a.id = id
	return a
}

// Repoint returns a copy referencing a different theme, preserving the
// confidence and keywords. Used when a merge consumes the original theme.
func (a Assignment) Repoint(themeID, batchID int64) Assignment {
	a.themeID = themeID
	a.lastUpdatedBatch = batchID
	return a
}

// Rescore returns a copy with a new confidence, validating the range.
func (a Assignment) Rescore(confidence float64, batchID int64) (Assignment, error) {
	if confidence < 0 || confidence > 1 {
		return Assignment{}, fmt.Errorf("assignment confidence %v outside [0,1]", confidence)
	}
	a.confidence = confidence
	a.lastUpdatedBatch = batchID
	return a, nil
}

// WithKeywords returns a copy with the highlighted keywords replaced.
func (a Assignment) WithKeywords(keywords []HighlightedKeyword) Assignment {
	kws := make([]HighlightedKeyword, len(keywords))
	copy(kws, keywords)
	a.keywords = kws
	return a
}
