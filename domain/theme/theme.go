// Package theme provides domain types for semantic themes and their evolution.
package theme

import (
	"errors"
	"time"
)

// Status represents a theme's lifecycle state. Transitions are one-directional:
// active themes may become merged, split, or deleted, and never return.
type Status string

// Status values.
const (
	StatusActive  Status = "active"
	StatusMerged  Status = "merged"
	StatusSplit   Status = "split"
	StatusDeleted Status = "deleted"
)

// IsTerminal returns true for statuses a theme cannot leave.
func (s Status) IsTerminal() bool {
	return s == StatusMerged || s == StatusSplit || s == StatusDeleted
}

// ErrInvalidTransition indicates an attempt to move a theme out of a terminal status.
var ErrInvalidTransition = errors.New("invalid theme status transition")

// Metadata records theme provenance (merge sources, split origin, extraction details).
type Metadata map[string]any

// Clone returns a shallow copy of the metadata.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Metadata keys.
const (
	MetaMergedFrom = "merged_from"
	MetaMergedInto = "merged_into"
	MetaMergeBatch = "merge_batch"
	MetaSplitFrom  = "split_from"
	MetaClusterID  = "cluster_id"
	MetaExtractor  = "extraction_model"
)

// Theme is a persistent cluster of semantically related responses with a
// name, description, and centroid embedding. Themes are never hard-deleted;
// they only transition status so the audit trail survives merges and splits.
type Theme struct {
	id               int64
	name             string
	description      string
	embedding        []float64
	createdBatch     int64
	lastUpdatedBatch int64
	status           Status
	parentThemeID    int64
	responseCount    int
	metadata         Metadata
	createdAt        time.Time
}

// NewTheme creates an active theme for a new, not-yet-persisted cluster.
func NewTheme(name, description string, embedding []float64, createdBatch int64) Theme {
	vec := make([]float64, len(embedding))
	copy(vec, embedding)
	return Theme{
		name:         name,
		description:  description,
		embedding:    vec,
		createdBatch: createdBatch,
		status:       StatusActive,
		createdAt:    time.Now(),
	}
}

// ReconstructTheme recreates a theme from persistence.
func ReconstructTheme(
	id int64,
	name, description string,
	embedding []float64,
	createdBatch, lastUpdatedBatch int64,
	status Status,
	parentThemeID int64,
	responseCount int,
	metadata Metadata,
	createdAt time.Time,
) Theme {
	return Theme{
		id:               id,
		name:             name,
		description:      description,
		embedding:        embedding,
		createdBatch:     createdBatch,
		lastUpdatedBatch: lastUpdatedBatch,
		status:           status,
		parentThemeID:    parentThemeID,
		responseCount:    responseCount,
		metadata:         metadata,
		createdAt:        createdAt,
	}
}

// ID returns the theme's database identifier.
func (t Theme) ID() int64 { return t.id }

// Name returns the theme name.
func (t Theme) Name() string { return t.name }

// Description returns the theme description.
func (t Theme) Description() string { return t.description }

// Embedding returns the theme's centroid embedding.
func (t Theme) Embedding() []float64 {
	if t.embedding == nil {
		return nil
	}
	vec := make([]float64, len(t.embedding))
	copy(vec, t.embedding)
	return vec
}

// HasEmbedding returns true if the theme carries an embedding.
func (t Theme) HasEmbedding() bool { return len(t.embedding) > 0 }

// CreatedBatch returns the batch the theme was created in.
func (t Theme) CreatedBatch() int64 { return t.createdBatch }

// LastUpdatedBatch returns the batch of the last mutation (0 if never updated).
func (t Theme) LastUpdatedBatch() int64 { return t.lastUpdatedBatch }

// Status returns the theme's lifecycle status.
func (t Theme) Status() Status { return t.status }

// IsActive returns true while the theme accepts new assignments.
func (t Theme) IsActive() bool { return t.status == StatusActive }

// ParentThemeID returns the originating theme for split sub-themes (0 if none).
func (t Theme) ParentThemeID() int64 { return t.parentThemeID }

// ResponseCount returns the count of the theme's active assignments.
func (t Theme) ResponseCount() int { return t.responseCount }

// Metadata returns the theme's provenance metadata.
func (t Theme) Metadata() Metadata { return t.metadata.Clone() }

// CreatedAt returns when the theme was created.
func (t Theme) CreatedAt() time.Time { return t.createdAt }

// WithID returns a copy of the theme with the specified ID.
func (t Theme) WithID(id int64) Theme {
	t.id = id
	return t
}

// WithParent returns a copy linked back to an originating theme.
func (t Theme) WithParent(parentID int64) Theme {
	t.parentThemeID = parentID
	return t
}

// WithResponseCount returns a copy with the response count set.
func (t Theme) WithResponseCount(n int) Theme {
	t.responseCount = n
	return t
}

// WithMetadata returns a copy with the metadata replaced.
func (t Theme) WithMetadata(m Metadata) Theme {
	t.metadata = m.Clone()
	return t
}

// WithMetadataValue returns a copy with one metadata key set.
func (t Theme) WithMetadataValue(key string, value any) Theme {
	m := t.metadata.Clone()
	if m == nil {
		m = Metadata{}
	}
	m[key] = value
	t.metadata = m
	return t
}

// WithDescription returns a copy with the description replaced and the
// updating batch recorded.
func (t Theme) WithDescription(description string, batchID int64) Theme {
	t.description = description
	t.lastUpdatedBatch = batchID
	return t
}

// WithEmbedding returns a copy with the centroid embedding replaced.
func (t Theme) WithEmbedding(embedding []float64) Theme {
	vec := make([]float64, len(embedding))
	copy(vec, embedding)
	t.embedding = vec
	return t
}

// Transition moves the theme to a terminal status, recording the batch.
// Returns ErrInvalidTransition if the theme already left active status.
func (t Theme) Transition(to Status, batchID int64) (Theme, error) {
	if t.status != StatusActive {
		return t, ErrInvalidTransition
	}
	if !to.IsTerminal() {
		return t, ErrInvalidTransition
	}
	t.status = to
	t.lastUpdatedBatch = batchID
	return t, nil
}
