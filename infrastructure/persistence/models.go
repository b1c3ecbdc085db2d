// Package persistence provides database storage implementations.
package persistence

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Float64Slice stores an embedding vector as JSON. Portable across SQLite
// and PostgreSQL; vector similarity on PostgreSQL goes through the pgvector
// side table instead (see theme_store.go).
type Float64Slice []float64

// Scan implements sql.Scanner for reading JSON.
func (f *Float64Slice) Scan(value any) error {
	if value == nil {
		*f = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Float64Slice", value)
	}

	return json.Unmarshal(data, f)
}

// Value implements driver.Valuer for writing JSON.
func (f Float64Slice) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}

// JSONMap stores free-form metadata and audit details as a JSON object.
type JSONMap map[string]any

// Scan implements sql.Scanner for reading JSON.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}

	return json.Unmarshal(data, m)
}

// Value implements driver.Valuer for writing JSON.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// KeywordJSON is the serialized form of one highlighted keyword.
type KeywordJSON struct {
	Keyword   string  `json:"keyword"`
	Score     float64 `json:"score"`
	Positions []int   `json:"positions"`
}

// KeywordsJSON stores a response's highlighted keywords as a JSON array.
type KeywordsJSON []KeywordJSON

// Scan implements sql.Scanner for reading JSON.
func (k *KeywordsJSON) Scan(value any) error {
	if value == nil {
		*k = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into KeywordsJSON", value)
	}

	return json.Unmarshal(data, k)
}

// Value implements driver.Valuer for writing JSON.
func (k KeywordsJSON) Value() (driver.Value, error) {
	if k == nil {
		return nil, nil
	}
	return json.Marshal(k)
}

// ResponseModel is the GORM model for survey responses.
type ResponseModel struct {
	ID          int64        `gorm:"column:id;primaryKey;autoIncrement"`
	BatchID     int64        `gorm:"column:batch_id;index"`
	Question    string       `gorm:"column:question"`
	Text        string       `gorm:"column:text"`
	Embedding   Float64Slice `gorm:"column:embedding;type:json"`
	ProcessedAt *time.Time   `gorm:"column:processed_at"`
}

// TableName returns the table name.
func (ResponseModel) TableName() string { return "responses" }

// ThemeModel is the GORM model for themes.
type ThemeModel struct {
	ID               int64        `gorm:"column:id;primaryKey;autoIncrement"`
	Name             string       `gorm:"column:name"`
	Description      string       `gorm:"column:description"`
	Embedding        Float64Slice `gorm:"column:embedding;type:json"`
	CreatedBatch     int64        `gorm:"column:created_batch"`
	LastUpdatedBatch int64        `gorm:"column:last_updated_batch"`
	Status           string       `gorm:"column:status;index"`
	ParentThemeID    int64        `gorm:"column:parent_theme_id;index"`
	ResponseCount    int          `gorm:"column:response_count"`
	Metadata         JSONMap      `gorm:"column:metadata;type:json"`
	CreatedAt        time.Time    `gorm:"column:created_at"`
}

// TableName returns the table name.
func (ThemeModel) TableName() string { return "themes" }

// AssignmentModel is the GORM model for response-to-theme assignments.
// The composite unique index makes re-assignment an upsert.
type AssignmentModel struct {
	ID               int64        `gorm:"column:id;primaryKey;autoIncrement"`
	ResponseID       int64        `gorm:"column:response_id;uniqueIndex:idx_assignments_response_theme"`
	ThemeID          int64        `gorm:"column:theme_id;index;uniqueIndex:idx_assignments_response_theme"`
	Confidence       float64      `gorm:"column:confidence"`
	Keywords         KeywordsJSON `gorm:"column:keywords;type:json"`
	AssignedBatch    int64        `gorm:"column:assigned_batch;index"`
	LastUpdatedBatch int64        `gorm:"column:last_updated_batch"`
	CreatedAt        time.Time    `gorm:"column:created_at"`
}

// TableName returns the table name.
func (AssignmentModel) TableName() string { return "theme_assignments" }

// EvolutionModel is the GORM model for the append-only theme evolution log.
type EvolutionModel struct {
	ID                int64     `gorm:"column:id;primaryKey;autoIncrement"`
	BatchID           int64     `gorm:"column:batch_id;index"`
	Action            string    `gorm:"column:action"`
	ThemeID           int64     `gorm:"column:theme_id;index"`
	RelatedThemeID    int64     `gorm:"column:related_theme_id"`
	Details           JSONMap   `gorm:"column:details;type:json"`
	AffectedResponses int       `gorm:"column:affected_responses"`
	CreatedAt         time.Time `gorm:"column:created_at"`
}

// TableName returns the table name.
func (EvolutionModel) TableName() string { return "theme_evolution" }

// BatchModel is the GORM model for per-batch processing metadata.
// BatchID is the caller-supplied primary key so reprocessing upserts.
type BatchModel struct {
	BatchID        int64     `gorm:"column:batch_id;primaryKey"`
	Question       string    `gorm:"column:question"`
	TotalResponses int       `gorm:"column:total_responses"`
	NewThemes      int       `gorm:"column:new_themes"`
	UpdatedThemes  int       `gorm:"column:updated_themes"`
	DeletedThemes  int       `gorm:"column:deleted_themes"`
	DurationMs     int64     `gorm:"column:duration_ms"`
	ProcessedAt    time.Time `gorm:"column:processed_at"`
}

// TableName returns the table name.
func (BatchModel) TableName() string { return "batch_metadata" }

// EmbeddingCacheModel is the GORM model for the persistent embedding cache,
// keyed by the SHA-256 hash of the input text.
type EmbeddingCacheModel struct {
	ID        int64        `gorm:"column:id;primaryKey;autoIncrement"`
	TextHash  string       `gorm:"column:text_hash;uniqueIndex"`
	Embedding Float64Slice `gorm:"column:embedding;type:json"`
	CreatedAt time.Time    `gorm:"column:created_at"`
}

// TableName returns the table name.
func (EmbeddingCacheModel) TableName() string { return "embedding_cache" }
