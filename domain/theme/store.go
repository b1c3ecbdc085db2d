package theme

import (
	"context"

	"github.com/pulselens/themeline/domain/storage"
)

// Match pairs a theme with its similarity to a query vector.
type Match struct {
	theme      Theme
	similarity float64
}

// NewMatch creates a theme match.
func NewMatch(t Theme, similarity float64) Match {
	return Match{theme: t, similarity: similarity}
}

// Theme returns the matched theme.
func (m Match) Theme() Theme { return m.theme }

// Similarity returns the cosine similarity to the query vector.
func (m Match) Similarity() float64 { return m.similarity }

// Store persists themes.
type Store interface {
	// Save inserts a theme and returns it with its assigned ID.
	Save(ctx context.Context, t Theme) (Theme, error)

	// Update replaces a persisted theme's mutable fields.
	Update(ctx context.Context, t Theme) error

	// Find retrieves themes matching the given options.
	Find(ctx context.Context, options ...storage.Option) ([]Theme, error)

	// FindOne retrieves a single theme matching the given options.
	FindOne(ctx context.Context, options ...storage.Option) (Theme, error)

	// SearchSimilar returns themes with the given status whose embedding
	// similarity to the query vector exceeds the threshold, ordered by
	// descending similarity, at most limit rows.
	SearchSimilar(ctx context.Context, vector []float64, status Status, threshold float64, limit int) ([]Match, error)
}

// AssignmentStore persists response-to-theme assignments.
type AssignmentStore interface {
	// Upsert inserts the assignment or, if one exists for the same
	// (response_id, theme_id), replaces its confidence and keywords.
	Upsert(ctx context.Context, a Assignment) (Assignment, error)

	// Find retrieves assignments matching the given options.
	Find(ctx context.Context, options ...storage.Option) ([]Assignment, error)

	// Count returns the number of assignments matching the given options.
	Count(ctx context.Context, options ...storage.Option) (int64, error)

	// Reconcile applies assignment updates and removals in one transaction.
	// Used by retroactive propagation so a mid-batch failure cannot leave a
	// theme's assignments half-reconciled. Removals run first so updates
	// repointing onto a (response_id, theme_id) pair vacated in the same
	// call do not trip the unique index.
	Reconcile(ctx context.Context, updates []Assignment, removeIDs []int64) error
}

// EvolutionStore persists the append-only theme evolution log.
type EvolutionStore interface {
	// Append adds an audit record; records are never updated.
	Append(ctx context.Context, record EvolutionRecord) (EvolutionRecord, error)

	// Find retrieves audit records matching the given options.
	Find(ctx context.Context, options ...storage.Option) ([]EvolutionRecord, error)
}

// WithStatus filters themes by the "status" column.
func WithStatus(s Status) storage.Option {
	return storage.WithCondition("status", string(s))
}

// WithThemeID filters by the "theme_id" column.
func WithThemeID(id int64) storage.Option {
	return storage.WithCondition("theme_id", id)
}

// WithThemeIDIn filters by the "theme_id" column using IN.
func WithThemeIDIn(ids []int64) storage.Option {
	return storage.WithConditionIn("theme_id", ids)
}

// WithResponseID filters by the "response_id" column.
func WithResponseID(id int64) storage.Option {
	return storage.WithCondition("response_id", id)
}

// WithBatchID filters by the "batch_id" column.
func WithBatchID(id int64) storage.Option {
	return storage.WithCondition("batch_id", id)
}
