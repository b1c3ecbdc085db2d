package survey

import (
	"context"

	"github.com/pulselens/themeline/domain/storage"
)

// ResponseStore persists survey responses.
type ResponseStore interface {
	// Save inserts a response and returns it with its assigned ID.
	Save(ctx context.Context, response Response) (Response, error)

	// Find retrieves responses matching the given options.
	Find(ctx context.Context, options ...storage.Option) ([]Response, error)

	// FindOne retrieves a single response matching the given options.
	FindOne(ctx context.Context, options ...storage.Option) (Response, error)

	// Count returns the number of responses matching the given options.
	Count(ctx context.Context, options ...storage.Option) (int64, error)
}

// BatchStore persists per-batch processing metadata.
type BatchStore interface {
	// Upsert inserts or replaces the metadata row for a batch.
	// Reprocessing the same batch_id overwrites the previous summary.
	Upsert(ctx context.Context, metadata BatchMetadata) error

	// Find retrieves batch metadata matching the given options.
	Find(ctx context.Context, options ...storage.Option) ([]BatchMetadata, error)

	// FindOne retrieves a single batch metadata row.
	FindOne(ctx context.Context, options ...storage.Option) (BatchMetadata, error)
}

// WithBatchID filters by the "batch_id" column.
func WithBatchID(id int64) storage.Option {
	return storage.WithCondition("batch_id", id)
}
