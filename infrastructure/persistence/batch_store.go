package persistence

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/pulselens/themeline/domain/storage"
	"github.com/pulselens/themeline/domain/survey"
	"github.com/pulselens/themeline/internal/database"
)

// BatchStore implements survey.BatchStore using GORM.
type BatchStore struct {
	repo database.Repository[survey.BatchMetadata, BatchModel]
}

// NewBatchStore creates a BatchStore.
func NewBatchStore(db database.Database) *BatchStore {
	return &BatchStore{
		repo: database.NewRepository[survey.BatchMetadata, BatchModel](db, batchMapper{}, "batch metadata"),
	}
}

// Upsert writes the batch summary, replacing any previous row for the same
// batch_id so reprocessing stays idempotent.
func (s *BatchStore) Upsert(ctx context.Context, m survey.BatchMetadata) error {
	model := s.repo.Mapper().ToModel(m)
	err := s.repo.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "batch_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"question", "total_responses", "new_themes",
			"updated_themes", "deleted_themes", "duration_ms", "processed_at",
		}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("upsert batch metadata: %w", err)
	}
	return nil
}

// Find retrieves batch summaries matching the given options.
func (s *BatchStore) Find(ctx context.Context, options ...storage.Option) ([]survey.BatchMetadata, error) {
	return s.repo.Find(ctx, options...)
}

// FindOne retrieves a single batch summary matching the given options.
func (s *BatchStore) FindOne(ctx context.Context, options ...storage.Option) (survey.BatchMetadata, error) {
	return s.repo.FindOne(ctx, options...)
}

var _ survey.BatchStore = (*BatchStore)(nil)
