package persistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pulselens/themeline/domain/storage"
	"github.com/pulselens/themeline/domain/theme"
	"github.com/pulselens/themeline/internal/database"
)

// AssignmentStore implements theme.AssignmentStore using GORM.
type AssignmentStore struct {
	db   database.Database
	repo database.Repository[theme.Assignment, AssignmentModel]
}

// NewAssignmentStore creates an AssignmentStore.
func NewAssignmentStore(db database.Database) *AssignmentStore {
	return &AssignmentStore{
		db:   db,
		repo: database.NewRepository[theme.Assignment, AssignmentModel](db, assignmentMapper{}, "assignment"),
	}
}

// Upsert inserts the assignment or, if one exists for the same
// (response_id, theme_id), replaces its confidence, keywords, and
// last updated batch.
func (s *AssignmentStore) Upsert(ctx context.Context, a theme.Assignment) (theme.Assignment, error) {
	model := s.repo.Mapper().ToModel(a)
	err := s.repo.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "response_id"}, {Name: "theme_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"confidence", "keywords", "last_updated_batch"}),
	}).Create(&model).Error
	if err != nil {
		return theme.Assignment{}, fmt.Errorf("upsert assignment: %w", err)
	}
	return s.repo.Mapper().ToDomain(model), nil
}

// Find retrieves assignments matching the given options.
func (s *AssignmentStore) Find(ctx context.Context, options ...storage.Option) ([]theme.Assignment, error) {
	return s.repo.Find(ctx, options...)
}

// Count returns the number of assignments matching the given options.
func (s *AssignmentStore) Count(ctx context.Context, options ...storage.Option) (int64, error) {
	return s.repo.Count(ctx, options...)
}

// Reconcile applies assignment updates and removals in one transaction.
// A mid-batch failure rolls back every change so retroactive propagation
// cannot leave a theme's assignments half-reconciled.
func (s *AssignmentStore) Reconcile(ctx context.Context, updates []theme.Assignment, removeIDs []int64) error {
	if len(updates) == 0 && len(removeIDs) == 0 {
		return nil
	}
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if len(removeIDs) > 0 {
			if err := tx.Where("id IN ?", removeIDs).Delete(&AssignmentModel{}).Error; err != nil {
				return fmt.Errorf("remove assignments: %w", err)
			}
		}
		for _, a := range updates {
			if a.ID() == 0 {
				return fmt.Errorf("update assignment: missing id")
			}
			model := s.repo.Mapper().ToModel(a)
			if err := tx.Save(&model).Error; err != nil {
				return fmt.Errorf("update assignment %d: %w", a.ID(), err)
			}
		}
		return nil
	})
}

var _ theme.AssignmentStore = (*AssignmentStore)(nil)
