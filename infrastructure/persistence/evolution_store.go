package persistence

import (
	"context"
	"fmt"

	"github.com/pulselens/themeline/domain/storage"
	"github.com/pulselens/themeline/domain/theme"
	"github.com/pulselens/themeline/internal/database"
)

// EvolutionStore implements theme.EvolutionStore using GORM.
// The log is append-only; rows are never updated or deleted.
type EvolutionStore struct {
	repo database.Repository[theme.EvolutionRecord, EvolutionModel]
}

// NewEvolutionStore creates an EvolutionStore.
func NewEvolutionStore(db database.Database) *EvolutionStore {
	return &EvolutionStore{
		repo: database.NewRepository[theme.EvolutionRecord, EvolutionModel](db, evolutionMapper{}, "evolution record"),
	}
}

// Append adds an audit record and returns it with its assigned ID.
func (s *EvolutionStore) Append(ctx context.Context, record theme.EvolutionRecord) (theme.EvolutionRecord, error) {
	model := s.repo.Mapper().ToModel(record)
	if err := s.repo.DB(ctx).Create(&model).Error; err != nil {
		return theme.EvolutionRecord{}, fmt.Errorf("append evolution record: %w", err)
	}
	return s.repo.Mapper().ToDomain(model), nil
}

// Find retrieves audit records matching the given options.
func (s *EvolutionStore) Find(ctx context.Context, options ...storage.Option) ([]theme.EvolutionRecord, error) {
	return s.repo.Find(ctx, options...)
}

var _ theme.EvolutionStore = (*EvolutionStore)(nil)
