package persistence

import (
	"context"
	"fmt"

	"github.com/pulselens/themeline/domain/storage"
	"github.com/pulselens/themeline/domain/survey"
	"github.com/pulselens/themeline/internal/database"
)

// ResponseStore implements survey.ResponseStore using GORM.
type ResponseStore struct {
	repo database.Repository[survey.Response, ResponseModel]
}

// NewResponseStore creates a ResponseStore.
func NewResponseStore(db database.Database) *ResponseStore {
	return &ResponseStore{
		repo: database.NewRepository[survey.Response, ResponseModel](db, responseMapper{}, "response"),
	}
}

// Save inserts a response and returns it with its assigned ID. When the
// response already has an ID, its row is updated instead.
func (s *ResponseStore) Save(ctx context.Context, r survey.Response) (survey.Response, error) {
	model := s.repo.Mapper().ToModel(r)
	if err := s.repo.DB(ctx).Save(&model).Error; err != nil {
		return survey.Response{}, fmt.Errorf("save response: %w", err)
	}
	return s.repo.Mapper().ToDomain(model), nil
}

// Find retrieves responses matching the given options.
func (s *ResponseStore) Find(ctx context.Context, options ...storage.Option) ([]survey.Response, error) {
	return s.repo.Find(ctx, options...)
}

// FindOne retrieves a single response matching the given options.
func (s *ResponseStore) FindOne(ctx context.Context, options ...storage.Option) (survey.Response, error) {
	return s.repo.FindOne(ctx, options...)
}

// Count returns the number of responses matching the given options.
func (s *ResponseStore) Count(ctx context.Context, options ...storage.Option) (int64, error) {
	return s.repo.Count(ctx, options...)
}

var _ survey.ResponseStore = (*ResponseStore)(nil)
