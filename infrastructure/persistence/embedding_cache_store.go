package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pulselens/themeline/internal/database"
)

// EmbeddingCacheStore persists embedding vectors keyed by the SHA-256 hash
// of the input text, so identical texts across batches embed once.
type EmbeddingCacheStore struct {
	db database.Database
}

// NewEmbeddingCacheStore creates an EmbeddingCacheStore.
func NewEmbeddingCacheStore(db database.Database) *EmbeddingCacheStore {
	return &EmbeddingCacheStore{db: db}
}

// Get returns the cached vector for the text hash, with ok=false on a miss.
func (s *EmbeddingCacheStore) Get(ctx context.Context, textHash string) ([]float64, bool, error) {
	var model EmbeddingCacheModel
	err := s.db.Session(ctx).Where("text_hash = ?", textHash).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cached embedding: %w", err)
	}
	return model.Embedding, true, nil
}

// Put stores a vector under the text hash. A concurrent writer winning the
// race is fine; the first row is kept and this insert becomes a no-op.
func (s *EmbeddingCacheStore) Put(ctx context.Context, textHash string, vector []float64) error {
	model := EmbeddingCacheModel{
		TextHash:  textHash,
		Embedding: vector,
		CreatedAt: time.Now(),
	}
	err := s.db.Session(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "text_hash"}},
		DoNothing: true,
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("cache embedding: %w", err)
	}
	return nil
}
