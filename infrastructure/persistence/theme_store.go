package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/pulselens/themeline/domain/storage"
	"github.com/pulselens/themeline/domain/theme"
	"github.com/pulselens/themeline/infrastructure/search"
	"github.com/pulselens/themeline/internal/database"
	"github.com/pulselens/themeline/internal/log"
)

// SQL specific to the pgvector similarity side table.
const (
	pgvCreateExtension = `CREATE EXTENSION IF NOT EXISTS vector`

	pgvCreateTableTemplate = `
CREATE TABLE IF NOT EXISTS theme_vectors (
    id SERIAL PRIMARY KEY,
    theme_id BIGINT NOT NULL UNIQUE,
    embedding VECTOR(%d) NOT NULL
)`

	pgvCreateIndex = `
CREATE INDEX IF NOT EXISTS theme_vectors_embedding_idx
ON theme_vectors
USING ivfflat (embedding vector_cosine_ops)
WITH (lists = 100)`

	pgvUpsert = `
INSERT INTO theme_vectors (theme_id, embedding) VALUES (?, ?)
ON CONFLICT (theme_id) DO UPDATE SET embedding = EXCLUDED.embedding`

	pgvSimilarTemplate = `
SELECT v.theme_id AS theme_id, 1 - (v.embedding <=> ?) AS similarity
FROM theme_vectors v
JOIN themes t ON t.id = v.theme_id
WHERE t.status = ? AND 1 - (v.embedding <=> ?) >= ?
ORDER BY v.embedding <=> ? ASC
LIMIT ?`
)

// ErrVectorInitializationFailed indicates pgvector setup failed.
var ErrVectorInitializationFailed = errors.New("failed to initialize theme vector store")

// ThemeStore implements theme.Store using GORM. On PostgreSQL an auxiliary
// pgvector table mirrors theme embeddings so similarity search runs in the
// database; on SQLite similarity is computed in memory.
type ThemeStore struct {
	db     database.Database
	repo   database.Repository[theme.Theme, ThemeModel]
	logger *log.Logger
}

// NewThemeStore creates a ThemeStore, eagerly initializing the pgvector
// side table when the database is PostgreSQL.
func NewThemeStore(ctx context.Context, db database.Database, dimension int, logger *log.Logger) (*ThemeStore, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &ThemeStore{
		db:     db,
		repo:   database.NewRepository[theme.Theme, ThemeModel](db, themeMapper{}, "theme"),
		logger: logger,
	}

	if db.IsPostgres() {
		session := db.Session(ctx)
		if err := session.Exec(pgvCreateExtension).Error; err != nil {
			return nil, errors.Join(ErrVectorInitializationFailed, fmt.Errorf("create extension: %w", err))
		}
		if err := session.Exec(fmt.Sprintf(pgvCreateTableTemplate, dimension)).Error; err != nil {
			return nil, errors.Join(ErrVectorInitializationFailed, fmt.Errorf("create table: %w", err))
		}
		if err := session.Exec(pgvCreateIndex).Error; err != nil {
			logger.Warn("failed to create theme vector index (may already exist)", "error", err)
		}
	}

	return s, nil
}

// Save inserts a theme and returns it with its assigned ID.
func (s *ThemeStore) Save(ctx context.Context, t theme.Theme) (theme.Theme, error) {
	model := s.repo.Mapper().ToModel(t)
	if err := s.repo.DB(ctx).Create(&model).Error; err != nil {
		return theme.Theme{}, fmt.Errorf("save theme: %w", err)
	}
	saved := s.repo.Mapper().ToDomain(model)
	if err := s.syncVector(ctx, saved); err != nil {
		return theme.Theme{}, err
	}
	return saved, nil
}

// Update replaces a persisted theme's mutable fields.
func (s *ThemeStore) Update(ctx context.Context, t theme.Theme) error {
	if t.ID() == 0 {
		return fmt.Errorf("update theme: missing id")
	}
	model := s.repo.Mapper().ToModel(t)
	if err := s.repo.DB(ctx).Save(&model).Error; err != nil {
		return fmt.Errorf("update theme: %w", err)
	}
	return s.syncVector(ctx, t)
}

// Find retrieves themes matching the given options.
func (s *ThemeStore) Find(ctx context.Context, options ...storage.Option) ([]theme.Theme, error) {
	return s.repo.Find(ctx, options...)
}

// FindOne retrieves a single theme matching the given options.
func (s *ThemeStore) FindOne(ctx context.Context, options ...storage.Option) (theme.Theme, error) {
	return s.repo.FindOne(ctx, options...)
}

// SearchSimilar returns themes with the given status whose embedding
// similarity to the query vector is at least the threshold, ordered by
// descending similarity, at most limit rows.
func (s *ThemeStore) SearchSimilar(ctx context.Context, vector []float64, status theme.Status, threshold float64, limit int) ([]theme.Match, error) {
	if limit <= 0 {
		return []theme.Match{}, nil
	}
	if s.db.IsPostgres() {
		return s.searchSimilarPostgres(ctx, vector, status, threshold, limit)
	}
	return s.searchSimilarInMemory(ctx, vector, status, threshold, limit)
}

func (s *ThemeStore) searchSimilarPostgres(ctx context.Context, vector []float64, status theme.Status, threshold float64, limit int) ([]theme.Match, error) {
	type row struct {
		ThemeID    int64   `gorm:"column:theme_id"`
		Similarity float64 `gorm:"column:similarity"`
	}

	pgVec := database.NewPgVector(vector)
	var rows []row
	err := s.db.Session(ctx).
		Raw(pgvSimilarTemplate, pgVec, string(status), pgVec, threshold, pgVec, limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("search similar themes: %w", err)
	}
	if len(rows) == 0 {
		return []theme.Match{}, nil
	}

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ThemeID
	}
	themes, err := s.repo.Find(ctx, storage.WithIDIn(ids))
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]theme.Theme, len(themes))
	for _, t := range themes {
		byID[t.ID()] = t
	}

	matches := make([]theme.Match, 0, len(rows))
	for _, r := range rows {
		t, ok := byID[r.ThemeID]
		if !ok {
			continue
		}
		matches = append(matches, theme.NewMatch(t, r.Similarity))
	}
	return matches, nil
}

func (s *ThemeStore) searchSimilarInMemory(ctx context.Context, vector []float64, status theme.Status, threshold float64, limit int) ([]theme.Match, error) {
	themes, err := s.repo.Find(ctx, theme.WithStatus(status))
	if err != nil {
		return nil, err
	}

	matches := make([]theme.Match, 0, len(themes))
	for _, t := range themes {
		if !t.HasEmbedding() {
			continue
		}
		sim := search.CosineSimilarity(vector, t.Embedding())
		if sim >= threshold {
			matches = append(matches, theme.NewMatch(t, sim))
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity() > matches[j].Similarity()
	})

	if limit < len(matches) {
		matches = matches[:limit]
	}
	return matches, nil
}

// syncVector mirrors the theme embedding into the pgvector side table.
func (s *ThemeStore) syncVector(ctx context.Context, t theme.Theme) error {
	if !s.db.IsPostgres() || !t.HasEmbedding() {
		return nil
	}
	err := s.db.Session(ctx).
		Exec(pgvUpsert, t.ID(), database.NewPgVector(t.Embedding())).Error
	if err != nil {
		return fmt.Errorf("sync theme vector: %w", err)
	}
	return nil
}

var _ theme.Store = (*ThemeStore)(nil)
