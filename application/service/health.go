package service

import (
	"context"
	"time"

	"github.com/pulselens/themeline/infrastructure/provider"
	"github.com/pulselens/themeline/internal/log"
)

// Pinger verifies a storage connection is alive.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck is the outcome of probing one dependency.
type HealthCheck struct {
	Name     string        `json:"name"`
	Healthy  bool          `json:"healthy"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// HealthReport aggregates dependency probes.
type HealthReport struct {
	Healthy bool          `json:"healthy"`
	Checks  []HealthCheck `json:"checks"`
}

// HealthService probes the database and the model backends. Probes are
// cheap but real: the embedding probe embeds one short text and the
// generation probe requests a few tokens, so a misconfigured endpoint or
// bad credential surfaces here instead of mid-batch.
type HealthService struct {
	db        Pinger
	embedder  provider.Embedder
	generator provider.TextGenerator
	logger    *log.Logger
}

// NewHealthService creates a HealthService. Nil dependencies are skipped.
func NewHealthService(db Pinger, embedder provider.Embedder, generator provider.TextGenerator, logger *log.Logger) *HealthService {
	if logger == nil {
		logger = log.Default()
	}
	return &HealthService{
		db:        db,
		embedder:  embedder,
		generator: generator,
		logger:    logger,
	}
}

// Check probes every configured dependency and reports per-dependency
// results. A failing probe never aborts the remaining probes.
func (s *HealthService) Check(ctx context.Context) HealthReport {
	report := HealthReport{Healthy: true}

	if s.db != nil {
		report.add(s.probe(ctx, "database", func(ctx context.Context) error {
			return s.db.Ping(ctx)
		}))
	}
	if s.embedder != nil {
		report.add(s.probe(ctx, "embedding_backend", func(ctx context.Context) error {
			_, err := s.embedder.Embed(ctx, []string{"health check"})
			return err
		}))
	}
	if s.generator != nil {
		report.add(s.probe(ctx, "generation_backend", func(ctx context.Context) error {
			opts := provider.NewGenerationOptions().WithMaxTokens(5)
			_, err := s.generator.Generate(ctx, "Reply with OK.", opts)
			return err
		}))
	}

	return report
}

func (s *HealthService) probe(ctx context.Context, name string, fn func(context.Context) error) HealthCheck {
	started := time.Now()
	check := HealthCheck{Name: name, Healthy: true}
	if err := fn(ctx); err != nil {
		s.logger.WarnContext(ctx, "health probe failed", "dependency", name, "error", err)
		check.Healthy = false
		check.Error = err.Error()
	}
	check.Duration = time.Since(started)
	return check
}

func (r *HealthReport) add(check HealthCheck) {
	r.Checks = append(r.Checks, check)
	if !check.Healthy {
		r.Healthy = false
	}
}
