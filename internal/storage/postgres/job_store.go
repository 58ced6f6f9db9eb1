// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitegraph/sitemapper/internal/engine"
)

// JobStoreConfig controls the Postgres connection pool used for job rows.
type JobStoreConfig struct {
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" yaml:"max_conn_lifetime"`
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// JobStore persists crawl jobs and their results in the crawl_jobs table.
// The result column is JSONB holding the serialized AnalysisResult.
type JobStore struct {
	pool pgxQuerier
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg JobStoreConfig) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: pool}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewJobStoreWithPool(pool pgxQuerier) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job engine.CrawlJob) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	query := `
INSERT INTO crawl_jobs (
	id, seed_url, max_pages, plan_tier, status, progress, page_count, title, error_text, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`
	_, err := s.pool.Exec(ctx, query,
		job.ID,
		job.SeedURL,
		job.MaxPages,
		string(job.PlanTier),
		string(job.Status),
		job.Progress,
		job.PageCount,
		job.Title,
		job.ErrorText,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobStatus transitions a job's status. Terminal rows are never
// updated; running stamps started_at once, terminal states stamp
// finished_at.
func (s *JobStore) UpdateJobStatus(ctx context.Context, jobID string, status engine.JobStatus, errText string) error {
	query := `
UPDATE crawl_jobs SET
	status = $2,
	error_text = $3,
	started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN now() ELSE started_at END,
	finished_at = CASE WHEN $2 IN ('completed','failed') THEN now() ELSE finished_at END
WHERE id = $1 AND status NOT IN ('completed','failed')`
	tag, err := s.pool.Exec(ctx, query, jobID, string(status), errText)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrJobNotFound
	}
	return nil
}

// SetProgress updates the completion percentage.
func (s *JobStore) SetProgress(ctx context.Context, jobID string, progress int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_jobs SET progress = $2 WHERE id = $1`, jobID, progress)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrJobNotFound
	}
	return nil
}

// FinishJob marks the job completed with its final page count and title.
func (s *JobStore) FinishJob(ctx context.Context, jobID string, pageCount int, title string) error {
	query := `
UPDATE crawl_jobs SET
	status = 'completed',
	progress = 100,
	page_count = $2,
	title = $3,
	finished_at = now()
WHERE id = $1 AND status NOT IN ('completed','failed')`
	tag, err := s.pool.Exec(ctx, query, jobID, pageCount, title)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrJobNotFound
	}
	return nil
}

// SaveResult stores the serialized analysis output on the job row.
func (s *JobStore) SaveResult(ctx context.Context, jobID string, result engine.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_jobs SET result = $2 WHERE id = $1`, jobID, payload)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrJobNotFound
	}
	return nil
}

// GetJob fetches a job row by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (engine.CrawlJob, error) {
	query := `
SELECT id, seed_url, max_pages, plan_tier, status, progress, page_count,
	title, error_text, created_at, started_at, finished_at
FROM crawl_jobs WHERE id = $1`
	var (
		job      engine.CrawlJob
		planTier string
		status   string
	)
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&job.SeedURL,
		&job.MaxPages,
		&planTier,
		&status,
		&job.Progress,
		&job.PageCount,
		&job.Title,
		&job.ErrorText,
		&job.CreatedAt,
		&job.Started,
		&job.Finished,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.CrawlJob{}, engine.ErrJobNotFound
	}
	if err != nil {
		return engine.CrawlJob{}, fmt.Errorf("select job: %w", err)
	}
	job.PlanTier = engine.PlanTier(planTier)
	job.Status = engine.JobStatus(status)
	return job, nil
}

// GetResult fetches and deserializes the stored analysis output.
func (s *JobStore) GetResult(ctx context.Context, jobID string) (engine.AnalysisResult, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result FROM crawl_jobs WHERE id = $1 AND result IS NOT NULL`, jobID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.AnalysisResult{}, engine.ErrJobNotFound
	}
	if err != nil {
		return engine.AnalysisResult{}, fmt.Errorf("select result: %w", err)
	}
	var result engine.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return engine.AnalysisResult{}, fmt.Errorf("unmarshal result: %w", err)
	}
	return result, nil
}
