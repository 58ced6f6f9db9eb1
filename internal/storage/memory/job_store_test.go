package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitegraph/sitemapper/internal/engine"
)

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	s := NewJobStore()
	ctx := context.Background()
	job := engine.CrawlJob{ID: "j1", SeedURL: "https://example.com", Status: engine.JobStatusPending}

	require.NoError(t, s.CreateJob(ctx, job))
	require.Error(t, s.CreateJob(ctx, job), "duplicate id must be rejected")

	require.NoError(t, s.UpdateJobStatus(ctx, "j1", engine.JobStatusRunning, ""))
	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, engine.JobStatusRunning, got.Status)
	require.NotNil(t, got.Started)

	require.NoError(t, s.SetProgress(ctx, "j1", 40))
	got, err = s.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, 40, got.Progress)

	require.NoError(t, s.SaveResult(ctx, "j1", engine.AnalysisResult{TotalPages: 2}))
	require.NoError(t, s.FinishJob(ctx, "j1", 2, "Example"))

	got, err = s.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, engine.JobStatusCompleted, got.Status)
	require.Equal(t, 100, got.Progress)
	require.Equal(t, 2, got.PageCount)
	require.Equal(t, "Example", got.Title)
	require.NotNil(t, got.Finished)

	result, err := s.GetResult(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, 2, result.TotalPages)
}

func TestJobStoreTerminalGuard(t *testing.T) {
	t.Parallel()

	s := NewJobStore()
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, engine.CrawlJob{ID: "j1", Status: engine.JobStatusPending}))
	require.NoError(t, s.UpdateJobStatus(ctx, "j1", engine.JobStatusFailed, "seed unreachable"))

	require.Error(t, s.UpdateJobStatus(ctx, "j1", engine.JobStatusRunning, ""))
	require.Error(t, s.FinishJob(ctx, "j1", 1, "x"))

	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, engine.JobStatusFailed, got.Status)
	require.Equal(t, "seed unreachable", got.ErrorText)
	require.NotNil(t, got.Finished)
}

func TestJobStoreNotFound(t *testing.T) {
	t.Parallel()

	s := NewJobStore()
	ctx := context.Background()

	_, err := s.GetJob(ctx, "missing")
	require.ErrorIs(t, err, engine.ErrJobNotFound)
	_, err = s.GetResult(ctx, "missing")
	require.ErrorIs(t, err, engine.ErrJobNotFound)
	require.ErrorIs(t, s.UpdateJobStatus(ctx, "missing", engine.JobStatusRunning, ""), engine.ErrJobNotFound)
	require.ErrorIs(t, s.SetProgress(ctx, "missing", 10), engine.ErrJobNotFound)
	require.ErrorIs(t, s.FinishJob(ctx, "missing", 0, ""), engine.ErrJobNotFound)
	require.ErrorIs(t, s.SaveResult(ctx, "missing", engine.AnalysisResult{}), engine.ErrJobNotFound)
}
