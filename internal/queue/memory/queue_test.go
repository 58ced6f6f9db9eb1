package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sitegraph/sitemapper/internal/engine"
)

func TestQueueRoundTrip(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, engine.CrawlRequest{JobID: "a"}))
	require.NoError(t, q.Enqueue(ctx, engine.CrawlRequest{JobID: "b"}))

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", first.JobID)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", second.JobID)
}

func TestQueueEnqueueBlocksWhenFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), engine.CrawlRequest{JobID: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, engine.CrawlRequest{JobID: "b"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueDequeueRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	q.Close() // idempotent

	_, err := q.Dequeue(context.Background())
	require.Error(t, err)
}
