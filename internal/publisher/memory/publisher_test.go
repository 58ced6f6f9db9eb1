package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsNotifications(t *testing.T) {
	t.Parallel()

	p := New()
	id, err := p.Publish(context.Background(), "crawl-done", map[string]any{"job_id": "j1", "status": "completed"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	id, err = p.Publish(context.Background(), "crawl-done", map[string]any{"job_id": "j2", "status": "failed"})
	require.NoError(t, err)
	require.Equal(t, "memory-2", id)

	notes := p.Notifications()
	require.Len(t, notes, 2)
	require.Equal(t, "crawl-done", notes[0].Topic)
	payload := notes[1].Payload.(map[string]any)
	require.Equal(t, "failed", payload["status"])
}

func TestNotificationsReturnsCopy(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.Publish(context.Background(), "t", "payload")
	require.NoError(t, err)

	notes := p.Notifications()
	notes[0].Topic = "mutated"
	require.Equal(t, "t", p.Notifications()[0].Topic)
}
