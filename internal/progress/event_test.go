package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	id := UUIDToBytes(uuid.New())
	now := time.Now()

	tests := []struct {
		name    string
		evt     Event
		wantErr string
	}{
		{
			name: "valid job stage",
			evt:  Event{JobID: id, TS: now, Stage: StageJobStart},
		},
		{
			name: "valid page stage with site",
			evt:  Event{JobID: id, TS: now, Stage: StagePageDone, Site: "example.com"},
		},
		{
			name:    "missing job id",
			evt:     Event{TS: now, Stage: StageJobStart},
			wantErr: "job id is required",
		},
		{
			name:    "missing timestamp",
			evt:     Event{JobID: id, Stage: StageJobStart},
			wantErr: "timestamp is required",
		},
		{
			name:    "page stage without site",
			evt:     Event{JobID: id, TS: now, Stage: StagePageSkipped},
			wantErr: "requires site",
		},
		{
			name:    "unknown stage",
			evt:     Event{JobID: id, TS: now, Stage: Stage("WAT")},
			wantErr: "unknown stage",
		},
		{
			name:    "negative duration",
			evt:     Event{JobID: id, TS: now, Stage: StageJobDone, Dur: -time.Second},
			wantErr: "duration",
		},
		{
			name:    "progress out of range",
			evt:     Event{JobID: id, TS: now, Stage: StageJobDone, Progress: 101},
			wantErr: "progress",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.evt.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestJobUUIDRoundTrip(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	evt := Event{JobID: UUIDToBytes(id)}
	require.Equal(t, id, evt.JobUUID())
}
