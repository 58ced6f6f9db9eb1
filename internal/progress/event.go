// Package progress defines the event structures emitted by crawl jobs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart      Stage = "JOB_START"
	StageDiscoveryDone Stage = "DISCOVERY_DONE"
	StagePageStart     Stage = "PAGE_START"
	StagePageDone      Stage = "PAGE_DONE"
	StagePageSkipped   Stage = "PAGE_SKIPPED"
	StageJobDone       Stage = "JOB_DONE"
	StageJobError      Stage = "JOB_ERROR"
)

// Event captures a single milestone of crawl progress.
type Event struct {
	// JobID uniquely identifies a job run using the 16-byte UUID form.
	JobID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or page milestone occurred.
	Stage Stage
	// Site scopes page events to a host label.
	Site string
	// URL is the optional page URL; it should not contain credentials.
	URL string
	// PageType carries the classifier label for completed pages.
	PageType string
	// Pages carries the discovered or completed page count for the stage.
	Pages int64
	// Progress is the job completion percentage at emit time.
	Progress int
	// Dur captures execution latency for extractions and job completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == [16]byte{} {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageDiscoveryDone, StageJobDone, StageJobError:
	case StagePageStart, StagePageDone, StagePageSkipped:
		if e.Site == "" {
			return fmt.Errorf("%s requires site", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Progress < 0 || e.Progress > 100 {
		return errors.New("progress must be within [0,100]")
	}
	return nil
}

// JobUUID converts the binary job ID to uuid.UUID for repositories.
func (e Event) JobUUID() uuid.UUID {
	return uuid.UUID(e.JobID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
