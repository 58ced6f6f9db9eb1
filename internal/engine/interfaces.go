package engine

import (
	"context"
	"time"
)

// JobStore persists job records and crawl results.
type JobStore interface {
	CreateJob(ctx context.Context, job CrawlJob) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string) error
	SetProgress(ctx context.Context, jobID string, progress int) error
	FinishJob(ctx context.Context, jobID string, pageCount int, title string) error
	SaveResult(ctx context.Context, jobID string, result AnalysisResult) error
	GetJob(ctx context.Context, jobID string) (CrawlJob, error)
	GetResult(ctx context.Context, jobID string) (AnalysisResult, error)
}

// ArtifactStore writes screenshot and HTML snapshot bytes and returns a
// reference string for the stored object.
type ArtifactStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes job completion notifications to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Session is one exclusively-held browser execution context. A session must
// be released back to its Browser after use; it is never shared between two
// in-flight tasks.
type Session interface {
	// DiscoverLinks navigates with a short ceiling and returns the page's
	// same-origin anchor targets. Used during the discovery phase.
	DiscoverLinks(ctx context.Context, url string) ([]string, error)
	// Extract navigates, removes overlays, and pulls the full structured
	// content of a page, persisting screenshot and HTML artifacts.
	Extract(ctx context.Context, url string, opts ExtractOptions) (PageResult, error)
	// DetectRoutes discovers client-side-only navigation targets on the
	// current seed page. Best effort: an empty result is not an error.
	DetectRoutes(ctx context.Context, baseOrigin string) ([]string, error)
}

// Browser is a fixed-capacity pool of isolated sessions. Acquire blocks
// until a session frees; exhaustion is backpressure, not an error.
type Browser interface {
	Acquire(ctx context.Context) (Session, error)
	Release(s Session)
	Close(ctx context.Context) error
}

// BrowserFactory builds a per-job Browser. Each job owns its pool; no
// sessions are shared across jobs.
type BrowserFactory func(ctx context.Context, jobID string, artifacts ArtifactStore) (Browser, error)

// Prober performs a plain HTTP fetch with anchor harvesting, used to avoid
// spending a rendering session on static pages during discovery.
type Prober interface {
	Fetch(ctx context.Context, url string) (ProbeResponse, error)
}

// RenderDetector decides whether a probed page needs a rendering session to
// surface its links.
type RenderDetector interface {
	ShouldRender(resp ProbeResponse) bool
}

// Queue provides enqueue/dequeue semantics for crawl requests.
type Queue interface {
	Enqueue(ctx context.Context, req CrawlRequest) error
	Dequeue(ctx context.Context) (CrawlRequest, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and page IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
