package engine

import "time"

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store. Completed and failed are
// terminal; a job never leaves either state.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// PlanTier selects the page-budget ceiling applied to a job.
type PlanTier string

// Supported plan tiers.
const (
	TierFree       PlanTier = "free"
	TierPro        PlanTier = "pro"
	TierEnterprise PlanTier = "enterprise"
)

// TierLimits maps each plan tier to its maximum page budget.
type TierLimits struct {
	Free       int
	Pro        int
	Enterprise int
}

// DefaultTierLimits are used when configuration provides none.
var DefaultTierLimits = TierLimits{Free: 5, Pro: 25, Enterprise: 150}

// Limit returns the page ceiling for the tier. Unknown tiers get the free
// ceiling.
func (t TierLimits) Limit(tier PlanTier) int {
	switch tier {
	case TierPro:
		return t.Pro
	case TierEnterprise:
		return t.Enterprise
	case TierFree:
		return t.Free
	default:
		return t.Free
	}
}

// CrawlJob is the metadata persisted for each submitted crawl. It is owned
// exclusively by the orchestrator and mutated only through the JobStore.
type CrawlJob struct {
	ID        string     `json:"id"`
	SeedURL   string     `json:"seed_url"`
	MaxPages  int        `json:"max_pages"`
	PlanTier  PlanTier   `json:"plan_tier"`
	Status    JobStatus  `json:"status"`
	Progress  int        `json:"progress"`
	PageCount int        `json:"page_count"`
	Title     string     `json:"title,omitempty"`
	ErrorText string     `json:"error_text,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Started   *time.Time `json:"started_at,omitempty"`
	Finished  *time.Time `json:"finished_at,omitempty"`
}

// FrontierEntry is one URL awaiting discovery, with its BFS depth and the
// URL that linked to it. Entries are consumed exactly once.
type FrontierEntry struct {
	URL    string
	Depth  int
	Parent string
}

// Heading is one h1-h6 element captured during extraction.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// PageMetadata carries counts computed once at extraction time.
type PageMetadata struct {
	WordCount  int `json:"wordCount"`
	ImageCount int `json:"imageCount"`
	LinkCount  int `json:"linkCount"`
}

// PageResult is the immutable record produced for each successfully
// extracted page. Screenshot and HTML are stored by reference, never inline.
type PageResult struct {
	ID            string       `json:"id"`
	URL           string       `json:"url"`
	Title         string       `json:"title"`
	PageType      PageType     `json:"pageType"`
	Links         []string     `json:"links"`
	Images        []string     `json:"images"`
	Headings      []Heading    `json:"headings"`
	Forms         int          `json:"forms"`
	Buttons       []string     `json:"buttons"`
	TextContent   string       `json:"textContent"`
	ScreenshotRef string       `json:"screenshotRef,omitempty"`
	HTMLRef       string       `json:"htmlRef,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
	Metadata      PageMetadata `json:"metadata"`
}

// NetworkNode is one page in the rendered site graph.
type NetworkNode struct {
	ID            string   `json:"id"`
	Label         string   `json:"label"`
	Color         string   `json:"color"`
	Type          PageType `json:"type"`
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	ScreenshotRef string   `json:"screenshotRef,omitempty"`
}

// NetworkEdge links two nodes by id.
type NetworkEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NetworkGraph is derived from the full PageResult set at the end of a job;
// it is never mutated incrementally.
type NetworkGraph struct {
	Nodes []NetworkNode `json:"nodes"`
	Edges []NetworkEdge `json:"edges"`
}

// AnalysisResult is the caller-facing output contract of a crawl.
type AnalysisResult struct {
	Results      []PageResult `json:"results"`
	NetworkData  NetworkGraph `json:"networkData"`
	TotalPages   int          `json:"totalPages"`
	IsPreview    bool         `json:"isPreview"`
	PreviewLimit int          `json:"previewLimit"`
	Message      string       `json:"message"`
}

// CrawlRequest is one job ready to run, carried on the dispatch queue.
type CrawlRequest struct {
	JobID     string
	SeedURL   string
	MaxPages  int
	PlanTier  PlanTier
	Submitted int64
}

// ProbeResponse is the result of a lightweight (non-rendering) fetch used
// during discovery.
type ProbeResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Links      []string
	Duration   time.Duration
}

// ExtractOptions parameterizes a single page extraction.
type ExtractOptions struct {
	JobID  string
	PageID string
	Index  int
	Total  int
}
