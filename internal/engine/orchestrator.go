package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitegraph/sitemapper/internal/progress"
)

// OrchestratorConfig controls job admission and execution.
type OrchestratorConfig struct {
	// DefaultMaxPages applies when a request carries no page budget.
	DefaultMaxPages int
	// PreviewLimit is the fixed budget for preview crawls.
	PreviewLimit int
	// Tiers holds the per-plan page ceilings.
	Tiers TierLimits
	// CompletionTopic receives terminal job notifications; empty disables publishing.
	CompletionTopic string
	// EnqueueTimeout bounds the queue handoff in StartCrawl.
	EnqueueTimeout time.Duration
}

// Orchestrator owns the two-phase crawl pipeline: sequential breadth-first
// discovery on a single session, then parallel extraction across the session
// pool. Each job gets its own Frontier and Browser; jobs share nothing.
type Orchestrator struct {
	jobs             JobStore
	queue            Queue
	browsers         BrowserFactory
	artifacts        ArtifactStore
	previewArtifacts ArtifactStore
	prober           Prober
	detector         RenderDetector
	publisher        Publisher
	emitter          progress.Emitter
	idGen            IDGenerator
	clock            Clock
	cfg              OrchestratorConfig
	logger           *zap.Logger
}

// NewOrchestrator constructs an Orchestrator. previewArtifacts receives
// preview output so it never reaches durable storage; prober, detector,
// publisher, and emitter may be nil.
func NewOrchestrator(
	jobs JobStore,
	queue Queue,
	browsers BrowserFactory,
	artifacts ArtifactStore,
	previewArtifacts ArtifactStore,
	prober Prober,
	detector RenderDetector,
	publisher Publisher,
	emitter progress.Emitter,
	idGen IDGenerator,
	clock Clock,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.DefaultMaxPages <= 0 {
		cfg.DefaultMaxPages = 10
	}
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = 5
	}
	if cfg.Tiers == (TierLimits{}) {
		cfg.Tiers = DefaultTierLimits
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		jobs:             jobs,
		queue:            queue,
		browsers:         browsers,
		artifacts:        artifacts,
		previewArtifacts: previewArtifacts,
		prober:           prober,
		detector:         detector,
		publisher:        publisher,
		emitter:          emitter,
		idGen:            idGen,
		clock:            clock,
		cfg:              cfg,
		logger:           logger,
	}
}

// StartCrawl validates the seed, creates a pending job record, and hands the
// request to the dispatch queue. It returns immediately; completion is
// observed by polling the job record.
func (o *Orchestrator) StartCrawl(ctx context.Context, seedURL string, maxPages int, tier PlanTier) (string, error) {
	seed, err := ParseSeed(seedURL)
	if err != nil {
		return "", err
	}
	budget := o.clampBudget(maxPages, tier)

	jobID, err := o.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := o.clock.Now()
	job := CrawlJob{
		ID:        jobID,
		SeedURL:   seed.String(),
		MaxPages:  budget,
		PlanTier:  tier,
		Status:    JobStatusPending,
		CreatedAt: now,
	}
	if err := o.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	queueCtx, cancel := context.WithTimeout(ctx, o.cfg.EnqueueTimeout)
	defer cancel()
	req := CrawlRequest{
		JobID:     jobID,
		SeedURL:   seed.String(),
		MaxPages:  budget,
		PlanTier:  tier,
		Submitted: now.Unix(),
	}
	if err := o.queue.Enqueue(queueCtx, req); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

// clampBudget applies the plan-tier ceiling. Tier enforcement lives here;
// the Frontier only sees the final numeric cap.
func (o *Orchestrator) clampBudget(maxPages int, tier PlanTier) int {
	if maxPages <= 0 {
		maxPages = o.cfg.DefaultMaxPages
	}
	if limit := o.cfg.Tiers.Limit(tier); maxPages > limit {
		return limit
	}
	return maxPages
}

// Run executes one queued crawl to a terminal state. Per-page extraction
// failures are recorded as omissions; only pool construction or a discovery
// failure on the seed marks the whole job failed.
func (o *Orchestrator) Run(ctx context.Context, req CrawlRequest) {
	start := o.clock.Now()
	if err := o.jobs.UpdateJobStatus(ctx, req.JobID, JobStatusRunning, ""); err != nil {
		o.logger.Error("mark job running failed", zap.String("job_id", req.JobID), zap.Error(err))
		return
	}
	o.emit(req.JobID, progress.Event{Stage: progress.StageJobStart, URL: req.SeedURL})

	result, title, err := o.execute(ctx, crawlParams{
		jobID:     req.JobID,
		seedURL:   req.SeedURL,
		maxPages:  req.MaxPages,
		artifacts: o.artifacts,
		onProgress: func(pct int) {
			if err := o.jobs.SetProgress(ctx, req.JobID, pct); err != nil {
				o.logger.Warn("progress update failed", zap.String("job_id", req.JobID), zap.Error(err))
			}
		},
	})
	elapsed := o.clock.Now().Sub(start)
	if err != nil {
		o.logger.Error("crawl job failed", zap.String("job_id", req.JobID), zap.Error(err))
		if updErr := o.jobs.UpdateJobStatus(ctx, req.JobID, JobStatusFailed, err.Error()); updErr != nil {
			o.logger.Error("mark job failed failed", zap.String("job_id", req.JobID), zap.Error(updErr))
		}
		o.emit(req.JobID, progress.Event{Stage: progress.StageJobError, Dur: elapsed, Note: err.Error()})
		o.publishCompletion(ctx, req.JobID, JobStatusFailed, 0)
		return
	}

	result.Message = fmt.Sprintf("Crawled %d pages", result.TotalPages)
	if err := o.jobs.SaveResult(ctx, req.JobID, result); err != nil {
		o.logger.Error("save result failed", zap.String("job_id", req.JobID), zap.Error(err))
	}
	if err := o.jobs.FinishJob(ctx, req.JobID, result.TotalPages, title); err != nil {
		o.logger.Error("finish job failed", zap.String("job_id", req.JobID), zap.Error(err))
	}
	o.emit(req.JobID, progress.Event{
		Stage: progress.StageJobDone,
		Pages: int64(result.TotalPages),
		Dur:   elapsed,
	})
	o.publishCompletion(ctx, req.JobID, JobStatusCompleted, result.TotalPages)
}

// PreviewCrawl runs the pipeline synchronously with a small fixed budget and
// no job record. Artifacts go to the preview store only.
func (o *Orchestrator) PreviewCrawl(ctx context.Context, seedURL string) (AnalysisResult, error) {
	if _, err := ParseSeed(seedURL); err != nil {
		return AnalysisResult{}, err
	}
	previewID, err := o.idGen.NewID()
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("generate preview id: %w", err)
	}
	result, _, err := o.execute(ctx, crawlParams{
		jobID:     previewID,
		seedURL:   seedURL,
		maxPages:  o.cfg.PreviewLimit,
		artifacts: o.previewArtifacts,
	})
	if err != nil {
		return AnalysisResult{}, err
	}
	result.IsPreview = true
	result.PreviewLimit = o.cfg.PreviewLimit
	result.Message = fmt.Sprintf("Preview limited to %d pages", o.cfg.PreviewLimit)
	return result, nil
}

type crawlParams struct {
	jobID      string
	seedURL    string
	maxPages   int
	artifacts  ArtifactStore
	onProgress func(pct int)
}

// execute runs discovery then extraction and assembles the result. The
// returned title comes from the seed page when it extracted successfully.
func (o *Orchestrator) execute(ctx context.Context, p crawlParams) (AnalysisResult, string, error) {
	frontier, err := NewFrontier(p.seedURL, p.maxPages)
	if err != nil {
		return AnalysisResult{}, "", err
	}

	browser, err := o.browsers(ctx, p.jobID, p.artifacts)
	if err != nil {
		return AnalysisResult{}, "", fmt.Errorf("session pool: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(ctx); closeErr != nil {
			o.logger.Warn("browser close failed", zap.String("job_id", p.jobID), zap.Error(closeErr))
		}
	}()

	urls, err := o.discover(ctx, p.jobID, browser, frontier)
	if err != nil {
		return AnalysisResult{}, "", fmt.Errorf("discovery: %w", err)
	}
	o.emit(p.jobID, progress.Event{
		Stage: progress.StageDiscoveryDone,
		Site:  frontier.HostLabel(),
		Pages: int64(len(urls)),
	})

	results := o.extractAll(ctx, p, browser, frontier.HostLabel(), urls)
	graph := BuildGraph(results)

	title := ""
	if len(results) > 0 {
		title = results[0].Title
		for _, r := range results {
			if r.URL == urls[0] {
				title = r.Title
				break
			}
		}
	}

	return AnalysisResult{
		Results:     results,
		NetworkData: graph,
		TotalPages:  len(results),
	}, title, nil
}

// discover performs the sequential breadth-first walk on one session. The
// Frontier is single-writer here and is not touched again after this
// returns; extraction works from the finalized URL list.
func (o *Orchestrator) discover(ctx context.Context, jobID string, browser Browser, frontier *Frontier) ([]string, error) {
	sess, err := browser.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire discovery session: %w", err)
	}
	defer browser.Release(sess)

	frontier.Enqueue(frontier.origin.String(), 0, "")

	seedProcessed := false
	for {
		entry, ok := frontier.Dequeue()
		if !ok {
			break
		}
		links, err := o.harvestLinks(ctx, sess, entry.URL)
		if err != nil {
			if !seedProcessed {
				return nil, fmt.Errorf("seed page: %w", err)
			}
			o.logger.Debug("discovery skipped page",
				zap.String("job_id", jobID),
				zap.String("url", entry.URL),
				zap.Error(err),
			)
			continue
		}
		if !seedProcessed {
			seedProcessed = true
			for _, route := range o.detectRoutes(ctx, jobID, sess, frontier.Origin()) {
				frontier.Enqueue(route, 1, entry.URL)
			}
		}
		for _, link := range links {
			frontier.Enqueue(link, entry.Depth+1, entry.URL)
		}
	}
	return frontier.Discovered(), nil
}

// harvestLinks tries the cheap probe first and falls back to a rendering
// session when the page looks script-driven or the probe fails.
func (o *Orchestrator) harvestLinks(ctx context.Context, sess Session, url string) ([]string, error) {
	if o.prober != nil {
		resp, err := o.prober.Fetch(ctx, url)
		if err == nil && (o.detector == nil || !o.detector.ShouldRender(resp)) {
			return resp.Links, nil
		}
	}
	links, err := sess.DiscoverLinks(ctx, url)
	if err != nil {
		return nil, err
	}
	return links, nil
}

// detectRoutes runs the best-effort SPA route discovery once, on the seed.
// Any failure only reduces recall; it never aborts the job.
func (o *Orchestrator) detectRoutes(ctx context.Context, jobID string, sess Session, origin string) []string {
	routes, err := sess.DetectRoutes(ctx, origin)
	if err != nil {
		o.logger.Debug("route detection failed",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return nil
	}
	return routes
}

type indexedResult struct {
	index  int
	result PageResult
}

// extractAll fans the finalized URL list across the session pool. The pool's
// capacity is the only concurrency bound; sessions are released on every
// exit path. Failed pages are omissions, never partial results.
func (o *Orchestrator) extractAll(ctx context.Context, p crawlParams, browser Browser, site string, urls []string) []PageResult {
	total := len(urls)
	if total == 0 {
		return nil
	}

	var (
		wg        sync.WaitGroup
		completed atomic.Int64
	)
	resCh := make(chan indexedResult, total)

	for i, pageURL := range urls {
		wg.Add(1)
		go func(index int, pageURL string) {
			defer wg.Done()
			defer o.stepProgress(p, &completed, total)

			sess, err := browser.Acquire(ctx)
			if err != nil {
				o.logger.Warn("session acquire failed",
					zap.String("job_id", p.jobID),
					zap.String("url", pageURL),
					zap.Error(err),
				)
				o.emit(p.jobID, progress.Event{Stage: progress.StagePageSkipped, Site: site, URL: pageURL, Note: err.Error()})
				return
			}
			defer browser.Release(sess)

			o.emit(p.jobID, progress.Event{Stage: progress.StagePageStart, Site: site, URL: pageURL})
			start := o.clock.Now()
			result, err := sess.Extract(ctx, pageURL, ExtractOptions{
				JobID:  p.jobID,
				PageID: o.newPageID(index),
				Index:  index,
				Total:  total,
			})
			elapsed := o.clock.Now().Sub(start)
			if err != nil {
				o.logger.Warn("page extraction failed",
					zap.String("job_id", p.jobID),
					zap.String("url", pageURL),
					zap.Error(err),
				)
				o.emit(p.jobID, progress.Event{
					Stage: progress.StagePageSkipped,
					Site:  site,
					URL:   pageURL,
					Dur:   elapsed,
					Note:  err.Error(),
				})
				return
			}
			o.emit(p.jobID, progress.Event{
				Stage:    progress.StagePageDone,
				Site:     site,
				URL:      result.URL,
				PageType: string(result.PageType),
				Dur:      elapsed,
			})
			resCh <- indexedResult{index: index, result: result}
		}(i, pageURL)
	}
	wg.Wait()
	close(resCh)

	collected := make([]indexedResult, 0, total)
	for r := range resCh {
		collected = append(collected, r)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	results := make([]PageResult, 0, len(collected))
	for _, r := range collected {
		results = append(results, r.result)
	}
	return results
}

func (o *Orchestrator) stepProgress(p crawlParams, completed *atomic.Int64, total int) {
	done := completed.Add(1)
	if p.onProgress != nil {
		pct := int(math.Round(float64(done) / float64(total) * 100))
		p.onProgress(pct)
	}
}

func (o *Orchestrator) newPageID(index int) string {
	id, err := o.idGen.NewID()
	if err != nil {
		return fmt.Sprintf("page-%d", index)
	}
	return id
}

func (o *Orchestrator) emit(jobID string, evt progress.Event) {
	if o.emitter == nil {
		return
	}
	parsed, err := uuid.Parse(jobID)
	if err != nil {
		return
	}
	evt.JobID = progress.UUIDToBytes(parsed)
	evt.TS = o.clock.Now()
	o.emitter.Emit(evt)
}

func (o *Orchestrator) publishCompletion(ctx context.Context, jobID string, status JobStatus, pageCount int) {
	if o.publisher == nil || o.cfg.CompletionTopic == "" {
		return
	}
	payload := map[string]any{
		"job_id":     jobID,
		"status":     string(status),
		"page_count": pageCount,
		"timestamp":  o.clock.Now().Format(time.RFC3339),
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.CompletionTopic, payload); err != nil {
		o.logger.Warn("completion publish failed", zap.String("job_id", jobID), zap.Error(err))
	}
}
