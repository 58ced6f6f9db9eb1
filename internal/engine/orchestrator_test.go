package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeJobStore struct {
	mu      sync.Mutex
	jobs    map[string]CrawlJob
	results map[string]AnalysisResult
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		jobs:    make(map[string]CrawlJob),
		results: make(map[string]AnalysisResult),
	}
}

func (s *fakeJobStore) CreateJob(_ context.Context, job CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeJobStore) UpdateJobStatus(_ context.Context, jobID string, status JobStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.ErrorText = errText
	s.jobs[jobID] = job
	return nil
}

func (s *fakeJobStore) SetProgress(_ context.Context, jobID string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Progress = progress
	s.jobs[jobID] = job
	return nil
}

func (s *fakeJobStore) FinishJob(_ context.Context, jobID string, pageCount int, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = JobStatusCompleted
	job.Progress = 100
	job.PageCount = pageCount
	job.Title = title
	s.jobs[jobID] = job
	return nil
}

func (s *fakeJobStore) SaveResult(_ context.Context, jobID string, result AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[jobID] = result
	return nil
}

func (s *fakeJobStore) GetJob(_ context.Context, jobID string) (CrawlJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return CrawlJob{}, ErrJobNotFound
	}
	return job, nil
}

func (s *fakeJobStore) GetResult(_ context.Context, jobID string) (AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[jobID]
	if !ok {
		return AnalysisResult{}, ErrJobNotFound
	}
	return result, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	reqs []CrawlRequest
}

func (q *fakeQueue) Enqueue(_ context.Context, req CrawlRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reqs = append(q.reqs, req)
	return nil
}

func (q *fakeQueue) Dequeue(_ context.Context) (CrawlRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.reqs) == 0 {
		return CrawlRequest{}, errors.New("empty")
	}
	req := q.reqs[0]
	q.reqs = q.reqs[1:]
	return req, nil
}

type fakeArtifacts struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{objects: make(map[string][]byte)}
}

func (a *fakeArtifacts) PutObject(_ context.Context, path, _ string, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[path] = data
	return "mem://" + path, nil
}

// siteMap describes the fake site: each URL maps to its outgoing links.
type fakeSite struct {
	links    map[string][]string
	titles   map[string]string
	routes   []string
	failURLs map[string]struct{}

	extractDelay  time.Duration
	inFlight      atomic.Int64
	maxInFlight   atomic.Int64
	extractCalls  atomic.Int64
	discoverCalls atomic.Int64
}

type fakeSession struct{ site *fakeSite }

func (s *fakeSession) DiscoverLinks(_ context.Context, url string) ([]string, error) {
	s.site.discoverCalls.Add(1)
	if _, fail := s.site.failURLs[url]; fail {
		return nil, fmt.Errorf("navigate %s: timeout", url)
	}
	return s.site.links[url], nil
}

func (s *fakeSession) Extract(_ context.Context, url string, opts ExtractOptions) (PageResult, error) {
	cur := s.site.inFlight.Add(1)
	for {
		max := s.site.maxInFlight.Load()
		if cur <= max || s.site.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	if s.site.extractDelay > 0 {
		time.Sleep(s.site.extractDelay)
	}
	s.site.inFlight.Add(-1)
	s.site.extractCalls.Add(1)

	if _, fail := s.site.failURLs[url]; fail {
		return PageResult{}, &ExtractionError{URL: url, Err: errors.New("render crashed")}
	}
	title := s.site.titles[url]
	return PageResult{
		ID:       opts.PageID,
		URL:      url,
		Title:    title,
		PageType: Classify(url, title),
		Links:    s.site.links[url],
	}, nil
}

func (s *fakeSession) DetectRoutes(context.Context, string) ([]string, error) {
	return s.site.routes, nil
}

// fakeBrowser is a real fixed-capacity pool over fake sessions, so tests can
// observe the concurrency ceiling the pool is supposed to impose.
type fakeBrowser struct {
	sessions chan Session
	closed   atomic.Bool
}

func newFakeBrowser(site *fakeSite, capacity int) *fakeBrowser {
	b := &fakeBrowser{sessions: make(chan Session, capacity)}
	for i := 0; i < capacity; i++ {
		b.sessions <- &fakeSession{site: site}
	}
	return b
}

func (b *fakeBrowser) Acquire(ctx context.Context) (Session, error) {
	select {
	case s := <-b.sessions:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *fakeBrowser) Release(s Session) { b.sessions <- s }

func (b *fakeBrowser) Close(context.Context) error {
	b.closed.Store(true)
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads []any
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return fmt.Sprintf("msg-%d", len(p.payloads)), nil
}

type seqIDGen struct{ n atomic.Int64 }

func (g *seqIDGen) NewID() (string, error) {
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", g.n.Add(1)), nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type orchestratorFixture struct {
	orch      *Orchestrator
	jobs      *fakeJobStore
	queue     *fakeQueue
	site      *fakeSite
	publisher *fakePublisher
	browser   *fakeBrowser
}

func newOrchestratorFixture(t *testing.T, site *fakeSite, poolSize int, cfg OrchestratorConfig) *orchestratorFixture {
	t.Helper()
	jobs := newFakeJobStore()
	queue := &fakeQueue{}
	publisher := &fakePublisher{}
	browser := newFakeBrowser(site, poolSize)
	factory := func(context.Context, string, ArtifactStore) (Browser, error) {
		return browser, nil
	}
	orch := NewOrchestrator(
		jobs, queue, factory,
		newFakeArtifacts(), newFakeArtifacts(),
		nil, nil,
		publisher, nil,
		&seqIDGen{}, fixedClock{t: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)},
		cfg, nil,
	)
	return &orchestratorFixture{
		orch:      orch,
		jobs:      jobs,
		queue:     queue,
		site:      site,
		publisher: publisher,
		browser:   browser,
	}
}

func TestStartCrawlValidation(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, &fakeSite{}, 1, OrchestratorConfig{})

	_, err := fx.orch.StartCrawl(context.Background(), "not a url", 10, TierFree)
	require.ErrorIs(t, err, ErrInvalidSeed)
	require.Empty(t, fx.jobs.jobs, "no job record for a rejected seed")
	require.Empty(t, fx.queue.reqs)
}

func TestStartCrawlClampsBudgetToTier(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, &fakeSite{}, 1, OrchestratorConfig{DefaultMaxPages: 10})

	jobID, err := fx.orch.StartCrawl(context.Background(), "https://example.com", 500, TierFree)
	require.NoError(t, err)

	job, err := fx.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, JobStatusPending, job.Status)
	require.Equal(t, DefaultTierLimits.Free, job.MaxPages)

	require.Len(t, fx.queue.reqs, 1)
	require.Equal(t, jobID, fx.queue.reqs[0].JobID)
	require.Equal(t, DefaultTierLimits.Free, fx.queue.reqs[0].MaxPages)
}

func TestStartCrawlDefaultBudget(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, &fakeSite{}, 1, OrchestratorConfig{DefaultMaxPages: 8})

	jobID, err := fx.orch.StartCrawl(context.Background(), "https://example.com", 0, TierEnterprise)
	require.NoError(t, err)
	job, err := fx.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, 8, job.MaxPages)
}

func TestRunHappyPath(t *testing.T) {
	t.Parallel()

	site := &fakeSite{
		links: map[string][]string{
			"https://example.com/":        {"https://example.com/about", "https://example.com/contact"},
			"https://example.com/about":   {"https://example.com/"},
			"https://example.com/contact": {},
		},
		titles: map[string]string{
			"https://example.com/":        "Example Home",
			"https://example.com/about":   "About Example",
			"https://example.com/contact": "Contact",
		},
	}
	fx := newOrchestratorFixture(t, site, 2, OrchestratorConfig{CompletionTopic: "crawl-done"})

	jobID, err := fx.orch.StartCrawl(context.Background(), "https://example.com", 10, TierPro)
	require.NoError(t, err)
	req, err := fx.queue.Dequeue(context.Background())
	require.NoError(t, err)

	fx.orch.Run(context.Background(), req)

	job, err := fx.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, JobStatusCompleted, job.Status)
	require.Equal(t, 100, job.Progress)
	require.Equal(t, 3, job.PageCount)
	require.Equal(t, "Example Home", job.Title)
	require.Empty(t, job.ErrorText)

	result, err := fx.jobs.GetResult(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, 3, result.TotalPages)
	require.Len(t, result.Results, 3)
	require.False(t, result.IsPreview)
	require.Len(t, result.NetworkData.Nodes, 3)
	require.Len(t, result.NetworkData.Edges, 3)
	require.Equal(t, "Crawled 3 pages", result.Message)

	// Discovery order is breadth-first from the seed.
	var urls []string
	for _, r := range result.Results {
		urls = append(urls, r.URL)
	}
	require.Equal(t, []string{
		"https://example.com/",
		"https://example.com/about",
		"https://example.com/contact",
	}, urls)

	require.True(t, fx.browser.closed.Load(), "pool must be torn down")
	require.Len(t, fx.publisher.payloads, 1)
}

func TestRunPartialFailureCompletes(t *testing.T) {
	t.Parallel()

	links := map[string][]string{"https://example.com/": nil}
	for i := 1; i <= 4; i++ {
		page := fmt.Sprintf("https://example.com/p%d", i)
		links["https://example.com/"] = append(links["https://example.com/"], page)
		links[page] = nil
	}
	site := &fakeSite{
		links:    links,
		titles:   map[string]string{"https://example.com/": "Home"},
		failURLs: map[string]struct{}{"https://example.com/p3": {}},
	}
	fx := newOrchestratorFixture(t, site, 3, OrchestratorConfig{})

	jobID, err := fx.orch.StartCrawl(context.Background(), "https://example.com", 10, TierPro)
	require.NoError(t, err)
	req, err := fx.queue.Dequeue(context.Background())
	require.NoError(t, err)

	fx.orch.Run(context.Background(), req)

	job, err := fx.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, JobStatusCompleted, job.Status, "one bad page must not fail the job")
	require.Equal(t, 4, job.PageCount)

	result, err := fx.jobs.GetResult(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, result.Results, 4)
	for _, r := range result.Results {
		require.NotEqual(t, "https://example.com/p3", r.URL)
	}
	for _, n := range result.NetworkData.Nodes {
		require.NotEqual(t, "https://example.com/p3", n.URL)
	}
}

func TestRunSeedFailureFailsJob(t *testing.T) {
	t.Parallel()

	site := &fakeSite{
		links:    map[string][]string{},
		failURLs: map[string]struct{}{"https://example.com/": {}},
	}
	fx := newOrchestratorFixture(t, site, 1, OrchestratorConfig{CompletionTopic: "crawl-done"})

	jobID, err := fx.orch.StartCrawl(context.Background(), "https://example.com", 10, TierFree)
	require.NoError(t, err)
	req, err := fx.queue.Dequeue(context.Background())
	require.NoError(t, err)

	fx.orch.Run(context.Background(), req)

	job, err := fx.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, JobStatusFailed, job.Status)
	require.NotEmpty(t, job.ErrorText)
	require.Zero(t, job.PageCount)

	_, err = fx.jobs.GetResult(context.Background(), jobID)
	require.ErrorIs(t, err, ErrJobNotFound)
	require.Len(t, fx.publisher.payloads, 1)
}

func TestRunFactoryFailureFailsJob(t *testing.T) {
	t.Parallel()

	jobs := newFakeJobStore()
	queue := &fakeQueue{}
	factory := func(context.Context, string, ArtifactStore) (Browser, error) {
		return nil, errors.New("chrome not found")
	}
	orch := NewOrchestrator(
		jobs, queue, factory,
		newFakeArtifacts(), newFakeArtifacts(),
		nil, nil, nil, nil,
		&seqIDGen{}, fixedClock{t: time.Now()},
		OrchestratorConfig{}, nil,
	)

	jobID, err := orch.StartCrawl(context.Background(), "https://example.com", 5, TierFree)
	require.NoError(t, err)
	req, err := queue.Dequeue(context.Background())
	require.NoError(t, err)

	orch.Run(context.Background(), req)

	job, err := jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorText, "chrome not found")
}

func TestRunRoutesJoinFrontier(t *testing.T) {
	t.Parallel()

	site := &fakeSite{
		links: map[string][]string{
			"https://example.com/": {},
		},
		routes: []string{
			"https://example.com/app/settings",
			"https://example.com/app/profile",
			"https://other.com/elsewhere", // cross-origin route must be dropped
		},
	}
	fx := newOrchestratorFixture(t, site, 1, OrchestratorConfig{})

	jobID, err := fx.orch.StartCrawl(context.Background(), "https://example.com", 10, TierPro)
	require.NoError(t, err)
	req, err := fx.queue.Dequeue(context.Background())
	require.NoError(t, err)

	fx.orch.Run(context.Background(), req)

	result, err := fx.jobs.GetResult(context.Background(), jobID)
	require.NoError(t, err)
	var urls []string
	for _, r := range result.Results {
		urls = append(urls, r.URL)
	}
	sort.Strings(urls)
	require.Equal(t, []string{
		"https://example.com/",
		"https://example.com/app/profile",
		"https://example.com/app/settings",
	}, urls)
}

func TestExtractionBoundedByPool(t *testing.T) {
	t.Parallel()

	const poolSize = 3
	links := map[string][]string{"https://example.com/": nil}
	for i := 1; i <= 11; i++ {
		page := fmt.Sprintf("https://example.com/p%d", i)
		links["https://example.com/"] = append(links["https://example.com/"], page)
		links[page] = nil
	}
	site := &fakeSite{links: links, extractDelay: 10 * time.Millisecond}
	fx := newOrchestratorFixture(t, site, poolSize, OrchestratorConfig{})

	_, err := fx.orch.StartCrawl(context.Background(), "https://example.com", 20, TierPro)
	require.NoError(t, err)
	req, err := fx.queue.Dequeue(context.Background())
	require.NoError(t, err)

	fx.orch.Run(context.Background(), req)

	require.EqualValues(t, 12, site.extractCalls.Load())
	require.LessOrEqual(t, site.maxInFlight.Load(), int64(poolSize))
}

func TestPreviewCrawl(t *testing.T) {
	t.Parallel()

	links := map[string][]string{"https://example.com/": nil}
	for i := 1; i <= 9; i++ {
		page := fmt.Sprintf("https://example.com/p%d", i)
		links["https://example.com/"] = append(links["https://example.com/"], page)
		links[page] = nil
	}
	site := &fakeSite{links: links, titles: map[string]string{"https://example.com/": "Home"}}
	fx := newOrchestratorFixture(t, site, 2, OrchestratorConfig{PreviewLimit: 5})

	result, err := fx.orch.PreviewCrawl(context.Background(), "https://example.com")
	require.NoError(t, err)

	require.True(t, result.IsPreview)
	require.Equal(t, 5, result.PreviewLimit)
	require.Equal(t, 5, result.TotalPages)
	require.Len(t, result.Results, 5)
	require.Equal(t, "Preview limited to 5 pages", result.Message)

	// Preview leaves no job records behind.
	require.Empty(t, fx.jobs.jobs)
	require.Empty(t, fx.jobs.results)
}

func TestPreviewCrawlInvalidSeed(t *testing.T) {
	t.Parallel()

	fx := newOrchestratorFixture(t, &fakeSite{}, 1, OrchestratorConfig{})
	_, err := fx.orch.PreviewCrawl(context.Background(), "ftp://example.com")
	require.ErrorIs(t, err, ErrInvalidSeed)
}
