// Package browser runs headless Chrome sessions for discovery and
// extraction via chromedp.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sitegraph/sitemapper/internal/engine"
)

// Config controls the per-job session pool.
type Config struct {
	// PoolSize is the number of concurrently usable tabs (default 5).
	PoolSize int
	// UserAgent overrides the browser user agent when non-empty.
	UserAgent string
	// ViewportWidth and ViewportHeight size the browser window (default 1280x800).
	ViewportWidth  int
	ViewportHeight int
	// NavigationTimeout bounds a full extraction navigation (default 45s).
	NavigationTimeout time.Duration
	// DiscoverTimeout bounds a discovery navigation; shorter than extraction
	// since only anchors are needed (default 20s).
	DiscoverTimeout time.Duration
	// SettleDelay is the post-ready pause that lets scripts hydrate the DOM
	// (default 1s).
	SettleDelay time.Duration
	// NavPerSecond caps navigations per second across the whole pool, so a
	// wide pool does not hammer one origin (default 4).
	NavPerSecond float64
	// NavBurst is the limiter burst size (default 2).
	NavBurst int
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = 5
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1280
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 800
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 45 * time.Second
	}
	if c.DiscoverTimeout <= 0 {
		c.DiscoverTimeout = 20 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = time.Second
	}
	if c.NavPerSecond <= 0 {
		c.NavPerSecond = 4
	}
	if c.NavBurst <= 0 {
		c.NavBurst = 2
	}
	return c
}

// Pool is a fixed set of isolated tabs sharing one Chrome process. It
// implements engine.Browser; exhaustion blocks Acquire rather than failing.
type Pool struct {
	cfg       Config
	jobID     string
	artifacts engine.ArtifactStore
	logger    *zap.Logger
	limiter   *rate.Limiter

	idle    chan *session
	all     []*session
	cancels []context.CancelFunc
	closeMu sync.Mutex
	closed  bool
}

// NewPool launches Chrome and opens cfg.PoolSize tabs. The pool's lifetime
// is owned by Close, not by ctx; ctx only bounds startup. On partial
// initialization failure everything already started is torn down.
func NewPool(ctx context.Context, jobID string, artifacts engine.ArtifactStore, cfg Config, logger *zap.Logger) (*Pool, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	p := &Pool{
		cfg:       cfg,
		jobID:     jobID,
		artifacts: artifacts,
		logger:    logger.Named("browser"),
		limiter:   rate.NewLimiter(rate.Limit(cfg.NavPerSecond), cfg.NavBurst),
		idle:      make(chan *session, cfg.PoolSize),
		cancels:   []context.CancelFunc{browserCancel, allocCancel},
	}

	startCtx, startCancel := context.WithTimeout(browserCtx, cfg.NavigationTimeout)
	err := chromedp.Run(startCtx)
	startCancel()
	if err != nil {
		p.teardown()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	for i := 0; i < cfg.PoolSize; i++ {
		tabCtx, tabCancel := chromedp.NewContext(browserCtx)
		p.cancels = append([]context.CancelFunc{tabCancel}, p.cancels...)
		if err := chromedp.Run(tabCtx); err != nil {
			p.teardown()
			return nil, fmt.Errorf("open tab %d: %w", i, err)
		}
		s := &session{
			pool: p,
			ctx:  tabCtx,
		}
		p.all = append(p.all, s)
		p.idle <- s
	}

	select {
	case <-ctx.Done():
		p.teardown()
		return nil, fmt.Errorf("pool startup: %w", ctx.Err())
	default:
	}

	p.logger.Debug("session pool ready",
		zap.String("job_id", jobID),
		zap.Int("pool_size", cfg.PoolSize),
	)
	return p, nil
}

// Acquire blocks until a session is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (engine.Session, error) {
	select {
	case s := <-p.idle:
		return s, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("session wait canceled: %w", ctx.Err())
	}
}

// Release returns a session to the pool. Releasing after Close is a no-op.
func (p *Pool) Release(s engine.Session) {
	sess, ok := s.(*session)
	if !ok || sess == nil {
		return
	}
	p.closeMu.Lock()
	closed := p.closed
	p.closeMu.Unlock()
	if closed {
		return
	}
	select {
	case p.idle <- sess:
	default:
	}
}

// Close tears down every tab and the browser process. Safe to call more
// than once; in-flight sessions are canceled.
func (p *Pool) Close(context.Context) error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.teardown()
	p.logger.Debug("session pool closed", zap.String("job_id", p.jobID))
	return nil
}

// teardown cancels contexts innermost-first: tabs, then browser, then the
// allocator.
func (p *Pool) teardown() {
	for _, cancel := range p.cancels {
		cancel()
	}
}

// NewFactory adapts the pool constructor to engine.BrowserFactory so the
// orchestrator can spin up one pool per job.
func NewFactory(cfg Config, logger *zap.Logger) engine.BrowserFactory {
	return func(ctx context.Context, jobID string, artifacts engine.ArtifactStore) (engine.Browser, error) {
		return NewPool(ctx, jobID, artifacts, cfg, logger)
	}
}
