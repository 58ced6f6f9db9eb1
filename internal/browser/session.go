package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/sitegraph/sitemapper/internal/engine"
)

// session is one tab, held exclusively by a single task at a time.
type session struct {
	pool *Pool
	ctx  context.Context
}

const anchorScript = `Array.from(document.querySelectorAll('a[href]')).map(a => a.href)`

// DiscoverLinks navigates with the shorter discovery ceiling and returns the
// page's same-origin anchor targets.
func (s *session) DiscoverLinks(ctx context.Context, pageURL string) ([]string, error) {
	if err := s.pace(ctx); err != nil {
		return nil, err
	}
	navCtx, cancel := s.taskContext(ctx, s.pool.cfg.DiscoverTimeout)
	defer cancel()

	var hrefs []string
	err := chromedp.Run(navCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.pool.cfg.SettleDelay),
		chromedp.Evaluate(anchorScript, &hrefs),
	)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", pageURL, err)
	}
	return resolveLinks(pageURL, hrefs), nil
}

// pace applies the pool-wide navigation rate limit.
func (s *session) pace(ctx context.Context) error {
	if err := s.pool.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("navigation pacing: %w", err)
	}
	return nil
}

// taskContext derives a deadline context from the tab context, additionally
// honoring the caller's cancellation.
func (s *session) taskContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	navCtx, cancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return navCtx, func() {
		stop()
		cancel()
	}
}

// resolveLinks filters raw hrefs to normalized, same-origin crawl
// candidates. Non-navigation schemes and fragment-only self links drop out.
func resolveLinks(pageURL string, hrefs []string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{}, len(hrefs))
	out := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		trimmed := strings.TrimSpace(href)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "javascript:") ||
			strings.HasPrefix(lower, "mailto:") ||
			strings.HasPrefix(lower, "tel:") ||
			strings.HasPrefix(lower, "data:") {
			continue
		}
		ref, err := url.Parse(trimmed)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		if !engine.SameOrigin(base, abs) {
			continue
		}
		normalized, err := engine.NormalizeURL(abs.String())
		if err != nil {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
