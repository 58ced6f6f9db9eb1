package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/sitegraph/sitemapper/internal/engine"
)

// domSnapshot mirrors the object built by extractScript in one Evaluate
// round trip.
type domSnapshot struct {
	Title     string       `json:"title"`
	Links     []string     `json:"links"`
	Images    []string     `json:"images"`
	Headings  []domHeading `json:"headings"`
	Forms     int          `json:"forms"`
	Buttons   []string     `json:"buttons"`
	Text      string       `json:"text"`
	WordCount int          `json:"wordCount"`
}

type domHeading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// extractScript pulls the structured content in a single pass. Collection
// caps (10 images, 20 headings, 10 buttons, 5000 chars of text) keep result
// payloads bounded on pathological pages.
const extractScript = `(() => {
	const clean = s => (s || '').replace(/\s+/g, ' ').trim();
	const links = Array.from(document.querySelectorAll('a[href]')).map(a => a.href);
	const images = Array.from(document.querySelectorAll('img[src]'))
		.map(img => img.src)
		.filter(src => src && !src.startsWith('data:'))
		.slice(0, 10);
	const headings = Array.from(document.querySelectorAll('h1,h2,h3,h4,h5,h6'))
		.slice(0, 20)
		.map(h => ({level: parseInt(h.tagName[1], 10), text: clean(h.textContent).slice(0, 200)}));
	const buttons = Array.from(document.querySelectorAll('button, input[type="submit"], [role="button"]'))
		.map(b => clean(b.textContent || b.value))
		.filter(t => t)
		.slice(0, 10);
	const text = clean(document.body ? document.body.innerText : '');
	return {
		title: clean(document.title),
		links: links,
		images: images,
		headings: headings,
		forms: document.querySelectorAll('form').length,
		buttons: buttons,
		text: text.slice(0, 5000),
		wordCount: text ? text.split(' ').length : 0
	};
})()`

// Extract navigates, lets the page settle, dismisses overlays, and captures
// the full structured content plus screenshot and HTML artifacts.
func (s *session) Extract(ctx context.Context, pageURL string, opts engine.ExtractOptions) (engine.PageResult, error) {
	if err := s.pace(ctx); err != nil {
		return engine.PageResult{}, err
	}
	navCtx, cancel := s.taskContext(ctx, s.pool.cfg.NavigationTimeout)
	defer cancel()

	var (
		snap domSnapshot
		shot []byte
		html string
	)
	err := chromedp.Run(navCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.pool.cfg.SettleDelay),
		dismissOverlays(),
		chromedp.Evaluate(extractScript, &snap),
		chromedp.FullScreenshot(&shot, 80),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return engine.PageResult{}, &engine.ExtractionError{URL: pageURL, Err: err}
	}

	links := resolveLinks(pageURL, snap.Links)
	headings := make([]engine.Heading, 0, len(snap.Headings))
	for _, h := range snap.Headings {
		headings = append(headings, engine.Heading{Level: h.Level, Text: h.Text})
	}

	result := engine.PageResult{
		ID:          opts.PageID,
		URL:         pageURL,
		Title:       snap.Title,
		PageType:    engine.Classify(pageURL, snap.Title),
		Links:       links,
		Images:      snap.Images,
		Headings:    headings,
		Forms:       snap.Forms,
		Buttons:     snap.Buttons,
		TextContent: snap.Text,
		Timestamp:   time.Now().UTC(),
		Metadata: engine.PageMetadata{
			WordCount:  snap.WordCount,
			ImageCount: len(snap.Images),
			LinkCount:  len(links),
		},
	}
	result.ScreenshotRef = s.storeArtifact(ctx, opts, "png", "image/png", shot)
	result.HTMLRef = s.storeArtifact(ctx, opts, "html", "text/html; charset=utf-8", []byte(html))
	return result, nil
}

// storeArtifact persists one artifact by reference. A store failure costs
// only the reference, not the page.
func (s *session) storeArtifact(ctx context.Context, opts engine.ExtractOptions, ext, contentType string, data []byte) string {
	if s.pool.artifacts == nil || len(data) == 0 {
		return ""
	}
	path := fmt.Sprintf("jobs/%s/pages/%s.%s", opts.JobID, opts.PageID, ext)
	ref, err := s.pool.artifacts.PutObject(ctx, path, contentType, data)
	if err != nil {
		s.pool.logger.Warn("artifact store failed",
			zap.String("job_id", opts.JobID),
			zap.String("path", path),
			zap.Error(err),
		)
		return ""
	}
	return ref
}
