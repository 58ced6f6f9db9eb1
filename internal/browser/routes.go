package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	// maxClickProbes bounds active probing so a widget-heavy page cannot
	// stall discovery.
	maxClickProbes = 5
	clickSettle    = 400 * time.Millisecond
)

// routeHookScript is installed before any page script runs. It records
// history API navigations and the URLs the page fetches, both of which
// betray client-side routes that never appear as anchors.
const routeHookScript = `(() => {
	window.__smRoutes = [];
	window.__smFetches = [];
	const record = (arr, v) => { if (v && arr.length < 200) arr.push(String(v)); };
	const wrap = name => {
		const orig = history[name];
		history[name] = function(state, title, url) {
			record(window.__smRoutes, url);
			return orig.apply(this, arguments);
		};
	};
	wrap('pushState');
	wrap('replaceState');
	const origFetch = window.fetch;
	if (origFetch) {
		window.fetch = function(input) {
			record(window.__smFetches, typeof input === 'string' ? input : (input && input.url));
			return origFetch.apply(this, arguments);
		};
	}
	const origOpen = XMLHttpRequest.prototype.open;
	XMLHttpRequest.prototype.open = function(method, url) {
		record(window.__smFetches, url);
		return origOpen.apply(this, arguments);
	};
})()`

// routeCollectScript gathers everything the hooks recorded plus framework
// router hints and candidate clickable elements for active probing.
const routeCollectScript = `(() => {
	const routes = (window.__smRoutes || []).slice();
	const fetches = (window.__smFetches || []).slice();
	if (window.__NEXT_DATA__ && window.__NEXT_DATA__.page) {
		routes.push(window.__NEXT_DATA__.page);
	}
	if (window.__NUXT__ && window.__NUXT__.routePath) {
		routes.push(window.__NUXT__.routePath);
	}
	for (const el of document.querySelectorAll('[routerlink]')) {
		routes.push(el.getAttribute('routerlink'));
	}
	const candidates = [];
	const seen = new Set();
	const clickable = document.querySelectorAll(
		'nav [role="link"], nav button, [role="menuitem"], [data-href], [data-route], [data-link]');
	for (const el of clickable) {
		const direct = el.getAttribute('data-href') || el.getAttribute('data-route') || el.getAttribute('data-link');
		if (direct) { routes.push(direct); continue; }
		if (el.id && !seen.has(el.id)) {
			seen.add(el.id);
			candidates.push('#' + CSS.escape(el.id));
		}
	}
	return {routes: routes, fetches: fetches, candidates: candidates.slice(0, 10)};
})()`

type routeCollection struct {
	Routes     []string `json:"routes"`
	Fetches    []string `json:"fetches"`
	Candidates []string `json:"candidates"`
}

// DetectRoutes loads the seed with history and network hooks installed,
// harvests recorded navigations and router hints, and click-probes a
// bounded set of non-anchor navigation elements. Best effort throughout;
// an empty result is normal for server-rendered sites.
func (s *session) DetectRoutes(ctx context.Context, baseOrigin string) ([]string, error) {
	if err := s.pace(ctx); err != nil {
		return nil, err
	}
	navCtx, cancel := s.taskContext(ctx, s.pool.cfg.NavigationTimeout)
	defer cancel()

	sniffer := newAPISniffer()
	chromedp.ListenTarget(navCtx, sniffer.handle)

	var collected routeCollection
	err := chromedp.Run(navCtx,
		installHooks(),
		chromedp.Navigate(baseOrigin),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.pool.cfg.SettleDelay),
		chromedp.Evaluate(routeCollectScript, &collected),
	)
	if err != nil {
		return nil, fmt.Errorf("route detection on %s: %w", baseOrigin, err)
	}

	found := append([]string(nil), collected.Routes...)
	found = append(found, routePathsFromAPI(collected.Fetches)...)
	found = append(found, routePathsFromAPI(sniffer.urls())...)
	found = append(found, s.clickProbe(navCtx, baseOrigin, collected.Candidates)...)

	routes := resolveLinks(baseOrigin, found)
	if len(routes) > 0 {
		s.pool.logger.Debug("client-side routes detected",
			zap.String("origin", baseOrigin),
			zap.Int("count", len(routes)),
		)
	}
	return routes, nil
}

// installHooks registers routeHookScript to run in every new document
// before page scripts execute.
func installHooks() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(routeHookScript).Do(ctx)
		if err != nil {
			return fmt.Errorf("install route hooks: %w", err)
		}
		return nil
	})
}

// clickProbe clicks candidate elements and watches the address bar. After
// each hit the session navigates back to the origin so later probes start
// from a known state.
func (s *session) clickProbe(ctx context.Context, baseOrigin string, candidates []string) []string {
	var found []string
	probes := candidates
	if len(probes) > maxClickProbes {
		probes = probes[:maxClickProbes]
	}
	for _, sel := range probes {
		var location string
		err := chromedp.Run(ctx,
			chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible),
			chromedp.Sleep(clickSettle),
			chromedp.Location(&location),
		)
		if err != nil {
			continue
		}
		if location != "" && location != baseOrigin && !strings.HasSuffix(location, "#") {
			found = append(found, location)
			if err := chromedp.Run(ctx,
				chromedp.Navigate(baseOrigin),
				chromedp.WaitReady("body", chromedp.ByQuery),
			); err != nil {
				break
			}
		}
	}
	return found
}

// routePathsFromAPI keeps only request URLs whose path suggests the
// response enumerates navigable pages, then maps the endpoint path to a
// page-path guess by trimming API prefixes. "/api/v2/pages" becomes
// "/pages"; endpoints that reduce to nothing are dropped.
func routePathsFromAPI(urls []string) []string {
	var out []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if !routeListingLike(u.Path) {
			continue
		}
		if guess := pagePathGuess(u.Path); guess != "" {
			out = append(out, guess)
		}
	}
	return out
}

func pagePathGuess(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for len(segments) > 0 {
		first := strings.ToLower(segments[0])
		if first == "api" || versionSegment(first) {
			segments = segments[1:]
			continue
		}
		break
	}
	if len(segments) == 0 || segments[0] == "" {
		return ""
	}
	return "/" + strings.Join(segments, "/")
}

func versionSegment(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// routeListingLike reports whether an API path looks like a route or page
// listing endpoint.
func routeListingLike(path string) bool {
	lower := strings.ToLower(path)
	for _, marker := range []string{"route", "page", "nav", "menu", "sitemap"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// apiSniffer records XHR/fetch request URLs seen on the wire. The in-page
// hooks miss requests issued before they run or from workers; CDP sees both.
type apiSniffer struct {
	mu   sync.Mutex
	seen []string
}

func newAPISniffer() *apiSniffer {
	return &apiSniffer{}
}

func (a *apiSniffer) handle(ev any) {
	req, ok := ev.(*network.EventRequestWillBeSent)
	if !ok || req.Request == nil {
		return
	}
	if req.Type != network.ResourceTypeXHR && req.Type != network.ResourceTypeFetch {
		return
	}
	a.mu.Lock()
	if len(a.seen) < 200 {
		a.seen = append(a.seen, req.Request.URL)
	}
	a.mu.Unlock()
}

func (a *apiSniffer) urls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.seen...)
}
