package engine

import (
	"net/url"
	"strings"
)

// Frontier owns the discovery queue and the visited set for a single job.
// It is a single-writer structure: only the sequential discovery loop may
// mutate it, and it must not be shared into the parallel extraction phase.
type Frontier struct {
	origin  *url.URL
	max     int
	visited map[string]struct{}
	order   []string
	queue   []FrontierEntry
}

// NewFrontier builds a Frontier scoped to the seed's origin with a hard
// page budget. The seed itself is not enqueued; callers do that explicitly.
func NewFrontier(seedURL string, maxPages int) (*Frontier, error) {
	seed, err := ParseSeed(seedURL)
	if err != nil {
		return nil, err
	}
	if maxPages < 1 {
		maxPages = 1
	}
	return &Frontier{
		origin:  seed,
		max:     maxPages,
		visited: make(map[string]struct{}),
	}, nil
}

// Enqueue admits a candidate URL if it parses as absolute http(s), matches
// the seed origin, has not been seen, and the budget allows. On acceptance
// the URL joins the visited set permanently; it can never be re-enqueued.
func (f *Frontier) Enqueue(rawURL string, depth int, parent string) bool {
	if len(f.visited) >= f.max {
		return false
	}
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return false
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !SameOrigin(f.origin, u) {
		return false
	}
	if _, seen := f.visited[normalized]; seen {
		return false
	}
	f.visited[normalized] = struct{}{}
	f.order = append(f.order, normalized)
	f.queue = append(f.queue, FrontierEntry{URL: normalized, Depth: depth, Parent: parent})
	return true
}

// Dequeue pops the oldest entry, preserving breadth-first order.
func (f *Frontier) Dequeue() (FrontierEntry, bool) {
	if len(f.queue) == 0 {
		return FrontierEntry{}, false
	}
	entry := f.queue[0]
	f.queue = f.queue[1:]
	return entry, true
}

// Len returns the number of entries still queued for discovery.
func (f *Frontier) Len() int {
	return len(f.queue)
}

// VisitedCount returns the size of the visited set.
func (f *Frontier) VisitedCount() int {
	return len(f.visited)
}

// Discovered returns every accepted URL in acceptance order. The slice is a
// copy; the extraction phase works from it without touching the Frontier.
func (f *Frontier) Discovered() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Origin returns the scheme://host the frontier is scoped to.
func (f *Frontier) Origin() string {
	return Origin(f.origin)
}

// Budget returns the page ceiling the frontier enforces.
func (f *Frontier) Budget() int {
	return f.max
}

// HostLabel returns a lowercase host suitable for metric labels.
func (f *Frontier) HostLabel() string {
	return strings.ToLower(f.origin.Hostname())
}
