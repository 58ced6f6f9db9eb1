// Package main hosts the sitemapper service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, crawl submission,
//     job polling, result retrieval, and the synchronous preview endpoint.
//   - Dispatcher & queue: accepted jobs flow through a bounded in-memory queue
//     sized by config.Crawler.QueueDepth and are fanned out to a fixed worker
//     pool sized by config.Crawler.Concurrency. Context cancellation stops
//     workers cleanly on shutdown.
//   - Crawl pipeline: the engine.Orchestrator runs each job in two phases.
//     Discovery walks the site breadth-first on a single headless session,
//     probing pages with the Colly fetcher first and promoting to Chromedp
//     rendering when the heuristic detector flags a client-rendered page.
//     Extraction then visits every discovered page in parallel across the
//     session pool, capturing content, screenshots, and classification.
//   - Persistence & fanout: screenshots and raw HTML go to the configured
//     artifact store (memory/local/GCS); job records and results go to
//     Postgres when a DSN is configured, otherwise to memory. A compact
//     Pub/Sub notification is published on job completion when a topic is
//     configured. Progress events are batched through the progress Hub into
//     log and Prometheus sinks.
//   - Configuration & plumbing: Viper populates config from env/files; zap
//     provides structured logging; Prometheus metrics are exported via the
//     metrics middleware and the /metrics handler.
//
// Run locally: go run ./cmd/sitemapper -config config.yaml (or rely solely on
// SITEMAPPER_* env overrides). The process reacts to SIGTERM for graceful
// drain: the HTTP server stops accepting requests, the queue closes, and
// in-flight jobs are bounded by per-navigation timeouts.
package main
