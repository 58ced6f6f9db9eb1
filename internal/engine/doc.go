// Package engine implements the crawl orchestration pipeline: URL discovery,
// bounded parallel page extraction, page classification, and link-graph
// assembly. It defines the core types and the interfaces its collaborators
// (session pools, stores, publishers) must satisfy.
package engine
