// Package api exposes the HTTP interface for the crawl service.
package api
