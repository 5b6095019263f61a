// Package metrics exposes Prometheus collectors for the feed pipeline
// and an HTTP endpoint to scrape them.
package metrics
