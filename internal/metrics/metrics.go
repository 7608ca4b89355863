// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foody_upstream_requests_total",
			Help: "Total vendor API requests, labeled by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	crawlRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foody_crawl_runs_total",
			Help: "Total orchestrator runs, labeled by status.",
		},
		[]string{"status"},
	)

	foodsCrawledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "foody_foods_crawled_total",
			Help: "Total food records gathered by crawl runs.",
		},
	)

	filesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foody_files_ingested_total",
			Help: "Total landing-zone files processed, labeled by status.",
		},
		[]string{"status"},
	)

	recordsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foody_records_ingested_total",
			Help: "Total landing-zone records processed, labeled by table and outcome.",
		},
		[]string{"table", "outcome"},
	)
)

// UpstreamRequest records one vendor API call outcome.
func UpstreamRequest(endpoint, outcome string) {
	upstreamRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// CrawlRun records one orchestrator run outcome.
func CrawlRun(status string) {
	crawlRunsTotal.WithLabelValues(status).Inc()
}

// FoodsCrawled adds to the crawled-food counter.
func FoodsCrawled(n int) {
	foodsCrawledTotal.Add(float64(n))
}

// FileIngested records one processed landing-zone file.
func FileIngested(status string) {
	filesIngestedTotal.WithLabelValues(status).Inc()
}

// RecordIngested records one processed landing-zone record.
func RecordIngested(table, outcome string) {
	recordsIngestedTotal.WithLabelValues(table, outcome).Inc()
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
