package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricsOnce ensures metrics are registered only once
	metricsOnce sync.Once

	// fetchRequestsTotal tracks outbound HTTP fetches by outcome
	fetchRequestsTotal *prometheus.CounterVec

	// fetchDuration tracks latency of outbound fetches
	fetchDuration prometheus.Histogram

	// fetchErrorsTotal tracks fetch errors by type
	fetchErrorsTotal *prometheus.CounterVec

	// discoveryPagesTotal tracks listing pages scanned, labelled by how pagination ended
	discoveryPagesTotal *prometheus.CounterVec

	// iocsIngestedTotal tracks IOC records written to the index by source
	iocsIngestedTotal *prometheus.CounterVec

	// artifactsParsedTotal tracks artifact parses by source and outcome
	artifactsParsedTotal *prometheus.CounterVec

	// lookupsTotal tracks point lookups by result
	lookupsTotal *prometheus.CounterVec
)

// InitMetrics registers all Prometheus metrics for the pipeline
// This should be called once at application startup
func InitMetrics() {
	metricsOnce.Do(func() {
		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ransomwatch_fetch_requests_total",
				Help: "Total number of outbound HTTP fetches by outcome",
			},
			[]string{"status"},
		)

		fetchDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ransomwatch_fetch_duration_seconds",
				Help:    "Duration of outbound HTTP fetches in seconds, politeness delay excluded",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
		)

		fetchErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ransomwatch_fetch_errors_total",
				Help: "Total number of fetch errors by error type",
			},
			[]string{"error_type"},
		)

		discoveryPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ransomwatch_discovery_pages_total",
				Help: "Listing pages scanned per discovery run by stop reason",
			},
			[]string{"stop_reason"},
		)

		iocsIngestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ransomwatch_iocs_ingested_total",
				Help: "Total number of IOC records stored by source",
			},
			[]string{"source"},
		)

		artifactsParsedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ransomwatch_artifacts_parsed_total",
				Help: "Total number of artifacts parsed by source and outcome",
			},
			[]string{"source", "outcome"},
		)

		lookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ransomwatch_lookups_total",
				Help: "Total number of IOC lookups by result",
			},
			[]string{"result"},
		)
	})
}

// RecordFetch records a completed fetch
// status: "success", "error"
func RecordFetch(status string, duration time.Duration) {
	if fetchRequestsTotal != nil {
		fetchRequestsTotal.WithLabelValues(status).Inc()
	}
	if fetchDuration != nil {
		fetchDuration.Observe(duration.Seconds())
	}
}

// RecordError records a fetch error by type
// errorType: "timeout", "rate_limit", "server_error", "http_error", "connection", "circuit_open"
func RecordError(errorType string) {
	if fetchErrorsTotal != nil {
		fetchErrorsTotal.WithLabelValues(errorType).Inc()
	}
}

// RecordDiscovery records the pages scanned by one discovery run
func RecordDiscovery(stopReason string, pages int) {
	if discoveryPagesTotal != nil {
		discoveryPagesTotal.WithLabelValues(stopReason).Add(float64(pages))
	}
}

// RecordIOCsIngested records records written for a source
func RecordIOCsIngested(source string, count int) {
	if iocsIngestedTotal != nil {
		iocsIngestedTotal.WithLabelValues(source).Add(float64(count))
	}
}

// RecordArtifactParsed records an artifact parse
// outcome: "success", "malformed", "error"
func RecordArtifactParsed(source, outcome string) {
	if artifactsParsedTotal != nil {
		artifactsParsedTotal.WithLabelValues(source, outcome).Inc()
	}
}

// RecordLookup records a lookup
// result: "found", "not_found", "error"
func RecordLookup(result string) {
	if lookupsTotal != nil {
		lookupsTotal.WithLabelValues(result).Inc()
	}
}

// FetchTimer is a helper for timing fetches
type FetchTimer struct {
	start time.Time
}

// StartTimer creates a new timer for measuring fetch duration
func StartTimer() *FetchTimer {
	return &FetchTimer{start: time.Now()}
}

// ObserveFetch records the fetch with the elapsed time since the timer started
func (t *FetchTimer) ObserveFetch(status string) {
	if t != nil {
		RecordFetch(status, time.Since(t.start))
	}
}
