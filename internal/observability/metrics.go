package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	apiRequestsTotal       *prometheus.CounterVec
	apiLatencySeconds      *prometheus.HistogramVec
	apiErrorsTotal         *prometheus.CounterVec
	harvestDurationSeconds *prometheus.HistogramVec
	harvestFilesAccepted   prometheus.Counter
	harvestBytesWritten    prometheus.Counter
	pipelineFailuresTotal  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arena_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 10.0, 30.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		harvestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arena_harvest_duration_seconds",
			Help:    "Duration of repository harvest runs.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"})

		harvestFilesAccepted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_harvest_files_accepted_total",
			Help: "Total number of files accepted into harvested sets.",
		})

		harvestBytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_harvest_bytes_written_total",
			Help: "Total plaintext bytes confirmed written to the blob store.",
		})

		pipelineFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_pipeline_failures_total",
			Help: "Evaluation pipeline failures by stage and error kind.",
		}, []string{"stage", "kind"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			harvestDurationSeconds,
			harvestFilesAccepted,
			harvestBytesWritten,
			pipelineFailuresTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// HarvestDuration exposes the histogram for harvest run durations.
func HarvestDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return harvestDurationSeconds
}

// HarvestFilesAccepted exposes the counter for accepted files.
func HarvestFilesAccepted() prometheus.Counter {
	RegisterMetrics()
	return harvestFilesAccepted
}

// HarvestBytesWritten exposes the counter for bytes written to storage.
func HarvestBytesWritten() prometheus.Counter {
	RegisterMetrics()
	return harvestBytesWritten
}

// PipelineFailures exposes the counter for pipeline failures.
func PipelineFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return pipelineFailuresTotal
}
