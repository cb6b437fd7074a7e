// Package prometheus records verification telemetry with the Prometheus client.
package prometheus

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
)

// Recorder implements services.MetricsRecorder on its own registry
type Recorder struct {
	registry *prometheus.Registry

	unitsTotal         *prometheus.CounterVec
	unitDuration       *prometheus.HistogramVec
	unitsInFlight      prometheus.Gauge
	repositoryRequests *prometheus.CounterVec
	repositoryRetries  *prometheus.CounterVec
	metadataCache      *prometheus.CounterVec
}

// NewRecorder creates a recorder and registers its collectors
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		unitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_units_total",
				Help: "Number of verification units by terminal status.",
			},
			[]string{"status"},
		),
		unitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verifier_unit_duration_seconds",
				Help:    "Time taken to verify one unit.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"status"},
		),
		unitsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "verifier_units_in_flight",
				Help: "Number of units currently being verified.",
			},
		),
		repositoryRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_repository_requests_total",
				Help: "Repository requests by repository and result (ok, not_found, error).",
			},
			[]string{"repository", "result"},
		),
		repositoryRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_repository_retries_total",
				Help: "Retries of transient repository failures.",
			},
			[]string{"repository"},
		),
		metadataCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_metadata_cache_total",
				Help: "Version metadata lookups by cache result (hit, miss).",
			},
			[]string{"result"},
		),
	}

	r.registry.MustRegister(
		r.unitsTotal,
		r.unitDuration,
		r.unitsInFlight,
		r.repositoryRequests,
		r.repositoryRetries,
		r.metadataCache,
	)
	return r
}

// UnitStarted marks a unit in flight
func (r *Recorder) UnitStarted() {
	r.unitsInFlight.Inc()
}

// UnitFinished records the terminal status of a unit
func (r *Recorder) UnitFinished(status entities.Status, d time.Duration) {
	r.unitsInFlight.Dec()
	r.unitsTotal.WithLabelValues(status.String()).Inc()
	r.unitDuration.WithLabelValues(status.String()).Observe(d.Seconds())
}

// RepositoryRequest counts one repository request
func (r *Recorder) RepositoryRequest(repository, result string) {
	r.repositoryRequests.WithLabelValues(repository, result).Inc()
}

// RepositoryRetry counts one retry
func (r *Recorder) RepositoryRetry(repository string) {
	r.repositoryRetries.WithLabelValues(repository).Inc()
}

// MetadataCache counts a resolver cache lookup
func (r *Recorder) MetadataCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.metadataCache.WithLabelValues(result).Inc()
}

// WriteTextfile exports every metric in the node_exporter textfile format
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
