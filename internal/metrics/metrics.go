// Package metrics records batch-job metrics for a minter run and writes
// them in the node_exporter textfile format. Nothing is served over the
// network.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Failure reasons used as the "reason" label. Configuration failures are
// not recorded: the textfile path is itself configuration.
const (
	ReasonSigning = "signing"
	ReasonOutput  = "output"
)

// Recorder holds the collectors for one run on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	// TokensMinted counts tokens written to stdout.
	TokensMinted prometheus.Counter

	// Failures counts failed runs by reason.
	Failures *prometheus.CounterVec

	// LastSuccess is the Unix time of the last successful mint.
	LastSuccess prometheus.Gauge

	// TokenExpiry is the exp claim of the last minted token.
	TokenExpiry prometheus.Gauge

	// RunDuration is the wall time of the run in seconds.
	RunDuration prometheus.Gauge
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		TokensMinted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newtoken_tokens_minted_total",
			Help: "Total device tokens minted",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newtoken_failures_total",
			Help: "Total failed minter runs",
		}, []string{"reason"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "newtoken_last_success_timestamp_seconds",
			Help: "Unix time of the last successful mint",
		}),
		TokenExpiry: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "newtoken_token_expiry_timestamp_seconds",
			Help: "Expiry (exp claim) of the last minted token",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "newtoken_run_duration_seconds",
			Help: "Wall time of the last minter run",
		}),
	}

	// Pre-create label values so a clean run still reports zero failures.
	r.Failures.WithLabelValues(ReasonSigning)
	r.Failures.WithLabelValues(ReasonOutput)

	r.registry.MustRegister(
		r.TokensMinted,
		r.Failures,
		r.LastSuccess,
		r.TokenExpiry,
		r.RunDuration,
	)
	return r
}

// Minted records a successful mint at now of a token expiring at exp.
func (r *Recorder) Minted(now, exp time.Time) {
	r.TokensMinted.Inc()
	r.LastSuccess.Set(float64(now.Unix()))
	r.TokenExpiry.Set(float64(exp.Unix()))
}

// Failed records a failed run.
func (r *Recorder) Failed(reason string) {
	r.Failures.WithLabelValues(reason).Inc()
}

// ObserveRun records how long the run took.
func (r *Recorder) ObserveRun(d time.Duration) {
	r.RunDuration.Set(d.Seconds())
}

// Gatherer exposes the private registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile atomically writes all metrics to path for the node_exporter
// textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
