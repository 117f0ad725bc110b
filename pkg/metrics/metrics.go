// Package metrics records what an import run did as Prometheus metrics.
//
// Each run owns a private registry. The batch job has no scrape endpoint,
// so the registry is written once at the end of the run to a
// node_exporter textfile collector file.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pathwaygraph"

// Recorder collects the metrics of one run. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	nodes              *prometheus.CounterVec
	relationships      *prometheus.CounterVec
	warnings           *prometheus.CounterVec
	roots              prometheus.Counter
	rootDuration       prometheus.Histogram
	constraintFailures prometheus.Counter
	lastSuccess        prometheus.Gauge
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_created_total",
			Help:      "Nodes created, by class label.",
		}, []string{"label"}),
		relationships: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relationships_created_total",
			Help:      "Relationships created, by type.",
		}, []string{"type"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Recoverable problems skipped during the import, by kind.",
		}, []string{"kind"}),
		roots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roots_imported_total",
			Help:      "Root instances fully imported.",
		}),
		rootDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "root_import_duration_seconds",
			Help:      "Time spent importing one root and everything reachable from it.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		constraintFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "constraint_failures_total",
			Help:      "Constraints or indexes that could not be created.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}
	r.registry.MustRegister(
		r.nodes,
		r.relationships,
		r.warnings,
		r.roots,
		r.rootDuration,
		r.constraintFailures,
		r.lastSuccess,
	)
	return r
}

// Registry exposes the run registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) NodeCreated(label string) {
	if r == nil {
		return
	}
	r.nodes.WithLabelValues(label).Inc()
}

func (r *Recorder) RelationshipCreated(relType string) {
	if r == nil {
		return
	}
	r.relationships.WithLabelValues(relType).Inc()
}

func (r *Recorder) Warning(kind string) {
	if r == nil {
		return
	}
	r.warnings.WithLabelValues(kind).Inc()
}

// RootImported records one finished root and its elapsed time.
func (r *Recorder) RootImported(elapsed time.Duration) {
	if r == nil {
		return
	}
	r.roots.Inc()
	r.rootDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) ConstraintFailed() {
	if r == nil {
		return
	}
	r.constraintFailures.Inc()
}

// Succeeded stamps the last-success gauge.
func (r *Recorder) Succeeded(at time.Time) {
	if r == nil {
		return
	}
	r.lastSuccess.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in the text exposition format. The file
// is written atomically, as the textfile collector expects.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
