// Package metrics exports session outcomes to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/ggufedit/internal/editor"
)

const namespace = "ggufedit"

// Prometheus implements editor.MetricsCollector on its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	commits       *prometheus.CounterVec
	failures      *prometheus.CounterVec
	bytesWritten  prometheus.Counter
	writeDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Committed metadata updates by write mode and result",
		}, []string{"mode", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Session errors by stage",
		}, []string{"stage"}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes written to model files and temporary files",
		}),
		writeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_duration_seconds",
			Help:      "Time spent writing, by mode",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"mode"}),
	}
	p.registry.MustRegister(
		p.commits,
		p.failures,
		p.bytesWritten,
		p.writeDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// RecordCommit implements editor.MetricsCollector.
func (p *Prometheus) RecordCommit(mode editor.Mode, bytes int64, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.commits.WithLabelValues(mode.String(), status).Inc()
	if bytes > 0 {
		p.bytesWritten.Add(float64(bytes))
	}
	p.writeDuration.WithLabelValues(mode.String()).Observe(duration.Seconds())
}

// RecordFailure implements editor.MetricsCollector.
func (p *Prometheus) RecordFailure(stage editor.Stage) {
	p.failures.WithLabelValues(string(stage)).Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
