package pipeline

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the build metrics on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	builds   *prometheus.CounterVec
	duration prometheus.Histogram
	pages    prometheus.Counter
}

// NewMetrics registers the build metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		builds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "themepack",
			Name:      "builds_total",
			Help:      "Total number of theme builds by outcome",
		}, []string{"status"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "themepack",
			Name:      "build_duration_seconds",
			Help:      "Theme build duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		pages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "themepack",
			Name:      "pages_rendered_total",
			Help:      "Total number of pages written",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(err error, elapsed time.Duration, pages int) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.builds.WithLabelValues(status).Inc()
	m.duration.Observe(elapsed.Seconds())
	m.pages.Add(float64(pages))
}
