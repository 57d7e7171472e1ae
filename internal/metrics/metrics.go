package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Requests completed by the lifecycle interceptor, by log severity",
	}, []string{"route", "severity"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_ms",
		Help:    "Time from access to response header, in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"route"})

	registry.MustRegister(
		requests,
		requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:        registry,
		requests:        requests,
		requestDuration: requestDuration,
	}
}

// ObserveRequest records one completed request. The duration is only
// observed when it was actually measured.
func (m *Metrics) ObserveRequest(route, severity string, durationMillis int64, measured bool) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, severity).Inc()
	if measured {
		m.requestDuration.WithLabelValues(route).Observe(float64(durationMillis))
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
