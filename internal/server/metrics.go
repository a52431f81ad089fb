package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

type httpMetrics struct {
	duration *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer, pool domain.SlotPool) (*httpMetrics, error) {
	m := &httpMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "Latência das requests servidas pelo gateway.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}

	cs := []prometheus.Collector{
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	if g, ok := pool.(domain.SlotGauge); ok {
		cs = append(cs,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "gateway_inflight_requests",
				Help: "Vagas de concorrência ocupadas.",
			}, func() float64 { return float64(g.InUse()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "gateway_concurrency_capacity",
				Help: "Capacidade do limitador de concorrência.",
			}, func() float64 { return float64(g.Cap()) }),
		)
	}

	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *httpMetrics) observe(method string, status int, elapsed time.Duration) {
	m.duration.WithLabelValues(method, statusLabel(status)).Observe(elapsed.Seconds())
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
