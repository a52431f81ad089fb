package infra

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// PrometheusStatsStore expõe as decisões como counters.
// Labels: route (padrão da política) e outcome (Reason).
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) (*PrometheusStatsStore, error) {
	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limiter decisions by route pattern and outcome.",
		},
		[]string{"route", "outcome"},
	)
	if err := reg.Register(decisions); err != nil {
		return nil, err
	}
	return &PrometheusStatsStore{decisions: decisions}, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Route
	if route == "" {
		route = "unmatched"
	}
	s.decisions.WithLabelValues(route, string(ev.Reason)).Inc()
	return nil
}
