package infra

import (
	"context"

	"slidingwindow-gateway/metrics"
	"slidingwindow-gateway/middleware/ratelimit/domain"
)

// PrometheusStatsStore conta decisões em ratelimit_decisions_total.
// A identidade fica de fora dos labels (cardinalidade).
type PrometheusStatsStore struct{}

func (PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	metrics.DecisionsTotal.WithLabelValues(ev.Key.Resource, string(ev.Outcome)).Inc()
	return nil
}

// MultiStatsStore repassa o evento para todos os stores e devolve o primeiro erro.
type MultiStatsStore []domain.StatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
