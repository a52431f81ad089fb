package infra

import (
	"context"
	"maps"
	"sync"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// DefaultMaxTrackedKeys limita o mapa por chave do MemoryStatsStore.
const DefaultMaxTrackedKeys = 10_000

// Counters soma decisões por Reason.
type Counters struct {
	Allowed     int64
	RateLimited int64
	Unavailable int64
}

func (c Counters) with(reason domain.Reason) Counters {
	switch reason {
	case domain.ReasonAllowed:
		c.Allowed++
	case domain.ReasonRateLimited:
		c.RateLimited++
	case domain.ReasonBackendUnavailable:
		c.Unavailable++
	}
	return c
}

// MemoryStatsStore agrega no processo, para dev e testes.
// Não expira nada; o mapa por chave para de crescer em maxKeys.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
	byKey   map[domain.Key]Counters

	trackKeys bool
	maxKeys   int
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func WithMaxTrackedKeys(n int) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.maxKeys = n }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: make(map[string]Counters),
		byKey:   make(map[domain.Key]Counters),
		maxKeys: DefaultMaxTrackedKeys,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := statsRoute(ev)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total = s.total.with(ev.Reason)
	s.byRoute[route] = s.byRoute[route].with(ev.Reason)

	if !s.trackKeys || ev.Key == "" {
		return nil
	}
	if _, seen := s.byKey[ev.Key]; seen || len(s.byKey) < s.maxKeys {
		s.byKey[ev.Key] = s.byKey[ev.Key].with(ev.Reason)
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// ByRoute é indexado por "METHOD padrão".
func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byRoute)
}

func (s *MemoryStatsStore) ByKey() map[domain.Key]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byKey)
}

// statsRoute prefere o padrão da política (cardinalidade baixa) ao path cru.
func statsRoute(ev domain.StatsEvent) string {
	route := ev.Route
	if route == "" {
		route = ev.Path
	}
	if ev.Method == "" {
		return route
	}
	return ev.Method + " " + route
}
