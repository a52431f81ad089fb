package infra

import (
	"context"
	"strings"
	"sync"
	"time"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// MemoryCounterStore é uma janela fixa em memória com limpeza periódica.
// Útil para dev e testes; não é compartilhada entre instâncias.
type MemoryCounterStore struct {
	mu           sync.Mutex
	entries      map[string]*counterEntry
	cleanupEvery time.Duration
	now          func() time.Time
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

var _ domain.CounterStore = (*MemoryCounterStore)(nil)

type MemoryStoreOption func(*MemoryCounterStore)

func WithCleanupEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryCounterStore) { s.cleanupEvery = d }
}

// WithClock troca o relógio (testes).
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryCounterStore) { s.now = now }
}

func NewMemoryCounterStore(opts ...MemoryStoreOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		entries:      make(map[string]*counterEntry),
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryCounterStore) IncrementWithExpiry(_ context.Context, key string, window time.Duration) (domain.Counter, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || !now.Before(ent.expiresAt) {
		ent = &counterEntry{expiresAt: now.Add(window)}
		s.entries[key] = ent
	}
	ent.count++
	return domain.Counter{Count: ent.count, TTL: ent.expiresAt.Sub(now)}, nil
}

func (s *MemoryCounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	c, err := s.Get(ctx, key)
	return c.TTL, err
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) (domain.Counter, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || !now.Before(ent.expiresAt) {
		return domain.Counter{}, nil
	}
	return domain.Counter{Count: ent.count, TTL: ent.expiresAt.Sub(now)}, nil
}

func (s *MemoryCounterStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

// Keys lista chaves vivas com o prefixo (mesma semântica do store Redis).
func (s *MemoryCounterStore) Keys(_ context.Context, prefix string) ([]string, error) {
	now := s.now()
	prefix = strings.TrimRight(prefix, ":") + ":"

	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k, ent := range s.entries {
		if now.Before(ent.expiresAt) && strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Ping existe para o readiness tratar os dois stores igual.
func (s *MemoryCounterStore) Ping(context.Context) error { return nil }

func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryCounterStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if !now.Before(ent.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que remove janelas expiradas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryCounterStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
