package application

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// SlotLimiter aplica o limite de requests simultâneas sobre um SlotPool,
// sem saber nada sobre HTTP.
type SlotLimiter struct {
	pool           domain.SlotPool
	acquireTimeout time.Duration

	rejected atomic.Int64
}

// NewSlotLimiter aceita pool nil (sem limite).
func NewSlotLimiter(pool domain.SlotPool, acquireTimeout time.Duration) *SlotLimiter {
	return &SlotLimiter{pool: pool, acquireTimeout: acquireTimeout}
}

// Acquire espera uma vaga até acquireTimeout (ou até o ctx, se o timeout for <= 0).
// Sem vaga, devolve ErrNoSlot e nenhum release.
func (l *SlotLimiter) Acquire(ctx context.Context) (func(), error) {
	if l == nil || l.pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if l.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, l.acquireTimeout)
		defer cancel()
	}

	release, ok := l.pool.Acquire(acqCtx)
	if !ok {
		l.rejected.Add(1)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrNoSlot, err)
		}
		return nil, fmt.Errorf("%w: waited %s", domain.ErrNoSlot, l.acquireTimeout)
	}
	return release, nil
}

// Rejected conta as aquisições que falharam desde a criação.
func (l *SlotLimiter) Rejected() int64 {
	if l == nil {
		return 0
	}
	return l.rejected.Load()
}

// InUse devolve as vagas ocupadas quando o pool expõe essa informação.
func (l *SlotLimiter) InUse() (int, bool) {
	if l == nil {
		return 0, false
	}
	g, ok := l.pool.(domain.SlotGauge)
	if !ok {
		return 0, false
	}
	return g.InUse(), true
}
