package domain

import (
	"context"
	"time"
)

// StatsEvent descreve uma decisão já tomada. Route é o padrão da política
// (cardinalidade baixa); Path é o path cru e só serve de fallback.
type StatsEvent struct {
	Key     Key
	Route   string
	Allowed bool
	Reason  Reason

	Method string
	Path   string

	At time.Time
}

// StatsStore registra decisões. Falha aqui nunca muda a decisão.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
