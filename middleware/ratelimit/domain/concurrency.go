package domain

import "context"

// SlotPool representa um recurso com capacidade finita (requests em voo).
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// O release devolvido deve ser chamado exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}

// SlotGauge é implementado por pools que sabem quantas vagas estão ocupadas.
type SlotGauge interface {
	InUse() int
	Cap() int
}
