package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// Pool starts goals as independent goroutines and tracks them so the
// process can wait for them on shutdown.
type Pool struct {
	wg sync.WaitGroup
}

func NewPool() *Pool {
	return &Pool{}
}

// Spawn starts r in its own goroutine. There is no handle to stop a single
// goal; only cancelling ctx ends it early.
func (p *Pool) Spawn(ctx context.Context, r Runner) {
	id, name := r.Describe()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Str("goal", name).Str("goal_id", id).Interface("panic", rec).Msg("goal panicked")
			}
		}()

		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("goal", name).Str("goal_id", id).Msg("goal exited with error")
		}
	}()
}

// Wait blocks until every spawned goal has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
