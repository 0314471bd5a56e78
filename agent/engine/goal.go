package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrInvalidGoal = errors.New("invalid goal")

// Action performs one unit of work against the goal state.
type Action[S any] interface {
	Run(ctx context.Context, state S) error
}

// Condition reports whether the goal is finished.
type Condition[S any] interface {
	Met(state S) bool
}

type ActionFunc[S any] func(ctx context.Context, state S) error

func (f ActionFunc[S]) Run(ctx context.Context, state S) error { return f(ctx, state) }

type ConditionFunc[S any] func(state S) bool

func (f ConditionFunc[S]) Met(state S) bool { return f(state) }

// Runner is a goal with its state type erased, so goals of different kinds
// can be started the same way.
type Runner interface {
	Run(ctx context.Context) error
	Describe() (id string, name string)
}

// Goal drives Action over State every Interval until Condition is met.
type Goal[S any] struct {
	ID        string
	Name      string
	Interval  time.Duration
	State     S
	Action    Action[S]
	Condition Condition[S]

	// AfterTick, if set, runs after every Action invocation with its result.
	AfterTick func(ctx context.Context, state S, runErr error)

	wait func(ctx context.Context, d time.Duration) error
}

func (g *Goal[S]) Validate() error {
	if g == nil {
		return fmt.Errorf("%w: goal is nil", ErrInvalidGoal)
	}
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidGoal)
	}
	if g.Interval <= 0 {
		return fmt.Errorf("%w: interval must be > 0", ErrInvalidGoal)
	}
	if g.Action == nil {
		return fmt.Errorf("%w: action is required", ErrInvalidGoal)
	}
	if g.Condition == nil {
		return fmt.Errorf("%w: condition is required", ErrInvalidGoal)
	}
	return nil
}

func (g *Goal[S]) Describe() (string, string) {
	return g.ID, g.Name
}

// Run loops until the condition holds, returning nil, or until ctx is done,
// returning ctx.Err(). Action errors are logged and never end the loop.
func (g *Goal[S]) Run(ctx context.Context) error {
	if err := g.Validate(); err != nil {
		return err
	}

	logger := log.With().Str("goal", g.Name).Str("goal_id", g.ID).Logger()
	wait := g.wait
	if wait == nil {
		wait = sleep
	}

	for tick := 1; ; tick++ {
		if g.Condition.Met(g.State) {
			logger.Info().Int("ticks", tick-1).Msg("goal completed")
			return nil
		}

		g.tick(ctx, logger)

		if err := wait(ctx, g.Interval); err != nil {
			logger.Info().Err(err).Msg("goal stopped before completion")
			return err
		}
	}
}

func (g *Goal[S]) tick(ctx context.Context, logger zerolog.Logger) {
	err := g.Action.Run(ctx, g.State)
	if err != nil {
		logger.Error().Err(err).Msg("goal action failed")
	}
	if g.AfterTick != nil {
		g.AfterTick(ctx, g.State, err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
