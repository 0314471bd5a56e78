package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type counterState struct {
	calls int
	done  bool
}

func noWait(context.Context, time.Duration) error { return nil }

func TestGoalRunStopsOnTickConditionIsMet(t *testing.T) {
	t.Parallel()

	st := &counterState{}
	var checks int
	g := &Goal[*counterState]{
		Name:     "email_followup",
		Interval: time.Second,
		State:    st,
		Action: ActionFunc[*counterState](func(ctx context.Context, s *counterState) error {
			s.calls++
			if s.calls == 3 {
				s.done = true
			}
			return nil
		}),
		Condition: ConditionFunc[*counterState](func(s *counterState) bool {
			checks++
			return s.done
		}),
		wait: noWait,
	}

	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if st.calls != 3 {
		t.Fatalf("action calls = %d, want 3", st.calls)
	}
	if checks != 4 {
		t.Fatalf("condition checks = %d, want 4", checks)
	}
}

func TestGoalRunNeverActsWhenAlreadyMet(t *testing.T) {
	t.Parallel()

	st := &counterState{done: true}
	g := &Goal[*counterState]{
		Name:     "g",
		Interval: time.Second,
		State:    st,
		Action: ActionFunc[*counterState](func(ctx context.Context, s *counterState) error {
			s.calls++
			return nil
		}),
		Condition: ConditionFunc[*counterState](func(s *counterState) bool { return s.done }),
		wait:      noWait,
	}

	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if st.calls != 0 {
		t.Fatalf("action calls = %d, want 0", st.calls)
	}
}

func TestGoalRunKeepsGoingAfterActionErrors(t *testing.T) {
	t.Parallel()

	st := &counterState{}
	var afterTickErrs []error
	g := &Goal[*counterState]{
		Name:     "g",
		Interval: time.Second,
		State:    st,
		Action: ActionFunc[*counterState](func(ctx context.Context, s *counterState) error {
			s.calls++
			if s.calls < 3 {
				return errors.New("smtp down")
			}
			s.done = true
			return nil
		}),
		Condition: ConditionFunc[*counterState](func(s *counterState) bool { return s.done }),
		AfterTick: func(ctx context.Context, s *counterState, err error) {
			afterTickErrs = append(afterTickErrs, err)
		},
		wait: noWait,
	}

	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if st.calls != 3 {
		t.Fatalf("action calls = %d, want 3", st.calls)
	}
	if len(afterTickErrs) != 3 || afterTickErrs[0] == nil || afterTickErrs[1] == nil || afterTickErrs[2] != nil {
		t.Fatalf("unexpected AfterTick errors: %#v", afterTickErrs)
	}
}

func TestGoalRunWaitsIntervalBetweenTicks(t *testing.T) {
	t.Parallel()

	st := &counterState{}
	var waits []time.Duration
	g := &Goal[*counterState]{
		Name:     "g",
		Interval: 7 * time.Second,
		State:    st,
		Action: ActionFunc[*counterState](func(ctx context.Context, s *counterState) error {
			s.calls++
			s.done = s.calls == 2
			return nil
		}),
		Condition: ConditionFunc[*counterState](func(s *counterState) bool { return s.done }),
		wait: func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}

	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(waits) != 2 || waits[0] != 7*time.Second || waits[1] != 7*time.Second {
		t.Fatalf("waits = %v, want two waits of 7s", waits)
	}
}

func TestGoalRunReturnsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	g := &Goal[*counterState]{
		Name:     "g",
		Interval: time.Hour,
		State:    &counterState{},
		Action: ActionFunc[*counterState](func(ctx context.Context, s *counterState) error {
			calls.Add(1)
			return nil
		}),
		Condition: ConditionFunc[*counterState](func(s *counterState) bool { return false }),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- g.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("action was never invoked")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestGoalValidate(t *testing.T) {
	t.Parallel()

	action := ActionFunc[int](func(context.Context, int) error { return nil })
	cond := ConditionFunc[int](func(int) bool { return true })

	tests := []struct {
		name string
		goal *Goal[int]
	}{
		{"nil", nil},
		{"empty name", &Goal[int]{Interval: time.Second, Action: action, Condition: cond}},
		{"zero interval", &Goal[int]{Name: "g", Action: action, Condition: cond}},
		{"no action", &Goal[int]{Name: "g", Interval: time.Second, Condition: cond}},
		{"no condition", &Goal[int]{Name: "g", Interval: time.Second, Action: action}},
	}

	for _, tt := range tests {
		if err := tt.goal.Validate(); !errors.Is(err, ErrInvalidGoal) {
			t.Fatalf("%s: Validate() error = %v, want ErrInvalidGoal", tt.name, err)
		}
	}
}

func TestPoolSpawnRunsGoalsConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pool := NewPool()
	var finished atomic.Int32
	for i := 0; i < 5; i++ {
		st := &counterState{}
		pool.Spawn(context.Background(), &Goal[*counterState]{
			ID:       "id",
			Name:     "g",
			Interval: time.Millisecond,
			State:    st,
			Action: ActionFunc[*counterState](func(ctx context.Context, s *counterState) error {
				s.calls++
				if s.calls == 2 {
					s.done = true
					finished.Add(1)
				}
				return nil
			}),
			Condition: ConditionFunc[*counterState](func(s *counterState) bool { return s.done }),
		})
	}
	pool.Wait()

	if got := finished.Load(); got != 5 {
		t.Fatalf("finished goals = %d, want 5", got)
	}
}
