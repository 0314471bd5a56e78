package followup

import (
	"context"

	"github.com/rs/zerolog/log"
	contactx "github.com/tanpawarit/goal-agent/agent/contact"
	"github.com/tanpawarit/goal-agent/agent/control"
	"github.com/tanpawarit/goal-agent/agent/engine"
)

// GoalType is the submission name that starts an email follow-up goal.
const GoalType = "email_followup"

// SnapshotSaver receives a copy of the contact after every tick.
type SnapshotSaver interface {
	Save(ctx context.Context, snap contactx.Record) error
}

type FactoryOption func(*factoryConfig)

type factoryConfig struct {
	snapshots SnapshotSaver
}

func WithSnapshots(s SnapshotSaver) FactoryOption {
	return func(c *factoryConfig) {
		if s != nil {
			c.snapshots = s
		}
	}
}

// NewFactory returns the catalog entry for GoalType. Every goal it builds
// shares action, a stateless InviteAccepted condition, and its own record.
func NewFactory(action engine.Action[*contactx.Record], opts ...FactoryOption) control.GoalFactory {
	cfg := &factoryConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	return func(sub control.Submission) (engine.Runner, error) {
		goal := &engine.Goal[*contactx.Record]{
			ID:        sub.GoalID,
			Name:      sub.GoalType,
			Interval:  sub.Interval,
			State:     contactx.NewRecord(sub.GoalID, sub.Contact),
			Action:    action,
			Condition: InviteAccepted{},
		}
		if cfg.snapshots != nil {
			goal.AfterTick = checkpoint(cfg.snapshots)
		}
		if err := goal.Validate(); err != nil {
			return nil, err
		}
		return goal, nil
	}
}

func checkpoint(store SnapshotSaver) func(context.Context, *contactx.Record, error) {
	return func(ctx context.Context, rec *contactx.Record, _ error) {
		if err := store.Save(ctx, rec.Snapshot()); err != nil {
			log.Warn().Err(err).Str("goal_id", rec.GoalID).Msg("save contact snapshot failed")
		}
	}
}
