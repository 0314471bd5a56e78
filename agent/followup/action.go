package followup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contactx "github.com/tanpawarit/goal-agent/agent/contact"
	contractx "github.com/tanpawarit/goal-agent/agent/contract"
	"github.com/tanpawarit/goal-agent/agent/engine"
)

var (
	_ engine.Action[*contactx.Record]    = (*Action)(nil)
	_ engine.Condition[*contactx.Record] = InviteAccepted{}
)

type Deps struct {
	Replies    contractx.ReplySource
	Classifier contractx.Classifier
	Meetings   contractx.MeetingScheduler
	Drafter    contractx.NudgeDrafter
	Sender     contractx.MessageSender
}

func (d Deps) validate() error {
	switch {
	case d.Replies == nil:
		return errors.New("reply source is required")
	case d.Classifier == nil:
		return errors.New("classifier is required")
	case d.Meetings == nil:
		return errors.New("meeting scheduler is required")
	case d.Drafter == nil:
		return errors.New("nudge drafter is required")
	case d.Sender == nil:
		return errors.New("message sender is required")
	}
	return nil
}

// Action harvests replies, reacts to them, and nudges silent contacts.
type Action struct {
	deps   Deps
	policy Policy
	now    func() time.Time
}

func NewAction(deps Deps, policy Policy) (*Action, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, err)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Action{
		deps:   deps,
		policy: policy,
		now:    time.Now,
	}, nil
}

// Run harvests before it nudges, so a reply that arrived since the last tick
// can take the contact out of Waiting and suppress this tick's nudge.
func (a *Action) Run(ctx context.Context, rec *contactx.Record) error {
	if rec == nil {
		return fmt.Errorf("%w: contact record is nil", contractx.ErrValidation)
	}
	if err := a.harvest(ctx, rec); err != nil {
		return err
	}
	return a.nudge(ctx, rec)
}

func (a *Action) harvest(ctx context.Context, rec *contactx.Record) error {
	after := rec.LookbackFrom(a.now().UTC(), a.policy.Lookback)
	replies, err := a.deps.Replies.Fetch(ctx, rec.Identity.Email, after, a.policy.FetchLimit)
	if err != nil {
		return fmt.Errorf("fetch replies: %w", err)
	}

	for _, reply := range replies {
		rec.AppendReply(reply.ID, reply.Body)
		if rec.ReplyClassified(reply.ID) {
			continue
		}

		// A failed classification leaves the reply unmarked so the next
		// tick classifies it again.
		category, err := a.deps.Classifier.Classify(ctx, reply.Body)
		if err != nil {
			return fmt.Errorf("classify reply: %w", err)
		}
		rec.Status = contactx.StatusFor(category)
		rec.MarkClassified(reply.ID)

		logger := log.With().Str("goal_id", rec.GoalID).Str("email", rec.Identity.Email).Logger()
		logger.Info().Str("category", string(category)).Str("status", string(rec.Status)).Msg("reply classified")

		switch rec.Status {
		case contactx.StatusInviteAccepted:
			// The status stays accepted even when no meeting gets created.
			if err := a.deps.Meetings.CreateInvite(ctx, rec.Identity); err != nil {
				logger.Error().Err(err).Msg("meeting invite failed")
			}
		case contactx.StatusNotNow:
			rec.DeferUntil(a.now().Add(a.policy.NotNowDeferral))
		}
	}
	return nil
}

func (a *Action) nudge(ctx context.Context, rec *contactx.Record) error {
	now := a.now().UTC()
	if rec.Status != contactx.StatusWaiting || !rec.NudgeDue(now, a.policy.NudgeAfter) {
		return nil
	}

	body, err := a.deps.Drafter.Draft(ctx, rec)
	if err != nil {
		return fmt.Errorf("draft nudge: %w", err)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return fmt.Errorf("draft nudge: %w: empty body", contractx.ErrMalformedResponse)
	}

	if err := a.deps.Sender.Send(ctx, rec.Identity.Email, body); err != nil {
		return fmt.Errorf("send nudge: %w", err)
	}
	rec.MarkNudged(body, now)

	log.Info().
		Str("goal_id", rec.GoalID).
		Str("email", rec.Identity.Email).
		Int("follow_ups", rec.FollowUpCount).
		Msg("nudge sent")
	return nil
}

// InviteAccepted is met once the contact accepted a meeting.
type InviteAccepted struct{}

func (InviteAccepted) Met(rec *contactx.Record) bool {
	return rec != nil && rec.Status == contactx.StatusInviteAccepted
}
