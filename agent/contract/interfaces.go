package contract

import (
	"context"
	"time"

	contactx "github.com/tanpawarit/goal-agent/agent/contact"
)

// ReplySource returns reply messages from address received after the given
// time, at most limit of them, in source-defined order.
type ReplySource interface {
	Fetch(ctx context.Context, address string, after time.Time, limit int) ([]Reply, error)
}

type MessageSender interface {
	Send(ctx context.Context, address string, body string) error
}

// Classifier must resolve every text to one of the known categories. It only
// errors when the underlying service cannot be reached.
type Classifier interface {
	Classify(ctx context.Context, text string) (contactx.Category, error)
}

type MeetingScheduler interface {
	CreateInvite(ctx context.Context, who contactx.Identity) error
}

type NudgeDrafter interface {
	Draft(ctx context.Context, rec *contactx.Record) (string, error)
}
