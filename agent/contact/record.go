package contact

import (
	"strings"
	"time"
)

// DefaultElapsed is what Elapsed reports for a contact never stamped,
// which makes the first nudge check pass the 48h threshold.
const DefaultElapsed = 48 * time.Hour

type Identity struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Role    string `json:"role"`
}

// Record is the mutable state one follow-up goal works on. It is owned by
// the goal's scheduler goroutine once the goal starts.
type Record struct {
	GoalID   string   `json:"goal_id"`
	Identity Identity `json:"identity"`

	LastMessage string `json:"last_message,omitempty"`
	// LastStamp is either the time of the last nudge or, after a "not now"
	// reply, the time before which no nudge may go out.
	LastStamp *time.Time `json:"last_stamp,omitempty"`

	Replies           []string            `json:"replies,omitempty"`
	SeenReplies       map[string]struct{} `json:"-"`
	ClassifiedReplies map[string]struct{} `json:"-"`
	Status            Status              `json:"status"`
	FollowUpCount     int                 `json:"follow_up_count"`
}

func NewRecord(goalID string, who Identity) *Record {
	return &Record{
		GoalID: goalID,
		Identity: Identity{
			Name:    strings.TrimSpace(who.Name),
			Email:   strings.TrimSpace(who.Email),
			Company: strings.TrimSpace(who.Company),
			Role:    strings.TrimSpace(who.Role),
		},
		SeenReplies:       make(map[string]struct{}, 4),
		ClassifiedReplies: make(map[string]struct{}, 4),
		Status:            StatusWaiting,
	}
}

// Elapsed returns now minus LastStamp. It is negative while a deferral
// marker is still in the future.
func (r *Record) Elapsed(now time.Time) time.Duration {
	if r.LastStamp == nil {
		return DefaultElapsed
	}
	return now.Sub(*r.LastStamp)
}

// NudgeDue reports whether more than threshold has passed since LastStamp.
// A contact that was never stamped is always due.
func (r *Record) NudgeDue(now time.Time, threshold time.Duration) bool {
	if r.LastStamp == nil {
		return true
	}
	return r.Elapsed(now) > threshold
}

// LookbackFrom is the lower bound for reply harvesting.
func (r *Record) LookbackFrom(now time.Time, lookback time.Duration) time.Time {
	if r.LastStamp == nil {
		return now.Add(-lookback)
	}
	return *r.LastStamp
}

// DeferUntil suppresses nudges until t by moving LastStamp forward.
func (r *Record) DeferUntil(t time.Time) {
	stamp := t.UTC()
	r.LastStamp = &stamp
}

func (r *Record) MarkNudged(body string, now time.Time) {
	stamp := now.UTC()
	r.LastMessage = body
	r.LastStamp = &stamp
	r.FollowUpCount++
}

// AppendReply records a reply body once per id and reports whether it was new.
// An empty id is always treated as new.
func (r *Record) AppendReply(id string, body string) bool {
	if id != "" {
		if r.SeenReplies == nil {
			r.SeenReplies = make(map[string]struct{}, 4)
		}
		if _, ok := r.SeenReplies[id]; ok {
			return false
		}
		r.SeenReplies[id] = struct{}{}
	}
	r.Replies = append(r.Replies, body)
	return true
}

// ReplyClassified reports whether the reply with id already changed the
// status. An empty id is never considered classified.
func (r *Record) ReplyClassified(id string) bool {
	if id == "" {
		return false
	}
	_, ok := r.ClassifiedReplies[id]
	return ok
}

// MarkClassified records that the reply with id has been acted on.
func (r *Record) MarkClassified(id string) {
	if id == "" {
		return
	}
	if r.ClassifiedReplies == nil {
		r.ClassifiedReplies = make(map[string]struct{}, 4)
	}
	r.ClassifiedReplies[id] = struct{}{}
}

// Snapshot returns a deep copy safe to hand to other goroutines.
func (r *Record) Snapshot() Record {
	out := *r
	if r.LastStamp != nil {
		stamp := *r.LastStamp
		out.LastStamp = &stamp
	}
	out.Replies = append([]string(nil), r.Replies...)
	out.SeenReplies = make(map[string]struct{}, len(r.SeenReplies))
	for id := range r.SeenReplies {
		out.SeenReplies[id] = struct{}{}
	}
	out.ClassifiedReplies = make(map[string]struct{}, len(r.ClassifiedReplies))
	for id := range r.ClassifiedReplies {
		out.ClassifiedReplies[id] = struct{}{}
	}
	return out
}
