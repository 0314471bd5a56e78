package followup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	contactx "github.com/tanpawarit/goal-agent/agent/contact"
	contractx "github.com/tanpawarit/goal-agent/agent/contract"
	"github.com/tanpawarit/goal-agent/agent/engine"
)

type fetchCall struct {
	address string
	after   time.Time
	limit   int
}

type fakeReplies struct {
	batches [][]contractx.Reply
	err     error
	calls   []fetchCall
}

func (f *fakeReplies) Fetch(ctx context.Context, address string, after time.Time, limit int) ([]contractx.Reply, error) {
	f.calls = append(f.calls, fetchCall{address: address, after: after, limit: limit})
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.calls) - 1
	if idx >= len(f.batches) {
		return nil, nil
	}
	return f.batches[idx], nil
}

type fakeClassifier struct {
	labels map[string]contactx.Category
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (contactx.Category, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if c, ok := f.labels[text]; ok {
		return c, nil
	}
	return contactx.CategoryOther, nil
}

type fakeMeetings struct {
	err     error
	invites []contactx.Identity
}

func (f *fakeMeetings) CreateInvite(ctx context.Context, who contactx.Identity) error {
	f.invites = append(f.invites, who)
	return f.err
}

type fakeDrafter struct {
	body  string
	err   error
	calls int
}

func (f *fakeDrafter) Draft(ctx context.Context, rec *contactx.Record) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.body, nil
}

type sentMessage struct {
	address string
	body    string
}

type fakeSender struct {
	err  error
	sent []sentMessage
}

func (f *fakeSender) Send(ctx context.Context, address string, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{address: address, body: body})
	return nil
}

type fakes struct {
	replies    *fakeReplies
	classifier *fakeClassifier
	meetings   *fakeMeetings
	drafter    *fakeDrafter
	sender     *fakeSender
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestAction(t *testing.T, clock *testClock) (*Action, *fakes) {
	t.Helper()

	f := &fakes{
		replies:    &fakeReplies{},
		classifier: &fakeClassifier{labels: map[string]contactx.Category{}},
		meetings:   &fakeMeetings{},
		drafter:    &fakeDrafter{body: "Hi Ada, just following up on my last note."},
		sender:     &fakeSender{},
	}
	a, err := NewAction(Deps{
		Replies:    f.replies,
		Classifier: f.classifier,
		Meetings:   f.meetings,
		Drafter:    f.drafter,
		Sender:     f.sender,
	}, DefaultPolicy())
	if err != nil {
		t.Fatalf("NewAction() error = %v", err)
	}
	a.now = clock.Now
	return a, f
}

func newTestRecord() *contactx.Record {
	return contactx.NewRecord("goal-1", contactx.Identity{
		Name:    "Ada",
		Email:   "ada@example.com",
		Company: "Analytical Engines",
		Role:    "CTO",
	})
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestActionFirstTickNudgesSecondTickWaits(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: t0}
	a, f := newTestAction(t, clock)
	rec := newTestRecord()

	if err := a.Run(context.Background(), rec); err != nil {
		t.Fatalf("Run() tick 1 error = %v", err)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(f.sender.sent))
	}
	if f.sender.sent[0].address != "ada@example.com" {
		t.Fatalf("sent to %q", f.sender.sent[0].address)
	}
	if rec.FollowUpCount != 1 {
		t.Fatalf("FollowUpCount = %d, want 1", rec.FollowUpCount)
	}
	if rec.LastStamp == nil || !rec.LastStamp.Equal(t0) {
		t.Fatalf("LastStamp = %v, want %v", rec.LastStamp, t0)
	}
	if rec.LastMessage != f.drafter.body {
		t.Fatalf("LastMessage = %q, want %q", rec.LastMessage, f.drafter.body)
	}
	if got, want := f.replies.calls[0].after, t0.Add(-30*24*time.Hour); !got.Equal(want) {
		t.Fatalf("fetch after = %v, want %v", got, want)
	}
	if f.replies.calls[0].limit != 5 {
		t.Fatalf("fetch limit = %d, want 5", f.replies.calls[0].limit)
	}

	clock.now = t0.Add(time.Second)
	if err := a.Run(context.Background(), rec); err != nil {
		t.Fatalf("Run() tick 2 error = %v", err)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("sent after tick 2 = %d, want 1", len(f.sender.sent))
	}
	if rec.FollowUpCount != 1 {
		t.Fatalf("FollowUpCount after tick 2 = %d, want 1", rec.FollowUpCount)
	}
	if got := f.replies.calls[1].after; !got.Equal(t0) {
		t.Fatalf("tick 2 fetch after = %v, want last stamp %v", got, t0)
	}
}

func TestActionNudgesAgainAfterBackoffWindow(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: t0}
	a, _ := newTestAction(t, clock)
	rec := newTestRecord()

	for _, at := range []time.Time{t0, t0.Add(48 * time.Hour), t0.Add(48*time.Hour + time.Minute)} {
		clock.now = at
		if err := a.Run(context.Background(), rec); err != nil {
			t.Fatalf("Run() at %v error = %v", at, err)
		}
	}
	if rec.FollowUpCount != 2 {
		t.Fatalf("FollowUpCount = %d, want 2 (exactly 48h is not enough)", rec.FollowUpCount)
	}
	if !rec.LastStamp.Equal(t0.Add(48*time.Hour + time.Minute)) {
		t.Fatalf("LastStamp = %v", rec.LastStamp)
	}
}

func TestActionNotNowDefersReengagement(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: t0}
	a, f := newTestAction(t, clock)
	f.replies.batches = [][]contractx.Reply{{{ID: "m1", Body: "ping me next quarter"}}}
	f.classifier.labels["ping me next quarter"] = contactx.CategoryNotNow
	rec := newTestRecord()

	if err := a.Run(context.Background(), rec); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.Status != contactx.StatusNotNow {
		t.Fatalf("Status = %q, want %q", rec.Status, contactx.StatusNotNow)
	}
	want := t0.Add(14 * 24 * time.Hour)
	if rec.LastStamp == nil || !rec.LastStamp.Equal(want) {
		t.Fatalf("LastStamp = %v, want %v", rec.LastStamp, want)
	}
	if len(f.sender.sent) != 0 {
		t.Fatalf("sent = %d, want 0", len(f.sender.sent))
	}

	for _, d := range []time.Duration{time.Hour, 7 * 24 * time.Hour, 13 * 24 * time.Hour} {
		clock.now = t0.Add(d)
		if err := a.Run(context.Background(), rec); err != nil {
			t.Fatalf("Run() at +%v error = %v", d, err)
		}
		if rec.Elapsed(clock.now) >= 48*time.Hour {
			t.Fatalf("Elapsed() at +%v = %v, want < 48h", d, rec.Elapsed(clock.now))
		}
	}
	if len(f.sender.sent) != 0 {
		t.Fatalf("sent during deferral = %d, want 0", len(f.sender.sent))
	}
	if got := f.replies.calls[1].after; !got.Equal(want) {
		t.Fatalf("fetch after during deferral = %v, want %v", got, want)
	}
}

func TestActionAcceptedKeepsStatusWhenInviteFails(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: t0}
	a, f := newTestAction(t, clock)
	f.replies.batches = [][]contractx.Reply{{{ID: "m1", Body: "sure, let's talk"}}}
	f.classifier.labels["sure, let's talk"] = contactx.CategoryAccepted
	f.meetings.err = errors.New("calendar quota exceeded")
	rec := newTestRecord()

	if err := a.Run(context.Background(), rec); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.Status != contactx.StatusInviteAccepted {
		t.Fatalf("Status = %q, want %q", rec.Status, contactx.StatusInviteAccepted)
	}
	if len(f.meetings.invites) != 1 || f.meetings.invites[0].Email != "ada@example.com" {
		t.Fatalf("invites = %#v", f.meetings.invites)
	}
	if len(f.sender.sent) != 0 {
		t.Fatalf("sent = %d, want 0", len(f.sender.sent))
	}
	if !(InviteAccepted{}).Met(rec) {
		t.Fatal("InviteAccepted.Met() = false, want true")
	}
}

func TestActionDeclinedSuppressesNudgeSameTick(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: t0}
	a, f := newTestAction(t, clock)
	f.replies.batches = [][]contractx.Reply{{{ID: "m1", Body: "no thanks"}}}
	f.classifier.labels["no thanks"] = contactx.CategoryDeclined
	rec := newTestRecord()

	if err := a.Run(context.Background(), rec); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.Status != contactx.StatusDeclined {
		t.Fatalf("Status = %q, want %q", rec.Status, contactx.StatusDeclined)
	}
	if f.drafter.calls != 0 || len(f.sender.sent) != 0 {
		t.Fatalf("drafter calls = %d, sent = %d, want 0/0", f.drafter.calls, len(f.sender.sent))
	}
	if (InviteAccepted{}).Met(rec) {
		t.Fatal("declined contact must not complete the goal")
	}
}

func TestActionLastReplyDecidesStatus(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: t0}
	a, f := newTestAction(t, clock)
	f.replies.batches = [][]contractx.Reply{{
		{ID: "m1", Body: "not right now"},
		{ID: "m2", Body: "actually, thursday works"},
	}}
	f.classifier.labels["not right now"] = contactx.CategoryNotNow
	f.classifier.labels["actually, thursday works"] = contactx.CategoryAccepted
	rec := newTestRecord()

	if err := a.Run(context.Background(), rec); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.Status != contactx.StatusInviteAccepted {
		t.Fatalf("Status = %q, want %q", rec.Status, contactx.StatusInviteAccepted)
	}
	if len(rec.Replies) != 2 || rec.Replies[0] != "not right now" {
		t.Fatalf("Replies = %#v", rec.Replies)
	}
	// The not-now deferral marker survives the later acceptance.
	if rec.LastStamp == nil || !rec.LastStamp.Equal(t0.Add(14*24*time.Hour)) {
		t.Fatalf("LastStamp = %v", rec.LastStamp)
	}
}

func TestActionSkipsRepliesAlreadySeen(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: t0}
	a, f := newTestAction(t, clock)
	reply := contractx.Reply{ID: "m1", Body: "who is this?"}
	f.replies.batches = [][]contractx.Reply{{reply}, {reply}}
	rec := newTestRecord()

	for i := 0; i < 2; i++ {
		if err := a.Run(context.Background(), rec); err != nil {
			t.Fatalf("Run() tick %d error = %v", i+1, err)
		}
	}
	if len(rec.Replies) != 1 {
		t.Fatalf("Replies = %d, want 1", len(rec.Replies))
	}
	if f.classifier.calls != 1 {
		t.Fatalf("classifier calls = %d, want 1", f.classifier.calls)
	}
}

func TestActionFetchErrorAbortsRun(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: t0}
	a, f := newTestAction(t, clock)
	f.replies.err = errors.New("inbox unavailable")
	rec := newTestRecord()

	err := a.Run(context.Background(), rec)
	if err == nil || !strings.Contains(err.Error(), "fetch replies") {
		t.Fatalf("Run() error = %v, want fetch replies error", err)
	}
	if len(f.sender.sent) != 0 || rec.FollowUpCount != 0 {
		t.Fatal("nudge must not go out after a failed harvest")
	}
}

func TestActionClassifierErrorKeepsPartialProgress(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: t0}
	a, f := newTestAction(t, clock)
	f.replies.batches = [][]contractx.Reply{{{ID: "m1", Body: "hello"}}}
	f.classifier.err = errors.New("rate limited")
	rec := newTestRecord()

	if err := a.Run(context.Background(), rec); err == nil {
		t.Fatal("Run() error = nil, want classify error")
	}
	if len(rec.Replies) != 1 || rec.Replies[0] != "hello" {
		t.Fatalf("Replies = %#v, want the harvested reply kept", rec.Replies)
	}
	if rec.Status != contactx.StatusWaiting {
		t.Fatalf("Status = %q, want %q", rec.Status, contactx.StatusWaiting)
	}
}

func TestActionReclassifiesReplyAfterClassifierError(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: t0}
	a, f := newTestAction(t, clock)
	accepted := contractx.Reply{ID: "m1", Body: "yes, let's talk"}
	f.replies.batches = [][]contractx.Reply{{accepted}, {accepted}}
	f.classifier.labels["yes, let's talk"] = contactx.CategoryAccepted
	f.classifier.err = errors.New("upstream 503")
	rec := newTestRecord()

	if err := a.Run(context.Background(), rec); err == nil {
		t.Fatal("first Run() error = nil, want classify error")
	}

	f.classifier.err = nil
	clock.now = t0.Add(time.Minute)
	if err := a.Run(context.Background(), rec); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if rec.Status != contactx.StatusInviteAccepted {
		t.Fatalf("Status = %q, want %q", rec.Status, contactx.StatusInviteAccepted)
	}
	if f.classifier.calls != 2 {
		t.Fatalf("classifier calls = %d, want 2", f.classifier.calls)
	}
	if len(rec.Replies) != 1 {
		t.Fatalf("Replies = %#v, want the reply stored once", rec.Replies)
	}
	if len(f.meetings.invites) != 1 {
		t.Fatalf("invites = %d, want 1", len(f.meetings.invites))
	}
	if len(f.sender.sent) != 0 {
		t.Fatalf("nudges sent = %d, want 0", len(f.sender.sent))
	}
}

func TestActionSendErrorLeavesCountersUntouched(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: t0}
	a, f := newTestAction(t, clock)
	f.sender.err = errors.New("mail relay refused")
	rec := newTestRecord()

	if err := a.Run(context.Background(), rec); err == nil {
		t.Fatal("Run() error = nil, want send error")
	}
	if rec.FollowUpCount != 0 || rec.LastStamp != nil || rec.LastMessage != "" {
		t.Fatalf("record changed after failed send: %#v", rec)
	}
}

func TestActionEmptyDraftIsMalformed(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: t0}
	a, f := newTestAction(t, clock)
	f.drafter.body = "   "
	rec := newTestRecord()

	err := a.Run(context.Background(), rec)
	if !errors.Is(err, contractx.ErrMalformedResponse) {
		t.Fatalf("Run() error = %v, want ErrMalformedResponse", err)
	}
}

func TestNewActionRequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := NewAction(Deps{}, DefaultPolicy())
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("NewAction() error = %v, want ErrValidation", err)
	}
}

func TestFollowUpGoalStopsOnAcceptance(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: t0}
	a, f := newTestAction(t, clock)
	f.replies.batches = [][]contractx.Reply{nil, {{ID: "m1", Body: "yes please"}}}
	f.classifier.labels["yes please"] = contactx.CategoryAccepted
	f.meetings.err = errors.New("calendar down")

	rec := newTestRecord()
	goal := &engine.Goal[*contactx.Record]{
		ID:        rec.GoalID,
		Name:      GoalType,
		Interval:  time.Millisecond,
		State:     rec,
		Action:    a,
		Condition: InviteAccepted{},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := goal.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(f.replies.calls) != 2 {
		t.Fatalf("action ran %d times, want 2", len(f.replies.calls))
	}
	if rec.FollowUpCount != 1 {
		t.Fatalf("FollowUpCount = %d, want 1", rec.FollowUpCount)
	}
}
