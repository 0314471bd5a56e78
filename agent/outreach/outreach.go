package outreach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contactx "github.com/tanpawarit/goal-agent/agent/contact"
	contractx "github.com/tanpawarit/goal-agent/agent/contract"
	qstashx "github.com/tanpawarit/goal-agent/pkg/qstash"
)

var (
	_ contractx.MessageSender    = (*Sender)(nil)
	_ contractx.MeetingScheduler = (*Scheduler)(nil)
)

const inviteSummary = "15-min intro chat"

// Config names the webhooks that actually deliver mail and calendar invites.
type Config struct {
	MailWebhook     string        `envconfig:"MAIL_WEBHOOK" split_words:"true" required:"true"`
	CalendarWebhook string        `envconfig:"CALENDAR_WEBHOOK" split_words:"true" required:"true"`
	Subject         string        `envconfig:"SUBJECT" split_words:"true" default:"Quick chat?"`
	InviteLeadTime  time.Duration `envconfig:"INVITE_LEAD_TIME" split_words:"true" default:"48h"`
	InviteDuration  time.Duration `envconfig:"INVITE_DURATION" split_words:"true" default:"15m"`
}

// Publisher is the part of the QStash client outreach needs.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload any, opts qstashx.PublishOptions) (string, error)
}

type mailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Sender struct {
	publisher   Publisher
	destination string
	subject     string
}

func NewSender(publisher Publisher, cfg Config) (*Sender, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	destination := strings.TrimSpace(cfg.MailWebhook)
	if destination == "" {
		return nil, fmt.Errorf("%w: mail webhook is required", contractx.ErrValidation)
	}
	subject := strings.TrimSpace(cfg.Subject)
	if subject == "" {
		subject = "Quick chat?"
	}
	return &Sender{publisher: publisher, destination: destination, subject: subject}, nil
}

func (s *Sender) Send(ctx context.Context, address, body string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("%w: recipient address is empty", contractx.ErrValidation)
	}

	id, err := s.publisher.Publish(ctx, s.destination, mailPayload{
		To:      address,
		Subject: s.subject,
		Body:    body,
	}, qstashx.PublishOptions{})
	if err != nil {
		return fmt.Errorf("%w: publish mail: %v", contractx.ErrCollaborator, err)
	}

	log.Debug().Str("email", address).Str("message_id", id).Msg("mail queued")
	return nil
}

type Attendee struct {
	Email string `json:"email"`
	Name  string `json:"displayName,omitempty"`
}

type EventTime struct {
	DateTime time.Time `json:"dateTime"`
	TimeZone string    `json:"timeZone"`
}

// Invite mirrors a calendar event insert request.
type Invite struct {
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Start       EventTime  `json:"start"`
	End         EventTime  `json:"end"`
	Attendees   []Attendee `json:"attendees"`
	SendUpdates string     `json:"sendUpdates"`
}

type Scheduler struct {
	publisher   Publisher
	destination string
	leadTime    time.Duration
	duration    time.Duration
	now         func() time.Time
}

type SchedulerOption func(*Scheduler)

func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func NewScheduler(publisher Publisher, cfg Config, opts ...SchedulerOption) (*Scheduler, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	destination := strings.TrimSpace(cfg.CalendarWebhook)
	if destination == "" {
		return nil, fmt.Errorf("%w: calendar webhook is required", contractx.ErrValidation)
	}

	s := &Scheduler{
		publisher:   publisher,
		destination: destination,
		leadTime:    cfg.InviteLeadTime,
		duration:    cfg.InviteDuration,
		now:         time.Now,
	}
	if s.leadTime <= 0 {
		s.leadTime = 48 * time.Hour
	}
	if s.duration <= 0 {
		s.duration = 15 * time.Minute
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Scheduler) CreateInvite(ctx context.Context, who contactx.Identity) error {
	email := strings.TrimSpace(who.Email)
	if email == "" {
		return fmt.Errorf("%w: attendee email is empty", contractx.ErrValidation)
	}

	invite := s.buildInvite(who)
	id, err := s.publisher.Publish(ctx, s.destination, invite, qstashx.PublishOptions{})
	if err != nil {
		return fmt.Errorf("%w: publish invite: %v", contractx.ErrCollaborator, err)
	}

	log.Info().
		Str("email", email).
		Time("start", invite.Start.DateTime).
		Str("message_id", id).
		Msg("meeting invite queued")
	return nil
}

func (s *Scheduler) buildInvite(who contactx.Identity) Invite {
	start := s.now().UTC().Add(s.leadTime).Truncate(time.Minute)
	end := start.Add(s.duration)

	var description string
	if who.Company != "" {
		description = fmt.Sprintf("Intro chat with %s (%s)", who.Name, who.Company)
	}

	return Invite{
		Summary:     inviteSummary,
		Description: description,
		Start:       EventTime{DateTime: start, TimeZone: "UTC"},
		End:         EventTime{DateTime: end, TimeZone: "UTC"},
		Attendees:   []Attendee{{Email: strings.TrimSpace(who.Email), Name: who.Name}},
		SendUpdates: "all",
	}
}
