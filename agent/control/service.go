package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contactx "github.com/tanpawarit/goal-agent/agent/contact"
	contractx "github.com/tanpawarit/goal-agent/agent/contract"
	"github.com/tanpawarit/goal-agent/agent/engine"
	"github.com/tanpawarit/goal-agent/agent/registry"
)

// Submission is a request to start a goal for one contact.
type Submission struct {
	GoalID   string
	GoalType string
	Interval time.Duration
	Contact  contactx.Identity
}

// Validate checks what every submission needs: a goal name.
func (s Submission) Validate() error {
	if strings.TrimSpace(s.GoalType) == "" {
		return fmt.Errorf("%w: goal name is required", contractx.ErrValidation)
	}
	return nil
}

// ValidateContact checks the fields needed to build and schedule a contact
// goal. Only known goal types are held to it.
func (s Submission) ValidateContact() error {
	if s.Interval <= 0 {
		return fmt.Errorf("%w: interval must be > 0", contractx.ErrValidation)
	}
	if strings.TrimSpace(s.Contact.Email) == "" {
		return fmt.Errorf("%w: contact email is required", contractx.ErrValidation)
	}
	return nil
}

// GoalFactory builds a ready-to-run goal for a submission.
type GoalFactory func(sub Submission) (engine.Runner, error)

// Catalog maps goal-type names to the factories that build them.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]GoalFactory
}

func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]GoalFactory, 4)}
}

func (c *Catalog) Register(goalType string, f GoalFactory) error {
	goalType = strings.TrimSpace(goalType)
	if goalType == "" {
		return fmt.Errorf("%w: goal type is empty", contractx.ErrValidation)
	}
	if f == nil {
		return fmt.Errorf("%w: factory for %s is nil", contractx.ErrValidation, goalType)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.factories[goalType]; ok {
		return fmt.Errorf("%w: goal type %s already registered", contractx.ErrValidation, goalType)
	}
	c.factories[goalType] = f
	return nil
}

func (c *Catalog) Lookup(goalType string) (GoalFactory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[goalType]
	return f, ok
}

type Spawner interface {
	Spawn(ctx context.Context, r engine.Runner)
}

// Service is the control surface: it accepts goals and reports their names.
type Service struct {
	registry *registry.Registry
	catalog  *Catalog
	spawner  Spawner

	// goals run under this context rather than the request's.
	root context.Context
}

func New(root context.Context, reg *registry.Registry, catalog *Catalog, spawner Spawner) (*Service, error) {
	if reg == nil {
		return nil, errors.New("goal registry is required")
	}
	if catalog == nil {
		return nil, errors.New("goal catalog is required")
	}
	if spawner == nil {
		return nil, errors.New("spawner is required")
	}
	if root == nil {
		root = context.Background()
	}
	return &Service{
		registry: reg,
		catalog:  catalog,
		spawner:  spawner,
		root:     root,
	}, nil
}

// Submit registers the goal name and starts the goal when its type is known.
// Unknown types are always registered, logged and accepted. The returned
// error covers a missing name, a known type whose contact fields are
// invalid, and factory failures.
func (s *Service) Submit(sub Submission) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	if sub.GoalID == "" {
		sub.GoalID = uuid.NewString()
	}

	factory, ok := s.catalog.Lookup(sub.GoalType)
	if !ok {
		s.registry.Register(sub.GoalType)
		log.Warn().
			Err(fmt.Errorf("%w: %s", contractx.ErrUnknownGoalType, sub.GoalType)).
			Str("goal", sub.GoalType).
			Str("goal_id", sub.GoalID).
			Msg("nothing scheduled")
		return nil
	}

	if err := sub.ValidateContact(); err != nil {
		return err
	}
	runner, err := factory(sub)
	if err != nil {
		return fmt.Errorf("build goal %s: %w", sub.GoalType, err)
	}
	s.registry.Register(sub.GoalType)
	s.spawner.Spawn(s.root, runner)

	log.Info().
		Str("goal", sub.GoalType).
		Str("goal_id", sub.GoalID).
		Str("email", sub.Contact.Email).
		Dur("interval", sub.Interval).
		Msg("goal started")
	return nil
}

func (s *Service) List() []string {
	return s.registry.Snapshot()
}
