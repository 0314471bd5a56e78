package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/goal-agent/agent/contract"
	"github.com/tanpawarit/goal-agent/agent/control"
)

type Config struct {
	Addr            string        `envconfig:"ADDR" split_words:"true" default:":3000"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" split_words:"true" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" split_words:"true" default:"10s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" split_words:"true" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"5s"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" split_words:"true" default:"1048576"`
}

// GoalService is the control surface the API fronts.
type GoalService interface {
	Submit(sub control.Submission) error
	List() []string
}

// ReplyIngester stores inbound email replies.
type ReplyIngester interface {
	Insert(ctx context.Context, reply contractx.Reply) error
}

// SignatureVerifier authenticates inbound webhook deliveries.
type SignatureVerifier interface {
	VerifiesSignatures() bool
	Verify(signature string, body []byte, now time.Time) error
}

type Server struct {
	cfg      Config
	goals    GoalService
	inbox    ReplyIngester
	verifier SignatureVerifier
	clock    func() time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

type Option func(*Server)

// WithInbox enables POST /inbox.
func WithInbox(inbox ReplyIngester, verifier SignatureVerifier) Option {
	return func(s *Server) {
		s.inbox = inbox
		s.verifier = verifier
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewServer(cfg Config, goals GoalService, opts ...Option) (*Server, error) {
	if goals == nil {
		return nil, errors.New("goal service is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	s := &Server{
		cfg:   cfg,
		goals: goals,
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /goal", s.handleSubmitGoal)
	mux.HandleFunc("GET /status", s.handleStatus)
	if s.inbox != nil {
		mux.HandleFunc("POST /inbox", s.handleInbox)
	}
	return mux
}

// Start binds the listener and serves in the background until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("httpapi: server already started")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen %s: %w", s.cfg.Addr, err)
	}

	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.listener = listener
	s.server = server

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()
	log.Info().Str("addr", listener.Addr().String()).Msg("http server listening")
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	s.server = nil
	s.listener = nil
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
