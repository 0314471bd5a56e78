package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/goal-agent/agent/contract"
	"github.com/uptrace/bun"
)

var _ contractx.ReplySource = (*Store)(nil)

// InboundReply is one received email reply, keyed by the provider message id.
type InboundReply struct {
	bun.BaseModel `bun:"table:inbound_replies,alias:r"`

	ID          string    `bun:"id,pk"`
	FromAddress string    `bun:"from_address,notnull"`
	Body        string    `bun:"body,notnull"`
	ReceivedAt  time.Time `bun:"received_at,notnull"`
}

func (r InboundReply) toContract() contractx.Reply {
	return contractx.Reply{
		ID:         r.ID,
		From:       r.FromAddress,
		Body:       r.Body,
		ReceivedAt: r.ReceivedAt,
	}
}

// Store reads and writes inbound replies in Postgres.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("inbox db is required")
	}
	return &Store{db: db}, nil
}

// EnsureSchema creates the replies table and its lookup index.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*InboundReply)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create inbound_replies: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*InboundReply)(nil)).
		Index("inbound_replies_from_received_idx").
		Column("from_address", "received_at").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create inbound_replies index: %w", err)
	}
	return nil
}

// Fetch returns the newest limit replies from address received after the
// given time, oldest first.
func (s *Store) Fetch(ctx context.Context, address string, after time.Time, limit int) ([]contractx.Reply, error) {
	address = normalizeAddress(address)
	if address == "" {
		return nil, fmt.Errorf("%w: address is empty", contractx.ErrValidation)
	}
	if limit <= 0 {
		return nil, nil
	}

	var rows []InboundReply
	if err := s.fetchQuery(&rows, address, after, limit).Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: fetch replies: %v", contractx.ErrCollaborator, err)
	}

	out := make([]contractx.Reply, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, rows[i].toContract())
	}
	return out, nil
}

func (s *Store) fetchQuery(rows *[]InboundReply, address string, after time.Time, limit int) *bun.SelectQuery {
	return s.db.NewSelect().
		Model(rows).
		Where("r.from_address = ?", address).
		Where("r.received_at > ?", after.UTC()).
		OrderExpr("r.received_at DESC").
		Limit(limit)
}

// Insert stores a reply. Re-delivered replies with a known id are ignored.
func (s *Store) Insert(ctx context.Context, reply contractx.Reply) error {
	row, err := newRow(reply)
	if err != nil {
		return err
	}
	if _, err := s.insertQuery(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert reply %s: %w", row.ID, err)
	}
	return nil
}

func (s *Store) insertQuery(row *InboundReply) *bun.InsertQuery {
	return s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO NOTHING")
}

func newRow(reply contractx.Reply) (InboundReply, error) {
	row := InboundReply{
		ID:          strings.TrimSpace(reply.ID),
		FromAddress: normalizeAddress(reply.From),
		Body:        reply.Body,
		ReceivedAt:  reply.ReceivedAt.UTC(),
	}
	if row.ID == "" {
		return InboundReply{}, fmt.Errorf("%w: reply id is required", contractx.ErrValidation)
	}
	if row.FromAddress == "" {
		return InboundReply{}, fmt.Errorf("%w: reply sender is required", contractx.ErrValidation)
	}
	if row.ReceivedAt.IsZero() {
		row.ReceivedAt = time.Now().UTC()
	}
	return row, nil
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
