package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/zoomigo/rentalbot/bot/model"
)

// Sessions persists conversation sessions keyed by WhatsApp id.
type Sessions struct {
	db *sqlx.DB
}

func NewSessions(db *sqlx.DB) *Sessions {
	return &Sessions{db: db}
}

// Get returns the session for the WhatsApp id or ErrNotFound.
func (r *Sessions) Get(ctx context.Context, waID string) (*model.ChatSession, error) {
	var s model.ChatSession
	err := r.db.GetContext(ctx, &s,
		`SELECT id, wa_id, state, data_json, last_updated
		 FROM chat_session WHERE wa_id = $1`, waID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select session %s: %w", waID, err)
	}
	return &s, nil
}

// Save upserts the session row for the WhatsApp id.
func (r *Sessions) Save(ctx context.Context, s *model.ChatSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_session (wa_id, state, data_json, last_updated)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (wa_id) DO UPDATE
		 SET state = EXCLUDED.state, data_json = EXCLUDED.data_json, last_updated = now()`,
		s.WaID, s.State, s.Data)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", s.WaID, err)
	}
	return nil
}

// Delete removes the session row for the WhatsApp id.
func (r *Sessions) Delete(ctx context.Context, waID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_session WHERE wa_id = $1`, waID)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", waID, err)
	}
	return nil
}
