package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/zoomigo/rentalbot/bot/model"
)

// Rates reads and writes stored exchange rates.
type Rates struct {
	db *sqlx.DB
}

func NewRates(db *sqlx.DB) *Rates {
	return &Rates{db: db}
}

const rateColumns = `id, base_currency, target_currency, rate, last_updated, use_live_rate, active_target`

// Pair returns the rate row for a base/target pair, or ErrNotFound.
func (r *Rates) Pair(ctx context.Context, base, target string) (*model.ExchangeRate, error) {
	var er model.ExchangeRate
	err := r.db.GetContext(ctx, &er,
		`SELECT `+rateColumns+` FROM exchange_rate
		 WHERE base_currency = $1 AND target_currency = $2`, base, target)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select rate %s/%s: %w", base, target, err)
	}
	return &er, nil
}

// ActiveTarget returns the rate row flagged as the active display currency
// for the base, or ErrNotFound.
func (r *Rates) ActiveTarget(ctx context.Context, base string) (*model.ExchangeRate, error) {
	var er model.ExchangeRate
	err := r.db.GetContext(ctx, &er,
		`SELECT `+rateColumns+` FROM exchange_rate
		 WHERE base_currency = $1 AND active_target LIMIT 1`, base)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select active rate for %s: %w", base, err)
	}
	return &er, nil
}

// UpsertRate stores a refreshed base/target rate.
func (r *Rates) UpsertRate(ctx context.Context, base, target string, rate float64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO exchange_rate (base_currency, target_currency, rate, last_updated)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (base_currency, target_currency) DO UPDATE
		 SET rate = EXCLUDED.rate, last_updated = now()`,
		base, target, rate)
	if err != nil {
		return fmt.Errorf("upsert rate %s/%s: %w", base, target, err)
	}
	return nil
}
