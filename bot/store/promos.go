package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/zoomigo/rentalbot/bot/model"
)

// Promos reads promo codes and their bike restrictions.
type Promos struct {
	db *sqlx.DB
}

func NewPromos(db *sqlx.DB) *Promos {
	return &Promos{db: db}
}

const promoColumns = `id, code, title, description, total_allocation, used_count,
	discount_amount, discount_percent, active, currency_unit`

// ByCode looks a promo up case-insensitively, or returns ErrNotFound.
func (r *Promos) ByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	var p model.PromoCode
	err := r.db.GetContext(ctx, &p,
		`SELECT `+promoColumns+` FROM promo_code WHERE LOWER(code) = LOWER($1)`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select promo %q: %w", code, err)
	}
	return &p, nil
}

// IncrementUsage bumps used_count once for a consumed promo.
func (r *Promos) IncrementUsage(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE promo_code SET used_count = used_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment promo %d: %w", id, err)
	}
	return nil
}

// BikeIDs returns the bike restriction list for a promo. An empty list means
// the promo applies to every bike.
func (r *Promos) BikeIDs(ctx context.Context, promoID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT bike_id FROM promo_code_bike WHERE promo_id = $1 ORDER BY bike_id`, promoID)
	if err != nil {
		return nil, fmt.Errorf("select promo %d bikes: %w", promoID, err)
	}
	return ids, nil
}
