package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/zoomigo/rentalbot/bot/model"
)

// Bikes reads the bike catalog.
type Bikes struct {
	db *sqlx.DB
}

func NewBikes(db *sqlx.DB) *Bikes {
	return &Bikes{db: db}
}

const bikeColumns = `id, name, price_per_day, deposit, is_available, currency_unit`

// Available returns rentable bikes in stable id order.
func (r *Bikes) Available(ctx context.Context) ([]model.Bike, error) {
	var bikes []model.Bike
	err := r.db.SelectContext(ctx, &bikes,
		`SELECT `+bikeColumns+` FROM bikes WHERE is_available ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select available bikes: %w", err)
	}
	return bikes, nil
}

// ByID returns a bike regardless of availability, or ErrNotFound.
func (r *Bikes) ByID(ctx context.Context, id int64) (*model.Bike, error) {
	var b model.Bike
	err := r.db.GetContext(ctx, &b,
		`SELECT `+bikeColumns+` FROM bikes WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select bike %d: %w", id, err)
	}
	return &b, nil
}
