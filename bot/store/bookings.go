package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/zoomigo/rentalbot/bot/model"
)

// Bookings persists confirmed bookings.
type Bookings struct {
	db *sqlx.DB
}

func NewBookings(db *sqlx.DB) *Bookings {
	return &Bookings{db: db}
}

// Create inserts the booking and fills in its id and created_at.
func (r *Bookings) Create(ctx context.Context, b *model.Booking) error {
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO booking (
			wa_id, name, bike, duration, price, deposit, status,
			start_date, end_date, pickup_type, delivery_address,
			promo_code, promo_discount_amount, promo_applied,
			currency_unit, applied_exchange_rate
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		 RETURNING id, created_at`,
		b.WaID, b.Name, b.Bike, b.Duration, b.Price, b.Deposit, b.Status,
		b.StartDate, b.EndDate, b.PickupType, b.DeliveryAddress,
		b.PromoCode, b.PromoDiscountAmount, b.PromoApplied,
		b.CurrencyUnit, b.AppliedExchangeRate,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert booking for %s: %w", b.WaID, err)
	}
	return nil
}

// LatestByWaID returns the most recent booking for the WhatsApp id, or
// ErrNotFound.
func (r *Bookings) LatestByWaID(ctx context.Context, waID string) (*model.Booking, error) {
	var b model.Booking
	err := r.db.GetContext(ctx, &b,
		`SELECT id, wa_id, name, bike, duration, price, deposit, status,
		        start_date, end_date, pickup_type, delivery_address,
		        promo_code, promo_discount_amount, promo_applied,
		        currency_unit, applied_exchange_rate, created_at, cancelled_at
		 FROM booking WHERE wa_id = $1
		 ORDER BY created_at DESC LIMIT 1`, waID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select latest booking %s: %w", waID, err)
	}
	return &b, nil
}

// Cancel marks the booking cancelled and stamps cancelled_at.
func (r *Bookings) Cancel(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE booking SET status = $1, cancelled_at = now() WHERE id = $2`,
		model.BookingStatusCancelled, id)
	if err != nil {
		return fmt.Errorf("cancel booking %d: %w", id, err)
	}
	return nil
}
