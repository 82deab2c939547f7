package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/zoomigo/rentalbot/bot/model"
)

// Users persists per-phone user profiles.
type Users struct {
	db *sqlx.DB
}

func NewUsers(db *sqlx.DB) *Users {
	return &Users{db: db}
}

const userColumns = `id, phone_number, name, days, start_date, pickup_type, delivery_address, selected_bike_id, stage`

// GetOrCreate loads the profile for the phone number, creating a fresh one
// at START when none exists.
func (r *Users) GetOrCreate(ctx context.Context, phone string) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u,
		`SELECT `+userColumns+` FROM users WHERE phone_number = $1`, phone)
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("select user %s: %w", phone, err)
	}

	u = model.User{PhoneNumber: phone, Stage: model.StageStart}
	err = r.db.GetContext(ctx, &u.ID,
		`INSERT INTO users (phone_number, stage) VALUES ($1, $2) RETURNING id`,
		phone, model.StageStart)
	if err != nil {
		return nil, fmt.Errorf("insert user %s: %w", phone, err)
	}
	return &u, nil
}

// Save writes the mutable profile fields back.
func (r *Users) Save(ctx context.Context, u *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET name = $1, days = $2, start_date = $3, pickup_type = $4,
		     delivery_address = $5, selected_bike_id = $6, stage = $7
		 WHERE id = $8`,
		u.Name, u.Days, u.StartDate, u.PickupType,
		u.DeliveryAddress, u.SelectedBikeID, u.Stage, u.ID)
	if err != nil {
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	return nil
}
