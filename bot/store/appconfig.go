package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
)

// AppConfigs reads and writes string runtime settings.
type AppConfigs struct {
	db *sqlx.DB
}

func NewAppConfigs(db *sqlx.DB) *AppConfigs {
	return &AppConfigs{db: db}
}

// Get returns the raw value for the key, or ErrNotFound.
func (r *AppConfigs) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := r.db.GetContext(ctx, &val,
		`SELECT value_text FROM app_config WHERE key_text = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("select app config %q: %w", key, err)
	}
	return val, nil
}

// GetString returns the value for the key or def when the key is absent or
// the lookup fails.
func (r *AppConfigs) GetString(ctx context.Context, key, def string) string {
	val, err := r.Get(ctx, key)
	if err != nil {
		return def
	}
	return val
}

// GetBool parses the value as a boolean, falling back to def.
func (r *AppConfigs) GetBool(ctx context.Context, key string, def bool) bool {
	val, err := r.Get(ctx, key)
	if err != nil {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return parsed
}

// GetInt parses the value as an integer, falling back to def.
func (r *AppConfigs) GetInt(ctx context.Context, key string, def int) int {
	val, err := r.Get(ctx, key)
	if err != nil {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}

// Set upserts the key/value pair.
func (r *AppConfigs) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO app_config (key_text, value_text, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key_text) DO UPDATE
		 SET value_text = EXCLUDED.value_text, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("upsert app config %q: %w", key, err)
	}
	return nil
}
