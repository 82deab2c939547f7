package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func promoRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "code", "title", "description", "total_allocation", "used_count",
		"discount_amount", "discount_percent", "active", "currency_unit",
	})
}

func TestPromosByCodeCaseInsensitive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPromos(db)

	mock.ExpectQuery(`LOWER\(code\) = LOWER\(\$1\)`).
		WithArgs("SUMMER10").
		WillReturnRows(promoRows().AddRow(4, "summer10", "Summer", "", 10, 3, 0, 10, true, "MUR"))

	p, err := repo.ByCode(context.Background(), "SUMMER10")
	require.NoError(t, err)
	assert.Equal(t, "summer10", p.Code)
	assert.Equal(t, 10, p.DiscountPercent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromosByCodeMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPromos(db)

	mock.ExpectQuery(`LOWER\(code\) = LOWER\(\$1\)`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.ByCode(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPromosIncrementUsage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPromos(db)

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE promo_code SET used_count = used_count + 1 WHERE id = $1`,
	)).WithArgs(int64(4)).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.IncrementUsage(context.Background(), 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromosBikeIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPromos(db)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT bike_id FROM promo_code_bike WHERE promo_id = $1 ORDER BY bike_id`,
	)).WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"bike_id"}).AddRow(1).AddRow(3))

	ids, err := repo.BikeIDs(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
}
