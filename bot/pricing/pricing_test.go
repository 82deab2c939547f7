package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zoomigo/rentalbot/bot/model"
)

func TestQuote(t *testing.T) {
	bike := &model.Bike{PricePerDay: 500}
	assert.Equal(t, int64(1000), Quote(bike, 2))
	assert.Equal(t, int64(0), Quote(bike, 0))
	assert.Equal(t, int64(0), Quote(nil, 3))
}

func TestApplyPromoPercentRoundsHalfUp(t *testing.T) {
	promo := &model.PromoCode{DiscountPercent: 10}

	discount, final := ApplyPromo(promo, 1001)
	assert.Equal(t, int64(100), discount)
	assert.Equal(t, int64(901), final)

	discount, final = ApplyPromo(promo, 1005)
	assert.Equal(t, int64(101), discount)
	assert.Equal(t, int64(904), final)
}

func TestApplyPromoPercentTakesPrecedence(t *testing.T) {
	promo := &model.PromoCode{DiscountPercent: 10, DiscountAmount: 9999}
	discount, final := ApplyPromo(promo, 2500)
	assert.Equal(t, int64(250), discount)
	assert.Equal(t, int64(2250), final)
}

func TestApplyPromoFlatAmount(t *testing.T) {
	promo := &model.PromoCode{DiscountAmount: 100}
	discount, final := ApplyPromo(promo, 2500)
	assert.Equal(t, int64(100), discount)
	assert.Equal(t, int64(2400), final)
}

func TestApplyPromoNeverNegative(t *testing.T) {
	promo := &model.PromoCode{DiscountAmount: 5000}
	discount, final := ApplyPromo(promo, 1000)
	assert.Equal(t, int64(5000), discount)
	assert.Equal(t, int64(0), final)
}

func TestIsApplicable(t *testing.T) {
	assert.True(t, IsApplicable(7, nil), "no mapping rows means catalog-wide")
	assert.True(t, IsApplicable(3, []int64{1, 3}))
	assert.False(t, IsApplicable(2, []int64{1, 3}))
}

func TestUsable(t *testing.T) {
	assert.False(t, Usable(nil))
	assert.False(t, Usable(&model.PromoCode{Active: false}))
	assert.True(t, Usable(&model.PromoCode{Active: true, TotalAllocation: 0, UsedCount: 999}),
		"zero allocation means unlimited")
	assert.True(t, Usable(&model.PromoCode{Active: true, TotalAllocation: 10, UsedCount: 9}))
	assert.False(t, Usable(&model.PromoCode{Active: true, TotalAllocation: 10, UsedCount: 10}))
}
