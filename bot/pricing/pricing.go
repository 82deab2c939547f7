package pricing

import "github.com/zoomigo/rentalbot/bot/model"

// Quote returns the base rental price for a bike over the given duration.
func Quote(bike *model.Bike, days int) int64 {
	if bike == nil || days <= 0 {
		return 0
	}
	return bike.PricePerDay * int64(days)
}

// ApplyPromo computes the discount and final price for a promo on a base
// price. A percentage discount takes precedence over a flat amount and is
// rounded half up. The final price never drops below zero.
func ApplyPromo(p *model.PromoCode, base int64) (discount, final int64) {
	if p == nil || base < 0 {
		return 0, max64(base, 0)
	}
	if p.DiscountPercent > 0 {
		discount = (base*int64(p.DiscountPercent) + 50) / 100
	} else {
		discount = p.DiscountAmount
	}
	if discount < 0 {
		discount = 0
	}
	final = base - discount
	if final < 0 {
		final = 0
	}
	return discount, final
}

// IsApplicable reports whether the promo covers the bike. An empty mapping
// list means the promo is valid for the whole catalog.
func IsApplicable(bikeID int64, mappedBikeIDs []int64) bool {
	if len(mappedBikeIDs) == 0 {
		return true
	}
	for _, id := range mappedBikeIDs {
		if id == bikeID {
			return true
		}
	}
	return false
}

// Usable reports whether the promo is active and still has allocation left.
// A zero total allocation means unlimited use.
func Usable(p *model.PromoCode) bool {
	if p == nil || !p.Active {
		return false
	}
	if p.TotalAllocation == 0 {
		return true
	}
	return p.UsedCount < p.TotalAllocation
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
