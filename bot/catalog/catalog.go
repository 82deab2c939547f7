package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/zoomigo/rentalbot/bot/model"
	"github.com/zoomigo/rentalbot/core/cache"
	"github.com/zoomigo/rentalbot/core/logger"
)

const (
	bikesKey    = "bikes:all"
	promoPrefix = "promo:"
)

// BikeSource provides uncached bike reads.
type BikeSource interface {
	Available(ctx context.Context) ([]model.Bike, error)
	ByID(ctx context.Context, id int64) (*model.Bike, error)
}

// PromoSource provides uncached promo reads.
type PromoSource interface {
	ByCode(ctx context.Context, code string) (*model.PromoCode, error)
}

// Catalog serves bike and promo lookups through a read-through cache. The
// conversation engine never invalidates entries; they age out by TTL.
type Catalog struct {
	bikes  BikeSource
	promos PromoSource
	cache  cache.Cache
	ttl    time.Duration
}

func New(bikes BikeSource, promos PromoSource, c cache.Cache, ttl time.Duration) *Catalog {
	return &Catalog{bikes: bikes, promos: promos, cache: c, ttl: ttl}
}

// AvailableBikes returns rentable bikes, cached under a single key.
func (c *Catalog) AvailableBikes(ctx context.Context) ([]model.Bike, error) {
	if raw, err := c.cache.Get(ctx, bikesKey); err == nil {
		var bikes []model.Bike
		if jsonErr := json.Unmarshal(raw, &bikes); jsonErr == nil {
			logger.Debug(ctx, "cache", "bikes.lookup", slog.String("cache", "hit"))
			return bikes, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		logger.Warn(ctx, "cache", "bikes.lookup.degraded", slog.String("err", err.Error()))
	}

	bikes, err := c.bikes.Available(ctx)
	if err != nil {
		return nil, err
	}
	c.put(ctx, bikesKey, bikes)
	logger.Debug(ctx, "cache", "bikes.lookup", slog.String("cache", "miss"))
	return bikes, nil
}

// BikeByID reads the bike directly from the source. Confirmation re-checks
// availability and must not see a cached row.
func (c *Catalog) BikeByID(ctx context.Context, id int64) (*model.Bike, error) {
	return c.bikes.ByID(ctx, id)
}

// PromoByCode returns the promo for the code, cached under the lower-cased
// code. Unknown codes are not cached.
func (c *Catalog) PromoByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	key := promoPrefix + strings.ToLower(strings.TrimSpace(code))
	if raw, err := c.cache.Get(ctx, key); err == nil {
		var promo model.PromoCode
		if jsonErr := json.Unmarshal(raw, &promo); jsonErr == nil {
			logger.Debug(ctx, "cache", "promo.lookup", slog.String("cache", "hit"))
			return &promo, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		logger.Warn(ctx, "cache", "promo.lookup.degraded", slog.String("err", err.Error()))
	}

	promo, err := c.promos.ByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, promo)
	logger.Debug(ctx, "cache", "promo.lookup", slog.String("cache", "miss"))
	return promo, nil
}

func (c *Catalog) put(ctx context.Context, key string, val any) {
	raw, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
		logger.Warn(ctx, "cache", "store.failed",
			slog.String("err", err.Error()),
		)
	}
}
