package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/zoomigo/rentalbot/bot/model"
	"github.com/zoomigo/rentalbot/bot/store"
	"github.com/zoomigo/rentalbot/core/logger"
)

const liveRatesURL = "https://openexchangerates.org/api/latest.json"

// ErrNoRate is returned when no stored rate covers a currency pair.
var ErrNoRate = errors.New("exchange: no rate for pair")

// RateStore provides persisted exchange rates.
type RateStore interface {
	Pair(ctx context.Context, base, target string) (*model.ExchangeRate, error)
	ActiveTarget(ctx context.Context, base string) (*model.ExchangeRate, error)
	UpsertRate(ctx context.Context, base, target string, rate float64) error
}

// ConfigStore exposes runtime settings with defaults.
type ConfigStore interface {
	GetString(ctx context.Context, key, def string) string
}

// Service converts amounts between currencies and resolves the display
// currency for replies.
type Service struct {
	rates    RateStore
	configs  ConfigStore
	client   *http.Client
	base     string
	appID    string
	ratesURL string
}

func New(rates RateStore, configs ConfigStore, client *http.Client, baseCurrency, appID string) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	return &Service{
		rates:    rates,
		configs:  configs,
		client:   client,
		base:     strings.ToUpper(baseCurrency),
		appID:    appID,
		ratesURL: liveRatesURL,
	}
}

// Convert translates amount from one currency to another using stored rates.
// The result is rounded half up to two decimal places. Identity conversions
// never touch the store.
func (s *Service) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == to || from == "" || to == "" {
		return round2(amount), nil
	}

	if rate, err := s.rates.Pair(ctx, from, to); err == nil {
		return round2(amount * rate.Rate), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	// inverse pair fallback
	rate, err := s.rates.Pair(ctx, to, from)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s/%s", ErrNoRate, from, to)
		}
		return 0, err
	}
	if rate.Rate == 0 {
		return 0, fmt.Errorf("%w: %s/%s", ErrNoRate, from, to)
	}
	return round2(amount / rate.Rate), nil
}

// ActiveCurrency resolves the display currency: the app_config override
// wins, then the rate row flagged active, then the configured base.
func (s *Service) ActiveCurrency(ctx context.Context) string {
	if s.configs != nil {
		if override := strings.TrimSpace(s.configs.GetString(ctx, "default_currency", "")); override != "" {
			return strings.ToUpper(override)
		}
	}
	if rate, err := s.rates.ActiveTarget(ctx, s.base); err == nil {
		return strings.ToUpper(rate.TargetCurrency)
	}
	return s.base
}

// RefreshLive fetches the current base to target rate from
// openexchangerates and stores it. Without a configured app id the refresh
// is skipped.
func (s *Service) RefreshLive(ctx context.Context, target string) error {
	if strings.TrimSpace(s.appID) == "" {
		logger.Warn(ctx, "exchange", "live.skip",
			slog.String("cause", "app id not configured"),
		)
		return nil
	}
	target = strings.ToUpper(strings.TrimSpace(target))

	q := url.Values{}
	q.Set("app_id", s.appID)
	q.Set("base", s.base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ratesURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build live rates request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch live rates: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch live rates: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode live rates: %w", err)
	}
	rate, ok := payload.Rates[target]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNoRate, s.base, target)
	}
	if err := s.rates.UpsertRate(ctx, s.base, target, rate); err != nil {
		return err
	}
	logger.Info(ctx, "exchange", "live.refreshed",
		slog.String("payload", s.base+"/"+target),
	)
	return nil
}

// round2 rounds half up to two decimal places.
func round2(x float64) float64 {
	return math.Floor(x*100+0.5) / 100
}
