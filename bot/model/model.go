package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Stage identifies the step of the booking conversation a user is in.
// It is persisted on the user row and drives dispatch.
type Stage string

const (
	StageStart            Stage = "START"
	StageAskName          Stage = "ASK_NAME"
	StageAskDays          Stage = "ASK_DAYS"
	StageAskStartDate     Stage = "ASK_START_DATE"
	StageAskPickup        Stage = "ASK_PICKUP"
	StageAskAddress       Stage = "ASK_ADDRESS"
	StageAskBike          Stage = "ASK_BIKE"
	StageAskPromo         Stage = "ASK_PROMO"
	StageConfirmBike      Stage = "CONFIRM_BIKE"
	StageBookingConfirmed Stage = "BOOKING_CONFIRMED"
	StageCancelConfirm    Stage = "CANCEL_CONFIRM"
)

// Pickup method labels stored on the profile and echoed in replies.
const (
	PickupAtShop       = "Pickup at shop"
	PickupHomeDelivery = "Home delivery"
)

// Booking status values.
const (
	BookingStatusConfirmed = "CONFIRMED"
	BookingStatusCancelled = "CANCELLED"
)

// User is the durable per-phone profile accumulated across the conversation.
type User struct {
	ID              int64      `db:"id"`
	PhoneNumber     string     `db:"phone_number"`
	Name            string     `db:"name"`
	Days            int        `db:"days"`
	StartDate       *time.Time `db:"start_date"`
	PickupType      string     `db:"pickup_type"`
	DeliveryAddress string     `db:"delivery_address"`
	SelectedBikeID  *int64     `db:"selected_bike_id"`
	Stage           Stage      `db:"stage"`
}

// PendingPromo carries a validated promo between the promo step and
// confirmation so the discount is not recomputed at booking time.
type PendingPromo struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	Discount   int64  `json:"discount"`
	FinalPrice int64  `json:"finalPrice"`
}

// SessionData is the scratch bag persisted as JSONB alongside the session row.
// BikeNumbering maps the menu number shown to the user onto a bike id so a
// re-sent "1" keeps meaning the same bike for the whole session.
type SessionData struct {
	BikeNumbering map[string]int64 `json:"bikeNumbering,omitempty"`
	PendingPromo  *PendingPromo    `json:"pendingPromo,omitempty"`
}

// Value serializes the scratch bag for the JSONB column.
func (d SessionData) Value() (driver.Value, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal session data: %w", err)
	}
	return raw, nil
}

// Scan reads the scratch bag back from the JSONB column. NULL and empty
// payloads yield a zero-value bag.
func (d *SessionData) Scan(src any) error {
	if src == nil {
		*d = SessionData{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan session data: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*d = SessionData{}
		return nil
	}
	if err := json.Unmarshal(raw, d); err != nil {
		return fmt.Errorf("scan session data: %w", err)
	}
	return nil
}

// ChatSession is the per-conversation row holding the nominal state name and
// the scratch data bag.
type ChatSession struct {
	ID          int64       `db:"id"`
	WaID        string      `db:"wa_id"`
	State       Stage       `db:"state"`
	Data        SessionData `db:"data_json"`
	LastUpdated time.Time   `db:"last_updated"`
}

// Bike is a rentable vehicle from the catalog. Prices are whole currency
// units per day.
type Bike struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	PricePerDay  int64  `db:"price_per_day"`
	Deposit      int64  `db:"deposit"`
	IsAvailable  bool   `db:"is_available"`
	CurrencyUnit string `db:"currency_unit"`
}

// PromoCode is a discount definition. Either DiscountPercent or
// DiscountAmount applies; percent takes precedence when both are set.
type PromoCode struct {
	ID              int64  `db:"id"`
	Code            string `db:"code"`
	Title           string `db:"title"`
	Description     string `db:"description"`
	TotalAllocation int    `db:"total_allocation"`
	UsedCount       int    `db:"used_count"`
	DiscountAmount  int64  `db:"discount_amount"`
	DiscountPercent int    `db:"discount_percent"`
	Active          bool   `db:"active"`
	CurrencyUnit    string `db:"currency_unit"`
}

// PromoCodeBike restricts a promo to specific bikes. A promo with no rows
// applies to every bike.
type PromoCodeBike struct {
	ID      int64 `db:"id"`
	PromoID int64 `db:"promo_id"`
	BikeID  int64 `db:"bike_id"`
}

// Booking is the durable record written at confirmation.
type Booking struct {
	ID                  int64      `db:"id"`
	WaID                string     `db:"wa_id"`
	Name                string     `db:"name"`
	Bike                string     `db:"bike"`
	Duration            int        `db:"duration"`
	Price               int64      `db:"price"`
	Deposit             int64      `db:"deposit"`
	Status              string     `db:"status"`
	StartDate           time.Time  `db:"start_date"`
	EndDate             time.Time  `db:"end_date"`
	PickupType          string     `db:"pickup_type"`
	DeliveryAddress     string     `db:"delivery_address"`
	PromoCode           string     `db:"promo_code"`
	PromoDiscountAmount int64      `db:"promo_discount_amount"`
	PromoApplied        bool       `db:"promo_applied"`
	CurrencyUnit        string     `db:"currency_unit"`
	AppliedExchangeRate float64    `db:"applied_exchange_rate"`
	CreatedAt           time.Time  `db:"created_at"`
	CancelledAt         *time.Time `db:"cancelled_at"`
}

// ExchangeRate is a stored base to target currency conversion rate.
type ExchangeRate struct {
	ID             int64     `db:"id"`
	BaseCurrency   string    `db:"base_currency"`
	TargetCurrency string    `db:"target_currency"`
	Rate           float64   `db:"rate"`
	LastUpdated    time.Time `db:"last_updated"`
	UseLiveRate    bool      `db:"use_live_rate"`
	ActiveTarget   bool      `db:"active_target"`
}

// AppConfig is a string key/value runtime setting.
type AppConfig struct {
	Key       string    `db:"key_text"`
	Value     string    `db:"value_text"`
	UpdatedAt time.Time `db:"updated_at"`
}
