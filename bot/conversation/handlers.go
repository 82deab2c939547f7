package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/zoomigo/rentalbot/bot/dateparse"
	"github.com/zoomigo/rentalbot/bot/model"
	"github.com/zoomigo/rentalbot/bot/pricing"
	"github.com/zoomigo/rentalbot/bot/store"
	"github.com/zoomigo/rentalbot/core/logger"
)

func (e *Engine) handleStage(ctx context.Context, stage model.Stage, t *turn) outcome {
	switch stage {
	case model.StageStart:
		return e.handleStart(ctx, t)
	case model.StageAskName:
		return e.handleAskName(ctx, t)
	case model.StageAskDays:
		return e.handleAskDays(ctx, t)
	case model.StageAskStartDate:
		return e.handleAskStartDate(ctx, t)
	case model.StageAskPickup:
		return e.handleAskPickup(ctx, t)
	case model.StageAskAddress:
		return e.handleAskAddress(ctx, t)
	case model.StageAskBike:
		return e.handleAskBike(ctx, t)
	case model.StageAskPromo:
		return e.handleAskPromo(ctx, t)
	case model.StageConfirmBike:
		return e.handleConfirm(ctx, t)
	case model.StageBookingConfirmed:
		return e.handleBookingConfirmed(ctx, t)
	case model.StageCancelConfirm:
		return e.handleCancelConfirm(ctx, t)
	default:
		logger.Warn(ctx, "conversation", "stage.unknown",
			slog.String("phone", t.user.PhoneNumber),
			slog.String("stage", string(stage)),
		)
		return outcome{reply: replyFallback}
	}
}

func (e *Engine) handleStart(ctx context.Context, t *turn) outcome {
	e.save(ctx, t, model.StageAskName)
	return outcome{reply: replyWelcome}
}

func (e *Engine) handleAskName(ctx context.Context, t *turn) outcome {
	if t.text == "" || t.lower == "hi" || t.lower == "hello" {
		return outcome{reply: replyAskNameAgain}
	}
	t.user.Name = t.text
	e.save(ctx, t, model.StageAskDays)
	return outcome{reply: replyThanksName(t.user.Name)}
}

func (e *Engine) handleAskDays(ctx context.Context, t *turn) outcome {
	n, err := strconv.Atoi(t.lower)
	if err != nil || n <= 0 {
		return outcome{reply: replyInvalidDays}
	}
	t.user.Days = n
	e.save(ctx, t, model.StageAskStartDate)
	return outcome{reply: replyAskDate}
}

func (e *Engine) handleAskStartDate(ctx context.Context, t *turn) outcome {
	d, ok := dateparse.Parse(t.text, e.now())
	if !ok {
		return outcome{reply: replyInvalidDate}
	}
	t.user.StartDate = &d
	e.save(ctx, t, model.StageAskPickup)
	return outcome{reply: replyAskPickup}
}

func (e *Engine) handleAskPickup(ctx context.Context, t *turn) outcome {
	switch {
	case wantsShopPickup(t.lower):
		t.user.PickupType = model.PickupAtShop
		t.user.DeliveryAddress = ""
		e.save(ctx, t, model.StageAskBike)
		t.text, t.lower = "", ""
		return outcome{reply: replyPickupShop, next: model.StageAskBike, cont: true}
	case wantsDelivery(t.lower):
		t.user.PickupType = model.PickupHomeDelivery
		e.save(ctx, t, model.StageAskAddress)
		return outcome{reply: replyAskAddress}
	default:
		return outcome{reply: replyInvalidPickup}
	}
}

func wantsShopPickup(s string) bool {
	return s == "1" || s == "yes" ||
		strings.Contains(s, "pick") || strings.Contains(s, "shop") || strings.Contains(s, "store")
}

func wantsDelivery(s string) bool {
	return s == "2" || s == "no" ||
		strings.Contains(s, "deliver") || strings.Contains(s, "home")
}

func (e *Engine) handleAskAddress(ctx context.Context, t *turn) outcome {
	if t.text == "" {
		return outcome{reply: replyAskAddress}
	}
	t.user.DeliveryAddress = t.text
	t.user.PickupType = model.PickupHomeDelivery
	e.save(ctx, t, model.StageAskBike)
	t.text, t.lower = "", ""
	return outcome{next: model.StageAskBike, cont: true}
}

func (e *Engine) handleAskBike(ctx context.Context, t *turn) outcome {
	bikes, err := e.catalog.AvailableBikes(ctx)
	if err != nil {
		logger.Error(ctx, "conversation", "bikes.load.failed",
			slog.String("phone", t.user.PhoneNumber),
			slog.String("err", err.Error()),
		)
		return outcome{reply: replyTryAgain}
	}
	if len(bikes) == 0 {
		return outcome{reply: replyNoBikes}
	}

	numbering := t.session.Data.BikeNumbering
	if len(numbering) == 0 {
		numbering = make(map[string]int64, len(bikes))
		for i := range bikes {
			numbering[strconv.Itoa(i+1)] = bikes[i].ID
		}
		t.session.Data.BikeNumbering = numbering
		e.saveSession(ctx, t, model.StageAskBike)
		return outcome{reply: replyBikeList(bikes)}
	}
	if t.text == "" {
		return outcome{reply: replyBikeList(bikes)}
	}

	bike := resolveBike(bikes, numbering, t.lower)
	if bike == nil {
		return outcome{reply: replyInvalidBike}
	}

	id := bike.ID
	t.user.SelectedBikeID = &id
	t.session.Data.PendingPromo = nil
	e.save(ctx, t, model.StageAskPromo)
	base := pricing.Quote(bike, t.user.Days)
	return outcome{reply: replyQuote(bike, t.user.Days, base, bike.Deposit)}
}

// resolveBike maps user input onto a bike, first through the session's stored
// menu numbering, then by name: exact match, then prefix, then substring.
func resolveBike(bikes []model.Bike, numbering map[string]int64, input string) *model.Bike {
	if id, ok := numbering[input]; ok {
		for i := range bikes {
			if bikes[i].ID == id {
				return &bikes[i]
			}
		}
		return nil
	}
	if input == "" {
		return nil
	}
	var prefix, substr *model.Bike
	for i := range bikes {
		name := strings.ToLower(bikes[i].Name)
		switch {
		case name == input:
			return &bikes[i]
		case prefix == nil && strings.HasPrefix(name, input):
			prefix = &bikes[i]
		case substr == nil && strings.Contains(name, input):
			substr = &bikes[i]
		}
	}
	if prefix != nil {
		return prefix
	}
	return substr
}

func (e *Engine) handleAskPromo(ctx context.Context, t *turn) outcome {
	switch t.lower {
	case "no":
		t.session.Data.PendingPromo = nil
		e.save(ctx, t, model.StageConfirmBike)
		return outcome{reply: replyNoPromo}
	case "1", "2", "yes":
		// confirmation keywords fall through to the confirm handler
		return outcome{next: model.StageConfirmBike, cont: true}
	case "":
		return outcome{reply: replyAskPromo}
	}

	if t.user.SelectedBikeID == nil {
		return outcome{reply: replyStaleBike}
	}

	promo, err := e.catalog.PromoByCode(ctx, t.text)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return outcome{reply: replyPromoNotFound}
		}
		logger.Error(ctx, "conversation", "promo.load.failed",
			slog.String("phone", t.user.PhoneNumber),
			slog.String("promo", t.text),
			slog.String("err", err.Error()),
		)
		return outcome{reply: replyTryAgain}
	}
	if !promo.Active {
		return outcome{reply: replyPromoNotFound}
	}
	if !pricing.Usable(promo) {
		return outcome{reply: replyPromoExhausted(promo.Code)}
	}

	mapped, err := e.promos.BikeIDs(ctx, promo.ID)
	if err != nil {
		logger.Error(ctx, "conversation", "promo.mapping.failed",
			slog.String("phone", t.user.PhoneNumber),
			slog.Int64("promo_id", promo.ID),
			slog.String("err", err.Error()),
		)
		return outcome{reply: replyTryAgain}
	}
	if !pricing.IsApplicable(*t.user.SelectedBikeID, mapped) {
		return outcome{reply: replyPromoInapplicable(promo.Code)}
	}

	bike, err := e.catalog.BikeByID(ctx, *t.user.SelectedBikeID)
	if err != nil {
		return outcome{reply: replyStaleBike}
	}
	base := pricing.Quote(bike, t.user.Days)
	discount, final := pricing.ApplyPromo(promo, base)
	t.session.Data.PendingPromo = &model.PendingPromo{
		ID:         promo.ID,
		Code:       promo.Code,
		Discount:   discount,
		FinalPrice: final,
	}
	e.save(ctx, t, model.StageConfirmBike)
	logger.Info(ctx, "conversation", "promo.applied",
		slog.String("phone", t.user.PhoneNumber),
		slog.String("promo", promo.Code),
		slog.Int64("discount", discount),
		slog.Int64("price", final),
	)
	return outcome{reply: replyPromoApplied(promo.Code, discount, final)}
}

func (e *Engine) handleConfirm(ctx context.Context, t *turn) outcome {
	switch t.lower {
	case "1", "yes":
		return e.confirmBooking(ctx, t)
	case "2", "no":
		// numbering is kept so the earlier menu stays valid
		t.session.Data.PendingPromo = nil
		e.save(ctx, t, model.StageAskBike)
		return outcome{reply: replyReselect}
	default:
		return outcome{reply: replyInvalidConfirm}
	}
}

func (e *Engine) confirmBooking(ctx context.Context, t *turn) outcome {
	if t.user.SelectedBikeID == nil {
		return outcome{reply: replyStaleBike}
	}
	bike, err := e.catalog.BikeByID(ctx, *t.user.SelectedBikeID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Error(ctx, "conversation", "bike.load.failed",
				slog.String("phone", t.user.PhoneNumber),
				slog.Int64("bike_id", *t.user.SelectedBikeID),
				slog.String("err", err.Error()),
			)
		}
		return outcome{reply: replyStaleBike}
	}
	if !bike.IsAvailable {
		return outcome{reply: replyStaleBike}
	}

	price := pricing.Quote(bike, t.user.Days)
	var discount int64
	var promoID int64
	promoCode := ""
	promoApplied := false
	if pp := t.session.Data.PendingPromo; pp != nil {
		discount, price = pp.Discount, pp.FinalPrice
		promoID, promoCode, promoApplied = pp.ID, pp.Code, true
	}

	start := e.startDate(t)
	currency := bike.CurrencyUnit
	if currency == "" && e.currency != nil {
		currency = e.currency.ActiveCurrency(ctx)
	}

	b := &model.Booking{
		WaID:                t.user.PhoneNumber,
		Name:                t.user.Name,
		Bike:                bike.Name,
		Duration:            t.user.Days,
		Price:               price,
		Deposit:             bike.Deposit,
		Status:              model.BookingStatusConfirmed,
		StartDate:           start,
		EndDate:             start.AddDate(0, 0, t.user.Days),
		PickupType:          t.user.PickupType,
		DeliveryAddress:     t.user.DeliveryAddress,
		PromoCode:           promoCode,
		PromoDiscountAmount: discount,
		PromoApplied:        promoApplied,
		CurrencyUnit:        currency,
		AppliedExchangeRate: 1,
	}
	if err := e.bookings.Create(ctx, b); err != nil {
		logger.Error(ctx, "conversation", "booking.create.failed",
			slog.String("phone", t.user.PhoneNumber),
			slog.String("err", err.Error()),
		)
	} else {
		logger.Info(ctx, "conversation", "booking.created",
			slog.String("phone", t.user.PhoneNumber),
			slog.Int64("booking_id", b.ID),
			slog.String("bike", bike.Name),
			slog.Int64("price", price),
		)
		if promoApplied {
			if err := e.promos.IncrementUsage(ctx, promoID); err != nil {
				logger.Warn(ctx, "conversation", "promo.usage.failed",
					slog.Int64("promo_id", promoID),
					slog.String("err", err.Error()),
				)
			}
		}
	}

	t.session.Data.PendingPromo = nil
	e.save(ctx, t, model.StageBookingConfirmed)
	return outcome{reply: replyBookingConfirmed(b, e.shopAddress)}
}

func (e *Engine) startDate(t *turn) time.Time {
	if t.user.StartDate != nil {
		return *t.user.StartDate
	}
	now := e.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (e *Engine) handleBookingConfirmed(ctx context.Context, t *turn) outcome {
	if t.lower == "cancel" {
		e.save(ctx, t, model.StageCancelConfirm)
		return outcome{reply: replyCancelPrompt}
	}
	return outcome{reply: replyBookingReminder(e.bookingSummary(ctx, t))}
}

func (e *Engine) handleCancelConfirm(ctx context.Context, t *turn) outcome {
	switch t.lower {
	case "1", "yes":
		if latest, err := e.bookings.LatestByWaID(ctx, t.user.PhoneNumber); err == nil {
			if err := e.bookings.Cancel(ctx, latest.ID); err != nil {
				logger.Error(ctx, "conversation", "booking.cancel.failed",
					slog.Int64("booking_id", latest.ID),
					slog.String("err", err.Error()),
				)
			} else {
				logger.Info(ctx, "conversation", "booking.cancelled",
					slog.String("phone", t.user.PhoneNumber),
					slog.Int64("booking_id", latest.ID),
				)
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			logger.Warn(ctx, "conversation", "booking.lookup.failed",
				slog.String("phone", t.user.PhoneNumber),
				slog.String("err", err.Error()),
			)
		}
		e.reset(ctx, t)
		return outcome{reply: replyCancelled}
	case "2", "no":
		e.save(ctx, t, model.StageBookingConfirmed)
		return outcome{reply: replyBookingKept(e.bookingSummary(ctx, t))}
	default:
		return outcome{reply: replyInvalidCancel}
	}
}

// bookingSummary renders the latest booking, falling back to the profile's
// pickup details when no booking row can be read.
func (e *Engine) bookingSummary(ctx context.Context, t *turn) string {
	if b, err := e.bookings.LatestByWaID(ctx, t.user.PhoneNumber); err == nil {
		return bookingDetails(b, e.shopAddress)
	}
	return pickupDetails(t.user.PickupType, t.user.DeliveryAddress, e.shopAddress)
}
