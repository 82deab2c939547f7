package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoomigo/rentalbot/bot/model"
	"github.com/zoomigo/rentalbot/bot/store"
)

const (
	testPhone = "23059998877"
	testShop  = "12 Royal Road, Grand Baie"
)

var testNow = time.Date(2025, time.November, 1, 10, 30, 0, 0, time.UTC)

type fakeUsers struct {
	users   map[string]*model.User
	nextID  int64
	getErr  error
	saveErr error
}

func (f *fakeUsers) GetOrCreate(_ context.Context, phone string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if u, ok := f.users[phone]; ok {
		return u, nil
	}
	f.nextID++
	u := &model.User{ID: f.nextID, PhoneNumber: phone, Stage: model.StageStart}
	f.users[phone] = u
	return u, nil
}

func (f *fakeUsers) Save(_ context.Context, u *model.User) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.users[u.PhoneNumber] = u
	return nil
}

type fakeSessions struct {
	sessions map[string]*model.ChatSession
	getErr   error
	saveErr  error
}

func (f *fakeSessions) Get(_ context.Context, waID string) (*model.ChatSession, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if s, ok := f.sessions[waID]; ok {
		return s, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeSessions) Save(_ context.Context, s *model.ChatSession) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.sessions[s.WaID] = s
	return nil
}

func (f *fakeSessions) Delete(_ context.Context, waID string) error {
	delete(f.sessions, waID)
	return nil
}

// fakeCatalog doubles as Catalog and PromoOps.
type fakeCatalog struct {
	bikes       []model.Bike
	promos      map[string]*model.PromoCode
	mappings    map[int64][]int64
	incremented map[int64]int
	panicBikes  bool
}

func (f *fakeCatalog) AvailableBikes(context.Context) ([]model.Bike, error) {
	if f.panicBikes {
		panic("catalog exploded")
	}
	var out []model.Bike
	for _, b := range f.bikes {
		if b.IsAvailable {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeCatalog) BikeByID(_ context.Context, id int64) (*model.Bike, error) {
	for i := range f.bikes {
		if f.bikes[i].ID == id {
			b := f.bikes[i]
			return &b, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeCatalog) PromoByCode(_ context.Context, code string) (*model.PromoCode, error) {
	if p, ok := f.promos[strings.ToLower(code)]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeCatalog) IncrementUsage(_ context.Context, id int64) error {
	f.incremented[id]++
	return nil
}

func (f *fakeCatalog) BikeIDs(_ context.Context, promoID int64) ([]int64, error) {
	return f.mappings[promoID], nil
}

type fakeBookings struct {
	bookings  []*model.Booking
	nextID    int64
	createErr error
}

func (f *fakeBookings) Create(_ context.Context, b *model.Booking) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	b.ID = f.nextID
	b.CreatedAt = testNow
	clone := *b
	f.bookings = append(f.bookings, &clone)
	return nil
}

func (f *fakeBookings) LatestByWaID(_ context.Context, waID string) (*model.Booking, error) {
	for i := len(f.bookings) - 1; i >= 0; i-- {
		if f.bookings[i].WaID == waID {
			return f.bookings[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeBookings) Cancel(_ context.Context, id int64) error {
	for _, b := range f.bookings {
		if b.ID == id {
			b.Status = model.BookingStatusCancelled
			return nil
		}
	}
	return store.ErrNotFound
}

type fixtures struct {
	users    *fakeUsers
	sessions *fakeSessions
	catalog  *fakeCatalog
	bookings *fakeBookings
}

func newTestEngine() (*Engine, *fixtures) {
	f := &fixtures{
		users:    &fakeUsers{users: map[string]*model.User{}},
		sessions: &fakeSessions{sessions: map[string]*model.ChatSession{}},
		catalog: &fakeCatalog{
			bikes: []model.Bike{
				{ID: 1, Name: "Honda Wave", PricePerDay: 500, Deposit: 100, IsAvailable: true, CurrencyUnit: "Rs"},
				{ID: 2, Name: "Yamaha Ray", PricePerDay: 600, Deposit: 150, IsAvailable: true, CurrencyUnit: "Rs"},
			},
			promos: map[string]*model.PromoCode{
				"summer10": {ID: 4, Code: "summer10", Active: true, DiscountPercent: 10},
			},
			mappings:    map[int64][]int64{},
			incremented: map[int64]int{},
		},
		bookings: &fakeBookings{},
	}
	e := NewEngine(Options{
		Users:       f.users,
		Sessions:    f.sessions,
		Catalog:     f.catalog,
		Promos:      f.catalog,
		Bookings:    f.bookings,
		ShopAddress: testShop,
		Now:         func() time.Time { return testNow },
	})
	return e, f
}

func drive(e *Engine, inputs ...string) string {
	var last string
	for _, in := range inputs {
		last = e.Process(context.Background(), testPhone, in)
	}
	return last
}

// advances a fresh conversation to the promo question with Honda Wave
// selected for five days
func toPromoStage(e *Engine) {
	drive(e, "hi", "Alice", "5", "today", "1", "1")
}

func TestFullBookingFlow(t *testing.T) {
	e, f := newTestEngine()
	ctx := context.Background()

	assert.Equal(t, replyWelcome, e.Process(ctx, testPhone, "hi"))
	assert.Contains(t, e.Process(ctx, testPhone, "Alice"), "Thanks, Alice")
	assert.Equal(t, replyAskDate, e.Process(ctx, testPhone, "2"))
	assert.Equal(t, replyAskPickup, e.Process(ctx, testPhone, "today"))

	r := e.Process(ctx, testPhone, "1")
	assert.Contains(t, r, "Pickup at shop selected")
	assert.Contains(t, r, "Available bikes")
	assert.Contains(t, r, "1. Honda Wave - Rs.500/day")
	assert.Contains(t, r, "2. Yamaha Ray - Rs.600/day")

	r = e.Process(ctx, testPhone, "1")
	assert.Contains(t, r, "You selected *Honda Wave* for 2 days")
	assert.Contains(t, r, "Total: Rs1000 + deposit Rs100")

	assert.Equal(t, replyNoPromo, e.Process(ctx, testPhone, "no"))

	r = e.Process(ctx, testPhone, "1")
	assert.Contains(t, r, "Booking confirmed")
	assert.Contains(t, r, "Honda Wave")
	assert.Contains(t, r, "From 01 Nov 2025 to 03 Nov 2025")
	assert.Contains(t, r, "Pickup location: "+testShop)

	require.Len(t, f.bookings.bookings, 1)
	b := f.bookings.bookings[0]
	assert.Equal(t, testPhone, b.WaID)
	assert.Equal(t, "Alice", b.Name)
	assert.Equal(t, int64(1000), b.Price)
	assert.Equal(t, int64(100), b.Deposit)
	assert.Equal(t, 2, b.Duration)
	assert.Equal(t, model.BookingStatusConfirmed, b.Status)
	assert.Equal(t, model.PickupAtShop, b.PickupType)
	assert.Equal(t, "Rs", b.CurrencyUnit)
	assert.False(t, b.PromoApplied)
	assert.Equal(t, model.StageBookingConfirmed, f.users.users[testPhone].Stage)
}

func TestPromoAppliedAndConsumed(t *testing.T) {
	e, f := newTestEngine()
	toPromoStage(e)

	r := drive(e, "summer10")
	assert.Contains(t, r, "Promo 'summer10' applied!")
	assert.Contains(t, r, "Discount: Rs250")
	assert.Contains(t, r, "New total: Rs2250")

	drive(e, "1")
	require.Len(t, f.bookings.bookings, 1)
	b := f.bookings.bookings[0]
	assert.Equal(t, int64(2250), b.Price)
	assert.Equal(t, int64(250), b.PromoDiscountAmount)
	assert.Equal(t, "summer10", b.PromoCode)
	assert.True(t, b.PromoApplied)
	assert.Equal(t, 1, f.catalog.incremented[4])

	// repeating "1" after confirmation lands on the reminder, not a second booking
	assert.Contains(t, drive(e, "1"), "already have a booking")
	assert.Len(t, f.bookings.bookings, 1)
	assert.Equal(t, 1, f.catalog.incremented[4])
}

func TestPromoInapplicableStillConfirmsFullPrice(t *testing.T) {
	e, f := newTestEngine()
	f.catalog.mappings[4] = []int64{2}
	toPromoStage(e)

	assert.Contains(t, drive(e, "summer10"), "does not apply")

	drive(e, "1")
	require.Len(t, f.bookings.bookings, 1)
	assert.Equal(t, int64(2500), f.bookings.bookings[0].Price)
	assert.False(t, f.bookings.bookings[0].PromoApplied)
	assert.Zero(t, f.catalog.incremented[4])
}

func TestPromoExhausted(t *testing.T) {
	e, f := newTestEngine()
	f.catalog.promos["summer10"].TotalAllocation = 3
	f.catalog.promos["summer10"].UsedCount = 3
	toPromoStage(e)

	assert.Contains(t, drive(e, "summer10"), "fully used")
}

func TestPromoNotFoundOrInactive(t *testing.T) {
	e, f := newTestEngine()
	f.catalog.promos["old5"] = &model.PromoCode{ID: 9, Code: "old5", Active: false, DiscountAmount: 5}
	toPromoStage(e)

	assert.Equal(t, replyPromoNotFound, drive(e, "bogus"))
	assert.Equal(t, replyPromoNotFound, drive(e, "old5"))
}

func TestCancelBookingFlow(t *testing.T) {
	e, f := newTestEngine()
	toPromoStage(e)
	drive(e, "no", "1")

	assert.Equal(t, replyCancelPrompt, drive(e, "cancel"))
	assert.Equal(t, replyCancelled, drive(e, "1"))

	require.Len(t, f.bookings.bookings, 1)
	assert.Equal(t, model.BookingStatusCancelled, f.bookings.bookings[0].Status)
	assert.Equal(t, model.StageStart, f.users.users[testPhone].Stage)
	assert.NotContains(t, f.sessions.sessions, testPhone)
}

func TestKeepBooking(t *testing.T) {
	e, f := newTestEngine()
	toPromoStage(e)
	drive(e, "no", "1", "cancel")

	r := drive(e, "2")
	assert.Contains(t, r, "remains active")
	assert.Contains(t, r, "Honda Wave")
	assert.Contains(t, r, "Pickup location: "+testShop)
	assert.Equal(t, model.StageBookingConfirmed, f.users.users[testPhone].Stage)
	assert.Equal(t, model.BookingStatusConfirmed, f.bookings.bookings[0].Status)
}

func TestKeepBookingFallsBackToProfileDetails(t *testing.T) {
	e, f := newTestEngine()
	f.users.users[testPhone] = &model.User{
		ID:              1,
		PhoneNumber:     testPhone,
		Stage:           model.StageCancelConfirm,
		PickupType:      model.PickupHomeDelivery,
		DeliveryAddress: "123 Colombo Road",
	}

	assert.Contains(t, drive(e, "2"), "Home delivery to: 123 Colombo Road")
}

func TestBookingReminderRepeats(t *testing.T) {
	e, _ := newTestEngine()
	toPromoStage(e)
	drive(e, "no", "1")

	r := drive(e, "hi")
	assert.Contains(t, r, "already have a booking")
	assert.Contains(t, r, "Honda Wave")
}

func TestPickupKeywordVariants(t *testing.T) {
	e, _ := newTestEngine()
	drive(e, "hi", "Alice", "3", "today")
	assert.Contains(t, drive(e, "pick up at shop"), "Proceeding to bike selection")

	e2, f2 := newTestEngine()
	drive(e2, "hi", "Bob", "3", "today")
	assert.Equal(t, replyAskAddress, drive(e2, "I want home delivery please"))

	r := drive(e2, "45 Beach Road")
	assert.Contains(t, r, "Available bikes")
	assert.NotContains(t, r, "Pickup at shop selected")
	assert.Equal(t, model.PickupHomeDelivery, f2.users.users[testPhone].PickupType)
	assert.Equal(t, "45 Beach Road", f2.users.users[testPhone].DeliveryAddress)
}

func TestNoBikesAvailable(t *testing.T) {
	e, f := newTestEngine()
	f.catalog.bikes = nil
	drive(e, "hi", "Alice", "3", "today")

	r := drive(e, "1")
	assert.Contains(t, r, "Pickup at shop selected")
	assert.Contains(t, r, replyNoBikes)
}

func TestBikeNumberingStaysStable(t *testing.T) {
	e, _ := newTestEngine()
	drive(e, "hi", "Alice", "3", "today", "1")

	assert.Equal(t, replyInvalidBike, drive(e, "zzz"))
	assert.Contains(t, drive(e, "2"), "You selected *Yamaha Ray* for 3 days")
}

func TestFuzzyBikeNameMatch(t *testing.T) {
	e, _ := newTestEngine()
	drive(e, "hi", "Alice", "3", "today", "1")

	assert.Contains(t, drive(e, "honda"), "You selected *Honda Wave*")
}

func TestReselectKeepsNumbering(t *testing.T) {
	e, _ := newTestEngine()
	toPromoStage(e)
	drive(e, "no")

	assert.Equal(t, replyReselect, drive(e, "2"))
	assert.Contains(t, drive(e, "2"), "You selected *Yamaha Ray*")
}

func TestGlobalCancelKeywordResets(t *testing.T) {
	e, f := newTestEngine()
	drive(e, "hi", "Alice")

	assert.Equal(t, replyFlowCancelled, drive(e, "cancel"))
	assert.Equal(t, model.StageStart, f.users.users[testPhone].Stage)
	assert.Empty(t, f.users.users[testPhone].Name)
	assert.Equal(t, replyWelcome, drive(e, "hi"))
}

func TestReconciliationTreatsPendingPromoAsConfirm(t *testing.T) {
	e, f := newTestEngine()
	bikeID := int64(1)
	start := testNow
	f.users.users[testPhone] = &model.User{
		ID:             1,
		PhoneNumber:    testPhone,
		Name:           "Alice",
		Days:           5,
		StartDate:      &start,
		PickupType:     model.PickupAtShop,
		SelectedBikeID: &bikeID,
		Stage:          model.StageAskPromo,
	}
	f.sessions.sessions[testPhone] = &model.ChatSession{
		WaID:  testPhone,
		State: model.StageConfirmBike,
		Data: model.SessionData{
			PendingPromo: &model.PendingPromo{ID: 4, Code: "summer10", Discount: 250, FinalPrice: 2250},
		},
	}

	assert.Contains(t, drive(e, "1"), "Booking confirmed")
	require.Len(t, f.bookings.bookings, 1)
	assert.Equal(t, int64(2250), f.bookings.bookings[0].Price)
	assert.Equal(t, 1, f.catalog.incremented[4])
}

func TestExplicitNoDeclinesPendingPromo(t *testing.T) {
	e, f := newTestEngine()
	toPromoStage(e)
	drive(e, "summer10")
	f.users.users[testPhone].Stage = model.StageAskPromo

	assert.Equal(t, replyNoPromo, drive(e, "no"))
	assert.Nil(t, f.sessions.sessions[testPhone].Data.PendingPromo)
}

func TestSessionLoadFailureTolerated(t *testing.T) {
	e, f := newTestEngine()
	f.sessions.getErr = errors.New("session table unreachable")

	assert.Equal(t, replyWelcome, drive(e, "hi"))
	assert.Contains(t, drive(e, "Alice"), "Thanks, Alice")
}

func TestUserSaveFailureTolerated(t *testing.T) {
	e, f := newTestEngine()
	f.users.saveErr = errors.New("users table unreachable")

	assert.Equal(t, replyWelcome, drive(e, "hi"))
}

func TestUserLoadFailureRepliesTryAgain(t *testing.T) {
	e, f := newTestEngine()
	f.users.getErr = errors.New("db down")

	assert.Equal(t, replyTryAgain, drive(e, "hi"))
}

func TestPanicIsRecovered(t *testing.T) {
	e, f := newTestEngine()
	f.users.users[testPhone] = &model.User{ID: 1, PhoneNumber: testPhone, Stage: model.StageAskBike, Days: 3}
	f.catalog.panicBikes = true

	assert.Equal(t, replyTryAgain, drive(e, "1"))
}

func TestUnknownStageFallsBack(t *testing.T) {
	e, f := newTestEngine()
	f.users.users[testPhone] = &model.User{ID: 1, PhoneNumber: testPhone, Stage: model.Stage("LIMBO")}

	assert.Equal(t, replyFallback, drive(e, "hey"))
}

func TestStaleBikeAtConfirm(t *testing.T) {
	e, f := newTestEngine()
	toPromoStage(e)
	drive(e, "no")
	f.catalog.bikes[0].IsAvailable = false

	assert.Equal(t, replyStaleBike, drive(e, "1"))
	assert.Empty(t, f.bookings.bookings)
	assert.Equal(t, model.StageConfirmBike, f.users.users[testPhone].Stage)
}

func TestBookingCreateFailureStillReplies(t *testing.T) {
	e, f := newTestEngine()
	toPromoStage(e)
	drive(e, "summer10")
	f.bookings.createErr = errors.New("insert failed")

	assert.Contains(t, drive(e, "1"), "Booking confirmed")
	assert.Empty(t, f.bookings.bookings)
	assert.Zero(t, f.catalog.incremented[4], "usage only counts against stored bookings")
}

func TestInvalidInputsReprompt(t *testing.T) {
	e, _ := newTestEngine()

	drive(e, "hi")
	assert.Equal(t, replyAskNameAgain, drive(e, "hello"))
	drive(e, "Alice")
	assert.Equal(t, replyInvalidDays, drive(e, "zero"))
	assert.Equal(t, replyInvalidDays, drive(e, "-2"))
	drive(e, "4")
	assert.Equal(t, replyInvalidDate, drive(e, "someday soonish"))
	drive(e, "today")
	assert.Equal(t, replyInvalidPickup, drive(e, "maybe"))
	drive(e, "1", "1", "no")
	assert.Equal(t, replyInvalidConfirm, drive(e, "perhaps"))
}
