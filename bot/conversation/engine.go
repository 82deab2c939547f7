package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zoomigo/rentalbot/bot/model"
	"github.com/zoomigo/rentalbot/bot/store"
	"github.com/zoomigo/rentalbot/core/logger"
)

// UserStore loads and saves durable user profiles.
type UserStore interface {
	GetOrCreate(ctx context.Context, phone string) (*model.User, error)
	Save(ctx context.Context, u *model.User) error
}

// SessionStore loads, saves, and deletes conversation sessions.
type SessionStore interface {
	Get(ctx context.Context, waID string) (*model.ChatSession, error)
	Save(ctx context.Context, s *model.ChatSession) error
	Delete(ctx context.Context, waID string) error
}

// Catalog serves bike and promo lookups, normally through the read-through
// cache.
type Catalog interface {
	AvailableBikes(ctx context.Context) ([]model.Bike, error)
	BikeByID(ctx context.Context, id int64) (*model.Bike, error)
	PromoByCode(ctx context.Context, code string) (*model.PromoCode, error)
}

// PromoOps covers the uncached promo side effects and restriction reads.
type PromoOps interface {
	IncrementUsage(ctx context.Context, id int64) error
	BikeIDs(ctx context.Context, promoID int64) ([]int64, error)
}

// BookingStore persists bookings.
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	LatestByWaID(ctx context.Context, waID string) (*model.Booking, error)
	Cancel(ctx context.Context, id int64) error
}

// CurrencyResolver reports the active display currency for new bookings.
type CurrencyResolver interface {
	ActiveCurrency(ctx context.Context) string
}

// Engine is the conversation state machine. One Process call handles one
// inbound message and returns the reply text; all persistence happens as a
// side effect and is never fatal to the turn.
type Engine struct {
	users    UserStore
	sessions SessionStore
	catalog  Catalog
	promos   PromoOps
	bookings BookingStore
	currency CurrencyResolver

	shopAddress string
	now         func() time.Time

	locks keyedMutex
}

// Options carries the engine's collaborators and settings.
type Options struct {
	Users    UserStore
	Sessions SessionStore
	Catalog  Catalog
	Promos   PromoOps
	Bookings BookingStore
	Currency CurrencyResolver

	ShopAddress string
	Now         func() time.Time
}

func NewEngine(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		users:       opts.Users,
		sessions:    opts.Sessions,
		catalog:     opts.Catalog,
		promos:      opts.Promos,
		bookings:    opts.Bookings,
		currency:    opts.Currency,
		shopAddress: opts.ShopAddress,
		now:         now,
	}
}

// turn bundles the mutable state of one Process call.
type turn struct {
	user    *model.User
	session *model.ChatSession
	text    string
	lower   string
}

// outcome is a stage handler's result. When cont is set the dispatch loop
// runs the next stage's handler in the same turn with a blank input, so one
// reply can satisfy two prompts.
type outcome struct {
	reply string
	next  model.Stage
	cont  bool
}

// maxRedispatch bounds the in-turn dispatch loop.
const maxRedispatch = 4

// Process handles one inbound message for the sender and returns the reply.
// Turns for the same sender are serialized; Process never panics and never
// returns an error to its caller.
func (e *Engine) Process(ctx context.Context, senderID, text string) (reply string) {
	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "conversation", "turn.panic",
				slog.String("phone", senderID),
				slog.String("err", fmt.Sprint(r)),
			)
			reply = replyTryAgain
		}
	}()

	unlock := e.locks.lock(senderID)
	defer unlock()

	t, err := e.load(ctx, senderID)
	if err != nil {
		logger.Error(ctx, "conversation", "turn.load.failed",
			slog.String("phone", senderID),
			slog.String("err", err.Error()),
		)
		return replyTryAgain
	}
	t.text = strings.TrimSpace(text)
	t.lower = strings.ToLower(t.text)

	// the cancel keyword resets everything unless a booking already exists
	if t.lower == "cancel" && t.user.Stage != model.StageBookingConfirmed {
		e.reset(ctx, t)
		return replyFlowCancelled
	}

	eff := e.reconcile(t)
	parts := make([]string, 0, 2)
	for i := 0; i < maxRedispatch; i++ {
		out := e.handleStage(ctx, eff, t)
		if out.reply != "" {
			parts = append(parts, out.reply)
		}
		if !out.cont {
			break
		}
		eff = out.next
	}

	logger.Info(ctx, "conversation", "turn.done",
		slog.String("phone", senderID),
		slog.String("stage", string(t.user.Stage)),
		slog.Duration("duration", logger.Took(start)),
	)
	return strings.Join(parts, "\n\n")
}

func (e *Engine) load(ctx context.Context, senderID string) (*turn, error) {
	user, err := e.users.GetOrCreate(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if user.Stage == "" {
		user.Stage = model.StageStart
	}

	session, err := e.sessions.Get(ctx, senderID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn(ctx, "conversation", "session.load.failed",
				slog.String("phone", senderID),
				slog.String("err", err.Error()),
			)
		}
		session = &model.ChatSession{WaID: senderID, State: user.Stage}
	}
	return &turn{user: user, session: session}, nil
}

// reconcile resolves the effective stage when the scratch data ran ahead of
// the profile. A pending promo implies the promo step already completed, so
// the turn is treated as a confirmation turn unless the user explicitly
// declines the promo.
func (e *Engine) reconcile(t *turn) model.Stage {
	eff := t.user.Stage
	if t.session.Data.PendingPromo == nil {
		return eff
	}
	if eff != model.StageAskPromo && eff != model.StageConfirmBike {
		return eff
	}
	if eff == model.StageAskPromo && t.lower == "no" {
		return eff
	}
	return model.StageConfirmBike
}

// save transitions both persisted records to the next stage. Write failures
// are logged and the turn continues with the in-memory state.
func (e *Engine) save(ctx context.Context, t *turn, next model.Stage) {
	t.user.Stage = next
	if err := e.users.Save(ctx, t.user); err != nil {
		logger.Warn(ctx, "conversation", "user.save.failed",
			slog.String("phone", t.user.PhoneNumber),
			slog.String("stage", string(next)),
			slog.String("err", err.Error()),
		)
	}
	e.saveSession(ctx, t, next)
}

func (e *Engine) saveSession(ctx context.Context, t *turn, state model.Stage) {
	t.session.State = state
	if err := e.sessions.Save(ctx, t.session); err != nil {
		logger.Warn(ctx, "conversation", "session.save.failed",
			slog.String("phone", t.session.WaID),
			slog.String("state", string(state)),
			slog.String("err", err.Error()),
		)
	}
}

// reset clears the profile back to START and deletes the session row.
func (e *Engine) reset(ctx context.Context, t *turn) {
	t.user.Name = ""
	t.user.Days = 0
	t.user.StartDate = nil
	t.user.PickupType = ""
	t.user.DeliveryAddress = ""
	t.user.SelectedBikeID = nil
	t.user.Stage = model.StageStart
	if err := e.users.Save(ctx, t.user); err != nil {
		logger.Warn(ctx, "conversation", "reset.user.failed",
			slog.String("phone", t.user.PhoneNumber),
			slog.String("err", err.Error()),
		)
	}
	if err := e.sessions.Delete(ctx, t.user.PhoneNumber); err != nil {
		logger.Warn(ctx, "conversation", "reset.session.failed",
			slog.String("phone", t.user.PhoneNumber),
			slog.String("err", err.Error()),
		)
	}
	t.session.State = model.StageStart
	t.session.Data = model.SessionData{}
}

// keyedMutex serializes turns per sender. Entries are kept for the process
// lifetime; the per-sender footprint is one mutex.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}
