package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/zoomigo/rentalbot/core/logger"
)

// Engine runs one conversation turn and returns the reply text.
type Engine interface {
	Process(ctx context.Context, senderID, text string) string
}

// TextSender delivers outbound messages.
type TextSender interface {
	SendText(ctx context.Context, to, body string) error
}

// Dispatcher schedules turn processing off the request goroutine.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, run func(ctx context.Context))
}

// Handler is the WhatsApp Cloud API webhook boundary.
type Handler struct {
	verifyToken string
	engine      Engine
	sender      TextSender
	pool        Dispatcher
}

func NewHandler(verifyToken string, engine Engine, sender TextSender, pool Dispatcher) *Handler {
	return &Handler{
		verifyToken: verifyToken,
		engine:      engine,
		sender:      sender,
		pool:        pool,
	}
}

// Router builds the HTTP surface: webhook verification and delivery plus a
// manual send endpoint for operators.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Get("/webhook", h.verify)
	r.Post("/webhook", h.receive)
	r.Post("/api/send-text", h.sendText)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		logger.Info(r.Context(), "http", "webhook.verified")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}
	logger.Warn(r.Context(), "http", "webhook.verify.rejected",
		slog.String("mode", mode),
	)
	w.WriteHeader(http.StatusForbidden)
}

type inboundMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

type inboundPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// receive acknowledges delivery immediately and hands text messages to the
// worker pool. The Cloud API retries on non-200, so parse failures are logged
// and acknowledged rather than bounced.
func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var payload inboundPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		logger.Warn(r.Context(), "http", "webhook.payload.invalid",
			slog.String("err", err.Error()),
		)
		acknowledge(w)
		return
	}

	dispatched := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || strings.TrimSpace(msg.From) == "" {
					continue
				}
				h.dispatchTurn(msg)
				dispatched++
			}
		}
	}
	if dispatched > 0 {
		logger.Info(r.Context(), "http", "webhook.received",
			slog.Int("count", dispatched),
		)
	}
	acknowledge(w)
}

// dispatchTurn queues one conversation turn. The job carries a detached
// context because processing outlives the webhook request.
func (h *Handler) dispatchTurn(msg inboundMessage) {
	ctx := logger.WithMessageMeta(context.Background(), msg.From, msg.ID)
	ctx = logger.WithRID(ctx, logger.BuildRID(msg.ID, msg.From))
	text := msg.Text.Body

	h.pool.Dispatch(ctx, "conversation.turn", func(ctx context.Context) {
		reply := h.engine.Process(ctx, msg.From, text)
		if reply == "" {
			return
		}
		if err := h.sender.SendText(ctx, msg.From, reply); err != nil {
			logger.Error(ctx, "http", "reply.send.failed",
				slog.String("phone", msg.From),
				slog.String("err", err.Error()),
			)
		}
	})
}

// requestID tags every request context with a short correlation id. Turn
// jobs later replace it with the message-derived id.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-Id")
		if rid == "" {
			rid = uuid.NewString()[:8]
		}
		next.ServeHTTP(w, r.WithContext(logger.WithRID(r.Context(), rid)))
	})
}

func acknowledge(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("EVENT_RECEIVED"))
}

type sendTextRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// sendText lets operators push a message outside the conversation flow.
func (h *Handler) sendText(w http.ResponseWriter, r *http.Request) {
	var req sendTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Body) == "" {
		http.Error(w, "to and body are required", http.StatusBadRequest)
		return
	}
	if err := h.sender.SendText(r.Context(), req.To, req.Body); err != nil {
		logger.Error(r.Context(), "http", "manual.send.failed",
			slog.String("phone", req.To),
			slog.String("err", err.Error()),
		)
		http.Error(w, "send failed", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"sent"}`))
}
