package logger

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
)

// contextKey is a private type to avoid collisions in context.
type contextKey string

const (
	ctxRID     contextKey = "rid"
	ctxPhone   contextKey = "phone"
	ctxMsgID   contextKey = "msg_id"
	ctxLogger  contextKey = "logger"
	ctxHandler contextKey = "handler"
)

// WithLogger stores the provided slog.Logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext extracts slog.Logger from context or returns global default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L
	}
	if v := ctx.Value(ctxLogger); v != nil {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithRID attaches request correlation id into context.
func WithRID(ctx context.Context, rid string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRID, rid)
}

// RIDFrom extracts rid from context if present.
func RIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(ctxRID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithMessageMeta attaches the sender phone number and WhatsApp message id to context.
func WithMessageMeta(ctx context.Context, phone, msgID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if phone != "" {
		ctx = context.WithValue(ctx, ctxPhone, phone)
	}
	if msgID != "" {
		ctx = context.WithValue(ctx, ctxMsgID, msgID)
	}
	return ctx
}

// PhoneFrom extracts the sender phone number from context if present.
func PhoneFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(ctxPhone); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// MsgIDFrom extracts the WhatsApp message id from context if present.
func MsgIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(ctxMsgID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithHandler stores handler identifier in context for downstream logs.
func WithHandler(ctx context.Context, handler string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if handler == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxHandler, handler)
}

// HandlerFrom returns handler identifier from context if present.
func HandlerFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(ctxHandler); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Sanitize trims non-printable runes from s to keep logs clean.
// It removes control characters (Unicode categories Cc, Cf) except for tab and newline.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	b := strings.Builder{}
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			// skip
			continue
		}
		// also skip DEL character
		if r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeLimit applies Sanitize and limits the output length in runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	cleaned := Sanitize(s)
	// fast path
	if len([]rune(cleaned)) <= max {
		return cleaned
	}
	r := []rune(cleaned)
	return string(r[:max])
}

// BuildRID returns a correlation identifier for a webhook turn. The WhatsApp
// message id is preferred; when absent the sender phone seeds the id instead.
func BuildRID(msgID, phone string) string {
	msgID = strings.TrimSpace(msgID)
	if msgID != "" {
		// Cloud API ids look like "wamid.<base64>"; keep only the tail for brevity.
		if idx := strings.LastIndexByte(msgID, '.'); idx >= 0 && idx+1 < len(msgID) {
			msgID = msgID[idx+1:]
		}
		return SanitizeLimit(msgID, 24)
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	return "ph:" + SanitizeLimit(phone, 16)
}
