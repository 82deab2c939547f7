package logger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders records as single lines with a fixed key order so
// log greps stay stable across the codebase.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	groups []string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}

	fs := newFieldSet()
	ts := r.Time.UTC()
	fs.put("ts", ts.Truncate(time.Millisecond).Format(timeFormatMillis))
	fs.put("level", normalizeLevel(r.Level.String()))
	if h.cfg.format == formatJSON {
		fs.put("ts_unix_nano", ts.UnixNano())
	}

	for _, a := range h.attrs {
		h.collect(fs, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.collect(fs, a)
		return true
	})
	contextFields(ctx, fs)

	if fs.str("event") == "" {
		if r.Message != "" {
			fs.put("event", r.Message)
		} else {
			fs.put("event", "unknown")
		}
	}
	if fs.str("component") == "" {
		fs.put("component", "app")
	}

	normalizeEnums(fs)
	fs.prune()

	line, err := h.render(fs)
	if err != nil {
		return err
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// collect flattens the attr (expanding groups with dotted keys) into the
// field set.
func (h *structuredHandler) collect(fs *fieldSet, attr slog.Attr) {
	prefix := strings.Join(h.groups, ".")
	var walk func(prefix string, a slog.Attr)
	walk = func(prefix string, a slog.Attr) {
		key := a.Key
		if prefix != "" {
			if key == "" {
				key = prefix
			} else {
				key = prefix + "." + key
			}
		}
		if a.Value.Kind() == slog.KindGroup {
			for _, child := range a.Value.Group() {
				walk(key, child)
			}
			return
		}
		if key == "" {
			return
		}
		k, v, ok := normalizeAttr(key, a.Value)
		if ok {
			fs.put(k, v)
		}
	}
	walk(prefix, attr)
}

func (h *structuredHandler) render(fs *fieldSet) ([]byte, error) {
	keys := fs.ordered(h.cfg.keyOrder)
	if h.cfg.format == formatJSON {
		return renderJSON(fs, keys)
	}
	return renderKV(fs, keys), nil
}

// fieldSet is an insertion-tracking key/value bag; ordered() lays the
// configured schema keys first and the rest alphabetically.
type fieldSet struct {
	vals map[string]any
}

func newFieldSet() *fieldSet {
	return &fieldSet{vals: make(map[string]any, 16)}
}

func (f *fieldSet) put(key string, val any) { f.vals[key] = val }

func (f *fieldSet) putIfAbsent(key string, val any) {
	if _, ok := f.vals[key]; !ok {
		f.vals[key] = val
	}
}

// str returns the field as a string, or "" when absent.
func (f *fieldSet) str(key string) string {
	v, ok := f.vals[key]
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// prune drops empty strings and nils so quiet turns stay on one short line.
func (f *fieldSet) prune() {
	for k, v := range f.vals {
		switch x := v.(type) {
		case nil:
			delete(f.vals, k)
		case string:
			if x == "" {
				delete(f.vals, k)
			}
		}
	}
}

func (f *fieldSet) ordered(order []string) []string {
	keys := make([]string, 0, len(f.vals))
	seen := make(map[string]struct{}, len(f.vals))
	for _, key := range order {
		if _, ok := f.vals[key]; ok {
			keys = append(keys, key)
			seen[key] = struct{}{}
		}
	}
	head := len(keys)
	for key := range f.vals {
		if _, ok := seen[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys[head:])
	return keys
}

// durationKey rewrites a duration-valued key so the unit is explicit.
func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_duration"):
		return strings.TrimSuffix(key, "_duration") + "_duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	default:
		return key + "_ms"
	}
}

func normalizeAttr(key string, val slog.Value) (string, any, bool) {
	switch val.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(val.String()), true
	case slog.KindBool:
		return key, val.Bool(), true
	case slog.KindInt64:
		return key, val.Int64(), true
	case slog.KindUint64:
		u := val.Uint64()
		if u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, u, true
	case slog.KindFloat64:
		return key, val.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(val.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, val.Time().UTC().Format(time.RFC3339Nano), true
	case slog.KindAny:
		switch x := val.Any().(type) {
		case nil:
			return key, nil, false
		case error:
			return key, x.Error(), true
		case string:
			return key, strings.TrimSpace(x), true
		case time.Duration:
			return durationKey(key), RoundMS(x).Milliseconds(), true
		case fmt.Stringer:
			return key, x.String(), true
		default:
			return key, fmt.Sprint(x), true
		}
	default:
		return key, val.Any(), true
	}
}

// normalizeEnums pins the enumerated fields to their schema values; unknown
// cache and outcome values are dropped rather than propagated.
func normalizeEnums(fs *fieldSet) {
	if level := fs.str("level"); level != "" {
		fs.put("level", normalizeLevel(level))
	}
	if s := fs.str("status"); s != "" {
		if normalized, valid := normalizeStatus(s); valid {
			fs.put("status", normalized)
		}
	}
	if c := fs.str("cache"); c != "" {
		if normalized, valid := normalizeCache(c); valid {
			fs.put("cache", normalized)
		} else {
			delete(fs.vals, "cache")
		}
	}
	if o := fs.str("outcome"); o != "" {
		if normalized, valid := normalizeOutcome(o); valid {
			fs.put("outcome", normalized)
		} else {
			delete(fs.vals, "outcome")
		}
	}
}

// contextFields merges the turn metadata carried on the context; explicit
// attrs win over context values.
func contextFields(ctx context.Context, fs *fieldSet) {
	if ctx == nil {
		return
	}
	if rid := RIDFrom(ctx); rid != "" {
		fs.putIfAbsent("rid", rid)
	}
	if phone := PhoneFrom(ctx); phone != "" {
		fs.putIfAbsent("phone", phone)
	}
	if msgID := MsgIDFrom(ctx); msgID != "" {
		fs.putIfAbsent("msg_id", msgID)
	}
	if handler := HandlerFrom(ctx); handler != "" {
		fs.putIfAbsent("handler", handler)
	}
}

func renderJSON(fs *fieldSet, keys []string) ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, key := range keys {
		data, err := json.Marshal(fs.vals[key])
		if err != nil {
			return nil, err
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(key))
		b.WriteByte(':')
		b.Write(data)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func renderKV(fs *fieldSet, keys []string) []byte {
	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(kvValue(fs.vals[key]))
	}
	return []byte(b.String())
}

func kvValue(val any) string {
	var s string
	switch v := val.(type) {
	case string:
		s = v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		s = fmt.Sprint(v)
	}
	if strings.IndexFunc(s, needsQuote) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

func needsQuote(r rune) bool {
	return r <= 32 || r == '=' || r == '"'
}
