package logger

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// zerologHandler adapts a zerolog.Logger to slog.Handler.
type zerologHandler struct {
	logger *zerolog.Logger
	attrs  []slog.Attr
	groups []string
}

func newZerologHandler(logger *zerolog.Logger) *zerologHandler {
	return &zerologHandler{logger: logger}
}

func toZerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

func (h *zerologHandler) Enabled(_ context.Context, level slog.Level) bool {
	return toZerologLevel(level) >= h.logger.GetLevel()
}

func (h *zerologHandler) Handle(_ context.Context, record slog.Record) error {
	event := h.logger.WithLevel(toZerologLevel(record.Level))
	if event == nil {
		return nil
	}

	prefix := h.prefix()
	for _, attr := range h.attrs {
		appendAttr(event, prefix, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(event, prefix, attr)
		return true
	})

	event.Msg(record.Message)
	return nil
}

func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	next.attrs = append(next.attrs, attrs...)
	return next
}

func (h *zerologHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.groups = append(next.groups, name)
	return next
}

func (h *zerologHandler) clone() *zerologHandler {
	return &zerologHandler{
		logger: h.logger,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		groups: append([]string(nil), h.groups...),
	}
}

func (h *zerologHandler) prefix() string {
	prefix := ""
	for _, g := range h.groups {
		prefix += g + "."
	}
	return prefix
}

func appendAttr(event *zerolog.Event, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	key := prefix + attr.Key
	switch attr.Value.Kind() {
	case slog.KindString:
		event.Str(key, attr.Value.String())
	case slog.KindInt64:
		event.Int64(key, attr.Value.Int64())
	case slog.KindUint64:
		event.Uint64(key, attr.Value.Uint64())
	case slog.KindFloat64:
		event.Float64(key, attr.Value.Float64())
	case slog.KindBool:
		event.Bool(key, attr.Value.Bool())
	case slog.KindDuration:
		event.Dur(key, attr.Value.Duration())
	case slog.KindTime:
		event.Time(key, attr.Value.Time())
	case slog.KindGroup:
		for _, nested := range attr.Value.Group() {
			appendAttr(event, key+".", nested)
		}
	default:
		if err, ok := attr.Value.Any().(error); ok {
			event.AnErr(key, err)
			return
		}
		event.Interface(key, attr.Value.Any())
	}
}
