package logging

import (
	"context"
	"log/slog"
	"strings"
)

// componentLevelHandler applies a minimum level that follows the component
// attribute: once a logger is tagged with a component listed in levels, that
// level replaces the default. The wrapped handler must accept the most verbose
// level in use.
type componentLevelHandler struct {
	next   slog.Handler
	levels map[string]slog.Level
	level  slog.Level
}

func newComponentLevelHandler(next slog.Handler, level slog.Level, levels map[string]slog.Level) slog.Handler {
	if next == nil {
		return NoopHandler{}
	}
	return &componentLevelHandler{next: next, levels: levels, level: level}
}

func (h *componentLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.next.Enabled(ctx, level)
}

func (h *componentLevelHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.level {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *componentLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	level := h.level
	for _, attr := range attrs {
		if attr.Key != FieldComponent {
			continue
		}
		if lvl, ok := h.levels[strings.ToLower(attr.Value.String())]; ok {
			level = lvl
		}
	}
	return &componentLevelHandler{next: h.next.WithAttrs(attrs), levels: h.levels, level: level}
}

func (h *componentLevelHandler) WithGroup(name string) slog.Handler {
	return &componentLevelHandler{next: h.next.WithGroup(name), levels: h.levels, level: h.level}
}

func (h *componentLevelHandler) CloneWithLevel(level slog.Level) slog.Handler {
	return &componentLevelHandler{next: h.next, levels: h.levels, level: level}
}

// levelOverrideHandler enforces a fixed minimum level on top of next.
type levelOverrideHandler struct {
	next  slog.Handler
	level slog.Level
}

func (h *levelOverrideHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.next.Enabled(ctx, level)
}

func (h *levelOverrideHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.level {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *levelOverrideHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelOverrideHandler{next: h.next.WithAttrs(attrs), level: h.level}
}

func (h *levelOverrideHandler) WithGroup(name string) slog.Handler {
	return &levelOverrideHandler{next: h.next.WithGroup(name), level: h.level}
}

// WithLevelOverride returns a logger that drops records below level while
// keeping existing attributes and handler wiring. High-frequency loops use it
// to stay quiet at debug.
func WithLevelOverride(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	if cloner, ok := logger.Handler().(interface{ CloneWithLevel(slog.Level) slog.Handler }); ok {
		return slog.New(cloner.CloneWithLevel(level))
	}
	return slog.New(&levelOverrideHandler{next: logger.Handler(), level: level})
}
