// Package logging assembles structured slog loggers and formatting helpers used
// across faceplate.
//
// It owns the console and JSON handlers, per-component level overrides, the
// session id stamp applied to every daemon line, and the in-memory StreamHub
// that backs `faceplate logs`. WarnWithContext keeps WARN lines uniform: each
// one names an event type, a hint and the user-visible impact.
package logging
