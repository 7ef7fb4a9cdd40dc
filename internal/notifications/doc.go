// Package notifications pushes player events to ntfy.
//
// NewService returns a publisher bound to the configured topic, or a no-op
// when no topic is set. Each event category is gated by its toggle in the
// [notifications] config table; test notifications are always delivered.
package notifications
