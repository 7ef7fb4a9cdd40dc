// Package display keeps the text model for the status screen.
//
// Model subscribes to the player-state bus and folds every event into a
// snapshot of what the screen shows: the track line, seek position, playback
// state, volume, the seven technical lines, and whether the screen is dimmed
// for idle. Text is folded to ASCII because the panel font has no accents.
package display

import (
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"faceplate/internal/logging"
	"faceplate/internal/playerstate"
)

// Snapshot is a copy of the screen model.
type Snapshot struct {
	Track    string                           `json:"track"`
	Seek     string                           `json:"seek"`
	Ratio    float64                          `json:"ratio"`
	State    string                           `json:"state"`
	Volume   any                              `json:"volume,omitempty"`
	Encoding string                           `json:"encoding,omitempty"`
	Cover    string                           `json:"cover,omitempty"`
	File     string                           `json:"file,omitempty"`
	Lines    [playerstate.DisplayLines]string `json:"lines"`
	Dimmed   bool                             `json:"dimmed"`
	Updated  time.Time                        `json:"updated,omitempty"`
}

// Model folds change events into a Snapshot.
type Model struct {
	logger *slog.Logger

	mu   sync.RWMutex
	snap Snapshot
}

// New constructs an empty model.
func New(logger *slog.Logger) *Model {
	return &Model{
		logger: logging.NewComponentLogger(logger, "display"),
		snap:   Snapshot{State: "stop"},
	}
}

// Attach subscribes the model to every event on bus.
func (m *Model) Attach(bus *playerstate.Bus) playerstate.Subscription {
	return bus.SubscribeAll(m.Handle)
}

// Handle applies one event.
func (m *Model) Handle(evt playerstate.Event) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.snap
	switch evt.Name {
	case playerstate.EventTrackChange:
		s.Track = Fold(text(evt.Payload))
	case playerstate.EventSeekChange:
		if info, ok := evt.Payload.(playerstate.SeekInfo); ok {
			s.Seek = info.Display
			s.Ratio = info.Ratio
		}
	case playerstate.EventStateChange:
		s.State = text(evt.Payload)
	case playerstate.EventVolumeChange:
		s.Volume = evt.Payload
	case playerstate.EventEncodingChange:
		s.Encoding = text(evt.Payload)
	case playerstate.EventCoverChange:
		s.Cover = text(evt.Payload)
	case playerstate.EventFile:
		s.File = text(evt.Payload)
	case playerstate.EventIdleStart:
		s.Dimmed = true
		m.logger.Debug("display dimmed")
	case playerstate.EventIdleStop:
		s.Dimmed = false
		m.logger.Debug("display woke")
	default:
		n, ok := playerstate.LineIndex(evt.Name)
		if !ok {
			return
		}
		s.Lines[n] = Fold(text(evt.Payload))
	}
	s.Updated = evt.At
}

// Snapshot returns a copy of the model.
func (m *Model) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

func text(payload any) string {
	if s, ok := payload.(string); ok {
		return s
	}
	return ""
}

// Fold strips diacritics and replaces anything else outside printable ASCII
// with '?'.
func Fold(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(isControl)),
		runes.Map(asciiOnly),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.Map(func(r rune) rune {
			if isControl(r) {
				return -1
			}
			return asciiOnly(r)
		}, s)
	}
	return out
}

func isControl(r rune) bool {
	return unicode.IsControl(r) && r != '\t' && r != '\n'
}

func asciiOnly(r rune) rune {
	switch {
	case r == '\t' || r == '\n':
		return ' '
	case r < 0x80:
		return r
	}
	if repl, ok := ligatures[r]; ok {
		return repl
	}
	return '?'
}

// ligatures covers letters NFD does not decompose.
var ligatures = map[rune]rune{
	'ø': 'o', 'Ø': 'O',
	'đ': 'd', 'Đ': 'D',
	'ł': 'l', 'Ł': 'L',
	'ß': 's',
	'æ': 'a', 'Æ': 'A',
	'œ': 'o', 'Œ': 'O',
	'‘': '\'', '’': '\'',
	'“': '"', '”': '"',
	'–': '-', '—': '-',
}
