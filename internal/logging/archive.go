package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// EventArchive journals log events to disk as JSON lines so `faceplate logs`
// can reach back past the in-memory window.
type EventArchive struct {
	path string
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewEventArchive creates (or truncates) the journal at path. An empty path
// disables archiving and returns a nil archive.
func NewEventArchive(path string) (*EventArchive, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if err := ensureLogDir(trimmed); err != nil {
		return nil, fmt.Errorf("ensure archive dir: %w", err)
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", trimmed, err)
	}
	return &EventArchive{path: trimmed, file: file, enc: json.NewEncoder(file)}, nil
}

// Append writes evt to the journal. Write failures are dropped; logging must
// keep working when the disk is full.
func (a *EventArchive) Append(evt LogEvent) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enc == nil {
		return
	}
	_ = a.enc.Encode(evt)
}

// ReadSince returns up to limit archived events newer than since (limit 0
// means all) and the highest sequence seen.
func (a *EventArchive) ReadSince(since uint64, limit int) ([]LogEvent, uint64, error) {
	if a == nil {
		return nil, since, nil
	}
	file, err := os.Open(a.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, since, nil
		}
		return nil, since, fmt.Errorf("open archive %s: %w", a.path, err)
	}
	defer file.Close()

	dec := json.NewDecoder(file)
	var out []LogEvent
	highest := since
	for {
		var evt LogEvent
		if err := dec.Decode(&evt); err != nil {
			if errors.Is(err, io.EOF) {
				return out, highest, nil
			}
			return out, highest, fmt.Errorf("decode archive %s: %w", a.path, err)
		}
		highest = max(highest, evt.Sequence)
		if evt.Sequence <= since {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) >= limit {
			return out, highest, nil
		}
	}
}

// Close releases the file handle. Further appends are ignored.
func (a *EventArchive) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	a.enc = nil
	return err
}

// Path returns the journal location.
func (a *EventArchive) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}
