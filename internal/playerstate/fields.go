package playerstate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Field names a key in the player's state document.
type Field string

// Recognized state fields. Anything else is stored but never emitted.
const (
	FieldStatus         Field = "status"
	FieldTitle          Field = "title"
	FieldArtist         Field = "artist"
	FieldAlbum          Field = "album"
	FieldSeek           Field = "seek"
	FieldDuration       Field = "duration"
	FieldVolume         Field = "volume"
	FieldBitRate        Field = "bitrate"
	FieldSampleRate     Field = "samplerate"
	FieldBitDepth       Field = "bitdepth"
	FieldChannels       Field = "channels"
	FieldAlbumArt       Field = "albumart"
	FieldURI            Field = "uri"
	FieldTrackType      Field = "trackType"
	FieldPosition       Field = "position"
	FieldRepeat         Field = "repeat"
	FieldRepeatSingle   Field = "repeatSingle"
	FieldPlaylistLength Field = "playlistlength"
)

// ValueKind is the value type a field is expected to carry.
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "string"
	}
}

var fieldKinds = map[Field]ValueKind{
	FieldStatus:         KindString,
	FieldTitle:          KindString,
	FieldArtist:         KindString,
	FieldAlbum:          KindString,
	FieldSeek:           KindNumber,
	FieldDuration:       KindNumber,
	FieldVolume:         KindNumber,
	FieldBitRate:        KindString,
	FieldSampleRate:     KindString,
	FieldBitDepth:       KindString,
	FieldChannels:       KindNumber,
	FieldAlbumArt:       KindString,
	FieldURI:            KindString,
	FieldTrackType:      KindString,
	FieldPosition:       KindNumber,
	FieldRepeat:         KindBool,
	FieldRepeatSingle:   KindBool,
	FieldPlaylistLength: KindNumber,
}

// Known reports whether the engine has a rule for f.
func (f Field) Known() bool {
	_, ok := fieldKinds[f]
	return ok
}

// Kind returns the expected value type of f. Unknown fields report KindString.
func (f Field) Kind() ValueKind {
	return fieldKinds[f]
}

// EventName identifies an outbound change event.
type EventName string

const (
	EventTrackChange       EventName = "trackChange"
	EventStateChange       EventName = "stateChange"
	EventSeekChange        EventName = "seekChange"
	EventVolumeChange      EventName = "volumeChange"
	EventBitRateChange     EventName = "bitRateChange"
	EventSampleRateChange  EventName = "sampleRateChange"
	EventSampleDepthChange EventName = "sampleDepthChange"
	EventChannelsChange    EventName = "channelsChange"
	EventEncodingChange    EventName = "encodingChange"
	EventSongIDChange      EventName = "songIdChange"
	EventRepeatChange      EventName = "repeatChange"
	EventCoverChange       EventName = "coverChange"
	EventFile              EventName = "file"
	EventIdleStart         EventName = "idleStart"
	EventIdleStop          EventName = "idleStop"
)

// Display line slots.
const (
	LineSampleRate = iota
	LineSampleDepth
	LineBitRate
	LineChannels
	LineTrackType
	LinePlaylist
	LineRepeat

	DisplayLines
)

// LineEvent returns the event name for display slot n ("line0".."line6").
func LineEvent(n int) EventName {
	return EventName(fmt.Sprintf("line%d", n))
}

// LineIndex parses a display-line event name back to its slot.
func LineIndex(name EventName) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(string(name), "line%d", &n); err != nil {
		return 0, false
	}
	if n < 0 || n >= DisplayLines || LineEvent(n) != name {
		return 0, false
	}
	return n, true
}

// FieldValue is a single entry of a Snapshot.
type FieldValue struct {
	Field string
	Value any
}

// Snapshot is an ordered, possibly partial set of state fields. Order is the
// order in which changes are dispatched.
type Snapshot []FieldValue

// SnapshotFromMap builds a Snapshot from m with keys in lexical order.
func SnapshotFromMap(m map[string]any) Snapshot {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(Snapshot, 0, len(keys))
	for _, k := range keys {
		out = append(out, FieldValue{Field: k, Value: m[k]})
	}
	return out
}

// SnapshotFromJSON decodes a JSON object while keeping document key order.
func SnapshotFromJSON(data []byte) (Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("decode snapshot: expected JSON object")
	}
	var out Snapshot
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode snapshot key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("decode snapshot: unexpected key %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("decode snapshot field %q: %w", key, err)
		}
		out = append(out, FieldValue{Field: key, Value: normalizeValue(value)})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return out, nil
}
