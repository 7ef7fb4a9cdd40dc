package playerstate

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// SeekInfo is the formatted seek descriptor carried by seekChange.
type SeekInfo struct {
	Display string  `json:"display"`
	Ratio   float64 `json:"ratio"`
}

// ComposeTrack renders "title - artist - album", skipping empty parts after
// the title.
func ComposeTrack(title, artist, album any) string {
	var b strings.Builder
	b.WriteString(stringify(title))
	for _, part := range []any{artist, album} {
		if s := stringify(part); s != "" {
			b.WriteString(" - ")
			b.WriteString(s)
		}
	}
	return b.String()
}

// FormatSeek builds the seek descriptor from seek (milliseconds) and duration
// (seconds). Unparsable inputs fall back to "" for elapsed, "00:00" for the
// total and 0 for the ratio.
func FormatSeek(seek, duration any) SeekInfo {
	seekMS, seekOK := toNumber(seek)
	durSec, durOK := toNumber(duration)

	ratio := 0.0
	if seekOK && durOK && durSec != 0 {
		ratio = seekMS / (durSec * 1000)
		if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
			ratio = 0
		}
	}

	elapsed := ""
	if seekOK {
		elapsed = clockString(seekMS / 1000)
	}
	total := "00:00"
	if durOK {
		total = clockString(durSec)
	}
	return SeekInfo{Display: elapsed + " / " + total, Ratio: ratio}
}

// clockString renders seconds as mm:ss. Minutes are not wrapped at the hour.
func clockString(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	whole := int64(seconds)
	return fmt.Sprintf("%02d:%02d", whole/60, whole%60)
}

func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	default:
		if f, ok := toNumber(v); ok {
			return f != 0
		}
		return true
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// parseLeadingInt reads an integer prefix the way lenient players report
// playlist indexes ("3", " 4 ", "7.0", "2abc").
func parseLeadingInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(t), true
	case string:
		s := strings.TrimSpace(t)
		end := 0
		for end < len(s) {
			c := s[end]
			if (c == '-' || c == '+') && end == 0 {
				end++
				continue
			}
			if c < '0' || c > '9' {
				break
			}
			end++
		}
		n, err := strconv.Atoi(s[:end])
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		f, ok := toNumber(v)
		if !ok {
			return 0, false
		}
		return int(f), true
	}
}

var trackTypeNoise = regexp.MustCompile(`(?i)audio`)

func cleanTrackType(v any) string {
	return trackTypeNoise.ReplaceAllString(stringify(v), "")
}

func isRemoteURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// joinHost returns host and path joined by exactly one slash.
func joinHost(host, path string) string {
	return strings.TrimRight(host, "/") + "/" + strings.TrimLeft(path, "/")
}

// normalizeValue converts decoded numbers to float64 so equal values compare
// equal regardless of how they were produced.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = normalizeValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = normalizeValue(inner)
		}
		return out
	default:
		return v
	}
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
