package playerstate

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestApplyStateIsIdempotent(t *testing.T) {
	engine, _, rec := newTestEngine(t, Options{})

	input := snap("status", "play", "title", "A", "volume", 50)
	engine.ApplyState(input)
	if got := len(rec.names()); got != 3 {
		t.Fatalf("first delivery emitted %d events, want 3: %v", got, rec.names())
	}
	rec.reset()

	engine.ApplyState(input)
	if got := rec.names(); len(got) != 0 {
		t.Fatalf("repeated delivery emitted %v, want nothing", got)
	}
}

func TestApplyStateNormalizesNumbers(t *testing.T) {
	engine, _, rec := newTestEngine(t, Options{})

	engine.ApplyState(snap("volume", 50))
	engine.ApplyState(snap("volume", 50.0))
	engine.ApplyState(SnapshotFromMap(map[string]any{"volume": int64(50)}))
	if got := rec.count(EventVolumeChange); got != 1 {
		t.Fatalf("volumeChange count = %d, want 1", got)
	}
}

func TestApplyStatePreservesAbsentFields(t *testing.T) {
	engine, _, _ := newTestEngine(t, Options{})

	engine.ApplyState(snap("title", "A", "artist", "B", "volume", 10))
	engine.ApplyState(snap("volume", 20))

	state := engine.State()
	want := map[string]any{"title": "A", "artist": "B", "volume": 20.0}
	if !reflect.DeepEqual(state, want) {
		t.Fatalf("state = %#v, want %#v", state, want)
	}
}

func TestUnknownFieldsAreStoredSilently(t *testing.T) {
	engine, _, rec := newTestEngine(t, Options{})

	engine.ApplyState(snap("service", "mpd", "consume", false))
	if got := rec.names(); len(got) != 0 {
		t.Fatalf("unknown fields emitted %v", got)
	}
	if v, ok := engine.Value("service"); !ok || v != "mpd" {
		t.Fatalf("service = %v (%v), want mpd", v, ok)
	}
}

func TestChangesDispatchInSnapshotOrder(t *testing.T) {
	engine, _, rec := newTestEngine(t, Options{})

	engine.ApplyState(snap("volume", 30, "status", "play", "uri", "music/a.flac"))
	want := []EventName{EventVolumeChange, EventStateChange, EventFile}
	if got := rec.names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestTrackChangeFollowsComposedString(t *testing.T) {
	engine, _, rec := newTestEngine(t, Options{})

	engine.ApplyState(snap("title", "Song", "artist", "", "album", "X"))
	engine.ApplyState(snap("artist", nil))
	engine.ApplyState(snap("album", "Y"))

	got := rec.payloads(EventTrackChange)
	want := []any{"Song - X", "Song - Y"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("trackChange payloads = %v, want %v", got, want)
	}
	if engine.TrackLine() != "Song - Y" {
		t.Fatalf("TrackLine() = %q", engine.TrackLine())
	}
}

func TestStateChangeOnlyOnDifferentStatus(t *testing.T) {
	t.Run("double play", func(t *testing.T) {
		engine, _, rec := newTestEngine(t, Options{})
		engine.ApplyState(snap("status", "play"))
		engine.ApplyState(snap("status", "play"))
		got := rec.payloads(EventStateChange)
		if !reflect.DeepEqual(got, []any{"play"}) {
			t.Fatalf("stateChange payloads = %v, want [play]", got)
		}
	})

	t.Run("initial stop is not a change", func(t *testing.T) {
		engine, _, rec := newTestEngine(t, Options{})
		engine.ApplyState(snap("status", "stop"))
		if got := rec.count(EventStateChange); got != 0 {
			t.Fatalf("stateChange count = %d, want 0", got)
		}
		if engine.PlayState() != "stop" {
			t.Fatalf("PlayState() = %q", engine.PlayState())
		}
	})
}

func seekDisplays(rec *recorder) []string {
	var out []string
	for _, p := range rec.payloads(EventSeekChange) {
		out = append(out, p.(SeekInfo).Display)
	}
	return out
}

func TestSeekThrottle(t *testing.T) {
	engine, clock, rec := newTestEngine(t, Options{})

	engine.ApplyState(snap("seek", 1000))
	clock.Advance(100 * time.Millisecond)
	engine.ApplyState(snap("seek", 2000))
	if v, _ := engine.Value(FieldSeek); v != 2000.0 {
		t.Fatalf("throttled seek not stored: %v", v)
	}
	clock.Advance(500 * time.Millisecond)
	engine.ApplyState(snap("seek", 3000))

	want := []string{"00:01 / 00:00", "00:03 / 00:00"}
	if got := seekDisplays(rec); !reflect.DeepEqual(got, want) {
		t.Fatalf("seek displays = %v, want %v", got, want)
	}

	clock.Advance(5 * time.Second)
	if got := seekDisplays(rec); !reflect.DeepEqual(got, want) {
		t.Fatalf("canceled settle still emitted: %v", got)
	}
}

func TestSeekSettleEmitsFinalValue(t *testing.T) {
	engine, clock, rec := newTestEngine(t, Options{})

	engine.ApplyState(snap("seek", 1000, "duration", 240))
	clock.Advance(100 * time.Millisecond)
	engine.ApplyState(snap("seek", 2000))

	clock.Advance(999 * time.Millisecond)
	if got := rec.count(EventSeekChange); got != 1 {
		t.Fatalf("seekChange before settle = %d, want 1", got)
	}
	clock.Advance(time.Millisecond)
	want := []string{"00:01 / 04:00", "00:02 / 04:00"}
	if got := seekDisplays(rec); !reflect.DeepEqual(got, want) {
		t.Fatalf("seek displays = %v, want %v", got, want)
	}
}

func TestSeekMalformedDuration(t *testing.T) {
	engine, _, rec := newTestEngine(t, Options{})

	engine.ApplyState(snap("seek", 5000, "duration", "abc"))
	payloads := rec.payloads(EventSeekChange)
	if len(payloads) != 1 {
		t.Fatalf("seekChange count = %d, want 1", len(payloads))
	}
	info := payloads[0].(SeekInfo)
	if info.Display != "00:05 / 00:00" || info.Ratio != 0 {
		t.Fatalf("seek info = %+v", info)
	}
}

func TestIdleStartsAfterQuietPeriod(t *testing.T) {
	engine, clock, rec := newTestEngine(t, Options{})

	engine.ArmIdle(100 * time.Millisecond)
	clock.Advance(99 * time.Millisecond)
	if rec.count(EventIdleStart) != 0 {
		t.Fatal("idleStart fired early")
	}
	clock.Advance(time.Millisecond)
	if got := rec.count(EventIdleStart); got != 1 {
		t.Fatalf("idleStart count = %d, want 1", got)
	}
	clock.Advance(time.Second)
	if got := rec.count(EventIdleStart); got != 1 {
		t.Fatalf("idleStart repeated: %d", got)
	}
	if st := engine.Idle(); !st.Armed || !st.Idle {
		t.Fatalf("idle status = %+v", st)
	}
}

func TestIdleActivityRestartsCountdown(t *testing.T) {
	engine, clock, rec := newTestEngine(t, Options{})

	engine.ArmIdle(100 * time.Millisecond)
	clock.Advance(50 * time.Millisecond)
	engine.ApplyState(snap("volume", 10))
	clock.Advance(50 * time.Millisecond)
	if rec.count(EventIdleStart) != 0 {
		t.Fatal("idleStart fired at 100ms despite activity at 50ms")
	}
	clock.Advance(50 * time.Millisecond)
	if got := rec.count(EventIdleStart); got != 1 {
		t.Fatalf("idleStart count at 150ms = %d, want 1", got)
	}
}

func TestIdleStopsOnActivity(t *testing.T) {
	engine, clock, rec := newTestEngine(t, Options{})

	engine.ArmIdle(100 * time.Millisecond)
	clock.Advance(100 * time.Millisecond)
	engine.ApplyState(snap("status", "play"))

	want := []EventName{EventIdleStart, EventIdleStop, EventStateChange}
	if got := rec.names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if engine.Idle().Idle {
		t.Fatal("still idle after activity")
	}
	clock.Advance(100 * time.Millisecond)
	if got := rec.count(EventIdleStart); got != 2 {
		t.Fatalf("idleStart count = %d, want 2", got)
	}
}

func TestIdleRearmDoesNotStack(t *testing.T) {
	engine, clock, rec := newTestEngine(t, Options{})

	engine.ArmIdle(100 * time.Millisecond)
	clock.Advance(60 * time.Millisecond)
	engine.ArmIdle(100 * time.Millisecond)
	clock.Advance(60 * time.Millisecond)
	if rec.count(EventIdleStart) != 0 {
		t.Fatal("first countdown survived rearm")
	}
	clock.Advance(40 * time.Millisecond)
	clock.Advance(time.Second)
	if got := rec.count(EventIdleStart); got != 1 {
		t.Fatalf("idleStart count = %d, want 1", got)
	}
}

func TestIdleRearmWhileIdleEmitsStop(t *testing.T) {
	engine, clock, rec := newTestEngine(t, Options{})

	engine.ArmIdle(100 * time.Millisecond)
	clock.Advance(100 * time.Millisecond)
	engine.ArmIdle(0)
	want := []EventName{EventIdleStart, EventIdleStop}
	if got := rec.names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if st := engine.Idle(); st.Timeout != 100*time.Millisecond || st.Idle {
		t.Fatalf("idle status after rearm = %+v", st)
	}
}

func TestIdleDisarm(t *testing.T) {
	t.Run("before expiry cancels countdown", func(t *testing.T) {
		engine, clock, rec := newTestEngine(t, Options{})
		engine.ArmIdle(100 * time.Millisecond)
		clock.Advance(50 * time.Millisecond)
		engine.DisarmIdle()
		clock.Advance(time.Second)
		if got := rec.names(); len(got) != 0 {
			t.Fatalf("events after disarm = %v", got)
		}
	})

	t.Run("while idle emits stop once", func(t *testing.T) {
		engine, clock, rec := newTestEngine(t, Options{})
		engine.ArmIdle(100 * time.Millisecond)
		clock.Advance(100 * time.Millisecond)
		engine.DisarmIdle()
		engine.DisarmIdle()
		if got := rec.count(EventIdleStop); got != 1 {
			t.Fatalf("idleStop count = %d, want 1", got)
		}
		if st := engine.Idle(); st.Armed || st.Idle {
			t.Fatalf("idle status = %+v", st)
		}
	})

	t.Run("activity while disarmed is ignored", func(t *testing.T) {
		engine, clock, rec := newTestEngine(t, Options{})
		engine.SignalActivity()
		engine.ApplyState(snap("volume", 5))
		clock.Advance(time.Hour)
		want := []EventName{EventVolumeChange}
		if got := rec.names(); !reflect.DeepEqual(got, want) {
			t.Fatalf("events = %v, want %v", got, want)
		}
		if clock.pending() != 0 {
			t.Fatalf("disarmed engine left %d timers", clock.pending())
		}
	})
}

func TestCoverSentinelIsCanceledByRealCover(t *testing.T) {
	engine, clock, rec := newTestEngine(t, Options{})

	engine.ApplyState(snap("albumart", "/albumart"))
	clock.Advance(2 * time.Second)
	engine.ApplyState(snap("albumart", "http://cdn.example/cover.jpg"))
	clock.Advance(10 * time.Second)

	got := rec.payloads(EventCoverChange)
	if !reflect.DeepEqual(got, []any{"http://cdn.example/cover.jpg"}) {
		t.Fatalf("coverChange payloads = %v", got)
	}
}

func TestCoverSentinelEmitsAfterGrace(t *testing.T) {
	engine, clock, rec := newTestEngine(t, Options{})

	engine.ApplyState(snap("albumart", "/albumart"))
	clock.Advance(4999 * time.Millisecond)
	if rec.count(EventCoverChange) != 0 {
		t.Fatal("sentinel emitted before grace period")
	}
	clock.Advance(time.Millisecond)
	got := rec.payloads(EventCoverChange)
	if !reflect.DeepEqual(got, []any{"http://localhost:3000/albumart"}) {
		t.Fatalf("coverChange payloads = %v", got)
	}
}

func TestCoverURLNormalization(t *testing.T) {
	tests := []struct {
		name  string
		host  string
		value string
		want  string
	}{
		{"absolute http", "http://volumio.local", "http://cdn/a.jpg", "http://cdn/a.jpg"},
		{"absolute https mixed case", "http://volumio.local", "HTTPS://cdn/a.jpg", "HTTPS://cdn/a.jpg"},
		{"leading slash", "http://volumio.local", "/albumart?path=/mnt/a", "http://volumio.local/albumart?path=/mnt/a"},
		{"missing slash", "http://volumio.local", "albumart?web=x", "http://volumio.local/albumart?web=x"},
		{"host trailing slash", "http://volumio.local/", "/music/a.png", "http://volumio.local/music/a.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _, rec := newTestEngine(t, Options{Host: tt.host})
			engine.ApplyState(snap("albumart", tt.value))
			got := rec.payloads(EventCoverChange)
			if !reflect.DeepEqual(got, []any{tt.want}) {
				t.Fatalf("coverChange = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestDisplayLines(t *testing.T) {
	engine, _, rec := newTestEngine(t, Options{})

	engine.ApplyState(snap(
		"samplerate", "44.1 kHz",
		"bitdepth", "16 bit",
		"bitrate", "320 Kbps",
		"channels", 2,
		"trackType", "AudioFLAC",
		"repeat", true,
	))

	wantNames := []EventName{
		EventSampleRateChange, LineEvent(0),
		EventSampleDepthChange, LineEvent(1),
		EventBitRateChange, LineEvent(2),
		EventChannelsChange, LineEvent(3),
		EventEncodingChange, LineEvent(4),
		EventRepeatChange, LineEvent(6),
	}
	if got := rec.names(); !reflect.DeepEqual(got, wantNames) {
		t.Fatalf("events = %v, want %v", got, wantNames)
	}
	lines := map[EventName]string{
		LineEvent(0): "Sample Rate : 44.1 kHz",
		LineEvent(1): "Sample Depth : 16 bit",
		LineEvent(2): "Bit Rate : 320 Kbps",
		LineEvent(3): "Channels : 2",
		LineEvent(4): "Track Type : FLAC",
		LineEvent(6): "Repeat : true",
	}
	for name, want := range lines {
		got := rec.payloads(name)
		if len(got) != 1 || got[0] != want {
			t.Errorf("%s = %v, want %q", name, got, want)
		}
	}
	if got := rec.payloads(EventEncodingChange); got[0] != "FLAC" {
		t.Errorf("encodingChange = %v", got)
	}
}

func TestRepeatFieldsEmitIndependently(t *testing.T) {
	engine, _, rec := newTestEngine(t, Options{})

	engine.ApplyState(snap("repeat", true, "repeatSingle", false))
	got := rec.payloads(LineEvent(LineRepeat))
	want := []any{"Repeat : true", "Repeat : false"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("line6 = %v, want %v", got, want)
	}
	if rec.count(EventRepeatChange) != 2 {
		t.Fatalf("repeatChange count = %d", rec.count(EventRepeatChange))
	}
}

func TestPlaylistLine(t *testing.T) {
	engine, _, rec := newTestEngine(t, Options{})

	engine.ApplyQueueInfo(snap("playlistlength", 4))
	if got := rec.names(); len(got) != 0 {
		t.Fatalf("playlistlength without position emitted %v", got)
	}

	engine.ApplyState(snap("position", 2))
	engine.ApplyQueueInfo(snap("playlistlength", 12))
	engine.ApplyState(snap("position", "bogus"))

	if got := rec.payloads(EventSongIDChange); !reflect.DeepEqual(got, []any{3, 1}) {
		t.Fatalf("songIdChange = %v", got)
	}
	want := []any{"Playlist : 3 / 4", "Playlist : 3 / 12", "Playlist : 1 / 12"}
	if got := rec.payloads(LineEvent(LinePlaylist)); !reflect.DeepEqual(got, want) {
		t.Fatalf("line5 = %v, want %v", got, want)
	}
}

func TestPlaylistLineDefaultsTotal(t *testing.T) {
	engine, _, rec := newTestEngine(t, Options{})

	engine.ApplyState(snap("position", 0))
	if got := rec.payloads(LineEvent(LinePlaylist)); !reflect.DeepEqual(got, []any{"Playlist : 1 / 1"}) {
		t.Fatalf("line5 = %v", got)
	}
}

func TestListenerPanicDoesNotBlockOthers(t *testing.T) {
	engine, _, _ := newTestEngine(t, Options{})
	after := &recorder{}
	engine.Subscribe(EventStateChange, func(Event) { panic("boom") })
	engine.Subscribe(EventStateChange, after.listen)

	engine.ApplyState(snap("status", "play"))
	engine.ApplyState(snap("status", "pause"))
	if got := after.payloads(EventStateChange); !reflect.DeepEqual(got, []any{"play", "pause"}) {
		t.Fatalf("later listener got %v", got)
	}
}

func TestListenerMayCallBackIntoEngine(t *testing.T) {
	engine, _, rec := newTestEngine(t, Options{})
	engine.Subscribe(EventStateChange, func(Event) {
		engine.ApplyState(snap("volume", 1))
	})

	engine.ApplyState(snap("status", "play"))
	want := []EventName{EventStateChange, EventVolumeChange}
	if got := rec.names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestUnsubscribe(t *testing.T) {
	engine, _, _ := newTestEngine(t, Options{})
	rec := &recorder{}
	id := engine.Subscribe(EventVolumeChange, rec.listen)
	engine.ApplyState(snap("volume", 1))
	if !engine.Unsubscribe(id) {
		t.Fatal("Unsubscribe reported missing subscription")
	}
	if engine.Unsubscribe(id) {
		t.Fatal("second Unsubscribe succeeded")
	}
	engine.ApplyState(snap("volume", 2))
	if got := rec.count(EventVolumeChange); got != 1 {
		t.Fatalf("volumeChange after unsubscribe = %d", got)
	}
}

func TestCloseCancelsPendingWork(t *testing.T) {
	engine, clock, rec := newTestEngine(t, Options{})
	engine.ArmIdle(time.Second)
	engine.ApplyState(snap("albumart", "/albumart"))
	engine.Close()
	engine.ApplyState(snap("status", "play"))
	clock.Advance(time.Minute)
	if got := rec.names(); len(got) != 0 {
		t.Fatalf("closed engine emitted %v", got)
	}
}

func TestEventsCarryClockTime(t *testing.T) {
	engine, clock, rec := newTestEngine(t, Options{})
	clock.Advance(3 * time.Second)
	engine.ApplyState(snap("uri", "mnt/USB/a.flac"))
	now := clock.Now()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 1 || !rec.events[0].At.Equal(now) {
		t.Fatalf("event time = %+v, want %v", rec.events, now)
	}
	if !strings.HasPrefix(rec.events[0].Payload.(string), "mnt/") {
		t.Fatalf("file payload transformed: %v", rec.events[0].Payload)
	}
}
