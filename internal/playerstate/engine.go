package playerstate

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"faceplate/internal/logging"
)

// Defaults applied by New when Options leaves a value unset.
const (
	DefaultHost         = "http://localhost:3000"
	DefaultSeekThrottle = 500 * time.Millisecond
	DefaultSeekSettle   = time.Second
	DefaultCoverGrace   = 5 * time.Second
	DefaultIdleTimeout  = 900 * time.Second

	// initialPlayState is what the engine assumes before the first status push.
	initialPlayState = "stop"
	// coverSentinel is the path the player reports when a track has no artwork.
	coverSentinel = "/albumart"
)

// Options configures an Engine. Zero values select the defaults above.
type Options struct {
	// Host is the player base URL used to absolutize relative cover paths.
	Host         string
	SeekThrottle time.Duration
	// SeekSettle is how long after a throttled seek update the final value is
	// flushed. Values not above SeekThrottle are raised to twice the throttle.
	SeekSettle  time.Duration
	CoverGrace  time.Duration
	IdleTimeout time.Duration
	Clock       Clock
	Logger      *slog.Logger
}

// Engine diffs player snapshots and publishes change events.
type Engine struct {
	host         string
	seekThrottle time.Duration
	seekSettle   time.Duration
	coverGrace   time.Duration
	clock        Clock
	logger       *slog.Logger
	bus          *Bus
	progress     *logging.ProgressSampler

	mu           sync.Mutex
	closed       bool
	state        map[string]any
	playState    string
	trackLine    string
	seekLine     string
	lastSeekEmit time.Time
	settle       *task
	cover        *task
	idle         idleTimer
}

// New constructs an engine with an empty state snapshot.
func New(opts Options) *Engine {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = DefaultHost
	}
	throttle := opts.SeekThrottle
	if throttle <= 0 {
		throttle = DefaultSeekThrottle
	}
	settle := opts.SeekSettle
	if settle <= 0 {
		settle = DefaultSeekSettle
	}
	if settle <= throttle {
		settle = 2 * throttle
	}
	grace := opts.CoverGrace
	if grace <= 0 {
		grace = DefaultCoverGrace
	}
	idleTimeout := opts.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := logging.NewComponentLogger(opts.Logger, "player-state")
	return &Engine{
		host:         host,
		seekThrottle: throttle,
		seekSettle:   settle,
		coverGrace:   grace,
		clock:        clock,
		logger:       logger,
		bus:          NewBus(opts.Logger),
		progress:     logging.NewProgressSampler(10),
		state:        make(map[string]any),
		playState:    initialPlayState,
		idle:         idleTimer{timeout: idleTimeout},
	}
}

// Bus exposes the change event stream.
func (e *Engine) Bus() *Bus {
	if e == nil {
		return nil
	}
	return e.bus
}

// Subscribe registers fn for a single event name.
func (e *Engine) Subscribe(name EventName, fn Listener) Subscription {
	return e.Bus().Subscribe(name, fn)
}

// SubscribeAll registers fn for every event.
func (e *Engine) SubscribeAll(fn Listener) Subscription {
	return e.Bus().SubscribeAll(fn)
}

// Unsubscribe removes a listener registered through Subscribe or SubscribeAll.
func (e *Engine) Unsubscribe(id Subscription) bool {
	return e.Bus().Unsubscribe(id)
}

// ApplyState merges a player state snapshot and dispatches changed fields in
// snapshot order.
func (e *Engine) ApplyState(snapshot Snapshot) {
	e.apply("state", snapshot)
}

// ApplyQueueInfo merges ancillary queue metadata such as playlistlength.
func (e *Engine) ApplyQueueInfo(snapshot Snapshot) {
	e.apply("queue", snapshot)
}

func (e *Engine) apply(source string, snapshot Snapshot) {
	if e == nil || len(snapshot) == 0 {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	changes := make([]FieldValue, 0, len(snapshot))
	for _, entry := range snapshot {
		value := normalizeValue(entry.Value)
		if prev, ok := e.state[entry.Field]; ok && equalValues(prev, value) {
			continue
		}
		e.state[entry.Field] = value
		changes = append(changes, FieldValue{Field: entry.Field, Value: value})
	}
	for _, change := range changes {
		e.dispatch(Field(change.Field), change.Value)
	}
	if len(changes) > 0 {
		e.logger.Debug("snapshot applied",
			logging.String("source", source),
			logging.Int("fields", len(snapshot)),
			logging.Int("changed", len(changes)),
		)
	}
	e.mu.Unlock()
	e.bus.drain()
}

// State returns a copy of the stored snapshot.
func (e *Engine) State() map[string]any {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]any, len(e.state))
	for k, v := range e.state {
		out[k] = v
	}
	return out
}

// Value returns a single stored field.
func (e *Engine) Value(field Field) (any, bool) {
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.state[string(field)]
	return v, ok
}

// PlayState returns the last accepted playback status.
func (e *Engine) PlayState() string {
	if e == nil {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playState
}

// TrackLine returns the last emitted track descriptor.
func (e *Engine) TrackLine() string {
	if e == nil {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trackLine
}

// ArmIdle starts or restarts idle detection. A non-positive timeout keeps the
// previously configured one.
func (e *Engine) ArmIdle(timeout time.Duration) {
	e.locked(func() { e.armIdle(timeout) })
}

// DisarmIdle stops idle detection, emitting idleStop if currently idle.
func (e *Engine) DisarmIdle() {
	e.locked(e.disarmIdle)
}

// SignalActivity reports activity that did not come through a snapshot, such
// as a panel button press.
func (e *Engine) SignalActivity() {
	e.locked(e.activity)
}

// Idle reports the idle timer state.
func (e *Engine) Idle() IdleStatus {
	if e == nil {
		return IdleStatus{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idle.status()
}

// Close cancels every pending timer. Later snapshots are ignored.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.settle.cancel()
	e.cover.cancel()
	e.idle.countdown.cancel()
}

func (e *Engine) locked(fn func()) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	fn()
	e.mu.Unlock()
	e.bus.drain()
}

// schedule runs fn under the engine lock after d unless the returned task is
// canceled first.
func (e *Engine) schedule(d time.Duration, fn func()) *task {
	t := &task{due: e.clock.Now().Add(d)}
	t.timer = e.clock.AfterFunc(d, func() {
		e.mu.Lock()
		if t.done || e.closed {
			e.mu.Unlock()
			return
		}
		t.done = true
		fn()
		e.mu.Unlock()
		e.bus.drain()
	})
	return t
}

// emit queues an event; it is delivered once the engine lock is released.
func (e *Engine) emit(name EventName, payload any) {
	e.bus.enqueue(Event{Name: name, Payload: payload, At: e.clock.Now()})
}
