package playerstate

import (
	"sync"
	"testing"
	"time"

	"faceplate/internal/logging"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward, firing due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.fn()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

// pending counts timers that have neither fired nor been stopped.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) names() []EventName {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventName, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Name)
	}
	return out
}

func (r *recorder) payloads(name EventName) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, evt := range r.events {
		if evt.Name == name {
			out = append(out, evt.Payload)
		}
	}
	return out
}

func (r *recorder) count(name EventName) int {
	return len(r.payloads(name))
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *fakeClock, *recorder) {
	t.Helper()
	clock := newFakeClock()
	opts.Clock = clock
	opts.Logger = logging.NewNop()
	engine := New(opts)
	t.Cleanup(engine.Close)
	rec := &recorder{}
	engine.SubscribeAll(rec.listen)
	return engine, clock, rec
}

// snap builds an ordered snapshot from alternating field/value arguments.
func snap(kv ...any) Snapshot {
	out := make(Snapshot, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, FieldValue{Field: kv[i].(string), Value: kv[i+1]})
	}
	return out
}

func TestTaskCancelIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	fired := 0
	tk := &task{}
	tk.timer = clock.AfterFunc(time.Second, func() { fired++ })
	tk.cancel()
	tk.cancel()
	var nilTask *task
	nilTask.cancel()
	if nilTask.pending() {
		t.Fatal("nil task reported pending")
	}
	clock.Advance(2 * time.Second)
	if fired != 0 {
		t.Fatalf("canceled timer fired %d times", fired)
	}
	if tk.pending() {
		t.Fatal("canceled task still pending")
	}
}
