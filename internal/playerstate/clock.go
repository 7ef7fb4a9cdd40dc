package playerstate

import "time"

// Clock supplies the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is the subset of *time.Timer the engine relies on.
type Timer interface {
	Stop() bool
}

// SystemClock is the wall-clock implementation of Clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (SystemClock) AfterFunc(d time.Duration, fn func()) Timer { return time.AfterFunc(d, fn) }

// task is a scheduled callback owned by exactly one component. Once canceled
// (or fired) its callback never runs, even if the underlying timer already
// expired and is waiting for the engine lock.
type task struct {
	timer Timer
	done  bool
	due   time.Time
}

func (t *task) cancel() {
	if t == nil || t.done {
		return
	}
	t.done = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *task) pending() bool {
	return t != nil && !t.done
}
