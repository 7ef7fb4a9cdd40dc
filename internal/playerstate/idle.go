package playerstate

import (
	"time"

	"faceplate/internal/logging"
)

// IdleStatus is a point-in-time view of idle detection.
type IdleStatus struct {
	Armed    bool          `json:"armed"`
	Idle     bool          `json:"idle"`
	Timeout  time.Duration `json:"timeout"`
	Deadline time.Time     `json:"deadline,omitempty"`
}

// idleTimer holds idle detection state. It is only touched under the engine
// lock; idle implies armed.
type idleTimer struct {
	armed     bool
	idle      bool
	timeout   time.Duration
	countdown *task
}

func (t *idleTimer) status() IdleStatus {
	st := IdleStatus{Armed: t.armed, Idle: t.idle, Timeout: t.timeout}
	if t.countdown.pending() {
		st.Deadline = t.countdown.due
	}
	return st
}

func (e *Engine) armIdle(timeout time.Duration) {
	if timeout > 0 {
		e.idle.timeout = timeout
	}
	wasIdle := e.idle.idle
	e.idle.armed = true
	e.idle.idle = false
	e.restartCountdown()
	e.logger.Debug("idle detection armed", logging.Duration("timeout", e.idle.timeout))
	if wasIdle {
		e.emit(EventIdleStop, nil)
	}
}

func (e *Engine) disarmIdle() {
	if !e.idle.armed {
		return
	}
	wasIdle := e.idle.idle
	e.idle.armed = false
	e.idle.idle = false
	e.idle.countdown.cancel()
	e.idle.countdown = nil
	e.logger.Debug("idle detection disarmed")
	if wasIdle {
		e.emit(EventIdleStop, nil)
	}
}

// activity restarts the countdown and leaves the idle state if needed.
func (e *Engine) activity() {
	if !e.idle.armed {
		return
	}
	wasIdle := e.idle.idle
	e.idle.idle = false
	e.restartCountdown()
	if wasIdle {
		e.logger.Info("idle stopped")
		e.emit(EventIdleStop, nil)
	}
}

func (e *Engine) restartCountdown() {
	e.idle.countdown.cancel()
	e.idle.countdown = e.schedule(e.idle.timeout, e.idleExpired)
}

func (e *Engine) idleExpired() {
	if !e.idle.armed || e.idle.idle {
		return
	}
	e.idle.idle = true
	e.logger.Info("idle started", logging.Duration("quiet_for", e.idle.timeout))
	e.emit(EventIdleStart, nil)
}
