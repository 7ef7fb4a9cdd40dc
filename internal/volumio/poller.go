package volumio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"faceplate/internal/logging"
	"faceplate/internal/playerstate"
)

// Source fetches player snapshots.
type Source interface {
	FetchState(ctx context.Context) (playerstate.Snapshot, error)
	FetchQueueInfo(ctx context.Context) (playerstate.Snapshot, bool, error)
}

// Sink consumes player snapshots; *playerstate.Engine satisfies it.
type Sink interface {
	ApplyState(playerstate.Snapshot)
	ApplyQueueInfo(playerstate.Snapshot)
}

// Health summarizes recent poll outcomes.
type Health struct {
	Polls       int64     `json:"polls"`
	Failures    int       `json:"consecutive_failures"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	PlayState   string    `json:"play_state,omitempty"`
}

// Healthy reports whether the last poll succeeded.
func (h Health) Healthy() bool {
	return h.Polls > 0 && h.Failures == 0
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	// Playing is the cadence while the player reports "play".
	Playing time.Duration
	// Idle is the cadence otherwise and after failures.
	Idle   time.Duration
	Logger *slog.Logger
	// OnUnreachable is called once when polling starts failing.
	OnUnreachable func(error)
}

// Poller repeatedly fetches state and queue info and feeds them to a Sink.
// Polls run on a single goroutine so requests never overlap.
type Poller struct {
	source  Source
	sink    Sink
	playing time.Duration
	idle    time.Duration
	logger  *slog.Logger
	kick    chan struct{}
	onFail  func(error)

	mu     sync.Mutex
	health Health
}

// NewPoller constructs a poller.
func NewPoller(source Source, sink Sink, opts PollerOptions) *Poller {
	playing := opts.Playing
	if playing <= 0 {
		playing = time.Second
	}
	idle := opts.Idle
	if idle <= 0 {
		idle = 5 * time.Second
	}
	return &Poller{
		source:  source,
		sink:    sink,
		playing: playing,
		idle:    idle,
		logger:  logging.NewComponentLogger(opts.Logger, "volumio-poller"),
		kick:    make(chan struct{}, 1),
		onFail:  opts.OnUnreachable,
	}
}

// Run polls until ctx is canceled.
func (p *Poller) Run(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.logger.Info("player polling started",
		logging.Duration("playing_interval", p.playing),
		logging.Duration("idle_interval", p.idle),
	)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("player polling stopped")
			return nil
		case <-timer.C:
		case <-p.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		err := p.PollOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		timer.Reset(p.nextInterval(err))
	}
}

// Kick requests an immediate poll, for example right after a command.
func (p *Poller) Kick() {
	if p == nil {
		return
	}
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// PollOnce fetches state and queue info once.
func (p *Poller) PollOnce(ctx context.Context) error {
	snap, err := p.source.FetchState(ctx)
	if err != nil {
		p.recordFailure(ctx, err)
		return err
	}
	p.sink.ApplyState(snap)
	status := statusOf(snap)

	info, ok, err := p.source.FetchQueueInfo(ctx)
	if err != nil {
		p.recordFailure(ctx, err)
		return err
	}
	if ok {
		p.sink.ApplyQueueInfo(info)
	}
	p.recordSuccess(status)
	return nil
}

// Health returns the latest poll summary.
func (p *Poller) Health() Health {
	if p == nil {
		return Health{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.health
}

func (p *Poller) nextInterval(err error) time.Duration {
	if err != nil {
		return p.idle
	}
	if p.Health().PlayState == "play" {
		return p.playing
	}
	return p.idle
}

func (p *Poller) recordSuccess(status string) {
	p.mu.Lock()
	recovered := p.health.Failures > 0
	p.health.Polls++
	p.health.Failures = 0
	p.health.LastError = ""
	p.health.LastSuccess = time.Now()
	if status != "" {
		p.health.PlayState = status
	}
	p.mu.Unlock()
	if recovered {
		p.logger.Info("player reachable again")
	}
}

func (p *Poller) recordFailure(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	p.mu.Lock()
	p.health.Polls++
	p.health.Failures++
	p.health.LastError = err.Error()
	failures := p.health.Failures
	p.mu.Unlock()
	if failures == 1 {
		logging.WarnWithContext(p.logger, "player poll failed", "volumio_unreachable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check volumio.host and that the player is powered on"),
			logging.String(logging.FieldImpact, "display and panel LEDs stop updating until the player answers"),
		)
		if p.onFail != nil {
			p.onFail(err)
		}
		return
	}
	p.logger.Debug("player poll failed", logging.Error(err), logging.Int("consecutive_failures", failures))
}

func statusOf(snap playerstate.Snapshot) string {
	for _, fv := range snap {
		if fv.Field == string(playerstate.FieldStatus) {
			if s, ok := fv.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}
