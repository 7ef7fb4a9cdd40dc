package volumio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"faceplate/internal/logging"
	"faceplate/internal/playerstate"
)

type fakeSource struct {
	mu       sync.Mutex
	state    playerstate.Snapshot
	queueLen int
	err      error
	calls    int
	inFlight int
	overlap  bool
}

func (s *fakeSource) FetchState(context.Context) (playerstate.Snapshot, error) {
	s.mu.Lock()
	s.calls++
	s.inFlight++
	if s.inFlight > 1 {
		s.overlap = true
	}
	state, err := s.state, s.err
	s.mu.Unlock()
	time.Sleep(time.Millisecond)
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	return state, err
}

func (s *fakeSource) FetchQueueInfo(context.Context) (playerstate.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queueLen == 0 {
		return nil, false, nil
	}
	return playerstate.Snapshot{{Field: "playlistlength", Value: float64(s.queueLen)}}, true, nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeSink struct {
	mu     sync.Mutex
	states []playerstate.Snapshot
	queues []playerstate.Snapshot
}

func (s *fakeSink) ApplyState(snap playerstate.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, snap)
}

func (s *fakeSink) ApplyQueueInfo(snap playerstate.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues = append(s.queues, snap)
}

func TestPollOnceFeedsSink(t *testing.T) {
	source := &fakeSource{
		state:    playerstate.Snapshot{{Field: "status", Value: "play"}},
		queueLen: 4,
	}
	sink := &fakeSink{}
	poller := NewPoller(source, sink, PollerOptions{Logger: logging.NewNop()})

	if err := poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if len(sink.states) != 1 || len(sink.queues) != 1 {
		t.Fatalf("states=%d queues=%d", len(sink.states), len(sink.queues))
	}
	health := poller.Health()
	if !health.Healthy() || health.PlayState != "play" {
		t.Fatalf("health = %+v", health)
	}
	if poller.nextInterval(nil) != time.Second {
		t.Fatalf("playing interval = %v", poller.nextInterval(nil))
	}
}

func TestPollOnceSkipsEmptyQueue(t *testing.T) {
	source := &fakeSource{state: playerstate.Snapshot{{Field: "status", Value: "stop"}}}
	sink := &fakeSink{}
	poller := NewPoller(source, sink, PollerOptions{Logger: logging.NewNop()})

	if err := poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if len(sink.queues) != 0 {
		t.Fatalf("expected no queue info, got %v", sink.queues)
	}
	if poller.nextInterval(nil) != 5*time.Second {
		t.Fatalf("stopped interval = %v", poller.nextInterval(nil))
	}
}

func TestPollFailureTracksHealth(t *testing.T) {
	source := &fakeSource{err: ErrUnavailable}
	var notified []error
	poller := NewPoller(source, &fakeSink{}, PollerOptions{
		Logger:        logging.NewNop(),
		OnUnreachable: func(err error) { notified = append(notified, err) },
	})

	for i := 0; i < 3; i++ {
		if err := poller.PollOnce(context.Background()); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("PollOnce error = %v", err)
		}
	}
	health := poller.Health()
	if health.Healthy() || health.Failures != 3 || health.LastError == "" {
		t.Fatalf("health = %+v", health)
	}
	if len(notified) != 1 {
		t.Fatalf("OnUnreachable called %d times, want 1", len(notified))
	}
	if poller.nextInterval(errors.New("x")) != 5*time.Second {
		t.Fatal("failures should back off to the idle cadence")
	}

	source.mu.Lock()
	source.err = nil
	source.mu.Unlock()
	if err := poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if !poller.Health().Healthy() {
		t.Fatalf("health after recovery = %+v", poller.Health())
	}
}

func TestRunPollsWithoutOverlap(t *testing.T) {
	source := &fakeSource{state: playerstate.Snapshot{{Field: "status", Value: "play"}}}
	poller := NewPoller(source, &fakeSink{}, PollerOptions{
		Playing: 5 * time.Millisecond,
		Idle:    time.Hour,
		Logger:  logging.NewNop(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for source.callCount() < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if source.callCount() < 5 {
		t.Fatalf("expected repeated polls, got %d", source.callCount())
	}
	if source.overlap {
		t.Fatal("polls overlapped")
	}
}

func TestKickTriggersImmediatePoll(t *testing.T) {
	source := &fakeSource{state: playerstate.Snapshot{{Field: "status", Value: "stop"}}}
	poller := NewPoller(source, &fakeSink{}, PollerOptions{Playing: time.Hour, Idle: time.Hour, Logger: logging.NewNop()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = poller.Run(ctx) }()

	waitFor := func(n int) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for source.callCount() < n {
			if time.Now().After(deadline) {
				t.Fatalf("expected %d polls, got %d", n, source.callCount())
			}
			time.Sleep(time.Millisecond)
		}
	}
	waitFor(1)
	poller.Kick()
	waitFor(2)
}
