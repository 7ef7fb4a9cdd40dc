package history

import (
	"context"
	"log/slog"
	"time"

	"faceplate/internal/logging"
	"faceplate/internal/playerstate"
)

const recordTimeout = 2 * time.Second

// PlayerView reads the player state a play row is built from.
// *playerstate.Engine satisfies it.
type PlayerView interface {
	Value(field playerstate.Field) (any, bool)
	PlayState() string
}

// Recorder writes a play row on every trackChange event.
type Recorder struct {
	store     *Store
	player    PlayerView
	sessionID string
	logger    *slog.Logger
	onRecord  func(Play)
}

// NewRecorder constructs a recorder. onRecord, when set, runs after each
// successful insert.
func NewRecorder(store *Store, player PlayerView, sessionID string, logger *slog.Logger, onRecord func(Play)) *Recorder {
	return &Recorder{
		store:     store,
		player:    player,
		sessionID: sessionID,
		logger:    logging.NewComponentLogger(logger, "history"),
		onRecord:  onRecord,
	}
}

// Attach subscribes the recorder to bus.
func (r *Recorder) Attach(bus *playerstate.Bus) playerstate.Subscription {
	return bus.Subscribe(playerstate.EventTrackChange, r.Handle)
}

// Handle records track changes. State and file are read when the event is
// delivered, after the whole snapshot has been merged.
func (r *Recorder) Handle(evt playerstate.Event) {
	if r == nil || r.store == nil {
		return
	}
	switch evt.Name {
	case playerstate.EventTrackChange:
		track, _ := evt.Payload.(string)
		if track == "" {
			return
		}
		play := Play{Track: track, State: "stop", SessionID: r.sessionID, StartedAt: evt.At}
		if r.player != nil {
			if state := r.player.PlayState(); state != "" {
				play.State = state
			}
			if file, ok := r.player.Value(playerstate.FieldURI); ok {
				play.File, _ = file.(string)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		recorded, err := r.store.Record(ctx, play)
		if err != nil {
			logging.WarnWithContext(r.logger, "play history write failed", "history_write_failed",
				logging.String("track", track),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check free space in paths.state_dir"),
				logging.String(logging.FieldImpact, "this track is missing from play history"),
			)
			return
		}
		r.logger.Debug("play recorded", logging.String("play_id", recorded.ID))
		if r.onRecord != nil {
			r.onRecord(recorded)
		}
	}
}
