package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"faceplate/internal/config"
)

// Play is one recorded track change.
type Play struct {
	ID        string    `json:"id"`
	Track     string    `json:"track"`
	State     string    `json:"state"`
	File      string    `json:"file,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Store manages play history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	defaultRecentLimit      = 20
)

// Open initializes or connects to the history database in the state directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.HistoryPath())
}

// OpenPath opens the database at path and applies migrations.
func OpenPath(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	store := &Store{db: db, path: filepath.Clean(path)}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts a play. Empty IDs and zero start times are filled in.
func (s *Store) Record(ctx context.Context, play Play) (Play, error) {
	if s == nil {
		return Play{}, errors.New("history store is nil")
	}
	if strings.TrimSpace(play.Track) == "" {
		return Play{}, errors.New("record play: track is required")
	}
	if play.ID == "" {
		play.ID = uuid.NewString()
	}
	if play.StartedAt.IsZero() {
		play.StartedAt = time.Now()
	}
	play.StartedAt = play.StartedAt.UTC()
	if err := s.exec(ctx,
		`INSERT INTO plays (id, track, state, started_at, file, session_id) VALUES (?, ?, ?, ?, ?, ?)`,
		play.ID,
		play.Track,
		play.State,
		play.StartedAt.Format(time.RFC3339Nano),
		nullableString(play.File),
		nullableString(play.SessionID),
	); err != nil {
		return Play{}, fmt.Errorf("insert play: %w", err)
	}
	return play, nil
}

// Recent returns the newest plays first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Play, error) {
	if s == nil {
		return nil, errors.New("history store is nil")
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, track, state, started_at, file, session_id FROM plays ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query plays: %w", err)
	}
	defer rows.Close()

	var plays []Play
	for rows.Next() {
		var (
			play      Play
			startedAt string
			file      sql.NullString
			session   sql.NullString
		)
		if err := rows.Scan(&play.ID, &play.Track, &play.State, &startedAt, &file, &session); err != nil {
			return nil, fmt.Errorf("scan play: %w", err)
		}
		play.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", startedAt, err)
		}
		play.File = file.String
		play.SessionID = session.String
		plays = append(plays, play)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plays: %w", err)
	}
	return plays, nil
}

// Count returns the number of stored plays.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s == nil {
		return 0, errors.New("history store is nil")
	}
	var n int
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM plays`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count plays: %w", err)
	}
	return n, nil
}

// Prune deletes plays that started before olderThan and reports how many.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	if s == nil {
		return 0, errors.New("history store is nil")
	}
	var res sql.Result
	ctx = ensureContext(ctx)
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, `DELETE FROM plays WHERE started_at < ?`, olderThan.UTC().Format(time.RFC3339Nano))
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("prune plays: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
