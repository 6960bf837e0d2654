// Package history persists what the user launched, in SQLite. The
// launcher is the single writer; counts feed the resting-list ranking and
// the history subcommand reads recent activity.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// walCheckpointInterval is how often the WAL file is checkpointed so it
// cannot grow without bound while the launcher stays open.
const walCheckpointInterval = 5 * time.Minute

// Kind says what a launch record points at.
type Kind string

const (
	// KindApp is a desktop application; Target is its .desktop path.
	KindApp Kind = "app"
	// KindBackend is a search backend result; Target is AppId + result id.
	KindBackend Kind = "backend"
	// KindCommand is a configured colon command; Target is its name.
	KindCommand Kind = "command"
)

// Launch is one recorded activation.
type Launch struct {
	ID               int64
	SessionID        string
	Kind             Kind
	Target           string
	Label            string // display name at activation time
	Query            string // what the user had typed
	LaunchedAtUnixMs int64
}

// NewSessionID returns the identity shared by every launch recorded in one
// launcher run.
func NewSessionID() string {
	return uuid.New().String()
}

// Store is the SQLite-backed launch history.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	stopCh    chan struct{}
	stoppedCh chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open opens (creating if needed) the database at dbPath and migrates its
// schema. A nil logger discards diagnostics.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	// modernc.org/sqlite takes pragmas in the DSN.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	// SQLite behaves best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to history database: %w", err)
	}

	s := &Store{
		db:        db,
		logger:    logger,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}

	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}

	go s.walCheckpointLoop()

	return s, nil
}

// Close checkpoints and closes the database. Safe to call repeatedly.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.stoppedCh

		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// RecordLaunch stores one activation. The timestamp defaults to now.
func (s *Store) RecordLaunch(ctx context.Context, l *Launch) error {
	if l == nil {
		return errors.New("launch cannot be nil")
	}
	if l.Kind == "" {
		return errors.New("launch kind is required")
	}
	if l.Target == "" {
		return errors.New("launch target is required")
	}
	if l.LaunchedAtUnixMs == 0 {
		l.LaunchedAtUnixMs = time.Now().UnixMilli()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO launches (session_id, kind, target, label, query, launched_at_unix_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, l.SessionID, string(l.Kind), l.Target, l.Label, l.Query, l.LaunchedAtUnixMs)
	if err != nil {
		return fmt.Errorf("record launch: %w", err)
	}
	return nil
}

// Counts returns how often each target of the given kind was launched.
func (s *Store) Counts(ctx context.Context, kind Kind) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target, COUNT(*) FROM launches WHERE kind = ? GROUP BY target
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("count launches: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var target string
		var n int
		if err := rows.Scan(&target, &n); err != nil {
			return nil, fmt.Errorf("scan launch count: %w", err)
		}
		counts[target] = n
	}
	return counts, rows.Err()
}

// Recent returns the newest launches across all kinds, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Launch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, kind, target, label, query, launched_at_unix_ms
		FROM launches
		ORDER BY launched_at_unix_ms DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent launches: %w", err)
	}
	defer rows.Close()

	var launches []Launch
	for rows.Next() {
		var l Launch
		var kind string
		if err := rows.Scan(&l.ID, &l.SessionID, &kind, &l.Target, &l.Label, &l.Query, &l.LaunchedAtUnixMs); err != nil {
			return nil, fmt.Errorf("scan launch: %w", err)
		}
		l.Kind = Kind(kind)
		launches = append(launches, l)
	}
	return launches, rows.Err()
}

// PruneOlderThan deletes launches recorded before cutoffUnixMs and returns
// how many went away.
func (s *Store) PruneOlderThan(ctx context.Context, cutoffUnixMs int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM launches WHERE launched_at_unix_ms < ?
	`, cutoffUnixMs)
	if err != nil {
		return 0, fmt.Errorf("prune launches: %w", err)
	}
	return res.RowsAffected()
}

// walCheckpointLoop keeps the WAL small during long launcher sessions.
func (s *Store) walCheckpointLoop() {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(walCheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
				s.logger.Warn("wal checkpoint failed", "error", err)
			}
		}
	}
}

func (s *Store) migrate(ctx context.Context) error {
	currentVersion := 0
	row := s.db.QueryRowContext(ctx, `
		SELECT version FROM schema_meta ORDER BY version DESC LIMIT 1
	`)
	if err := row.Scan(&currentVersion); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows), isTableNotFoundError(err):
			currentVersion = 0
		default:
			return fmt.Errorf("read schema version: %w", err)
		}
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{version: 1, sql: migrationV1},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration v%d failed: %w", m.version, err)
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO schema_meta (version, applied_at_unix_ms)
			VALUES (?, ?)
		`, m.version, time.Now().UnixMilli())
		if err != nil {
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func isTableNotFoundError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

const migrationV1 = `
CREATE TABLE IF NOT EXISTS schema_meta (
  version INTEGER PRIMARY KEY,
  applied_at_unix_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS launches (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  target TEXT NOT NULL,
  label TEXT NOT NULL DEFAULT '',
  query TEXT NOT NULL DEFAULT '',
  launched_at_unix_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_launches_kind_target ON launches(kind, target);
CREATE INDEX IF NOT EXISTS idx_launches_ts ON launches(launched_at_unix_ms DESC);
`
