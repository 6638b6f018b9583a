// Package sqlite implements conversation.Store on SQLite using
// modernc.org/sqlite (pure Go, no CGO) in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/flemzord/toolpipe/internal/conversation"
	"github.com/flemzord/toolpipe/internal/toolcall"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Compile-time interface guard.
var _ conversation.Store = (*Store)(nil)

// Store is a SQLite-backed conversation.Store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database described by cfg and
// migrates its schema. The caller must Close the store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// One connection so PRAGMAs apply to every statement.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout),
		"PRAGMA foreign_keys=ON",
	}
	if cfg.walEnabled() {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("sqlite store opened", "path", cfg.Path, "wal", cfg.walEnabled())
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveThread implements conversation.Store.
func (s *Store) SaveThread(ctx context.Context, info conversation.ThreadInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, session_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET session_id = excluded.session_id`,
		info.ID, info.SessionID, formatTime(info.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save thread %s: %w", info.ID, err)
	}
	return nil
}

// SaveMessage implements conversation.Store. A message saved again keeps its
// sequence number so thread order never changes.
func (s *Store) SaveMessage(ctx context.Context, threadID string, rec conversation.Record) error {
	calls, err := json.Marshal(rec.ToolCalls)
	if err != nil {
		return fmt.Errorf("sqlite: encode tool calls: %w", err)
	}
	if rec.ToolCalls == nil {
		calls = []byte("[]")
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM threads WHERE id = ?", threadID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sqlite: save message: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", conversation.ErrThreadNotFound, threadID)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (thread_id, seq, id, role, content, tool_calls, tool_call_id, created_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE thread_id = ?), ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(thread_id, id) DO UPDATE SET
			content = excluded.content,
			tool_calls = excluded.tool_calls,
			tool_call_id = excluded.tool_call_id`,
		threadID, threadID, rec.ID, string(rec.Role), rec.Content, string(calls), rec.ToolCallID, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save message %s: %w", rec.ID, err)
	}
	return nil
}

// LoadThread implements conversation.Store.
func (s *Store) LoadThread(ctx context.Context, threadID string) (conversation.ThreadInfo, []conversation.Record, error) {
	var (
		info    conversation.ThreadInfo
		created string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, session_id, created_at FROM threads WHERE id = ?", threadID,
	).Scan(&info.ID, &info.SessionID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return conversation.ThreadInfo{}, nil, fmt.Errorf("%w: %s", conversation.ErrThreadNotFound, threadID)
	}
	if err != nil {
		return conversation.ThreadInfo{}, nil, fmt.Errorf("sqlite: load thread %s: %w", threadID, err)
	}
	info.CreatedAt = parseTime(created)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, tool_calls, tool_call_id, created_at
		 FROM messages WHERE thread_id = ? ORDER BY seq`, threadID)
	if err != nil {
		return conversation.ThreadInfo{}, nil, fmt.Errorf("sqlite: load messages %s: %w", threadID, err)
	}
	defer rows.Close() //nolint:errcheck // best-effort close

	var records []conversation.Record
	for rows.Next() {
		var (
			rec     conversation.Record
			role    string
			calls   string
			created string
		)
		if err := rows.Scan(&rec.ID, &role, &rec.Content, &calls, &rec.ToolCallID, &created); err != nil {
			return conversation.ThreadInfo{}, nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		rec.Role = conversation.Role(role)
		rec.CreatedAt = parseTime(created)
		var snaps []toolcall.Snapshot
		if err := json.Unmarshal([]byte(calls), &snaps); err != nil {
			// Keep the message; history validation decides what to do with
			// calls that cannot be restored.
			s.logger.Warn("sqlite: undecodable tool calls", "thread_id", threadID, "message_id", rec.ID, "error", err)
		}
		if len(snaps) > 0 {
			rec.ToolCalls = snaps
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return conversation.ThreadInfo{}, nil, fmt.Errorf("sqlite: iterate messages: %w", err)
	}
	return info, records, nil
}

// ListThreads implements conversation.Store.
func (s *Store) ListThreads(ctx context.Context, sessionID string) ([]conversation.ThreadInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, created_at FROM threads WHERE session_id = ? ORDER BY created_at, id", sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list threads: %w", err)
	}
	defer rows.Close() //nolint:errcheck // best-effort close

	var out []conversation.ThreadInfo
	for rows.Next() {
		var (
			info    conversation.ThreadInfo
			created string
		)
		if err := rows.Scan(&info.ID, &info.SessionID, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan thread: %w", err)
		}
		info.CreatedAt = parseTime(created)
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteThread implements conversation.Store.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM threads WHERE id = ?", threadID); err != nil {
		return fmt.Errorf("sqlite: delete thread %s: %w", threadID, err)
	}
	return nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
