package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/RaghavMittal2005/speech2speech/conversation"
)

const schema = `
CREATE TABLE IF NOT EXISTS threads (
	thread_id     TEXT PRIMARY KEY,
	messages_json TEXT NOT NULL,
	message_count INTEGER NOT NULL,
	updated_at    TEXT NOT NULL
);
`

// SQLite stores one row per thread holding the JSON-encoded message list.
// Each Save replaces the row inside a transaction.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection keeps saves ordered.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("checkpoint database opened", zap.String("path", path))
	return &SQLite{db: db, path: path, logger: logger.Named("checkpoint")}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) Load(ctx context.Context, threadID string) (*conversation.State, error) {
	var (
		raw     string
		updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT messages_json, updated_at FROM threads WHERE thread_id = ?`, threadID,
	).Scan(&raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}

	state := &conversation.State{ThreadID: threadID}
	if err := json.Unmarshal([]byte(raw), &state.Messages); err != nil {
		return nil, fmt.Errorf("decode thread %s: %w", threadID, err)
	}
	if state.Messages == nil {
		state.Messages = []conversation.Message{}
	}
	state.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return state, nil
}

func (s *SQLite) Save(ctx context.Context, state *conversation.State) error {
	if err := validate(state); err != nil {
		return err
	}
	raw, err := json.Marshal(state.Messages)
	if err != nil {
		return fmt.Errorf("encode thread %s: %w", state.ThreadID, err)
	}
	updated := state.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO threads (thread_id, messages_json, message_count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			messages_json = excluded.messages_json,
			message_count = excluded.message_count,
			updated_at    = excluded.updated_at`,
		state.ThreadID, string(raw), len(state.Messages), updated.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save thread %s: %w", state.ThreadID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit thread %s: %w", state.ThreadID, err)
	}

	s.logger.Debug("checkpoint saved",
		zap.String("thread_id", state.ThreadID),
		zap.Int("messages", len(state.Messages)),
	)
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]ThreadInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id, message_count, updated_at FROM threads ORDER BY thread_id`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var out []ThreadInfo
	for rows.Next() {
		var (
			info    ThreadInfo
			updated string
		)
		if err := rows.Scan(&info.ThreadID, &info.MessageCount, &updated); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLite) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	return nil
}
