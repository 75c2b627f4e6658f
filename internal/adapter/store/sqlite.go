package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"chatrelay/internal/domain"
)

// SQLiteStore backs the offline message queue and the conversation log
// with a single SQLite database. One write at a time is fine for this
// workload; WAL keeps readers unblocked while the drain loop writes.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ domain.MessageQueue      = (*SQLiteStore)(nil)
	_ domain.ConversationStore = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) the database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS queued_messages (
			id              TEXT PRIMARY KEY,
			agent_id        TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			content         TEXT NOT NULL,
			queued_at       TEXT NOT NULL,
			retry_count     INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS conversation_messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			created_at      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conv_messages
			ON conversation_messages (conversation_id, seq);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- domain.MessageQueue ---

// Enqueue implements domain.MessageQueue.
func (s *SQLiteStore) Enqueue(ctx context.Context, msg domain.QueuedMessage) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO queued_messages (id, agent_id, conversation_id, content, queued_at, retry_count) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, msg.AgentID, msg.ConversationID, msg.Content,
		msg.QueuedAt.UTC().Format(time.RFC3339Nano), msg.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}
	return nil
}

// List implements domain.MessageQueue. Ordering by queued_at then id keeps
// replay FIFO even when two messages share a timestamp: ULIDs sort by
// creation time.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.QueuedMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, agent_id, conversation_id, content, queued_at, retry_count FROM queued_messages ORDER BY queued_at, id",
	)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var msgs []domain.QueuedMessage
	for rows.Next() {
		var m domain.QueuedMessage
		var queuedAt string
		if err := rows.Scan(&m.ID, &m.AgentID, &m.ConversationID, &m.Content, &queuedAt, &m.RetryCount); err != nil {
			return nil, fmt.Errorf("scan queued message: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, queuedAt); err == nil {
			m.QueuedAt = t
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Remove implements domain.MessageQueue.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM queued_messages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove queued message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewDomainError("SQLiteStore.Remove", domain.ErrQueueNotFound, id)
	}
	return nil
}

// IncrementRetry implements domain.MessageQueue.
func (s *SQLiteStore) IncrementRetry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE queued_messages SET retry_count = retry_count + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("increment retry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewDomainError("SQLiteStore.IncrementRetry", domain.ErrQueueNotFound, id)
	}
	return nil
}

// Depth implements domain.MessageQueue.
func (s *SQLiteStore) Depth(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM queued_messages").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

// --- domain.ConversationStore ---

// AppendMessage implements domain.ConversationStore.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, msg domain.Message) error {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversation_messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)",
		conversationID, msg.Role, msg.Content, ts.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Messages implements domain.ConversationStore, returning the turns in
// append order.
func (s *SQLiteStore) Messages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content, created_at FROM conversation_messages WHERE conversation_id = ? ORDER BY seq",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var createdAt string
		if err := rows.Scan(&m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			m.Timestamp = t
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
