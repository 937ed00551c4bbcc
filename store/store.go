package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/theimaginaryfoundation/shrink-o-scope/analysis"
)

// ErrNotFound is returned when a session (or its analysis) does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrExists is returned when creating a session whose id is already taken.
var ErrExists = errors.New("store: already exists")

// Store persists sessions, their messages, and the latest analysis artifacts
// in a single SQLite file.
type Store struct {
	db *sql.DB
}

// SessionInfo is a session row without its messages.
type SessionInfo struct {
	SessionID    string   `json:"session_id"`
	Title        string   `json:"title,omitempty"`
	StartTime    *float64 `json:"start_time,omitempty"`
	MessageCount int      `json:"message_count"`
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("Open: path is empty")
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("Open: ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
            id TEXT PRIMARY KEY,
            title TEXT NOT NULL DEFAULT '',
            start_time REAL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
            idx INTEGER NOT NULL,
            author TEXT NOT NULL,
            text TEXT NOT NULL,
            ts INTEGER NOT NULL DEFAULT 0,
            PRIMARY KEY (session_id, idx)
        );`,
		`CREATE TABLE IF NOT EXISTS analyses (
            session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
            payload TEXT NOT NULL,
            evolution TEXT NOT NULL,
            analyzed_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateSession inserts a session and its messages in one transaction.
func (s *Store) CreateSession(ctx context.Context, sess analysis.Session) error {
	if sess.SessionID == "" {
		return errors.New("CreateSession: session id is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("CreateSession: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sess.SessionID).Scan(&exists)
	switch {
	case err == nil:
		return fmt.Errorf("CreateSession: session %q: %w", sess.SessionID, ErrExists)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("CreateSession: check session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, title, start_time) VALUES (?, ?, ?)`,
		sess.SessionID, sess.Title, sess.StartTime,
	); err != nil {
		return fmt.Errorf("CreateSession: insert session: %w", err)
	}

	for i, m := range sess.Messages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, idx, author, text, ts) VALUES (?, ?, ?, ?, ?)`,
			sess.SessionID, i, m.Author, m.Text, m.Timestamp,
		); err != nil {
			return fmt.Errorf("CreateSession: insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("CreateSession: commit: %w", err)
	}
	return nil
}

// AppendMessage stores one more message for a session and returns its index.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, m analysis.Message) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("AppendMessage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("AppendMessage: session %q: %w", sessionID, ErrNotFound)
		}
		return 0, fmt.Errorf("AppendMessage: check session: %w", err)
	}

	var idx int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(idx) + 1, 0) FROM messages WHERE session_id = ?`, sessionID,
	).Scan(&idx); err != nil {
		return 0, fmt.Errorf("AppendMessage: next index: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, idx, author, text, ts) VALUES (?, ?, ?, ?, ?)`,
		sessionID, idx, m.Author, m.Text, m.Timestamp,
	); err != nil {
		return 0, fmt.Errorf("AppendMessage: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("AppendMessage: commit: %w", err)
	}
	return idx, nil
}

// GetSession loads a session with its messages in order.
func (s *Store) GetSession(ctx context.Context, sessionID string) (analysis.Session, error) {
	var sess analysis.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, start_time FROM sessions WHERE id = ?`, sessionID,
	).Scan(&sess.SessionID, &sess.Title, &sess.StartTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return analysis.Session{}, fmt.Errorf("GetSession: session %q: %w", sessionID, ErrNotFound)
		}
		return analysis.Session{}, fmt.Errorf("GetSession: query session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT author, text, ts FROM messages WHERE session_id = ? ORDER BY idx`, sessionID,
	)
	if err != nil {
		return analysis.Session{}, fmt.Errorf("GetSession: query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m analysis.Message
		if err := rows.Scan(&m.Author, &m.Text, &m.Timestamp); err != nil {
			return analysis.Session{}, fmt.Errorf("GetSession: scan message: %w", err)
		}
		sess.Messages = append(sess.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return analysis.Session{}, fmt.Errorf("GetSession: iterate messages: %w", err)
	}
	return sess, nil
}

// ListSessions returns all sessions (without messages), oldest start first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.title, s.start_time, COUNT(m.idx)
         FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
         GROUP BY s.id
         ORDER BY s.start_time IS NULL DESC, s.start_time, s.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("ListSessions: query: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.SessionID, &info.Title, &info.StartTime, &info.MessageCount); err != nil {
			return nil, fmt.Errorf("ListSessions: scan: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListSessions: iterate: %w", err)
	}
	return out, nil
}

// AllSessions loads every session with its messages, oldest start first.
func (s *Store) AllSessions(ctx context.Context) ([]analysis.Session, error) {
	infos, err := s.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("AllSessions: %w", err)
	}
	out := make([]analysis.Session, 0, len(infos))
	for _, info := range infos {
		sess, err := s.GetSession(ctx, info.SessionID)
		if err != nil {
			return nil, fmt.Errorf("AllSessions: %w", err)
		}
		out = append(out, sess)
	}
	return out, nil
}

// SaveAnalysis upserts the latest analysis artifacts for a session.
func (s *Store) SaveAnalysis(ctx context.Context, sessionID string, a analysis.ConversationAnalysis, evo analysis.TopicEvolution) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("SaveAnalysis: marshal analysis: %w", err)
	}
	evoPayload, err := json.Marshal(evo)
	if err != nil {
		return fmt.Errorf("SaveAnalysis: marshal evolution: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (session_id, payload, evolution, analyzed_at)
         VALUES (?, ?, ?, CURRENT_TIMESTAMP)
         ON CONFLICT(session_id) DO UPDATE SET
             payload = excluded.payload,
             evolution = excluded.evolution,
             analyzed_at = excluded.analyzed_at`,
		sessionID, string(payload), string(evoPayload),
	); err != nil {
		return fmt.Errorf("SaveAnalysis: upsert: %w", err)
	}
	return nil
}

// GetAnalysis loads the stored analysis artifacts for a session.
func (s *Store) GetAnalysis(ctx context.Context, sessionID string) (analysis.ConversationAnalysis, analysis.TopicEvolution, error) {
	var payload, evoPayload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, evolution FROM analyses WHERE session_id = ?`, sessionID,
	).Scan(&payload, &evoPayload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return analysis.ConversationAnalysis{}, analysis.TopicEvolution{}, fmt.Errorf("GetAnalysis: session %q: %w", sessionID, ErrNotFound)
		}
		return analysis.ConversationAnalysis{}, analysis.TopicEvolution{}, fmt.Errorf("GetAnalysis: query: %w", err)
	}

	var a analysis.ConversationAnalysis
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return analysis.ConversationAnalysis{}, analysis.TopicEvolution{}, fmt.Errorf("GetAnalysis: unmarshal analysis: %w", err)
	}
	var evo analysis.TopicEvolution
	if err := json.Unmarshal([]byte(evoPayload), &evo); err != nil {
		return analysis.ConversationAnalysis{}, analysis.TopicEvolution{}, fmt.Errorf("GetAnalysis: unmarshal evolution: %w", err)
	}
	return a, evo, nil
}
