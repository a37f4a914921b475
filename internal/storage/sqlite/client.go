package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/oral-history/backend/internal/storage/models"
	"github.com/oral-history/backend/pkg/logger"
)

const (
	upsertSessionQuery = `INSERT INTO sessions (session_id, start_time, last_active) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET last_active = excluded.last_active`

	insertTurnQuery = `INSERT OR IGNORE INTO conversation_turns
		(id, session_id, seq, timestamp, user_message, bot_response, sources) VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectSessionsQuery = `SELECT session_id, start_time, last_active FROM sessions ORDER BY rowid`

	selectTurnsQuery = `SELECT session_id, id, timestamp, user_message, bot_response, sources
		FROM conversation_turns ORDER BY session_id, seq`
)

// Client stores the conversation log in SQLite. Sessions are upserted and
// turns are insert-only, so the table content is append-only.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

// NewWithDB wraps an already opened database.
func NewWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		start_time INTEGER NOT NULL,
		last_active INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversation_turns (
		id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		user_message TEXT NOT NULL,
		bot_response TEXT NOT NULL,
		sources TEXT NOT NULL,
		PRIMARY KEY (session_id, id),
		FOREIGN KEY (session_id) REFERENCES sessions(session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session_seq ON conversation_turns(session_id, seq);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) Load(ctx context.Context) ([]models.Session, error) {
	rows, err := c.db.QueryContext(ctx, selectSessionsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	index := make(map[string]int)
	for rows.Next() {
		var s models.Session
		var start, last int64
		if err := rows.Scan(&s.SessionID, &start, &last); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.StartTime = time.UnixMilli(start).UTC()
		s.LastActive = time.UnixMilli(last).UTC()
		s.Conversations = []models.Turn{}
		index[s.SessionID] = len(sessions)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}

	turns, err := c.db.QueryContext(ctx, selectTurnsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}
	defer turns.Close()

	for turns.Next() {
		var sessionID, sources string
		var ts int64
		var t models.Turn
		if err := turns.Scan(&sessionID, &t.ID, &ts, &t.UserMessage, &t.BotResponse, &sources); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		pos, ok := index[sessionID]
		if !ok {
			logger.Warn("Turn references unknown session", zap.String("session_id", sessionID))
			continue
		}
		t.Timestamp = time.UnixMilli(ts).UTC()
		if err := json.Unmarshal([]byte(sources), &t.Sources); err != nil {
			return nil, fmt.Errorf("failed to decode sources of turn %s: %w", t.ID, err)
		}
		sessions[pos].Conversations = append(sessions[pos].Conversations, t)
	}
	if err := turns.Err(); err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}

	return sessions, nil
}

// Flush writes the touched sessions in one transaction. Turns already stored
// are left alone, so re-flushing a session is idempotent.
func (c *Client) Flush(ctx context.Context, snapshot []models.Session, touched []models.Session) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, s := range touched {
		_, err := tx.ExecContext(ctx, upsertSessionQuery,
			s.SessionID,
			s.StartTime.UnixMilli(),
			s.LastActive.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert session %s: %w", s.SessionID, err)
		}

		for seq, t := range s.Conversations {
			sources, err := json.Marshal(nonNil(t.Sources))
			if err != nil {
				return fmt.Errorf("failed to encode sources: %w", err)
			}
			_, err = tx.ExecContext(ctx, insertTurnQuery,
				t.ID,
				s.SessionID,
				seq,
				t.Timestamp.UnixMilli(),
				t.UserMessage,
				t.BotResponse,
				string(sources),
			)
			if err != nil {
				return fmt.Errorf("failed to insert turn %s: %w", t.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	logger.Debug("Conversation log flushed", zap.Int("sessions", len(touched)))
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
