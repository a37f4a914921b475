// Package conversation keeps the append-only, session-scoped chat log.
//
// The in-memory copy is authoritative. Every mutation is flushed to the
// backing Store while the log mutex is held, so concurrent turns never
// interleave their writes.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oral-history/backend/internal/storage/models"
	"github.com/oral-history/backend/pkg/logger"
)

var (
	// ErrPersist wraps store failures. The in-memory log still holds the
	// change and the next successful flush writes it.
	ErrPersist = errors.New("conversation log not persisted")

	ErrEmptySessionID = errors.New("session id is empty")
)

// Store persists the log. Flush receives the full snapshot in creation order
// and the sessions changed since the last successful flush; each Flush must
// fully succeed or leave the previous persisted state intact.
type Store interface {
	Load(ctx context.Context) ([]models.Session, error)
	Flush(ctx context.Context, snapshot []models.Session, touched []models.Session) error
	Close() error
}

type Options struct {
	FlushTimeout time.Duration
	Now          func() time.Time
}

type Log struct {
	store Store
	opts  Options

	mu       sync.Mutex
	sessions map[string]*models.Session
	order    []string
	pending  map[string]struct{}
}

// Open loads the persisted log from store.
func Open(ctx context.Context, store Store, opts Options) (*Log, error) {
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	existing, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load conversation log: %w", err)
	}

	l := &Log{
		store:    store,
		opts:     opts,
		sessions: make(map[string]*models.Session, len(existing)),
		pending:  make(map[string]struct{}),
	}
	for _, s := range existing {
		if s.SessionID == "" {
			continue
		}
		if _, dup := l.sessions[s.SessionID]; dup {
			logger.Warn("Duplicate session in conversation log", zap.String("session_id", s.SessionID))
			continue
		}
		cp := s.Clone()
		l.sessions[s.SessionID] = &cp
		l.order = append(l.order, s.SessionID)
	}

	logger.Info("Conversation log opened", zap.Int("sessions", len(l.order)))
	return l, nil
}

// NewSessionID returns a random v4 UUID.
func NewSessionID() string {
	return uuid.NewString()
}

// CreateSession registers a new empty session and persists it. On a persist
// failure the id is still returned alongside an error wrapping ErrPersist.
func (l *Log) CreateSession(ctx context.Context) (string, error) {
	id := NewSessionID()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.create(id)
	return id, l.flush(ctx, id)
}

// LogTurn appends a turn to sessionID, creating the session if it is unknown.
func (l *Log) LogTurn(ctx context.Context, sessionID, userMessage, botResponse string, sources []string) (models.Turn, error) {
	if sessionID == "" {
		return models.Turn{}, ErrEmptySessionID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sessions[sessionID]
	if !ok {
		s = l.create(sessionID)
	}

	now := l.opts.Now()
	turn := models.Turn{
		ID:          uuid.NewString(),
		Timestamp:   now,
		UserMessage: userMessage,
		BotResponse: botResponse,
		Sources:     append([]string{}, sources...),
	}
	s.Conversations = append(s.Conversations, turn)
	if now.After(s.LastActive) {
		s.LastActive = now
	}

	return turn, l.flush(ctx, sessionID)
}

func (l *Log) GetSession(sessionID string) (models.Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sessions[sessionID]
	if !ok {
		return models.Session{}, false
	}
	return s.Clone(), true
}

// ListSessions returns copies of every session in creation order.
func (l *Log) ListSessions() []models.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) > 0 {
		logger.Warn("Closing conversation log with unflushed sessions", zap.Int("pending", len(l.pending)))
	}
	return l.store.Close()
}

// create registers an empty session. Caller holds mu.
func (l *Log) create(id string) *models.Session {
	now := l.opts.Now()
	s := &models.Session{
		SessionID:     id,
		StartTime:     now,
		LastActive:    now,
		Conversations: []models.Turn{},
	}
	l.sessions[id] = s
	l.order = append(l.order, id)
	return s
}

func (l *Log) snapshot() []models.Session {
	out := make([]models.Session, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.sessions[id].Clone())
	}
	return out
}

// flush writes the log with id marked as changed. The caller's cancellation is
// ignored so an aborted request cannot cut a write short; the flush timeout
// still bounds it. Caller holds mu.
func (l *Log) flush(ctx context.Context, id string) error {
	l.pending[id] = struct{}{}

	touched := make([]models.Session, 0, len(l.pending))
	for _, sid := range l.order {
		if _, ok := l.pending[sid]; ok {
			touched = append(touched, l.sessions[sid].Clone())
		}
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opts.FlushTimeout)
	defer cancel()

	if err := l.store.Flush(fctx, l.snapshot(), touched); err != nil {
		logger.Warn("Failed to persist conversation log",
			zap.String("session_id", id),
			zap.Int("pending", len(l.pending)),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	clear(l.pending)
	return nil
}
