// Package jsonfile persists the conversation log as a single JSON document
// that is rewritten in full, atomically, on every flush.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oral-history/backend/internal/storage/models"
	"github.com/oral-history/backend/pkg/logger"
	"github.com/oral-history/backend/pkg/utils"
)

// legacyAnonymousSession collects old records written without a sessionId.
const legacyAnonymousSession = "legacy-anonymous"

type document struct {
	Sessions []models.Session `json:"sessions"`
}

// legacyEntry is one record of the flat array format older deployments wrote.
type legacyEntry struct {
	SessionID          string    `json:"sessionId"`
	Timestamp          time.Time `json:"timestamp"`
	Message            string    `json:"message"`
	Response           string    `json:"response"`
	RelevantInterviews []struct {
		ID string `json:"id"`
	} `json:"relevantInterviews"`
}

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the log. A missing or empty file is an empty log.
func (s *Store) Load(ctx context.Context) ([]models.Session, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		return loadLegacy(data)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return doc.Sessions, nil
}

// loadLegacy groups flat chat records into sessions in first-seen order.
func loadLegacy(data []byte) ([]models.Session, error) {
	var entries []legacyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode legacy log: %w", err)
	}

	index := make(map[string]int)
	var sessions []models.Session
	for i, e := range entries {
		sessionID := strings.TrimSpace(e.SessionID)
		if sessionID == "" {
			sessionID = legacyAnonymousSession
		}
		pos, ok := index[sessionID]
		if !ok {
			pos = len(sessions)
			index[sessionID] = pos
			sessions = append(sessions, models.Session{
				SessionID:     sessionID,
				StartTime:     e.Timestamp,
				LastActive:    e.Timestamp,
				Conversations: []models.Turn{},
			})
		}

		sources := make([]string, 0, len(e.RelevantInterviews))
		for _, ri := range e.RelevantInterviews {
			sources = append(sources, ri.ID)
		}

		s := &sessions[pos]
		s.Conversations = append(s.Conversations, models.Turn{
			ID:          fmt.Sprintf("legacy-%d", i),
			Timestamp:   e.Timestamp,
			UserMessage: e.Message,
			BotResponse: e.Response,
			Sources:     sources,
		})
		if e.Timestamp.After(s.LastActive) {
			s.LastActive = e.Timestamp
		}
	}

	logger.Info("Converted legacy chat log", zap.Int("entries", len(entries)), zap.Int("sessions", len(sessions)))
	return sessions, nil
}

// Flush rewrites the whole document. touched is unused; every flush carries
// the full snapshot. If ctx ends before the new file is renamed into place the
// previous document is kept.
func (s *Store) Flush(ctx context.Context, snapshot []models.Session, touched []models.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snapshot == nil {
		snapshot = []models.Session{}
	}

	data, err := json.MarshalIndent(document{Sessions: snapshot}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal log: %w", err)
	}
	if err := utils.WriteFileAtomicContext(ctx, s.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

// EnsureFile creates an empty log at path if none exists.
func EnsureFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return New(path).Flush(context.Background(), nil, nil)
}
