package bolt

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"github.com/oral-history/backend/internal/storage/models"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func sess(id string, turns int) models.Session {
	ts := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	s := models.Session{SessionID: id, StartTime: ts, LastActive: ts, Conversations: []models.Turn{}}
	for i := 0; i < turns; i++ {
		s.Conversations = append(s.Conversations, models.Turn{ID: fmt.Sprintf("%s-%d", id, i), Timestamp: ts, UserMessage: "q", BotResponse: "a"})
	}
	return s
}

func TestFlushAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.bolt")
	s := openStore(t, path)
	ctx := context.Background()

	ids := []string{"zulu", "alpha", "mike"}
	for _, id := range ids {
		if err := s.Flush(ctx, nil, []models.Session{sess(id, 0)}); err != nil {
			t.Fatalf("Flush: %v", err)
		}
	}
	if err := s.Flush(ctx, nil, []models.Session{sess("zulu", 2)}); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s = openStore(t, path)
	defer s.Close()

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(got))
	}
	for i, id := range ids {
		if got[i].SessionID != id {
			t.Errorf("session %d = %s, want %s (creation order)", i, got[i].SessionID, id)
		}
	}
	if len(got[0].Conversations) != 2 {
		t.Errorf("zulu has %d turns, want 2", len(got[0].Conversations))
	}
}

func TestFlushCancelledContext(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "log.bolt"))
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Flush(ctx, nil, []models.Session{sess("x", 1)}); err == nil {
		t.Fatal("expected context error")
	}
}

type expiringContext struct {
	context.Context
	live int
}

func (c *expiringContext) Err() error {
	if c.live > 0 {
		c.live--
		return nil
	}
	return context.DeadlineExceeded
}

func TestFlushDeadlineBeforeCommitRollsBack(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "log.bolt"))
	defer s.Close()

	ctx := &expiringContext{Context: context.Background(), live: 1}
	err := s.Flush(ctx, nil, []models.Session{sess("x", 1)})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("rolled-back flush persisted %d sessions", len(got))
	}
}

func TestOpenLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.bolt")
	s := openStore(t, path)
	defer s.Close()

	start := time.Now()
	_, err := OpenWithTimeout(path, 50*time.Millisecond)
	if !errors.Is(err, bbolt.ErrTimeout) {
		t.Fatalf("expected bbolt.ErrTimeout while the file is locked, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Open blocked for %s", elapsed)
	}
}
