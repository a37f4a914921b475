package conversation_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/oral-history/backend/internal/conversation"
	"github.com/oral-history/backend/internal/storage/jsonfile"
)

func TestConcurrentTurnsPersistedToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_logs.json")
	ctx := context.Background()

	l, err := conversation.Open(ctx, jsonfile.New(path), conversation.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := l.LogTurn(ctx, fmt.Sprintf("session-%d", i), "q", "a", []string{"A#0"}); err != nil {
				t.Errorf("LogTurn: %v", err)
			}
		}(i)
	}
	wg.Wait()

	persisted, err := jsonfile.New(path).Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(persisted) != n {
		t.Fatalf("persisted %d sessions, want %d", len(persisted), n)
	}
	for _, s := range persisted {
		if len(s.Conversations) != 1 {
			t.Errorf("session %s has %d turns, want 1", s.SessionID, len(s.Conversations))
		}
	}

	reopened, err := conversation.Open(ctx, jsonfile.New(path), conversation.Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := len(reopened.ListSessions()); got != n {
		t.Fatalf("reopened log has %d sessions, want %d", got, n)
	}
}

func TestLegacyRecordsSurviveFirstFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_logs.json")
	legacy := `[
	  {"timestamp":"2024-01-01T00:00:00Z","message":"anonymous question","response":"answer","relevantInterviews":[]},
	  {"sessionId":"abc","timestamp":"2024-01-01T00:01:00Z","message":"hi","response":"hello","relevantInterviews":[{"id":"A","name":"Ann"}]}
	]`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	l, err := conversation.Open(ctx, jsonfile.New(path), conversation.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := l.LogTurn(ctx, "new", "q", "a", nil); err != nil {
		t.Fatalf("LogTurn: %v", err)
	}

	persisted, err := jsonfile.New(path).Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(persisted) != 3 {
		t.Fatalf("expected 3 sessions after rewrite, got %d", len(persisted))
	}

	var found bool
	for _, s := range persisted {
		for _, turn := range s.Conversations {
			if turn.UserMessage == "anonymous question" {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("record without a session id was dropped by the rewrite")
	}
}
