package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oral-history/backend/pkg/retry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		APIKey:         "test-key",
		BaseURL:        srv.URL + "/v1",
		Model:          "gpt-4-turbo-preview",
		EmbeddingModel: "text-embedding-ada-002",
		Retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		},
	})
}

const embeddingBody = `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.25,-0.5,1]}],"model":"text-embedding-ada-002","usage":{"prompt_tokens":3,"total_tokens":3}}`

const completionBody = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4-turbo-preview","choices":[{"index":0,"message":{"role":"assistant","content":"They organized."},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`

const serverErrorBody = `{"error":{"message":"upstream failed","type":"server_error"}}`

func TestEmbed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(embeddingBody))
	})

	got, err := c.Embed(context.Background(), "tell me about cats")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	want := []float64{0.25, -0.5, 1}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("component %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(serverErrorBody))
			return
		}
		w.Write([]byte(embeddingBody))
	})

	if _, err := c.Embed(context.Background(), "q"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad input","type":"invalid_request_error"}}`))
	})

	if _, err := c.Embed(context.Background(), "q"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestEmbedEmptyVector(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[],"model":"m"}`))
	})

	if _, err := c.Embed(context.Background(), "q"); !errors.Is(err, ErrEmptyEmbedding) {
		t.Fatalf("expected ErrEmptyEmbedding, got %v", err)
	}
}

func TestGenerate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody))
	})

	got, err := c.Generate(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "They organized." {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(serverErrorBody))
	})

	if _, err := c.Generate(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want exactly 1", calls.Load())
	}
}

func TestGenerateEmptyCompletion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  "}}]}`))
	})

	if _, err := c.Generate(context.Background(), "s", "u"); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestBreakerStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v1/embeddings" {
			w.Write([]byte(embeddingBody))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(serverErrorBody))
	})

	if _, err := c.Embed(context.Background(), "q"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, _ = c.Generate(context.Background(), "s", "u")
	}

	status := c.BreakerStatus()
	if len(status) != 2 || status[0].Name != "embed" || status[1].Name != "generate" {
		t.Fatalf("unexpected breakers %+v", status)
	}
	if status[0].State != "closed" || status[0].Requests != 1 {
		t.Errorf("embed breaker %+v", status[0])
	}
	if status[1].State != "closed" || status[1].ConsecutiveFailures != 2 {
		t.Errorf("generate breaker %+v", status[1])
	}

	for i := 0; i < 3; i++ {
		_, _ = c.Generate(context.Background(), "s", "u")
	}
	if got := c.BreakerStatus()[1].State; got != "open" {
		t.Fatalf("generate breaker state = %s after 5 failures, want open", got)
	}
}
