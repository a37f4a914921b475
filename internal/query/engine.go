package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oral-history/backend/internal/assembler"
	"github.com/oral-history/backend/internal/conversation"
	"github.com/oral-history/backend/internal/corpus"
	"github.com/oral-history/backend/internal/metrics"
	"github.com/oral-history/backend/internal/ranker"
	"github.com/oral-history/backend/internal/storage/models"
	"github.com/oral-history/backend/pkg/logger"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrCorpusUnavailable     = errors.New("interview corpus unavailable")
	ErrEmbeddingUnavailable  = errors.New("embedding unavailable")
	ErrGenerationUnavailable = errors.New("generation unavailable")
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type Generator interface {
	Generate(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// ConversationLog is implemented by *conversation.Log.
type ConversationLog interface {
	CreateSession(ctx context.Context) (string, error)
	LogTurn(ctx context.Context, sessionID, userMessage, botResponse string, sources []string) (models.Turn, error)
	GetSession(sessionID string) (models.Session, bool)
	ListSessions() []models.Session
}

type Options struct {
	TopK           int
	ContextBudget  int
	MaxQueryLength int
	Persona        string
}

type Engine struct {
	corpus    *corpus.Holder
	embedder  Embedder
	generator Generator
	log       ConversationLog
	opts      Options
}

type Request struct {
	Query     string
	SessionID string
	// ContextBudget and TopK override the engine defaults when positive.
	ContextBudget int
	TopK          int
}

type Response struct {
	ID        string               `json:"id"`
	SessionID string               `json:"sessionId"`
	Response  string               `json:"response"`
	Sources   []models.CitedSource `json:"relevantInterviews"`
	// Logged is false when the answer was produced but the turn could not
	// be persisted.
	Logged    bool  `json:"logged"`
	LatencyMS int64 `json:"latencyMs"`
}

func NewEngine(holder *corpus.Holder, embedder Embedder, generator Generator, log ConversationLog, opts Options) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = ranker.DefaultTopK
	}
	return &Engine{
		corpus:    holder,
		embedder:  embedder,
		generator: generator,
		log:       log,
		opts:      opts,
	}
}

// Answer runs one grounded chat turn: embed the query, rank the corpus,
// assemble context, generate once and log the turn.
func (e *Engine) Answer(ctx context.Context, req Request) (resp *Response, err error) {
	startTime := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = errorStatus(err)
		}
		metrics.QueryTotal.WithLabelValues(status).Inc()
		metrics.QueryDuration.WithLabelValues(status).Observe(time.Since(startTime).Seconds())
	}()

	q := strings.TrimSpace(req.Query)
	if q == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if e.opts.MaxQueryLength > 0 && utf8.RuneCountInString(q) > e.opts.MaxQueryLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, e.opts.MaxQueryLength)
	}

	c, err := e.corpus.Get()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorpusUnavailable, err)
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = conversation.NewSessionID()
	}

	logger.Info("Processing query",
		zap.String("session_id", sessionID),
		zap.Int("query_length", len(q)),
	)

	vec, err := e.embedder.Embed(ctx, q)
	if err != nil {
		metrics.LLMRequests.WithLabelValues("embed", "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	metrics.LLMRequests.WithLabelValues("embed", "success").Inc()

	topK := req.TopK
	if topK <= 0 {
		topK = e.opts.TopK
	}

	entries := c.AllChunks()
	cands := make([]ranker.Candidate[corpus.Entry], len(entries))
	for i, en := range entries {
		cands[i] = ranker.Candidate[corpus.Entry]{Item: en, Vector: en.Chunk.Embedding, Norm: en.Norm}
	}

	ranked, err := ranker.Rank(vec, cands, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: query vector unusable: %w", ErrEmbeddingUnavailable, err)
	}
	if len(ranked) == 0 {
		logger.Warn("Corpus has no rankable chunks; answering without context")
	} else {
		metrics.TopSimilarity.Observe(ranked[0].Score)
	}

	budget := req.ContextBudget
	if budget <= 0 {
		budget = e.opts.ContextBudget
	}

	evidence := make([]assembler.Evidence, len(ranked))
	for i, r := range ranked {
		evidence[i] = assembler.Evidence{
			InterviewID:   r.Item.Interview.ID,
			InterviewName: r.Item.Interview.Name,
			Text:          r.Item.Chunk.Text,
		}
	}
	assembled := assembler.Assemble(evidence, budget)
	used := ranked[:assembled.Used]
	metrics.RetrievedChunks.Observe(float64(len(used)))

	if assembled.Used < len(ranked) {
		logger.Debug("Context budget dropped lower-ranked chunks",
			zap.Int("ranked", len(ranked)),
			zap.Int("used", assembled.Used),
			zap.Int("budget", budget),
		)
	}

	answer, err := e.generator.Generate(ctx, assembler.SystemPrompt(e.opts.Persona, assembled.Context), q)
	if err != nil {
		metrics.LLMRequests.WithLabelValues("generate", "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}
	if strings.TrimSpace(answer) == "" {
		metrics.LLMRequests.WithLabelValues("generate", "error").Inc()
		return nil, fmt.Errorf("%w: empty response", ErrGenerationUnavailable)
	}
	metrics.LLMRequests.WithLabelValues("generate", "success").Inc()

	sources := make([]models.CitedSource, len(used))
	sourceIDs := make([]string, len(used))
	for i, r := range used {
		sources[i] = models.CitedSource{
			ID:         r.Item.Interview.ID,
			ChunkID:    r.Item.Chunk.ID,
			Name:       r.Item.Interview.Name,
			Tags:       append([]string{}, r.Item.Interview.Tags...),
			Similarity: r.Score,
		}
		sourceIDs[i] = r.Item.Chunk.ID
	}

	resp = &Response{
		SessionID: sessionID,
		Response:  answer,
		Sources:   sources,
		Logged:    true,
	}

	turn, err := e.log.LogTurn(ctx, sessionID, q, answer, sourceIDs)
	if err != nil {
		metrics.ConversationPersistFailures.Inc()
		logger.Warn("Answer returned without a persisted log entry",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		resp.Logged = false
		resp.ID = uuid.New().String()
	} else {
		resp.ID = turn.ID
	}

	resp.LatencyMS = time.Since(startTime).Milliseconds()

	logger.Info("Query answered",
		zap.String("session_id", sessionID),
		zap.String("turn_id", resp.ID),
		zap.Int("sources", len(sources)),
		zap.Bool("logged", resp.Logged),
		zap.Int64("latency_ms", resp.LatencyMS),
	)

	return resp, nil
}

func (e *Engine) Search(keyword string) ([]models.InterviewSummary, error) {
	c, err := e.corpus.Get()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorpusUnavailable, err)
	}
	return c.Search(keyword), nil
}

func (e *Engine) Metadata() (corpus.Snapshot, error) {
	c, err := e.corpus.Get()
	if err != nil {
		return corpus.Snapshot{}, fmt.Errorf("%w: %w", ErrCorpusUnavailable, err)
	}
	return c.Metadata(), nil
}

func (e *Engine) Ready() bool {
	return e.corpus.Available()
}

func (e *Engine) CreateSession(ctx context.Context) (string, error) {
	return e.log.CreateSession(ctx)
}

func (e *Engine) ListSessions() []models.Session {
	return e.log.ListSessions()
}

func (e *Engine) GetSession(sessionID string) (models.Session, bool) {
	return e.log.GetSession(sessionID)
}

func errorStatus(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrCorpusUnavailable):
		return "corpus_unavailable"
	case errors.Is(err, ErrEmbeddingUnavailable):
		return "embedding_unavailable"
	case errors.Is(err, ErrGenerationUnavailable):
		return "generation_unavailable"
	default:
		return "error"
	}
}
