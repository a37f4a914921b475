package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/oral-history/backend/pkg/circuitbreaker"
	"github.com/oral-history/backend/pkg/logger"
	"github.com/oral-history/backend/pkg/retry"
)

var (
	ErrEmptyEmbedding  = errors.New("embedding response contained no vector")
	ErrEmptyCompletion = errors.New("completion response contained no text")
)

type Config struct {
	APIKey string
	// BaseURL overrides the OpenAI endpoint; empty uses the default.
	BaseURL          string
	Model            string
	EmbeddingModel   string
	Temperature      float32
	MaxTokens        int
	Timeout          time.Duration
	EmbeddingTimeout time.Duration
	Retry            retry.Config
}

// Client wraps the OpenAI API for query embedding and answer generation.
// Embedding calls are retried; generation calls are attempted once.
type Client struct {
	client           *openai.Client
	model            string
	embeddingModel   string
	temperature      float32
	maxTokens        int
	timeout          time.Duration
	embeddingTimeout time.Duration
	embedCB          *circuitbreaker.CircuitBreaker
	generateCB       *circuitbreaker.CircuitBreaker
	retryConfig      retry.Config
}

func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.EmbeddingTimeout <= 0 {
		cfg.EmbeddingTimeout = 15 * time.Second
	}

	retryConfig := cfg.Retry
	if retryConfig.MaxAttempts == 0 {
		retryConfig = retry.Config{
			MaxAttempts:    3,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
		}
	}
	retryConfig.Logger = logger.GetLogger()

	breaker := func(name string) *circuitbreaker.CircuitBreaker {
		return circuitbreaker.NewCircuitBreaker(name, circuitbreaker.Config{
			HalfOpenRequests: 1,
			OpenTimeout:      30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			IsFailure:        isFailure,
			Logger:           logger.GetLogger(),
		})
	}

	logger.Info("LLM client initialized",
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)

	return &Client{
		client:           openai.NewClientWithConfig(oc),
		model:            cfg.Model,
		embeddingModel:   cfg.EmbeddingModel,
		temperature:      cfg.Temperature,
		maxTokens:        cfg.MaxTokens,
		timeout:          cfg.Timeout,
		embeddingTimeout: cfg.EmbeddingTimeout,
		embedCB:          breaker("llm-embed"),
		generateCB:       breaker("llm-generate"),
		retryConfig:      retryConfig,
	}
}

func (c *Client) EmbeddingModel() string { return c.embeddingModel }

// Embed returns the embedding of text, bounded by the embedding timeout.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.embeddingTimeout)
	defer cancel()

	var embedding []float64

	err := c.embedCB.Execute(func() error {
		var err error
		embedding, err = retry.DoWithResult(ctx, c.retryConfig, func(ctx context.Context) ([]float64, error) {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(c.embeddingModel),
				},
			)
			if err != nil {
				return nil, classify(fmt.Errorf("failed to generate embedding: %w", err))
			}

			if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
				return nil, retry.Permanent(ErrEmptyEmbedding)
			}

			vec := make([]float64, len(resp.Data[0].Embedding))
			for i, v := range resp.Data[0].Embedding {
				vec[i] = float64(v)
			}
			return vec, nil
		})
		return err
	})

	if err != nil {
		return nil, err
	}

	return embedding, nil
}

// Generate runs one chat completion with the given system prompt. It is never
// retried.
func (c *Client) Generate(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: userMessage,
		},
	}

	var content string

	err := c.generateCB.Execute(func() error {
		resp, err := c.client.CreateChatCompletion(
			ctx,
			openai.ChatCompletionRequest{
				Model:       c.model,
				Messages:    messages,
				Temperature: c.temperature,
				MaxTokens:   c.maxTokens,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to create completion: %w", err)
		}

		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return ErrEmptyCompletion
		}

		logger.Debug("LLM completion generated",
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		)

		content = resp.Choices[0].Message.Content
		return nil
	})

	if err != nil {
		return "", err
	}

	return content, nil
}

type BreakerStatus struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	Requests            uint32 `json:"requests"`
	ConsecutiveFailures uint32 `json:"consecutiveFailures"`
}

// BreakerStatus reports the embedding and generation circuit breakers.
func (c *Client) BreakerStatus() []BreakerStatus {
	out := make([]BreakerStatus, 0, 2)
	for _, cb := range []struct {
		name string
		cb   *circuitbreaker.CircuitBreaker
	}{
		{"embed", c.embedCB},
		{"generate", c.generateCB},
	} {
		counts := cb.cb.Counts()
		out = append(out, BreakerStatus{
			Name:                cb.name,
			State:               cb.cb.State().String(),
			Requests:            counts.Requests,
			ConsecutiveFailures: counts.ConsecutiveFailures,
		})
	}
	return out
}

// classify marks client errors other than rate limiting as permanent.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.HTTPStatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
	}
	return err
}

func isFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}
