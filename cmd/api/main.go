package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/oral-history/backend/internal/api/handlers"
	"github.com/oral-history/backend/internal/cache"
	"github.com/oral-history/backend/internal/cache/redis"
	"github.com/oral-history/backend/internal/conversation"
	"github.com/oral-history/backend/internal/corpus"
	"github.com/oral-history/backend/internal/llm"
	"github.com/oral-history/backend/internal/metrics"
	"github.com/oral-history/backend/internal/middleware/ratelimit"
	"github.com/oral-history/backend/internal/middleware/security"
	"github.com/oral-history/backend/internal/middleware/validation"
	"github.com/oral-history/backend/internal/query"
	"github.com/oral-history/backend/internal/storage/bolt"
	"github.com/oral-history/backend/internal/storage/jsonfile"
	"github.com/oral-history/backend/internal/storage/sqlite"
	"github.com/oral-history/backend/pkg/config"
	appLogger "github.com/oral-history/backend/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Failed to read .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting oral history chat server")

	metrics.Init()

	// A missing or broken corpus leaves the server up in degraded mode.
	corpusHolder := corpus.LoadHolder(cfg.Corpus.Path)
	if c, err := corpusHolder.Get(); err != nil {
		appLogger.Error("Interview corpus unavailable; chat requests will fail",
			zap.String("path", cfg.Corpus.Path),
			zap.Error(err),
		)
		metrics.CorpusAvailable.Set(0)
	} else {
		metrics.CorpusAvailable.Set(1)
		metrics.CorpusChunks.Set(float64(len(c.AllChunks())))
	}

	store, err := openConversationStore(cfg)
	if err != nil {
		appLogger.Fatal("Failed to open conversation store", zap.Error(err))
	}

	conversationLog, err := conversation.Open(context.Background(), store, conversation.Options{
		FlushTimeout: time.Duration(cfg.Conversation.FlushTimeoutSec) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Failed to load conversation log", zap.Error(err))
	}
	defer conversationLog.Close()

	if cfg.LLM.APIKey == "" {
		appLogger.Warn("No LLM API key configured; chat requests will fail")
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:           cfg.LLM.APIKey,
		BaseURL:          cfg.LLM.BaseURL,
		Model:            cfg.LLM.Model,
		EmbeddingModel:   cfg.LLM.EmbeddingModel,
		Temperature:      cfg.LLM.Temperature,
		MaxTokens:        cfg.LLM.MaxTokens,
		Timeout:          time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		EmbeddingTimeout: time.Duration(cfg.LLM.EmbeddingTimeoutSec) * time.Second,
	})

	var embedder query.Embedder = llmClient
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable; query embeddings will not be cached", zap.Error(err))
		} else {
			defer redisClient.Close()
			embedder = cache.NewEmbeddingCache(
				llmClient,
				redisClient,
				llmClient.EmbeddingModel(),
				time.Duration(cfg.Redis.EmbeddingTTLMin)*time.Minute,
			)
		}
	}

	queryEngine := query.NewEngine(corpusHolder, embedder, llmClient, conversationLog, query.Options{
		TopK:           cfg.Retrieval.TopK,
		ContextBudget:  cfg.Retrieval.ContextBudget,
		MaxQueryLength: cfg.Retrieval.MaxQueryLength,
		Persona:        cfg.Persona,
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORS.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, " + ratelimit.SessionHeader,
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: []string{cfg.CORS.AllowOrigins},
		IsDevelopment:  cfg.Server.IsDevelopment,
	}))

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(ratelimit.Config{
			MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
			Logger:               appLogger.GetLogger(),
		})
		app.Use("/api", limiter.Middleware())
	}

	app.Use(validation.Middleware(validation.Config{
		MaxMessageLength: cfg.Retrieval.MaxQueryLength,
		ChatPaths:        []string{"/api/openai", "/api/v1/chat"},
		Logger:           appLogger.GetLogger(),
	}))

	chatHandler := handlers.NewChatHandler(queryEngine)
	interviewHandler := handlers.NewInterviewHandler(queryEngine)
	sessionHandler := handlers.NewSessionHandler(queryEngine)
	webhookHandler := handlers.NewWebhookHandler(queryEngine)
	systemHandler := handlers.NewSystemHandler(queryEngine, llmClient)
	wsHandler := handlers.NewWebSocketHandler(queryEngine)

	app.Get("/", systemHandler.Root)
	app.Post("/api/openai", chatHandler.HandleChat)

	api := app.Group("/api/v1")

	api.Post("/chat", chatHandler.HandleChat)
	api.Get("/interviews/search", interviewHandler.Search)
	api.Get("/metadata", interviewHandler.Metadata)

	api.Get("/sessions", sessionHandler.List)
	api.Post("/sessions", sessionHandler.Create)
	api.Get("/sessions/:id", sessionHandler.Get)

	api.Post("/webhook", webhookHandler.Handle)

	api.Get("/health", systemHandler.Health)
	api.Get("/ready", systemHandler.Ready)

	app.Use("/ws", wsHandler.Upgrade)
	app.Get("/ws", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func openConversationStore(cfg *config.Config) (conversation.Store, error) {
	path := cfg.Conversation.Path

	switch cfg.Conversation.Backend {
	case "sqlite":
		client, err := sqlite.NewClient(path)
		if err != nil {
			return nil, err
		}
		if err := client.InitSchema(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		return client, nil
	case "bolt":
		store, err := bolt.Open(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		if err := jsonfile.EnsureFile(path); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", path, err)
		}
		return jsonfile.New(path), nil
	}
}
