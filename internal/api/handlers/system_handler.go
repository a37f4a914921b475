package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/oral-history/backend/internal/llm"
	"github.com/oral-history/backend/internal/query"
)

// BreakerReporter is implemented by *llm.Client.
type BreakerReporter interface {
	BreakerStatus() []llm.BreakerStatus
}

type SystemHandler struct {
	queryEngine *query.Engine
	breakers    BreakerReporter
}

// NewSystemHandler builds the root, health and readiness handlers. breakers
// may be nil.
func NewSystemHandler(queryEngine *query.Engine, breakers BreakerReporter) *SystemHandler {
	return &SystemHandler{
		queryEngine: queryEngine,
		breakers:    breakers,
	}
}

func (h *SystemHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "Server is running",
	})
}

// Health is a liveness check. An open LLM breaker is reported but does not
// fail it.
func (h *SystemHandler) Health(c *fiber.Ctx) error {
	body := fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}
	if h.breakers != nil {
		body["llm"] = h.breakers.BreakerStatus()
	}
	return c.JSON(body)
}

// Ready reports 503 while the corpus is unavailable; chat requests would fail.
func (h *SystemHandler) Ready(c *fiber.Ctx) error {
	if !h.queryEngine.Ready() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"corpus": "unavailable",
		})
	}

	return c.JSON(fiber.Map{
		"status": "ready",
		"corpus": "available",
	})
}
