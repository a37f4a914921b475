package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/oral-history/backend/internal/middleware/validation"
	"github.com/oral-history/backend/internal/query"
	"github.com/oral-history/backend/pkg/logger"
)

type ChatHandler struct {
	queryEngine *query.Engine
}

func NewChatHandler(queryEngine *query.Engine) *ChatHandler {
	return &ChatHandler{
		queryEngine: queryEngine,
	}
}

// HandleChat serves both the versioned chat route and the legacy
// /api/openai route; they share request and response shapes.
func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	req, ok := c.Locals(validation.ChatBodyKey).(validation.ChatBody)
	if !ok {
		if err := c.BodyParser(&req); err != nil {
			logger.Error("Failed to parse request body", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	response, err := h.queryEngine.Answer(c.UserContext(), query.Request{
		Query:     req.Message,
		SessionID: req.SessionID,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(response)
}

// writeError maps engine errors to status codes. Answers that were produced
// but not logged never reach here; they carry logged=false instead.
func writeError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Failed to process your request."

	switch {
	case errors.Is(err, query.ErrInvalidInput):
		status = fiber.StatusBadRequest
		message = "Message is required"
	case errors.Is(err, query.ErrCorpusUnavailable):
		status = fiber.StatusServiceUnavailable
		message = "Interview corpus is not available"
	case errors.Is(err, query.ErrEmbeddingUnavailable):
		status = fiber.StatusBadGateway
		message = "Could not search the interviews for this question"
	case errors.Is(err, query.ErrGenerationUnavailable):
		status = fiber.StatusBadGateway
		message = "No answer could be produced"
	}

	if status >= fiber.StatusInternalServerError {
		logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	} else {
		logger.Debug("Request rejected", zap.String("path", c.Path()), zap.Error(err))
	}

	return c.Status(status).JSON(fiber.Map{
		"error":   message,
		"details": err.Error(),
	})
}
