package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/oral-history/backend/internal/conversation"
	"github.com/oral-history/backend/internal/query"
	"github.com/oral-history/backend/pkg/logger"
)

type SessionHandler struct {
	queryEngine *query.Engine
}

func NewSessionHandler(queryEngine *query.Engine) *SessionHandler {
	return &SessionHandler{
		queryEngine: queryEngine,
	}
}

func (h *SessionHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"sessions": h.queryEngine.ListSessions(),
	})
}

func (h *SessionHandler) Get(c *fiber.Ctx) error {
	session, ok := h.queryEngine.GetSession(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	return c.JSON(session)
}

// Create registers an empty session. A persist failure still returns the id
// since the session exists in memory.
func (h *SessionHandler) Create(c *fiber.Ctx) error {
	id, err := h.queryEngine.CreateSession(c.UserContext())
	if err != nil && !errors.Is(err, conversation.ErrPersist) {
		logger.Error("Failed to create session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create session",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"sessionId": id,
		"logged":    err == nil,
	})
}
