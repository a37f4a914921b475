package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/oral-history/backend/internal/query"
)

type InterviewHandler struct {
	queryEngine *query.Engine
}

func NewInterviewHandler(queryEngine *query.Engine) *InterviewHandler {
	return &InterviewHandler{
		queryEngine: queryEngine,
	}
}

func (h *InterviewHandler) Search(c *fiber.Ctx) error {
	interviews, err := h.queryEngine.Search(c.Query("q"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"interviews": interviews,
	})
}

func (h *InterviewHandler) Metadata(c *fiber.Ctx) error {
	snapshot, err := h.queryEngine.Metadata()
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(snapshot)
}
