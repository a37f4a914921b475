package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/oral-history/backend/internal/query"
	"github.com/oral-history/backend/pkg/logger"
)

const webhookFallback = "Sorry, I couldn't find an answer in the interviews right now. Please try again."

// WebhookHandler fulfills intents from a Dialogflow-style conversational
// agent by answering the matched query text.
type WebhookHandler struct {
	queryEngine *query.Engine
}

func NewWebhookHandler(queryEngine *query.Engine) *WebhookHandler {
	return &WebhookHandler{
		queryEngine: queryEngine,
	}
}

type webhookRequest struct {
	Session     string `json:"session"`
	QueryResult struct {
		QueryText string `json:"queryText"`
	} `json:"queryResult"`
}

func (h *WebhookHandler) Handle(c *fiber.Ctx) error {
	var req webhookRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse webhook body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if strings.TrimSpace(req.QueryResult.QueryText) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "queryResult.queryText is required",
		})
	}

	response, err := h.queryEngine.Answer(c.UserContext(), query.Request{
		Query:     req.QueryResult.QueryText,
		SessionID: sessionFromPath(req.Session),
	})
	if err != nil {
		// The agent shows fulfillmentText to the user, so failures still
		// answer 200 with a fallback.
		logger.Error("Webhook fulfillment failed", zap.Error(err))
		return c.JSON(fiber.Map{
			"fulfillmentText": webhookFallback,
		})
	}

	return c.JSON(fiber.Map{
		"fulfillmentText": response.Response,
	})
}

// sessionFromPath returns the last segment of
// projects/<p>/agent/sessions/<id>.
func sessionFromPath(session string) string {
	session = strings.TrimRight(session, "/")
	if i := strings.LastIndex(session, "/"); i >= 0 {
		return session[i+1:]
	}
	return session
}
