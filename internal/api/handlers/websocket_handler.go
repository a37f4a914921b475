package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/oral-history/backend/internal/query"
	"github.com/oral-history/backend/pkg/logger"
)

type WebSocketHandler struct {
	queryEngine *query.Engine
}

func NewWebSocketHandler(queryEngine *query.Engine) *WebSocketHandler {
	return &WebSocketHandler{
		queryEngine: queryEngine,
	}
}

// Upgrade rejects plain HTTP requests to the websocket route.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

type wsMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	SessionID string `json:"sessionId"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	// A connection keeps one session unless the client names another.
	var sessionID string

	for {
		var msg wsMessage
		err := c.ReadJSON(&msg)
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "query" {
			continue
		}
		if msg.SessionID != "" {
			sessionID = msg.SessionID
		}

		response, err := h.streamResponse(c, msg.Content, sessionID)
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, wsErrorMessage(err))
			continue
		}
		sessionID = response.SessionID
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, queryText, sessionID string) (*query.Response, error) {
	if err := h.sendChunk(c, "status", "Searching the interviews..."); err != nil {
		return nil, err
	}

	response, err := h.queryEngine.Answer(context.Background(), query.Request{
		Query:     queryText,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, err
	}

	words := splitIntoWords(response.Response)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}

		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return nil, err
		}
	}

	if err := h.sendComplete(c, response); err != nil {
		return nil, err
	}

	return response, nil
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(fiber.Map{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, response *query.Response) error {
	return c.WriteJSON(fiber.Map{
		"type":               "complete",
		"id":                 response.ID,
		"sessionId":          response.SessionID,
		"relevantInterviews": response.Sources,
		"logged":             response.Logged,
		"latencyMs":          response.LatencyMS,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	_ = c.WriteJSON(fiber.Map{
		"type":  "error",
		"error": errorMsg,
	})
}

func wsErrorMessage(err error) string {
	switch {
	case errors.Is(err, query.ErrInvalidInput):
		return "Message is required"
	case errors.Is(err, query.ErrCorpusUnavailable):
		return "Interview corpus is not available"
	case errors.Is(err, query.ErrGenerationUnavailable):
		return "No answer could be produced"
	default:
		return "Failed to process query"
	}
}

// splitIntoWords splits on spaces and keeps newlines as their own tokens.
func splitIntoWords(text string) []string {
	words := []string{}
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, char := range text {
		switch char {
		case ' ':
			flush()
		case '\n':
			flush()
			words = append(words, "\n")
		default:
			current.WriteRune(char)
		}
	}
	flush()

	return words
}
