package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ChatBodyKey is the fiber.Locals key holding the sanitized ChatBody.
const ChatBodyKey = "chat_body"

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

// ChatBody is the request shape shared by the chat routes.
type ChatBody struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type Config struct {
	MaxMessageLength int
	// ChatPaths are the routes whose body is a ChatBody.
	ChatPaths []string
	Logger    *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxMessageLength == 0 {
		cfg.MaxMessageLength = 4000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	chatPaths := make(map[string]struct{}, len(cfg.ChatPaths))
	for _, p := range cfg.ChatPaths {
		chatPaths[p] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" && !strings.Contains(contentType, fiber.MIMEApplicationJSON) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		if _, ok := chatPaths[c.Path()]; !ok || c.Method() != fiber.MethodPost {
			return c.Next()
		}

		var req ChatBody
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		if utf8.RuneCountInString(req.Message) > cfg.MaxMessageLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Message exceeds maximum length",
			})
		}

		if containsXSS(req.Message) {
			cfg.Logger.Warn("Potential XSS attempt",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid message content",
			})
		}

		req.Message = sanitizeString(req.Message)
		req.SessionID = sanitizeString(req.SessionID)
		c.Locals(ChatBodyKey, req)

		return c.Next()
	}
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

func sanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
