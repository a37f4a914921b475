package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func newApp(rl *RateLimiter) *fiber.App {
	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func status(t *testing.T, app *fiber.App, session string) int {
	t.Helper()
	req := httptest.NewRequest("GET", "/", nil)
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp.StatusCode
}

func TestLimitPerSession(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 2})
	defer rl.Stop()
	app := newApp(rl)

	for i := 0; i < 2; i++ {
		if got := status(t, app, "s1"); got != fiber.StatusOK {
			t.Fatalf("request %d: status %d", i, got)
		}
	}
	if got := status(t, app, "s1"); got != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", got)
	}
	if got := status(t, app, "s2"); got != fiber.StatusOK {
		t.Fatalf("other session throttled: %d", got)
	}
}

func TestRefill(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1})
	defer rl.Stop()

	clock := time.Unix(1000, 0)
	rl.now = func() time.Time { return clock }

	if !rl.allow("k") {
		t.Fatal("first request denied")
	}
	if rl.allow("k") {
		t.Fatal("second request allowed before refill")
	}
	clock = clock.Add(time.Minute)
	if !rl.allow("k") {
		t.Fatal("request denied after refill window")
	}
}
