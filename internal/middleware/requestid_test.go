package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func requestIDTestApp() *fiber.App {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequestIDGeneratedWhenAbsent(t *testing.T) {
	app := requestIDTestApp()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ping", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if _, err := uuid.Parse(resp.Header.Get(requestIDHeader)); err != nil {
		t.Fatalf("expected a UUID request id, got %q", resp.Header.Get(requestIDHeader))
	}
}

func TestRequestIDKeepsValidIncomingID(t *testing.T) {
	app := requestIDTestApp()
	incoming := uuid.NewString()

	req := httptest.NewRequest(fiber.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, incoming)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if got := resp.Header.Get(requestIDHeader); got != incoming {
		t.Fatalf("expected request id %q echoed, got %q", incoming, got)
	}
}

func TestRequestIDReplacesMalformedIncomingID(t *testing.T) {
	app := requestIDTestApp()

	req := httptest.NewRequest(fiber.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "not-a-uuid")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	got := resp.Header.Get(requestIDHeader)
	if got == "not-a-uuid" {
		t.Fatalf("malformed request id must be replaced")
	}
	if _, err := uuid.Parse(got); err != nil {
		t.Fatalf("expected a UUID replacement, got %q", got)
	}
}
