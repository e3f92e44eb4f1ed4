package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewAppValidatesOptions(t *testing.T) {
	gateway := GatewayHandlerFunc(func(c fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	if _, err := NewApp(AppOptions{Gateway: gateway, ListenPort: 5000}); err == nil {
		t.Fatalf("missing logger should fail")
	}
	if _, err := NewApp(AppOptions{Logger: testLogger(), ListenPort: 5000}); err == nil {
		t.Fatalf("missing gateway should fail")
	}
	if _, err := NewApp(AppOptions{Logger: testLogger(), Gateway: gateway, ListenPort: 0}); err == nil {
		t.Fatalf("invalid port should fail")
	}
}

func TestRequestsRouteThroughGateway(t *testing.T) {
	var seenID string
	gateway := GatewayHandlerFunc(func(c fiber.Ctx) error {
		seenID = RequestID(c)
		return c.SendString("intercepted")
	})

	app, err := NewApp(AppOptions{Logger: testLogger(), Gateway: gateway, ListenPort: 5000})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "http://gateway.local/index.html", nil))
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if seenID == "" {
		t.Fatalf("request id should be available to the gateway")
	}
	if header := resp.Header.Get("X-Request-ID"); header != seenID {
		t.Fatalf("request id header mismatch: %s vs %s", header, seenID)
	}
}

func TestControlPathsBypassGateway(t *testing.T) {
	gateway := GatewayHandlerFunc(func(c fiber.Ctx) error {
		t.Fatalf("control paths must not reach the gateway")
		return nil
	})

	app, err := NewApp(AppOptions{Logger: testLogger(), Gateway: gateway, ListenPort: 5000})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}
	app.Get("/-/ping", func(c fiber.Ctx) error {
		return c.SendString("pong")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "http://gateway.local/-/ping", nil))
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "pong" {
		t.Fatalf("expected control route body, got %s", string(body))
	}
}

func TestCopyHeadersStripsHopByHop(t *testing.T) {
	src := http.Header{
		"Connection":    {"keep-alive"},
		"Keep-Alive":    {"timeout=5"},
		"Content-Type":  {"application/json"},
		"Cache-Control": {"no-cache"},
	}
	dst := http.Header{}
	CopyHeaders(dst, src)

	if dst.Get("Connection") != "" || dst.Get("Keep-Alive") != "" {
		t.Fatalf("hop-by-hop headers must be stripped")
	}
	if dst.Get("Content-Type") != "application/json" {
		t.Fatalf("end-to-end headers must survive")
	}
}

func TestIsHopByHopHeaderCanonicalizes(t *testing.T) {
	if !IsHopByHopHeader("transfer-encoding") {
		t.Fatalf("lookup should be case-insensitive")
	}
	if IsHopByHopHeader("Content-Length") {
		t.Fatalf("Content-Length is not hop-by-hop")
	}
}
