package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestLiveReportsMappingVersion(t *testing.T) {
	app := fiber.New()
	h := NewHealthHandler("maintenance-ticket-service", "dev", "v1", nil, nil, nil)
	app.Get("/health/live", h.Live)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `"cedar_mapping":"v1"`) {
		t.Errorf("body = %s, want cedar_mapping v1", body)
	}
	if !strings.Contains(string(body), `"status":"alive"`) {
		t.Errorf("body = %s, want alive status", body)
	}
}
