package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func corsRouter(origins ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS(origins))
	router.POST("/api/v1/sessions/:id/extract", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func preflight(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions/123/extract", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	return req
}

func TestCORSOptionsPreflight(t *testing.T) {
	resp := httptest.NewRecorder()
	corsRouter("http://localhost:5173/").ServeHTTP(resp, preflight("http://localhost:5173"))

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	h := resp.Header()
	if h.Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("unexpected Allow-Origin %q", h.Get("Access-Control-Allow-Origin"))
	}
	if h.Get("Access-Control-Allow-Methods") == "" || h.Get("Access-Control-Allow-Headers") == "" {
		t.Fatalf("expected preflight allow headers, got %v", h)
	}
	if h.Get("Access-Control-Max-Age") != "600" {
		t.Fatalf("expected Max-Age 600, got %q", h.Get("Access-Control-Max-Age"))
	}
}

func TestCORSHeadersOnPost(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/123/extract", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp := httptest.NewRecorder()
	corsRouter("http://localhost:5173").ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	h := resp.Header()
	if h.Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("unexpected Allow-Origin %q", h.Get("Access-Control-Allow-Origin"))
	}
	if h.Get("Access-Control-Expose-Headers") != corsExposeHeaders {
		t.Fatalf("expected exposed Retry-After, got %q", h.Get("Access-Control-Expose-Headers"))
	}
	if h.Get("Access-Control-Max-Age") != "" {
		t.Fatalf("max-age belongs on preflights only")
	}
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/123/extract", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp := httptest.NewRecorder()
	corsRouter("http://localhost:5173").ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected request to pass through, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no Allow-Origin, got %q", got)
	}
}

func TestCORSRejectsUnknownOriginPreflight(t *testing.T) {
	resp := httptest.NewRecorder()
	corsRouter("http://localhost:5173").ServeHTTP(resp, preflight("http://evil.example"))

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestCORSWildcardAllowsAnyOrigin(t *testing.T) {
	resp := httptest.NewRecorder()
	corsRouter("*").ServeHTTP(resp, preflight("http://localhost:3000"))

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected echoed origin, got %q", got)
	}
}
