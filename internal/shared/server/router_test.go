package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"variance-backend/internal/services/health"
	"variance-backend/internal/sessions"
	"variance-backend/internal/shared/config"
)

func newTestRouter(t *testing.T, perMinute int) http.Handler {
	t.Helper()
	return newLimitedRouter(t, config.Config{LLMRatePerMinute: perMinute})
}

func newLimitedRouter(t *testing.T, limits config.Config) http.Handler {
	t.Helper()
	manager := sessions.NewManager(sessions.Options{})
	t.Cleanup(manager.Close)
	return NewRouter(RouterDeps{
		Config: config.Config{
			CORSAllowOrigin: []string{"http://localhost:5173"},
			LLMProvider:     config.ProviderGemini,

			LLMRatePerMinute:       limits.LLMRatePerMinute,
			LLMClientRatePerMinute: limits.LLMClientRatePerMinute,
			SessionCreatePerMinute: limits.SessionCreatePerMinute,
		},
		Sessions: sessions.NewHandler(manager),
		Health: health.NewService(health.Options{
			Provider: config.ProviderGemini,
			Sessions: manager.Len,
		}),
	})
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, 5)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var st health.Status
	if err := json.Unmarshal(resp.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.OK || st.LLMConfigured || st.Provider != "gemini" {
		t.Fatalf("unexpected status %+v", st)
	}
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, 5)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "# TYPE") {
		t.Fatalf("expected prometheus text, got %q", resp.Body.String())
	}
}

func TestExtractIsRateLimitedPerSession(t *testing.T) {
	router := newTestRouter(t, 1)

	create := httptest.NewRecorder()
	router.ServeHTTP(create, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	if create.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", create.Code)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(create.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	path := "/api/v1/sessions/" + created.ID + "/extract"
	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, path, nil))
	if first.Code == http.StatusTooManyRequests {
		t.Fatalf("first extract should not be limited")
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, path, nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	get := httptest.NewRecorder()
	router.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+created.ID, nil))
	if get.Code != http.StatusOK {
		t.Fatalf("non-LLM routes should not be limited, got %d", get.Code)
	}
}

func createTestSession(t *testing.T, router http.Handler) string {
	t.Helper()
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return created.ID
}

func TestExtractIsRateLimitedPerClientAcrossSessions(t *testing.T) {
	router := newLimitedRouter(t, config.Config{LLMRatePerMinute: 5, LLMClientRatePerMinute: 1})
	first, second := createTestSession(t, router), createTestSession(t, router)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+first+"/extract", nil))
	if resp.Code == http.StatusTooManyRequests {
		t.Fatalf("first extract should not be limited")
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+second+"/extract", nil))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("a fresh session must not reset the client budget, got %d", resp.Code)
	}
}

func TestSessionCreationIsRateLimited(t *testing.T) {
	router := newLimitedRouter(t, config.Config{SessionCreatePerMinute: 1})
	createTestSession(t, router)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
}

func TestAddr(t *testing.T) {
	cases := map[string]string{"": ":8080", "9000": ":9000", ":7000": ":7000"}
	for in, want := range cases {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}
