package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"variance-backend/internal/llm"
)

type capturedRequest struct {
	path  string
	key   string
	body  map[string]any
	calls int
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	captured := &capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		captured.path = r.URL.Path
		captured.key = r.URL.Query().Get("key")
		captured.body = payload
		captured.calls++
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return server, captured
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Options{APIKey: "test-key", Model: "gemini-test", BaseURL: baseURL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestGenerateSendsSchemaConstrainedRequest(t *testing.T) {
	server, captured := newTestServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"[]"}]}}]}`)
	client := newTestClient(t, server.URL)

	out, err := client.Generate(context.Background(), llm.Request{
		Prompt: "extract this",
		Schema: llm.CommentarySchema(),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "[]" {
		t.Fatalf("expected [] payload, got %q", out)
	}
	if captured.path != "/v1beta/models/gemini-test:generateContent" {
		t.Fatalf("unexpected path %q", captured.path)
	}
	if captured.key != "test-key" {
		t.Fatalf("expected key query param, got %q", captured.key)
	}

	contents := captured.body["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	if parts[0].(map[string]any)["text"] != "extract this" {
		t.Fatalf("unexpected prompt part: %v", parts[0])
	}
	genCfg, ok := captured.body["generationConfig"].(map[string]any)
	if !ok {
		t.Fatalf("expected generationConfig in request")
	}
	if genCfg["responseMimeType"] != "application/json" {
		t.Fatalf("unexpected mime type: %v", genCfg["responseMimeType"])
	}
	schema := genCfg["responseSchema"].(map[string]any)
	if schema["type"] != "ARRAY" {
		t.Fatalf("expected ARRAY schema, got %v", schema["type"])
	}
}

func TestGenerateFreeTextOmitsGenerationConfig(t *testing.T) {
	server, captured := newTestServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"Due to higher volume."}]}}]}`)
	client := newTestClient(t, server.URL)

	out, err := client.Generate(context.Background(), llm.Request{Prompt: "question"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Due to higher volume." {
		t.Fatalf("unexpected answer %q", out)
	}
	if _, ok := captured.body["generationConfig"]; ok {
		t.Fatalf("expected generationConfig to be omitted for free text")
	}
}

func TestGenerateSkipsThoughtParts(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"thinking...","thought":true},{"text":"Answer"},{"text":" here"}]}}]}`)
	client := newTestClient(t, server.URL)

	out, err := client.Generate(context.Background(), llm.Request{Prompt: "q"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Answer here" {
		t.Fatalf("unexpected text %q", out)
	}
}

func TestGenerateEmptyCandidatesReturnsEmptyText(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `{"candidates":[]}`)
	client := newTestClient(t, server.URL)

	out, err := client.Generate(context.Background(), llm.Request{Prompt: "q"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "" {
		t.Fatalf("expected empty text, got %q", out)
	}
}

func TestGenerateExtractsErrorMessage(t *testing.T) {
	server, _ := newTestServer(t, http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	client := newTestClient(t, server.URL)

	_, err := client.Generate(context.Background(), llm.Request{Prompt: "q"})
	var apiErr *llm.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", apiErr.StatusCode)
	}
	if apiErr.Message != "API key not valid" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
}

func TestGenerateUsesGenericMessageForOpaqueErrorBody(t *testing.T) {
	server, _ := newTestServer(t, http.StatusInternalServerError, `<html>oops</html>`)
	client := newTestClient(t, server.URL)

	_, err := client.Generate(context.Background(), llm.Request{Prompt: "q"})
	var apiErr *llm.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != llm.GenericErrorMessage {
		t.Fatalf("expected generic message, got %q", apiErr.Message)
	}
}

func TestGenerateMalformedSuccessBody(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `not json`)
	client := newTestClient(t, server.URL)

	_, err := client.Generate(context.Background(), llm.Request{Prompt: "q"})
	if !errors.Is(err, llm.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestGenerateTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := newTestClient(t, baseURL)
	_, err := client.Generate(context.Background(), llm.Request{Prompt: "q"})
	if !errors.Is(err, llm.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestNewClientRequiresKeyAndModel(t *testing.T) {
	if _, err := NewClient(Options{Model: "m"}); err == nil {
		t.Fatalf("expected error without api key")
	}
	if _, err := NewClient(Options{APIKey: "k"}); err == nil {
		t.Fatalf("expected error without model")
	}
}
