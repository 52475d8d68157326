package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"variance-backend/internal/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Options configures a Client.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client implements llm.Generator against the generateContent REST endpoint.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a new Gemini client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for Gemini")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		apiKey:  opts.APIKey,
		model:   opts.Model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type part struct {
	Text    string `json:"text"`
	Thought bool   `json:"thought,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string      `json:"responseMimeType,omitempty"`
	ResponseSchema   *llm.Schema `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
}

type errorResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate issues a single generateContent call and returns the generated text.
// An empty string is returned when the response has no candidate text.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	body := generateRequest{
		Contents: []content{{Parts: []part{{Text: req.Prompt}}}},
	}
	if req.Schema != nil {
		body.GenerationConfig = &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   req.Schema,
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", llm.Transport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", llm.Transport(err)
	}

	if resp.StatusCode >= 400 {
		return "", llm.NewAPIError(resp.StatusCode, errorMessage(raw))
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
	}
	return candidateText(parsed), nil
}

func (c *Client) endpoint() string {
	q := url.Values{}
	q.Set("key", c.apiKey)
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent?%s", c.baseURL, url.PathEscape(c.model), q.Encode())
}

func errorMessage(raw []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Error == nil {
		return ""
	}
	return parsed.Error.Message
}

// candidateText joins the non-thought text parts of the first candidate.
func candidateText(resp generateResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}

var _ llm.Generator = (*Client)(nil)
