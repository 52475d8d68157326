package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"variance-backend/internal/llm"
	"variance-backend/internal/shared/telemetry"
)

// Options configures a Client.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client implements llm.Generator using OpenAI-compatible Chat Completions.
type Client struct {
	api   *goopenai.Client
	model string
}

// NewClient constructs a new OpenAI client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	cfg := goopenai.DefaultConfig(opts.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		cfg.BaseURL = base
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{
		api:   goopenai.NewClientWithConfig(cfg),
		model: opts.Model,
	}, nil
}

// Generate sends the prompt as a single user message. Schema-constrained
// requests get a system instruction asking for a bare JSON array, since the
// chat API cannot constrain a top-level array.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if req.Schema != nil {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: schemaInstruction(req.Schema),
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", classify(err)
	}
	telemetry.Info("llm.openai.usage", map[string]any{
		"model":             c.model,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"total_tokens":      resp.Usage.TotalTokens,
	})
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return stripCodeFence(resp.Choices[0].Message.Content), nil
}

func schemaInstruction(schema *llm.Schema) string {
	encoded, err := json.Marshal(schema)
	if err != nil {
		return "Respond with JSON only."
	}
	return "Respond with JSON only, with no prose and no code fences. The response must validate against this schema: " + string(encoded)
}

func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return llm.NewAPIError(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return llm.NewAPIError(reqErr.HTTPStatusCode, "")
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
	}
	return llm.Transport(err)
}

// stripCodeFence removes a surrounding ``` fence some chat models add around JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var _ llm.Generator = (*Client)(nil)
