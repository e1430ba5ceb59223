// Package claude wraps the Anthropic messages API with fixed per-purpose
// completion parameters.
package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/planward/planward/internal/plan"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	defaultModel   = "claude-sonnet-4-20250514"
	defaultTimeout = 120 * time.Second

	apiVersion = "2023-06-01"
)

// maxResponseSize bounds the response body read to prevent memory exhaustion.
const maxResponseSize = 10 << 20 // 10MB

// Purpose selects the parameter set for a completion call.
type Purpose string

const (
	PurposeAnalysis Purpose = "analysis"
	PurposeStrategy Purpose = "strategy"
	PurposeSquare   Purpose = "square"
	PurposeValidate Purpose = "validate"
)

type callParams struct {
	maxTokens   int
	temperature float64
}

// Fixed parameter table; one entry per call purpose.
var purposeParams = map[Purpose]callParams{
	PurposeAnalysis: {maxTokens: 8000, temperature: 0.3},
	PurposeStrategy: {maxTokens: 8000, temperature: 0.2},
	PurposeSquare:   {maxTokens: 4000, temperature: 0.3},
	PurposeValidate: {maxTokens: 2000, temperature: 0.3},
}

// Client communicates with the Anthropic messages API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates a Client with the given API key and model identifier.
// An empty model falls back to the default.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, model, baseURL string) *Client {
	c := NewClient(apiKey, model)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a single-turn completion and returns the raw text output.
// Transport errors, non-200 statuses, and non-text content all surface as
// UpstreamError. Retrying is the caller's responsibility.
func (c *Client) Complete(ctx context.Context, purpose Purpose, prompt string) (string, error) {
	params, ok := purposeParams[purpose]
	if !ok {
		return "", &plan.UpstreamError{Op: string(purpose), Err: fmt.Errorf("unknown call purpose")}
	}

	body, err := json.Marshal(messagesRequest{
		Model:       c.model,
		MaxTokens:   params.maxTokens,
		Temperature: params.temperature,
		Messages:    []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &plan.UpstreamError{Op: string(purpose), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", &plan.UpstreamError{Op: string(purpose), Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &plan.UpstreamError{
			Op:  string(purpose),
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 500)),
		}
	}

	var parsed messagesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &plan.UpstreamError{Op: string(purpose), Err: fmt.Errorf("decoding response: %w", err)}
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", &plan.UpstreamError{Op: string(purpose), Err: fmt.Errorf("no text content in response")}
	}
	return text, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
