// Package openai implements a provider Caller for the OpenAI chat API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/siteintel/analyzer/internal/analysis"
	"github.com/siteintel/analyzer/internal/provider"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Config controls the OpenAI client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Caller issues chat completion requests.
type Caller struct {
	cfg    Config
	client *http.Client
}

// New builds a Caller.
func New(cfg Config) (*Caller, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key not set")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Caller{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Call performs one chat completion exchange and returns the text.
func (c *Caller) Call(ctx context.Context, prompt analysis.Prompt, constraints analysis.Constraints) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if prompt.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: prompt.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt.User})

	reqBody := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: 0,
	}
	if constraints.MaxOutputTokens > 0 {
		reqBody.MaxTokens = constraints.MaxOutputTokens
	}
	if prompt.JSONResponse {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.cfg.BaseURL+"/chat/completions",
		bytes.NewReader(payload),
	)
	if err != nil {
		return "", fmt.Errorf("build openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", provider.NewCallError(analysis.FailureNetwork, fmt.Errorf("read openai response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", provider.NewCallError(analysis.FailureRateLimited, fmt.Errorf("openai status 429"))
	case resp.StatusCode >= 500:
		return "", provider.NewCallError(analysis.FailureProvider, fmt.Errorf("openai status %d", resp.StatusCode))
	default:
		return "", provider.NewCallError(analysis.FailureProvider, fmt.Errorf("openai status %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", provider.NewCallError(analysis.FailureInvalidResponse, fmt.Errorf("decode openai response: %w", err))
	}
	if parsed.Error != nil {
		return "", provider.NewCallError(analysis.FailureProvider, fmt.Errorf("openai error: %s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return "", provider.NewCallError(analysis.FailureInvalidResponse, fmt.Errorf("openai response had no choices"))
	}
	return parsed.Choices[0].Message.Content, nil
}
