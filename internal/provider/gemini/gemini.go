// Package gemini implements a provider Caller for the Gemini REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/siteintel/analyzer/internal/analysis"
	"github.com/siteintel/analyzer/internal/provider"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Config controls the Gemini client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Caller issues generateContent requests.
type Caller struct {
	cfg    Config
	client *http.Client
}

// New builds a Caller.
func New(cfg Config) (*Caller, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key not set")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
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

type generateRequest struct {
	SystemInstruction *content          `json:"system_instruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Call performs one generateContent exchange and returns the text.
func (c *Caller) Call(ctx context.Context, prompt analysis.Prompt, constraints analysis.Constraints) (string, error) {
	reqBody := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt.User}}}},
	}
	if prompt.System != "" {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: prompt.System}}}
	}
	genCfg := &generationConfig{}
	if prompt.JSONResponse {
		genCfg.ResponseMimeType = "application/json"
	}
	if constraints.MaxOutputTokens > 0 {
		genCfg.MaxOutputTokens = constraints.MaxOutputTokens
	}
	zero := 0.0
	genCfg.Temperature = &zero
	reqBody.GenerationConfig = genCfg

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", provider.NewCallError(analysis.FailureNetwork, fmt.Errorf("read gemini response: %w", err))
	}

	if kind, ok := classifyStatus(resp.StatusCode); ok {
		return "", provider.NewCallError(kind, fmt.Errorf("gemini status %d: %s", resp.StatusCode, trim(body)))
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", provider.NewCallError(analysis.FailureInvalidResponse, fmt.Errorf("decode gemini response: %w", err))
	}
	if parsed.Error != nil {
		return "", provider.NewCallError(analysis.FailureProvider, fmt.Errorf("gemini error %d: %s", parsed.Error.Code, parsed.Error.Message))
	}
	if len(parsed.Candidates) == 0 {
		return "", provider.NewCallError(analysis.FailureInvalidResponse, fmt.Errorf("gemini response had no candidates"))
	}

	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func classifyStatus(status int) (analysis.FailureKind, bool) {
	switch {
	case status == http.StatusOK:
		return "", false
	case status == http.StatusTooManyRequests:
		return analysis.FailureRateLimited, true
	case status >= 500:
		return analysis.FailureProvider, true
	default:
		return analysis.FailureProvider, true
	}
}

func trim(body []byte) string {
	const max = 256
	s := string(body)
	if len(s) > max {
		return s[:max]
	}
	return s
}
