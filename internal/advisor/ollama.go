package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Generator produces advisory text from a prompt. Satisfied by OllamaClient;
// tests substitute a canned implementation.
type Generator interface {
	Generate(ctx context.Context, opts GenerateOptions, prompt string) (string, error)
}

// GenerateOptions tunes one completion request. TopP is only sent when
// positive so the small alert model keeps its server-side default.
type GenerateOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	TopP        float64
	Timeout     time.Duration
}

// OllamaClient calls a local Ollama generate endpoint. Completion deadlines
// come from GenerateOptions.Timeout rather than the HTTP client so the two
// agents can run different models with different budgets over one client.
type OllamaClient struct {
	url        string
	httpClient *http.Client
}

// NewOllamaClient constructs a client for the configured generate URL.
func NewOllamaClient(url string) *OllamaClient {
	return &OllamaClient{
		url:        url,
		httpClient: &http.Client{},
	}
}

// Generate requests a completion and returns the trimmed response text.
func (c *OllamaClient) Generate(ctx context.Context, opts GenerateOptions, prompt string) (string, error) {
	if c == nil || c.url == "" {
		return "", fmt.Errorf("ollama URL not configured")
	}

	options := map[string]any{
		"temperature": opts.Temperature,
		"max_tokens":  opts.MaxTokens,
	}
	if opts.TopP > 0 {
		options["top_p"] = opts.TopP
	}
	payload := map[string]any{
		"model":   opts.Model,
		"prompt":  prompt,
		"stream":  false,
		"options": options,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned %s", resp.Status)
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return strings.TrimSpace(out.Response), nil
}
