package provider

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/verte-zerg/intervue/internal/prompts"
)

const (
	// ClaudeBaseURL is the Anthropic API root.
	ClaudeBaseURL         = "https://api.anthropic.com"
	anthropicVersionKey   = "anthropic-version"
	anthropicVersionValue = "2023-06-01"
	claudeDefaultMaxToken = 1024
)

type claudeRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeResponse struct {
	Content    []claudeContent `json:"content"`
	StopReason string          `json:"stop_reason"`
}

// Claude talks to the Anthropic messages API.
type Claude struct {
	httpBase
}

// NewClaude builds an Anthropic messages client.
func NewClaude(baseURL, apiKey string, client *http.Client, log *zap.Logger) *Claude {
	return &Claude{httpBase: newHTTPBase("claude", normalizeClaudeURL(baseURL), apiKey, client, log)}
}

// normalizeClaudeURL makes sure the Anthropic host carries the /v1 prefix.
// Other hosts (test servers, proxies) are used as given.
func normalizeClaudeURL(baseURL string) string {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.Contains(baseURL, "api.anthropic.com") && !strings.HasSuffix(baseURL, "/v1") {
		return baseURL + "/v1"
	}
	return baseURL
}

// Complete implements Completer.
func (c *Claude) Complete(ctx context.Context, modelName string, p prompts.Prompt) (string, error) {
	if !c.Available() {
		return "", unavailable(c.name)
	}
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = claudeDefaultMaxToken
	}
	var resp claudeResponse
	err := c.postJSON(ctx, c.baseURL+"/messages", claudeRequest{
		Model:       modelName,
		MaxTokens:   maxTokens,
		Temperature: p.Temperature,
		System:      p.System,
		Messages:    []chatMessage{{Role: "user", Content: p.User}},
	}, map[string]string{
		"x-api-key":         c.apiKey,
		anthropicVersionKey: anthropicVersionValue,
	}, &resp)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, part := range resp.Content {
		if part.Type == "text" {
			b.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", &Error{Provider: c.name, Code: ErrCodeInvalidResponse, Message: "empty response content"}
	}
	return text, nil
}
