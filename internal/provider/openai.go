package provider

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/verte-zerg/intervue/internal/prompts"
)

// Base URLs of the OpenAI-compatible presets.
const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	DeepSeekBaseURL   = "https://api.deepseek.com/v1"
	GroqBaseURL       = "https://api.groq.com/openai/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	ID      string       `json:"id,omitempty"`
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// OpenAICompatible talks to any /chat/completions endpoint with Bearer auth.
type OpenAICompatible struct {
	httpBase
	headers map[string]string
}

// NewOpenAICompatible builds a chat-completions client. extraHeaders are
// sent with every request.
func NewOpenAICompatible(name, baseURL, apiKey string, client *http.Client, log *zap.Logger, extraHeaders map[string]string) *OpenAICompatible {
	return &OpenAICompatible{
		httpBase: newHTTPBase(name, strings.TrimSuffix(baseURL, "/"), apiKey, client, log),
		headers:  extraHeaders,
	}
}

// Complete implements Completer.
func (o *OpenAICompatible) Complete(ctx context.Context, modelName string, p prompts.Prompt) (string, error) {
	if !o.Available() {
		return "", unavailable(o.name)
	}
	messages := make([]chatMessage, 0, 2)
	if p.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: p.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: p.User})

	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}
	for key, value := range o.headers {
		headers[key] = value
	}

	var resp chatResponse
	err := o.postJSON(ctx, o.baseURL+"/chat/completions", chatRequest{
		Model:       modelName,
		Messages:    messages,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}, headers, &resp)
	if err != nil {
		return "", err
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return "", &Error{Provider: o.name, Code: ErrCodeInvalidResponse, Message: resp.Error.Message}
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Provider: o.name, Code: ErrCodeInvalidResponse, Message: "no choices in API response"}
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", &Error{Provider: o.name, Code: ErrCodeInvalidResponse, Message: "empty response content"}
	}
	return content, nil
}
