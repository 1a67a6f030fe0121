package provider

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/verte-zerg/intervue/internal/prompts"
)

// Gemini talks to the Gemini API through the genai SDK.
type Gemini struct {
	apiKey string
	log    *zap.Logger

	mu     sync.Mutex
	client *genai.Client
}

// NewGemini builds a Gemini client. The SDK client is created lazily on the
// first call.
func NewGemini(apiKey string, log *zap.Logger) *Gemini {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gemini{apiKey: apiKey, log: log.Named("gemini")}
}

// Name implements Completer.
func (g *Gemini) Name() string { return "gemini" }

// Available implements Completer.
func (g *Gemini) Available() bool { return ValidKey(g.apiKey) }

func (g *Gemini) sdk() (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &Error{Provider: g.Name(), Code: ErrCodeAPIKey, Message: "failed to create Gemini client", Err: err}
	}
	g.client = client
	return client, nil
}

// Complete implements Completer.
func (g *Gemini) Complete(ctx context.Context, modelName string, p prompts.Prompt) (string, error) {
	if !g.Available() {
		return "", unavailable(g.Name())
	}
	client, err := g.sdk()
	if err != nil {
		return "", err
	}
	prompt := p.User
	if p.System != "" {
		prompt = p.System + "\n\n" + p.User
	}
	result, err := client.Models.GenerateContent(ctx, modelName, genai.Text(prompt), nil)
	if err != nil {
		code := ErrCodeServiceDown
		if ctx.Err() != nil {
			code = ErrCodeTimeout
		}
		return "", &Error{Provider: g.Name(), Code: code, Message: "failed to generate content", Err: err}
	}
	if result == nil {
		return "", &Error{Provider: g.Name(), Code: ErrCodeInvalidResponse, Message: "no response generated"}
	}
	text, err := result.Text()
	if err != nil {
		return "", &Error{Provider: g.Name(), Code: ErrCodeInvalidResponse, Message: "failed to extract response text", Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &Error{Provider: g.Name(), Code: ErrCodeInvalidResponse, Message: "empty response generated"}
	}
	g.log.Debug("content generated", zap.String("model", modelName), zap.Int("chars", len(text)))
	return text, nil
}
