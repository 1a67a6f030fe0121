package provider

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/verte-zerg/intervue/internal/prompts"
)

// Spec describes one configured backend.
type Spec struct {
	Type    string
	Name    string
	BaseURL string
	APIKey  string
	Client  *http.Client
	Logger  *zap.Logger
}

// Factory creates a Completer from a spec.
type Factory func(spec Spec) (Completer, error)

var factories = make(map[string]Factory)

// Register adds a factory for a provider type.
func Register(typ string, factory Factory) {
	factories[strings.ToLower(typ)] = factory
}

// Types lists the registered provider types.
func Types() []string {
	types := make([]string, 0, len(factories))
	for typ := range factories {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// New builds a Provider from a spec.
func New(spec Spec, pm *prompts.Manager) (Provider, error) {
	factory, ok := factories[strings.ToLower(spec.Type)]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", spec.Type)
	}
	c, err := factory(spec)
	if err != nil {
		return nil, err
	}
	return NewAdapter(c, pm), nil
}

// KeyEnv maps provider types to the environment variables holding their key,
// in lookup order.
var KeyEnv = map[string][]string{
	"openai":     {"OPENAI_API_KEY"},
	"deepseek":   {"DEEPSEEK_API_KEY"},
	"groq":       {"GROQ_API_KEY"},
	"openrouter": {"OPENROUTER_API_KEY"},
	"claude":     {"ANTHROPIC_API_KEY", "CLAUDE_API_KEY"},
	"gemini":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// KeyFromEnv returns the first non-empty key for a provider type.
func KeyFromEnv(typ string) string {
	for _, name := range KeyEnv[strings.ToLower(typ)] {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

func nameOr(spec Spec, fallback string) string {
	if spec.Name != "" {
		return spec.Name
	}
	return fallback
}

func baseURLOr(spec Spec, fallback string) string {
	if spec.BaseURL != "" {
		return spec.BaseURL
	}
	return fallback
}

func openAIFactory(defaultName, defaultURL string, headers map[string]string) Factory {
	return func(spec Spec) (Completer, error) {
		return NewOpenAICompatible(nameOr(spec, defaultName), baseURLOr(spec, defaultURL), spec.APIKey, spec.Client, spec.Logger, headers), nil
	}
}

func init() {
	Register("openai", openAIFactory("openai", OpenAIBaseURL, nil))
	Register("deepseek", openAIFactory("deepseek", DeepSeekBaseURL, nil))
	Register("groq", openAIFactory("groq", GroqBaseURL, nil))
	Register("openrouter", openAIFactory("openrouter", OpenRouterBaseURL, map[string]string{
		"HTTP-Referer": "https://github.com/verte-zerg/intervue",
		"X-Title":      "intervue",
	}))
	Register("claude", func(spec Spec) (Completer, error) {
		c := NewClaude(baseURLOr(spec, ClaudeBaseURL), spec.APIKey, spec.Client, spec.Logger)
		if spec.Name != "" {
			c.name = spec.Name
		}
		return c, nil
	})
	Register("gemini", func(spec Spec) (Completer, error) {
		if spec.BaseURL != "" {
			return nil, fmt.Errorf("gemini provider does not support a custom base URL")
		}
		return NewGemini(spec.APIKey, spec.Logger), nil
	})
}
