package config

import (
	"strings"

	"github.com/verte-zerg/intervue/internal/provider"
)

// defaultProviders is the chain used when the file has no [[providers]],
// in priority order.
var defaultProviders = []ProviderConfig{
	{Type: "openrouter", Models: []string{"meta-llama/llama-3.1-8b-instruct:free", "mistralai/mistral-7b-instruct:free"}},
	{Type: "openai", Models: []string{"gpt-4o-mini"}},
	{Type: "groq", Models: []string{"llama-3.1-8b-instant"}},
	{Type: "deepseek", Models: []string{"deepseek-chat"}},
	{Type: "claude", Models: []string{"claude-3-5-haiku-20241022"}},
	{Type: "gemini", Models: []string{"gemini-1.5-flash"}},
}

// ResolveProviders returns the configured providers, or the defaults whose
// key is present in the environment.
func ResolveProviders(cfg FileConfig, getenv func(string) string) []ProviderConfig {
	if len(cfg.Providers) > 0 {
		return append([]ProviderConfig(nil), cfg.Providers...)
	}
	var out []ProviderConfig
	for _, p := range defaultProviders {
		if p.APIKey(getenv) != "" {
			out = append(out, p)
		}
	}
	return out
}

// APIKey reads the provider's key from api-key-env, or from the standard
// variables for its type.
func (p ProviderConfig) APIKey(getenv func(string) string) string {
	if p.APIKeyEnv != "" {
		return strings.TrimSpace(getenv(p.APIKeyEnv))
	}
	for _, name := range provider.KeyEnv[strings.ToLower(p.Type)] {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// KeySource names the variable APIKey reads, for display.
func (p ProviderConfig) KeySource() string {
	if p.APIKeyEnv != "" {
		return p.APIKeyEnv
	}
	return strings.Join(provider.KeyEnv[strings.ToLower(p.Type)], "|")
}
