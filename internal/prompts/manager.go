// Package prompts loads the embedded prompt templates used by provider adapters.
package prompts

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// Template names.
const (
	Questions  = "questions"
	Evaluation = "evaluation"
	Summary    = "summary"
)

// Template is one loaded prompt template.
type Template struct {
	System      string  `yaml:"system"`
	User        string  `yaml:"user"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Prompt is a rendered template ready to send to a provider.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Manager holds parsed templates by name.
type Manager struct {
	templates map[string]Template
}

// NewManager parses every embedded template.
func NewManager() (*Manager, error) {
	m := &Manager{templates: make(map[string]Template)}
	if err := m.load(); err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}
	return m, nil
}

// MustManager is NewManager for package-level defaults; the templates are
// compiled in, so a failure is a build defect.
func MustManager() *Manager {
	m, err := NewManager()
	if err != nil {
		panic(err)
	}
	return m
}

// Names returns the loaded template names in sorted order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.templates))
	for name := range m.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build renders the named template with the given values. Placeholders have
// the form {{.Key}}.
func (m *Manager) Build(name string, values map[string]string) (Prompt, error) {
	tmpl, ok := m.templates[name]
	if !ok {
		return Prompt{}, fmt.Errorf("template not found: %s", name)
	}
	return Prompt{
		System:      fill(tmpl.System, values),
		User:        fill(tmpl.User, values),
		Temperature: tmpl.Temperature,
		MaxTokens:   tmpl.MaxTokens,
	}, nil
}

// fill substitutes every placeholder in one pass, so values that look like
// placeholders themselves are left as typed.
func fill(text string, values map[string]string) string {
	pairs := make([]string, 0, 2*len(values))
	for key, value := range values {
		pairs = append(pairs, "{{."+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

func (m *Manager) load() error {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return fmt.Errorf("failed to read templates directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := templateFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read template file %s: %w", entry.Name(), err)
		}
		var tmpl Template
		if err := yaml.Unmarshal(data, &tmpl); err != nil {
			return fmt.Errorf("failed to parse template file %s: %w", entry.Name(), err)
		}
		if strings.TrimSpace(tmpl.User) == "" {
			return fmt.Errorf("template %s has no user prompt", entry.Name())
		}
		m.templates[strings.TrimSuffix(entry.Name(), ".yaml")] = tmpl
	}
	return nil
}
