// Package provider wraps AI chat-completion backends behind one capability
// interface.
package provider

import (
	"context"
	"strings"

	"github.com/verte-zerg/intervue/internal/model"
)

// Provider is the uniform capability set every backend offers. Each
// operation returns the backend's raw text; normalization is the caller's job.
type Provider interface {
	Name() string
	Available() bool
	GenerateQuestions(ctx context.Context, modelName string, req QuestionRequest) (string, error)
	EvaluateAnswer(ctx context.Context, modelName string, req EvaluationRequest) (string, error)
	GenerateSummary(ctx context.Context, modelName string, req SummaryRequest) (string, error)
}

// QuestionRequest asks for a batch of interview questions.
type QuestionRequest struct {
	Role  string
	Count int
}

// EvaluationRequest asks for a grade of one answer.
type EvaluationRequest struct {
	Role       string
	Question   string
	Difficulty model.Difficulty
	Answer     string
}

// SummaryRequest asks for a narrative debrief of a finished interview.
type SummaryRequest struct {
	Role       string
	Score      int
	Transcript string
}

// Error is a failure reported by a provider.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Provider + " error: " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Provider + " error: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Error codes shared by all providers.
const (
	ErrCodeAPIKey          = "invalid_api_key"
	ErrCodeRateLimit       = "rate_limit_exceeded"
	ErrCodeServiceDown     = "service_unavailable"
	ErrCodeInvalidResponse = "invalid_response"
	ErrCodeTimeout         = "timeout"
)

const minKeyLength = 16

var placeholderMarkers = []string{
	"your_", "your-", "placeholder", "changeme", "replace", "xxxx", "example", "<", "...",
}

// ValidKey reports whether an API key looks usable. Empty, short, and
// template-looking keys are rejected so no request is ever sent with them.
func ValidKey(key string) bool {
	key = strings.TrimSpace(key)
	if len(key) < minKeyLength {
		return false
	}
	lower := strings.ToLower(key)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return !strings.ContainsAny(key, " \t\n")
}

func unavailable(name string) error {
	return &Error{Provider: name, Code: ErrCodeAPIKey, Message: "missing or placeholder API key"}
}
