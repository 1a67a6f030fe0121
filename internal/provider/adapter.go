package provider

import (
	"context"
	"strconv"

	"github.com/verte-zerg/intervue/internal/prompts"
)

// Completer is a single backend protocol: send one prompt, get text back.
type Completer interface {
	Name() string
	Available() bool
	Complete(ctx context.Context, modelName string, p prompts.Prompt) (string, error)
}

// Adapter turns a Completer into a Provider by rendering the interview
// prompts for each operation.
type Adapter struct {
	completer Completer
	prompts   *prompts.Manager
}

// NewAdapter builds a Provider on top of a Completer.
func NewAdapter(c Completer, pm *prompts.Manager) *Adapter {
	return &Adapter{completer: c, prompts: pm}
}

// Name returns the backend name.
func (a *Adapter) Name() string { return a.completer.Name() }

// Available reports whether the backend has a usable credential.
func (a *Adapter) Available() bool { return a.completer.Available() }

// GenerateQuestions implements Provider.
func (a *Adapter) GenerateQuestions(ctx context.Context, modelName string, req QuestionRequest) (string, error) {
	return a.run(ctx, modelName, prompts.Questions, map[string]string{
		"Role":  req.Role,
		"Count": strconv.Itoa(req.Count),
	})
}

// EvaluateAnswer implements Provider.
func (a *Adapter) EvaluateAnswer(ctx context.Context, modelName string, req EvaluationRequest) (string, error) {
	return a.run(ctx, modelName, prompts.Evaluation, map[string]string{
		"Role":       req.Role,
		"Question":   req.Question,
		"Difficulty": string(req.Difficulty),
		"Answer":     req.Answer,
	})
}

// GenerateSummary implements Provider.
func (a *Adapter) GenerateSummary(ctx context.Context, modelName string, req SummaryRequest) (string, error) {
	return a.run(ctx, modelName, prompts.Summary, map[string]string{
		"Role":       req.Role,
		"Score":      strconv.Itoa(req.Score),
		"Transcript": req.Transcript,
	})
}

func (a *Adapter) run(ctx context.Context, modelName, template string, values map[string]string) (string, error) {
	if !a.completer.Available() {
		return "", unavailable(a.completer.Name())
	}
	p, err := a.prompts.Build(template, values)
	if err != nil {
		return "", &Error{Provider: a.completer.Name(), Code: ErrCodeInvalidResponse, Message: "failed to build prompt", Err: err}
	}
	return a.completer.Complete(ctx, modelName, p)
}
