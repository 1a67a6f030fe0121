// Package aggregator turns six graded answers into a final score and a
// narrative summary.
package aggregator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/verte-zerg/intervue/internal/chain"
	"github.com/verte-zerg/intervue/internal/metrics"
	"github.com/verte-zerg/intervue/internal/model"
)

// Summarizer narrates a finished interview. *chain.Chain implements it.
type Summarizer interface {
	Summarize(ctx context.Context, in chain.SummaryInput) (string, error)
}

// Result is the outcome of finalizing a session.
type Result struct {
	Score    int
	Summary  string
	Fallback bool
}

// Aggregator computes final results.
type Aggregator struct {
	summarizer Summarizer
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// New creates an Aggregator. summarizer may be nil, in which case every
// summary is templated.
func New(summarizer Summarizer, m *metrics.Metrics, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{summarizer: summarizer, metrics: m, log: log.Named("aggregator")}
}

// FinalScore is round(10 * sum / 6) over the answer scores, counting missing
// scores as zero, clamped to [0,100].
func FinalScore(answers []model.Answer) int {
	sum := 0.0
	for i, a := range answers {
		if i >= model.QuestionCount {
			break
		}
		if a.Score != nil {
			sum += *a.Score
		}
	}
	score := int(math.Round(10 * sum / model.QuestionCount))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Finalize computes the score and summary for s. A completed session returns
// its stored values unchanged.
func (a *Aggregator) Finalize(ctx context.Context, s model.Session) Result {
	if s.Status == model.StatusCompleted && s.Score != nil {
		return Result{Score: *s.Score, Summary: s.Summary}
	}
	score := FinalScore(s.Answers)
	if a.summarizer != nil {
		text, err := a.summarizer.Summarize(ctx, chain.SummaryInput{
			Role:       s.Role,
			Score:      score,
			Transcript: Transcript(s),
		})
		if err == nil {
			return Result{Score: score, Summary: text}
		}
		a.log.Info("using templated summary", zap.String("session", s.ID), zap.Error(err))
	}
	a.metrics.Fallback("summary")
	return Result{Score: score, Summary: TemplateSummary(s.Answers), Fallback: true}
}

// Transcript renders the question and answer pairs for a summary request.
func Transcript(s model.Session) string {
	var b strings.Builder
	for i, q := range s.Questions {
		fmt.Fprintf(&b, "Q%d (%s): %s\n", i+1, q.Difficulty, q.Text)
		if i >= len(s.Answers) {
			b.WriteString("A: (not answered)\n\n")
			continue
		}
		ans := s.Answers[i]
		fmt.Fprintf(&b, "A: %s\n", ans.Text)
		if ans.Score != nil {
			fmt.Fprintf(&b, "Score: %.1f/10\n", *ans.Score)
		}
		if ans.Feedback != "" {
			fmt.Fprintf(&b, "Feedback: %s\n", ans.Feedback)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// TemplateSummary writes a deterministic summary from the average score.
func TemplateSummary(answers []model.Answer) string {
	avg := float64(FinalScore(answers)) / 10
	var band string
	switch {
	case avg >= 7:
		band = "a strong performance, with clear and well-reasoned answers across the difficulty levels"
	case avg >= 5:
		band = "a moderate performance, with a reasonable foundation and room to go deeper on the harder questions"
	default:
		band = "a below average performance; reviewing core concepts and practicing structured answers is recommended"
	}
	return fmt.Sprintf("The candidate answered %d questions with an average score of %.1f/10, showing %s.",
		model.QuestionCount, avg, band)
}
