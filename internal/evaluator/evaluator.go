// Package evaluator grades answers, falling back to a deterministic offline
// score when no provider can.
package evaluator

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/verte-zerg/intervue/internal/metrics"
	"github.com/verte-zerg/intervue/internal/model"
	"github.com/verte-zerg/intervue/internal/parse"
	"github.com/verte-zerg/intervue/internal/session"
)

// Grader scores one answer remotely. *chain.Chain implements it.
type Grader interface {
	Evaluate(ctx context.Context, q model.Question, answer, role string) (parse.Evaluation, error)
}

// Heuristic scoring constants.
const (
	baseScore       = 3
	shortThreshold  = 50
	longThreshold   = 100
	maxKeywordBonus = 3
)

// Result is a graded answer.
type Result struct {
	Score    float64
	Feedback string
	Fallback bool
}

// Evaluator grades answers through a Grader and falls back to the offline
// heuristic on any failure.
type Evaluator struct {
	grader   Grader
	keywords []keyword
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithKeywords replaces the default keyword list.
func WithKeywords(words []string) Option {
	return func(e *Evaluator) { e.keywords = compileKeywords(words) }
}

// WithMetrics records fallbacks.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Evaluator) { e.log = log }
}

// WithClock overrides the answer timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// New creates an Evaluator. grader may be nil, in which case every answer is
// scored offline.
func New(grader Grader, opts ...Option) *Evaluator {
	e := &Evaluator{
		grader:   grader,
		keywords: compileKeywords(DefaultKeywords),
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("evaluator")
	return e
}

// Evaluate grades text as an answer to q. It never fails.
func (e *Evaluator) Evaluate(ctx context.Context, q model.Question, text, role string) Result {
	if e.grader != nil {
		ev, err := e.grader.Evaluate(ctx, q, text, role)
		if err == nil {
			return Result{Score: parse.ClampScore(ev.Score), Feedback: ev.Feedback}
		}
		e.log.Info("using heuristic evaluation", zap.String("question", q.ID), zap.Error(err))
	}
	e.metrics.Fallback("heuristic")
	score, feedback := e.Heuristic(text)
	return Result{Score: score, Feedback: feedback, Fallback: true}
}

// Heuristic scores text offline: a base score, length bonuses and one point
// per distinct keyword up to a cap, clamped to [0,10].
func (e *Evaluator) Heuristic(text string) (float64, string) {
	text = strings.TrimSpace(text)
	score := baseScore
	n := utf8.RuneCountInString(text)
	if n > shortThreshold {
		score++
	}
	if n > longThreshold {
		score++
	}

	matched := e.matchKeywords(text)
	bonus := len(matched)
	if bonus > maxKeywordBonus {
		bonus = maxKeywordBonus
	}
	score += bonus

	return parse.ClampScore(float64(score)), heuristicFeedback(matched)
}

func (e *Evaluator) matchKeywords(text string) []string {
	var matched []string
	for _, kw := range e.keywords {
		if kw.re.MatchString(text) {
			matched = append(matched, kw.word)
		}
	}
	return matched
}

func heuristicFeedback(matched []string) string {
	if len(matched) == 0 {
		return "Scored offline. No technical keywords were detected; explain the concepts and trade-offs involved."
	}
	return "Scored offline. Relevant concepts mentioned: " + strings.Join(matched, ", ") + "."
}

// Submit grades text against the session's current question and returns a
// copy of the session with the answer recorded. A session with no current
// question is returned unchanged.
func (e *Evaluator) Submit(ctx context.Context, s model.Session, text string) model.Session {
	out := s.Clone()
	q, ok := session.Current(out)
	if !ok {
		return out
	}
	res := e.Evaluate(ctx, q, text, out.Role)
	if err := session.RecordAnswer(&out, e.Answer(q, text, res)); err != nil {
		e.log.Warn("answer rejected", zap.String("session", out.ID), zap.Error(err))
		return s.Clone()
	}
	return out
}

// Answer builds the stored answer for a graded result.
func (e *Evaluator) Answer(q model.Question, text string, res Result) model.Answer {
	score := res.Score
	return model.Answer{
		QuestionID: q.ID,
		Text:       text,
		Score:      &score,
		Feedback:   res.Feedback,
		Fallback:   res.Fallback,
		Timestamp:  e.now(),
	}
}
