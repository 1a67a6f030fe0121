// Package chain tries an ordered list of provider/model candidates until one
// returns a usable result.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verte-zerg/intervue/internal/cache"
	"github.com/verte-zerg/intervue/internal/metrics"
	"github.com/verte-zerg/intervue/internal/model"
	"github.com/verte-zerg/intervue/internal/parse"
	"github.com/verte-zerg/intervue/internal/provider"
)

// ErrExhausted is returned when every candidate failed or none is available.
var ErrExhausted = errors.New("all providers failed")

// Operation names used in logs and metrics.
const (
	OpQuestions = "questions"
	OpEvaluate  = "evaluate"
	OpSummary   = "summary"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultCacheTTL = 24 * time.Hour
)

// Candidate is one provider and model to try.
type Candidate struct {
	Provider provider.Provider
	Model    string
}

// Label returns "provider/model".
func (c Candidate) Label() string {
	return c.Provider.Name() + "/" + c.Model
}

// Options tune a Chain. Zero values select defaults.
type Options struct {
	Timeout  time.Duration
	Retries  int
	Cache    cache.Cache
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Chain is an ordered fallback list. A nil Chain behaves as one with no
// candidates.
type Chain struct {
	candidates []Candidate
	timeout    time.Duration
	retries    int
	cache      cache.Cache
	cacheTTL   time.Duration
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// New builds a chain. Candidates whose provider has no usable credential are
// dropped.
func New(candidates []Candidate, opts Options) *Chain {
	c := &Chain{
		timeout:  opts.Timeout,
		retries:  opts.Retries,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		metrics:  opts.Metrics,
		log:      opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.retries < 0 {
		c.retries = 0
	}
	if c.cache == nil {
		c.cache = cache.Nop{}
	}
	if c.cacheTTL <= 0 {
		c.cacheTTL = DefaultCacheTTL
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.Named("chain")

	for _, cand := range candidates {
		if cand.Provider == nil {
			continue
		}
		if !cand.Provider.Available() {
			c.log.Info("skipping provider without usable credential", zap.String("provider", cand.Provider.Name()))
			continue
		}
		c.candidates = append(c.candidates, cand)
	}
	return c
}

// Budget is the longest one operation can take when every attempt runs
// into the per-call timeout.
func (c *Chain) Budget() time.Duration {
	if c == nil {
		return 0
	}
	return time.Duration(len(c.candidates)*(c.retries+1)) * c.timeout
}

// Len reports the number of usable candidates.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.candidates)
}

// GenerateQuestionSet asks for exactly six questions and assigns them the
// fixed difficulty tiers in order.
func (c *Chain) GenerateQuestionSet(ctx context.Context, role string) ([]model.Question, error) {
	req := provider.QuestionRequest{Role: role, Count: model.QuestionCount}
	texts, err := run(ctx, c, OpQuestions,
		func(ctx context.Context, cand Candidate) (string, error) {
			return cand.Provider.GenerateQuestions(ctx, cand.Model, req)
		},
		func(raw string) ([]string, error) {
			return parse.Questions(raw, model.QuestionCount)
		})
	if err != nil {
		return nil, err
	}
	questions := make([]model.Question, model.QuestionCount)
	for i, text := range texts {
		d := model.TierOrder[i]
		questions[i] = model.Question{
			ID:         uuid.NewString(),
			Text:       text,
			Difficulty: d,
			TimeLimit:  d.TimeLimit(),
		}
	}
	return questions, nil
}

// Evaluate grades one answer. Results are cached by question, answer and
// role.
func (c *Chain) Evaluate(ctx context.Context, q model.Question, answer, role string) (parse.Evaluation, error) {
	if c.Len() == 0 {
		return parse.Evaluation{}, c.exhausted(OpEvaluate)
	}
	key := cache.Key(OpEvaluate, role, string(q.Difficulty), q.Text, answer)
	var cached parse.Evaluation
	hit, err := c.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		c.log.Warn("cache read failed", zap.Error(err))
	}
	if hit {
		c.metrics.ObserveAttempt("cache", "", OpEvaluate, metrics.OutcomeCacheHit, 0)
		return cached, nil
	}

	req := provider.EvaluationRequest{Role: role, Question: q.Text, Difficulty: q.Difficulty, Answer: answer}
	ev, err := run(ctx, c, OpEvaluate,
		func(ctx context.Context, cand Candidate) (string, error) {
			return cand.Provider.EvaluateAnswer(ctx, cand.Model, req)
		},
		parse.ParseEvaluation)
	if err != nil {
		return parse.Evaluation{}, err
	}
	if err := c.cache.SetJSON(ctx, key, ev, c.cacheTTL); err != nil {
		c.log.Warn("cache write failed", zap.Error(err))
	}
	return ev, nil
}

// SummaryInput is what the chain needs to narrate a finished interview.
type SummaryInput struct {
	Role       string
	Score      int
	Transcript string
}

// Summarize produces a narrative summary of a finished interview.
func (c *Chain) Summarize(ctx context.Context, in SummaryInput) (string, error) {
	req := provider.SummaryRequest{Role: in.Role, Score: in.Score, Transcript: in.Transcript}
	return run(ctx, c, OpSummary,
		func(ctx context.Context, cand Candidate) (string, error) {
			return cand.Provider.GenerateSummary(ctx, cand.Model, req)
		},
		parse.Summary)
}

func (c *Chain) exhausted(op string) error {
	if c != nil {
		c.metrics.Exhausted(op)
	}
	return ErrExhausted
}

// run tries each candidate in order, retrying per the policy, until call
// returns text that accept can parse.
func run[T any](ctx context.Context, c *Chain, op string, call func(context.Context, Candidate) (string, error), accept func(string) (T, error)) (T, error) {
	var zero T
	if c.Len() == 0 {
		return zero, c.exhausted(op)
	}
	for _, cand := range c.candidates {
		for attempt := 0; attempt <= c.retries; attempt++ {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			out, outcome, err := try(ctx, c, cand, op, call, accept)
			if err == nil {
				return out, nil
			}
			c.log.Warn("provider attempt failed",
				zap.String("op", op),
				zap.String("provider", cand.Provider.Name()),
				zap.String("model", cand.Model),
				zap.Int("attempt", attempt+1),
				zap.String("outcome", outcome),
				zap.Error(err))
			if !retryable(err) {
				break
			}
		}
	}
	return zero, c.exhausted(op)
}

func try[T any](ctx context.Context, c *Chain, cand Candidate, op string, call func(context.Context, Candidate) (string, error), accept func(string) (T, error)) (T, string, error) {
	var zero T
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	raw, err := call(callCtx, cand)
	elapsed := time.Since(start)
	if err == nil && callCtx.Err() != nil {
		err = fmt.Errorf("%s: %w", cand.Label(), callCtx.Err())
	}
	if err != nil {
		outcome := outcomeFor(err)
		c.metrics.ObserveAttempt(cand.Provider.Name(), cand.Model, op, outcome, elapsed)
		return zero, outcome, err
	}
	out, err := accept(raw)
	if err != nil {
		c.metrics.ObserveAttempt(cand.Provider.Name(), cand.Model, op, metrics.OutcomeMalformed, elapsed)
		return zero, metrics.OutcomeMalformed, err
	}
	c.metrics.ObserveAttempt(cand.Provider.Name(), cand.Model, op, metrics.OutcomeSuccess, elapsed)
	return out, metrics.OutcomeSuccess, nil
}

func retryable(err error) bool {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr.Code != provider.ErrCodeAPIKey
	}
	return true
}

func outcomeFor(err error) string {
	var perr *provider.Error
	if errors.As(err, &perr) && perr.Code == provider.ErrCodeTimeout {
		return metrics.OutcomeTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return metrics.OutcomeTimeout
	}
	return metrics.OutcomeError
}
