// Package interview drives one interview session on the Bubble Tea event
// loop: question generation, the per-question countdown, evaluation and
// final aggregation.
package interview

import (
	"context"
	"errors"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/verte-zerg/intervue/internal/aggregator"
	"github.com/verte-zerg/intervue/internal/bank"
	"github.com/verte-zerg/intervue/internal/chain"
	"github.com/verte-zerg/intervue/internal/evaluator"
	"github.com/verte-zerg/intervue/internal/metrics"
	"github.com/verte-zerg/intervue/internal/model"
	"github.com/verte-zerg/intervue/internal/session"
)

// Persister stores the full list of sessions. Save replaces everything
// previously stored.
type Persister interface {
	Load(ctx context.Context) ([]model.Session, error)
	Save(ctx context.Context, sessions []model.Session) error
}

// QuestionSource produces a batch of six questions. *chain.Chain implements
// it.
type QuestionSource interface {
	GenerateQuestionSet(ctx context.Context, role string) ([]model.Question, error)
}

// Scorer records a graded answer on a copy of the session.
// *evaluator.Evaluator implements it.
type Scorer interface {
	Submit(ctx context.Context, s model.Session, text string) model.Session
}

// Finalizer computes the final score and summary. *aggregator.Aggregator
// implements it.
type Finalizer interface {
	Finalize(ctx context.Context, s model.Session) aggregator.Result
}

// DefaultGuardTimeout bounds how long question generation may stay in
// flight before the session reports a retryable error.
const DefaultGuardTimeout = 3 * time.Minute

// guardSlack is added on top of the chain budget so the watchdog only fires
// when the chain itself is stuck.
const guardSlack = 30 * time.Second

const saveTimeout = 5 * time.Second

// Notices shown to the candidate when a local fallback was used.
const (
	NoticeDefaultQuestions  = "Using default questions"
	NoticeDefaultEvaluation = "Using default evaluation"
	NoticeDefaultSummary    = "Using default summary"
)

// ErrGenerationStuck is the message set when the generation watchdog fires.
const ErrGenerationStuck = "Question generation timed out. Press ctrl+r to retry."

// Options configure an Orchestrator.
type Options struct {
	Questions    QuestionSource
	Scorer       Scorer
	Finalizer    Finalizer
	Store        Persister
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	GuardTimeout time.Duration
	Now          func() time.Time
}

// GuardTimeout returns the watchdog timeout for a chain that needs at most
// budget to try every candidate. It is never shorter than configured.
func GuardTimeout(configured, budget time.Duration) time.Duration {
	if configured <= 0 {
		configured = DefaultGuardTimeout
	}
	if floor := budget + guardSlack; budget > 0 && configured < floor {
		return floor
	}
	return configured
}

type tickFunc func(time.Duration, func(time.Time) tea.Msg) tea.Cmd

// inflight tracks the outstanding network work of one session. Attempt
// counters identify which response may still be applied.
type inflight struct {
	generating  bool
	genAttempt  int
	genCancel   context.CancelFunc
	stuck       bool
	evaluating  bool
	evalAttempt int
	aggregating bool
	aggAttempt  int
}

// Orchestrator owns the active session and all transitions on it. It is
// not safe for concurrent use; every method runs on the event loop.
type Orchestrator struct {
	questions    QuestionSource
	scorer       Scorer
	finalizer    Finalizer
	store        Persister
	metrics      *metrics.Metrics
	log          *zap.Logger
	guardTimeout time.Duration
	now          func() time.Time
	tick         tickFunc

	ctx    context.Context
	cancel context.CancelFunc

	sessions []model.Session
	active   int
	draft    string
	timerGen int
	inflight map[string]*inflight
	closed   bool
	// readOnly is set when stored sessions could not be loaded. Saving
	// replaces everything stored, so nothing is written in that case.
	readOnly bool
}

// New creates an Orchestrator. Call Open before Init to select the active
// session.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		questions:    opts.Questions,
		scorer:       opts.Scorer,
		finalizer:    opts.Finalizer,
		store:        opts.Store,
		metrics:      opts.Metrics,
		log:          opts.Logger,
		guardTimeout: opts.GuardTimeout,
		now:          opts.Now,
		tick:         tea.Tick,
		inflight:     make(map[string]*inflight),
		active:       -1,
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	o.log = o.log.Named("interview")
	if o.guardTimeout <= 0 {
		o.guardTimeout = DefaultGuardTimeout
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.scorer == nil {
		o.scorer = evaluator.New(nil, evaluator.WithMetrics(o.metrics), evaluator.WithLogger(o.log))
	}
	if o.finalizer == nil {
		o.finalizer = aggregator.New(nil, o.metrics, o.log)
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())
	return o
}

// Open loads persisted sessions and selects the active one. With resume set
// the most recent unfinished session continues; otherwise a new session for
// candidate and role is created.
func (o *Orchestrator) Open(ctx context.Context, candidate, role string, resume bool) {
	if o.store != nil {
		loaded, err := o.store.Load(ctx)
		if err != nil {
			o.readOnly = true
			o.log.Error("failed to load sessions; progress will not be saved", zap.Error(err))
		}
		for i := range loaded {
			if session.Normalize(&loaded[i]) {
				o.log.Info("repaired stored session", zap.String("session", loaded[i].ID))
			}
		}
		o.sessions = loaded
	}

	if resume {
		if latest, ok := session.Latest(o.sessions); ok {
			for i := range o.sessions {
				if o.sessions[i].ID == latest.ID {
					o.active = i
				}
			}
			o.log.Info("resuming session", zap.String("session", latest.ID))
		}
	}
	if o.active < 0 {
		o.sessions = append(o.sessions, session.New(candidate, role, o.now()))
		o.active = len(o.sessions) - 1
	}
	o.save()
}

// Init starts whatever the active session needs next: question generation,
// the countdown, or aggregation.
func (o *Orchestrator) Init() tea.Cmd {
	o.ensureActive()
	return tea.Batch(o.EnsureQuestions(), o.armTimer(), o.Finalize())
}

// Session returns a copy of the active session.
func (o *Orchestrator) Session() model.Session {
	o.ensureActive()
	return o.sessions[o.active].Clone()
}

// Sessions returns copies of all known sessions.
func (o *Orchestrator) Sessions() []model.Session {
	out := make([]model.Session, len(o.sessions))
	for i, s := range o.sessions {
		out[i] = s.Clone()
	}
	return out
}

// Draft returns the text typed for the current question.
func (o *Orchestrator) Draft() string { return o.draft }

// SetDraft records the text typed so far; it is submitted if time runs out.
func (o *Orchestrator) SetDraft(text string) { o.draft = text }

// EnsureQuestions starts question generation for a NotStarted session. It
// returns nil when generation is already in flight or not needed.
func (o *Orchestrator) EnsureQuestions() tea.Cmd {
	s := o.current()
	if o.closed || s.Status != model.StatusNotStarted || s.Err != "" {
		return nil
	}
	f := o.flight(s.ID)
	if f.generating {
		return nil
	}
	f.generating = true
	f.genAttempt++

	ctx, cancel := context.WithCancel(o.ctx)
	f.genCancel = cancel
	id, attempt, role := s.ID, f.genAttempt, s.Role
	src := o.questions
	generate := func() tea.Msg {
		if src == nil {
			return questionsMsg{sessionID: id, attempt: attempt, err: chain.ErrExhausted}
		}
		qs, err := src.GenerateQuestionSet(ctx, role)
		return questionsMsg{sessionID: id, attempt: attempt, questions: qs, err: err}
	}
	watchdog := o.tick(o.guardTimeout, func(time.Time) tea.Msg {
		return watchdogMsg{sessionID: id, attempt: attempt}
	})
	return tea.Batch(generate, watchdog)
}

// Retry clears a generation error and starts generation again. After the
// watchdog gave up on an attempt the session starts with the Question Bank
// instead, so a chain that keeps hanging cannot block the interview.
func (o *Orchestrator) Retry() tea.Cmd {
	s := o.current()
	if o.closed || s.Err == "" {
		return nil
	}
	s.Err = ""
	if f := o.flight(s.ID); f.stuck {
		f.stuck = false
		o.log.Info("starting with default questions after stuck generation", zap.String("session", s.ID))
		return o.start(s, bank.Questions(), true)
	}
	o.save()
	return o.EnsureQuestions()
}

// SubmitAnswer sends text as the answer to the current question. Empty text
// is recorded as NoAnswerText. It returns nil when there is no current
// question or an evaluation is already running.
func (o *Orchestrator) SubmitAnswer(text string) tea.Cmd {
	if strings.TrimSpace(text) == "" {
		text = model.NoAnswerText
	}
	return o.submit(text)
}

func (o *Orchestrator) submit(text string) tea.Cmd {
	s := o.current()
	if o.closed {
		return nil
	}
	if _, ok := session.Current(*s); !ok {
		return nil
	}
	f := o.flight(s.ID)
	if f.evaluating {
		return nil
	}
	f.evaluating = true
	f.evalAttempt++
	o.stopTimer()
	o.draft = ""

	snapshot := s.Clone()
	id, attempt, index := s.ID, f.evalAttempt, s.CurrentIndex
	scorer, ctx := o.scorer, o.ctx
	return func() tea.Msg {
		next := scorer.Submit(ctx, snapshot, text)
		return evaluatedMsg{sessionID: id, attempt: attempt, index: index, session: next}
	}
}

// Finalize starts aggregation once every question is answered. It returns
// nil for sessions that are not ready, already completed, or already
// aggregating.
func (o *Orchestrator) Finalize() tea.Cmd {
	s := o.current()
	if o.closed || !session.AwaitingAggregation(*s) {
		return nil
	}
	f := o.flight(s.ID)
	if f.aggregating {
		return nil
	}
	f.aggregating = true
	f.aggAttempt++

	snapshot := s.Clone()
	id, attempt := s.ID, f.aggAttempt
	fin, ctx := o.finalizer, o.ctx
	return func() tea.Msg {
		return finalizedMsg{sessionID: id, attempt: attempt, result: fin.Finalize(ctx, snapshot)}
	}
}

// Pause stops the countdown of the current question.
func (o *Orchestrator) Pause() tea.Cmd {
	s := o.current()
	if o.closed || !session.Pause(s) {
		return nil
	}
	o.stopTimer()
	o.save()
	return nil
}

// Resume restarts the countdown.
func (o *Orchestrator) Resume() tea.Cmd {
	s := o.current()
	if o.closed || !session.Resume(s) {
		return nil
	}
	o.save()
	return o.armTimer()
}

// TogglePause pauses a running countdown or resumes a paused one.
func (o *Orchestrator) TogglePause() tea.Cmd {
	if o.current().Paused {
		return o.Resume()
	}
	return o.Pause()
}

// RequestReset abandons the active session and starts a fresh one for the
// same candidate and role. A completed session is kept in history.
func (o *Orchestrator) RequestReset() tea.Cmd {
	if o.closed {
		return nil
	}
	s := o.current()
	o.stopTimer()
	if f, ok := o.inflight[s.ID]; ok && f.genCancel != nil {
		f.genCancel()
	}
	delete(o.inflight, s.ID)
	fresh := session.Reset(*s, o.now())
	if s.Status == model.StatusCompleted {
		o.sessions = append(o.sessions, fresh)
		o.active = len(o.sessions) - 1
	} else {
		o.sessions[o.active] = fresh
	}
	o.draft = ""
	o.log.Info("session reset", zap.String("old", s.ID), zap.String("new", fresh.ID))
	o.save()
	return o.EnsureQuestions()
}

// Close stops the countdown, cancels outstanding requests and saves.
func (o *Orchestrator) Close() {
	if o.closed {
		return
	}
	o.closed = true
	o.stopTimer()
	o.cancel()
	o.save()
}

// Update applies a message to the session and returns follow-up work.
// Messages it does not know are ignored.
func (o *Orchestrator) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tickMsg:
		return o.handleTick(msg)
	case questionsMsg:
		return o.handleQuestions(msg)
	case watchdogMsg:
		return o.handleWatchdog(msg)
	case evaluatedMsg:
		return o.handleEvaluated(msg)
	case finalizedMsg:
		return o.handleFinalized(msg)
	default:
		return nil
	}
}

func (o *Orchestrator) handleTick(msg tickMsg) tea.Cmd {
	s := o.current()
	if o.closed || msg.sessionID != s.ID || msg.gen != o.timerGen {
		return nil
	}
	if o.flight(s.ID).evaluating {
		return nil
	}
	if session.Tick(s) {
		o.log.Info("time ran out", zap.String("session", s.ID), zap.Int("question", s.CurrentIndex+1))
		text := o.draft
		if strings.TrimSpace(text) == "" {
			text = model.NoAnswerTimeoutText
		}
		return o.submit(text)
	}
	// The remaining time is persisted on pause, answer and close.
	return o.scheduleTick(s.ID, o.timerGen)
}

func (o *Orchestrator) handleQuestions(msg questionsMsg) tea.Cmd {
	s := o.current()
	f, ok := o.inflight[msg.sessionID]
	if !ok || msg.sessionID != s.ID || !f.generating || msg.attempt != f.genAttempt {
		o.log.Debug("dropping stale question batch", zap.String("session", msg.sessionID))
		return nil
	}
	f.generating = false
	f.genCancel()
	if s.Status != model.StatusNotStarted {
		return nil
	}

	if msg.err != nil || session.ValidateQuestions(msg.questions) != nil {
		if msg.err != nil && !errors.Is(msg.err, chain.ErrExhausted) {
			o.log.Warn("question generation failed", zap.Error(msg.err))
		}
		return o.start(s, bank.Questions(), true)
	}
	return o.start(s, msg.questions, false)
}

func (o *Orchestrator) start(s *model.Session, questions []model.Question, fallback bool) tea.Cmd {
	if fallback {
		s.Notice = NoticeDefaultQuestions
		o.metrics.Fallback("questions")
	}
	if err := session.Start(s, questions, o.now()); err != nil {
		o.log.Error("failed to start session", zap.Error(err))
		return nil
	}
	o.save()
	return o.armTimer()
}

func (o *Orchestrator) handleWatchdog(msg watchdogMsg) tea.Cmd {
	s := o.current()
	f, ok := o.inflight[msg.sessionID]
	if !ok || msg.sessionID != s.ID || !f.generating || msg.attempt != f.genAttempt {
		return nil
	}
	f.generating = false
	f.genAttempt++
	f.genCancel()
	f.stuck = true
	s.Err = ErrGenerationStuck
	o.log.Warn("question generation exceeded guard timeout", zap.String("session", s.ID), zap.Duration("timeout", o.guardTimeout))
	o.save()
	return nil
}

func (o *Orchestrator) handleEvaluated(msg evaluatedMsg) tea.Cmd {
	s := o.current()
	f, ok := o.inflight[msg.sessionID]
	if !ok || msg.sessionID != s.ID || !f.evaluating || msg.attempt != f.evalAttempt {
		return nil
	}
	f.evaluating = false
	if msg.index != s.CurrentIndex || len(msg.session.Answers) != msg.index+1 {
		o.log.Warn("evaluation result does not match session", zap.String("session", s.ID), zap.Int("index", msg.index))
		return o.armTimer()
	}
	answer := msg.session.Answers[msg.index]
	if err := session.RecordAnswer(s, answer); err != nil {
		o.log.Error("failed to record answer", zap.Error(err))
		return o.armTimer()
	}
	if answer.Fallback {
		s.Notice = NoticeDefaultEvaluation
	}
	o.save()
	if session.AwaitingAggregation(*s) {
		return o.Finalize()
	}
	return o.armTimer()
}

func (o *Orchestrator) handleFinalized(msg finalizedMsg) tea.Cmd {
	s := o.current()
	f, ok := o.inflight[msg.sessionID]
	if !ok || msg.sessionID != s.ID || !f.aggregating || msg.attempt != f.aggAttempt {
		return nil
	}
	f.aggregating = false
	if s.Status == model.StatusCompleted {
		return nil
	}
	summary := msg.result.Summary
	if strings.TrimSpace(summary) == "" {
		summary = aggregator.TemplateSummary(s.Answers)
		msg.result.Fallback = true
	}
	if err := session.Complete(s, msg.result.Score, summary, o.now()); err != nil {
		o.log.Error("failed to complete session", zap.Error(err))
		return nil
	}
	if msg.result.Fallback {
		s.Notice = NoticeDefaultSummary
	}
	o.metrics.SessionCompleted(*s.Score)
	o.log.Info("session completed", zap.String("session", s.ID), zap.Int("score", *s.Score))
	o.save()
	return nil
}

// armTimer starts a new countdown generation when the session can tick.
func (o *Orchestrator) armTimer() tea.Cmd {
	s := o.current()
	if o.closed || s.Paused {
		return nil
	}
	if _, ok := session.Current(*s); !ok {
		return nil
	}
	if o.flight(s.ID).evaluating {
		return nil
	}
	o.timerGen++
	return o.scheduleTick(s.ID, o.timerGen)
}

func (o *Orchestrator) stopTimer() {
	o.timerGen++
}

func (o *Orchestrator) scheduleTick(id string, gen int) tea.Cmd {
	return o.tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{sessionID: id, gen: gen}
	})
}

func (o *Orchestrator) flight(id string) *inflight {
	f, ok := o.inflight[id]
	if !ok {
		f = &inflight{}
		o.inflight[id] = f
	}
	return f
}

func (o *Orchestrator) ensureActive() {
	if o.active >= 0 && o.active < len(o.sessions) {
		return
	}
	o.sessions = append(o.sessions, session.New("", "", o.now()))
	o.active = len(o.sessions) - 1
}

func (o *Orchestrator) current() *model.Session {
	o.ensureActive()
	return &o.sessions[o.active]
}

func (o *Orchestrator) save() {
	if o.store == nil || o.readOnly {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := o.store.Save(ctx, o.Sessions()); err != nil {
		o.log.Error("failed to save sessions", zap.Error(err))
	}
}
