package interview

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/verte-zerg/intervue/internal/aggregator"
	"github.com/verte-zerg/intervue/internal/bank"
	"github.com/verte-zerg/intervue/internal/chain"
	"github.com/verte-zerg/intervue/internal/evaluator"
	"github.com/verte-zerg/intervue/internal/model"
	"github.com/verte-zerg/intervue/internal/prompts"
	"github.com/verte-zerg/intervue/internal/provider"
	"github.com/verte-zerg/intervue/internal/session"
	"github.com/verte-zerg/intervue/internal/store"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type memStore struct {
	sessions []model.Session
	saves    int
	loadErr  error
}

func (m *memStore) Load(context.Context) ([]model.Session, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]model.Session, len(m.sessions))
	for i, s := range m.sessions {
		out[i] = s.Clone()
	}
	return out, nil
}

func (m *memStore) Save(_ context.Context, sessions []model.Session) error {
	m.saves++
	m.sessions = sessions
	return nil
}

type countingSource struct {
	calls     int
	questions []model.Question
	err       error
}

func (c *countingSource) GenerateQuestionSet(context.Context, string) ([]model.Question, error) {
	c.calls++
	return c.questions, c.err
}

func generated() []model.Question {
	qs := make([]model.Question, model.QuestionCount)
	for i := range qs {
		d := model.TierOrder[i]
		qs[i] = model.Question{ID: fmt.Sprintf("gen-%d", i+1), Text: fmt.Sprintf("Generated question %d?", i+1), Difficulty: d, TimeLimit: d.TimeLimit()}
	}
	return qs
}

func immediateTick(_ time.Duration, fn func(time.Time) tea.Msg) tea.Cmd {
	return func() tea.Msg { return fn(fixedNow) }
}

func newTestOrchestrator(t *testing.T, opts Options) *Orchestrator {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	if opts.Scorer == nil {
		opts.Scorer = evaluator.New(nil, evaluator.WithClock(opts.Now))
	}
	o := New(opts)
	o.tick = immediateTick
	return o
}

// drain runs cmds to completion, feeding every result back into Update.
// Timer and watchdog messages are returned instead of delivered.
func drain(t *testing.T, o *Orchestrator, cmds ...tea.Cmd) []tea.Msg {
	t.Helper()
	var pending []tea.Msg
	queue := append([]tea.Cmd(nil), cmds...)
	for steps := 0; len(queue) > 0; steps++ {
		require.Less(t, steps, 1000, "command loop did not settle")
		cmd := queue[0]
		queue = queue[1:]
		if cmd == nil {
			continue
		}
		switch msg := cmd().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case tickMsg, watchdogMsg:
			pending = append(pending, msg)
		default:
			queue = append(queue, o.Update(msg))
		}
	}
	return pending
}

func lastTick(t *testing.T, pending []tea.Msg) tickMsg {
	t.Helper()
	for i := len(pending) - 1; i >= 0; i-- {
		if tk, ok := pending[i].(tickMsg); ok {
			return tk
		}
	}
	require.FailNow(t, "no tick scheduled")
	return tickMsg{}
}

func hasTick(pending []tea.Msg) bool {
	for _, msg := range pending {
		if _, ok := msg.(tickMsg); ok {
			return true
		}
	}
	return false
}

// advance delivers n consecutive ticks, starting from the tick in pending.
func advance(t *testing.T, o *Orchestrator, pending []tea.Msg, n int) []tea.Msg {
	t.Helper()
	for i := 0; i < n; i++ {
		pending = drain(t, o, o.Update(lastTick(t, pending)))
	}
	return pending
}

func started(t *testing.T, opts Options) (*Orchestrator, []tea.Msg) {
	t.Helper()
	if opts.Questions == nil {
		opts.Questions = &countingSource{questions: generated()}
	}
	o := newTestOrchestrator(t, opts)
	o.Open(context.Background(), "Ada", "Backend Engineer", false)
	pending := drain(t, o, o.Init())
	require.Equal(t, model.StatusInProgress, o.Session().Status)
	return o, pending
}

func TestConcurrentTriggersIssueOneRequest(t *testing.T) {
	src := &countingSource{questions: generated()}
	o := newTestOrchestrator(t, Options{Questions: src})
	o.Open(context.Background(), "Ada", "Backend Engineer", false)

	first := o.EnsureQuestions()
	require.NotNil(t, first)
	assert.Nil(t, o.EnsureQuestions())
	assert.True(t, o.View().Generating)

	drain(t, o, first, o.Init())
	assert.Equal(t, 1, src.calls)

	s := o.Session()
	assert.Equal(t, generated(), s.Questions)
	assert.Empty(t, s.Notice)
	assert.False(t, o.View().Generating)
}

func TestMissingCredentialUsesQuestionBank(t *testing.T) {
	p, err := provider.New(provider.Spec{Type: "openai"}, prompts.MustManager())
	require.NoError(t, err)
	c := chain.New([]chain.Candidate{{Provider: p, Model: "gpt-4o-mini"}}, chain.Options{})
	require.Equal(t, 0, c.Len())

	o := newTestOrchestrator(t, Options{Questions: c})
	o.Open(context.Background(), "Ada", "Backend Engineer", false)
	drain(t, o, o.Init())

	s := o.Session()
	assert.Equal(t, model.StatusInProgress, s.Status)
	assert.Equal(t, bank.Questions(), s.Questions)
	assert.Equal(t, 0, s.CurrentIndex)
	assert.Equal(t, 20, s.TimeLeft)
	assert.Equal(t, NoticeDefaultQuestions, s.Notice)
}

func TestInvalidBatchFallsBackToBank(t *testing.T) {
	src := &countingSource{questions: generated()[:4]}
	o := newTestOrchestrator(t, Options{Questions: src})
	o.Open(context.Background(), "Ada", "SRE", false)
	drain(t, o, o.Init())
	assert.Equal(t, bank.Questions(), o.Session().Questions)
}

func TestTimerExpiryStoresTimeoutSentinel(t *testing.T) {
	o, pending := started(t, Options{})
	pending = advance(t, o, pending, 19)
	s := o.Session()
	assert.Equal(t, 1, s.TimeLeft)
	assert.Empty(t, s.Answers)

	pending = advance(t, o, pending, 1)
	s = o.Session()
	require.Len(t, s.Answers, 1)
	assert.Equal(t, model.NoAnswerTimeoutText, s.Answers[0].Text)
	assert.Equal(t, 1, s.CurrentIndex)
	assert.Equal(t, 20, s.TimeLeft)
	assert.True(t, hasTick(pending), "next question is armed")
}

func TestTimerExpirySubmitsDraft(t *testing.T) {
	o, pending := started(t, Options{})
	o.SetDraft("A process has its own memory")
	advance(t, o, pending, 20)

	s := o.Session()
	require.Len(t, s.Answers, 1)
	assert.Equal(t, "A process has its own memory", s.Answers[0].Text)
	assert.Empty(t, o.Draft())
}

func TestEmptySubmitStoresSentinel(t *testing.T) {
	o, _ := started(t, Options{})
	drain(t, o, o.SubmitAnswer("   "))
	s := o.Session()
	require.Len(t, s.Answers, 1)
	assert.Equal(t, model.NoAnswerText, s.Answers[0].Text)
}

func TestSecondSubmitWhileEvaluatingIsIgnored(t *testing.T) {
	o, _ := started(t, Options{})
	cmd := o.SubmitAnswer("first")
	require.NotNil(t, cmd)
	assert.Nil(t, o.SubmitAnswer("second"))
	assert.True(t, o.View().Evaluating)

	drain(t, o, cmd)
	s := o.Session()
	require.Len(t, s.Answers, 1)
	assert.Equal(t, "first", s.Answers[0].Text)
}

func TestTicksDuringEvaluationAreIgnored(t *testing.T) {
	o, pending := started(t, Options{})
	tick := lastTick(t, pending)
	cmd := o.SubmitAnswer("answer")
	assert.Nil(t, o.Update(tick))
	drain(t, o, cmd)
	assert.Equal(t, 20, o.Session().TimeLeft)
}

func TestPauseStopsTimer(t *testing.T) {
	o, pending := started(t, Options{})
	pending = advance(t, o, pending, 2)
	assert.Equal(t, 18, o.Session().TimeLeft)

	stale := lastTick(t, pending)
	assert.Nil(t, o.TogglePause())
	assert.True(t, o.View().Paused)
	assert.Nil(t, o.Update(stale))
	assert.Equal(t, 18, o.Session().TimeLeft)

	resumed := drain(t, o, o.TogglePause())
	assert.False(t, o.View().Paused)
	assert.Nil(t, o.Update(stale), "tick from before the pause is dropped")
	assert.Equal(t, 18, o.Session().TimeLeft)

	advance(t, o, resumed, 1)
	assert.Equal(t, 17, o.Session().TimeLeft)
}

func TestExhaustedChainCompletesSession(t *testing.T) {
	mem := &memStore{}
	c := chain.New(nil, chain.Options{})
	o, pending := started(t, Options{
		Questions: c,
		Scorer:    evaluator.New(c, evaluator.WithClock(func() time.Time { return fixedNow })),
		Finalizer: aggregator.New(c, nil, nil),
		Store:     mem,
	})
	assert.Equal(t, bank.Questions(), o.Session().Questions)
	require.True(t, hasTick(pending))

	answer := "The api layer validates each request and then writes the record to the database, returning an error when input is wrong."
	for i := 0; i < model.QuestionCount; i++ {
		drain(t, o, o.SubmitAnswer(answer))
	}

	s := o.Session()
	assert.Equal(t, model.StatusCompleted, s.Status)
	require.Len(t, s.Answers, model.QuestionCount)
	for _, a := range s.Answers {
		require.NotNil(t, a.Score)
		assert.Equal(t, 7.0, *a.Score)
		assert.True(t, a.Fallback)
	}
	require.NotNil(t, s.Score)
	assert.Equal(t, 70, *s.Score)
	assert.Contains(t, s.Summary, "strong")
	assert.Equal(t, NoticeDefaultSummary, s.Notice)
	assert.NoError(t, session.Validate(s))

	require.Len(t, mem.sessions, 1)
	assert.Equal(t, model.StatusCompleted, mem.sessions[0].Status)
	assert.Nil(t, o.SubmitAnswer("late"))
}

func TestFinalizeIsIdempotent(t *testing.T) {
	o, _ := started(t, Options{})
	var last tea.Cmd
	for i := 0; i < model.QuestionCount-1; i++ {
		drain(t, o, o.SubmitAnswer("answer"))
	}
	last = o.SubmitAnswer("answer")
	evaluated := last()
	finalize := o.Update(evaluated)
	require.NotNil(t, finalize)
	assert.Nil(t, o.Finalize(), "aggregation already in flight")

	result := finalize()
	o.Update(result)
	s := o.Session()
	require.Equal(t, model.StatusCompleted, s.Status)
	score, summary := *s.Score, s.Summary

	assert.Nil(t, o.Finalize())
	o.Update(result)
	o.Update(finalizedMsg{sessionID: s.ID, attempt: 1, result: aggregator.Result{Score: 1, Summary: "other"}})
	s = o.Session()
	assert.Equal(t, score, *s.Score)
	assert.Equal(t, summary, s.Summary)
}

func TestResetDropsStaleResults(t *testing.T) {
	src := &countingSource{questions: generated()}
	o := newTestOrchestrator(t, Options{Questions: src})
	o.Open(context.Background(), "Ada", "SRE", false)
	oldID := o.Session().ID

	batch := o.EnsureQuestions()().(tea.BatchMsg)
	oldResult := batch[0]()

	next := o.RequestReset()
	s := o.Session()
	assert.NotEqual(t, oldID, s.ID)
	assert.Equal(t, "Ada", s.Candidate)
	assert.Equal(t, "SRE", s.Role)
	assert.Equal(t, model.StatusNotStarted, s.Status)

	assert.Nil(t, o.Update(oldResult))
	assert.Equal(t, model.StatusNotStarted, o.Session().Status)

	drain(t, o, next)
	assert.Equal(t, model.StatusInProgress, o.Session().Status)
	assert.Equal(t, 2, src.calls)
	assert.Len(t, o.Sessions(), 1)
}

func TestResetAfterCompletionKeepsHistory(t *testing.T) {
	o, _ := started(t, Options{})
	for i := 0; i < model.QuestionCount; i++ {
		drain(t, o, o.SubmitAnswer("answer"))
	}
	require.Equal(t, model.StatusCompleted, o.Session().Status)

	drain(t, o, o.RequestReset())
	all := o.Sessions()
	require.Len(t, all, 2)
	assert.Equal(t, model.StatusCompleted, all[0].Status)
	assert.Equal(t, model.StatusInProgress, all[1].Status)
}

func TestWatchdogRetryStartsWithQuestionBank(t *testing.T) {
	src := &countingSource{questions: generated()}
	o := newTestOrchestrator(t, Options{Questions: src, GuardTimeout: time.Minute})
	o.Open(context.Background(), "Ada", "SRE", false)

	batch := o.EnsureQuestions()().(tea.BatchMsg)
	require.Len(t, batch, 2)
	late := batch[0]()
	watchdog := batch[1]()

	assert.Nil(t, o.Update(watchdog))
	v := o.View()
	assert.False(t, v.Generating)
	assert.Equal(t, ErrGenerationStuck, v.Err)
	assert.Nil(t, o.EnsureQuestions(), "generation waits for an explicit retry")

	assert.Nil(t, o.Update(late), "response after the watchdog is dropped")
	assert.Equal(t, model.StatusNotStarted, o.Session().Status)

	pending := drain(t, o, o.Retry())
	s := o.Session()
	assert.Empty(t, s.Err)
	assert.Equal(t, model.StatusInProgress, s.Status)
	assert.Equal(t, bank.Questions()[0].ID, s.Questions[0].ID)
	assert.Equal(t, NoticeDefaultQuestions, s.Notice)
	assert.True(t, hasTick(pending))
	assert.Equal(t, 1, src.calls, "retry after a stuck attempt does not call the chain again")
	assert.Nil(t, o.Retry())
}

// hangingProvider never answers; every call ends when its context does.
type hangingProvider struct {
	name  string
	mu    sync.Mutex
	calls int
}

func (h *hangingProvider) Name() string    { return h.name }
func (h *hangingProvider) Available() bool { return true }

func (h *hangingProvider) wait(ctx context.Context) (string, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	<-ctx.Done()
	return "", ctx.Err()
}

func (h *hangingProvider) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func (h *hangingProvider) GenerateQuestions(ctx context.Context, _ string, _ provider.QuestionRequest) (string, error) {
	return h.wait(ctx)
}

func (h *hangingProvider) EvaluateAnswer(ctx context.Context, _ string, _ provider.EvaluationRequest) (string, error) {
	return h.wait(ctx)
}

func (h *hangingProvider) GenerateSummary(ctx context.Context, _ string, _ provider.SummaryRequest) (string, error) {
	return h.wait(ctx)
}

func hangingChain(t *testing.T, n int) (*chain.Chain, []*hangingProvider) {
	t.Helper()
	providers := make([]*hangingProvider, n)
	candidates := make([]chain.Candidate, n)
	for i := range providers {
		providers[i] = &hangingProvider{name: fmt.Sprintf("p%d", i)}
		candidates[i] = chain.Candidate{Provider: providers[i], Model: "m"}
	}
	c := chain.New(candidates, chain.Options{Timeout: 30 * time.Millisecond, Logger: zaptest.NewLogger(t)})
	return c, providers
}

func totalCalls(providers []*hangingProvider) int {
	n := 0
	for _, p := range providers {
		n += p.callCount()
	}
	return n
}

func TestGuardTimeoutCoversChain(t *testing.T) {
	assert.Equal(t, DefaultGuardTimeout, GuardTimeout(0, 0))
	assert.Equal(t, 5*time.Minute, GuardTimeout(5*time.Minute, time.Minute))
	// Seven candidates at 30s each outlast the default guard.
	assert.Equal(t, 210*time.Second+guardSlack, GuardTimeout(DefaultGuardTimeout, 7*30*time.Second))
}

func TestHangingChainYieldsQuestionBank(t *testing.T) {
	c, providers := hangingChain(t, 7)
	guard := GuardTimeout(180*time.Millisecond, c.Budget())
	require.Greater(t, guard, c.Budget())

	o := newTestOrchestrator(t, Options{Questions: c, GuardTimeout: guard})
	o.Open(context.Background(), "Ada", "SRE", false)
	batch := o.EnsureQuestions()().(tea.BatchMsg)
	require.Len(t, batch, 2)

	// Every candidate times out before the watchdog would fire.
	pending := drain(t, o, batch[0])
	s := o.Session()
	assert.Equal(t, model.StatusInProgress, s.Status)
	assert.Equal(t, NoticeDefaultQuestions, s.Notice)
	assert.Equal(t, bank.Questions()[0].ID, s.Questions[0].ID)
	assert.Equal(t, 7, totalCalls(providers))
	assert.True(t, hasTick(pending))

	assert.Nil(t, o.Update(batch[1]()), "watchdog for a finished attempt is ignored")
	assert.Empty(t, o.Session().Err)
}

func TestHangingChainAfterWatchdogYieldsQuestionBank(t *testing.T) {
	c, providers := hangingChain(t, 7)
	o := newTestOrchestrator(t, Options{Questions: c, GuardTimeout: time.Second})
	o.Open(context.Background(), "Ada", "SRE", false)
	batch := o.EnsureQuestions()().(tea.BatchMsg)
	require.Len(t, batch, 2)

	assert.Nil(t, o.Update(batch[1]()))
	require.Equal(t, ErrGenerationStuck, o.Session().Err)

	// The abandoned attempt is canceled and its result dropped.
	assert.Nil(t, o.Update(batch[0]()))
	calls := totalCalls(providers)

	drain(t, o, o.Retry())
	s := o.Session()
	assert.Equal(t, model.StatusInProgress, s.Status)
	assert.Len(t, s.Questions, model.QuestionCount)
	assert.Equal(t, NoticeDefaultQuestions, s.Notice)
	assert.Equal(t, calls, totalCalls(providers))
}

func TestOpenResumesAndNormalizes(t *testing.T) {
	stored := session.New("Ada", "SRE", fixedNow)
	require.NoError(t, session.Start(&stored, bank.Questions(), fixedNow))
	score := 6.0
	require.NoError(t, session.RecordAnswer(&stored, model.Answer{QuestionID: "bank-1", Text: "x", Score: &score}))
	stored.CurrentIndex = 9
	stored.TimeLeft = 0

	mem := &memStore{sessions: []model.Session{stored}}
	src := &countingSource{questions: generated()}
	o := newTestOrchestrator(t, Options{Questions: src, Store: mem})
	o.Open(context.Background(), "Someone", "Else", true)

	s := o.Session()
	assert.Equal(t, stored.ID, s.ID)
	assert.Equal(t, 1, s.CurrentIndex)
	assert.Equal(t, 20, s.TimeLeft)

	pending := drain(t, o, o.Init())
	assert.True(t, hasTick(pending))
	assert.Equal(t, 0, src.calls)
}

func TestFailedLoadStartsFreshWithoutSaving(t *testing.T) {
	kept := session.New("Grace", "DBA", fixedNow)
	mem := &memStore{sessions: []model.Session{kept}, loadErr: errors.New("disk on fire")}
	o := newTestOrchestrator(t, Options{Store: mem})
	o.Open(context.Background(), "Ada", "SRE", true)
	s := o.Session()
	assert.Equal(t, "Ada", s.Candidate)
	assert.Equal(t, model.StatusNotStarted, s.Status)

	drain(t, o, o.Init())
	require.Equal(t, model.StatusInProgress, o.Session().Status)
	o.Close()
	assert.Zero(t, mem.saves)
	require.Len(t, mem.sessions, 1)
	assert.Equal(t, kept.ID, mem.sessions[0].ID)
}

func TestFailedLoadKeepsStoredHistory(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "intervue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var stored []model.Session
	for _, name := range []string{"Ada", "Grace", "Linus"} {
		stored = append(stored, session.New(name, "SRE", fixedNow))
	}
	require.NoError(t, db.Save(context.Background(), stored))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := newTestOrchestrator(t, Options{Store: db})
	o.Open(ctx, "Ken", "SRE", false)
	drain(t, o, o.Init())
	o.Close()

	after, err := db.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, after, 3)
}

func TestTransitionsAreSaved(t *testing.T) {
	mem := &memStore{}
	o, pending := started(t, Options{Store: mem})
	afterStart := mem.saves
	assert.GreaterOrEqual(t, afterStart, 2)

	advance(t, o, pending, 1)
	assert.Equal(t, afterStart, mem.saves, "ticks are not saved")

	o.Pause()
	assert.Equal(t, afterStart+1, mem.saves)
	limit := o.Session().Questions[0].TimeLimit
	assert.Equal(t, limit-1, mem.sessions[0].TimeLeft)

	o.Close()
	assert.Equal(t, afterStart+2, mem.saves)
	assert.Nil(t, o.Resume())
	assert.Nil(t, o.SubmitAnswer("after close"))
}
