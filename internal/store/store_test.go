package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/verte-zerg/intervue/internal/bank"
	"github.com/verte-zerg/intervue/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "intervue.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func completedSession(id, candidate, role string, completedAt time.Time, score int, fallbacks int) model.Session {
	qs := bank.Questions()
	answers := make([]model.Answer, len(qs))
	for i, q := range qs {
		v := float64(i)
		answers[i] = model.Answer{
			QuestionID: q.ID,
			Text:       "answer",
			Score:      &v,
			Feedback:   "ok",
			Fallback:   i < fallbacks,
			Timestamp:  completedAt.Add(-time.Duration(6-i) * time.Minute),
		}
	}
	return model.Session{
		ID:           id,
		Candidate:    candidate,
		Role:         role,
		Status:       model.StatusCompleted,
		Questions:    qs,
		Answers:      answers,
		CurrentIndex: model.QuestionCount,
		Score:        &score,
		Summary:      "summary for " + id,
		CreatedAt:    completedAt.Add(-time.Hour),
		StartedAt:    completedAt.Add(-50 * time.Minute),
		CompletedAt:  completedAt,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	done := completedSession("a", "Ada", "SRE", base, 65, 2)
	active := model.Session{
		ID:           "b",
		Candidate:    "Ada",
		Role:         "SRE",
		Status:       model.StatusInProgress,
		Questions:    bank.Questions(),
		Answers:      done.Answers[:2],
		CurrentIndex: 2,
		TimeLeft:     42,
		Paused:       true,
		Notice:       "Using default questions",
		CreatedAt:    base.Add(time.Hour),
		StartedAt:    base.Add(time.Hour + time.Second),
	}
	fresh := model.Session{ID: "c", Candidate: "Bob", Role: "QA", Status: model.StatusNotStarted, CreatedAt: base.Add(2 * time.Hour)}

	in := []model.Session{done, active, fresh}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestSaveReplacesEverything(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	if err := s.Save(ctx, []model.Session{
		completedSession("a", "Ada", "SRE", base, 50, 0),
		completedSession("b", "Ada", "SRE", base.Add(time.Hour), 60, 0),
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, []model.Session{completedSession("b", "Ada", "SRE", base.Add(time.Hour), 70, 0)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 1 || out[0].ID != "b" || *out[0].Score != 70 {
		t.Fatalf("unexpected sessions after replace: %+v", out)
	}
	if len(out[0].Answers) != model.QuestionCount || len(out[0].Questions) != model.QuestionCount {
		t.Fatalf("children not replaced: %d questions, %d answers", len(out[0].Questions), len(out[0].Answers))
	}
}

func TestLoadEmpty(t *testing.T) {
	s := openTestStore(t)
	out, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no sessions, got %d", len(out))
	}
}

func TestListCompleted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	sessions := []model.Session{
		completedSession("a", "Ada", "SRE", base, 40, 1),
		completedSession("b", "Bob", "SRE", base.Add(1500*time.Millisecond), 55, 0),
		completedSession("c", "Ada", "Backend", base.Add(time.Second), 80, 3),
		{ID: "d", Candidate: "Ada", Role: "SRE", Status: model.StatusInProgress, CreatedAt: base},
	}
	if err := s.Save(ctx, sessions); err != nil {
		t.Fatalf("save: %v", err)
	}

	all, err := s.ListCompleted(ctx, model.HistoryFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := ids(all); !reflect.DeepEqual(got, []string{"a", "c", "b"}) {
		t.Fatalf("unexpected order: %v", got)
	}
	if all[1].Fallbacks != 3 || all[1].Score != 80 || all[1].Summary != "summary for c" {
		t.Fatalf("unexpected aggregate: %+v", all[1])
	}

	ada, err := s.ListCompleted(ctx, model.HistoryFilter{Candidate: "Ada"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := ids(ada); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("candidate filter: %v", got)
	}

	since := base.Add(time.Second)
	recent, err := s.ListCompleted(ctx, model.HistoryFilter{Role: "SRE", Since: &since})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := ids(recent); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("role/since filter: %v", got)
	}

	last, err := s.ListCompleted(ctx, model.HistoryFilter{Last: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := ids(last); !reflect.DeepEqual(got, []string{"c", "b"}) {
		t.Fatalf("last filter: %v", got)
	}
}

func ids(aggs []model.SessionAggregate) []string {
	out := make([]string, len(aggs))
	for i, a := range aggs {
		out[i] = a.SessionID
	}
	return out
}
