package interview

import (
	"github.com/verte-zerg/intervue/internal/model"
	"github.com/verte-zerg/intervue/internal/session"
)

// View is the snapshot the UI renders.
type View struct {
	SessionID   string
	Candidate   string
	Role        string
	Status      model.Status
	Question    *model.Question
	Index       int
	Total       int
	TimeLeft    int
	Paused      bool
	Generating  bool
	Evaluating  bool
	Aggregating bool
	Score       *int
	Summary     string
	Notice      string
	Err         string
	Draft       string
	Questions   []model.Question
	Answers     []model.Answer
}

// View returns the current UI snapshot.
func (o *Orchestrator) View() View {
	s := o.Session()
	v := View{
		SessionID: s.ID,
		Candidate: s.Candidate,
		Role:      s.Role,
		Status:    s.Status,
		Index:     s.CurrentIndex,
		Total:     model.QuestionCount,
		TimeLeft:  s.TimeLeft,
		Paused:    s.Paused,
		Score:     s.Score,
		Summary:   s.Summary,
		Notice:    s.Notice,
		Err:       s.Err,
		Draft:     o.draft,
		Questions: s.Questions,
		Answers:   s.Answers,
	}
	if q, ok := session.Current(s); ok {
		v.Question = &q
	}
	if f, ok := o.inflight[s.ID]; ok {
		v.Generating = f.generating
		v.Evaluating = f.evaluating
		v.Aggregating = f.aggregating
	}
	return v
}
