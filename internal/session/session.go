// Package session implements the interview state machine as transitions on
// model.Session values.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/intervue/internal/model"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in
	// the session's current status.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrInvalidQuestions is returned for a question set that is not six
	// questions in tier order.
	ErrInvalidQuestions = errors.New("invalid question set")
	// ErrAnswerMismatch is returned when an answer does not belong to the
	// current question.
	ErrAnswerMismatch = errors.New("answer does not match current question")
)

// New creates a session that has not started yet.
func New(candidate, role string, now time.Time) model.Session {
	return model.Session{
		ID:        uuid.NewString(),
		Candidate: candidate,
		Role:      role,
		Status:    model.StatusNotStarted,
		CreatedAt: now,
	}
}

// ValidateQuestions checks count, tier order and text of a question set.
func ValidateQuestions(questions []model.Question) error {
	if len(questions) != model.QuestionCount {
		return fmt.Errorf("%w: got %d questions, want %d", ErrInvalidQuestions, len(questions), model.QuestionCount)
	}
	for i, q := range questions {
		if q.Difficulty != model.TierOrder[i] {
			return fmt.Errorf("%w: question %d is %s, want %s", ErrInvalidQuestions, i+1, q.Difficulty, model.TierOrder[i])
		}
		if q.Text == "" {
			return fmt.Errorf("%w: question %d is empty", ErrInvalidQuestions, i+1)
		}
	}
	return nil
}

// Start moves a NotStarted session to InProgress with the given questions
// and arms the first question.
func Start(s *model.Session, questions []model.Question, now time.Time) error {
	if s.Status != model.StatusNotStarted {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, s.Status)
	}
	if err := ValidateQuestions(questions); err != nil {
		return err
	}
	s.Questions = append([]model.Question(nil), questions...)
	s.Answers = nil
	s.CurrentIndex = 0
	s.TimeLeft = limitAt(s, 0)
	s.Paused = false
	s.Status = model.StatusInProgress
	s.StartedAt = now
	s.Err = ""
	return nil
}

// Current returns the question awaiting an answer.
func Current(s model.Session) (model.Question, bool) {
	if s.Status != model.StatusInProgress || s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return model.Question{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

// RecordAnswer appends the answer for the current question, advances the
// index and arms the next question's time limit.
func RecordAnswer(s *model.Session, a model.Answer) error {
	q, ok := Current(*s)
	if !ok {
		return fmt.Errorf("%w: no question awaiting an answer", ErrInvalidTransition)
	}
	if a.QuestionID != q.ID {
		return fmt.Errorf("%w: got %q, want %q", ErrAnswerMismatch, a.QuestionID, q.ID)
	}
	if len(s.Answers) != s.CurrentIndex {
		return fmt.Errorf("%w: %d answers at index %d", ErrInvalidTransition, len(s.Answers), s.CurrentIndex)
	}
	s.Answers = append(s.Answers, a)
	s.CurrentIndex++
	s.TimeLeft = limitAt(s, s.CurrentIndex)
	s.Paused = false
	return nil
}

// AwaitingAggregation reports whether every question is answered but the
// session is not completed yet.
func AwaitingAggregation(s model.Session) bool {
	return s.Status == model.StatusInProgress &&
		len(s.Questions) == model.QuestionCount &&
		s.CurrentIndex == model.QuestionCount &&
		len(s.Answers) == model.QuestionCount
}

// Complete stores the final score and summary. Completing an already
// completed session is a no-op.
func Complete(s *model.Session, score int, summary string, now time.Time) error {
	if s.Status == model.StatusCompleted {
		return nil
	}
	if !AwaitingAggregation(*s) {
		return fmt.Errorf("%w: complete at index %d with %d answers", ErrInvalidTransition, s.CurrentIndex, len(s.Answers))
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	s.Score = &score
	s.Summary = summary
	s.Status = model.StatusCompleted
	s.TimeLeft = 0
	s.Paused = false
	s.CompletedAt = now
	return nil
}

// Pause stops the countdown. It reports whether anything changed.
func Pause(s *model.Session) bool {
	if _, ok := Current(*s); !ok || s.Paused {
		return false
	}
	s.Paused = true
	return true
}

// Resume restarts the countdown. It reports whether anything changed.
func Resume(s *model.Session) bool {
	if !s.Paused {
		return false
	}
	s.Paused = false
	return true
}

// Tick consumes one second of the current question's time. It reports true
// when the time has run out.
func Tick(s *model.Session) bool {
	if _, ok := Current(*s); !ok || s.Paused {
		return false
	}
	if s.TimeLeft > 0 {
		s.TimeLeft--
	}
	return s.TimeLeft == 0
}

// Reset returns a fresh session for the same candidate and role.
func Reset(s model.Session, now time.Time) model.Session {
	return New(s.Candidate, s.Role, now)
}

// Normalize repairs a session loaded from storage so the invariants hold
// again. It reports whether anything changed.
func Normalize(s *model.Session) bool {
	before := fingerprint(*s)

	switch s.Status {
	case model.StatusNotStarted:
		s.Answers = nil
		s.CurrentIndex = 0
		s.TimeLeft = 0
		s.Paused = false
		if len(s.Questions) != model.QuestionCount {
			s.Questions = nil
		}
	case model.StatusInProgress:
		if ValidateQuestions(s.Questions) != nil {
			s.Status = model.StatusNotStarted
			s.Questions = nil
			s.Answers = nil
			s.CurrentIndex = 0
			s.TimeLeft = 0
			s.Paused = false
			break
		}
		if len(s.Answers) > model.QuestionCount {
			s.Answers = s.Answers[:model.QuestionCount]
		}
		if s.CurrentIndex < 0 {
			s.CurrentIndex = 0
		}
		if s.CurrentIndex > model.QuestionCount {
			s.CurrentIndex = model.QuestionCount
		}
		if s.CurrentIndex > len(s.Answers) {
			// The index ran ahead of the answers; resume at the first
			// unanswered question.
			s.CurrentIndex = len(s.Answers)
		}
		if len(s.Answers) > s.CurrentIndex {
			s.Answers = s.Answers[:s.CurrentIndex]
		}
		limit := limitAt(s, s.CurrentIndex)
		if s.TimeLeft <= 0 || s.TimeLeft > limit {
			s.TimeLeft = limit
		}
		if s.CurrentIndex == model.QuestionCount {
			s.Paused = false
		}
	case model.StatusCompleted:
		s.Paused = false
		s.TimeLeft = 0
	}

	return before != fingerprint(*s)
}

// Validate reports the first broken invariant, if any.
func Validate(s model.Session) error {
	if n := len(s.Questions); n != 0 && n != model.QuestionCount {
		return fmt.Errorf("session %s has %d questions", s.ID, n)
	}
	if len(s.Questions) == model.QuestionCount {
		if err := ValidateQuestions(s.Questions); err != nil {
			return fmt.Errorf("session %s: %w", s.ID, err)
		}
	}
	if len(s.Answers) != s.CurrentIndex {
		return fmt.Errorf("session %s has %d answers at index %d", s.ID, len(s.Answers), s.CurrentIndex)
	}
	if s.CurrentIndex < 0 || s.CurrentIndex > model.QuestionCount {
		return fmt.Errorf("session %s index %d out of range", s.ID, s.CurrentIndex)
	}
	for i, a := range s.Answers {
		if i < len(s.Questions) && a.QuestionID != s.Questions[i].ID {
			return fmt.Errorf("session %s answer %d is for question %q", s.ID, i+1, a.QuestionID)
		}
	}
	completed := s.Status == model.StatusCompleted
	if completed != (s.Score != nil) {
		return fmt.Errorf("session %s status %s with score set=%t", s.ID, s.Status, s.Score != nil)
	}
	if completed && len(s.Answers) != model.QuestionCount {
		return fmt.Errorf("session %s completed with %d answers", s.ID, len(s.Answers))
	}
	if s.Score != nil && (*s.Score < 0 || *s.Score > 100) {
		return fmt.Errorf("session %s score %d out of range", s.ID, *s.Score)
	}
	if s.TimeLeft < 0 {
		return fmt.Errorf("session %s has negative time left", s.ID)
	}
	return nil
}

// Latest returns the most recently created session that is not completed.
func Latest(sessions []model.Session) (model.Session, bool) {
	var out model.Session
	found := false
	for _, s := range sessions {
		if s.Status == model.StatusCompleted {
			continue
		}
		if !found || s.CreatedAt.After(out.CreatedAt) {
			out = s
			found = true
		}
	}
	return out, found
}

func limitAt(s *model.Session, idx int) int {
	if idx < 0 || idx >= len(s.Questions) {
		return 0
	}
	if s.Questions[idx].TimeLimit > 0 {
		return s.Questions[idx].TimeLimit
	}
	return s.Questions[idx].Difficulty.TimeLimit()
}

type snapshot struct {
	status    model.Status
	questions int
	answers   int
	index     int
	timeLeft  int
	paused    bool
}

func fingerprint(s model.Session) snapshot {
	return snapshot{s.Status, len(s.Questions), len(s.Answers), s.CurrentIndex, s.TimeLeft, s.Paused}
}
