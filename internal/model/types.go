// Package model defines shared data structures.
package model

import "time"

// Status is the lifecycle state of an interview session.
type Status string

// Session statuses. Transitions only move forward.
const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Difficulty is the tier of a question.
type Difficulty string

// Question tiers.
const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// QuestionCount is the number of questions in every interview.
const QuestionCount = 6

// TierOrder lists the difficulty of each question position.
var TierOrder = [QuestionCount]Difficulty{Easy, Easy, Medium, Medium, Hard, Hard}

// TimeLimit returns the answer time in seconds for a difficulty.
func (d Difficulty) TimeLimit() int {
	switch d {
	case Easy:
		return 20
	case Medium:
		return 60
	case Hard:
		return 120
	default:
		return 60
	}
}

// Sentinel answer texts stored when the candidate gave no answer.
const (
	NoAnswerText        = "No answer provided"
	NoAnswerTimeoutText = "No answer provided (time ran out)"
)

// Question is a single interview question.
type Question struct {
	ID         string
	Text       string
	Difficulty Difficulty
	TimeLimit  int
}

// Answer is a recorded, evaluated answer to a question.
type Answer struct {
	QuestionID string
	Text       string
	Score      *float64
	Feedback   string
	Fallback   bool
	Timestamp  time.Time
}

// Session is one candidate's interview record.
type Session struct {
	ID           string
	Candidate    string
	Role         string
	Status       Status
	Questions    []Question
	Answers      []Answer
	CurrentIndex int
	TimeLeft     int
	Paused       bool
	Score        *int
	Summary      string
	Notice       string
	Err          string
	CreatedAt    time.Time
	StartedAt    time.Time
	CompletedAt  time.Time
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	if s.Questions != nil {
		out.Questions = append([]Question(nil), s.Questions...)
	}
	if s.Answers != nil {
		out.Answers = make([]Answer, len(s.Answers))
		for i, a := range s.Answers {
			if a.Score != nil {
				v := *a.Score
				a.Score = &v
			}
			out.Answers[i] = a
		}
	}
	if s.Score != nil {
		v := *s.Score
		out.Score = &v
	}
	return out
}

// HistoryFilter selects completed sessions for reporting.
type HistoryFilter struct {
	Candidate string
	Role      string
	Since     *time.Time
	Last      int
}

// SessionAggregate summarizes a completed session for reporting.
type SessionAggregate struct {
	SessionID   string
	Candidate   string
	Role        string
	CompletedAt time.Time
	Score       int
	Summary     string
	Fallbacks   int
}
