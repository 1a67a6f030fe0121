package interview

import (
	"github.com/verte-zerg/intervue/internal/aggregator"
	"github.com/verte-zerg/intervue/internal/model"
)

type tickMsg struct {
	sessionID string
	gen       int
}

type watchdogMsg struct {
	sessionID string
	attempt   int
}

type questionsMsg struct {
	sessionID string
	attempt   int
	questions []model.Question
	err       error
}

type evaluatedMsg struct {
	sessionID string
	attempt   int
	index     int
	session   model.Session
}

type finalizedMsg struct {
	sessionID string
	attempt   int
	result    aggregator.Result
}
