// Package bank holds the built-in interview questions used when no provider
// can supply a batch.
package bank

import (
	"fmt"

	"github.com/verte-zerg/intervue/internal/model"
)

var texts = [model.QuestionCount]string{
	"What is the difference between a process and a thread?",
	"Explain what a REST API is and name the common HTTP methods it uses.",
	"How does a database index speed up queries, and what does it cost on writes?",
	"Describe how you would debug a service whose response times suddenly doubled.",
	"Design a URL shortener that handles millions of requests per day. Walk through storage, caching and scaling.",
	"How would you build a distributed rate limiter shared by many API servers, and how would you keep it consistent?",
}

// Questions returns the six built-in questions in tier order. Every call
// returns a fresh slice with the same content.
func Questions() []model.Question {
	out := make([]model.Question, model.QuestionCount)
	for i, text := range texts {
		d := model.TierOrder[i]
		out[i] = model.Question{
			ID:         fmt.Sprintf("bank-%d", i+1),
			Text:       text,
			Difficulty: d,
			TimeLimit:  d.TimeLimit(),
		}
	}
	return out
}
