package parse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sixQuestions = []string{
	"What is the difference between a process and a thread?",
	"Explain what an HTTP status code 404 means.",
	"How would you design a rate limiter for a public API?",
	"Describe how database indexes speed up queries.",
	"How would you shard a write-heavy relational database?",
	"Design a distributed cache with consistent hashing.",
}

func TestQuestionsStrictJSON(t *testing.T) {
	raw := "```json\n[\n" +
		`"What is the difference between a process and a thread?",` + "\n" +
		`"Explain what an HTTP status code 404 means.",` + "\n" +
		`"How would you design a rate limiter for a public API?",` + "\n" +
		`"Describe how database indexes speed up queries.",` + "\n" +
		`"How would you shard a write-heavy relational database?",` + "\n" +
		`"Design a distributed cache with consistent hashing."` + "\n]\n```"

	got, err := Questions(raw, 6)
	require.NoError(t, err)
	assert.Equal(t, sixQuestions, got)
}

func TestQuestionsJSONObjects(t *testing.T) {
	raw := `{"questions": [
		{"question": "What is the difference between a process and a thread?", "difficulty": "easy"},
		{"text": "Explain what an HTTP status code 404 means."},
		{"question": "How would you design a rate limiter for a public API?"},
		{"question": "Describe how database indexes speed up queries."},
		{"question": "How would you shard a write-heavy relational database?"},
		{"question": "Design a distributed cache with consistent hashing."}
	]}`

	got, err := Questions(raw, 6)
	require.NoError(t, err)
	assert.Equal(t, sixQuestions, got)
}

func TestQuestionsJSONWrappedText(t *testing.T) {
	raw := `{"response": "1. What is the difference between a process and a thread?\n2. Explain what an HTTP status code 404 means.\n3. How would you design a rate limiter for a public API?\n4. Describe how database indexes speed up queries.\n5. How would you shard a write-heavy relational database?\n6. Design a distributed cache with consistent hashing."}`

	got, err := Questions(raw, 6)
	require.NoError(t, err)
	assert.Equal(t, sixQuestions, got)
}

func TestQuestionsNumberedLines(t *testing.T) {
	raw := `Here are your questions:

1. What is the difference between a process and a thread?
2) Explain what an HTTP status code 404 means.
Q3: How would you design a rate limiter for a public API?
4. Describe how database indexes speed up queries.
5. How would you shard a write-heavy relational database?
6. Design a distributed cache with consistent hashing.

Good luck!`

	got, err := Questions(raw, 6)
	require.NoError(t, err)
	assert.Equal(t, sixQuestions, got)
}

func TestQuestionsNumberedLinesWithBrackets(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{
			name: "empty slice type",
			want: "How does append grow a []byte when its capacity is exhausted?",
		},
		{
			name: "number literal",
			want: "How does append grow the slice [1, 2, 3] when capacity runs out?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := "1. What does the zero value of a Go map let you do?\n" +
				"2. " + tt.want + "\n" +
				"3. When would you pick a buffered channel over an unbuffered one?\n" +
				"4. How do you stop a goroutine that reads from a closed channel?\n" +
				"5. Explain how escape analysis decides between stack and heap.\n" +
				"6. Design a worker pool that drains cleanly on context cancellation."

			got, err := Questions(raw, 6)
			require.NoError(t, err)
			require.Len(t, got, 6)
			assert.Equal(t, tt.want, got[1])
		})
	}
}

func TestQuestionsLooseQuestionMarks(t *testing.T) {
	raw := `Easy
What is the difference between a process and a thread?
Why?
Can you explain what an HTTP 404 means?
Medium
How would you design a rate limiter for a public API?
How do database indexes speed up queries?
Hard
How would you shard a write-heavy relational database?
How would you design a distributed cache?`

	got, err := Questions(raw, 6)
	require.NoError(t, err)
	assert.Len(t, got, 6)
	assert.Equal(t, "How would you design a distributed cache?", got[5])
}

func TestQuestionsDropsShortItems(t *testing.T) {
	raw := `["What is Go?", "Short", "Tiny?", "Explain goroutines and channels in depth."]`
	got, err := Questions(raw, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"What is Go?", "Explain goroutines and channels in depth."}, got)
}

func TestQuestionsWrongCount(t *testing.T) {
	raw := `["What is the difference between a process and a thread?", "Explain what an HTTP status code 404 means."]`
	_, err := Questions(raw, 6)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestQuestionsEmpty(t *testing.T) {
	_, err := Questions("```\n```", 6)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestParseEvaluation(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		score    float64
		feedback string
	}{
		{
			name:     "strict json",
			raw:      `{"score": 8, "feedback": "Clear and correct."}`,
			score:    8,
			feedback: "Clear and correct.",
		},
		{
			name:     "fenced json with string score",
			raw:      "```json\n{\"score\": \"7/10\", \"feedback\": \"Good depth.\"}\n```",
			score:    7,
			feedback: "Good depth.",
		},
		{
			name:     "labeled text",
			raw:      "Score: 6/10\nFeedback: Mentions indexes but misses trade-offs.",
			score:    6,
			feedback: "Mentions indexes but misses trade-offs.",
		},
		{
			name:     "label without feedback",
			raw:      "Rating: 4.5 out of 10. Too shallow.",
			score:    4.5,
			feedback: "Too shallow.",
		},
		{
			name:     "hundred point scale",
			raw:      "Score: 85/100\nFeedback: Solid answer.",
			score:    8.5,
			feedback: "Solid answer.",
		},
		{
			name:     "hundred point scale in words",
			raw:      "Rating: 70 out of 100. Covers the basics.",
			score:    7,
			feedback: "Covers the basics.",
		},
		{
			name:     "bare number",
			raw:      "I would give this answer a 9 because it covers everything.",
			score:    9,
			feedback: "I would give this answer a 9 because it covers everything.",
		},
		{
			name:     "clamped high",
			raw:      `{"score": 14}`,
			score:    10,
			feedback: defaultFeedback,
		},
		{
			name:     "clamped low",
			raw:      `{"score": -3, "feedback": "Off topic."}`,
			score:    0,
			feedback: "Off topic.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvaluation(tt.raw)
			require.NoError(t, err)
			assert.InDelta(t, tt.score, ev.Score, 0.001)
			assert.Equal(t, tt.feedback, ev.Feedback)
		})
	}
}

func TestParseEvaluationNoScore(t *testing.T) {
	_, err := ParseEvaluation("The answer was thoughtful but I cannot grade it.")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseEvaluation("   ")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSummary(t *testing.T) {
	got, err := Summary("```\nStrong candidate overall.\n```")
	require.NoError(t, err)
	assert.Equal(t, "Strong candidate overall.", got)

	got, err = Summary(`{"summary": "Solid fundamentals."}`)
	require.NoError(t, err)
	assert.Equal(t, "Solid fundamentals.", got)

	_, err = Summary("  ")
	assert.ErrorIs(t, err, ErrEmpty)
}
