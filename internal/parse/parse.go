// Package parse normalizes free-form AI provider output into questions,
// evaluations, and summaries.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// MinQuestionLength is the shortest text accepted as a question.
const MinQuestionLength = 10

// minLooseQuestionLength applies to unnumbered lines picked up by their "?".
const minLooseQuestionLength = 20

var (
	// ErrEmpty is returned when a response carries no usable content.
	ErrEmpty = errors.New("empty response")
	// ErrMalformed is returned when a response cannot be normalized.
	ErrMalformed = errors.New("malformed response")
)

var (
	fenceRe    = regexp.MustCompile("```[A-Za-z0-9_-]*")
	numberedRe = regexp.MustCompile(`(?i)^\s*(?:q(?:uestion)?\s*)?\d{1,2}\s*[.):\-]\s*(.+)$`)
	bulletRe   = regexp.MustCompile(`^\s*(?:[-*•]+|\d{1,2}[.)])\s*`)
)

// StripFences removes markdown code-fence markers.
func StripFences(s string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(s, ""))
}

// Questions extracts exactly count questions from raw provider output.
func Questions(raw string, count int) ([]string, error) {
	text := StripFences(raw)
	if text == "" {
		return nil, ErrEmpty
	}
	items, ok := questionsFromJSON(text)
	if !ok {
		items = questionsFromLines(text)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = cleanItem(item)
		if len([]rune(item)) < MinQuestionLength {
			continue
		}
		out = append(out, item)
	}
	if len(out) != count {
		return nil, fmt.Errorf("%w: got %d questions, want %d", ErrMalformed, len(out), count)
	}
	return out, nil
}

func questionsFromJSON(text string) ([]string, bool) {
	candidates := []string{text}
	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}
	for _, candidate := range candidates {
		var v any
		if err := json.Unmarshal([]byte(candidate), &v); err != nil {
			continue
		}
		if items, ok := questionsFromValue(v); ok {
			return items, true
		}
	}
	return nil, false
}

func questionsFromValue(v any) ([]string, bool) {
	switch val := v.(type) {
	case []any:
		items := make([]string, 0, len(val))
		for _, elem := range val {
			switch e := elem.(type) {
			case string:
				items = append(items, e)
			case map[string]any:
				if s, ok := firstString(e, "question", "text", "content"); ok {
					items = append(items, s)
				}
			}
		}
		// A bracketed fragment such as "[]byte" inside a numbered list is
		// valid JSON but carries no questions.
		return items, len(items) > 0
	case map[string]any:
		if inner, ok := val["questions"]; ok {
			return questionsFromValue(inner)
		}
		// Some providers wrap the whole answer as a JSON string field.
		if s, ok := firstString(val, "text", "content", "response", "output"); ok {
			if items, ok := questionsFromJSON(StripFences(s)); ok {
				return items, true
			}
			return questionsFromLines(s), true
		}
	}
	return nil, false
}

func questionsFromLines(text string) []string {
	lines := strings.Split(text, "\n")
	var numbered []string
	for _, line := range lines {
		if m := numberedRe.FindStringSubmatch(line); m != nil {
			numbered = append(numbered, m[1])
		}
	}
	if len(numbered) > 0 {
		return numbered
	}
	var loose []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "?") && len([]rune(line)) > minLooseQuestionLength {
			loose = append(loose, line)
		}
	}
	return loose
}

func cleanItem(item string) string {
	item = strings.TrimSpace(item)
	item = bulletRe.ReplaceAllString(item, "")
	item = strings.Trim(item, "\"'`*, ")
	return strings.TrimSpace(item)
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

// Evaluation is a parsed answer grade.
type Evaluation struct {
	Score    float64
	Feedback string
}

const defaultFeedback = "No feedback provided."

var (
	scoreLabelRe    = regexp.MustCompile(`(?i)\b(?:score|rating)\s*[:=\-]?\s*(\d+(?:\.\d+)?)\s*(?:(?:/|out of)\s*(10|100)\b)?`)
	feedbackLabelRe = regexp.MustCompile(`(?is)\bfeedback\s*[:=\-]\s*(.+)`)
	numberRe        = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
)

// ParseEvaluation extracts a score in [0,10] and feedback from raw provider
// output. It tries strict JSON, then labeled fields, then the first number in
// range.
func ParseEvaluation(raw string) (Evaluation, error) {
	text := StripFences(raw)
	if text == "" {
		return Evaluation{}, ErrEmpty
	}
	if ev, ok := evaluationFromJSON(text); ok {
		return finishEvaluation(ev), nil
	}
	if m := scoreLabelRe.FindStringSubmatchIndex(text); m != nil {
		score, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
		if err == nil {
			if m[4] >= 0 && text[m[4]:m[5]] == "100" {
				score /= 10
			}
			ev := Evaluation{Score: score}
			if fm := feedbackLabelRe.FindStringSubmatch(text); fm != nil {
				ev.Feedback = strings.TrimSpace(fm[1])
			} else {
				ev.Feedback = strings.TrimLeft(strings.TrimSpace(text[:m[0]]+text[m[1]:]), ".,;:- ")
			}
			return finishEvaluation(ev), nil
		}
	}
	for _, loc := range numberRe.FindAllStringIndex(text, -1) {
		score, err := strconv.ParseFloat(text[loc[0]:loc[1]], 64)
		if err != nil || score < 0 || score > 10 {
			continue
		}
		return finishEvaluation(Evaluation{Score: score, Feedback: text}), nil
	}
	return Evaluation{}, fmt.Errorf("%w: no score found", ErrMalformed)
}

func evaluationFromJSON(text string) (Evaluation, bool) {
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Evaluation{}, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return Evaluation{}, false
	}
	score, ok := numberField(obj, "score", "rating")
	if !ok {
		return Evaluation{}, false
	}
	feedback, _ := firstString(obj, "feedback", "comment", "explanation")
	return Evaluation{Score: score, Feedback: strings.TrimSpace(feedback)}, true
}

func numberField(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			return v, true
		case string:
			s := strings.TrimSpace(v)
			if i := strings.Index(s, "/"); i >= 0 {
				s = strings.TrimSpace(s[:i])
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func finishEvaluation(ev Evaluation) Evaluation {
	ev.Score = ClampScore(ev.Score)
	if ev.Feedback == "" {
		ev.Feedback = defaultFeedback
	}
	return ev
}

// ClampScore bounds a per-answer score to [0,10].
func ClampScore(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return math.Max(0, math.Min(10, score))
}

// Summary extracts narrative text from raw provider output.
func Summary(raw string) (string, error) {
	text := StripFences(raw)
	if strings.HasPrefix(text, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err == nil {
			if s, ok := firstString(obj, "summary", "text", "content"); ok {
				text = s
			}
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}
