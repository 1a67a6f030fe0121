package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveAttempt(t *testing.T) {
	m := New()
	m.ObserveAttempt("openai", "gpt", "evaluate", OutcomeSuccess, time.Second)
	m.ObserveAttempt("openai", "gpt", "evaluate", OutcomeSuccess, time.Second)
	m.ObserveAttempt("groq", "llama", "questions", OutcomeTimeout, 30*time.Second)
	m.Exhausted("questions")
	m.Fallback("bank")
	m.SessionCompleted(65)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("openai", "gpt", "evaluate", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("groq", "llama", "questions", OutcomeTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exhausted.WithLabelValues("questions")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("bank")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAttempt("p", "m", "op", OutcomeError, time.Millisecond)
		m.Exhausted("op")
		m.Fallback("heuristic")
		m.SessionCompleted(10)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.Exhausted("summary")
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `intervue_chain_exhausted_total{op="summary"} 1`)
}
