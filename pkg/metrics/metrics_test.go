package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lectern/pkg/metrics"
)

func TestMetricsExposition(t *testing.T) {
	m := metrics.New()
	m.ChatTurn(true)
	m.ChatTurn(false)
	m.DegradedTurn()
	m.VoiceAction("navigation")
	m.ObserveRetrieval(20 * time.Millisecond)
	m.ObserveHTTP("POST", "/api/v1/chat/", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	gt.Equal(t, rec.Code, 200)

	body, err := io.ReadAll(rec.Body)
	gt.NoError(t, err)
	text := string(body)
	gt.S(t, text).Contains(`lectern_chat_turns_total{context_used="true"} 1`)
	gt.S(t, text).Contains(`lectern_chat_degraded_turns_total 1`)
	gt.S(t, text).Contains(`lectern_voice_actions_total{type="navigation"} 1`)
	gt.S(t, text).Contains(`lectern_http_requests_total{method="POST",path="/api/v1/chat/",status="200"} 1`)
	gt.S(t, text).Contains("lectern_retrieval_duration_seconds_count 1")
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	m.ChatTurn(true)
	m.DegradedTurn()
	m.VoiceAction("query")
	m.ObserveRetrieval(time.Second)
	m.ObserveHTTP("GET", "/", 200, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	gt.Equal(t, rec.Code, 404)
}
