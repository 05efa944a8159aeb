package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordAndServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTransition("Queued")
	m.ObserveTransition("Queued")
	m.ObserveTransition("Resolved")
	m.ObserveRequest(http.MethodGet, "/api/case/{id}", http.StatusOK, 15*time.Millisecond)
	m.IncBroadcastDrop("dashboard")
	m.ObserveJob("done")
	release := m.StreamClientConnected()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.transitions.WithLabelValues("Queued")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.streamClients))
	release()
	assert.Equal(t, float64(0), testutil.ToFloat64(m.streamClients))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `resolveit_case_transitions_total{status="Resolved"} 1`))
	assert.True(t, strings.Contains(body, `resolveit_http_requests_total{code="200",method="GET",route="/api/case/{id}"} 1`))
	assert.True(t, strings.Contains(body, `resolveit_scheduled_transitions_total{state="done"} 1`))
}
