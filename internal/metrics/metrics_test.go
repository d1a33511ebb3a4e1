package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("stackit")
	b := NewCollector("stackit")

	a.Submissions.WithLabelValues("answer", "create", "blocked").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Submissions.WithLabelValues("answer", "create", "blocked")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Submissions.WithLabelValues("answer", "create", "blocked")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector("stackit")
	c.ObserveHTTP(http.MethodPost, "/api/questions", "201", 15*time.Millisecond)
	c.ModerationFailures.WithLabelValues("text", "timeout").Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `stackit_http_requests_total{method="POST",route="/api/questions",status="201"} 1`)
	assert.Contains(t, body, `stackit_moderation_upstream_failures_total{category="timeout",kind="text"} 1`)
}
