package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	assert.Equal(t, "sportsdigest_deliveries_total", name("deliveries_total"))
	assert.Equal(t, `sportsdigest_api_requests_total{source="newsdata",outcome="ok"}`,
		name("api_requests_total", "source", "newsdata", "outcome", "ok"))
	assert.Equal(t, `sportsdigest_x{k="a'b"}`, name("x", "k", `a"b`))
}

func TestHandlerExposesCounters(t *testing.T) {
	RecordAPIRequest("api-football", "ok")
	RecordSaved("article", "soccer", 3)
	RecordSaved("article", "soccer", 0)
	RecordDelivery("sent")
	RecordJob("cleanup-old-data", "ok", time.Now().Add(-time.Second))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `sportsdigest_api_requests_total{source="api-football",outcome="ok"}`)
	assert.Contains(t, body, `sportsdigest_items_saved_total{kind="article",sport="soccer"} 3`)
	assert.Contains(t, body, `sportsdigest_job_runs_total{job="cleanup-old-data",status="ok"} 1`)
}
