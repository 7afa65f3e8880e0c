package observability_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landdev/internal/adapters/observability"
)

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	// record samples so the vectors are exported
	observability.ObserveHTTP("/test", "GET", 200, 12*time.Millisecond)
	observability.ObserveIngest("inserted")
	observability.ObserveIngest("skipped")
	observability.ObserveDedupe(3)
	observability.ObserveRecordWrite("projects", "update")

	mh := observability.MetricsHandler(reg)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mh.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	assert.Contains(t, out, "landdev_http_requests_total")
	assert.Contains(t, out, `landdev_reviews_ingested_total{result="skipped"}`)
	assert.Contains(t, out, "landdev_reviews_deduped_total")
	assert.Contains(t, out, `landdev_record_writes_total{entity="projects",op="update"}`)
}
