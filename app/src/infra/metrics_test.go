package infra

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInitMetricsIdempotent(t *testing.T) {
	t.Log("повторно инициализируем метрики без паники")
	assert.NotPanics(t, func() { InitMetrics() })
	assert.NotPanics(t, func() { InitMetrics() })
}

func TestMetricsHandlerServesContent(t *testing.T) {
	IncStreamBatches()
	handler := Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "electric_ping_stream_batches_total")
}

func TestStartMetricsServerDisabledWithoutPort(t *testing.T) {
	assert.Nil(t, StartMetricsServer("", nil))
}

func TestHTTPMiddlewareRecordsMetrics(t *testing.T) {
	t.Log("Шаг 1: измеряем счётчики до вызова")
	route := "/test-route"
	beforeRequests := testutil.ToFloat64(HttpRequestsTotal.WithLabelValues(route, "400"))
	beforeErrors := testutil.ToFloat64(HttpRequestErrorsTotal)

	middleware := HTTPMiddleware(func(*http.Request) string { return route })
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	t.Log("Шаг 2: вызываем обработчик и проверяем прирост")
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, route, nil))

	assert.Equal(t, beforeRequests+1, testutil.ToFloat64(HttpRequestsTotal.WithLabelValues(route, "400")))
	assert.Equal(t, beforeErrors+1, testutil.ToFloat64(HttpRequestErrorsTotal))
}

func TestRecordDBInsertCountsFailures(t *testing.T) {
	before := testutil.ToFloat64(DbInsertFailuresTotal.WithLabelValues("ping"))

	RecordDBInsert("ping", 5*time.Millisecond, nil)
	RecordDBInsert("ping", -time.Second, errors.New("boom"))

	assert.Equal(t, before+1, testutil.ToFloat64(DbInsertFailuresTotal.WithLabelValues("ping")))
}

func TestObserverGauges(t *testing.T) {
	SetPendingWaiters(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(ObserverPendingWaiters))
	SetPendingWaiters(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(ObserverPendingWaiters))
}
