package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMetrics_ExportedThroughPrometheus(t *testing.T) {
	meterProvider, handler, err := InitTelemetry("identity-service-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = meterProvider.Shutdown(context.Background()) })

	metrics, err := NewAuthMetrics()
	require.NoError(t, err)

	metrics.RecordAttempt(context.Background(), "password", OutcomeSuccess)
	metrics.RecordAttempt(context.Background(), "password", OutcomeFailure)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "attempts")
	assert.Contains(t, string(body), `outcome="failure"`)
}

func TestAuthMetrics_NilReceiver(t *testing.T) {
	var metrics *AuthMetrics
	assert.NotPanics(t, func() {
		metrics.RecordAttempt(context.Background(), "password", OutcomeSuccess)
	})
}

func TestPrometheusHandler_Uninitialized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/metrics", PrometheusHandler(nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "METRICS_UNAVAILABLE")
}

func TestInitLogger_TestEnvIsSilent(t *testing.T) {
	logger, err := InitLogger("test")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(0))
}
