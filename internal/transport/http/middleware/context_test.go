package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/novacrm/auth-service/internal/infra/logger"
)

func TestCorrelateKeepsSuppliedIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var fromContext string
	router := gin.New()
	router.Use(Correlate())
	router.GET("/", func(c *gin.Context) {
		fromContext = logger.RequestIDFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"trace": GetTraceID(c), "request": GetRequestID(c)})
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceIDHeader, "trace-abc")
	req.Header.Set(RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"trace":"trace-abc","request":"req-123"}`, rr.Body.String())
	assert.Equal(t, "trace-abc", rr.Header().Get(TraceIDHeader))
	assert.Equal(t, "req-123", rr.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", fromContext)
}

func TestCorrelateReplacesMissingOrOversizedIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(Correlate())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxCorrelationIDLen+1))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Len(t, rr.Header().Get(TraceIDHeader), 36)
	assert.Len(t, rr.Header().Get(RequestIDHeader), 36)
}

func TestTracingOverridesCorrelatedTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	var seen string
	router := gin.New()
	router.Use(Correlate(), Tracing(TracingOptions{TracerProvider: provider, Propagators: propagation.TraceContext{}}))
	router.GET("/", func(c *gin.Context) {
		seen = GetTraceID(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceIDHeader, "client-trace")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	want := spans[0].SpanContext().TraceID().String()
	assert.Equal(t, want, seen)
	assert.Equal(t, want, rr.Header().Get(TraceIDHeader))
}
