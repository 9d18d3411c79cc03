package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer sets up a test tracer provider and returns the span recorder.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
	})

	return sr
}

func findSpan(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, span := range spans {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, attr := range span.Attributes() {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func newTracedRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(Tracing(TracingConfig{Enabled: true, ServiceName: "test-service"}))
	router.Use(handlers...)
	return router
}

func TestTracing_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(Tracing(TracingConfig{Enabled: false, ServiceName: "test-service"}))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}

func TestTracing_Enabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sr := setupTestTracer(t)

	router := newTracedRouter()
	router.GET("/contacts/:id/policies", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/contacts/abc/policies", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, findSpan(sr.Ended(), "GET /contacts/:id/policies"), "HTTP span not found")
}

func TestSpanEnricher(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("adds request ID from context and route params", func(t *testing.T) {
		sr := setupTestTracer(t)
		router := newTracedRouter(func(c *gin.Context) {
			c.Set("request_id", "req-ctx-1")
			c.Next()
		}, SpanEnricher())
		router.GET("/contacts/:id/policies", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/contacts/c-42/policies", nil))

		span := findSpan(sr.Ended(), "GET /contacts/:id/policies")
		require.NotNil(t, span)
		v, ok := spanAttr(span, "request_id")
		require.True(t, ok)
		assert.Equal(t, "req-ctx-1", v.AsString())
		v, ok = spanAttr(span, "http.route.param.id")
		require.True(t, ok)
		assert.Equal(t, "c-42", v.AsString())
	})

	t.Run("falls back to the header and truncates it", func(t *testing.T) {
		sr := setupTestTracer(t)
		router := newTracedRouter(SpanEnricher())
		router.GET("/test", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("a", MaxRequestIDLength+20))
		router.ServeHTTP(httptest.NewRecorder(), req)

		span := findSpan(sr.Ended(), "GET /test")
		require.NotNil(t, span)
		v, ok := spanAttr(span, "request_id")
		require.True(t, ok)
		assert.Len(t, v.AsString(), MaxRequestIDLength)
	})

	t.Run("no span in context", func(t *testing.T) {
		router := gin.New()
		router.Use(SpanEnricher())
		router.GET("/test", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestSpanErrorMarker(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name         string
		status       int
		expectCode   codes.Code
		expectStatus bool
	}{
		{name: "success", status: http.StatusOK, expectCode: codes.Unset, expectStatus: false},
		{name: "not found", status: http.StatusNotFound, expectCode: codes.Unset, expectStatus: true},
		{name: "bad request", status: http.StatusBadRequest, expectCode: codes.Unset, expectStatus: true},
		{name: "internal error", status: http.StatusInternalServerError, expectCode: codes.Error, expectStatus: true},
		{name: "bad gateway", status: http.StatusBadGateway, expectCode: codes.Error, expectStatus: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := setupTestTracer(t)
			router := newTracedRouter(SpanErrorMarker())
			router.GET("/test", func(c *gin.Context) {
				c.Status(tt.status)
			})

			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

			span := findSpan(sr.Ended(), "GET /test")
			require.NotNil(t, span)
			if tt.expectCode == codes.Error {
				assert.Equal(t, codes.Error, span.Status().Code)
			} else {
				assert.NotEqual(t, codes.Error, span.Status().Code)
			}
			if tt.expectStatus {
				v, ok := spanAttr(span, "http.status_code")
				require.True(t, ok)
				assert.Equal(t, int64(tt.status), v.AsInt64())
			}
		})
	}
}
