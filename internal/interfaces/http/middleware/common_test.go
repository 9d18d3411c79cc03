package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(cfg CORSConfig) *gin.Engine {
		router := gin.New()
		router.Use(CORS(cfg))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
		return router
	}

	tests := []struct {
		name         string
		origins      []string
		origin       string
		method       string
		expectStatus int
		expectHeader string
	}{
		{name: "no origins configured", origins: nil, origin: "https://app.example.com", method: http.MethodGet, expectStatus: http.StatusOK, expectHeader: ""},
		{name: "allowed origin", origins: []string{"https://app.example.com"}, origin: "https://app.example.com", method: http.MethodGet, expectStatus: http.StatusOK, expectHeader: "https://app.example.com"},
		{name: "other origin", origins: []string{"https://app.example.com"}, origin: "https://evil.example.com", method: http.MethodGet, expectStatus: http.StatusOK, expectHeader: ""},
		{name: "wildcard", origins: []string{"*"}, origin: "https://any.example.com", method: http.MethodGet, expectStatus: http.StatusOK, expectHeader: "*"},
		{name: "preflight", origins: []string{"https://app.example.com"}, origin: "https://app.example.com", method: http.MethodOptions, expectStatus: http.StatusNoContent, expectHeader: "https://app.example.com"},
		{name: "preflight from unknown origin", origins: []string{"https://app.example.com"}, origin: "https://evil.example.com", method: http.MethodOptions, expectStatus: http.StatusNoContent, expectHeader: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCORSConfig()
			cfg.AllowOrigins = tt.origins

			req := httptest.NewRequest(tt.method, "/test", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			newRouter(cfg).ServeHTTP(w, req)

			assert.Equal(t, tt.expectStatus, w.Code)
			assert.Equal(t, tt.expectHeader, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestSecure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Secure())
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
}

func TestTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("sets a deadline on the request context", func(t *testing.T) {
		router := gin.New()
		router.Use(Timeout(50 * time.Millisecond))
		var hasDeadline bool
		router.GET("/test", func(c *gin.Context) {
			_, hasDeadline = c.Request.Context().Deadline()
			c.Status(http.StatusOK)
		})

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.True(t, hasDeadline)
	})

	t.Run("zero timeout leaves the context alone", func(t *testing.T) {
		router := gin.New()
		router.Use(Timeout(0))
		var hasDeadline bool
		router.GET("/test", func(c *gin.Context) {
			_, hasDeadline = c.Request.Context().Deadline()
			c.Status(http.StatusOK)
		})

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.False(t, hasDeadline)
	})
}
