package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping() error {
	return p.err
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	h := NewSystemHandler("polizalink", "1.2.0", stubPinger{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/system/info", nil)

	h.GetSystemInfo(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "polizalink", data["name"])
	assert.Equal(t, "1.2.0", data["version"])
	assert.NotEmpty(t, data["go_version"])
	assert.NotEmpty(t, data["uptime"])
}

func TestSystemHandler_Health(t *testing.T) {
	tests := []struct {
		name         string
		pingErr      error
		expectStatus int
		expectHealth string
		expectDB     string
	}{
		{name: "healthy", expectStatus: http.StatusOK, expectHealth: "healthy", expectDB: "ok"},
		{name: "database down", pingErr: errors.New("connection refused"), expectStatus: http.StatusServiceUnavailable, expectHealth: "unhealthy", expectDB: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSystemHandler("polizalink", "dev", stubPinger{err: tt.pingErr})

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

			h.Health(c)

			assert.Equal(t, tt.expectStatus, w.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectHealth, resp.Status)
			assert.Equal(t, tt.expectDB, resp.Database)
		})
	}
}

func TestSystemHandler_Ping(t *testing.T) {
	h := NewSystemHandler("polizalink", "dev", stubPinger{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/system/ping", nil)

	h.Ping(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pong", data["message"])
}

func TestSystemHandler_GetStats(t *testing.T) {
	h := NewSystemHandler("polizalink", "dev", stubPinger{}).
		WithStats("cache", func() (any, error) {
			return map[string]int64{"hits": 4, "misses": 1}, nil
		}).
		WithStats("database", func() (any, error) {
			return nil, errors.New("sql: database is closed")
		})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/system/stats", nil)

	h.GetStats(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)

	cacheStats, ok := data["cache"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(4), cacheStats["hits"])

	dbStats, ok := data["database"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sql: database is closed", dbStats["error"])
}
