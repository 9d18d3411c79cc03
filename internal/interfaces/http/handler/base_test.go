package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/polizalink/backend/internal/domain/shared"
	"github.com/polizalink/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name     string
		ctxValue string
		header   string
		expected string
	}{
		{name: "from context", ctxValue: "ctx-id", header: "header-id", expected: "ctx-id"},
		{name: "from header", header: "header-id", expected: "header-id"},
		{name: "missing", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.ctxValue != "" {
				c.Set(RequestIDKey, tt.ctxValue)
			}
			if tt.header != "" {
				c.Request.Header.Set("X-Request-ID", tt.header)
			}
			assert.Equal(t, tt.expected, getRequestID(c))
		})
	}
}

func TestBaseHandlerSuccess(t *testing.T) {
	h := &BaseHandler{}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h.SuccessWithTotal(c, []string{"autos"}, 1)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(1), resp.Meta.Total)
}

func TestBaseHandlerCreatedAndNoContent(t *testing.T) {
	h := &BaseHandler{}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	h.Created(c, gin.H{"policy_number": "P-1"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	h.NoContent(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestBaseHandlerHandleError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		expectStatus  int
		expectCode    string
		expectMessage string
	}{
		{
			name:          "not found",
			err:           shared.ErrNotFound,
			expectStatus:  http.StatusNotFound,
			expectCode:    dto.ErrCodeNotFound,
			expectMessage: "Resource not found",
		},
		{
			name:          "wrapped invalid input keeps detail",
			err:           fmt.Errorf("%w: unknown policy table", shared.ErrInvalidInput),
			expectStatus:  http.StatusBadRequest,
			expectCode:    dto.ErrCodeInvalidInput,
			expectMessage: "Invalid input provided: unknown policy table",
		},
		{
			name:          "upstream write hides cause",
			err:           shared.NewUpstreamWriteError("promote contacts", errors.New("pq: connection reset")),
			expectStatus:  http.StatusBadGateway,
			expectCode:    dto.ErrCodeUpstreamWrite,
			expectMessage: "Write to the record store failed",
		},
		{
			name:          "table fetch",
			err:           fmt.Errorf("failed to fetch: %w", shared.NewTableFetchError("autos", errors.New("timeout"))),
			expectStatus:  http.StatusBadGateway,
			expectCode:    dto.ErrCodeTableFetch,
			expectMessage: "Policy table could not be read",
		},
		{
			name:          "unknown",
			err:           errors.New("boom"),
			expectStatus:  http.StatusInternalServerError,
			expectCode:    dto.ErrCodeInternal,
			expectMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Set(RequestIDKey, "req-42")

			h.HandleError(c, tt.err)

			assert.Equal(t, tt.expectStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectCode, resp.Error.Code)
			assert.Equal(t, tt.expectMessage, resp.Error.Message)
			assert.Equal(t, "req-42", resp.Error.RequestID)
		})
	}
}

func TestBaseHandlerHandleError_Nil(t *testing.T) {
	h := &BaseHandler{}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h.HandleError(c, nil)

	assert.Empty(t, w.Body.String())
}
