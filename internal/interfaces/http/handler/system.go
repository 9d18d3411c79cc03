package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/polizalink/backend/internal/infrastructure/logger"
	"github.com/polizalink/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Pinger checks that a backing store is reachable
type Pinger interface {
	Ping() error
}

// StatsFunc returns a JSON encodable snapshot of a component's counters
type StatsFunc func() (any, error)

// SystemHandler handles health and system information endpoints
type SystemHandler struct {
	BaseHandler
	name       string
	version    string
	database   Pinger
	startTime  time.Time
	components []string
	stats      map[string]StatsFunc
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(name, version string, database Pinger) *SystemHandler {
	return &SystemHandler{
		name:      name,
		version:   version,
		database:  database,
		startTime: time.Now(),
		stats:     make(map[string]StatsFunc),
	}
}

// WithStats exposes the counters of component on GET /system/stats
func (h *SystemHandler) WithStats(component string, fn StatsFunc) *SystemHandler {
	if _, ok := h.stats[component]; !ok {
		h.components = append(h.components, component)
	}
	h.stats[component] = fn
	return h
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Time     string `json:"time"`
	Database string `json:"database"`
}

// GetSystemInfo returns the service name, version and uptime
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Health reports 503 when the record store cannot be reached
func (h *SystemHandler) Health(c *gin.Context) {
	now := time.Now().Format(time.RFC3339)
	if err := h.database.Ping(); err != nil {
		logger.FromContext(c.Request.Context()).Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Time: now, Database: "error"})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Time: now, Database: "ok"})
}

// GetStats returns the counters of every registered component. A failing
// component reports its error in place of its counters.
func (h *SystemHandler) GetStats(c *gin.Context) {
	out := make(map[string]any, len(h.components))
	for _, name := range h.components {
		snapshot, err := h.stats[name]()
		if err != nil {
			out[name] = gin.H{"error": err.Error()}
			continue
		}
		out[name] = snapshot
	}
	h.Success(c, out)
}

// Ping answers with pong
func (h *SystemHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{
		"message":   "pong",
		"timestamp": time.Now().Format(time.RFC3339),
	}))
}
