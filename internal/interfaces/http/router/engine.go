package router

import (
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/polizalink/backend/internal/infrastructure/logger"
	"github.com/polizalink/backend/internal/interfaces/http/handler"
	"github.com/polizalink/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// EngineConfig holds the settings of the middleware stack
type EngineConfig struct {
	Logger         *zap.Logger
	Meter          metric.Meter // nil disables HTTP metrics
	Tracing        middleware.TracingConfig
	CORS           middleware.CORSConfig
	TrustedProxies []string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

// NewEngine returns a gin engine with the middleware stack applied in order:
// recovery, tracing, request logging, span enrichment, metrics, security
// headers, CORS, body limit, request timeout.
func NewEngine(cfg EngineConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = middleware.DefaultMaxBodyBytes
	}

	engine.Use(
		logger.Recovery(log),
		middleware.Tracing(cfg.Tracing),
		logger.GinMiddleware(log),
		middleware.SpanEnricher(),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(cfg.Meter, log),
		middleware.Secure(),
		middleware.CORS(cfg.CORS),
		middleware.BodyLimit(maxBody),
		middleware.Timeout(cfg.RequestTimeout),
	)
	return engine
}

// LinkageRoutes maps the linkage endpoints. writeGuards run before every
// handler that writes contacts or policy records.
func LinkageRoutes(h *handler.LinkageHandler, writeGuards ...gin.HandlerFunc) *DomainGroup {
	guarded := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		return append(slices.Clone(writeGuards), fn)
	}

	g := NewDomainGroup("linkage", "")

	g.GET("/relationships", h.GetRelationships)

	contacts := g.Group("contacts", "/contacts")
	contacts.GET("/policy-tables", h.GetContactTables)
	contacts.GET("/:id/policies", h.GetContactPolicies)
	contacts.POST("/promotions", guarded(h.PromoteContacts)...)

	tables := g.Group("policy-tables", "/policy-tables")
	tables.GET("", h.ListPolicyTables)
	tables.POST("/:table/records", guarded(h.CreatePolicyRecord)...)
	tables.PUT("/:table/records/:number", guarded(h.UpdatePolicyRecord)...)
	tables.DELETE("/:table/records/:number", guarded(h.DeletePolicyRecord)...)

	return g
}

// SystemRoutes maps the versioned system endpoints
func SystemRoutes(h *handler.SystemHandler) *DomainGroup {
	g := NewDomainGroup("system", "/system")
	g.GET("/info", h.GetSystemInfo)
	g.GET("/ping", h.Ping)
	g.GET("/stats", h.GetStats)
	return g
}

// Mount registers /health on the engine and every API group under /api/v1
func Mount(engine *gin.Engine, linkage *handler.LinkageHandler, system *handler.SystemHandler, writeGuards ...gin.HandlerFunc) {
	engine.GET("/health", system.Health)

	NewRouter(engine, WithAPIVersion("v1")).
		Register(LinkageRoutes(linkage, writeGuards...)).
		Register(SystemRoutes(system)).
		Setup()
}
