package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/maap-api/internal/middleware"
	"github.com/noah-isme/maap-api/internal/models"
	"github.com/noah-isme/maap-api/internal/service"
	"github.com/noah-isme/maap-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/maap-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/maap-api/pkg/middleware/requestid"
)

// TokenValidator turns a bearer token into claims.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// AuditWriter persists access audit entries.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// RouterDeps collects everything NewRouter mounts.
type RouterDeps struct {
	Logger          *zap.Logger
	Metrics         *service.MetricsService
	Tokens          TokenValidator
	Audit           AuditWriter
	APIPrefix       string
	AllowedOrigins  []string
	EnableDocs      bool
	EnableStats     bool
	EnableSnapshots bool
	ReadyChecks     map[string]Pinger

	CheckIns  *CheckInHandler
	Snapshots *SnapshotHandler
	Stats     *StatsHandler
}

// NewRouter builds the gin engine with the shared middleware chain. API routes live under APIPrefix;
// probes, metrics and docs stay at the root.
func NewRouter(deps RouterDeps) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(deps.AllowedOrigins))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}
	r.Use(middleware.WithResponseMeta())

	ops := NewMetricsHandler(deps.Metrics, deps.ReadyChecks)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)
	if deps.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authed := r.Group(deps.APIPrefix)
	authed.Use(middleware.JWT(deps.Tokens))
	managers := middleware.RequireRoles(models.RoleManager, models.RoleAdmin)

	if h := deps.CheckIns; h != nil {
		checkIns := authed.Group("/check-ins")
		checkIns.POST("/open", h.Open)
		checkIns.GET("/history", h.History)
		checkIns.GET("/:id", h.Get)
		checkIns.PUT("/:id/sides/:side", h.SaveSide)
		checkIns.GET("/:id/ready", h.Ready)
		checkIns.POST("/:id/finalize", managers, h.Finalize)
	}

	if h := deps.Snapshots; h != nil && deps.EnableSnapshots {
		snapshots := authed.Group("/snapshots")
		snapshots.POST("", managers, h.Create)
		snapshots.GET("/:id", middleware.Audit(deps.Audit, log, models.AuditActionSnapshotView, "change_snapshot"), h.Get)
		snapshots.POST("/:id/execute", managers, h.Execute)
		snapshots.POST("/:id/acknowledge", h.Acknowledge)

		authed.GET("/teammates/:id/snapshots",
			middleware.RBAC(string(models.RoleAdmin), string(models.RoleManager), middleware.SelfAccess),
			h.ListForTeammate,
		)
	}

	if h := deps.Stats; h != nil && deps.EnableStats {
		authed.GET("/stats", managers, h.Summary)
		authed.GET("/stats/system", middleware.RequireRoles(models.RoleAdmin), h.System)
	}

	return r
}
