package api

import (
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xiaowoniu928/hetzner-web/internal/api/middleware"
	v1 "github.com/xiaowoniu928/hetzner-web/internal/api/v1"
	"github.com/xiaowoniu928/hetzner-web/internal/repository"
	"github.com/xiaowoniu928/hetzner-web/internal/service"
	"github.com/xiaowoniu928/hetzner-web/internal/sse"
	systemlog "github.com/xiaowoniu928/hetzner-web/pkg/logger"
	"github.com/xiaowoniu928/hetzner-web/templates"
)

// Deps carries everything the HTTP surface needs. main assembles it
// once; handler packages never reach for globals.
type Deps struct {
	Settings repository.SettingsRepository
	Reports  *service.ReportService
	Cloud    service.CloudAPI
	Rebuilds service.Rebuilder
	DNS      *service.DNSService
	Hub      *sse.SSEHub
	LogStore *systemlog.LogStore
	Logger   *zap.Logger
}

// RegisterRoutes wires the full router: the embedded dashboard at /,
// unauthenticated liveness and Prometheus endpoints, and the JSON API
// under /api behind dashboard basic auth.
func RegisterRoutes(router *gin.Engine, deps Deps) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registerDashboard(router, logger)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := router.Group("/api")
	apiGroup.Use(middleware.BasicAuth(deps.Settings, logger))

	v1.RegisterReportRoutes(apiGroup, deps.Reports)
	v1.RegisterRebuildRoutes(apiGroup, deps.Cloud, deps.Rebuilds)
	v1.RegisterDNSRoutes(apiGroup, deps.DNS)
	v1.RegisterLogsRoutes(apiGroup, deps.LogStore)
	v1.RegisterSSERoutes(apiGroup, deps.Hub)
}

// registerDashboard serves the embedded single-page dashboard. The
// page itself is public; every document it fetches sits behind the
// /api basic-auth gate.
func registerDashboard(router *gin.Engine, logger *zap.Logger) {
	staticFS, err := fs.Sub(templates.StaticFS, "static")
	if err != nil {
		logger.Error("dashboard assets unavailable", zap.Error(err))
		return
	}

	index, err := fs.ReadFile(staticFS, "index.html")
	if err != nil {
		logger.Error("dashboard index unavailable", zap.Error(err))
		return
	}

	router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", index)
	})
	router.StaticFS("/static", http.FS(staticFS))
}
