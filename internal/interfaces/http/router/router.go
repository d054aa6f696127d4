// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shakespeare-quote-api/internal/config"
	"shakespeare-quote-api/internal/interfaces/http/handler"
	"shakespeare-quote-api/internal/interfaces/http/middleware"
)

// Handlers 路由所需的全部处理器
type Handlers struct {
	Health  *handler.HealthHandler
	Quote   *handler.QuoteHandler
	Session *handler.SessionHandler
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	cfg    *config.Config
}

// New 创建新的路由器
func New(cfg *config.Config, handlers Handlers) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine: engine,
		cfg:    cfg,
	}

	r.setupMiddleware()
	r.setupRoutes(handlers)

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

// setupRoutes 配置路由
func (r *Router) setupRoutes(handlers Handlers) {
	// 系统端点
	r.engine.GET("/health", handlers.Health.Health)
	r.engine.GET("/ready", handlers.Health.Ready)
	r.engine.GET("/live", handlers.Health.Live)

	// Prometheus 指标端点
	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/v1")
	RegisterV1Routes(v1, handlers.Quote, handlers.Session)
}
