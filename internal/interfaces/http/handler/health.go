package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"shakespeare-quote-api/internal/infrastructure/persistence/milvus"
	"shakespeare-quote-api/internal/infrastructure/persistence/redis"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	milvus *milvus.Client
	redis  *redis.Client
}

// NewHealthHandler 创建健康检查处理器。redis 可为 nil（缓存未启用）。
func NewHealthHandler(milvusClient *milvus.Client, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{
		milvus: milvusClient,
		redis:  redisClient,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Health 健康检查接口
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
	})
}

// Ready 就绪检查接口
// @Summary 就绪检查
// @Description 检查服务是否可以接收流量
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]*readinessCheck{
		"milvus": {Status: "unknown"},
		"redis":  {Status: "disabled"},
	}

	ready := true

	// Milvus（必需）
	if h == nil || h.milvus == nil {
		checks["milvus"].Status = "missing"
		checks["milvus"].Error = "milvus client not configured"
		ready = false
	} else {
		start := time.Now()
		err := h.milvus.HealthCheck(ctx)
		checks["milvus"].LatencyMs = time.Since(start).Milliseconds()
		if err != nil {
			checks["milvus"].Status = "error"
			checks["milvus"].Error = err.Error()
			ready = false
		} else {
			checks["milvus"].Status = "ok"
		}
	}

	// Redis（可选，故障只降级不影响就绪态）
	if h != nil && h.redis != nil {
		checks["redis"] = &readinessCheck{Status: "unknown"}
		start := time.Now()
		err := h.redis.HealthCheck(ctx)
		checks["redis"].LatencyMs = time.Since(start).Milliseconds()
		if err != nil {
			checks["redis"].Status = "degraded"
			checks["redis"].Error = err.Error()
		} else {
			checks["redis"].Status = "ok"
		}
	}

	resp := readinessResponse{
		Status: "ok",
		Checks: checks,
	}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
	})
}
