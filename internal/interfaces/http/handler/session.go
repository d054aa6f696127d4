package handler

import (
	"github.com/gin-gonic/gin"

	"shakespeare-quote-api/internal/application/session"
	"shakespeare-quote-api/internal/interfaces/http/dto"
	"shakespeare-quote-api/pkg/logger"
)

// SessionHandler 会话管理处理器
type SessionHandler struct {
	tracker *session.Tracker
	store   session.Store
}

// NewSessionHandler 创建会话管理处理器
func NewSessionHandler(tracker *session.Tracker, store session.Store) *SessionHandler {
	return &SessionHandler{
		tracker: tracker,
		store:   store,
	}
}

// Stats 会话统计
// @Summary 会话统计
// @Tags Session
// @Produce json
// @Success 200 {object} dto.Response[session.Stats]
// @Router /v1/session/stats [get]
func (h *SessionHandler) Stats(c *gin.Context) {
	dto.Success(c, h.tracker.Statistics())
}

// Reset 重置会话：清空使用记录，会话 id 保持不变
// @Summary 重置会话
// @Tags Session
// @Produce json
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Router /v1/session/reset [post]
func (h *SessionHandler) Reset(c *gin.Context) {
	h.tracker.Reset()
	logger.Info(c.Request.Context(), "session reset", "session_id", h.tracker.ID())

	dto.Success(c, dto.SessionResponse{
		SessionID:  h.tracker.ID(),
		UsageCount: h.tracker.UsageCount(),
	})
}

// Save 持久化当前会话快照
// @Summary 保存会话
// @Tags Session
// @Produce json
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/session/save [post]
func (h *SessionHandler) Save(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.tracker.Persist(ctx, h.store); err != nil {
		logger.Error(ctx, "failed to save session", err, "session_id", h.tracker.ID())
		dto.AppError(c, err)
		return
	}

	dto.Success(c, dto.SessionResponse{
		SessionID:  h.tracker.ID(),
		UsageCount: h.tracker.UsageCount(),
	})
}

// Load 从存储加载会话快照并替换当前状态。
// 加载失败时当前内存状态保持不变。
// @Summary 加载会话
// @Tags Session
// @Accept json
// @Produce json
// @Param body body dto.SessionLoadRequest true "加载请求"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 422 {object} dto.ErrorResponse
// @Router /v1/session/load [post]
func (h *SessionHandler) Load(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SessionLoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.tracker.LoadFrom(ctx, h.store, req.SessionID); err != nil {
		logger.Error(ctx, "failed to load session", err, "session_id", req.SessionID)
		dto.AppError(c, err)
		return
	}

	dto.Success(c, dto.SessionResponse{
		SessionID:  h.tracker.ID(),
		UsageCount: h.tracker.UsageCount(),
	})
}

// Merge 把存储中另一会话的使用状态并入当前会话。
// 排除集取并集，使用历史顺序拼接。
// @Summary 合并会话
// @Tags Session
// @Accept json
// @Produce json
// @Param body body dto.SessionMergeRequest true "合并请求"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 422 {object} dto.ErrorResponse
// @Router /v1/session/merge [post]
func (h *SessionHandler) Merge(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SessionMergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	snap, err := h.store.Load(ctx, req.SessionID)
	if err != nil {
		logger.Error(ctx, "failed to load session for merge", err, "session_id", req.SessionID)
		dto.AppError(c, err)
		return
	}

	other := session.NewTracker(req.SessionID)
	if err := other.Restore(ctx, snap); err != nil {
		dto.AppError(c, err)
		return
	}
	h.tracker.Merge(other)

	dto.Success(c, dto.SessionResponse{
		SessionID:  h.tracker.ID(),
		UsageCount: h.tracker.UsageCount(),
	})
}
