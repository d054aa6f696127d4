package dto

import (
	"shakespeare-quote-api/internal/application/session"
)

// SessionStatsResponse 会话统计响应
type SessionStatsResponse struct {
	session.Stats
}

// SessionLoadRequest 会话加载请求
type SessionLoadRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// SessionMergeRequest 会话合并请求：把目标会话的使用状态并入当前会话
type SessionMergeRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// SessionResponse 会话通用响应
type SessionResponse struct {
	SessionID  string `json:"session_id"`
	UsageCount int    `json:"usage_count"`
}
