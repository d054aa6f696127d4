package session

import "context"

// Snapshot 会话持久化格式。时间戳序列化为 RFC3339（ISO-8601）。
type Snapshot struct {
	SessionID    string        `json:"session_id"`
	UsedChunkIDs []string      `json:"used_chunk_ids"`
	UsageHistory []UsageRecord `json:"usage_history"`
	UsageCount   int           `json:"usage_count"`
}

// Store 定义会话快照的持久化目标（port）。
// 文件实现在本包，Redis 实现由基础设施层提供。
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
}
