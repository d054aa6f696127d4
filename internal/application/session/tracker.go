// Package session 提供会话级已用片段追踪，防止同一场景内重复引文。
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "shakespeare-quote-api/pkg/errors"
	"shakespeare-quote-api/pkg/logger"
	"shakespeare-quote-api/pkg/metrics"
)

// UsageRecord 单条使用记录。append-only，同一 id 重复标记时保留多条。
type UsageRecord struct {
	ChunkID   string            `json:"chunk_id"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Tracker 进程内会话状态。
// 不变量：usedIDs 恒等于 history 中出现过的去重 id 集合。
// set 与 history 的读写共用一把锁，并发 mark/read 下不变量不被破坏。
type Tracker struct {
	mu      sync.Mutex
	id      string
	usedIDs map[string]struct{}
	history []UsageRecord

	now func() time.Time
}

// NewTracker 创建会话追踪器。id 为空时按时间生成默认会话 id。
func NewTracker(id string) *Tracker {
	t := &Tracker{
		usedIDs: make(map[string]struct{}),
		now:     time.Now,
	}
	if id == "" {
		id = t.now().Format("20060102_150405")
	}
	t.id = id
	return t
}

// ID 返回会话 id
func (t *Tracker) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

// MarkUsed 标记片段已使用。对集合幂等，对历史非幂等：
// 每次调用都追加一条带时间戳的记录。
func (t *Tracker) MarkUsed(chunkID string, meta map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.usedIDs[chunkID] = struct{}{}
	t.history = append(t.history, UsageRecord{
		ChunkID:   chunkID,
		Timestamp: t.now(),
		Metadata:  meta,
	})
	metrics.SessionMarkUsedTotal.Inc()
}

// IsUsed 检查片段是否已在本会话中使用
func (t *Tracker) IsUsed(chunkID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.usedIDs[chunkID]
	return ok
}

// ExclusionSet 返回已用 id 集合的快照。调用方可自由改动返回值，
// 不影响追踪器内部状态。
func (t *Tracker) ExclusionSet() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]struct{}, len(t.usedIDs))
	for id := range t.usedIDs {
		out[id] = struct{}{}
	}
	return out
}

// UsageCount 返回已用片段的去重数量
func (t *Tracker) UsageCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.usedIDs)
}

// History 返回使用历史的快照
func (t *Tracker) History() []UsageRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]UsageRecord, len(t.history))
	copy(out, t.history)
	return out
}

// Reset 原子清空已用集合与使用历史。每个新场景开始时调用，
// 上一场景用过的片段在新场景重新可用。会话 id 保持不变。
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.usedIDs = make(map[string]struct{})
	t.history = nil
	metrics.SessionResetTotal.Inc()
}

// Merge 合并另一会话：已用集合取并集，历史直接拼接（self 在前），
// 不按时间戳重排，重复 id 的历史条目保留不折叠。
func (t *Tracker) Merge(other *Tracker) {
	if other == nil || other == t {
		return
	}
	otherSnap := other.Snapshot()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range otherSnap.UsedChunkIDs {
		t.usedIDs[id] = struct{}{}
	}
	t.history = append(t.history, otherSnap.UsageHistory...)
}

// Snapshot 导出可持久化的会话快照
func (t *Tracker) Snapshot() *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.usedIDs))
	for id := range t.usedIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids) // 序列化稳定

	history := make([]UsageRecord, len(t.history))
	copy(history, t.history)

	return &Snapshot{
		SessionID:    t.id,
		UsedChunkIDs: ids,
		UsageHistory: history,
		UsageCount:   len(ids),
	}
}

// Restore 用快照整体替换当前状态（非合并）。
// 快照缺少 session_id 时回退到当前会话 id。
func (t *Tracker) Restore(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return apperrors.ErrSessionLoad.WithDetail("snapshot is nil")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if snap.SessionID != "" {
		t.id = snap.SessionID
	} else {
		logger.Warn(ctx, "session snapshot missing session_id, keeping current id",
			"session_id", t.id)
	}

	used := make(map[string]struct{}, len(snap.UsedChunkIDs))
	for _, id := range snap.UsedChunkIDs {
		if id != "" {
			used[id] = struct{}{}
		}
	}
	// 保障不变量：历史中出现的 id 一定在集合中，
	// 旧版本快照可能只带历史不带集合。
	for _, rec := range snap.UsageHistory {
		if rec.ChunkID != "" {
			used[rec.ChunkID] = struct{}{}
		}
	}

	t.usedIDs = used
	t.history = make([]UsageRecord, len(snap.UsageHistory))
	copy(t.history, snap.UsageHistory)
	return nil
}

// Persist 将当前状态写入指定存储
func (t *Tracker) Persist(ctx context.Context, store Store) error {
	return store.Save(ctx, t.Snapshot())
}

// LoadFrom 从指定存储加载并整体替换当前状态。
// 加载失败时内存状态保持不变。
func (t *Tracker) LoadFrom(ctx context.Context, store Store, sessionID string) error {
	snap, err := store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	return t.Restore(ctx, snap)
}

// Stats 会话统计信息
type Stats struct {
	SessionID       string `json:"session_id"`
	TotalChunksUsed int    `json:"total_chunks_used"`
	UsageEvents     int    `json:"usage_events"`
	StartTime       string `json:"start_time,omitempty"`
	LastUsage       string `json:"last_usage,omitempty"`
}

// Statistics 返回会话统计
func (t *Tracker) Statistics() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		SessionID:       t.id,
		TotalChunksUsed: len(t.usedIDs),
		UsageEvents:     len(t.history),
	}
	if len(t.history) > 0 {
		s.StartTime = t.history[0].Timestamp.Format(time.RFC3339)
		s.LastUsage = t.history[len(t.history)-1].Timestamp.Format(time.RFC3339)
	}
	return s
}
