package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shakespeare-quote-api/internal/application/session"
	apperrors "shakespeare-quote-api/pkg/errors"
)

const sessionKeyPrefix = "session:"

// SessionStore 基于 Redis 的会话快照存储，带 TTL
type SessionStore struct {
	client *Client
	ttl    time.Duration
}

// NewSessionStore 创建 Redis 会话存储。ttl <= 0 表示不过期。
func NewSessionStore(client *Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

var _ session.Store = (*SessionStore)(nil)

// Save 序列化并写入会话快照
func (s *SessionStore) Save(ctx context.Context, snap *session.Snapshot) error {
	if snap == nil || strings.TrimSpace(snap.SessionID) == "" {
		return apperrors.ErrInvalidParam.WithDetail("snapshot session_id is empty")
	}

	ctx, span := tracer.Start(ctx, "session_store.Save",
		trace.WithAttributes(attribute.String("session.id", snap.SessionID)))
	defer span.End()

	data, err := json.Marshal(snap)
	if err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeCacheError, "failed to marshal session snapshot")
	}

	if err := s.client.rdb.Set(ctx, sessionKeyPrefix+snap.SessionID, data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeCacheError, "failed to save session snapshot")
	}
	return nil
}

// Load 读取并解析会话快照。键缺失或数据损坏返回 SessionLoadError。
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*session.Snapshot, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("session_id is empty")
	}

	ctx, span := tracer.Start(ctx, "session_store.Load",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	data, err := s.client.rdb.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err != nil {
		if !IsNil(err) {
			span.RecordError(err)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeSessionLoad, "session snapshot not found")
	}

	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeSessionLoad, "malformed session snapshot")
	}
	return &snap, nil
}
