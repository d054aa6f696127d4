package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "shakespeare-quote-api/pkg/errors"
)

// FileStore 基于 JSON 文件的会话存储，每个会话一个文件。
type FileStore struct {
	dir string
}

// NewFileStore 创建文件会话存储
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Save 写入 <dir>/<session_id>.json，目录不存在时创建
func (s *FileStore) Save(_ context.Context, snap *Snapshot) error {
	if snap == nil || strings.TrimSpace(snap.SessionID) == "" {
		return apperrors.ErrInvalidParam.WithDetail("snapshot session_id is empty")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	path := s.path(snap.SessionID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session file %s: %w", path, err)
	}
	return nil
}

// Load 读取并解析会话文件。文件缺失或格式损坏返回 SessionLoadError，
// 调用方的内存状态不受影响。
func (s *FileStore) Load(_ context.Context, sessionID string) (*Snapshot, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("session_id is empty")
	}

	path := s.path(sessionID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeSessionLoad,
			fmt.Sprintf("failed to read session file %s", path))
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeSessionLoad,
			fmt.Sprintf("malformed session file %s", path))
	}
	return &snap, nil
}

func (s *FileStore) path(sessionID string) string {
	// 会话 id 进入文件名，拒绝路径分隔符
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(sessionID)
	return filepath.Join(s.dir, safe+".json")
}
