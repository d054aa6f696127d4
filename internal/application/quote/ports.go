package quote

import "context"

// FragmentStore 定义应用层对"向量存储/检索"的最小依赖（port）。
// 由基础设施层提供具体实现（例如 Milvus）。
type FragmentStore interface {
	// Insert 批量写入片段，按 id upsert。批次原子：任一片段缺少 embedding
	// 或维度不符时整批失败，不产生部分写入。
	Insert(ctx context.Context, fragments []*Fragment) error

	// Query 返回至多 limit 条按距离升序排列的候选。
	// predicates 为标量字段的精确匹配谓词；距离度量在索引创建时固定。
	// 同距离候选的先后顺序由存储层决定，调用方不得依赖。
	Query(ctx context.Context, vector []float32, limit int, predicates map[string]string) ([]*Candidate, error)

	// Get 按 id 查询单个片段；未找到时返回 (nil, nil)。
	Get(ctx context.Context, id string) (*Fragment, error)

	// Delete 按 id 删除；未知 id 为 no-op。
	Delete(ctx context.Context, ids []string) error

	// Count 返回片段总数。
	Count(ctx context.Context) (int64, error)
}

// Embedder 定义对 embedding 服务的最小依赖：文本到定长向量的不透明函数。
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// SessionTracker 定义引擎对会话状态的非拥有型依赖：
// 读取排除集，以及在 commit 变体中追加使用记录。
// 引擎从不自行构造会话，由调用方注入。
type SessionTracker interface {
	ExclusionSet() map[string]struct{}
	MarkUsed(id string, meta map[string]string)
}
