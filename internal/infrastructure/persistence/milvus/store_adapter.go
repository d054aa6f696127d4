package milvus

import (
	"context"

	"shakespeare-quote-api/internal/application/quote"
)

// FragmentStoreAdapter 将向量仓储适配为应用层 FragmentStore port
type FragmentStoreAdapter struct {
	repo *Repository
}

// NewFragmentStoreAdapter 创建 FragmentStore 适配器
func NewFragmentStoreAdapter(repo *Repository) *FragmentStoreAdapter {
	return &FragmentStoreAdapter{repo: repo}
}

var _ quote.FragmentStore = (*FragmentStoreAdapter)(nil)

// Insert 批量写入片段
func (a *FragmentStoreAdapter) Insert(ctx context.Context, fragments []*quote.Fragment) error {
	rows := make([]*fragmentRow, len(fragments))
	for i, f := range fragments {
		rows[i] = rowFromFragment(f)
	}
	return a.repo.InsertFragments(ctx, rows)
}

// Query 向量检索，返回按距离升序的候选
func (a *FragmentStoreAdapter) Query(ctx context.Context, vector []float32, limit int, predicates map[string]string) ([]*quote.Candidate, error) {
	hits, err := a.repo.SearchFragments(ctx, vector, limit, predicates)
	if err != nil {
		return nil, err
	}
	candidates := make([]*quote.Candidate, len(hits))
	for i, hit := range hits {
		candidates[i] = &quote.Candidate{
			Fragment: fragmentFromRow(hit.Row),
			Distance: float64(hit.Distance),
		}
	}
	return candidates, nil
}

// Get 按 id 查询单个片段；未找到时返回 (nil, nil)
func (a *FragmentStoreAdapter) Get(ctx context.Context, id string) (*quote.Fragment, error) {
	row, err := a.repo.GetFragment(ctx, id)
	if err != nil || row == nil {
		return nil, err
	}
	return fragmentFromRow(row), nil
}

// Delete 按 id 删除片段
func (a *FragmentStoreAdapter) Delete(ctx context.Context, ids []string) error {
	return a.repo.DeleteFragments(ctx, ids)
}

// Count 返回片段总数
func (a *FragmentStoreAdapter) Count(ctx context.Context) (int64, error) {
	return a.repo.CountFragments(ctx)
}
