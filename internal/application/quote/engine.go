package quote

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "shakespeare-quote-api/pkg/errors"
	"shakespeare-quote-api/pkg/metrics"
)

var engineTracer = otel.Tracer("quote.engine")

const (
	defaultOverfetchMultiplier = 3
	defaultMaxResults          = 5
	defaultMaxResultsLimit     = 50
)

// Options 引擎可调参数
type Options struct {
	// OverfetchMultiplier 过采样倍数 K：向存储层请求 result_cap * K 条候选，
	// 补偿被排除集与客户端过滤淘汰的行。过小在排除集较大时填不满结果，
	// 过大浪费存储层工作量。
	OverfetchMultiplier int
	// DefaultMaxResults result_cap 缺省值
	DefaultMaxResults int
	// MaxResultsLimit result_cap 上限
	MaxResultsLimit int
}

func (o Options) withDefaults() Options {
	if o.OverfetchMultiplier <= 0 {
		o.OverfetchMultiplier = defaultOverfetchMultiplier
	}
	if o.DefaultMaxResults <= 0 {
		o.DefaultMaxResults = defaultMaxResults
	}
	if o.MaxResultsLimit <= 0 {
		o.MaxResultsLimit = defaultMaxResultsLimit
	}
	return o
}

// Engine 检索引擎。除注入的会话外无内部状态，单个会话由单个编排循环
// 同步驱动，引擎本身不加锁。
type Engine struct {
	store    FragmentStore
	embedder Embedder
	session  SessionTracker

	opts Options
}

// NewEngine 创建检索引擎。session 由调用方注入，引擎不自行构造。
func NewEngine(store FragmentStore, embedder Embedder, session SessionTracker, opts Options) *Engine {
	return &Engine{
		store:    store,
		embedder: embedder,
		session:  session,
		opts:     opts.withDefaults(),
	}
}

// Retrieve 执行一次检索，不改动会话状态。
//
// 流程：标量过滤器下推 -> 过采样查询存储层 -> 排除集合并 ->
// 客户端多值过滤 -> 截断到 result_cap。距离升序即最终排序，
// 不做语义与元数据的混合重排。
func (e *Engine) Retrieve(ctx context.Context, req RetrieveRequest) ([]*Result, error) {
	return e.retrieve(ctx, req, false)
}

// RetrieveAndCommit 检索并把所有返回的片段标记为本会话已使用，
// 供编排循环作为工具调用使用：同一会话的后续调用自动排除这些片段。
func (e *Engine) RetrieveAndCommit(ctx context.Context, req RetrieveRequest) ([]*Result, error) {
	return e.retrieve(ctx, req, true)
}

func (e *Engine) retrieve(ctx context.Context, req RetrieveRequest, commit bool) ([]*Result, error) {
	operation := "retrieve"
	if commit {
		operation = "retrieve_and_commit"
	}
	start := time.Now()

	ctx, span := engineTracer.Start(ctx, "engine.Retrieve",
		trace.WithAttributes(
			attribute.String("operation", operation),
			attribute.Int("max_results", req.MaxResults),
		))
	defer span.End()

	results, err := e.doRetrieve(ctx, req, commit)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	metrics.RetrievalRequestsTotal.WithLabelValues(operation, status).Inc()
	metrics.RetrievalDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	return results, err
}

func (e *Engine) doRetrieve(ctx context.Context, req RetrieveRequest, commit bool) ([]*Result, error) {
	filters := req.Filters.normalized()
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	limit := req.MaxResults
	if limit <= 0 {
		limit = e.opts.DefaultMaxResults
	}
	if limit > e.opts.MaxResultsLimit {
		limit = e.opts.MaxResultsLimit
	}

	// 空查询不拒绝：按原样 embedding，行为确定。
	query := strings.TrimSpace(req.SemanticQuery)
	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "failed to embed query")
	}

	overFetch := limit * e.opts.OverfetchMultiplier
	candidates, err := e.store.Query(ctx, vector, overFetch, filters.storePredicates())
	if err != nil {
		return nil, err
	}
	metrics.RetrievalCandidates.Observe(float64(len(candidates)))

	excluded := e.exclusionSet(req.ExcludeIDs)

	// 按存储层返回的距离升序遍历；被排除或未通过客户端过滤的直接丢弃。
	// 存储层对同距离候选的先后无稳定保证，最后按 (distance, id) 补一次
	// 稳定排序，保证跨调用可复现。
	results := make([]*Result, 0, limit)
	for _, cand := range candidates {
		if cand == nil || cand.Fragment == nil {
			continue
		}
		if _, ok := excluded[cand.Fragment.ID]; ok {
			continue
		}
		if !filters.matchesPostFilters(cand.Fragment.Meta) {
			continue
		}
		results = append(results, &Result{
			ID:       cand.Fragment.ID,
			Text:     cand.Fragment.Text,
			Metadata: cand.Fragment.Meta,
			Distance: cand.Distance,
		})
		if len(results) == limit {
			break
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	if commit {
		for _, r := range results {
			e.session.MarkUsed(r.ID, map[string]string{
				"query":      query,
				"chunk_text": r.Text,
			})
		}
	}

	metrics.RetrievalResults.Observe(float64(len(results)))
	return results, nil
}

// exclusionSet 合并会话排除集与调用方额外给出的排除 id
func (e *Engine) exclusionSet(extra []string) map[string]struct{} {
	excluded := e.session.ExclusionSet()
	if excluded == nil {
		excluded = make(map[string]struct{}, len(extra))
	}
	for _, id := range extra {
		id = strings.TrimSpace(id)
		if id != "" {
			excluded[id] = struct{}{}
		}
	}
	return excluded
}
