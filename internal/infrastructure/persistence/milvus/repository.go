package milvus

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "shakespeare-quote-api/pkg/errors"
)

// Repository 片段向量仓储
type Repository struct {
	client *Client
	dim    int
}

// NewRepository 创建片段向量仓储
func NewRepository(c *Client, dim int) *Repository {
	if dim <= 0 {
		dim = DefaultVectorDimension
	}
	return &Repository{client: c, dim: dim}
}

// fragmentHit 带距离的检索命中。距离已从余弦相似度换算（1 - score），升序为更相似。
type fragmentHit struct {
	Row      *fragmentRow
	Distance float32
}

// EnsureFragmentsCollection 确保 fragments 集合与索引可用（不存在则创建）。
// 约束：不会做 drop/rebuild 等破坏性操作。
func (r *Repository) EnsureFragmentsCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}

	exists, err := r.client.HasCollection(ctx, CollectionFragments)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.CreateCollection(ctx, FragmentsSchema(r.dim)); err != nil {
			return err
		}
		if err := r.CreateIndex(ctx, CollectionFragments); err != nil {
			return err
		}
	}

	return r.client.LoadCollection(ctx, CollectionFragments)
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	schema.CollectionName = r.client.CollectionName(schema.CollectionName)

	if err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := r.client.milvus.CreateIndex(ctx, r.client.CollectionName(collection), fieldVector, idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// InsertFragments 批量写入片段（按主键 upsert）。
// 批次原子：写入前先整批校验向量维度，任一行不符则整批拒绝。
func (r *Repository) InsertFragments(ctx context.Context, rows []*fragmentRow) error {
	ctx, span := tracer.Start(ctx, "milvus.InsertFragments",
		trace.WithAttributes(attribute.Int("count", len(rows))))
	defer span.End()

	if len(rows) == 0 {
		return nil
	}

	for i, row := range rows {
		if row.ID == "" {
			return apperrors.ErrStoreWrite.WithDetail(fmt.Sprintf("row %d has empty id", i))
		}
		if len(row.Vector) != r.dim {
			return apperrors.ErrStoreWrite.WithDetail(
				fmt.Sprintf("row %d (%s) has vector dimension %d, expected %d", i, row.ID, len(row.Vector), r.dim))
		}
	}

	ids := make([]string, len(rows))
	vectors := make([][]float32, len(rows))
	texts := make([]string, len(rows))
	playTitles := make([]string, len(rows))
	characters := make([]string, len(rows))
	characterTypes := make([]string, len(rows))
	acts := make([]int64, len(rows))
	scenes := make([]int64, len(rows))
	chunkTypes := make([]string, len(rows))
	contexts := make([]string, len(rows))
	formalityLevels := make([]string, len(rows))
	meters := make([]string, len(rows))
	emotionalTones := make([]string, len(rows))
	themes := make([]string, len(rows))

	for i, row := range rows {
		ids[i] = row.ID
		vectors[i] = row.Vector
		texts[i] = row.Text
		playTitles[i] = row.PlayTitle
		characters[i] = row.Character
		characterTypes[i] = row.CharacterType
		acts[i] = row.Act
		scenes[i] = row.Scene
		chunkTypes[i] = row.ChunkType
		contexts[i] = row.Context
		formalityLevels[i] = row.FormalityLevel
		meters[i] = row.Meter
		emotionalTones[i] = row.EmotionalTone
		themes[i] = row.Themes
	}

	collName := r.client.CollectionName(CollectionFragments)

	// Upsert 保证相同内容重复入库时幂等
	_, err := r.client.milvus.Upsert(ctx, collName, "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, r.dim, vectors),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnVarChar(fieldPlayTitle, playTitles),
		entity.NewColumnVarChar(fieldCharacter, characters),
		entity.NewColumnVarChar(fieldCharacterType, characterTypes),
		entity.NewColumnInt64(fieldAct, acts),
		entity.NewColumnInt64(fieldScene, scenes),
		entity.NewColumnVarChar(fieldChunkType, chunkTypes),
		entity.NewColumnVarChar(fieldContext, contexts),
		entity.NewColumnVarChar(fieldFormalityLevel, formalityLevels),
		entity.NewColumnVarChar(fieldMeter, meters),
		entity.NewColumnVarChar(fieldEmotionalTone, emotionalTones),
		entity.NewColumnVarChar(fieldThemes, themes),
	)
	if err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeStoreWrite, "failed to insert fragments")
	}
	return nil
}

// SearchFragments 向量检索，返回至多 limit 条按距离升序的命中。
// predicates 为标量字段的精确匹配，按字段名排序后构建过滤表达式，保证表达式确定性。
func (r *Repository) SearchFragments(ctx context.Context, vector []float32, limit int, predicates map[string]string) ([]*fragmentHit, error) {
	ctx, span := tracer.Start(ctx, "milvus.SearchFragments",
		trace.WithAttributes(
			attribute.Int("limit", limit),
			attribute.Int("predicates", len(predicates)),
		))
	defer span.End()

	if len(vector) != r.dim {
		return nil, apperrors.ErrStoreQuery.WithDetail(
			fmt.Sprintf("query vector dimension %d, expected %d", len(vector), r.dim))
	}

	expr := buildFilterExpr(predicates)

	sp, err := entity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeStoreQuery, "failed to create search param")
	}

	results, err := r.client.milvus.Search(ctx,
		r.client.CollectionName(CollectionFragments),
		nil,
		expr,
		fragmentOutputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		fieldVector,
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeStoreQuery, "failed to search fragments")
	}

	var hits []*fragmentHit
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			hits = append(hits, &fragmentHit{
				Row: rowAt(result.Fields, i),
				// COSINE 下 Milvus 返回相似度（越大越近），换算为距离
				Distance: 1 - result.Scores[i],
			})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })

	span.SetAttributes(attribute.Int("result_count", len(hits)))
	return hits, nil
}

// GetFragment 按 id 查询单个片段；未找到时返回 (nil, nil)
func (r *Repository) GetFragment(ctx context.Context, id string) (*fragmentRow, error) {
	ctx, span := tracer.Start(ctx, "milvus.GetFragment",
		trace.WithAttributes(attribute.String("id", id)))
	defer span.End()

	rs, err := r.client.milvus.Query(ctx,
		r.client.CollectionName(CollectionFragments),
		nil,
		fmt.Sprintf(`%s == "%s"`, fieldID, escapeValue(id)),
		fragmentOutputFields,
	)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeStoreQuery, "failed to query fragment")
	}

	idCol, ok := rs.GetColumn(fieldID).(*entity.ColumnVarChar)
	if !ok || idCol.Len() == 0 {
		return nil, nil
	}
	return rowAt(rs, 0), nil
}

// DeleteFragments 按 id 删除；未知 id 为 no-op
func (r *Repository) DeleteFragments(ctx context.Context, ids []string) error {
	ctx, span := tracer.Start(ctx, "milvus.DeleteFragments",
		trace.WithAttributes(attribute.Int("count", len(ids))))
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	// 避免依赖 IN 语法差异，用 OR 条件构建删除表达式
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(`%s == "%s"`, fieldID, escapeValue(id)))
	}
	if len(parts) == 0 {
		return nil
	}

	err := r.client.milvus.Delete(ctx,
		r.client.CollectionName(CollectionFragments), "", strings.Join(parts, " || "))
	if err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeStoreWrite, "failed to delete fragments")
	}
	return nil
}

// CountFragments 返回片段总数
func (r *Repository) CountFragments(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "milvus.CountFragments")
	defer span.End()

	stats, err := r.client.milvus.GetCollectionStatistics(ctx, r.client.CollectionName(CollectionFragments))
	if err != nil {
		span.RecordError(err)
		return 0, apperrors.Wrap(err, apperrors.CodeStoreQuery, "failed to get collection statistics")
	}

	raw, ok := stats["row_count"]
	if !ok {
		return 0, nil
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeStoreQuery, "invalid row_count in collection statistics")
	}
	return count, nil
}

// buildFilterExpr 由谓词集合构建确定性过滤表达式（按字段名升序）
func buildFilterExpr(predicates map[string]string) string {
	if len(predicates) == 0 {
		return ""
	}
	keys := make([]string, 0, len(predicates))
	for k := range predicates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s == "%s"`, k, escapeValue(predicates[k])))
	}
	return strings.Join(parts, " && ")
}

// escapeValue 过滤表达式值内的双引号在应用层已被拒绝，此处兜底剥除
func escapeValue(v string) string {
	return strings.ReplaceAll(v, `"`, "")
}

// rowAt 从结果集第 i 行提取片段
func rowAt(rs client.ResultSet, i int) *fragmentRow {
	return &fragmentRow{
		ID:             varCharAt(rs, fieldID, i),
		Text:           varCharAt(rs, fieldText, i),
		PlayTitle:      varCharAt(rs, fieldPlayTitle, i),
		Character:      varCharAt(rs, fieldCharacter, i),
		CharacterType:  varCharAt(rs, fieldCharacterType, i),
		Act:            int64At(rs, fieldAct, i),
		Scene:          int64At(rs, fieldScene, i),
		ChunkType:      varCharAt(rs, fieldChunkType, i),
		Context:        varCharAt(rs, fieldContext, i),
		FormalityLevel: varCharAt(rs, fieldFormalityLevel, i),
		Meter:          varCharAt(rs, fieldMeter, i),
		EmotionalTone:  varCharAt(rs, fieldEmotionalTone, i),
		Themes:         varCharAt(rs, fieldThemes, i),
	}
}

func varCharAt(rs client.ResultSet, name string, i int) string {
	if col, ok := rs.GetColumn(name).(*entity.ColumnVarChar); ok && i < col.Len() {
		return col.Data()[i]
	}
	return ""
}

func int64At(rs client.ResultSet, name string, i int) int64 {
	if col, ok := rs.GetColumn(name).(*entity.ColumnInt64); ok && i < col.Len() {
		return col.Data()[i]
	}
	return 0
}
