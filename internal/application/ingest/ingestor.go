// Package ingest 提供片段入库流程：消费分块器产出的片段记录，
// 生成内容稳定 id，批量 embedding 后写入存储层。
package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shakespeare-quote-api/internal/application/quote"
	apperrors "shakespeare-quote-api/pkg/errors"
	"shakespeare-quote-api/pkg/metrics"
)

var tracer = otel.Tracer("quote.ingest")

const defaultEmbeddingBatch = 32

// ChunkRecord 分块器（外部协作方）产出的片段记录。
// chunk_id 缺省时按内容派生：相同 play+character+text 恒得同一 id。
type ChunkRecord struct {
	ChunkID        string   `json:"chunk_id,omitempty"`
	ChunkText      string   `json:"chunk_text"`
	PlayTitle      string   `json:"play_title,omitempty"`
	Character      string   `json:"character,omitempty"`
	CharacterType  string   `json:"character_type,omitempty"`
	Act            int64    `json:"act,omitempty"`
	Scene          int64    `json:"scene,omitempty"`
	ChunkType      string   `json:"chunk_type,omitempty"`
	Context        string   `json:"context,omitempty"`
	FormalityLevel string   `json:"formality_level,omitempty"`
	Meter          string   `json:"meter,omitempty"`
	EmotionalTones []string `json:"emotional_tone,omitempty"`
	Themes         []string `json:"themes,omitempty"`
}

// Ingestor 入库器
type Ingestor struct {
	store    quote.FragmentStore
	embedder quote.Embedder

	batchSize int
}

// NewIngestor 创建入库器
func NewIngestor(store quote.FragmentStore, embedder quote.Embedder, batchSize int) *Ingestor {
	if batchSize <= 0 {
		batchSize = defaultEmbeddingBatch
	}
	return &Ingestor{
		store:     store,
		embedder:  embedder,
		batchSize: batchSize,
	}
}

// Ingest 校验、embedding 并写入一批片段记录。
// 批次原子：任一记录非法时整批拒绝，不产生任何写入。
// 返回实际写入的片段数。
func (i *Ingestor) Ingest(ctx context.Context, records []*ChunkRecord) (int, error) {
	ctx, span := tracer.Start(ctx, "ingest.Ingest",
		trace.WithAttributes(attribute.Int("records", len(records))))
	defer span.End()

	if len(records) == 0 {
		return 0, nil
	}

	fragments := make([]*quote.Fragment, 0, len(records))
	for idx, rec := range records {
		if rec == nil {
			return 0, rejectBatch(span, fmt.Sprintf("record %d is nil", idx))
		}
		text := strings.TrimSpace(rec.ChunkText)
		if text == "" {
			return 0, rejectBatch(span, fmt.Sprintf("record %d has empty chunk_text", idx))
		}

		id := strings.TrimSpace(rec.ChunkID)
		if id == "" {
			id = ContentID(rec.PlayTitle, rec.Character, text)
		}

		fragments = append(fragments, &quote.Fragment{
			ID:   id,
			Text: text,
			Meta: quote.Metadata{
				PlayTitle:      strings.TrimSpace(rec.PlayTitle),
				Character:      strings.TrimSpace(rec.Character),
				CharacterType:  strings.TrimSpace(rec.CharacterType),
				Act:            rec.Act,
				Scene:          rec.Scene,
				ChunkType:      strings.TrimSpace(rec.ChunkType),
				Context:        strings.TrimSpace(rec.Context),
				FormalityLevel: strings.TrimSpace(rec.FormalityLevel),
				Meter:          strings.TrimSpace(rec.Meter),
				EmotionalTones: rec.EmotionalTones,
				Themes:         rec.Themes,
			},
		})
	}

	// 先算完整批 embedding，再一次性写入，保持批次原子。
	texts := make([]string, len(fragments))
	for idx, f := range fragments {
		texts[idx] = f.Text
	}
	vectors, err := i.embedBatch(ctx, texts)
	if err != nil {
		metrics.IngestFragmentsTotal.WithLabelValues("error").Add(float64(len(fragments)))
		return 0, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "failed to embed fragments")
	}
	if len(vectors) != len(fragments) {
		metrics.IngestFragmentsTotal.WithLabelValues("error").Add(float64(len(fragments)))
		return 0, apperrors.ErrEmbeddingFailed.WithDetail(
			fmt.Sprintf("embedder returned %d vectors for %d texts", len(vectors), len(fragments)))
	}
	for idx := range fragments {
		fragments[idx].Embedding = vectors[idx]
	}

	if err := i.store.Insert(ctx, fragments); err != nil {
		metrics.IngestFragmentsTotal.WithLabelValues("error").Add(float64(len(fragments)))
		return 0, err
	}

	metrics.IngestFragmentsTotal.WithLabelValues("ok").Add(float64(len(fragments)))
	span.SetAttributes(attribute.Int("inserted", len(fragments)))
	return len(fragments), nil
}

func (i *Ingestor) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var all [][]float32
	for start := 0; start < len(texts); start += i.batchSize {
		end := start + i.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := i.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vectors...)
	}
	return all, nil
}

// ContentID 由内容派生稳定片段 id
func ContentID(playTitle, character, text string) string {
	sum := md5.Sum([]byte(playTitle + ":" + character + ":" + text))
	return hex.EncodeToString(sum[:])
}

func rejectBatch(span trace.Span, detail string) error {
	err := apperrors.ErrIngestFailed.WithDetail(detail)
	span.RecordError(err)
	return err
}
