package dto

import (
	"shakespeare-quote-api/internal/application/ingest"
	"shakespeare-quote-api/internal/application/quote"
)

// SearchRequest 引文检索请求。multi-valued 过滤器按"任一匹配"语义生效。
type SearchRequest struct {
	SemanticQuery   string   `json:"semantic_query"`
	CharacterType   []string `json:"character_type,omitempty"`
	EmotionalTone   []string `json:"emotional_tone,omitempty"`
	Themes          []string `json:"themes,omitempty"`
	ContextType     string   `json:"context_type,omitempty"`
	ChunkType       string   `json:"chunk_type,omitempty"`
	FormalityLevel  string   `json:"formality_level,omitempty"`
	PlayTitle       string   `json:"play_title,omitempty"`
	ExcludeChunkIDs []string `json:"exclude_chunk_ids,omitempty"`
	MaxResults      int      `json:"max_results,omitempty"`
}

// ToRetrieveRequest 转换为应用层检索请求
func (r *SearchRequest) ToRetrieveRequest() quote.RetrieveRequest {
	return quote.RetrieveRequest{
		SemanticQuery: r.SemanticQuery,
		Filters: quote.FilterSpec{
			PlayTitle:      r.PlayTitle,
			ContextType:    r.ContextType,
			ChunkType:      r.ChunkType,
			FormalityLevel: r.FormalityLevel,
			EmotionalTones: r.EmotionalTone,
			Themes:         r.Themes,
			CharacterTypes: r.CharacterType,
		},
		ExcludeIDs: r.ExcludeChunkIDs,
		MaxResults: r.MaxResults,
	}
}

// QuoteResult 单条检索结果
type QuoteResult struct {
	ChunkID   string         `json:"chunk_id"`
	ChunkText string         `json:"chunk_text"`
	Metadata  quote.Metadata `json:"metadata"`
	Distance  float64        `json:"distance"`
}

// SearchResponse 检索响应
type SearchResponse struct {
	Results []QuoteResult `json:"results"`
	Total   int           `json:"total"`
}

// ToSearchResponse 转换检索结果
func ToSearchResponse(results []*quote.Result) SearchResponse {
	out := make([]QuoteResult, len(results))
	for i, r := range results {
		out[i] = QuoteResult{
			ChunkID:   r.ID,
			ChunkText: r.Text,
			Metadata:  r.Metadata,
			Distance:  r.Distance,
		}
	}
	return SearchResponse{Results: out, Total: len(out)}
}

// FragmentResponse 单个片段详情
type FragmentResponse struct {
	ChunkID   string         `json:"chunk_id"`
	ChunkText string         `json:"chunk_text"`
	Metadata  quote.Metadata `json:"metadata"`
}

// ToFragmentResponse 转换片段详情
func ToFragmentResponse(f *quote.Fragment) FragmentResponse {
	return FragmentResponse{
		ChunkID:   f.ID,
		ChunkText: f.Text,
		Metadata:  f.Meta,
	}
}

// IngestRequest 片段入库请求
type IngestRequest struct {
	Fragments []*ingest.ChunkRecord `json:"fragments" binding:"required"`
}

// IngestResponse 入库响应
type IngestResponse struct {
	Ingested int `json:"ingested"`
}

// DeleteRequest 片段删除请求
type DeleteRequest struct {
	ChunkIDs []string `json:"chunk_ids" binding:"required"`
}

// CountResponse 片段计数响应
type CountResponse struct {
	Count int64 `json:"count"`
}
