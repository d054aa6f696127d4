// Package embedding 提供 Embedding 服务客户端
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shakespeare-quote-api/internal/application/quote"
	"shakespeare-quote-api/internal/config"
	apperrors "shakespeare-quote-api/pkg/errors"
	"shakespeare-quote-api/pkg/metrics"
)

type Client struct {
	endpoint   string
	model      string
	dimension  int
	batchSize  int
	httpClient *http.Client
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	TokensUsed int         `json:"tokens_used"`
}

var _ quote.Embedder = (*Client)(nil)

func NewClient(cfg *config.EmbeddingConfig) *Client {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	model := cfg.Model
	if model == "" {
		model = "all-MiniLM-L6-v2"
	}
	return &Client{
		endpoint:  cfg.Endpoint,
		model:     model,
		dimension: cfg.Dimension,
		batchSize: batchSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Model 返回 embedding 模型名
func (c *Client) Model() string {
	return c.model
}

// EmbedQuery 对单条查询文本生成向量。空串同样送入模型，不做拒绝。
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, apperrors.ErrEmbeddingFailed.WithDetail(
			fmt.Sprintf("expected 1 vector, got %d", len(vectors)))
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成向量，按配置的批大小分批请求
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	defer func() {
		metrics.EmbeddingDuration.Observe(time.Since(start).Seconds())
	}()

	var all [][]float32
	for i := 0; i < len(texts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := c.doBatchEmbed(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Embeddings...)
	}

	if len(all) != len(texts) {
		return nil, apperrors.ErrEmbeddingFailed.WithDetail(
			fmt.Sprintf("expected %d vectors, got %d", len(texts), len(all)))
	}
	for i, vec := range all {
		if c.dimension > 0 && len(vec) != c.dimension {
			return nil, apperrors.ErrEmbeddingFailed.WithDetail(
				fmt.Sprintf("vector %d has dimension %d, expected %d", i, len(vec), c.dimension))
		}
	}
	return all, nil
}

func (c *Client) doBatchEmbed(ctx context.Context, texts []string) (*embedResponse, error) {
	reqBody, err := json.Marshal(&embedRequest{
		Texts: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	endpoint := strings.TrimRight(c.endpoint, "/")
	if endpoint == "" {
		return nil, apperrors.ErrEmbeddingFailed.WithDetail("embedding endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding endpoint: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/embed"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "embedding request failed")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, apperrors.ErrEmbeddingFailed.WithDetail(
			fmt.Sprintf("embedding request failed: status=%d", httpResp.StatusCode))
	}

	var resp embedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "failed to decode embed response")
	}
	return &resp, nil
}
