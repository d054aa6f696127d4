// Package handler 提供 HTTP 请求处理器
package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"shakespeare-quote-api/internal/application/ingest"
	"shakespeare-quote-api/internal/application/quote"
	"shakespeare-quote-api/internal/interfaces/http/dto"
	"shakespeare-quote-api/pkg/logger"
)

// QuoteHandler 引文检索处理器
type QuoteHandler struct {
	engine   *quote.Engine
	store    quote.FragmentStore
	ingestor *ingest.Ingestor
}

// NewQuoteHandler 创建引文检索处理器
func NewQuoteHandler(engine *quote.Engine, store quote.FragmentStore, ingestor *ingest.Ingestor) *QuoteHandler {
	return &QuoteHandler{
		engine:   engine,
		store:    store,
		ingestor: ingestor,
	}
}

// Search 检索引文（只读，不标记使用）
// @Summary 检索引文
// @Description 语义检索引文片段，不改变会话状态
// @Tags Quotes
// @Accept json
// @Produce json
// @Param body body dto.SearchRequest true "检索请求"
// @Success 200 {object} dto.Response[dto.SearchResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/quotes/search [post]
func (h *QuoteHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	results, err := h.engine.Retrieve(ctx, req.ToRetrieveRequest())
	if err != nil {
		logger.Error(ctx, "quote search failed", err)
		dto.AppError(c, err)
		return
	}

	dto.Success(c, dto.ToSearchResponse(results))
}

// Select 检索并提交引文（结果计入会话排除集）
// @Summary 检索并选用引文
// @Description 语义检索引文片段，返回的片段在本会话内不再重复出现
// @Tags Quotes
// @Accept json
// @Produce json
// @Param body body dto.SearchRequest true "检索请求"
// @Success 200 {object} dto.Response[dto.SearchResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/quotes/select [post]
func (h *QuoteHandler) Select(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	results, err := h.engine.RetrieveAndCommit(ctx, req.ToRetrieveRequest())
	if err != nil {
		logger.Error(ctx, "quote select failed", err)
		dto.AppError(c, err)
		return
	}

	dto.Success(c, dto.ToSearchResponse(results))
}

// Get 获取片段详情
// @Summary 获取片段详情
// @Tags Quotes
// @Produce json
// @Param id path string true "片段 ID"
// @Success 200 {object} dto.Response[dto.FragmentResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/fragments/{id} [get]
func (h *QuoteHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		dto.BadRequest(c, "fragment id is required")
		return
	}

	fragment, err := h.store.Get(ctx, id)
	if err != nil {
		logger.Error(ctx, "failed to get fragment", err, "id", id)
		dto.AppError(c, err)
		return
	}
	if fragment == nil {
		dto.NotFound(c, "fragment not found")
		return
	}

	dto.Success(c, dto.ToFragmentResponse(fragment))
}

// Ingest 批量入库片段
// @Summary 批量入库片段
// @Description 校验、embedding 并写入一批片段，批次原子
// @Tags Quotes
// @Accept json
// @Produce json
// @Param body body dto.IngestRequest true "入库请求"
// @Success 201 {object} dto.Response[dto.IngestResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /v1/fragments [post]
func (h *QuoteHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	count, err := h.ingestor.Ingest(ctx, req.Fragments)
	if err != nil {
		logger.Error(ctx, "fragment ingest failed", err, "records", len(req.Fragments))
		dto.AppError(c, err)
		return
	}

	dto.Created(c, dto.IngestResponse{Ingested: count})
}

// Delete 按 id 删除片段
// @Summary 删除片段
// @Tags Quotes
// @Accept json
// @Success 204
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/fragments [delete]
func (h *QuoteHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.store.Delete(ctx, req.ChunkIDs); err != nil {
		logger.Error(ctx, "fragment delete failed", err)
		dto.AppError(c, err)
		return
	}

	dto.NoContent(c)
}

// Count 返回片段总数
// @Summary 片段计数
// @Tags Quotes
// @Produce json
// @Success 200 {object} dto.Response[dto.CountResponse]
// @Router /v1/quotes/count [get]
func (h *QuoteHandler) Count(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.store.Count(ctx)
	if err != nil {
		logger.Error(ctx, "fragment count failed", err)
		dto.AppError(c, err)
		return
	}

	dto.Success(c, dto.CountResponse{Count: count})
}
