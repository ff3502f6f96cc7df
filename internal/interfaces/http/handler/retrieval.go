// Package handler 提供 HTTP 请求处理器
package handler

import (
	stderrors "errors"
	"time"

	"github.com/gin-gonic/gin"

	"dragons-codex/internal/application/retrieval"
	"dragons-codex/internal/domain/entity"
	"dragons-codex/internal/interfaces/http/dto"
	"dragons-codex/pkg/errors"
	"dragons-codex/pkg/logger"
)

// RetrievalHandler 检索处理器
type RetrievalHandler struct {
	engine    *retrieval.Engine
	assembler *retrieval.Assembler
}

// NewRetrievalHandler 创建检索处理器
func NewRetrievalHandler(engine *retrieval.Engine, assembler *retrieval.Assembler) *RetrievalHandler {
	return &RetrievalHandler{
		engine:    engine,
		assembler: assembler,
	}
}

// Search 剧透安全检索
// @Summary 检索语料块
// @Description 在书籍与维基两个集合中做语义检索，按 max_book 过滤剧透
// @Tags Retrieval
// @Accept json
// @Produce json
// @Param body body dto.SearchRequest true "检索请求"
// @Success 200 {object} dto.Response[dto.SearchResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/retrieval/search [post]
func (h *RetrievalHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !validBoundary(req.MaxBook) {
		dto.BadRequest(c, "max_book out of range")
		return
	}

	start := time.Now()
	out, err := h.engine.Search(c.Request.Context(), retrieval.SearchInput{
		Query:            req.Query,
		MaxBook:          req.MaxBook,
		TopK:             req.TopK,
		ScoreThreshold:   req.ScoreThreshold,
		IncludeEmbedding: req.IncludeEmbedding,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	dto.Success(c, dto.NewSearchResponse(out, time.Since(start).Milliseconds()))
}

// Context 检索并装配上下文
// @Summary 装配检索上下文
// @Description 检索后按来源谱系重排并在预算内拼装为单段文本
// @Tags Retrieval
// @Accept json
// @Produce json
// @Param body body dto.ContextRequest true "上下文请求"
// @Success 200 {object} dto.Response[dto.ContextResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/retrieval/context [post]
func (h *RetrievalHandler) Context(c *gin.Context) {
	var req dto.ContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !validBoundary(req.MaxBook) {
		dto.BadRequest(c, "max_book out of range")
		return
	}

	start := time.Now()
	out, err := h.engine.Search(c.Request.Context(), retrieval.SearchInput{
		Query:          req.Query,
		MaxBook:        req.MaxBook,
		TopK:           req.TopK,
		ScoreThreshold: req.ScoreThreshold,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	assembler := h.assembler
	if req.Budget > 0 {
		assembler = retrieval.NewAssembler(req.Budget)
	}
	result := assembler.Assemble(out.Results, "")

	dto.Success(c, &dto.ContextResponse{
		Text:       result.Text,
		ChunkIDs:   result.ChunkIDs,
		Truncated:  result.Truncated,
		Degraded:   result.Degraded,
		DurationMs: time.Since(start).Milliseconds(),
	})
}

func (h *RetrievalHandler) writeError(c *gin.Context, err error) {
	var appErr *errors.AppError
	switch {
	case stderrors.Is(err, retrieval.ErrEmptyQuery):
		appErr = errors.Wrap(err, errors.CodeInvalidParam, "query is empty")
	case stderrors.Is(err, retrieval.ErrVectorDisabled):
		appErr = errors.Wrap(err, errors.CodeServiceUnavailable, "vector retrieval is disabled")
	case errors.IsAppError(err):
		appErr = errors.AsAppError(err)
		logger.Error(c.Request.Context(), "retrieval failed", err,
			"path", c.Request.URL.Path)
	default:
		appErr = errors.Wrap(err, errors.CodeRetrievalFailed, "retrieval failed")
		logger.Error(c.Request.Context(), "retrieval failed", err,
			"path", c.Request.URL.Path)
	}
	dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, &dto.ErrorDetail{
		ErrorCode: string(appErr.Code),
	})
}

// validBoundary 校验剧透边界取值
func validBoundary(maxBook *int) bool {
	if maxBook == nil {
		return true
	}
	return *maxBook >= 0 && *maxBook <= entity.MaxBookNumber
}
