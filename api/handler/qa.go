package handler

import (
	"net/http"
	"strings"

	"github.com/fyerfyer/pdf-qa/api/middleware"
	"github.com/fyerfyer/pdf-qa/api/model"
	"github.com/fyerfyer/pdf-qa/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// QAHandler 处理问答相关的API请求
type QAHandler struct {
	qaService *services.QAService // 问答服务
	logger    *logrus.Logger      // 日志记录器
}

// NewQAHandler 创建新的问答处理器
func NewQAHandler(qaService *services.QAService) *QAHandler {
	return &QAHandler{
		qaService: qaService,
		logger:    middleware.GetLogger(),
	}
}

// AnswerQuestion 处理问答请求
// POST /api/qa
func (h *QAHandler) AnswerQuestion(c *gin.Context) {
	var req model.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid question request")
		middleware.HandleError(c, middleware.NewValidationError("invalid request parameters", err.Error()))
		return
	}

	question := strings.TrimSpace(req.Question)
	middleware.RequestLog(c).WithFields(logrus.Fields{
		middleware.FieldDocID: req.FileID,
		"question":            question,
	}).Info("Question received")

	result, err := h.qaService.Ask(c.Request.Context(), req.FileID, question)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ConvertToQAResponse(question, result)))
}

// GetHistory 获取文档的问答历史
// GET /api/documents/:id/history
func (h *QAHandler) GetHistory(c *gin.Context) {
	var uri model.DocumentIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("document id is required"))
		return
	}
	var page model.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid query parameters", err.Error()))
		return
	}

	records, total, err := h.qaService.History(c.Request.Context(), uri.ID, page.Offset(), page.GetPageSize())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	items := make([]model.QAHistoryItem, len(records))
	for i, r := range records {
		items[i] = model.ConvertToHistoryItem(r)
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.QAHistoryResponse{
		FileID:   uri.ID,
		Total:    total,
		Page:     page.GetPage(),
		PageSize: page.GetPageSize(),
		Records:  items,
	}))
}
