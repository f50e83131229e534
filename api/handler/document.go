package handler

import (
	"net/http"

	"github.com/fyerfyer/pdf-qa/api/middleware"
	"github.com/fyerfyer/pdf-qa/api/model"
	"github.com/fyerfyer/pdf-qa/internal/document"
	"github.com/fyerfyer/pdf-qa/internal/models"
	"github.com/fyerfyer/pdf-qa/internal/repository"
	"github.com/fyerfyer/pdf-qa/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DocumentHandler 处理文档相关的API请求
type DocumentHandler struct {
	documentService *services.DocumentService // 文档服务
	logger          *logrus.Logger            // 日志记录器
}

// NewDocumentHandler 创建新的文档处理器
func NewDocumentHandler(documentService *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		logger:          middleware.GetLogger(),
	}
}

// UploadDocument 处理文档上传请求
// POST /api/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	var req model.DocumentUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid document upload request")
		middleware.HandleError(c, middleware.NewValidationError("invalid request parameters", err.Error()))
		return
	}

	filename := req.File.Filename
	if !document.IsSupported(filename) {
		middleware.HandleError(c, middleware.NewValidationError(
			"unsupported file type, only .pdf, .md, .markdown and .txt are accepted"))
		return
	}

	file, err := req.File.Open()
	if err != nil {
		h.logger.WithError(err).WithField("filename", filename).Error("Failed to open uploaded file")
		middleware.HandleError(c, middleware.NewInternalError("failed to open uploaded file", err.Error()))
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	doc, err := h.documentService.Upload(ctx, file, filename, req.TagList())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	// 上传成功后安排处理，失败时保留记录以便重试
	status := models.DocStatusUploaded
	if err := h.documentService.Submit(ctx, doc.ID); err != nil {
		middleware.RequestLog(c).WithError(err).WithField(middleware.FieldDocID, doc.ID).Error("Failed to schedule document processing")
		middleware.HandleError(c, err)
		return
	}
	if current, err := h.documentService.GetDocument(ctx, doc.ID); err == nil {
		status = current.Status
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentUploadResponse{
		FileID:   doc.ID,
		FileName: filename,
		Status:   string(status),
	}))
}

// GetDocument 获取文档详情
// GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("document id is required"))
		return
	}

	doc, err := h.documentService.GetDocument(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ConvertToDocumentInfo(doc)))
}

// GetDocumentStatus 获取文档处理状态
// GET /api/documents/:id/status
func (h *DocumentHandler) GetDocumentStatus(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("document id is required"))
		return
	}

	doc, err := h.documentService.GetDocument(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ConvertToStatusResponse(doc)))
}

// ReprocessDocument 重新处理文档
// POST /api/documents/:id/process
func (h *DocumentHandler) ReprocessDocument(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("document id is required"))
		return
	}

	ctx := c.Request.Context()
	if err := h.documentService.Submit(ctx, req.ID); err != nil {
		middleware.HandleError(c, err)
		return
	}
	doc, err := h.documentService.GetDocument(ctx, req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ConvertToStatusResponse(doc)))
}

// ListDocuments 获取文档列表
// GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	var req model.DocumentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid query parameters", err.Error()))
		return
	}

	filter := repository.ListFilter{
		Status:   models.DocumentStatus(req.Status),
		FileName: req.FileName,
		Tag:      req.Tag,
	}
	docs, total, err := h.documentService.ListDocuments(c.Request.Context(), req.Offset(), req.GetPageSize(), filter)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	infos := make([]model.DocumentInfo, len(docs))
	for i, doc := range docs {
		infos[i] = model.ConvertToDocumentInfo(doc)
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentListResponse{
		Total:     total,
		Page:      req.GetPage(),
		PageSize:  req.GetPageSize(),
		Documents: infos,
	}))
}

// ListChunks 获取文档的文本块
// GET /api/documents/:id/chunks?page=N
func (h *DocumentHandler) ListChunks(c *gin.Context) {
	var uri model.DocumentIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("document id is required"))
		return
	}
	var req model.ChunkListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid page number", err.Error()))
		return
	}

	chunks, err := h.documentService.ListChunks(c.Request.Context(), uri.ID, req.Page)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ChunkListResponse{
		FileID: uri.ID,
		Total:  len(chunks),
		Chunks: model.ConvertToChunkInfo(chunks),
	}))
}

// GetSummary 获取或生成文档摘要
// GET /api/documents/:id/summary
func (h *DocumentHandler) GetSummary(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("document id is required"))
		return
	}

	summary, err := h.documentService.Summarize(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.SummaryResponse{
		FileID:  req.ID,
		Summary: summary,
	}))
}

// DeleteDocument 删除文档
// DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("document id is required"))
		return
	}

	if err := h.documentService.DeleteDocument(c.Request.Context(), req.ID); err != nil {
		middleware.HandleError(c, err)
		return
	}

	middleware.RequestLog(c).Info("Document deleted")
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentDeleteResponse{
		Success: true,
		FileID:  req.ID,
	}))
}
