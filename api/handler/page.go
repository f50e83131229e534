package handler

import (
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/fyerfyer/pdf-qa/api/middleware"
	"github.com/fyerfyer/pdf-qa/api/model"
	"github.com/fyerfyer/pdf-qa/pkg/storage"
	"github.com/gin-gonic/gin"
)

// PageHandler 提供页面图片下载
type PageHandler struct {
	fileStorage storage.Storage
}

// NewPageHandler 创建页面图片处理器
func NewPageHandler(fileStorage storage.Storage) *PageHandler {
	return &PageHandler{fileStorage: fileStorage}
}

// GetImage 输出页面图片内容
// GET /api/pages/image?path=images/<doc>/<file>
func (h *PageHandler) GetImage(c *gin.Context) {
	var req model.PageImageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("image path is required"))
		return
	}

	// 只允许访问页面图片目录
	clean := path.Clean(req.Path)
	if !strings.HasPrefix(clean, storage.PageImageRoot+"/") {
		middleware.RequestLog(c).WithField("image_path", req.Path).Warn("Rejected page image path")
		middleware.HandleError(c, middleware.NewForbiddenError("path is not a page image"))
		return
	}

	rc, err := h.fileStorage.Open(clean)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(clean))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}
