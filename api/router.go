package api

import (
	"net/http"

	"github.com/fyerfyer/pdf-qa/api/handler"
	"github.com/fyerfyer/pdf-qa/api/middleware"
	"github.com/gin-gonic/gin"
)

// MaxUploadSize 上传文件的大小上限
const MaxUploadSize = 64 << 20

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(
	docHandler *handler.DocumentHandler,
	qaHandler *handler.QAHandler,
	pageHandler *handler.PageHandler,
) *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize

	// 追踪ID要先于日志和错误处理设置
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(Cors())

	// 在调试模式下记录请求体和响应体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
		router.Use(middleware.ResponseLogger())
	}

	api := router.Group("/api")
	{
		// 文档管理API
		docGroup := api.Group("/documents")
		{
			// 上传文档 - POST /api/documents
			docGroup.POST("", docHandler.UploadDocument)

			// 获取文档列表 - GET /api/documents
			docGroup.GET("", docHandler.ListDocuments)

			// 获取文档详情 - GET /api/documents/:id
			docGroup.GET("/:id", docHandler.GetDocument)

			// 获取文档状态 - GET /api/documents/:id/status
			docGroup.GET("/:id/status", docHandler.GetDocumentStatus)

			// 重新处理文档 - POST /api/documents/:id/process
			docGroup.POST("/:id/process", docHandler.ReprocessDocument)

			// 文本块 - GET /api/documents/:id/chunks?page=N
			docGroup.GET("/:id/chunks", docHandler.ListChunks)

			// 摘要 - GET /api/documents/:id/summary
			docGroup.GET("/:id/summary", docHandler.GetSummary)

			// 问答历史 - GET /api/documents/:id/history
			docGroup.GET("/:id/history", qaHandler.GetHistory)

			// 删除文档 - DELETE /api/documents/:id
			docGroup.DELETE("/:id", docHandler.DeleteDocument)
		}

		// 问答 - POST /api/qa
		api.POST("/qa", qaHandler.AnswerQuestion)

		// 页面图片 - GET /api/pages/image?path=
		api.GET("/pages/image", pageHandler.GetImage)

		// 健康检查API
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}

// Cors 跨域资源共享中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
