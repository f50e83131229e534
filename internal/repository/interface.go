package repository

import (
	"context"

	"github.com/fyerfyer/pdf-qa/internal/document"
	"github.com/fyerfyer/pdf-qa/internal/models"
)

// ListFilter 文档列表筛选条件
type ListFilter struct {
	Status   models.DocumentStatus // 按状态筛选
	FileName string                // 文件名模糊匹配
	Tag      string                // 包含指定标签
}

// ProcessResult 文档处理完成后写回的统计信息
type ProcessResult struct {
	PageCount  int
	ChunkCount int
	OCRPages   []int
	Tables     []document.Table
}

// DocumentRepository 文档仓储接口
// 负责文档元数据、文本块和页面图片的存储和检索
type DocumentRepository interface {
	// Create 创建文档记录
	Create(doc *models.Document) error

	// GetByID 根据ID获取文档，不存在时返回 models.ErrDocumentNotFound
	GetByID(id string) (*models.Document, error)

	// List 列出文档列表，支持分页和筛选
	List(offset, limit int, filter ListFilter) ([]*models.Document, int64, error)

	// UpdateStatus 更新文档状态，errorMsg 为空时清空错误信息
	UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error

	// UpdateStage 更新处理阶段和进度
	UpdateStage(id string, stage models.ProcessStage) error

	// SetTaskID 记录关联的异步任务
	SetTaskID(id, taskID string) error

	// SetResult 写入处理结果并标记完成
	SetResult(id string, result ProcessResult) error

	// SetSummary 写入文档摘要
	SetSummary(id, summary string) error

	// Delete 删除文档及其文本块、页面图片
	Delete(id string) error

	// SaveChunks 替换文档的全部文本块
	SaveChunks(docID string, chunks []*models.DocumentChunk) error

	// ListChunks 按位置顺序获取文本块
	ListChunks(docID string) ([]*models.DocumentChunk, error)

	// ListChunksByPages 获取指定页的文本块
	ListChunksByPages(docID string, pages []int) ([]*models.DocumentChunk, error)

	// SavePageImages 替换文档的全部页面图片
	SavePageImages(docID string, images []*models.PageImage) error

	// ListPageImages 获取页面图片，pages 为空时返回全部
	ListPageImages(docID string, pages []int) ([]*models.PageImage, error)

	// WithContext 创建带有上下文的仓储
	WithContext(ctx context.Context) DocumentRepository
}

// QARecordRepository 问答记录仓储接口
type QARecordRepository interface {
	// Create 保存一次问答
	Create(record *models.QARecord) error

	// ListByDocument 按时间倒序列出文档的问答记录
	ListByDocument(docID string, offset, limit int) ([]*models.QARecord, int64, error)

	// DeleteByDocument 删除文档的全部问答记录
	DeleteByDocument(docID string) error

	// WithContext 创建带有上下文的仓储
	WithContext(ctx context.Context) QARecordRepository
}
