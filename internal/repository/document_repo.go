package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/pdf-qa/internal/database"
	"github.com/fyerfyer/pdf-qa/internal/document"
	"github.com/fyerfyer/pdf-qa/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// docRepository 文档仓储实现
type docRepository struct {
	db *gorm.DB // 数据库连接
}

// NewDocumentRepository 使用全局数据库连接创建文档仓储实例
func NewDocumentRepository() DocumentRepository {
	return &docRepository{db: database.MustDB()}
}

// NewDocumentRepositoryWithDB 使用指定的数据库连接创建文档仓储实例
func NewDocumentRepositoryWithDB(db *gorm.DB) DocumentRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &docRepository{db: db}
}

// WithContext 创建带有上下文的仓储
func (r *docRepository) WithContext(ctx context.Context) DocumentRepository {
	return &docRepository{db: r.db.WithContext(ctx)}
}

// Create 创建文档记录
func (r *docRepository) Create(doc *models.Document) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}
	return r.db.Create(doc).Error
}

// GetByID 根据ID获取文档
func (r *docRepository) GetByID(id string) (*models.Document, error) {
	var doc models.Document
	err := r.db.Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
		}
		return nil, err
	}
	return &doc, nil
}

// List 列出文档列表，按上传时间倒序
func (r *docRepository) List(offset, limit int, filter ListFilter) ([]*models.Document, int64, error) {
	var docs []*models.Document
	var total int64

	query := r.db.Model(&models.Document{})
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.FileName != "" {
		query = query.Where("file_name LIKE ?", "%"+filter.FileName+"%")
	}
	if filter.Tag != "" {
		// tags 以JSON数组保存，按带引号的元素匹配
		query = query.Where("tags LIKE ?", "%\""+filter.Tag+"\"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 10
	}
	err := query.Order("uploaded_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&docs).Error
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// UpdateStatus 更新文档状态
func (r *docRepository) UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %s", models.ErrInvalidDocumentStatus, status)
	}

	updates := map[string]interface{}{
		"status":     status,
		"error":      errorMsg,
		"updated_at": time.Now(),
	}
	switch status {
	case models.DocStatusProcessing:
		// 文本块即将被替换，旧摘要作废
		updates["summary"] = ""
	case models.DocStatusCompleted, models.DocStatusFailed:
		updates["processed_at"] = time.Now()
	}
	return r.update(id, updates)
}

// UpdateStage 更新处理阶段，进度随阶段推进
func (r *docRepository) UpdateStage(id string, stage models.ProcessStage) error {
	return r.update(id, map[string]interface{}{
		"stage":      stage,
		"progress":   stage.Progress(),
		"updated_at": time.Now(),
	})
}

// SetTaskID 记录关联的异步任务
func (r *docRepository) SetTaskID(id, taskID string) error {
	return r.update(id, map[string]interface{}{
		"current_task_id": taskID,
		"updated_at":      time.Now(),
	})
}

// SetResult 写入处理结果并标记完成
func (r *docRepository) SetResult(id string, result ProcessResult) error {
	ocrPages, err := json.Marshal(nonNilInts(result.OCRPages))
	if err != nil {
		return err
	}
	tables := result.Tables
	if tables == nil {
		tables = []document.Table{}
	}
	tablesJSON, err := json.Marshal(tables)
	if err != nil {
		return err
	}
	now := time.Now()
	return r.update(id, map[string]interface{}{
		"status":       models.DocStatusCompleted,
		"stage":        models.StageDone,
		"progress":     100,
		"page_count":   result.PageCount,
		"chunk_count":  result.ChunkCount,
		"ocr_pages":    datatypes.JSON(ocrPages),
		"tables":       datatypes.JSON(tablesJSON),
		"error":        "",
		"summary":      "",
		"processed_at": now,
		"updated_at":   now,
	})
}

// SetSummary 写入文档摘要
func (r *docRepository) SetSummary(id, summary string) error {
	return r.update(id, map[string]interface{}{
		"summary":    summary,
		"updated_at": time.Now(),
	})
}

// update 按ID更新字段，记录不存在时返回 ErrDocumentNotFound
func (r *docRepository) update(id string, updates map[string]interface{}) error {
	res := r.db.Model(&models.Document{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	return nil
}

// Delete 在事务中删除文档及其关联数据
func (r *docRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.DocumentChunk{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&models.PageImage{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
		}
		return nil
	})
}

// SaveChunks 替换文档的全部文本块
func (r *docRepository) SaveChunks(docID string, chunks []*models.DocumentChunk) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", docID).Delete(&models.DocumentChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		for _, c := range chunks {
			c.DocumentID = docID
		}
		return tx.CreateInBatches(chunks, 100).Error
	})
}

// ListChunks 按位置顺序获取文本块
func (r *docRepository) ListChunks(docID string) ([]*models.DocumentChunk, error) {
	var chunks []*models.DocumentChunk
	err := r.db.Where("document_id = ?", docID).
		Order("position ASC").
		Find(&chunks).Error
	return chunks, err
}

// ListChunksByPages 获取指定页的文本块
func (r *docRepository) ListChunksByPages(docID string, pages []int) ([]*models.DocumentChunk, error) {
	if len(pages) == 0 {
		return []*models.DocumentChunk{}, nil
	}
	var chunks []*models.DocumentChunk
	err := r.db.Where("document_id = ? AND page IN ?", docID, pages).
		Order("position ASC").
		Find(&chunks).Error
	return chunks, err
}

// SavePageImages 替换文档的全部页面图片
func (r *docRepository) SavePageImages(docID string, images []*models.PageImage) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", docID).Delete(&models.PageImage{}).Error; err != nil {
			return err
		}
		if len(images) == 0 {
			return nil
		}
		for _, img := range images {
			img.DocumentID = docID
		}
		return tx.CreateInBatches(images, 100).Error
	})
}

// ListPageImages 获取页面图片，按页码排序
func (r *docRepository) ListPageImages(docID string, pages []int) ([]*models.PageImage, error) {
	var images []*models.PageImage
	query := r.db.Where("document_id = ?", docID)
	if len(pages) > 0 {
		query = query.Where("page IN ?", pages)
	}
	err := query.Order("page ASC, id ASC").Find(&images).Error
	return images, err
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
