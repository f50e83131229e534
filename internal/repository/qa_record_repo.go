package repository

import (
	"context"
	"errors"

	"github.com/fyerfyer/pdf-qa/internal/database"
	"github.com/fyerfyer/pdf-qa/internal/models"
	"gorm.io/gorm"
)

// qaRecordRepo 问答记录仓储实现
type qaRecordRepo struct {
	db *gorm.DB
}

// NewQARecordRepository 使用全局数据库连接创建问答记录仓储
func NewQARecordRepository() QARecordRepository {
	return &qaRecordRepo{db: database.MustDB()}
}

// NewQARecordRepositoryWithDB 使用指定的数据库连接创建问答记录仓储
func NewQARecordRepositoryWithDB(db *gorm.DB) QARecordRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &qaRecordRepo{db: db}
}

// WithContext 创建带有上下文的仓储
func (r *qaRecordRepo) WithContext(ctx context.Context) QARecordRepository {
	return &qaRecordRepo{db: r.db.WithContext(ctx)}
}

// Create 保存一次问答
func (r *qaRecordRepo) Create(record *models.QARecord) error {
	if record.DocumentID == "" {
		return errors.New("document ID cannot be empty")
	}
	return r.db.Create(record).Error
}

// ListByDocument 按时间倒序列出问答记录
func (r *qaRecordRepo) ListByDocument(docID string, offset, limit int) ([]*models.QARecord, int64, error) {
	var records []*models.QARecord
	var total int64

	query := r.db.Model(&models.QARecord{}).Where("document_id = ?", docID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 20
	}
	err := query.Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// DeleteByDocument 删除文档的全部问答记录
func (r *qaRecordRepo) DeleteByDocument(docID string) error {
	return r.db.Where("document_id = ?", docID).Delete(&models.QARecord{}).Error
}
