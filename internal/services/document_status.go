package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fyerfyer/pdf-qa/internal/models"
	"github.com/fyerfyer/pdf-qa/internal/repository"
	"github.com/sirupsen/logrus"
)

// 允许的状态转换，失败后可以重新处理，处理中允许任务重试时再次进入
var validTransitions = map[models.DocumentStatus][]models.DocumentStatus{
	models.DocStatusUploaded:   {models.DocStatusProcessing, models.DocStatusFailed},
	models.DocStatusProcessing: {models.DocStatusProcessing, models.DocStatusCompleted, models.DocStatusFailed},
	models.DocStatusCompleted:  {models.DocStatusProcessing},
	models.DocStatusFailed:     {models.DocStatusProcessing, models.DocStatusFailed},
}

// DocumentStatusManager 文档状态管理器
// 负责管理文档处理的生命周期状态
type DocumentStatusManager struct {
	repo   repository.DocumentRepository
	logger *logrus.Logger
	mu     sync.Mutex // 保证读取和状态转换的原子性
}

// NewDocumentStatusManager 创建文档状态管理器
func NewDocumentStatusManager(repo repository.DocumentRepository, logger *logrus.Logger) *DocumentStatusManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &DocumentStatusManager{
		repo:   repo,
		logger: logger,
	}
}

// MarkAsUploaded 创建已上传状态的文档记录
func (m *DocumentStatusManager) MarkAsUploaded(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if doc.FileType == "" {
		doc.FileType = getFileType(doc.FileName)
	}
	doc.Status = models.DocStatusUploaded
	doc.Progress = 0

	m.logger.WithFields(logrus.Fields{
		"doc_id":   doc.ID,
		"filename": doc.FileName,
	}).Info("Marking document as uploaded")

	return m.repo.WithContext(ctx).Create(doc)
}

// MarkAsProcessing 将文档标记为处理中，从提取阶段开始
func (m *DocumentStatusManager) MarkAsProcessing(ctx context.Context, docID string) error {
	if err := m.transition(ctx, docID, models.DocStatusProcessing, ""); err != nil {
		return err
	}
	return m.repo.WithContext(ctx).UpdateStage(docID, models.StageExtract)
}

// SetStage 记录当前处理阶段
func (m *DocumentStatusManager) SetStage(ctx context.Context, docID string, stage models.ProcessStage) error {
	m.logger.WithFields(logrus.Fields{
		"doc_id": docID,
		"stage":  stage,
	}).Debug("Document stage changed")
	return m.repo.WithContext(ctx).UpdateStage(docID, stage)
}

// MarkAsCompleted 写入处理结果并标记完成
func (m *DocumentStatusManager) MarkAsCompleted(ctx context.Context, docID string, result repository.ProcessResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.repo.WithContext(ctx).GetByID(docID)
	if err != nil {
		return err
	}
	if err := ValidateStateTransition(doc.Status, models.DocStatusCompleted); err != nil {
		return fmt.Errorf("document %s: %w", docID, err)
	}

	m.logger.WithFields(logrus.Fields{
		"doc_id":      docID,
		"page_count":  result.PageCount,
		"chunk_count": result.ChunkCount,
	}).Info("Marking document as completed")

	return m.repo.WithContext(ctx).SetResult(docID, result)
}

// MarkAsFailed 将文档标记为处理失败
func (m *DocumentStatusManager) MarkAsFailed(ctx context.Context, docID string, errorMsg string) error {
	m.logger.WithFields(logrus.Fields{
		"doc_id": docID,
		"error":  errorMsg,
	}).Error("Marking document as failed")
	return m.transition(ctx, docID, models.DocStatusFailed, errorMsg)
}

func (m *DocumentStatusManager) transition(ctx context.Context, docID string, to models.DocumentStatus, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo := m.repo.WithContext(ctx)
	doc, err := repo.GetByID(docID)
	if err != nil {
		return err
	}
	if err := ValidateStateTransition(doc.Status, to); err != nil {
		return fmt.Errorf("document %s: %w", docID, err)
	}
	return repo.UpdateStatus(docID, to, errorMsg)
}

// GetStatus 获取文档当前状态
func (m *DocumentStatusManager) GetStatus(ctx context.Context, docID string) (models.DocumentStatus, error) {
	doc, err := m.repo.WithContext(ctx).GetByID(docID)
	if err != nil {
		return "", err
	}
	return doc.Status, nil
}

// GetDocument 获取完整的文档对象
func (m *DocumentStatusManager) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	return m.repo.WithContext(ctx).GetByID(docID)
}

// ListDocuments 获取文档列表
func (m *DocumentStatusManager) ListDocuments(ctx context.Context, offset, limit int, filter repository.ListFilter) ([]*models.Document, int64, error) {
	return m.repo.WithContext(ctx).List(offset, limit, filter)
}

// DeleteDocument 删除文档记录
func (m *DocumentStatusManager) DeleteDocument(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithField("doc_id", docID).Info("Deleting document record")
	return m.repo.WithContext(ctx).Delete(docID)
}

// ValidateStateTransition 验证状态转换的有效性
func ValidateStateTransition(from, to models.DocumentStatus) error {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// getFileType 根据文件名获取小写扩展名
func getFileType(fileName string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
}
