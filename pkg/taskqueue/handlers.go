package taskqueue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// DocumentProcessor 执行文档处理流程的组件
type DocumentProcessor interface {
	// ProcessDocument 同步处理文档，返回页数和文本块数
	ProcessDocument(ctx context.Context, documentID, filePath string) (pageCount, chunkCount int, err error)
}

// DocumentHandler 处理 document:process 任务
type DocumentHandler struct {
	processor DocumentProcessor
	logger    *logrus.Logger
}

// NewDocumentHandler 创建文档处理任务的处理器
func NewDocumentHandler(processor DocumentProcessor, logger *logrus.Logger) *DocumentHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &DocumentHandler{processor: processor, logger: logger}
}

// ProcessTask 解析载荷并调用文档处理流程
func (h *DocumentHandler) ProcessTask(ctx context.Context, task *Task) (interface{}, error) {
	var payload ProcessDocumentPayload
	if err := UnmarshalPayload(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v: %w", ErrInvalidPayload, err, asynq.SkipRetry)
	}
	if payload.DocumentID == "" || payload.FilePath == "" {
		return nil, fmt.Errorf("%w: document_id and file_path are required: %w", ErrInvalidPayload, asynq.SkipRetry)
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"document_id": payload.DocumentID,
		"file_name":   payload.FileName,
		"attempt":     task.Attempts,
	}).Info("Processing document task")

	pages, chunks, err := h.processor.ProcessDocument(ctx, payload.DocumentID, payload.FilePath)
	if err != nil {
		return nil, err
	}
	return &ProcessDocumentResult{PageCount: pages, ChunkCount: chunks}, nil
}
