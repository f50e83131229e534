package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型，同时作为 asynq 的任务名
type TaskType string

const (
	// TaskProcessDocument 文档完整处理流程：提取、分块、向量化、入库
	TaskProcessDocument TaskType = "document:process"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusRetrying 失败后等待重试
	StatusRetrying TaskStatus = "retrying"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Finished 是否为终态
func (s TaskStatus) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	DocumentID  string          `json:"document_id"`  // 关联的文档ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷
	Result      json.RawMessage `json:"result"`       // 任务结果
	Error       string          `json:"error"`        // 最近一次的错误信息
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 已执行次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// ProcessDocumentPayload 文档处理任务载荷
type ProcessDocumentPayload struct {
	DocumentID string `json:"document_id"` // 文档ID
	FilePath   string `json:"file_path"`   // 存储内的文件路径
	FileName   string `json:"file_name"`   // 原始文件名
}

// ProcessDocumentResult 文档处理任务结果
type ProcessDocumentResult struct {
	PageCount  int `json:"page_count"`
	ChunkCount int `json:"chunk_count"`
}
