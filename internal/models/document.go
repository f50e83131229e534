package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentStatus 文档处理状态类型
type DocumentStatus string

const (
	// DocStatusUploaded 文档已上传，等待处理
	DocStatusUploaded DocumentStatus = "uploaded"
	// DocStatusProcessing 文档处理中
	DocStatusProcessing DocumentStatus = "processing"
	// DocStatusCompleted 文档处理完成
	DocStatusCompleted DocumentStatus = "completed"
	// DocStatusFailed 文档处理失败
	DocStatusFailed DocumentStatus = "failed"
)

// Valid 是否为已知状态
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocStatusUploaded, DocStatusProcessing, DocStatusCompleted, DocStatusFailed:
		return true
	}
	return false
}

// ProcessStage 文档处理阶段
type ProcessStage string

const (
	// StageExtract 提取页面文本和图片
	StageExtract ProcessStage = "extract"
	// StageChunk 按页分块
	StageChunk ProcessStage = "chunk"
	// StageEmbed 向量化
	StageEmbed ProcessStage = "embed"
	// StageIndex 写入向量库
	StageIndex ProcessStage = "index"
	// StageDone 处理完成
	StageDone ProcessStage = "done"
)

// Progress 阶段对应的进度百分比
func (s ProcessStage) Progress() int {
	switch s {
	case StageExtract:
		return 10
	case StageChunk:
		return 30
	case StageEmbed:
		return 50
	case StageIndex:
		return 80
	case StageDone:
		return 100
	}
	return 0
}

// Document 文档数据模型
type Document struct {
	ID            string         `gorm:"primaryKey" json:"id"`                 // 文档ID
	FileName      string         `gorm:"not null" json:"file_name"`            // 文件名
	FileType      string         `gorm:"not null" json:"file_type"`            // 文件类型
	FilePath      string         `gorm:"not null" json:"file_path"`            // 存储路径
	FileSize      int64          `gorm:"not null" json:"file_size"`            // 文件大小（字节）
	Status        DocumentStatus `gorm:"not null;index" json:"status"`         // 处理状态
	Stage         ProcessStage   `gorm:"size:20" json:"stage"`                 // 当前处理阶段
	Progress      int            `gorm:"not null;default:0" json:"progress"`   // 处理进度（0-100）
	PageCount     int            `gorm:"not null;default:0" json:"page_count"` // 页数
	ChunkCount    int            `gorm:"not null;default:0" json:"chunk_count"`
	OCRPages      datatypes.JSON `gorm:"type:json" json:"ocr_pages,omitempty"` // 经OCR识别的页码
	Tables        datatypes.JSON `gorm:"type:json" json:"tables,omitempty"`    // 识别出的表格
	Error         string         `gorm:"type:text" json:"error,omitempty"`     // 错误信息
	Summary       string         `gorm:"type:text" json:"summary,omitempty"`   // 文档摘要
	Tags          datatypes.JSON `gorm:"type:json" json:"tags,omitempty"`      // 标签列表
	CurrentTaskID string         `gorm:"size:64;index" json:"task_id,omitempty"`
	UploadedAt    time.Time      `gorm:"not null;index" json:"uploaded_at"`
	ProcessedAt   *time.Time     `gorm:"index" json:"processed_at,omitempty"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

// BeforeCreate 创建记录前设置时间和初始状态
func (d *Document) BeforeCreate(tx *gorm.DB) (err error) {
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}
	if d.Status == "" {
		d.Status = DocStatusUploaded
	}
	d.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate 更新记录前设置更新时间
func (d *Document) BeforeUpdate(tx *gorm.DB) (err error) {
	d.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Document) TableName() string {
	return "documents"
}

// DocumentChunk 文档文本块
type DocumentChunk struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID string    `gorm:"not null;index:idx_chunk_doc_page" json:"document_id"`
	Page       int       `gorm:"not null;index:idx_chunk_doc_page" json:"page"` // 页码，从1开始
	Position   int       `gorm:"not null" json:"position"`                      // 在文档中的全局顺序
	Text       string    `gorm:"type:text;not null" json:"text"`
	VectorID   string    `gorm:"size:64" json:"vector_id"` // 向量库中的ID
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// BeforeCreate 创建记录前设置时间
func (c *DocumentChunk) BeforeCreate(tx *gorm.DB) (err error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// PageImage 页面中提取出的图片
type PageImage struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID string    `gorm:"not null;index:idx_image_doc_page" json:"document_id"`
	Page       int       `gorm:"not null;index:idx_image_doc_page" json:"page"`
	Path       string    `gorm:"not null" json:"path"` // 文件存储中的路径
	MimeType   string    `gorm:"size:50" json:"mime_type"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// BeforeCreate 创建记录前设置时间
func (p *PageImage) BeforeCreate(tx *gorm.DB) (err error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (PageImage) TableName() string {
	return "page_images"
}
