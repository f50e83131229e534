package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QARecord 一次问答的记录
type QARecord struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID  string         `gorm:"not null;index" json:"document_id"`
	Question    string         `gorm:"type:text;not null" json:"question"`
	Answer      string         `gorm:"type:text" json:"answer"`
	Pages       datatypes.JSON `gorm:"type:json" json:"pages"`       // 引用的页码
	Suggestions datatypes.JSON `gorm:"type:json" json:"suggestions"` // 追问建议
	Cached      bool           `gorm:"default:false" json:"cached"`  // 是否命中缓存
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
}

// BeforeCreate 创建记录前设置时间
func (r *QARecord) BeforeCreate(tx *gorm.DB) (err error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (QARecord) TableName() string {
	return "qa_records"
}
