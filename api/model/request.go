package model

import (
	"mime/multipart"
	"strings"
)

// 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// Offset 当前页的起始偏移
func (p *PaginationRequest) Offset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// DocumentUploadRequest 文档上传请求
type DocumentUploadRequest struct {
	File *multipart.FileHeader `form:"file" binding:"required"`              // 文件对象
	Tags string                `form:"tags" json:"tags" binding:"omitempty"` // 文档标签，逗号分隔
}

// TagList 拆分逗号分隔的标签，去掉空白项
func (r *DocumentUploadRequest) TagList() []string {
	var tags []string
	for _, t := range strings.Split(r.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// DocumentIDRequest 路径中带文档ID的请求
type DocumentIDRequest struct {
	ID string `uri:"id" binding:"required"` // 文档ID
}

// DocumentListRequest 文档列表请求
type DocumentListRequest struct {
	PaginationRequest
	Status   string `form:"status" json:"status" binding:"omitempty,oneof=uploaded processing completed failed"`
	FileName string `form:"filename" json:"filename" binding:"omitempty"` // 文件名模糊匹配
	Tag      string `form:"tag" json:"tag" binding:"omitempty"`           // 标签过滤
}

// ChunkListRequest 文本块查询参数
type ChunkListRequest struct {
	Page int `form:"page" binding:"omitempty,min=1"` // 只返回该页，0表示全部
}

// QARequest 问答请求
type QARequest struct {
	FileID   string `json:"file_id" binding:"required"`  // 文档ID
	Question string `json:"question" binding:"required"` // 问题内容
}

// PageImageRequest 页面图片请求
type PageImageRequest struct {
	Path string `form:"path" binding:"required"` // 存储路径
}
