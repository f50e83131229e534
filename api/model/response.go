package model

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/fyerfyer/pdf-qa/internal/document"
	"github.com/fyerfyer/pdf-qa/internal/models"
	"github.com/fyerfyer/pdf-qa/internal/services"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// DocumentUploadResponse 文档上传响应
type DocumentUploadResponse struct {
	FileID   string `json:"file_id"`  // 文件ID
	FileName string `json:"filename"` // 文件名
	Status   string `json:"status"`   // 文档状态
}

// DocumentStatusResponse 文档状态查询响应
type DocumentStatusResponse struct {
	FileID     string `json:"file_id"`
	FileName   string `json:"filename"`
	Status     string `json:"status"`
	Stage      string `json:"stage,omitempty"`
	Progress   int    `json:"progress"`
	Error      string `json:"error,omitempty"`
	PageCount  int    `json:"page_count"`
	ChunkCount int    `json:"chunk_count"`
	TaskID     string `json:"task_id,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// DocumentInfo 文档信息
type DocumentInfo struct {
	FileID      string           `json:"file_id"`
	FileName    string           `json:"filename"`
	FileSize    int64            `json:"file_size"`
	Status      string           `json:"status"`
	Tags        []string         `json:"tags"`
	PageCount   int              `json:"page_count"`
	ChunkCount  int              `json:"chunk_count"`
	OCRPages    []int            `json:"ocr_pages,omitempty"`
	Tables      []document.Table `json:"tables,omitempty"`
	Summary     string           `json:"summary,omitempty"`
	UploadTime  time.Time        `json:"upload_time"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty"`
}

// DocumentListResponse 文档列表响应
type DocumentListResponse struct {
	Total     int64          `json:"total"`     // 总数量
	Page      int            `json:"page"`      // 当前页码
	PageSize  int            `json:"page_size"` // 每页大小
	Documents []DocumentInfo `json:"documents"` // 文档列表
}

// DocumentDeleteResponse 文档删除响应
type DocumentDeleteResponse struct {
	Success bool   `json:"success"` // 是否成功
	FileID  string `json:"file_id"` // 文件ID
}

// ChunkInfo 文本块信息
type ChunkInfo struct {
	Page     int    `json:"page"`
	Position int    `json:"position"`
	Text     string `json:"text"`
}

// ChunkListResponse 文本块列表响应
type ChunkListResponse struct {
	FileID string      `json:"file_id"`
	Total  int         `json:"total"`
	Chunks []ChunkInfo `json:"chunks"`
}

// SummaryResponse 文档摘要响应
type SummaryResponse struct {
	FileID  string `json:"file_id"`
	Summary string `json:"summary"`
}

// QASourceInfo 问答来源信息
type QASourceInfo struct {
	Page  int     `json:"page"`  // 所在页码
	Text  string  `json:"text"`  // 相关文本段落
	Score float32 `json:"score"` // 相似度
}

// QAImageInfo 引用页面的图片
type QAImageInfo struct {
	Page     int    `json:"page"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// QAResponse 问答响应
type QAResponse struct {
	RecordID    uint           `json:"record_id,omitempty"`
	Question    string         `json:"question"`    // 用户问题
	Answer      string         `json:"answer"`      // 模型生成的回答
	Pages       []int          `json:"pages"`       // 引用的页码
	Sources     []QASourceInfo `json:"sources"`     // 来源信息
	Images      []QAImageInfo  `json:"images"`      // 引用页面中的图片
	Suggestions []string       `json:"suggestions"` // 追问建议
	Cached      bool           `json:"cached"`
}

// QAHistoryItem 历史问答
type QAHistoryItem struct {
	ID          uint      `json:"id"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	Pages       []int     `json:"pages"`
	Suggestions []string  `json:"suggestions"`
	Cached      bool      `json:"cached"`
	CreatedAt   time.Time `json:"created_at"`
}

// QAHistoryResponse 历史问答列表
type QAHistoryResponse struct {
	FileID   string          `json:"file_id"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Records  []QAHistoryItem `json:"records"`
}

// PageImageURL 页面图片的访问地址
func PageImageURL(path string) string {
	return "/api/pages/image?path=" + url.QueryEscape(path)
}

// ConvertToDocumentInfo 将文档记录转换为响应结构
func ConvertToDocumentInfo(doc *models.Document) DocumentInfo {
	info := DocumentInfo{
		FileID:      doc.ID,
		FileName:    doc.FileName,
		FileSize:    doc.FileSize,
		Status:      string(doc.Status),
		Tags:        []string{},
		PageCount:   doc.PageCount,
		ChunkCount:  doc.ChunkCount,
		Summary:     doc.Summary,
		UploadTime:  doc.UploadedAt,
		ProcessedAt: doc.ProcessedAt,
	}
	if len(doc.Tags) > 0 {
		_ = json.Unmarshal(doc.Tags, &info.Tags)
	}
	if len(doc.OCRPages) > 0 {
		_ = json.Unmarshal(doc.OCRPages, &info.OCRPages)
	}
	if len(doc.Tables) > 0 {
		_ = json.Unmarshal(doc.Tables, &info.Tables)
	}
	return info
}

// ConvertToStatusResponse 将文档记录转换为状态响应
func ConvertToStatusResponse(doc *models.Document) DocumentStatusResponse {
	return DocumentStatusResponse{
		FileID:     doc.ID,
		FileName:   doc.FileName,
		Status:     string(doc.Status),
		Stage:      string(doc.Stage),
		Progress:   doc.Progress,
		Error:      doc.Error,
		PageCount:  doc.PageCount,
		ChunkCount: doc.ChunkCount,
		TaskID:     doc.CurrentTaskID,
		CreatedAt:  doc.UploadedAt.Format(time.RFC3339),
		UpdatedAt:  doc.UpdatedAt.Format(time.RFC3339),
	}
}

// ConvertToChunkInfo 转换文本块列表
func ConvertToChunkInfo(chunks []*models.DocumentChunk) []ChunkInfo {
	out := make([]ChunkInfo, len(chunks))
	for i, c := range chunks {
		out[i] = ChunkInfo{Page: c.Page, Position: c.Position, Text: c.Text}
	}
	return out
}

// ConvertToQAResponse 将问答结果转换为响应结构
func ConvertToQAResponse(question string, result *services.QAResult) QAResponse {
	resp := QAResponse{
		RecordID:    result.RecordID,
		Question:    question,
		Answer:      result.Answer,
		Pages:       result.Pages,
		Sources:     make([]QASourceInfo, len(result.Sources)),
		Images:      make([]QAImageInfo, len(result.Images)),
		Suggestions: result.Suggestions,
		Cached:      result.Cached,
	}
	for i, s := range result.Sources {
		resp.Sources[i] = QASourceInfo{Page: s.Page, Text: s.Text, Score: s.Score}
	}
	for i, img := range result.Images {
		resp.Images[i] = QAImageInfo{Page: img.Page, URL: PageImageURL(img.Path), MimeType: img.MimeType}
	}
	if resp.Pages == nil {
		resp.Pages = []int{}
	}
	if resp.Suggestions == nil {
		resp.Suggestions = []string{}
	}
	return resp
}

// ConvertToHistoryItem 转换历史问答记录
func ConvertToHistoryItem(record *models.QARecord) QAHistoryItem {
	item := QAHistoryItem{
		ID:          record.ID,
		Question:    record.Question,
		Answer:      record.Answer,
		Pages:       []int{},
		Suggestions: []string{},
		Cached:      record.Cached,
		CreatedAt:   record.CreatedAt,
	}
	if len(record.Pages) > 0 {
		_ = json.Unmarshal(record.Pages, &item.Pages)
	}
	if len(record.Suggestions) > 0 {
		_ = json.Unmarshal(record.Suggestions, &item.Suggestions)
	}
	return item
}
