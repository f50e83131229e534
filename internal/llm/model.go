package llm

import "time"

// MessageRole 消息角色类型
type MessageRole string

const (
	// RoleSystem 系统角色
	RoleSystem MessageRole = "system"
	// RoleUser 用户角色
	RoleUser MessageRole = "user"
	// RoleAssistant 助手角色
	RoleAssistant MessageRole = "assistant"
)

// Message 对话消息结构
type Message struct {
	Role    MessageRole `json:"role"`    // 角色
	Content string      `json:"content"` // 内容
}

// Response 统一的响应结构
type Response struct {
	Text       string    // 生成的文本
	TokenCount int       // 使用的token数
	ModelName  string    // 使用的模型名称
	FinishTime time.Time // 完成时间
}

// ContextChunk 检索得到的上下文片段
type ContextChunk struct {
	Page  int     // 来源页码
	Text  string  // 片段内容
	Score float32 // 相似度得分
}

// Answer 问答结果
type Answer struct {
	Text    string         // 回答内容
	Pages   []int          // 引用的页码（升序去重）
	Sources []ContextChunk // 参与回答的上下文
}

// Model 常用模型名称
const (
	ModelGemini15Pro   = "gemini-1.5-pro"
	ModelGemini15Flash = "gemini-1.5-flash"
	ModelGPT4oMini     = "gpt-4o-mini"
)
