package services

import "errors"

var (
	// ErrInvalidTransition 文档状态转换不合法
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNoTextExtracted 文档中没有可分块的文本
	ErrNoTextExtracted = errors.New("no text could be extracted from document")

	// ErrSummarizerMissing 未配置摘要使用的大模型
	ErrSummarizerMissing = errors.New("summarizer not configured")

	// ErrAsyncDisabled 未配置任务队列
	ErrAsyncDisabled = errors.New("async processing not enabled")
)
