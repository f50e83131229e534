package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EmbeddingError 嵌入调用错误
type EmbeddingError struct {
	Code    int
	Message string
}

func (e EmbeddingError) Error() string {
	return fmt.Sprintf("embedding error (code=%d): %s", e.Code, e.Message)
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 1001 // 无效的API密钥
	ErrCodeInvalidRequest = 1002 // 无效的请求
	ErrCodeNetworkError   = 1003 // 网络连接错误
	ErrCodeRateLimited    = 1004 // 请求频率超限
	ErrCodeServerError    = 1005 // 服务器错误
	ErrCodeTimeout        = 1006 // 请求超时
	ErrCodeEmptyInput     = 1007 // 输入为空
	ErrCodeNoEmbeddings   = 1008 // 没有生成任何向量
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey  = "invalid API key"
	ErrMsgInvalidRequest = "invalid request parameters"
	ErrMsgRateLimited    = "too many requests, rate limit exceeded"
	ErrMsgServerError    = "server error occurred"
	ErrMsgTimeout        = "request timed out"
	ErrMsgEmptyInput     = "input text cannot be empty"
	ErrMsgNetworkError   = "network connection error"
	ErrMsgNoEmbeddings   = "no embeddings were created"
)

// 预定义错误
var (
	ErrEmptyText     = NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	ErrRateLimited   = NewEmbeddingError(ErrCodeRateLimited, ErrMsgRateLimited)
	ErrNoEmbeddings  = NewEmbeddingError(ErrCodeNoEmbeddings, ErrMsgNoEmbeddings)
	ErrBatchTooLarge = errors.New("batch size exceeds client limit")
)

// NewEmbeddingError 创建新的嵌入错误
func NewEmbeddingError(code int, message string) EmbeddingError {
	return EmbeddingError{
		Code:    code,
		Message: message,
	}
}

// IsEmbeddingError 判断错误链中是否包含指定错误码
func IsEmbeddingError(err error, code int) bool {
	var e EmbeddingError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// withRetry 限流错误按 500ms、1s、2s 退避重试，其余错误直接返回
func withRetry(ctx context.Context, maxRetries int, call func(ctx context.Context) error) error {
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = call(ctx); err == nil {
			return nil
		}
		if !isRateLimitError(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}

		wait := time.Duration(1<<attempt) * 500 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%w: %v", ErrRateLimited, err)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "429")
}
