package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
)

// LLMError 大模型调用错误
type LLMError struct {
	Code    int
	Message string
}

func (e LLMError) Error() string {
	return fmt.Sprintf("llm error (code=%d): %s", e.Code, e.Message)
}

// Retryable 限流、超时和服务端错误可以重试
func (e LLMError) Retryable() bool {
	switch e.Code {
	case ErrCodeRateLimited, ErrCodeServerError, ErrCodeNetworkError, ErrCodeTimeout:
		return true
	}
	return false
}

const (
	ErrCodeInvalidAPIKey  = 1001
	ErrCodeInvalidRequest = 1002
	ErrCodeNetworkError   = 1003
	ErrCodeRateLimited    = 1004
	ErrCodeServerError    = 1005
	ErrCodeTimeout        = 1006
	ErrCodeEmptyPrompt    = 1007
	ErrCodeContentFilter  = 1008 // 内容安全过滤
	ErrCodeEmptyResponse  = 1009 // 模型没有返回候选结果
	ErrCodeContextTooLong = 1010
)

const (
	ErrMsgInvalidAPIKey  = "invalid API key"
	ErrMsgInvalidRequest = "invalid request parameters"
	ErrMsgRateLimited    = "too many requests, rate limit exceeded"
	ErrMsgServerError    = "server error occurred"
	ErrMsgTimeout        = "request timed out"
	ErrMsgEmptyPrompt    = "prompt cannot be empty"
	ErrMsgNetworkError   = "network connection error"
	ErrMsgContentFilter  = "content filtered due to safety concerns"
	ErrMsgEmptyResponse  = "model returned no content"
	ErrMsgContextTooLong = "context length exceeds model's maximum"
)

// ErrEmptyQuestion 问题为空
var ErrEmptyQuestion = NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")

// NewLLMError 创建大模型错误
func NewLLMError(code int, message string) LLMError {
	return LLMError{Code: code, Message: message}
}

// WrapError 把普通错误包装为指定错误码，已经是 LLMError 时原样返回
func WrapError(err error, code int) LLMError {
	if err == nil {
		return LLMError{Code: code, Message: "unknown error"}
	}
	var llmErr LLMError
	if errors.As(err, &llmErr) {
		return llmErr
	}
	return LLMError{Code: code, Message: err.Error()}
}

// IsLLMError 判断错误链中是否有指定错误码的 LLMError
func IsLLMError(err error, code int) bool {
	var llmErr LLMError
	return errors.As(err, &llmErr) && llmErr.Code == code
}

// statusCode 取出两种 SDK 错误里的 HTTP 状态码
func statusCode(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code, true
	}
	return 0, false
}

// isRetryable 限流和服务端过载可以重试
func isRetryable(err error) bool {
	if code, ok := statusCode(err); ok {
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "unavailable")
}

// classifyError 把 SDK 错误映射为 LLMError
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewLLMError(ErrCodeTimeout, ErrMsgTimeout)
	}
	code, _ := statusCode(err)
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return NewLLMError(ErrCodeInvalidAPIKey, fmt.Sprintf("%s: %v", ErrMsgInvalidAPIKey, err))
	case isRetryable(err) && code < http.StatusInternalServerError:
		return NewLLMError(ErrCodeRateLimited, fmt.Sprintf("%s: %v", ErrMsgRateLimited, err))
	case code == http.StatusBadRequest:
		return NewLLMError(ErrCodeInvalidRequest, err.Error())
	default:
		return WrapError(err, ErrCodeServerError)
	}
}

// withRetry 每次调用单独计时，可重试的错误按 1s、2s、4s 退避
func withRetry(ctx context.Context, cfg *Config, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		err = fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !isRetryable(err) || attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return WrapError(ctx.Err(), ErrCodeTimeout)
		case <-time.After(time.Duration(1<<attempt) * time.Second):
		}
	}
	return classifyError(err)
}
