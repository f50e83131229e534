package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/fyerfyer/pdf-qa/api/model"
	"github.com/fyerfyer/pdf-qa/internal/document"
	"github.com/fyerfyer/pdf-qa/internal/llm"
	"github.com/fyerfyer/pdf-qa/internal/models"
	"github.com/fyerfyer/pdf-qa/internal/services"
	"github.com/fyerfyer/pdf-qa/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 定义应用中的错误类型常量
const (
	ErrorTypeValidation   = "VALIDATION_ERROR"   // 输入验证错误
	ErrorTypeUnauthorized = "UNAUTHORIZED_ERROR" // 未授权错误
	ErrorTypeForbidden    = "FORBIDDEN_ERROR"    // 禁止访问错误
	ErrorTypeNotFound     = "NOT_FOUND_ERROR"    // 资源不存在错误
	ErrorTypeConflict     = "CONFLICT_ERROR"     // 资源状态冲突
	ErrorTypeInternal     = "INTERNAL_ERROR"     // 内部服务器错误
	ErrorTypeBusiness     = "BUSINESS_ERROR"     // 业务逻辑错误
	ErrorTypeUpstream     = "UPSTREAM_ERROR"     // 大模型等外部服务错误
)

// AppError 应用错误结构体
type AppError struct {
	Type    string // 错误类型
	Message string // 错误消息
	Details string // 详细错误信息
	Code    int    // 错误代码
}

// Error 实现error接口的方法
func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewUnauthorizedError 创建未授权错误
func NewUnauthorizedError(message string) AppError {
	return AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
		Code:    http.StatusUnauthorized,
	}
}

// NewForbiddenError 创建禁止访问错误
func NewForbiddenError(message string) AppError {
	return AppError{
		Type:    ErrorTypeForbidden,
		Message: message,
		Code:    http.StatusForbidden,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewConflictError 创建状态冲突错误
func NewConflictError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeConflict,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusConflict,
	}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// NewBusinessError 创建业务逻辑错误
func NewBusinessError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeBusiness,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewUpstreamError 创建外部服务错误，超时返回 504，其余返回 502
func NewUpstreamError(message string, timeout bool) AppError {
	code := http.StatusBadGateway
	if timeout {
		code = http.StatusGatewayTimeout
	}
	return AppError{
		Type:    ErrorTypeUpstream,
		Message: message,
		Code:    code,
	}
}

// FromError 把服务层错误映射为应用错误
func FromError(err error) AppError {
	var appErr AppError
	var appErrPtr *AppError
	var llmErr llm.LLMError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &appErrPtr):
		return *appErrPtr
	case errors.Is(err, models.ErrDocumentNotFound), errors.Is(err, storage.ErrNotFound):
		return NewNotFoundError(err.Error())
	case errors.Is(err, models.ErrDocumentNotReady), errors.Is(err, services.ErrInvalidTransition):
		return NewConflictError(err.Error())
	case errors.Is(err, document.ErrUnsupportedFormat), errors.Is(err, storage.ErrInvalidPath),
		errors.Is(err, llm.ErrEmptyQuestion):
		return NewValidationError(err.Error())
	case errors.Is(err, services.ErrNoTextExtracted):
		return NewBusinessError(err.Error())
	case errors.As(err, &llmErr):
		return NewUpstreamError(llmErr.Message, llmErr.Code == llm.ErrCodeTimeout)
	}
	return NewInternalError("Internal server error", err.Error())
}

// ErrorMiddleware 统一错误处理中间件
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				RequestLog(c).WithFields(logrus.Fields{
					FieldError: err,
					"stack":    string(debug.Stack()),
					FieldPath:  c.Request.URL.Path,
				}).Error("Panic recovered in API request")

				errorResponse := model.NewErrorResponse(
					http.StatusInternalServerError,
					"An unexpected error occurred",
				)
				// 调试模式下返回详细信息
				if gin.Mode() == gin.DebugMode {
					errorResponse.Message = fmt.Sprintf("Panic: %v", err)
				}
				errorResponse.TraceID = GetTraceID(c)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		// 取最后一个错误进行处理
		appErr := FromError(c.Errors.Last().Err)
		traceID := GetTraceID(c)

		entry := RequestLog(c).WithFields(logrus.Fields{
			"error_type":  appErr.Type,
			FieldPath:     c.Request.URL.Path,
			"error_cause": appErr.Details,
		})
		if appErr.Code >= http.StatusInternalServerError {
			entry.Error(appErr.Message)
		} else {
			entry.Warn(appErr.Message)
		}

		message := appErr.Message
		if appErr.Type == ErrorTypeInternal && gin.Mode() == gin.DebugMode && appErr.Details != "" {
			message = appErr.Details
		}
		errResp := model.NewErrorResponse(appErr.Code, message)
		errResp.TraceID = traceID
		c.AbortWithStatusJSON(appErr.Code, errResp)
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
}
