package middleware

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// 常用日志字段
const (
	FieldTraceID  = "trace_id"
	FieldDocID    = "doc_id"
	FieldPath     = "path"
	FieldMethod   = "method"
	FieldStatus   = "status_code"
	FieldLatency  = "latency"
	FieldClientIP = "client_ip"
	FieldError    = "error"
)

const (
	traceHeader  = "X-Trace-ID"
	traceKey     = "TraceID"
	maxBodyLog   = 2048 // 调试日志中请求体和响应体的最大长度
	healthPath   = "/api/health"
	pageImageAPI = "/api/pages/"
)

var log = defaultLogger()

func defaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLogger 替换中间件和处理器使用的日志记录器，启动时由配置创建后设置
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

func GetLogger() *logrus.Logger {
	return log
}

// RequestLog 返回带有追踪ID和文档ID的日志条目
func RequestLog(c *gin.Context) *logrus.Entry {
	fields := logrus.Fields{FieldTraceID: GetTraceID(c)}
	if id := c.Param("id"); id != "" {
		fields[FieldDocID] = id
	}
	return log.WithFields(fields)
}

// Logger 访问日志，健康检查只在 debug 级别记录
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		entry := RequestLog(c).WithFields(logrus.Fields{
			FieldStatus:   status,
			FieldLatency:  time.Since(start).String(),
			FieldClientIP: c.ClientIP(),
			FieldMethod:   c.Request.Method,
			FieldPath:     path,
			"user_agent":  c.Request.UserAgent(),
		})
		switch {
		case status >= 500:
			entry.Error("HTTP request")
		case path == healthPath:
			entry.Debug("HTTP request")
		default:
			entry.Info("HTTP request")
		}
	}
}

// RequestBodyLog debug 级别下记录请求体，上传的文件不记录
func RequestBodyLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		multipart := strings.HasPrefix(c.ContentType(), "multipart/")
		if log.IsLevelEnabled(logrus.DebugLevel) && !multipart && c.Request.Body != nil {
			body, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))

			if len(body) > 0 {
				RequestLog(c).WithFields(logrus.Fields{
					FieldMethod: c.Request.Method,
					FieldPath:   c.Request.URL.Path,
					"body":      truncate(string(body)),
				}).Debug("Request body")
			}
		}

		c.Next()
	}
}

// ResponseLogger debug 级别下记录 JSON 响应体，图片接口跳过
func ResponseLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !log.IsLevelEnabled(logrus.DebugLevel) || strings.HasPrefix(c.Request.URL.Path, pageImageAPI) {
			c.Next()
			return
		}

		writer := &responseBodyWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer
		c.Next()

		RequestLog(c).WithFields(logrus.Fields{
			FieldMethod: c.Request.Method,
			FieldPath:   c.Request.URL.Path,
			FieldStatus: c.Writer.Status(),
			"response":  truncate(writer.body.String()),
		}).Debug("Response body")
	}
}

// responseBodyWriter 同时写入响应和缓冲区
type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r *responseBodyWriter) Write(b []byte) (int, error) {
	if r.body.Len() < maxBodyLog {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

func truncate(s string) string {
	if len(s) <= maxBodyLog {
		return s
	}
	return s[:maxBodyLog] + "...(truncated)"
}

// SetTraceID 沿用请求头中的追踪ID，没有时生成，并写回响应头
func SetTraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceHeader)
		if traceID == "" {
			traceID = generateTraceID()
		}
		c.Set(traceKey, traceID)
		c.Header(traceHeader, traceID)
		c.Next()
	}
}

// GetTraceID 读取当前请求的追踪ID
func GetTraceID(c *gin.Context) string {
	return c.GetString(traceKey)
}

func generateTraceID() string {
	return time.Now().Format("20060102150405") + "-" + uuid.NewString()[:8]
}
