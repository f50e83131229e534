package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestResolveOptions 测试请求选项覆盖客户端配置
func TestResolveOptions(t *testing.T) {
	cfg := NewConfig(WithMaxTokens(100), WithTemperature(0.5))

	opts := resolveOptions(cfg, nil)
	assert.Equal(t, 100, *opts.MaxTokens)
	assert.Equal(t, float32(0.5), *opts.Temperature)
	assert.Equal(t, float32(0.95), *opts.TopP)

	opts = resolveOptions(cfg, []GenerateOption{WithGenerateMaxTokens(7), WithSystem("be brief")})
	assert.Equal(t, 7, *opts.MaxTokens)
	assert.Equal(t, "be brief", opts.System)
	// 配置本身不被修改
	assert.Equal(t, 100, cfg.MaxTokens)
}

// TestNewClientRegistry 测试客户端注册表
func TestNewClientRegistry(t *testing.T) {
	_, err := NewClient("missing")
	require.Error(t, err)
	var llmErr LLMError
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrCodeInvalidRequest, llmErr.Code)

	_, err = NewClient("openai")
	require.Error(t, err)
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrCodeInvalidAPIKey, llmErr.Code)

	_, err = NewClient("gemini")
	require.Error(t, err)

	assert.Equal(t, []string{"gemini", "openai"}, Providers())
}

func chatCompletionServer(t *testing.T, status int, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, ModelGPT4oMini, req["model"])

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Page 2 says yes."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
}

// TestOpenAIClientGenerate 测试OpenAI兼容接口调用
func TestOpenAIClientGenerate(t *testing.T) {
	var calls int32
	server := chatCompletionServer(t, http.StatusOK, &calls)
	defer server.Close()

	client, err := NewOpenAIClient(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL+"/v1"),
		WithTimeout(5*time.Second),
	)
	require.NoError(t, err)
	assert.Equal(t, ModelGPT4oMini, client.Name())

	resp, err := client.Generate(context.Background(), "does page 2 agree?", WithSystem("answer briefly"))
	require.NoError(t, err)
	assert.Equal(t, "Page 2 says yes.", resp.Text)
	assert.Equal(t, 15, resp.TokenCount)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// TestOpenAIClientErrors 测试参数校验和不可重试错误
func TestOpenAIClientErrors(t *testing.T) {
	var calls int32
	server := chatCompletionServer(t, http.StatusBadRequest, &calls)
	defer server.Close()

	client, err := NewOpenAIClient(WithAPIKey("test-key"), WithBaseURL(server.URL+"/v1"), WithMaxRetries(2))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "  ")
	var llmErr LLMError
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrCodeEmptyPrompt, llmErr.Code)

	_, err = client.Chat(context.Background(), []Message{{Role: RoleAssistant, Content: "hi"}})
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrCodeInvalidRequest, llmErr.Code)

	_, err = client.Generate(context.Background(), "question")
	require.Error(t, err)
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrCodeInvalidRequest, llmErr.Code)
	// 400 不重试
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// TestClassifyError 测试SDK错误到错误码的映射
func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unauthorized", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}, ErrCodeInvalidAPIKey},
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}, ErrCodeRateLimited},
		{"bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "bad"}, ErrCodeInvalidRequest},
		{"unavailable", &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable, Message: "down"}, ErrCodeServerError},
		{"quota message", errors.New("rpc error: code = ResourceExhausted desc = RESOURCE_EXHAUSTED"), ErrCodeRateLimited},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"unknown", errors.New("boom"), ErrCodeServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyError(tt.err)
			assert.True(t, IsLLMError(err, tt.code), "got %v", err)
		})
	}

	assert.True(t, NewLLMError(ErrCodeRateLimited, ErrMsgRateLimited).Retryable())
	assert.False(t, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey).Retryable())
	assert.Nil(t, classifyError(nil))
}
