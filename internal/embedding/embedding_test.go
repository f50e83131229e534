package embedding

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// stubClient 根据文本长度生成向量的客户端
type stubClient struct {
	calls    int32
	failWith error
	maxBatch int
}

func (s *stubClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	return []float32{float32(len(text)), 1}, nil
}

func (s *stubClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.failWith != nil {
		return nil, s.failWith
	}
	if s.maxBatch > 0 && len(texts) > s.maxBatch {
		return nil, ErrBatchTooLarge
	}
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = []float32{float32(len(text)), 1}
	}
	return result, nil
}

func (s *stubClient) Name() string   { return "stub" }
func (s *stubClient) Dimension() int { return 2 }

// TestClientRegistry 测试客户端注册与创建
func TestClientRegistry(t *testing.T) {
	RegisterClient("stub", func(opts ...Option) (Client, error) {
		return &stubClient{}, nil
	})

	t.Run("registered client", func(t *testing.T) {
		client, err := NewClient("stub")
		require.NoError(t, err)
		assert.Equal(t, "stub", client.Name())
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := NewClient("unknown")
		require.Error(t, err)
		assert.True(t, IsEmbeddingError(err, ErrCodeInvalidRequest))
		assert.Contains(t, err.Error(), "stub")
	})

	t.Run("providers require api key", func(t *testing.T) {
		for _, name := range []string{"gemini", "openai"} {
			_, err := NewClient(name)
			assert.True(t, IsEmbeddingError(err, ErrCodeInvalidAPIKey), "%s 缺少密钥时应返回错误", name)
		}
	})
}

// TestConfigOptions 测试配置选项
func TestConfigOptions(t *testing.T) {
	cfg := DefaultConfig()
	assert.Empty(t, cfg.Model)
	assert.Zero(t, cfg.Dimensions)
	assert.Equal(t, 100, cfg.BatchSize)

	cfg = NewConfig(
		WithAPIKey("key"),
		WithBaseURL("http://localhost:8080/v1"),
		WithModel("custom"),
		WithTimeout(5*time.Second),
		WithMaxRetries(1),
		WithDimensions(64),
		WithBatchSize(8),
	)
	assert.Equal(t, "key", cfg.APIKey)
	assert.Equal(t, "http://localhost:8080/v1", cfg.BaseURL)
	assert.Equal(t, "custom", cfg.Model)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 64, cfg.Dimensions)
	assert.Equal(t, 8, cfg.BatchSize)
}

// TestOpenAIClientDefaults 测试OpenAI客户端默认模型
func TestOpenAIClientDefaults(t *testing.T) {
	client, err := NewOpenAIClient(WithAPIKey("sk-test"))
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", client.Name())
	assert.Equal(t, 1536, client.Dimension())

	_, err = client.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

// TestBatchProcessor 测试批处理器
func TestBatchProcessor(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps input order across batches", func(t *testing.T) {
		client := &stubClient{maxBatch: 2}
		processor := NewBatchProcessor(client, 2, 3)
		texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

		vectors, err := processor.Process(ctx, texts)
		require.NoError(t, err)
		require.Len(t, vectors, len(texts))
		for i, text := range texts {
			assert.Equal(t, float32(len(text)), vectors[i][0])
		}
		assert.Equal(t, int32(3), atomic.LoadInt32(&client.calls))
	})

	t.Run("blank texts map to nil", func(t *testing.T) {
		processor := NewBatchProcessor(&stubClient{}, 2, 2)

		vectors, err := processor.Process(ctx, []string{"hello", "  ", "world"})
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		assert.Nil(t, vectors[1])
		assert.Equal(t, float32(5), vectors[2][0])
	})

	t.Run("all blank texts", func(t *testing.T) {
		processor := NewBatchProcessor(&stubClient{}, 2, 2)

		_, err := processor.Process(ctx, []string{"", "\n"})
		assert.ErrorIs(t, err, ErrNoEmbeddings)
		assert.Contains(t, err.Error(), "no embeddings were created")
	})

	t.Run("empty input", func(t *testing.T) {
		vectors, err := NewBatchProcessor(&stubClient{}, 0, 0).Process(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
	})

	t.Run("client error is propagated", func(t *testing.T) {
		boom := errors.New("boom")
		processor := NewBatchProcessor(&stubClient{failWith: boom}, 1, 2)

		_, err := processor.Process(ctx, []string{"a", "b", "c"})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("works with testify mock", func(t *testing.T) {
		m := NewMockClient(t)
		m.On("EmbedBatch", mock.Anything, []string{"x", "y"}).Return([][]float32{{1}, {2}}, nil).Once()

		vectors, err := NewBatchProcessor(m, 10, 1).Process(ctx, []string{"x", "y"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1}, {2}}, vectors)
	})
}

// TestWithRetry 测试限流重试
func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("retries rate limit errors", func(t *testing.T) {
		attempts := 0
		err := withRetry(ctx, 3, func(ctx context.Context) error {
			attempts++
			if attempts < 2 {
				return errors.New("429 Too Many Requests")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, attempts)
	})

	t.Run("other errors are returned immediately", func(t *testing.T) {
		attempts := 0
		err := withRetry(ctx, 3, func(ctx context.Context) error {
			attempts++
			return errors.New("invalid argument")
		})
		assert.EqualError(t, err, "invalid argument")
		assert.Equal(t, 1, attempts)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := withRetry(cancelled, 3, func(ctx context.Context) error {
			return errors.New("rate limit exceeded")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// TestRealGeminiClient 测试实际的Gemini客户端
func TestRealGeminiClient(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set, skipping Gemini client test")
	}

	client, err := NewGeminiClient(WithAPIKey(apiKey))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vector, err := client.Embed(ctx, "What is the payment term?")
	require.NoError(t, err)
	assert.Len(t, vector, client.Dimension())

	vectors, err := client.EmbedBatch(ctx, []string{"First chunk.", strings.Repeat("Second chunk. ", 10)})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
}
