package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient Gemini嵌入向量客户端
type GeminiClient struct {
	client     *genai.Client
	docModel   *genai.EmbeddingModel // 文档入库使用
	queryModel *genai.EmbeddingModel // 检索查询使用
	config     Config
}

// NewGeminiClient 创建一个新的Gemini嵌入客户端
func NewGeminiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}
	cfg.withDefaults("embedding-001", 768)

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	docModel := client.EmbeddingModel(cfg.Model)
	docModel.TaskType = genai.TaskTypeRetrievalDocument
	queryModel := client.EmbeddingModel(cfg.Model)
	queryModel.TaskType = genai.TaskTypeRetrievalQuery

	return &GeminiClient{
		client:     client,
		docModel:   docModel,
		queryModel: queryModel,
		config:     *cfg,
	}, nil
}

// Embed 对单个文本生成嵌入向量
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	var values []float32
	err := withRetry(ctx, c.config.MaxRetries, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()

		resp, err := c.queryModel.EmbedContent(callCtx, genai.Text(text))
		if err != nil {
			return err
		}
		if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
			return ErrNoEmbeddings
		}
		values = resp.Embedding.Values
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	return values, nil
}

// EmbedBatch 对多个文本生成嵌入向量
func (c *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if c.config.BatchSize > 0 && len(texts) > c.config.BatchSize {
		return nil, ErrBatchTooLarge
	}

	batch := c.docModel.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	var vectors [][]float32
	err := withRetry(ctx, c.config.MaxRetries, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()

		resp, err := c.docModel.BatchEmbedContents(callCtx, batch)
		if err != nil {
			return err
		}
		if len(resp.Embeddings) != len(texts) {
			return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
		}
		vectors = make([][]float32, len(resp.Embeddings))
		for i, e := range resp.Embeddings {
			vectors[i] = e.Values
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gemini batch embedding failed: %w", err)
	}
	return vectors, nil
}

// Name 返回模型名称
func (c *GeminiClient) Name() string {
	return c.config.Model
}

// Dimension 返回向量维度
func (c *GeminiClient) Dimension() int {
	return c.config.Dimensions
}

// Close 关闭底层连接
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func init() {
	RegisterClient("gemini", NewGeminiClient)
}
