package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient Gemini大模型客户端
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient 创建Gemini客户端
func NewGeminiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}
	cfg.modelOr(ModelGemini15Pro)

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{client: client, config: cfg}, nil
}

// Name 返回模型名称
func (c *GeminiClient) Name() string {
	return c.config.Model
}

// Generate 根据提示词生成回答
func (c *GeminiClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	model := c.model(resolveOptions(c.config, options))

	var resp *genai.GenerateContentResponse
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		resp, err = model.GenerateContent(ctx, genai.Text(prompt))
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.toResponse(resp)
}

// Chat 进行多轮对话
func (c *GeminiClient) Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 || messages[len(messages)-1].Role != RoleUser {
		return nil, NewLLMError(ErrCodeInvalidRequest, "last message must come from user")
	}

	opts := resolveOptions(c.config, options)
	history := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages[:len(messages)-1] {
		switch msg.Role {
		case RoleSystem:
			opts.System = msg.Content
		case RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}

	session := c.model(opts).StartChat()
	session.History = history

	var resp *genai.GenerateContentResponse
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		resp, err = session.SendMessage(ctx, genai.Text(messages[len(messages)-1].Content))
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.toResponse(resp)
}

// Close 关闭底层连接
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// model 按请求选项构造模型实例
func (c *GeminiClient) model(opts GenerateOptions) *genai.GenerativeModel {
	model := c.client.GenerativeModel(c.config.Model)
	if opts.MaxTokens != nil && *opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(*opts.MaxTokens))
	}
	if opts.Temperature != nil {
		model.SetTemperature(*opts.Temperature)
	}
	if opts.TopP != nil {
		model.SetTopP(*opts.TopP)
	}
	if opts.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(opts.System)}}
	}
	return model
}

// call 带超时和限流重试的调用
func (c *GeminiClient) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return withRetry(ctx, c.config, fn)
}

// toResponse 提取候选结果中的文本
func (c *GeminiClient) toResponse(resp *genai.GenerateContentResponse) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, NewLLMError(ErrCodeEmptyResponse, ErrMsgEmptyResponse)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	result := &Response{
		Text:       sb.String(),
		ModelName:  c.config.Model,
		FinishTime: time.Now(),
	}
	if resp.UsageMetadata != nil {
		result.TokenCount = int(resp.UsageMetadata.TotalTokenCount)
	}
	return result, nil
}

func init() {
	RegisterClient("gemini", NewGeminiClient)
}
