package llm

import (
	"context"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI兼容接口的大模型客户端
type OpenAIClient struct {
	client *openai.Client
	config *Config
}

// NewOpenAIClient 创建OpenAI兼容客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}
	cfg.modelOr(ModelGPT4oMini)

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.config.Model
}

// Generate 根据提示词生成回答
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}
	return c.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, options...)
}

// Chat 进行多轮对话
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 || messages[len(messages)-1].Role != RoleUser {
		return nil, NewLLMError(ErrCodeInvalidRequest, "last message must come from user")
	}

	opts := resolveOptions(c.config, options)
	req := openai.ChatCompletionRequest{
		Model:    c.config.Model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)+1),
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.TopP != nil {
		req.TopP = *opts.TopP
	}
	if opts.System != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.System,
		})
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    toOpenAIRole(msg.Role),
			Content: msg.Content,
		})
	}

	var resp openai.ChatCompletionResponse
	err := withRetry(ctx, c.config, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.client.CreateChatCompletion(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, NewLLMError(ErrCodeEmptyResponse, ErrMsgEmptyResponse)
	}

	return &Response{
		Text:       resp.Choices[0].Message.Content,
		TokenCount: resp.Usage.TotalTokens,
		ModelName:  resp.Model,
		FinishTime: time.Now(),
	}, nil
}

func toOpenAIRole(role MessageRole) string {
	switch role {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

func init() {
	RegisterClient("openai", NewOpenAIClient)
}
