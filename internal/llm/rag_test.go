package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func mockResponse(text string) *Response {
	return &Response{
		Text:       text,
		TokenCount: 50,
		ModelName:  "mock-model",
		FinishTime: time.Now(),
	}
}

// TestAnswerBasicFunctionality 测试问答的基本功能
func TestAnswerBasicFunctionality(t *testing.T) {
	mockClient := NewMockClient(t)

	question := "When is payment due?"
	contexts := []ContextChunk{
		{Page: 3, Text: "Payment is due within thirty days of invoice.", Score: 0.91},
		{Page: 1, Text: "This agreement starts on the signing date.", Score: 0.72},
		{Page: 3, Text: "Late payments accrue interest.", Score: 0.65},
	}

	// 验证提示词中包含问题、页码标注和分隔符
	mockClient.On("Generate", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "Question: "+question) &&
			strings.Contains(prompt, "[Page 3]\nPayment is due within thirty days of invoice.") &&
			strings.Contains(prompt, "\n\n---\n\n[Page 1]\n") &&
			strings.Contains(prompt, "mention the page numbers")
	}), mock.Anything).Return(mockResponse("  Within thirty days (page 3).  "), nil).Once()

	qa := NewQA(mockClient)
	answer, err := qa.Answer(context.Background(), question, contexts)

	require.NoError(t, err)
	assert.Equal(t, "Within thirty days (page 3).", answer.Text)
	assert.Equal(t, []int{1, 3}, answer.Pages)
	assert.Len(t, answer.Sources, 3)
}

// TestAnswerEmptyQuestion 测试空问题
func TestAnswerEmptyQuestion(t *testing.T) {
	mockClient := NewMockClient(t)
	qa := NewQA(mockClient)

	_, err := qa.Answer(context.Background(), "   ", []ContextChunk{{Page: 1, Text: "x"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyQuestion))
	mockClient.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

// TestAnswerWithoutContext 没有检索结果时不调用模型
func TestAnswerWithoutContext(t *testing.T) {
	mockClient := NewMockClient(t)
	qa := NewQA(mockClient)

	answer, err := qa.Answer(context.Background(), "What is the fee?", nil)
	require.NoError(t, err)
	assert.Equal(t, UnknownAnswer, answer.Text)
	assert.Empty(t, answer.Pages)
	mockClient.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

// TestAnswerClientError 测试模型错误透传
func TestAnswerClientError(t *testing.T) {
	mockClient := NewMockClient(t)
	mockClient.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, NewLLMError(ErrCodeRateLimited, ErrMsgRateLimited)).Once()

	qa := NewQA(mockClient)
	_, err := qa.Answer(context.Background(), "question", []ContextChunk{{Page: 2, Text: "context"}})

	require.Error(t, err)
	var llmErr LLMError
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrCodeRateLimited, llmErr.Code)
}

// TestAnswerCustomTemplate 测试自定义模板
func TestAnswerCustomTemplate(t *testing.T) {
	mockClient := NewMockClient(t)
	mockClient.On("Generate", mock.Anything, "Q=why C=[Page 7]\nbecause", mock.Anything).
		Return(mockResponse("ok"), nil).Once()

	qa := NewQA(mockClient, WithAnswerTemplate("Q={{.Question}} C={{.Context}}"))
	answer, err := qa.Answer(context.Background(), "why", []ContextChunk{{Page: 7, Text: "because"}})

	require.NoError(t, err)
	assert.Equal(t, "ok", answer.Text)
	assert.Equal(t, []int{7}, answer.Pages)

	mockClient.On("Generate", mock.Anything, "why / [Page 7]\nbecause", mock.Anything).
		Return(mockResponse("swapped"), nil).Once()
	answer, err = qa.SetAnswerTemplate("{{.Question}} / {{.Context}}").
		Answer(context.Background(), "why", []ContextChunk{{Page: 7, Text: "because"}})
	require.NoError(t, err)
	assert.Equal(t, "swapped", answer.Text)
}

// TestSuggestQuestions 测试追问生成
func TestSuggestQuestions(t *testing.T) {
	t.Run("parse numbered list", func(t *testing.T) {
		mockClient := NewMockClient(t)
		mockClient.On("Generate", mock.Anything, mock.MatchedBy(func(prompt string) bool {
			return strings.Contains(prompt, "Given the question 'What is the fee?'") &&
				strings.Contains(prompt, "Context preview:\nThe fee is 10 USD.\nRefunds take a week.")
		}), mock.Anything).Return(mockResponse(
			"1. Is the fee refundable?\n2) When is it charged?\n\n3. Are there discounts?\n4. Extra question"), nil).Once()

		qa := NewQA(mockClient)
		got := qa.SuggestQuestions(context.Background(), "What is the fee?", []ContextChunk{
			{Page: 1, Text: "The fee is 10 USD."},
			{Page: 2, Text: "Refunds take a week."},
		})

		assert.Equal(t, []string{
			"Is the fee refundable?",
			"When is it charged?",
			"Are there discounts?",
		}, got)
	})

	t.Run("fallback on error", func(t *testing.T) {
		mockClient := NewMockClient(t)
		mockClient.On("Generate", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("boom")).Once()

		qa := NewQA(mockClient)
		got := qa.SuggestQuestions(context.Background(), "q", nil)
		assert.Equal(t, FallbackSuggestions, got)
	})

	t.Run("fallback on blank output", func(t *testing.T) {
		mockClient := NewMockClient(t)
		mockClient.On("Generate", mock.Anything, mock.Anything, mock.Anything).
			Return(mockResponse("\n  \n"), nil).Once()

		qa := NewQA(mockClient)
		got := qa.SuggestQuestions(context.Background(), "q", nil)
		assert.Equal(t, FallbackSuggestions, got)

		// 返回副本，修改不影响默认值
		got[0] = "changed"
		assert.Equal(t, "Could you clarify your question?", FallbackSuggestions[0])
	})
}

// TestParseSuggestions 测试追问列表解析
func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"numbered", "1. A?\n2. B?", []string{"A?", "B?"}},
		{"bullets", "- A?\n* B?\n• C?", []string{"A?", "B?", "C?"}},
		{"bold markers", "1. **A?**", []string{"A?"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSuggestions(tt.in))
		})
	}
}

// TestSummarize 测试文档摘要
func TestSummarize(t *testing.T) {
	t.Run("uses leading chunks", func(t *testing.T) {
		mockClient := NewMockClient(t)
		mockClient.On("Generate", mock.Anything,
			"Summarize the following document:\n\nc1\n\nc2", mock.Anything).
			Return(mockResponse(" short summary "), nil).Once()

		qa := NewQA(mockClient, WithSummaryChunks(2))
		summary, err := qa.Summarize(context.Background(), []string{"c1", " ", "c2", "c3"})

		require.NoError(t, err)
		assert.Equal(t, "short summary", summary)
	})

	t.Run("nothing to summarize", func(t *testing.T) {
		mockClient := NewMockClient(t)
		qa := NewQA(mockClient)

		_, err := qa.Summarize(context.Background(), []string{"", "  "})
		assert.ErrorIs(t, err, ErrNothingToSummarize)
	})
}
