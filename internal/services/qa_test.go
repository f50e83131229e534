package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fyerfyer/pdf-qa/internal/document"
	"github.com/fyerfyer/pdf-qa/internal/llm"
	"github.com/fyerfyer/pdf-qa/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	answerMarker  = "Answer ONLY using the provided context"
	suggestMarker = "follow-up questions"
)

func setupQADocument(t *testing.T) (*testEnv, string) {
	env := newTestEnv(t, WithExtractOptions(document.WithOCR(fakeOCR{text: "gamma figure caption"})))
	content := buildPDF(t, []string{
		"The alpha section introduces the project.",
		"The beta section explains the rollout plan.",
	}, true)
	return env, env.uploadAndProcess(t, "plan.pdf", content)
}

func TestQAService_Ask(t *testing.T) {
	env, docID := setupQADocument(t)
	ctx := context.Background()

	env.expectGenerate(answerMarker, "The rollout plan is on page 2.").Once()
	env.expectGenerate(suggestMarker, "1. What is alpha?\n2. What does the figure show?\n3) Who owns the rollout?").Once()

	result, err := env.qa.Ask(ctx, docID, "What is the beta rollout?")
	require.NoError(t, err)
	assert.Equal(t, "The rollout plan is on page 2.", result.Answer)
	assert.Equal(t, []int{1, 2, 3}, result.Pages)
	require.Len(t, result.Sources, 3)
	assert.Equal(t, 2, result.Sources[0].Page, "best match first")
	assert.Equal(t, []string{"What is alpha?", "What does the figure show?", "Who owns the rollout?"}, result.Suggestions)
	require.Len(t, result.Images, 1)
	assert.Equal(t, 3, result.Images[0].Page)
	assert.Equal(t, "image/png", result.Images[0].MimeType)
	assert.False(t, result.Cached)
	assert.NotZero(t, result.RecordID)

	// 问题大小写和空白不同也命中缓存，不再调用模型
	cached, err := env.qa.Ask(ctx, docID, "  what is the BETA rollout?  ")
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, result.Answer, cached.Answer)
	assert.Equal(t, result.Pages, cached.Pages)
	assert.Equal(t, result.Suggestions, cached.Suggestions)
	assert.Len(t, cached.Images, 1)

	records, total, err := env.qa.History(ctx, docID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.True(t, records[0].Cached)
	assert.JSONEq(t, `[1,2,3]`, string(records[1].Pages))
}

func TestQAService_CacheInvalidatedOnReprocess(t *testing.T) {
	env, docID := setupQADocument(t)
	ctx := context.Background()

	env.expectGenerate(answerMarker, "first").Once()
	env.expectGenerate(answerMarker, "second").Once()
	env.expectGenerate(suggestMarker, "1. Next?").Twice()

	first, err := env.qa.Ask(ctx, docID, "alpha?")
	require.NoError(t, err)
	assert.Equal(t, "first", first.Answer)

	doc, err := env.service.GetDocument(ctx, docID)
	require.NoError(t, err)
	_, _, err = env.service.ProcessDocument(ctx, docID, doc.FilePath)
	require.NoError(t, err)

	second, err := env.qa.Ask(ctx, docID, "alpha?")
	require.NoError(t, err)
	assert.Equal(t, "second", second.Answer)
	assert.False(t, second.Cached)
}

func TestQAService_SuggestionFallback(t *testing.T) {
	env, docID := setupQADocument(t)

	env.expectGenerate(answerMarker, "Alpha introduces the project (page 1).").Once()
	env.llm.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, suggestMarker)
	}), mock.Anything).Return(nil, errors.New("rate limited")).Once()

	result, err := env.qa.Ask(context.Background(), docID, "alpha?")
	require.NoError(t, err)
	assert.Equal(t, llm.FallbackSuggestions, result.Suggestions)
}

func TestQAService_AskErrors(t *testing.T) {
	env, docID := setupQADocument(t)
	ctx := context.Background()

	_, err := env.qa.Ask(ctx, docID, "   ")
	assert.ErrorIs(t, err, llm.ErrEmptyQuestion)

	_, err = env.qa.Ask(ctx, "missing", "alpha?")
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)

	pending, err := env.service.Upload(ctx, strings.NewReader("beta"), "pending.txt", nil)
	require.NoError(t, err)
	_, err = env.qa.Ask(ctx, pending.ID, "beta?")
	assert.ErrorIs(t, err, models.ErrDocumentNotReady)

	env.llm.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, answerMarker)
	}), mock.Anything).Return(nil, errors.New("model unavailable")).Once()
	_, err = env.qa.Ask(ctx, docID, "alpha?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")

	env.embedder.fail = errors.New("embedding quota")
	_, err = env.qa.Ask(ctx, docID, "beta?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate embedding")

	_, total, err := env.qa.History(ctx, docID, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total, "failed questions are not recorded")
}

func TestQAService_HistoryMissingDocument(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.qa.History(context.Background(), "missing", 0, 10)
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)
}
