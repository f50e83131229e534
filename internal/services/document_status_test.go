package services

import (
	"context"
	"testing"

	"github.com/fyerfyer/pdf-qa/internal/models"
	"github.com/fyerfyer/pdf-qa/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStatusManager(t *testing.T) *DocumentStatusManager {
	db := setupTestDB(t)
	return NewDocumentStatusManager(repository.NewDocumentRepositoryWithDB(db), nil)
}

func TestDocumentStatusManager_Lifecycle(t *testing.T) {
	m := newStatusManager(t)
	ctx := context.Background()

	doc := &models.Document{ID: "doc-1", FileName: "Report.PDF", FilePath: "2024/01/01/doc-1.pdf", FileSize: 10}
	require.NoError(t, m.MarkAsUploaded(ctx, doc))
	assert.Equal(t, "pdf", doc.FileType)

	status, err := m.GetStatus(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusUploaded, status)

	require.NoError(t, m.MarkAsProcessing(ctx, "doc-1"))
	saved, err := m.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusProcessing, saved.Status)
	assert.Equal(t, models.StageExtract, saved.Stage)
	assert.Equal(t, 10, saved.Progress)

	require.NoError(t, m.SetStage(ctx, "doc-1", models.StageIndex))
	require.NoError(t, m.MarkAsCompleted(ctx, "doc-1", repository.ProcessResult{PageCount: 2, ChunkCount: 5}))

	saved, err = m.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, saved.Status)
	assert.Equal(t, 5, saved.ChunkCount)
	assert.NotNil(t, saved.ProcessedAt)

	assert.ErrorIs(t, m.MarkAsCompleted(ctx, "doc-1", repository.ProcessResult{}), ErrInvalidTransition)
	assert.ErrorIs(t, m.MarkAsFailed(ctx, "doc-1", "late failure"), ErrInvalidTransition)

	require.NoError(t, m.DeleteDocument(ctx, "doc-1"))
	_, err = m.GetStatus(ctx, "doc-1")
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)
}

func TestDocumentStatusManager_FailAndRetry(t *testing.T) {
	m := newStatusManager(t)
	ctx := context.Background()

	require.NoError(t, m.MarkAsUploaded(ctx, &models.Document{ID: "doc-1", FileName: "a.txt", FilePath: "a.txt"}))
	assert.ErrorIs(t, m.MarkAsCompleted(ctx, "doc-1", repository.ProcessResult{}), ErrInvalidTransition)

	require.NoError(t, m.MarkAsProcessing(ctx, "doc-1"))
	require.NoError(t, m.MarkAsFailed(ctx, "doc-1", "parse error"))

	saved, err := m.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "parse error", saved.Error)

	require.NoError(t, m.MarkAsProcessing(ctx, "doc-1"), "failed documents can be retried")
	saved, err = m.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, saved.Error)

	assert.ErrorIs(t, m.MarkAsProcessing(ctx, "missing"), models.ErrDocumentNotFound)
}

func TestDocumentStatusManager_List(t *testing.T) {
	m := newStatusManager(t)
	ctx := context.Background()

	require.NoError(t, m.MarkAsUploaded(ctx, &models.Document{ID: "a", FileName: "a.pdf", FilePath: "a.pdf"}))
	require.NoError(t, m.MarkAsUploaded(ctx, &models.Document{ID: "b", FileName: "b.md", FilePath: "b.md"}))
	require.NoError(t, m.MarkAsProcessing(ctx, "b"))

	docs, total, err := m.ListDocuments(ctx, 0, 10, repository.ListFilter{Status: models.DocStatusProcessing})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "b", docs[0].ID)
}

func TestValidateStateTransition(t *testing.T) {
	tests := []struct {
		from, to models.DocumentStatus
		ok       bool
	}{
		{models.DocStatusUploaded, models.DocStatusProcessing, true},
		{models.DocStatusUploaded, models.DocStatusCompleted, false},
		{models.DocStatusProcessing, models.DocStatusProcessing, true},
		{models.DocStatusProcessing, models.DocStatusCompleted, true},
		{models.DocStatusCompleted, models.DocStatusProcessing, true},
		{models.DocStatusCompleted, models.DocStatusFailed, false},
		{models.DocStatusFailed, models.DocStatusProcessing, true},
		{models.DocStatusFailed, models.DocStatusCompleted, false},
	}
	for _, tt := range tests {
		err := ValidateStateTransition(tt.from, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tt.from, tt.to)
		}
	}
}
