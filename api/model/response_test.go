package model

import (
	"testing"

	"github.com/fyerfyer/pdf-qa/internal/document"
	"github.com/fyerfyer/pdf-qa/internal/models"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestConvertToDocumentInfo(t *testing.T) {
	doc := &models.Document{
		ID:         "doc-1",
		FileName:   "prices.pdf",
		Status:     models.DocStatusCompleted,
		PageCount:  2,
		ChunkCount: 4,
		Tags:       datatypes.JSON(`["catalog"]`),
		OCRPages:   datatypes.JSON(`[2]`),
		Tables:     datatypes.JSON(`[{"page":1,"headers":["Item","Cost"],"rows":[["Nuts","0.10"]]}]`),
	}

	info := ConvertToDocumentInfo(doc)
	assert.Equal(t, "doc-1", info.FileID)
	assert.Equal(t, []string{"catalog"}, info.Tags)
	assert.Equal(t, []int{2}, info.OCRPages)
	assert.Equal(t, []document.Table{{Page: 1, Headers: []string{"Item", "Cost"}, Rows: [][]string{{"Nuts", "0.10"}}}}, info.Tables)

	info = ConvertToDocumentInfo(&models.Document{ID: "doc-2"})
	assert.Equal(t, []string{}, info.Tags)
	assert.Nil(t, info.Tables)
}
