package document

import (
	"context"
	"os"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/text"
)

var priceTable = [][]string{
	{"Item", "Unit", "Cost"},
	{"Nuts", "Each", "0.10"},
	{"Bolt", "Pack", "2.50"},
}

// createTablePDF 生成第1页含一个等宽字体表格和一段正文的PDF
func createTablePDF(t *testing.T, rows [][]string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "pdfqa-table-*.pdf")
	require.NoError(t, err)
	defer tmpFile.Close()

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Courier", "", 10)
	pdf.AddPage()
	for i, row := range rows {
		for j, cell := range row {
			pdf.Text(50+float64(j)*48, 100+float64(i)*20, cell)
		}
	}
	pdf.Text(50, 300, "Prices are listed without tax.")
	require.NoError(t, pdf.Output(tmpFile))
	return tmpFile.Name()
}

// gridFragments 按行列摆放单元格文本，行距20、列距48、字高10
func gridFragments(rows [][]string, top float64) []text.TextFragment {
	var fragments []text.TextFragment
	for i, row := range rows {
		for j, cell := range row {
			fragments = append(fragments, text.TextFragment{
				Text:     cell,
				X:        50 + float64(j)*48,
				Y:        top - float64(i)*20,
				Width:    24,
				Height:   10,
				FontName: "F1",
				FontSize: 10,
			})
		}
	}
	return fragments
}

func TestTableDetector(t *testing.T) {
	detector := newTableDetector()

	t.Run("aligned grid", func(t *testing.T) {
		fragments := gridFragments(priceTable, 700)

		found, err := detector.detect(3, fragments, 595, 842)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, 3, found[0].Page)
		assert.Equal(t, priceTable[0], found[0].Headers)
		assert.Equal(t, priceTable[1:], found[0].Rows)
	})

	t.Run("prose is not a table", func(t *testing.T) {
		fragments := []text.TextFragment{
			{Text: "A title line", X: 50, Y: 760, Width: 120, Height: 14, FontSize: 14},
			{Text: "Body text that runs across the page.", X: 50, Y: 600, Width: 300, Height: 10, FontSize: 10},
			{Text: "A second sentence follows.", X: 50, Y: 585, Width: 210, Height: 10, FontSize: 10},
		}

		found, err := detector.detect(1, fragments, 595, 842)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("blank fragments ignored", func(t *testing.T) {
		fragments := gridFragments(priceTable, 700)
		fragments = append(fragments, text.TextFragment{Text: "  ", X: 400, Y: 650, Width: 10, Height: 10})

		found, err := detector.detect(1, fragments, 595, 842)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Len(t, found[0].Headers, 3)
	})

	t.Run("no fragments", func(t *testing.T) {
		found, err := detector.detect(1, nil, 595, 842)
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

func TestCompactTable(t *testing.T) {
	t.Run("drops gap rows and columns", func(t *testing.T) {
		grid := model.NewTable(5, 5)
		for i, row := range priceTable {
			for j, cell := range row {
				grid.Rows[i*2][j*2].Text = cell
			}
		}
		grid.Rows[2][4].Text = " 0.10 "

		table, ok := compactTable(2, grid)
		require.True(t, ok)
		assert.Equal(t, 2, table.Page)
		assert.Equal(t, []string{"Item", "Unit", "Cost"}, table.Headers)
		assert.Equal(t, [][]string{{"Nuts", "Each", "0.10"}, {"Bolt", "Pack", "2.50"}}, table.Rows)
	})

	t.Run("single column discarded", func(t *testing.T) {
		grid := model.NewTable(3, 3)
		grid.Rows[0][1].Text = "one"
		grid.Rows[2][1].Text = "two"

		_, ok := compactTable(1, grid)
		assert.False(t, ok)
	})

	t.Run("single row discarded", func(t *testing.T) {
		grid := model.NewTable(3, 3)
		grid.Rows[1][0].Text = "a"
		grid.Rows[1][2].Text = "b"

		_, ok := compactTable(1, grid)
		assert.False(t, ok)
	})
}

func TestTableFormats(t *testing.T) {
	table := Table{
		Page:    1,
		Headers: []string{"Item", "Cost"},
		Rows:    [][]string{{"Nuts", "0.10"}, {"Bolt, M6"}},
	}

	assert.Equal(t, "| Item | Cost |\n|---|---|\n| Nuts | 0.10 |\n| Bolt, M6 |  |\n", table.Markdown())
	assert.Equal(t, "Item,Cost\nNuts,0.10\n\"Bolt, M6\",\n", table.CSV())

	assert.Equal(t, "", Table{}.Markdown())
	assert.Equal(t, "", Table{}.CSV())
}

func TestPDFExtractorTables(t *testing.T) {
	ctx := context.Background()
	file := createTablePDF(t, priceTable)

	t.Run("tables per page", func(t *testing.T) {
		result, err := NewPDFExtractor(ExtractOptions{ExtractTables: true}).Extract(ctx, file)
		require.NoError(t, err)
		assert.Contains(t, result.Pages[1], "without tax")

		require.Len(t, result.Tables, 1)
		table := result.Tables[0]
		assert.Equal(t, 1, table.Page)
		assert.Equal(t, priceTable[0], table.Headers)
		assert.Equal(t, priceTable[1:], table.Rows)
		assert.Len(t, result.TablesOnPage(1), 1)
		assert.Empty(t, result.TablesOnPage(2))
	})

	t.Run("disabled", func(t *testing.T) {
		result, err := NewPDFExtractor(ExtractOptions{}).Extract(ctx, file)
		require.NoError(t, err)
		assert.Empty(t, result.Tables)
	})

	t.Run("enabled by default", func(t *testing.T) {
		extractor, err := NewExtractor(file, WithImages(false))
		require.NoError(t, err)

		result, err := extractor.Extract(ctx, file)
		require.NoError(t, err)
		assert.Len(t, result.Tables, 1)

		extractor, err = NewExtractor(file, WithImages(false), WithTables(false))
		require.NoError(t, err)
		result, err = extractor.Extract(ctx, file)
		require.NoError(t, err)
		assert.Empty(t, result.Tables)
	})
}
