package document

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/reader"
	"github.com/tsawler/tabula/tables"
	"github.com/tsawler/tabula/text"
)

// Table 页面中识别出的表格，第一行作为表头
type Table struct {
	Page    int        `json:"page"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Markdown 以 Markdown 表格输出
func (t Table) Markdown() string {
	grid := t.grid()
	if grid == nil {
		return ""
	}
	return grid.ToMarkdown()
}

// CSV 以 CSV 格式输出，包含表头行
func (t Table) CSV() string {
	grid := t.grid()
	if grid == nil {
		return ""
	}
	return grid.ToCSV()
}

// grid 转换为等宽的单元格矩阵，短行补空
func (t Table) grid() *model.Table {
	cols := len(t.Headers)
	for _, row := range t.Rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	if cols == 0 {
		return nil
	}

	grid := model.NewTable(len(t.Rows)+1, cols)
	for j, h := range t.Headers {
		grid.Rows[0][j].Text = h
		grid.Rows[0][j].IsHeader = true
	}
	for i, row := range t.Rows {
		for j, cell := range row {
			grid.Rows[i+1][j].Text = cell
		}
	}
	return grid
}

// TablesOnPage 返回给定页码上的表格
func (e *Extraction) TablesOnPage(page int) []Table {
	var result []Table
	for _, t := range e.Tables {
		if t.Page == page {
			result = append(result, t)
		}
	}
	return result
}

// tableDetector 按文本片段的几何位置识别表格
type tableDetector struct {
	detector *tables.GeometricDetector
}

func newTableDetector() *tableDetector {
	return &tableDetector{detector: tables.NewGeometricDetector()}
}

// detect 识别单页文本片段中的表格
func (d *tableDetector) detect(pageNum int, fragments []text.TextFragment, width, height float64) ([]Table, error) {
	page := model.NewPage(width, height)
	page.Number = pageNum
	for _, f := range fragments {
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		page.RawText = append(page.RawText, model.TextFragment{
			Text:     f.Text,
			BBox:     model.BBox{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height},
			FontSize: f.FontSize,
			FontName: f.FontName,
		})
	}

	detected, err := d.detector.Detect(page)
	if err != nil {
		return nil, err
	}

	var result []Table
	for _, t := range detected {
		if table, ok := compactTable(pageNum, t); ok {
			result = append(result, table)
		}
	}
	return result, nil
}

// pageTables 读取第 index 页（从0开始）并识别表格，库内部的 panic 转换为错误
func (d *tableDetector) pageTables(r *reader.Reader, index int) (found []Table, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while detecting tables on page %d: %v", index+1, rec)
		}
	}()

	page, err := r.GetPage(index)
	if err != nil {
		return nil, err
	}
	fragments, err := r.ExtractTextFragments(page)
	if err != nil {
		return nil, err
	}
	if len(fragments) == 0 {
		return nil, nil
	}
	width, err := page.Width()
	if err != nil {
		return nil, err
	}
	height, err := page.Height()
	if err != nil {
		return nil, err
	}
	return d.detect(index+1, fragments, width, height)
}

// compactTable 去掉全空的行和列
// 几何网格会把行间距和列间距也切成单元格，压缩后不足两行两列的结果丢弃
func compactTable(pageNum int, t *model.Table) (Table, bool) {
	cols := t.ColCount()
	keepCol := make([]bool, cols)
	var filled [][]model.Cell
	for _, row := range t.Rows {
		hasText := false
		for j, cell := range row {
			if j < cols && strings.TrimSpace(cell.Text) != "" {
				keepCol[j] = true
				hasText = true
			}
		}
		if hasText {
			filled = append(filled, row)
		}
	}

	var grid [][]string
	for _, row := range filled {
		var cells []string
		for j := 0; j < cols; j++ {
			if !keepCol[j] {
				continue
			}
			cell := ""
			if j < len(row) {
				cell = strings.TrimSpace(row[j].Text)
			}
			cells = append(cells, cell)
		}
		grid = append(grid, cells)
	}

	if len(grid) < 2 || len(grid[0]) < 2 {
		return Table{}, false
	}
	return Table{Page: pageNum, Headers: grid[0], Rows: grid[1:]}, true
}

// extractTables 逐页识别表格，单页失败只记录日志
func (p *PDFExtractor) extractTables(ctx context.Context, filePath string) ([]Table, error) {
	r, err := reader.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer r.Close()

	pageCount, err := r.PageCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}

	detector := newTableDetector()
	var result []Table
	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		found, err := detector.pageTables(r, i)
		if err != nil {
			p.options.Logger.WithFields(logrus.Fields{
				"file":  filePath,
				"page":  i + 1,
				"error": err.Error(),
			}).Warn("Failed to detect tables on page")
			continue
		}
		result = append(result, found...)
	}
	return result, nil
}
