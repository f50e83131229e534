package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyerfyer/pdf-qa/internal/document"
	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestChunkCommand(t *testing.T) {
	p := filepath.Join(t.TempDir(), "notes.txt")
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)
	require.NoError(t, os.WriteFile(p, []byte(text), 0644))

	out, err := runCmd(t, "chunk", p, "--max-chars", "200", "--overlap", "20", "--json")
	require.NoError(t, err)

	var chunks []document.Chunk
	require.NoError(t, json.Unmarshal([]byte(out), &chunks))
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.Equal(t, 1, c.Page)
		assert.LessOrEqual(t, len([]rune(c.Text)), 220)
	}

	out, err = runCmd(t, "chunk", p)
	require.NoError(t, err)
	assert.Contains(t, out, "1 pages, 1 chunks")
}

func TestChunkCommandTables(t *testing.T) {
	p := filepath.Join(t.TempDir(), "prices.pdf")
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Courier", "", 10)
	pdf.AddPage()
	for i, row := range [][]string{{"Item", "Cost"}, {"Nuts", "0.10"}, {"Bolt", "2.50"}} {
		for j, cell := range row {
			pdf.Text(50+float64(j)*48, 100+float64(i)*20, cell)
		}
	}
	require.NoError(t, pdf.OutputFileAndClose(p))

	out, err := runCmd(t, "chunk", p, "--tables")
	require.NoError(t, err)
	assert.Contains(t, out, "[table 0] page 1")
	assert.Contains(t, out, "| Item | Cost |\n|---|---|\n| Nuts | 0.10 |\n| Bolt | 2.50 |\n")

	out, err = runCmd(t, "chunk", p)
	require.NoError(t, err)
	assert.NotContains(t, out, "[table")
}

func TestChunkCommandErrors(t *testing.T) {
	_, err := runCmd(t, "chunk")
	assert.Error(t, err)

	p := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0644))
	_, err = runCmd(t, "chunk", p, "--max-chars", "0")
	assert.ErrorIs(t, err, document.ErrInvalidChunkConfig)

	_, err = runCmd(t, "chunk", filepath.Join(t.TempDir(), "image.bmp"))
	assert.Error(t, err)
}
