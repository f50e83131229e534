package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyerfyer/pdf-qa/internal/document"
	"github.com/spf13/cobra"
)

func newChunkCmd() *cobra.Command {
	var (
		maxChars   int
		overlap    int
		asJSON     bool
		withTables bool
	)
	cmd := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Extract a document and print its page-tagged chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			splitter, err := document.NewRecursiveSplitter(document.SplitterConfig{
				MaxChars: maxChars,
				Overlap:  overlap,
			}, nil)
			if err != nil {
				return err
			}

			extractor, err := document.NewExtractor(args[0],
				document.WithImages(false),
				document.WithTables(withTables),
			)
			if err != nil {
				return err
			}
			extraction, err := extractor.Extract(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			chunks := document.NewAssembler(splitter).Assemble(extraction.Pages)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(chunks)
			}
			fmt.Fprintf(out, "%d pages, %d chunks\n", extraction.PageCount, len(chunks))
			for i, c := range chunks {
				fmt.Fprintf(out, "\n[%d] page %d, %d chars\n%s\n", i, c.Page, len([]rune(c.Text)), strings.TrimSpace(c.Text))
			}
			for i, t := range extraction.Tables {
				fmt.Fprintf(out, "\n[table %d] page %d\n%s", i, t.Page, t.Markdown())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxChars, "max-chars", document.DefaultMaxChars, "maximum characters per chunk before overlap")
	cmd.Flags().IntVar(&overlap, "overlap", document.DefaultOverlap, "characters copied from the previous chunk")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print chunks as JSON")
	cmd.Flags().BoolVar(&withTables, "tables", false, "detect tables and print them as Markdown")
	return cmd
}
