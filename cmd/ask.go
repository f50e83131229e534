package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <file> <question>",
		Short: "Answer one question about a local document without running the server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			// 单次问答只使用内存数据库、内存向量库和临时目录
			tmp, err := os.MkdirTemp("", "pdfqa-ask-*")
			if err != nil {
				return err
			}
			defer os.RemoveAll(tmp)
			cfg.Database.DSN = fmt.Sprintf("file:pdfqa_ask_%d?mode=memory&cache=shared", time.Now().UnixNano())
			cfg.Storage.Type = "local"
			cfg.Storage.Path = tmp
			cfg.VectorDB.Type = "memory"
			cfg.Queue.Enable = false
			cfg.Cache.Enable = false

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			doc, err := a.documents.Upload(ctx, f, filepath.Base(args[0]), nil)
			if err != nil {
				return err
			}
			pages, chunks, err := a.documents.ProcessDocument(ctx, doc.ID, doc.FilePath)
			if err != nil {
				return err
			}
			logger.WithFields(map[string]interface{}{"pages": pages, "chunks": chunks}).Debug("Document indexed")

			result, err := a.qa.Ask(ctx, doc.ID, args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.Answer)
			if len(result.Pages) > 0 {
				refs := make([]string, len(result.Pages))
				for i, p := range result.Pages {
					refs[i] = fmt.Sprint(p)
				}
				fmt.Fprintf(out, "\nPages: %s\n", strings.Join(refs, ", "))
			}
			for _, img := range result.Images {
				fmt.Fprintf(out, "Image on page %d: %s\n", img.Page, img.Path)
			}
			if len(result.Suggestions) > 0 {
				fmt.Fprintln(out, "\nYou might also ask:")
				for _, s := range result.Suggestions {
					fmt.Fprintf(out, "  - %s\n", s)
				}
			}
			return nil
		},
	}
}
