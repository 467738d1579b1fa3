package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"paper-citations-rag/internal/app"
	"paper-citations-rag/internal/config"
)

var (
	pdfPath      string
	pdfDir       string
	docName      string
	chunkSize    int
	chunkOverlap int
)

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "Index PDF papers for cited question answering",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		defer func() { _ = zap.L().Sync() }()

		if chunkSize > 0 {
			cfg.Chunking.Size = chunkSize
		}
		if chunkOverlap >= 0 {
			cfg.Chunking.Overlap = chunkOverlap
		}

		ctx := cmd.Context()
		env, err := app.New(ctx, cfg, "index")
		if err != nil {
			return err
		}
		defer env.Close()

		if pdfDir != "" {
			return indexDir(cmd, env)
		}

		if _, err := os.Stat(pdfPath); err != nil {
			return eris.Wrapf(err, "pdf file %s", pdfPath)
		}

		zap.L().Info("indexer: processing pdf",
			zap.String("path", pdfPath),
			zap.String("embedding_model", cfg.Ollama.EmbeddingModel),
			zap.Int("max_concurrent", cfg.Embedding.MaxConcurrent),
		)

		start := time.Now()
		doc, err := env.Service.Ingest(ctx, pdfPath, docName, progressLogger(start))
		if err != nil {
			return err
		}

		zap.L().Info("indexer: done",
			zap.String("document_id", doc.ID),
			zap.String("name", doc.Name),
			zap.Int("pages", doc.PageCount),
			zap.Int("chunks", doc.ChunkCount),
			zap.Duration("elapsed", time.Since(start)),
		)
		fmt.Printf("Indexed %q as %s (%d pages, %d chunks)\n", doc.Name, doc.ID, doc.PageCount, doc.ChunkCount)
		return nil
	},
}

// indexDir indexes every PDF in pdfDir, skipping names already indexed
func indexDir(cmd *cobra.Command, env *app.Env) error {
	zap.L().Info("indexer: processing directory", zap.String("dir", pdfDir))

	start := time.Now()
	loggers := map[string]func(processed, total int){}
	report, err := env.Service.IngestDir(cmd.Context(), pdfDir, func(file string, processed, total int) {
		log, ok := loggers[file]
		if !ok {
			log = progressLogger(time.Now())
			loggers[file] = log
		}
		log(processed, total)
	})
	if err != nil {
		return err
	}

	zap.L().Info("indexer: directory done",
		zap.Int("indexed", report.Processed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	fmt.Printf("Indexed %d, skipped %d, failed %d\n", report.Processed, report.Skipped, report.Failed)
	if report.Failed > 0 {
		return eris.Errorf("%d of the PDFs in %s failed to index", report.Failed, pdfDir)
	}
	return nil
}

// progressLogger reports embedding progress with an estimate of the time left
func progressLogger(start time.Time) func(processed, total int) {
	return func(processed, total int) {
		if processed != total && processed%10 != 0 {
			return
		}
		elapsed := time.Since(start)
		estimatedTotal := elapsed * time.Duration(total) / time.Duration(processed)

		zap.L().Info("indexer: embedding progress",
			zap.Int("processed", processed),
			zap.Int("total", total),
			zap.Float64("percent", float64(processed)/float64(total)*100),
			zap.Duration("remaining", (estimatedTotal-elapsed).Round(time.Second)),
		)
	}
}

func init() {
	rootCmd.Flags().StringVar(&pdfPath, "pdf", "", "path to PDF file")
	rootCmd.Flags().StringVar(&pdfDir, "dir", "", "directory whose PDF files are all indexed")
	rootCmd.Flags().StringVar(&docName, "name", "", "document name (default: file name without extension)")
	rootCmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "characters per chunk (default from config)")
	rootCmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", -1, "characters shared by neighbouring chunks (default from config)")
	rootCmd.MarkFlagsOneRequired("pdf", "dir")
	rootCmd.MarkFlagsMutuallyExclusive("pdf", "dir")
	rootCmd.MarkFlagsMutuallyExclusive("name", "dir")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
