package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"paper-citations-rag/internal/database"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BatchReport counts what a bulk operation did with each document
type BatchReport struct {
	Processed int
	Skipped   int
	Failed    int
}

// IngestDir indexes every .pdf file directly inside dir, in name order.
// Files whose name is already indexed are skipped, and a file that fails is
// logged and counted without stopping the rest.
func (s *Service) IngestDir(ctx context.Context, dir string, progress func(file string, processed, total int)) (BatchReport, error) {
	var report BatchReport

	entries, err := os.ReadDir(dir)
	if err != nil {
		return report, eris.Wrapf(err, "rag: read %s", dir)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	docs, err := s.Store.ListDocuments(ctx)
	if err != nil {
		return report, err
	}
	known := make(map[string]bool, len(docs))
	for _, d := range docs {
		known[d.Name] = true
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		name := strings.TrimSuffix(file, filepath.Ext(file))
		if known[name] {
			zap.L().Info("rag: already indexed, skipping", zap.String("file", file))
			report.Skipped++
			continue
		}

		var onProgress func(processed, total int)
		if progress != nil {
			onProgress = func(processed, total int) { progress(file, processed, total) }
		}
		if _, err := s.Ingest(ctx, filepath.Join(dir, file), name, onProgress); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			zap.L().Error("rag: index failed", zap.String("file", file), zap.Error(err))
			report.Failed++
			continue
		}
		known[name] = true
		report.Processed++
	}

	return report, nil
}

// BackfillPageTexts re-extracts the page texts of documents stored without
// them. Documents that already have page texts are skipped.
func (s *Service) BackfillPageTexts(ctx context.Context) (BatchReport, error) {
	var report BatchReport

	docs, err := s.Store.ListDocuments(ctx)
	if err != nil {
		return report, err
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		_, err := s.Store.PageTexts(ctx, doc.ID)
		if err == nil {
			report.Skipped++
			continue
		}
		if !errors.Is(err, database.ErrNoPageTexts) {
			return report, err
		}

		log := zap.L().With(zap.String("document_id", doc.ID), zap.String("name", doc.Name))
		pages, err := s.Processor.ExtractPages(doc.FilePath)
		if err != nil {
			log.Warn("rag: backfill extract failed", zap.Error(err))
			report.Failed++
			continue
		}
		if err := s.Store.SetPageTexts(ctx, doc.ID, pages); err != nil {
			log.Warn("rag: backfill update failed", zap.Error(err))
			report.Failed++
			continue
		}
		log.Info("rag: page texts restored", zap.Int("pages", len(pages)))
		report.Processed++
	}

	return report, nil
}
