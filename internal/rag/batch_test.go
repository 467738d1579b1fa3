package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-citations-rag/internal/database"
	"paper-citations-rag/internal/models"
	"paper-citations-rag/internal/processor"
)

func TestIngestDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.pdf", "c.PDF", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.pdf"), 0o755))

	store := &fakeStore{docs: []models.Document{{ID: "doc-b", Name: "b"}}}
	proc := &fakeProcessor{
		doc: &processor.ProcessedDocument{
			Name:   "paper",
			Pages:  []string{"one"},
			Chunks: []models.TextChunk{{Content: "a"}},
		},
		failing: map[string]bool{"c.PDF": true},
	}
	svc := NewService(store, &fakeEmbedder{}, nil, proc)

	var progressed []string
	report, err := svc.IngestDir(context.Background(), dir, func(file string, _, _ int) {
		progressed = append(progressed, file)
	})

	require.NoError(t, err)
	assert.Equal(t, BatchReport{Processed: 1, Skipped: 1, Failed: 1}, report)
	assert.Equal(t, []string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "c.PDF")}, proc.processed)
	assert.Equal(t, []string{"a.pdf"}, progressed)
	assert.Len(t, store.stored, 1)
}

func TestIngestDir_MissingDir(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeEmbedder{}, nil, &fakeProcessor{})

	_, err := svc.IngestDir(context.Background(), filepath.Join(t.TempDir(), "absent"), nil)

	assert.Error(t, err)
}

func TestBackfillPageTexts(t *testing.T) {
	store := &fakeStore{
		docs: []models.Document{
			{ID: "has-pages", Name: "done", FilePath: "uploads/done.pdf"},
			{ID: "no-pages", Name: "old", FilePath: "uploads/old.pdf"},
			{ID: "lost-file", Name: "lost", FilePath: "uploads/lost.pdf"},
		},
		pages: map[string][]string{"has-pages": {"p1"}},
		pageErrs: map[string]error{
			"no-pages":  database.ErrNoPageTexts,
			"lost-file": database.ErrNoPageTexts,
		},
	}
	proc := &fakeProcessor{pages: map[string][]string{"uploads/old.pdf": {"first", "second"}}}
	svc := NewService(store, nil, nil, proc)

	report, err := svc.BackfillPageTexts(context.Background())

	require.NoError(t, err)
	assert.Equal(t, BatchReport{Processed: 1, Skipped: 1, Failed: 1}, report)
	assert.Equal(t, map[string][]string{"no-pages": {"first", "second"}}, store.setPages)
}

func TestBackfillPageTexts_StoreError(t *testing.T) {
	store := &fakeStore{
		docs:     []models.Document{{ID: "doc-1"}},
		pageErrs: map[string]error{"doc-1": errors.New("connection reset")},
	}
	svc := NewService(store, nil, nil, &fakeProcessor{})

	_, err := svc.BackfillPageTexts(context.Background())

	assert.ErrorContains(t, err, "connection reset")
	assert.Nil(t, store.setPages)
}
