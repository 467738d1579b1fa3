package processor

import (
	"context"
	"os"
	"strings"
	"sync"

	"paper-citations-rag/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// PDFDocument is an open PDF that serves page texts and positioned text rows.
// It satisfies locate.FragmentSource.
type PDFDocument struct {
	file   *os.File
	reader *pdf.Reader

	mu    sync.Mutex
	texts []string
}

// OpenDocument opens a PDF for page lookups. Close releases the file.
func OpenDocument(path string) (*PDFDocument, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "processor: open %s", path)
	}
	return &PDFDocument{file: f, reader: r}, nil
}

// PageCount returns the number of pages
func (d *PDFDocument) PageCount() int {
	return d.reader.NumPage()
}

// PageTexts returns the plain text of every page, extracting it once
func (d *PDFDocument) PageTexts() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.texts != nil {
		return d.texts, nil
	}

	texts := make([]string, d.reader.NumPage())
	for i := range texts {
		page := d.reader.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(pageFonts(page))
		if err != nil {
			return nil, eris.Wrapf(err, "processor: extract text of page %d", i+1)
		}
		// text[] columns reject NUL bytes
		texts[i] = strings.ReplaceAll(text, "\x00", "")
	}
	d.texts = texts
	return texts, nil
}

// Fragments returns one fragment per text row of a 1-based page, top to bottom
func (d *PDFDocument) Fragments(ctx context.Context, page int) ([]models.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 || page > d.reader.NumPage() {
		return nil, eris.Errorf("processor: page %d out of range", page)
	}

	p := d.reader.Page(page)
	if p.V.IsNull() {
		return nil, nil
	}

	d.mu.Lock()
	rows, err := p.GetTextByRow()
	d.mu.Unlock()
	if err != nil {
		return nil, eris.Wrapf(err, "processor: read rows of page %d", page)
	}

	fragments := make([]models.Fragment, 0, len(rows))
	for _, row := range rows {
		if f, ok := rowFragment(row); ok {
			fragments = append(fragments, f)
		}
	}
	return fragments, nil
}

// Close closes the underlying file
func (d *PDFDocument) Close() error {
	return d.file.Close()
}

// rowFragment merges the text runs of a row into one fragment spanning them
func rowFragment(row *pdf.Row) (models.Fragment, bool) {
	if row == nil || len(row.Content) == 0 {
		return models.Fragment{}, false
	}

	var b strings.Builder
	for _, t := range row.Content {
		b.WriteString(t.S)
	}

	first, last := row.Content[0], row.Content[len(row.Content)-1]
	return models.Fragment{
		Text:   b.String(),
		X:      first.X,
		Y:      first.Y,
		Width:  last.X + last.W - first.X,
		Height: first.FontSize,
	}, true
}
