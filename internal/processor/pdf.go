// internal/processor/pdf.go
package processor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"paper-citations-rag/internal/locate"
	"paper-citations-rag/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	// DefaultChunkSize is the target chunk length in bytes
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is how much consecutive chunks share
	DefaultChunkOverlap = 200

	// pageLookupLen is how much of a chunk is used to find its page
	pageLookupLen = 200
)

// PDFProcessor handles PDF processing
type PDFProcessor struct {
	ChunkSize    int
	ChunkOverlap int
}

// ProcessedDocument is a PDF split into page texts and passages
type ProcessedDocument struct {
	Name     string
	Path     string
	FileSize int64
	Pages    []string
	Chunks   []models.TextChunk
}

// NewPDFProcessor creates a new PDF processor
func NewPDFProcessor(chunkSize, chunkOverlap int) *PDFProcessor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &PDFProcessor{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
	}
}

// ExtractPages returns the plain text of every page, in page order. Pages
// without content come back as empty strings so page numbers stay aligned.
func (p *PDFProcessor) ExtractPages(filePath string) ([]string, error) {
	doc, err := OpenDocument(filePath)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	return doc.PageTexts()
}

// ProcessPDF extracts the pages of a PDF and cuts the text into chunks. The
// document name defaults to the file name without its extension.
func (p *PDFProcessor) ProcessPDF(ctx context.Context, filePath, name string) (*ProcessedDocument, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, eris.Wrap(err, "processor: stat pdf")
	}

	pages, err := p.ExtractPages(filePath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}

	texts := p.ChunkText(strings.Join(pages, "\n\n"))
	chunks := make([]models.TextChunk, len(texts))
	for i, text := range texts {
		page, _ := locate.FindPage(pages, chunkHead(text))
		chunks[i] = models.TextChunk{
			Index:      i,
			Content:    text,
			PageNumber: page,
		}
	}

	zap.L().Info("processor: pdf processed",
		zap.String("name", name),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(chunks)),
	)

	return &ProcessedDocument{
		Name:     name,
		Path:     filePath,
		FileSize: info.Size(),
		Pages:    pages,
		Chunks:   chunks,
	}, nil
}

// chunkHead returns the head of a chunk, cut on a rune boundary
func chunkHead(text string) string {
	if len(text) <= pageLookupLen {
		return text
	}
	return text[:runeFloor(text, pageLookupLen)]
}

// runeFloor moves i back to the start of the rune it falls in
func runeFloor(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

func pageFonts(page pdf.Page) map[string]*pdf.Font {
	fonts := make(map[string]*pdf.Font)
	for _, name := range page.Fonts() {
		font := page.Font(name)
		fonts[name] = &font
	}
	return fonts
}
