package models

import (
	"sort"
	"time"
)

// UnknownDocument is the document name used when a citation points outside the
// passage list handed to the model.
const UnknownDocument = "Unknown"

// Passage is one retrieved unit of source text supplied to the model
type Passage struct {
	ID            string  `json:"id"`
	DocumentID    string  `json:"document_id"`
	DocumentName  string  `json:"document_name"`
	SequenceIndex int     `json:"chunk_index"`
	Content       string  `json:"content"`
	Similarity    float64 `json:"similarity"`
}

// PassageSummary is the slimmed down passage kept with a conversation
type PassageSummary struct {
	ID            string  `json:"id"`
	DocumentName  string  `json:"document_name"`
	SequenceIndex int     `json:"chunk_index"`
	Similarity    float64 `json:"similarity"`
}

// Sentence is one punctuation-delimited sentence of a passage. StartChar and
// EndChar are byte offsets into the passage content.
type Sentence struct {
	ID        int    `json:"sentence_id"`
	Text      string `json:"text"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
}

// RawCitation is a citation as parsed from the model answer. SnippetStart and
// SnippetEnd index the final answer text, never the raw model output.
type RawCitation struct {
	SourceIndex   int    `json:"chunk_id"`
	SentenceRange string `json:"sentences_range"`
	Snippet       string `json:"answer_snippet"`
	SnippetStart  int    `json:"answer_snippet_start"`
	SnippetEnd    int    `json:"answer_snippet_end"`
}

// Citation is a RawCitation resolved against its source passage.
// SourceTextStart and SourceTextEnd are -1 when the sentence range matched nothing.
type Citation struct {
	RawCitation
	SourceText      string `json:"chunk_sentences_text"`
	SourceTextStart int    `json:"chunk_sentences_start"`
	SourceTextEnd   int    `json:"chunk_sentences_end"`
	DocumentName    string `json:"document_name"`
	PassageIndex    int    `json:"chunk_index"`
}

// Resolved reports whether the cited sentence range was found in the passage
func (c Citation) Resolved() bool {
	return c.SourceTextStart >= 0
}

// CitationBlock is the answer text plus its citations, in extraction order
type CitationBlock struct {
	Type       string     `json:"type"`
	AnswerText string     `json:"text"`
	Citations  []Citation `json:"citations"`
}

// NewCitationBlock builds a text block, normalising a nil citation list to empty
func NewCitationBlock(answer string, citations []Citation) *CitationBlock {
	if citations == nil {
		citations = []Citation{}
	}
	return &CitationBlock{
		Type:       "text",
		AnswerText: answer,
		Citations:  citations,
	}
}

// DisplayOrder returns a copy of the citations sorted by snippet start
func (b *CitationBlock) DisplayOrder() []Citation {
	out := make([]Citation, len(b.Citations))
	copy(out, b.Citations)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SnippetStart < out[j].SnippetStart
	})
	return out
}

// Fragment is one positioned leaf run of text on a rendered page
type Fragment struct {
	Text   string  `json:"text"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// SpanMatch is an inclusive range of fragment indices on one page
type SpanMatch struct {
	StartFragment int  `json:"start_span"`
	EndFragment   int  `json:"end_span"`
	Partial       bool `json:"partial,omitempty"`
}

// TextChunk is a passage cut from a document during indexing
type TextChunk struct {
	Index      int       `json:"chunk_index"`
	Content    string    `json:"content"`
	PageNumber int       `json:"page_number,omitempty"`
	Embedding  []float64 `json:"embedding,omitempty"`
}

// Document status values
const (
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Document is an ingested PDF
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	FilePath   string    `json:"file_path,omitempty"`
	FileSize   int64     `json:"file_size"`
	ChunkCount int       `json:"chunk_count"`
	PageCount  int       `json:"page_count"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Conversation is a persisted question and its cited answer
type Conversation struct {
	ID           string           `json:"id"`
	DocumentID   string           `json:"document_id,omitempty"`
	Query        string           `json:"query"`
	Answer       string           `json:"answer"`
	Citations    []Citation       `json:"citations"`
	PassagesUsed []PassageSummary `json:"chunks_used"`
	CreatedAt    time.Time        `json:"created_at"`
}

// QueryResult is the response to a question
type QueryResult struct {
	Query          string         `json:"query"`
	Result         *CitationBlock `json:"result"`
	Passages       []Passage      `json:"chunks"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

// Summaries converts passages to their summary form
func Summaries(passages []Passage) []PassageSummary {
	out := make([]PassageSummary, 0, len(passages))
	for _, p := range passages {
		out = append(out, PassageSummary{
			ID:            p.ID,
			DocumentName:  p.DocumentName,
			SequenceIndex: p.SequenceIndex,
			Similarity:    p.Similarity,
		})
	}
	return out
}
