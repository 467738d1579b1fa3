// Package citation turns a model answer carrying <CIT> tags into a
// CitationBlock whose citations point at exact sentence ranges of the
// retrieved passages.
package citation

import (
	"context"
	"fmt"

	"paper-citations-rag/internal/models"
)

// Generator produces the model's raw answer for a question and the passages
// it may cite. Passages are addressed by their position in the slice.
type Generator interface {
	Answer(ctx context.Context, question string, passages []models.Passage) (string, error)
}

// UpstreamError reports a failed call to the model or retrieval layer
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Result is a built block plus how it was parsed
type Result struct {
	Block     *models.CitationBlock
	Grammar   Grammar
	RawAnswer string
}

// Pipeline asks the generator for an answer and builds its citation block
type Pipeline struct {
	Generator Generator
}

// NewPipeline creates a pipeline around a generator
func NewPipeline(g Generator) *Pipeline {
	return &Pipeline{Generator: g}
}

// Run generates an answer for question and resolves its citations. A
// generator failure comes back as *UpstreamError and no block is built.
func (p *Pipeline) Run(ctx context.Context, question string, passages []models.Passage) (*Result, error) {
	sentences := SegmentPassages(passages)

	raw, err := p.Generator.Answer(ctx, question, passages)
	if err != nil {
		return nil, &UpstreamError{Op: "generate answer", Err: err}
	}

	block, grammar := BuildWithSentences(raw, passages, sentences)
	return &Result{Block: block, Grammar: grammar, RawAnswer: raw}, nil
}

// Build extracts and enriches the citations of a raw answer
func Build(raw string, passages []models.Passage) (*models.CitationBlock, Grammar) {
	return BuildWithSentences(raw, passages, SegmentPassages(passages))
}

// BuildWithSentences is Build with the passages already segmented. With no
// passages there is nothing to cite, so the raw text is returned as is.
func BuildWithSentences(raw string, passages []models.Passage, sentences [][]models.Sentence) (*models.CitationBlock, Grammar) {
	if len(passages) == 0 {
		return models.NewCitationBlock(raw, nil), GrammarNone
	}

	ext := Extract(raw)
	citations := EnrichAll(ext.Citations, passages, sentences)
	return models.NewCitationBlock(ext.Answer, citations), ext.Grammar
}
