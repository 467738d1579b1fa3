// Package rag answers questions over indexed papers and indexes new ones.
package rag

import (
	"context"
	"errors"
	"time"

	"paper-citations-rag/internal/citation"
	"paper-citations-rag/internal/locate"
	"paper-citations-rag/internal/metrics"
	"paper-citations-rag/internal/models"
	"paper-citations-rag/internal/processor"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// NoResultsMessage is the answer given when retrieval finds nothing
const NoResultsMessage = "No relevant documents found. Please upload some papers first."

// Store is the persistence the service needs
type Store interface {
	Initialize(ctx context.Context, embeddingDim int) error
	CreateDocument(ctx context.Context, doc *models.Document) error
	StoreDocument(ctx context.Context, documentID string, pages []string, chunks []models.TextChunk) error
	MarkFailed(ctx context.Context, documentID string) error
	QuerySimilar(ctx context.Context, embedding []float64, threshold float64, limit int) ([]models.Passage, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	PageTexts(ctx context.Context, id string) ([]string, error)
	SetPageTexts(ctx context.Context, id string, pages []string) error
	SaveConversation(ctx context.Context, c *models.Conversation) error
	ListConversations(ctx context.Context, documentID string) ([]models.Conversation, error)
}

// Embedder turns text into vectors
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
	EmbedBatchWithProgress(ctx context.Context, chunks []models.TextChunk, progress func(processed, total int)) ([]models.TextChunk, error)
}

// Processor splits a PDF into page texts and chunks
type Processor interface {
	ProcessPDF(ctx context.Context, filePath, name string) (*processor.ProcessedDocument, error)
	ExtractPages(filePath string) ([]string, error)
}

// Retrieval controls the similarity search
type Retrieval struct {
	MatchThreshold float64
	MatchCount     int
}

// DefaultRetrieval returns the search settings used when none are configured
func DefaultRetrieval() Retrieval {
	return Retrieval{MatchThreshold: 0.3, MatchCount: 10}
}

// Service wires retrieval, generation and citation building together
type Service struct {
	Store     Store
	Embedder  Embedder
	Pipeline  *citation.Pipeline
	Processor Processor
	Retrieval Retrieval
}

// NewService creates a service with default retrieval settings
func NewService(store Store, embedder Embedder, gen citation.Generator, proc Processor) *Service {
	return &Service{
		Store:     store,
		Embedder:  embedder,
		Pipeline:  citation.NewPipeline(gen),
		Processor: proc,
		Retrieval: DefaultRetrieval(),
	}
}

// Answer embeds the question, retrieves passages and returns the cited
// answer. documentID, when set, ties the saved conversation to a document.
func (s *Service) Answer(ctx context.Context, query, documentID string) (*models.QueryResult, error) {
	start := time.Now()
	defer func() { metrics.QueryDuration.Observe(time.Since(start).Seconds()) }()

	emb, err := s.Embedder.EmbedText(ctx, query)
	if err != nil {
		metrics.RecordUpstreamFailure("embed")
		return nil, &citation.UpstreamError{Op: "embed query", Err: err}
	}

	passages, err := s.Store.QuerySimilar(ctx, emb, s.Retrieval.MatchThreshold, s.Retrieval.MatchCount)
	if err != nil {
		metrics.RecordUpstreamFailure("search")
		return nil, &citation.UpstreamError{Op: "search passages", Err: err}
	}

	if len(passages) == 0 {
		zap.L().Info("rag: no passages matched", zap.String("query", query))
		return &models.QueryResult{
			Query:    query,
			Result:   models.NewCitationBlock(NoResultsMessage, nil),
			Passages: []models.Passage{},
		}, nil
	}

	res, err := s.Pipeline.Run(ctx, query, passages)
	if err != nil {
		metrics.RecordUpstreamFailure("generate")
		return nil, err
	}

	unresolved := 0
	for _, c := range res.Block.Citations {
		if !c.Resolved() {
			unresolved++
		}
	}
	metrics.RecordCitations(string(res.Grammar), len(res.Block.Citations), unresolved)

	zap.L().Info("rag: answered",
		zap.Int("passages", len(passages)),
		zap.String("grammar", string(res.Grammar)),
		zap.Int("citations", len(res.Block.Citations)),
		zap.Int("unresolved", unresolved),
		zap.Duration("elapsed", time.Since(start)),
	)

	result := &models.QueryResult{
		Query:    query,
		Result:   res.Block,
		Passages: passages,
	}

	conv := &models.Conversation{
		DocumentID:   documentID,
		Query:        query,
		Answer:       res.Block.AnswerText,
		Citations:    res.Block.Citations,
		PassagesUsed: models.Summaries(passages),
	}
	if err := s.Store.SaveConversation(ctx, conv); err != nil {
		zap.L().Warn("rag: save conversation failed", zap.Error(err))
	} else {
		result.ConversationID = conv.ID
	}

	return result, nil
}

// LocatePage finds the 1-based page of a document holding sourceText
func (s *Service) LocatePage(ctx context.Context, documentID, sourceText string) (int, bool, error) {
	pages, err := s.Store.PageTexts(ctx, documentID)
	if err != nil {
		return 0, false, err
	}

	page, ok := locate.FindPage(pages, sourceText)
	metrics.RecordLocate("page", ok)
	return page, ok, nil
}

// Ingest processes, embeds and stores a PDF. Once text is extracted the
// document is recorded as processing; a later failure marks it failed.
func (s *Service) Ingest(ctx context.Context, filePath, name string, progress func(processed, total int)) (*models.Document, error) {
	proc, err := s.Processor.ProcessPDF(ctx, filePath, name)
	if err != nil {
		return nil, err
	}
	if len(proc.Chunks) == 0 {
		return nil, eris.Errorf("rag: no text extracted from %s", filePath)
	}

	doc := &models.Document{
		Name:     proc.Name,
		FilePath: filePath,
		FileSize: proc.FileSize,
	}
	if err := s.Store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	fail := func(err error) (*models.Document, error) {
		if mErr := s.Store.MarkFailed(context.WithoutCancel(ctx), doc.ID); mErr != nil {
			zap.L().Error("rag: mark document failed", zap.String("document_id", doc.ID), zap.Error(mErr))
		}
		doc.Status = models.StatusFailed
		return doc, err
	}

	chunks, err := s.Embedder.EmbedBatchWithProgress(ctx, proc.Chunks, progress)
	if err != nil {
		metrics.RecordUpstreamFailure("embed")
		return fail(&citation.UpstreamError{Op: "embed chunks", Err: err})
	}

	if err := s.Store.StoreDocument(ctx, doc.ID, proc.Pages, chunks); err != nil {
		return fail(err)
	}

	doc.Status = models.StatusReady
	doc.ChunkCount = len(chunks)
	doc.PageCount = len(proc.Pages)

	zap.L().Info("rag: document indexed",
		zap.String("document_id", doc.ID),
		zap.String("name", doc.Name),
		zap.Int("pages", doc.PageCount),
		zap.Int("chunks", doc.ChunkCount),
	)
	return doc, nil
}

// Setup creates the schema and reports how many documents are indexed
func (s *Service) Setup(ctx context.Context, embeddingDim int) (int, error) {
	if err := s.Store.Initialize(ctx, embeddingDim); err != nil {
		return 0, err
	}
	docs, err := s.Store.ListDocuments(ctx)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// IsUpstream reports whether err came from the model, embedder or search
func IsUpstream(err error) bool {
	var up *citation.UpstreamError
	return errors.As(err, &up)
}
