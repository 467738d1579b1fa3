package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"paper-citations-rag/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = eris.New("not found")
	// ErrNoPageTexts is returned for documents indexed without page texts
	ErrNoPageTexts = eris.New("page texts not available")
)

// Pool is the subset of pgxpool.Pool the store uses
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// DB represents the database connection
type DB struct {
	pool Pool
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, connStr string, maxConns int32) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &DB{pool: pool}, nil
}

// NewWithPool wraps an existing pool
func NewWithPool(pool Pool) *DB {
	return &DB{pool: pool}
}

// Initialize sets up the database tables and indices
func (db *DB) Initialize(ctx context.Context, embeddingDim int) error {
	statements := []struct {
		name string
		sql  string
	}{
		{"vector extension", `CREATE EXTENSION IF NOT EXISTS vector`},
		{"documents table", `
			CREATE TABLE IF NOT EXISTS documents (
				id UUID PRIMARY KEY,
				name TEXT NOT NULL,
				file_path TEXT NOT NULL DEFAULT '',
				file_size BIGINT NOT NULL DEFAULT 0,
				chunk_count INTEGER NOT NULL DEFAULT 0,
				page_count INTEGER NOT NULL DEFAULT 0,
				page_texts TEXT[],
				status TEXT NOT NULL DEFAULT 'processing',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`},
		{"passages table", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS passages (
				id UUID PRIMARY KEY,
				document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
				chunk_index INTEGER NOT NULL,
				page_number INTEGER NOT NULL DEFAULT 0,
				content TEXT NOT NULL,
				embedding vector(%d) NOT NULL
			)`, embeddingDim)},
		{"vector index", `
			CREATE INDEX IF NOT EXISTS passages_embedding_idx ON passages
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`},
		{"passages document index", `
			CREATE INDEX IF NOT EXISTS passages_document_idx ON passages (document_id, chunk_index)`},
		{"conversations table", `
			CREATE TABLE IF NOT EXISTS conversations (
				id UUID PRIMARY KEY,
				document_id UUID REFERENCES documents(id) ON DELETE CASCADE,
				query TEXT NOT NULL,
				answer TEXT NOT NULL,
				citations JSONB NOT NULL DEFAULT '[]',
				chunks_used JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`},
	}

	for _, s := range statements {
		if _, err := db.pool.Exec(ctx, s.sql); err != nil {
			return eris.Wrapf(err, "postgres: create %s", s.name)
		}
	}

	zap.L().Info("postgres: schema ready", zap.Int("embedding_dim", embeddingDim))
	return nil
}

// CreateDocument records a document in the processing state, assigning an id
// and creation time when missing.
func (db *DB) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.Status == "" {
		doc.Status = models.StatusProcessing
	}

	_, err := db.pool.Exec(ctx, `
		INSERT INTO documents (id, name, file_path, file_size, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID, doc.Name, doc.FilePath, doc.FileSize, doc.Status, doc.CreatedAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: create document %s", doc.Name)
	}
	return nil
}

// StoreDocument stores the embedded chunks and page texts of a document and
// marks it ready, all in one transaction.
func (db *DB) StoreDocument(ctx context.Context, documentID string, pages []string, chunks []models.TextChunk) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range chunks {
		_, err := tx.Exec(ctx, `
			INSERT INTO passages (id, document_id, chunk_index, page_number, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6::vector)`,
			uuid.NewString(), documentID, c.Index, c.PageNumber, c.Content, VectorLiteral(c.Embedding))
		if err != nil {
			return eris.Wrapf(err, "postgres: insert passage %d", c.Index)
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE documents
		SET status = $1, chunk_count = $2, page_count = $3, page_texts = $4
		WHERE id = $5`,
		models.StatusReady, len(chunks), len(pages), pages, documentID)
	if err != nil {
		return eris.Wrap(err, "postgres: update document")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: document %s", documentID)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit")
	}
	return nil
}

// MarkFailed sets a document's status to failed
func (db *DB) MarkFailed(ctx context.Context, documentID string) error {
	_, err := db.pool.Exec(ctx, `UPDATE documents SET status = $1 WHERE id = $2`, models.StatusFailed, documentID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark document %s failed", documentID)
	}
	return nil
}

// QuerySimilar returns up to limit passages whose cosine similarity to
// embedding exceeds threshold, most similar first.
func (db *DB) QuerySimilar(ctx context.Context, embedding []float64, threshold float64, limit int) ([]models.Passage, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT p.id, p.document_id, d.name, p.chunk_index, p.content,
		       1 - (p.embedding <=> $1::vector) AS similarity
		FROM passages p
		JOIN documents d ON d.id = p.document_id
		WHERE 1 - (p.embedding <=> $1::vector) > $2
		ORDER BY p.embedding <=> $1::vector
		LIMIT $3`,
		VectorLiteral(embedding), threshold, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query similar passages")
	}
	defer rows.Close()

	var passages []models.Passage
	for rows.Next() {
		var p models.Passage
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.DocumentName, &p.SequenceIndex, &p.Content, &p.Similarity); err != nil {
			return nil, eris.Wrap(err, "postgres: scan passage")
		}
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate passages")
	}

	return passages, nil
}

const documentColumns = `id, name, file_path, file_size, chunk_count, page_count, status, created_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	if err := row.Scan(&d.ID, &d.Name, &d.FilePath, &d.FileSize, &d.ChunkCount, &d.PageCount, &d.Status, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDocuments returns all documents, newest first
func (db *DB) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		docs = append(docs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate documents")
	}
	return docs, nil
}

// isMissing reports whether err means the row cannot exist: no rows, or an id
// that is not a valid uuid (invalid_text_representation).
func isMissing(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

// GetDocument returns one document or ErrNotFound
func (db *DB) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	d, err := scanDocument(db.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		if isMissing(err) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: document %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get document %s", id)
	}
	return d, nil
}

// DeleteDocument removes a document; its passages and conversations cascade
func (db *DB) DeleteDocument(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if isMissing(err) {
		return eris.Wrapf(ErrNotFound, "postgres: document %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: delete document %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: document %s", id)
	}
	return nil
}

// PageTexts returns the per-page text of a document in page order
func (db *DB) PageTexts(ctx context.Context, id string) ([]string, error) {
	var pages []string
	err := db.pool.QueryRow(ctx, `SELECT page_texts FROM documents WHERE id = $1`, id).Scan(&pages)
	if err != nil {
		if isMissing(err) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: document %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: page texts of %s", id)
	}
	if pages == nil {
		return nil, eris.Wrapf(ErrNoPageTexts, "postgres: document %s", id)
	}
	return pages, nil
}

// SetPageTexts replaces the stored per-page text of a document
func (db *DB) SetPageTexts(ctx context.Context, id string, pages []string) error {
	tag, err := db.pool.Exec(ctx, `UPDATE documents SET page_texts = $1, page_count = $2 WHERE id = $3`,
		nonNil(pages), len(pages), id)
	if isMissing(err) {
		return eris.Wrapf(ErrNotFound, "postgres: document %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: set page texts of %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: document %s", id)
	}
	return nil
}

// SaveConversation stores a question with its cited answer
func (db *DB) SaveConversation(ctx context.Context, c *models.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	citations, err := json.Marshal(nonNil(c.Citations))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal citations")
	}
	used, err := json.Marshal(nonNil(c.PassagesUsed))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal passages")
	}

	_, err = db.pool.Exec(ctx, `
		INSERT INTO conversations (id, document_id, query, answer, citations, chunks_used, created_at)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7)`,
		c.ID, c.DocumentID, c.Query, c.Answer, citations, used, c.CreatedAt)
	if err != nil {
		return eris.Wrap(err, "postgres: insert conversation")
	}
	return nil
}

// ListConversations returns the conversations about a document, oldest first
func (db *DB) ListConversations(ctx context.Context, documentID string) ([]models.Conversation, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, COALESCE(document_id::text, ''), query, answer, citations, chunks_used, created_at
		FROM conversations
		WHERE document_id = $1
		ORDER BY created_at ASC`, documentID)
	if isMissing(err) {
		return []models.Conversation{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list conversations")
	}
	defer rows.Close()

	convs := []models.Conversation{}
	for rows.Next() {
		var c models.Conversation
		var citations, used []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Query, &c.Answer, &citations, &used, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan conversation")
		}
		if err := json.Unmarshal(citations, &c.Citations); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal citations")
		}
		if err := json.Unmarshal(used, &c.PassagesUsed); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal passages")
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate conversations")
	}
	return convs, nil
}

// Close closes the database connection
func (db *DB) Close() {
	db.pool.Close()
}

// VectorLiteral formats an embedding as a pgvector text literal
func VectorLiteral(v []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
