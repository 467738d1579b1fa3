// Package app assembles the store, models and services from configuration.
package app

import (
	"context"
	"io"

	"paper-citations-rag/internal/config"
	"paper-citations-rag/internal/database"
	"paper-citations-rag/internal/embedding"
	"paper-citations-rag/internal/llm"
	"paper-citations-rag/internal/processor"
	"paper-citations-rag/internal/rag"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Env holds everything a command needs. Close releases it.
type Env struct {
	Config   *config.Config
	DB       *database.DB
	Embedder *embedding.OllamaEmbedder
	LLM      *llm.OllamaLLM
	Service  *rag.Service

	closers []func()
}

// New validates cfg for mode, connects to Postgres and builds the service.
// The schema is created when missing.
func New(ctx context.Context, cfg *config.Config, mode string) (*Env, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &Env{Config: cfg}

	db, err := database.NewDB(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	env.DB = db
	env.closers = append(env.closers, db.Close)

	if err := db.Initialize(ctx, cfg.Database.EmbeddingDim); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "app: initialize schema")
	}

	embedder, closeCache, err := NewEmbedder(ctx, cfg)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Embedder = embedder
	env.closers = append(env.closers, closeCache)

	gen, err := NewLLM(cfg)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.LLM = gen

	proc := processor.NewPDFProcessor(cfg.Chunking.Size, cfg.Chunking.Overlap)
	env.Service = rag.NewService(db, embedder, gen, proc)
	env.Service.Retrieval = rag.Retrieval{
		MatchThreshold: cfg.Retrieval.MatchThreshold,
		MatchCount:     cfg.Retrieval.MatchCount,
	}

	zap.L().Info("app: ready",
		zap.String("mode", mode),
		zap.String("model", cfg.Ollama.Model),
		zap.String("embedding_model", cfg.Ollama.EmbeddingModel),
		zap.String("cache", cfg.Embedding.Cache.Backend),
	)
	return env, nil
}

// NewEmbedder builds the embedder with its configured cache. The returned
// func closes the cache connection, if any.
func NewEmbedder(ctx context.Context, cfg *config.Config) (*embedding.OllamaEmbedder, func(), error) {
	e, err := embedding.NewOllamaEmbedder(cfg.Ollama.Host, cfg.Ollama.EmbeddingModel)
	if err != nil {
		return nil, nil, err
	}
	e.MaxRetries = cfg.Embedding.MaxRetries
	e.MaxConcurrent = cfg.Embedding.MaxConcurrent
	if t := cfg.Ollama.Timeout(); t > 0 {
		e.Timeout = t
	}

	cache, err := embedding.NewCache(ctx, cfg.Embedding.Cache.Backend, cfg.Embedding.Cache.RedisAddr, cfg.Embedding.Cache.Capacity)
	if err != nil {
		return nil, nil, err
	}
	e.Cache = cache
	if ttl := cfg.Embedding.Cache.TTL(); ttl > 0 {
		e.CacheTTL = ttl
	}

	closeCache := func() {}
	if c, ok := cache.(io.Closer); ok {
		closeCache = func() { _ = c.Close() }
	}
	return e, closeCache, nil
}

// NewLLM builds the answer generator
func NewLLM(cfg *config.Config) (*llm.OllamaLLM, error) {
	gen, err := llm.NewOllamaLLM(cfg.Ollama.Host, cfg.Ollama.Model)
	if err != nil {
		return nil, err
	}
	gen.Temperature = cfg.Ollama.Temperature
	if cfg.Ollama.NumPredict > 0 {
		gen.NumPredict = cfg.Ollama.NumPredict
	}
	return gen, nil
}

// Close releases resources in reverse order of acquisition
func (e *Env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}
