package embedding

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"paper-citations-rag/internal/metrics"
	"paper-citations-rag/internal/models"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OllamaEmbedder generates embeddings using Ollama API
type OllamaEmbedder struct {
	Client        *api.Client
	Model         string
	MaxRetries    int
	RetryDelay    time.Duration
	Timeout       time.Duration
	MaxConcurrent int

	// Cache is optional
	Cache    Cache
	CacheTTL time.Duration
}

// NewOllamaEmbedder creates a new Ollama embedder. An empty host falls back
// to OLLAMA_HOST.
func NewOllamaEmbedder(host string, model string) (*OllamaEmbedder, error) {
	base := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, eris.Wrapf(err, "embedding: parse host %q", host)
		}
		base = u
	}

	return &OllamaEmbedder{
		Client:        api.NewClient(base, http.DefaultClient),
		Model:         model,
		MaxRetries:    3,
		RetryDelay:    time.Second,
		Timeout:       30 * time.Second,
		MaxConcurrent: 3, // Limit concurrent requests based on hardware
		CacheTTL:      24 * time.Hour,
	}, nil
}

// EmbedText generates an embedding for a text, consulting the cache first
func (e *OllamaEmbedder) EmbedText(ctx context.Context, text string) ([]float64, error) {
	key := CacheKey(e.Model, text)
	if e.Cache != nil {
		v, ok := e.Cache.Get(ctx, key)
		metrics.RecordCacheLookup(ok)
		if ok {
			return v, nil
		}
	}

	var err error
	for retries := 0; retries <= e.MaxRetries; retries++ {
		if retries > 0 {
			zap.L().Warn("embedding: retrying",
				zap.String("model", e.Model),
				zap.Int("attempt", retries),
				zap.Error(err),
			)
			if werr := wait(ctx, time.Duration(retries)*e.RetryDelay); werr != nil {
				return nil, werr
			}
		}

		var embedding []float64
		embedding, err = e.createEmbedding(ctx, text)
		if err == nil {
			if e.Cache != nil {
				e.Cache.Set(ctx, key, embedding, e.CacheTTL)
			}
			return embedding, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	metrics.RecordUpstreamFailure("embed")
	return nil, eris.Wrapf(err, "embedding: failed after %d retries", e.MaxRetries)
}

// createEmbedding is a helper function to create a single embedding
func (e *OllamaEmbedder) createEmbedding(ctx context.Context, text string) ([]float64, error) {
	req := api.EmbeddingRequest{
		Model:  e.Model,
		Prompt: text,
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	resp, err := e.Client.Embeddings(ctx, &req)
	if err != nil {
		return nil, eris.Wrap(err, "embedding: request")
	}
	if len(resp.Embedding) == 0 {
		return nil, eris.New("embedding: empty embedding returned")
	}

	return resp.Embedding, nil
}

// EmbedBatch embeds every chunk in place
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, chunks []models.TextChunk) ([]models.TextChunk, error) {
	return e.EmbedBatchWithProgress(ctx, chunks, nil)
}

// EmbedBatchWithProgress embeds chunks with at most MaxConcurrent requests in
// flight. The first failure cancels the rest.
func (e *OllamaEmbedder) EmbedBatchWithProgress(ctx context.Context, chunks []models.TextChunk,
	progressFunc func(processed, total int)) ([]models.TextChunk, error) {

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.MaxConcurrent, 1))

	var mu sync.Mutex
	processed := 0
	total := len(chunks)

	for i := range chunks {
		g.Go(func() error {
			embedding, err := e.EmbedText(ctx, chunks[i].Content)
			if err != nil {
				return eris.Wrapf(err, "embedding: chunk %d", chunks[i].Index)
			}

			mu.Lock()
			defer mu.Unlock()
			chunks[i].Embedding = embedding
			processed++
			if progressFunc != nil {
				progressFunc(processed, total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
