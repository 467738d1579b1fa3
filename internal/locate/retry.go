package locate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"paper-citations-rag/internal/models"
)

// FragmentSource supplies the rendered text fragments of one page. A page
// that is not laid out yet may return no fragments or an error.
type FragmentSource interface {
	Fragments(ctx context.Context, page int) ([]models.Fragment, error)
}

// RetryConfig bounds the wait for a page to finish rendering
type RetryConfig struct {
	// MaxAttempts is the total number of lookups. Values below 1 mean one.
	MaxAttempts int

	// Delay is the fixed pause between lookups.
	Delay time.Duration
}

// DefaultRetryConfig returns ten attempts 300ms apart
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 10,
		Delay:       300 * time.Millisecond,
	}
}

// FindSpanWithRetry runs FindSpan against src until it matches or the attempt
// budget runs out. An exhausted budget is not an error: it returns false and a
// nil error. Cancellation returns the context's error at once.
func FindSpanWithRetry(ctx context.Context, src FragmentSource, page int, text string, cfg RetryConfig) (models.SpanMatch, bool, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return models.SpanMatch{}, false, err
		}

		fragments, err := src.Fragments(ctx, page)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return models.SpanMatch{}, false, ctx.Err()
			}
			zap.L().Debug("locate: fragments unavailable",
				zap.Int("page", page),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		case len(fragments) > 0:
			if m, ok := FindSpan(fragments, text); ok {
				return m, true, nil
			}
		}

		if attempt == attempts {
			break
		}

		timer := time.NewTimer(cfg.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return models.SpanMatch{}, false, ctx.Err()
		case <-timer.C:
		}
	}

	zap.L().Debug("locate: no span found",
		zap.Int("page", page),
		zap.Int("attempts", attempts),
	)
	return models.SpanMatch{}, false, nil
}

type flight struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Highlighter runs span lookups keyed by citation. Starting a lookup for a key
// cancels the one already running for it and waits for it to stop, so each
// citation has at most one retry loop at a time.
type Highlighter struct {
	Source FragmentSource
	Retry  RetryConfig

	mu       sync.Mutex
	inflight map[string]*flight
}

// NewHighlighter creates a Highlighter reading fragments from src
func NewHighlighter(src FragmentSource, cfg RetryConfig) *Highlighter {
	return &Highlighter{
		Source:   src,
		Retry:    cfg,
		inflight: make(map[string]*flight),
	}
}

// Locate finds text on page for the citation identified by key
func (h *Highlighter) Locate(ctx context.Context, key string, page int, text string) (models.SpanMatch, bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	f := &flight{cancel: cancel, done: make(chan struct{})}

	h.mu.Lock()
	if h.inflight == nil {
		h.inflight = make(map[string]*flight)
	}
	prev := h.inflight[key]
	h.inflight[key] = f
	h.mu.Unlock()

	release := func() {
		h.mu.Lock()
		if h.inflight[key] == f {
			delete(h.inflight, key)
		}
		h.mu.Unlock()
		close(f.done)
	}
	defer func() {
		cancel()
		if prev == nil {
			release()
			return
		}
		// A flight stays registered until the one it replaced has stopped.
		select {
		case <-prev.done:
			release()
		default:
			go func() {
				<-prev.done
				release()
			}()
		}
	}()

	if prev != nil {
		prev.cancel()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return models.SpanMatch{}, false, ctx.Err()
		}
	}

	return FindSpanWithRetry(ctx, h.Source, page, text, h.Retry)
}

// Cancel stops the lookup running for key, if any
func (h *Highlighter) Cancel(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f, ok := h.inflight[key]; ok {
		f.cancel()
	}
}

// CancelAll stops every running lookup
func (h *Highlighter) CancelAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range h.inflight {
		f.cancel()
	}
}

// InFlight returns the number of running lookups
func (h *Highlighter) InFlight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.inflight)
}
