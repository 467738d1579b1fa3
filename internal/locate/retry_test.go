package locate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-citations-rag/internal/models"
)

var fastRetry = RetryConfig{MaxAttempts: 5, Delay: time.Millisecond}

// scriptedSource replays one response per call and repeats the last one
type scriptedSource struct {
	mu        sync.Mutex
	responses []response
	calls     int
}

type response struct {
	fragments []models.Fragment
	err       error
}

func (s *scriptedSource) Fragments(_ context.Context, _ int) ([]models.Fragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.responses[min(s.calls, len(s.responses)-1)]
	s.calls++
	return r.fragments, r.err
}

// gatedSource blocks its first call until the context is cancelled
type gatedSource struct {
	started   chan struct{}
	calls     atomic.Int32
	fragments []models.Fragment
}

func (g *gatedSource) Fragments(ctx context.Context, _ int) ([]models.Fragment, error) {
	if g.calls.Add(1) == 1 {
		g.started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return g.fragments, nil
}

// blockingSource never answers before cancellation
type blockingSource struct {
	started chan struct{}
}

func (b *blockingSource) Fragments(ctx context.Context, _ int) ([]models.Fragment, error) {
	b.started <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestFindSpanWithRetry_WaitsForFragments(t *testing.T) {
	src := &scriptedSource{responses: []response{
		{},
		{err: errors.New("page not rendered")},
		{fragments: frags("rendered", "page text here")},
	}}

	m, ok, err := FindSpanWithRetry(context.Background(), src, 3, "page text", fastRetry)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.SpanMatch{StartFragment: 1, EndFragment: 1}, m)
	assert.Equal(t, 3, src.calls)
}

func TestFindSpanWithRetry_GivesUpSilently(t *testing.T) {
	src := &scriptedSource{responses: []response{{fragments: frags("unrelated")}}}

	_, ok, err := FindSpanWithRetry(context.Background(), src, 1, "missing text", fastRetry)

	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, fastRetry.MaxAttempts, src.calls)
}

func TestFindSpanWithRetry_AtLeastOneAttempt(t *testing.T) {
	src := &scriptedSource{responses: []response{{fragments: frags("found it")}}}

	_, ok, err := FindSpanWithRetry(context.Background(), src, 1, "found it", RetryConfig{})

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, src.calls)
}

func TestFindSpanWithRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &scriptedSource{responses: []response{{fragments: frags("text")}}}

	_, ok, err := FindSpanWithRetry(ctx, src, 1, "text", fastRetry)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
	assert.Zero(t, src.calls)
}

func TestFindSpanWithRetry_CancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	src := &scriptedSource{responses: []response{{}}}

	start := time.Now()
	_, ok, err := FindSpanWithRetry(ctx, src, 1, "text", RetryConfig{MaxAttempts: 100, Delay: time.Second})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHighlighter_NewLookupCancelsPrevious(t *testing.T) {
	src := &gatedSource{
		started:   make(chan struct{}, 1),
		fragments: frags("the cited sentence"),
	}
	h := NewHighlighter(src, fastRetry)

	first := make(chan error, 1)
	go func() {
		_, _, err := h.Locate(context.Background(), "cite-1", 1, "cited sentence")
		first <- err
	}()
	<-src.started

	m, ok, err := h.Locate(context.Background(), "cite-1", 1, "cited sentence")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.SpanMatch{StartFragment: 0, EndFragment: 0}, m)
	assert.ErrorIs(t, <-first, context.Canceled)
	assert.Zero(t, h.InFlight())
}

func TestHighlighter_Cancel(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}, 2)}
	h := NewHighlighter(src, fastRetry)

	done := make(chan error, 2)
	for _, key := range []string{"a", "b"} {
		go func() {
			_, _, err := h.Locate(context.Background(), key, 1, "text")
			done <- err
		}()
	}
	<-src.started
	<-src.started
	assert.Equal(t, 2, h.InFlight())

	h.Cancel("a")
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1, h.InFlight())

	h.CancelAll()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, h.InFlight())
}

// stubbornSource blocks its first call until released, ignoring cancellation,
// and records how many calls overlap.
type stubbornSource struct {
	started   chan struct{}
	release   chan struct{}
	fragments []models.Fragment

	mu     sync.Mutex
	calls  int
	active int
	peak   int
}

func (s *stubbornSource) Fragments(_ context.Context, _ int) ([]models.Fragment, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.active++
	s.peak = max(s.peak, s.active)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if first {
		s.started <- struct{}{}
		<-s.release
		return nil, errors.New("render aborted")
	}
	return s.fragments, nil
}

func (s *stubbornSource) stats() (calls, peak int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.peak
}

func TestHighlighter_CancelledWaiterDoesNotReleaseNextLookup(t *testing.T) {
	src := &stubbornSource{
		started:   make(chan struct{}, 1),
		release:   make(chan struct{}),
		fragments: frags("the cited sentence"),
	}
	h := NewHighlighter(src, fastRetry)

	first := make(chan error, 1)
	go func() {
		_, _, err := h.Locate(context.Background(), "cite-1", 1, "cited sentence")
		first <- err
	}()
	<-src.started

	// The second lookup gives up while the first is still stopping.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok, err := h.Locate(ctx, "cite-1", 1, "cited sentence")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)

	type result struct {
		ok  bool
		err error
	}
	third := make(chan result, 1)
	go func() {
		_, ok, err := h.Locate(context.Background(), "cite-1", 1, "cited sentence")
		third <- result{ok, err}
	}()

	time.Sleep(20 * time.Millisecond)
	calls, _ := src.stats()
	assert.Equal(t, 1, calls, "third lookup started before the first stopped")

	close(src.release)
	assert.ErrorIs(t, <-first, context.Canceled)

	r := <-third
	require.NoError(t, r.err)
	assert.True(t, r.ok)

	_, peak := src.stats()
	assert.Equal(t, 1, peak)
	assert.Zero(t, h.InFlight())
}
