package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Citation metrics
	CitationsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperqa_citations_extracted_total",
			Help: "Total number of citations extracted from model answers",
		},
		[]string{"grammar"},
	)

	CitationsUnresolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paperqa_citations_unresolved_total",
			Help: "Total number of citations whose sentence range matched nothing",
		},
	)

	// Locator metrics
	LocateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperqa_locate_total",
			Help: "Total number of page and span lookups",
		},
		[]string{"locator", "outcome"},
	)

	// Upstream metrics
	UpstreamFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperqa_upstream_failures_total",
			Help: "Total number of failed model, embedding or search calls",
		},
		[]string{"op"},
	)

	// Query metrics
	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "paperqa_query_duration_seconds",
			Help:    "End to end question answering duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// Embedding cache metrics
	EmbeddingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperqa_embedding_cache_lookups_total",
			Help: "Embedding cache lookups by result",
		},
		[]string{"result"},
	)
)

// RecordCitations records the citations of one answer
func RecordCitations(grammar string, extracted, unresolved int) {
	if extracted > 0 {
		CitationsExtracted.WithLabelValues(grammar).Add(float64(extracted))
	}
	if unresolved > 0 {
		CitationsUnresolved.Add(float64(unresolved))
	}
}

// RecordLocate records a lookup outcome for locator "page" or "span"
func RecordLocate(locator string, found bool) {
	outcome := "not_found"
	if found {
		outcome = "found"
	}
	LocateTotal.WithLabelValues(locator, outcome).Inc()
}

// RecordUpstreamFailure counts a failed external call
func RecordUpstreamFailure(op string) {
	UpstreamFailures.WithLabelValues(op).Inc()
}

// RecordCacheLookup counts an embedding cache hit or miss
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	EmbeddingCacheLookups.WithLabelValues(result).Inc()
}
