package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics (serve mode)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookpile_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookpile_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Ingestion metrics
	CommentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookpile_comments_processed_total",
			Help: "Total number of source comments run through extraction",
		},
		[]string{"status"},
	)

	CandidatesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookpile_candidates_total",
			Help: "Total number of extraction candidates by validation outcome",
		},
		[]string{"status"},
	)

	BooksCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookpile_books_created_total",
			Help: "Total number of canonical books created",
		},
	)

	DuplicatesMatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookpile_duplicates_matched_total",
			Help: "Total number of candidates resolved to an existing book",
		},
	)

	MentionsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookpile_mentions_recorded_total",
			Help: "Total number of mentions recorded",
		},
	)

	// Enrichment metrics
	EnrichmentLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookpile_enrichment_lookups_total",
			Help: "Total number of metadata enrichment lookups",
		},
		[]string{"status"},
	)

	// Index metrics
	EmbeddingGenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookpile_embedding_generations_total",
			Help: "Total number of embedding generations",
		},
		[]string{"status"},
	)

	IndexingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bookpile_indexing_duration_seconds",
			Help:    "Duration of index passes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StaleRecordsRepaired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookpile_stale_records_repaired_total",
			Help: "Total number of stale embedding records reindexed",
		},
	)

	// Search metrics
	QueriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookpile_queries_processed_total",
			Help: "Total number of search queries processed",
		},
		[]string{"status"},
	)

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bookpile_query_duration_seconds",
			Help:    "Duration of search query processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
