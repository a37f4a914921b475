package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oral_history_query_duration_seconds",
			Help:    "Chat answer duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"status"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oral_history_query_total",
			Help: "Total number of chat queries by outcome",
		},
		[]string{"status"},
	)

	RetrievedChunks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oral_history_context_chunks",
			Help:    "Number of chunks placed in the generator context per query",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	TopSimilarity = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oral_history_top_similarity",
			Help:    "Cosine similarity of the best-ranked chunk per query",
			Buckets: []float64{0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1.0},
		},
	)

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oral_history_llm_requests_total",
			Help: "Outbound model calls by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oral_history_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oral_history_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	ConversationPersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oral_history_conversation_persist_failures_total",
			Help: "Turns answered but not persisted to the conversation log",
		},
	)

	CorpusAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oral_history_corpus_available",
			Help: "1 when the interview corpus is loaded, 0 when degraded",
		},
	)

	CorpusChunks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oral_history_corpus_chunks",
			Help: "Rankable chunks in the loaded corpus",
		},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(RetrievedChunks)
	prometheus.MustRegister(TopSimilarity)
	prometheus.MustRegister(LLMRequests)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(ConversationPersistFailures)
	prometheus.MustRegister(CorpusAvailable)
	prometheus.MustRegister(CorpusChunks)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
