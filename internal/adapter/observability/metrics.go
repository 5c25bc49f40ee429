package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of reasoning-service requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Reasoning-service request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)
	AICostUSDTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ai_cost_usd_total",
			Help: "Accumulated reasoning-service cost in USD",
		},
	)
	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Accumulated reasoning-service tokens by direction",
		},
		[]string{"direction"},
	)

	FilesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluation_files_processed_total",
			Help: "Total number of exam files processed by outcome",
		},
		[]string{"status"},
	)
	BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluation_batches_total",
			Help: "Total number of batches finished by status",
		},
		[]string{"status"},
	)
	ScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evaluation_score",
			Help:    "Distribution of final exam scores ([0,100])",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(AICostUSDTotal)
	prometheus.MustRegister(AITokensTotal)
	prometheus.MustRegister(FilesProcessedTotal)
	prometheus.MustRegister(BatchesTotal)
	prometheus.MustRegister(ScoreHistogram)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// ObserveAIRequest records one reasoning-service call.
func ObserveAIRequest(operation, outcome string, dur time.Duration) {
	AIRequestsTotal.WithLabelValues(operation, outcome).Inc()
	AIRequestDuration.WithLabelValues(operation).Observe(dur.Seconds())
}

// ObserveAIUsage accumulates token and cost counters.
func ObserveAIUsage(inputTokens, outputTokens int, costUSD float64) {
	AITokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	AITokensTotal.WithLabelValues("output").Add(float64(outputTokens))
	AICostUSDTotal.Add(costUSD)
}

// ObserveFileProcessed records one finished exam file.
func ObserveFileProcessed(status string, score float64) {
	FilesProcessedTotal.WithLabelValues(status).Inc()
	if status == "success" && score >= 0 && score <= 100 {
		ScoreHistogram.Observe(score)
	}
}

// ObserveBatchFinished records one finished batch.
func ObserveBatchFinished(status string) {
	BatchesTotal.WithLabelValues(status).Inc()
}
