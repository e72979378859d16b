package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const ContextKeyRequestID contextKey = "gateway.request_id"

type ObservabilityConfig struct {
	MetricsPrefix string
	LogRequests   bool
	// Registry receives the request metrics; nil uses a private registry.
	Registry *prometheus.Registry
}

type Observability struct {
	cfg       ObservabilityConfig
	logger    *slog.Logger
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	registry  *prometheus.Registry
}

func NewObservability(cfg ObservabilityConfig, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MetricsPrefix == "" {
		cfg.MetricsPrefix = "kelili_gateway"
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.MetricsPrefix,
		Name:      "requests_total",
		Help:      "Total HTTP requests processed by the gateway.",
	}, []string{"route", "method", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.MetricsPrefix,
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
	registry.MustRegister(requests, durations)
	return &Observability{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "gateway")),
		requests:  requests,
		durations: durations,
		registry:  registry,
	}
}

// Middleware tags the request with an id, records metrics under route and
// annotates the active span, which otelhttp opens around the router.
func (o *Observability) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)
			ctx := context.WithValue(r.Context(), ContextKeyRequestID, requestID)

			span := trace.SpanFromContext(ctx)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.String("request.id", requestID),
			)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))
			span.SetAttributes(attribute.Int("http.status_code", recorder.status))

			duration := time.Since(start).Seconds()
			o.requests.WithLabelValues(route, r.Method, http.StatusText(recorder.status)).Inc()
			o.durations.WithLabelValues(route, r.Method).Observe(duration)
			if o.cfg.LogRequests {
				o.logger.Info("request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", recorder.status),
					slog.Float64("duration_ms", duration*1000),
					slog.String("request_id", requestID))
			}
		})
	}
}

// MetricsHandler serves the gateway registry together with the default
// registry, where the dht metrics live.
func (o *Observability) MetricsHandler() http.Handler {
	gatherers := prometheus.Gatherers{o.registry}
	if o.registry != prometheus.DefaultRegisterer {
		gatherers = append(gatherers, prometheus.DefaultGatherer)
	}
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
}

// RequestID returns the id assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyRequestID).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
