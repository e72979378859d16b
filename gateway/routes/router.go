package routes

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/FranchuFranchu/kelili/dht"
	"github.com/FranchuFranchu/kelili/gateway/middleware"
)

// Overlay is the slice of dht.Client the gateway serves.
type Overlay interface {
	Info() dht.PeerInfo
	Store(ctx context.Context, data []byte) (dht.ID, error)
	Find(ctx context.Context, hash dht.ID) ([]byte, bool, error)
}

type Config struct {
	Overlay       Overlay
	MaxBlobBytes  int64
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
}

// Rate limit keys understood by New.
const (
	RateLimitRead  = "read"
	RateLimitWrite = "write"
)

func New(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBlobBytes <= 0 {
		cfg.MaxBlobBytes = 1 << 20
	}
	h := &handlers{
		overlay: cfg.Overlay,
		maxBody: cfg.MaxBlobBytes,
		logger:  cfg.Logger.With(slog.String("component", "gateway")),
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	observe := func(route string) func(http.Handler) http.Handler {
		if cfg.Observability == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return cfg.Observability.Middleware(route)
	}
	limit := func(key string) func(http.Handler) http.Handler {
		if cfg.RateLimiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return cfg.RateLimiter.Middleware(key)
	}
	auth := func(scopes ...string) func(http.Handler) http.Handler {
		if cfg.Authenticator == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return cfg.Authenticator.Middleware(scopes...)
	}

	r.With(observe("health")).Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.With(observe("status")).Get("/v1/status", h.status)

	r.Route("/v1/blobs", func(sr chi.Router) {
		sr.Use(observe("blobs"))
		sr.With(limit(RateLimitWrite), auth(middleware.ScopeWrite)).Put("/", h.putBlob)
		sr.With(limit(RateLimitRead)).Get("/{hash}", h.getBlob)
	})
	r.Route("/v1/blocks", func(sr chi.Router) {
		sr.Use(observe("blocks"))
		sr.With(limit(RateLimitWrite), auth(middleware.ScopeWrite)).Put("/", h.putBlock)
		sr.With(limit(RateLimitRead)).Get("/{hash}", h.getBlock)
	})

	if cfg.Observability != nil {
		r.Handle("/metrics", cfg.Observability.MetricsHandler())
	}

	return otelhttp.NewHandler(r, "kelili-gateway")
}
