package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FranchuFranchu/kelili/config"
	"github.com/FranchuFranchu/kelili/gateway/middleware"
	"github.com/FranchuFranchu/kelili/gateway/routes"
	"github.com/FranchuFranchu/kelili/observability/logging"
	telemetry "github.com/FranchuFranchu/kelili/observability/otel"
	"github.com/FranchuFranchu/kelili/simnet"
)

const (
	envName          = "KELILI_ENV"
	envAuthSecret    = "KELILI_GATEWAY_SECRET"
	envOTLPEndpoint  = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envOTLPInsecure  = "OTEL_EXPORTER_OTLP_INSECURE"
	shutdownDeadline = 10 * time.Second
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	peersFlag := flag.Int("peers", 0, "Override the number of simulated peers")
	listenFlag := flag.String("listen", "", "Override the gateway listen address")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	if *peersFlag > 0 {
		cfg.Simulation.Peers = *peersFlag
	}
	if trimmed := strings.TrimSpace(*listenFlag); trimmed != "" {
		cfg.Gateway.ListenAddress = trimmed
	}
	if env := strings.TrimSpace(os.Getenv(envName)); env != "" {
		cfg.Node.Environment = env
	}
	if secret := strings.TrimSpace(os.Getenv(envAuthSecret)); secret != "" {
		cfg.Gateway.AuthSecret = secret
	}

	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    cfg.Node.Name,
		Env:        cfg.Node.Environment,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("kelilid exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	hasher, err := cfg.Hasher()
	if err != nil {
		return err
	}
	network, err := simnet.New(cfg.PeerConfig(), simnet.Options{
		Peers:    cfg.Simulation.Peers,
		Seed:     cfg.Simulation.Seed,
		Topology: cfg.Simulation.Topology,
		Backend:  cfg.DHT.StoreBackend,
		Hasher:   hasher,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build overlay: %w", err)
	}
	entry, err := network.Client(0)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := network.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Gateway.ListenAddress,
		Handler:           gatewayHandler(cfg, entry, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      time.Duration(cfg.DHT.LookupTimeoutMs)*time.Millisecond + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	listener, err := net.Listen("tcp", cfg.Gateway.ListenAddress)
	if err != nil {
		return errors.Join(fmt.Errorf("listen: %w", err), network.Stop())
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("gateway listening",
			slog.String("addr", listener.Addr().String()),
			slog.String("entry_peer", entry.Info().ID.Short()),
			slog.Int("peers", cfg.Simulation.Peers),
			logging.MaskField("auth_secret", cfg.Gateway.AuthSecret))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve gateway: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return network.Wait()
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", slog.Any("error", err))
		}
		return network.Stop()
	})

	err = group.Wait()
	logger.Info("kelilid stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func gatewayHandler(cfg *config.Config, overlay routes.Overlay, logger *slog.Logger) http.Handler {
	var auth *middleware.Authenticator
	if cfg.Gateway.AuthSecret != "" {
		auth = middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: cfg.Gateway.AuthSecret,
			Issuer:     cfg.Gateway.Issuer,
			Audience:   cfg.Gateway.Audience,
		}, logger)
	} else {
		logger.Warn("gateway writes are unauthenticated; set AuthSecret to require tokens")
	}
	limit := middleware.RateLimit{
		RequestsPerMinute: cfg.Gateway.RequestsPerMinute,
		Burst:             cfg.Gateway.Burst,
	}
	return routes.New(routes.Config{
		Overlay:       overlay,
		Authenticator: auth,
		RateLimiter: middleware.NewRateLimiter(map[string]middleware.RateLimit{
			routes.RateLimitRead:  limit,
			routes.RateLimitWrite: limit,
		}, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{LogRequests: true}, logger),
		Logger:        logger,
	})
}

func telemetryConfig(cfg *config.Config) telemetry.Config {
	endpoint := strings.TrimSpace(cfg.Telemetry.Endpoint)
	if env := strings.TrimSpace(os.Getenv(envOTLPEndpoint)); env != "" {
		endpoint = env
	}
	insecure := cfg.Telemetry.Insecure
	if value := strings.TrimSpace(os.Getenv(envOTLPInsecure)); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	return telemetry.Config{
		ServiceName: "kelilid",
		Environment: cfg.Node.Environment,
		Instance:    cfg.Node.Name,
		Endpoint:    endpoint,
		Insecure:    insecure,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	}
}
