// Command ratelimiterd serves the rate-limited API backed by Redis, or by
// an in-process store when Redis is unavailable or explicitly disabled.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/SanketBaviskar/rate-limiter/internal/config"
	"github.com/SanketBaviskar/rate-limiter/internal/httpapi"
	"github.com/SanketBaviskar/rate-limiter/internal/limiter"
	"github.com/SanketBaviskar/rate-limiter/internal/metrics"
	"github.com/SanketBaviskar/rate-limiter/internal/store"
	"github.com/SanketBaviskar/rate-limiter/internal/weather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration load failed", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("service exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := openStore(ctx, cfg, log)
	defer st.Close()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	recorder := metrics.NewRecorder(st, promRegistry, log)
	registry := config.NewRegistry(st, config.Limits{Limit: cfg.DefaultLimit, Window: cfg.DefaultWindow}, log)

	svc := limiter.New(st, registry, recorder, log, limiter.WithFailClosed(cfg.FailClosed))

	drainer := limiter.NewDrainer(st, registry, recorder, log)
	if err := drainer.Start(); err != nil {
		return err
	}

	api := httpapi.New(st, registry, svc, drainer, recorder, weather.NewClient(), promRegistry, log)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.ListenAddr, "backend", st.Backend().Type)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown incomplete", "error", err)
	}
	if err := drainer.Stop(shutdownCtx); err != nil {
		log.Warn("drainer shutdown incomplete", "error", err)
	}
	return nil
}

// openStore picks the backend: the in-process fake when forced, otherwise
// Redis with a fallback to the fake so the service stays usable without a
// reachable Redis.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) store.Store {
	if cfg.UseFakeStore {
		log.Info("using in-process store")
		return store.NewMemory()
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	st, err := store.DialRedis(dialCtx, cfg.RedisURL)
	if err != nil {
		log.Warn("redis unreachable, falling back to in-process store", "url", cfg.RedisURL, "error", err)
		return store.NewMemory()
	}
	log.Info("connected to redis", "url", cfg.RedisURL)
	return st
}
