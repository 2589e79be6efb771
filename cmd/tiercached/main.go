// Package main implements tiercached, a caching proxy daemon that fronts
// an upstream HTTP origin with a memory tier, an optional SQLite tier, and
// stale-while-revalidate background refresh.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/tiercache"
	"github.com/c360/tiercache/config"
	"github.com/c360/tiercache/disktier"
	"github.com/c360/tiercache/metric"
	"github.com/c360/tiercache/monitor"
	"github.com/c360/tiercache/pkg/cache"
)

const appName = "tiercached"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})).With("app", appName)
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := metric.NewRegistry()
	metricsServer := metric.NewServer(cfg.MetricsAddr, "/metrics", registry)
	if err := metricsServer.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Stop(stopCtx)
	}()

	mon, err := monitor.NewWithMetrics(registry, appName)
	if err != nil {
		return err
	}

	memory, err := cache.NewLRU[string, []byte](cfg.MemoryMaxEntries,
		cache.WithMetrics[string, []byte](registry, appName),
	)
	if err != nil {
		return err
	}

	var disk *disktier.Store
	if cfg.DBPath != "" {
		disk, err = disktier.Open(cfg.DBPath, disktier.Options{
			MaxEntries: cfg.DiskMaxEntries,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		defer func() { _ = disk.Close() }()
	}

	fetcher := newUpstreamFetcher(cfg.UpstreamURL)

	identity := func(b []byte) ([]byte, error) { return b, nil }
	tc, err := tiercache.NewStringKeyed(tiercache.Config[string, []byte]{
		Name:             appName,
		Fetch:            fetcher.fetch,
		Encode:           identity,
		Decode:           identity,
		Memory:           memory,
		Disk:             disk,
		Monitor:          mon,
		Logger:           logger,
		Metrics:          registry,
		MemoryTTL:        cfg.MemoryTTL,
		DiskTTL:          cfg.DiskTTL,
		RefreshWorkers:   cfg.RefreshWorkers,
		RefreshQueueSize: cfg.RefreshQueueSize,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tc.Close() }()

	api := newAPIServer(tc, mon, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	logger.Info("listening",
		"addr", cfg.ListenAddr,
		"metrics_addr", cfg.MetricsAddr,
		"upstream", cfg.UpstreamURL,
		"disk_tier", cfg.DBPath != "")

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
