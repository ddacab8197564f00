package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/zynqcloud/filegate/internal/config"
	"github.com/zynqcloud/filegate/internal/fileops"
	"github.com/zynqcloud/filegate/internal/handler"
	"github.com/zynqcloud/filegate/internal/index"
	"github.com/zynqcloud/filegate/internal/metrics"
	"github.com/zynqcloud/filegate/internal/ownership"
	"github.com/zynqcloud/filegate/internal/pathgate"
	"github.com/zynqcloud/filegate/internal/scanner"
	"github.com/zynqcloud/filegate/internal/search"
	"github.com/zynqcloud/filegate/internal/thumbnail"
	"github.com/zynqcloud/filegate/internal/upload"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration error", "err", err)
		os.Exit(1)
	}

	gate, err := pathgate.New(cfg.AllowedBasePaths)
	if err != nil {
		logger.Error("path gate init failed", "err", err)
		os.Exit(1)
	}

	var devOverride *ownership.DevOverride
	if cfg.DevUIDOverride != nil && cfg.DevGIDOverride != nil {
		devOverride = &ownership.DevOverride{UID: *cfg.DevUIDOverride, GID: *cfg.DevGIDOverride}
		logger.Warn("dev uid/gid override active, all ownership applications will be forced",
			"uid", devOverride.UID, "gid", devOverride.GID)
	}

	var indexStore index.Store
	if cfg.EnableIndex {
		indexStore, err = index.Open(cfg.IndexDatabaseURL)
		if err != nil {
			logger.Error("index store init failed", "err", err)
			os.Exit(1)
		}
		defer indexStore.Close()
	}

	ops := fileops.New(gate, indexStore, devOverride)

	uploadEngine, err := upload.New(cfg.UploadTempDir, cfg.MaxUploadBytes(), cfg.MaxChunkBytes(), gate, devOverride, indexStore, logger)
	if err != nil {
		logger.Error("upload engine init failed", "err", err)
		os.Exit(1)
	}

	searcher := search.New(gate, cfg.SearchMaxRecursiveWildcards)
	thumbnails := thumbnail.New(gate)
	procMetrics := &metrics.Metrics{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uploadEngine.RunJanitor(ctx, time.Duration(cfg.UploadExpiryHours)*time.Hour, time.Duration(cfg.DiskCleanupIntervalHours)*time.Hour)

	if indexStore != nil {
		sc := scanner.New(indexStore, cfg.IndexScanConcurrency, logger)
		runScannerLoop(ctx, sc, cfg, logger, procMetrics)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.New(cfg, gate, ops, uploadEngine, searcher, thumbnails, devOverride, logger, procMetrics),
		ReadHeaderTimeout: 10 * time.Second,
		// ReadTimeout/WriteTimeout are intentionally unbounded: large
		// chunked uploads and directory tar downloads can run far longer
		// than any sane fixed deadline. An upstream reverse proxy is the
		// correct layer to enforce an outer connection timeout.
		ReadTimeout:  0,
		WriteTimeout: 0,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("filegate starting", "port", cfg.Port, "bases", cfg.AllowedBasePaths)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, shutdownSignals...)
	<-quit

	logger.Info("shutdown signal received, draining connections")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}

	logger.Info("filegate stopped")
}

// runScannerLoop runs one full scan at startup and then every
// INDEX_RESCAN_INTERVAL_MINUTES.
func runScannerLoop(ctx context.Context, sc *scanner.Scanner, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) {
	recordScan := func(res scanner.Result, err error) {
		if err != nil {
			logger.Warn("scan failed", "err", err)
			return
		}
		m.ScanActions.Add(res.Added + res.Moved + res.Removed)
	}

	go func() {
		res, err := sc.ScanAll(cfg.AllowedBasePaths)
		recordScan(res, err)

		interval := time.Duration(cfg.IndexRescanIntervalMinutes) * time.Minute
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				res, err := sc.ScanAll(cfg.AllowedBasePaths)
				recordScan(res, err)
			case <-ctx.Done():
				return
			}
		}
	}()
}
