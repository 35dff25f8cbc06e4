// Entry point for the timecap HTTP service: video screenshot capture, cache,
// and short-link registry.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/timecap/capture"
	"github.com/hazyhaar/timecap/clicklog"
	"github.com/hazyhaar/timecap/config"
	"github.com/hazyhaar/timecap/frame"
	"github.com/hazyhaar/timecap/screenshot"
	"github.com/hazyhaar/timecap/shield"
	"github.com/hazyhaar/timecap/shortlink"
	"github.com/hazyhaar/timecap/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Stores.
	artifacts, err := store.NewArtifactStore(cfg.CacheDir)
	if err != nil {
		slog.Error("artifact store", "error", err)
		os.Exit(1)
	}
	links, err := store.NewLinkStore(cfg.LinksDir, store.NewMemCache(), cfg.LinkTTL)
	if err != nil {
		slog.Error("link store", "error", err)
		os.Exit(1)
	}

	// Click event log.
	clicks, err := clicklog.Open(filepath.Join(cfg.DataDir, "clicks.db"), logger)
	if err != nil {
		slog.Error("click log", "error", err)
		os.Exit(1)
	}
	defer clicks.Close()

	// Browser engine.
	engine := capture.NewEngine(logger)
	if err := engine.Start(); err != nil {
		slog.Error("browser engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// Capture pipeline.
	orch := capture.NewOrchestrator(engine,
		capture.WithLogger(logger),
		capture.WithUserAgent(cfg.UserAgent),
		capture.WithFallback(capture.NewThumbnailFallback(logger)),
	)
	meta := capture.NewMetadataExtractor(engine, logger, cfg.BrowserTimeout)
	norm := frame.NewNormalizer(nil, logger)
	shots := screenshot.NewService(artifacts, orch, norm, screenshot.WithLogger(logger))

	// Short-link registry.
	linkSvc := shortlink.NewService(links, artifacts, shots, meta, cfg.BaseURL,
		shortlink.WithLogger(logger),
		shortlink.WithClickLog(clicks),
	)

	// Router.
	r := chi.NewRouter()
	for _, mw := range shield.Default(logger) {
		r.Use(mw)
	}
	srv := &server{cfg: cfg, shots: shots, links: linkSvc, cache: artifacts}
	srv.routes(r)

	// HTTP server.
	httpSrv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Captures can legitimately run for tens of seconds.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "base_url", cfg.BaseURL)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}
