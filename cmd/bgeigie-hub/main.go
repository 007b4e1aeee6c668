package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bgeigie-hub/internal/bgeigie"
	"bgeigie-hub/internal/config"
	"bgeigie-hub/internal/jobs"
	"bgeigie-hub/internal/logging"
	"bgeigie-hub/internal/metrics"
	"bgeigie-hub/internal/notify"
	"bgeigie-hub/internal/quality"
	"bgeigie-hub/internal/store"
	"bgeigie-hub/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./dev.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger, closeLog := logging.Setup(cfg.Logging.Level, cfg.Logging.File)
	defer closeLog()

	metrics.Register()

	st, err := store.Open(cfg.Database.Path, cfg.Database.DataDir)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	decoder := bgeigie.NewDecoder(cfg.Ingest.Headers, logger)
	gate := quality.NewGate(quality.Thresholds{
		MinRecords:     cfg.Ingest.AutoApprove.MinRecords,
		MaxCPM:         cfg.Ingest.AutoApprove.MaxCPM,
		MinGPSFraction: cfg.Ingest.AutoApprove.MinGPSFraction,
	})
	notifier := notify.New(cfg.Notify, logger)

	queue := jobs.New(jobs.Config{
		QueueSize:   cfg.Ingest.QueueSize,
		WaitTimeout: cfg.Ingest.WaitTimeout,
		Recipient:   cfg.Notify.Recipient,
	}, decoder, gate, st, notifier, logger)
	queue.Start(ctx)

	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           web.NewServer(st, queue, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("bgeigie-hub starting", "listen", cfg.Server.Listen, "db", cfg.Database.Path)

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("bgeigie-hub stopping")

	// Stop the HTTP surface first so no new jobs arrive, then drain the
	// queue before the store goes away.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	queue.Stop()
}
