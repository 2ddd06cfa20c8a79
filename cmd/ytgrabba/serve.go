package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/iconidentify/ytgrabba/internal/api"
	"github.com/iconidentify/ytgrabba/internal/api/handler"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/service"
	"github.com/iconidentify/ytgrabba/internal/worker"
)

func runServe(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("serve", stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: ytgrabba serve [options]")
		fmt.Fprintln(stderr, "YTGRABBA_API_KEY must be set.")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	a, err := newApp(*configPath, stderr)
	if err != nil {
		return err
	}
	cfg := a.cfg
	logger := a.logger

	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	if err := os.MkdirAll(cfg.Storage.DownloadDir, 0755); err != nil {
		return fmt.Errorf("%w: create download directory: %w", errConfig, err)
	}
	if _, err := a.locator.Locate(toolName(cfg.Tool)); err != nil {
		return err
	}

	logger.Info("starting ytgrabba",
		"version", Version,
		"build_time", BuildTime,
	)

	engine, err := a.engine()
	if err != nil {
		return err
	}

	var (
		history repository.HistoryRepository
		pinger  handler.Pinger
	)
	if h := a.openHistory(); h != nil {
		defer h.Close()
		history, pinger = h, h
	}

	jobRepo := repository.NewInMemoryJobRepository()
	downloadSvc := service.NewDownloadService(jobRepo, history, engine, cfg.Storage, logger)

	router := api.NewRouter(
		handler.NewDownloadHandler(downloadSvc, logger),
		handler.NewHealthHandler(jobRepo, pinger, cfg.Storage.DownloadDir),
		cfg.Server.APIKey,
	)

	pool := worker.NewPool(
		worker.Config{
			Workers:      cfg.Worker.Count,
			PollInterval: cfg.Worker.PollInterval,
		},
		jobRepo,
		downloadSvc,
		logger,
	)
	pool.Start()

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		pool.Stop(cfg.Server.ShutdownTimeout)
		return fmt.Errorf("listen: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Running downloads are cancelled; their state is still recorded.
	if err := pool.Stop(cfg.Server.ShutdownTimeout); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
