// Command reduxd runs the store/medium runtime as a standalone process:
// an HTTP server exposing peer, entry, and operational endpoints over one
// port.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"redux/runtime/internal/config"
	"redux/runtime/internal/httpapi"
	"redux/runtime/internal/input"
	"redux/runtime/internal/logging"
	"redux/runtime/internal/redux"
	"redux/runtime/internal/redux/medium"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		println("redux: invalid configuration:", err.Error())
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		println("redux: failed to initialize logging:", err.Error())
		os.Exit(1)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	store := redux.NewStore(cfg.CleanerPeriod, logger)
	store.Start()
	defer store.Stop()

	manager := medium.NewManager(store, logger, medium.ManagerOptions{
		PingInterval:           cfg.PingInterval,
		PickDeadline:           cfg.PickDeadline,
		ReconnectInterval:      cfg.ReconnectInterval,
		CompressThresholdBytes: cfg.CompressThresholdBytes,
		MaxPayloadBytes:        cfg.MaxPayloadBytes,
		AllowedOrigins:         cfg.AllowedOrigins,
		Admission:              input.Config{MaxAge: cfg.AdmissionMaxAge, MinInterval: cfg.AdmissionMinInterval},
	})

	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:      logger,
		Store:       store,
		Remote:      manager,
		AdminToken:  cfg.AdminToken,
		RateLimiter: httpapi.NewSlidingWindowLimiter(time.Minute, 30, nil),
	})

	mux := http.NewServeMux()
	handlers.Register(mux)
	mux.HandleFunc("/peer", func(w http.ResponseWriter, r *http.Request) {
		if err := manager.ServePeer(w, r); err != nil {
			logger.Warn("peer link ended", logging.Error(err))
		}
	})
	mux.HandleFunc("/entry/", func(w http.ResponseWriter, r *http.Request) {
		if err := manager.ServeEntry(w, r); err != nil {
			logger.Warn("entry link ended", logging.Error(err))
		}
	})

	server := &http.Server{
		Addr:    cfg.Address,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", logging.String("address", cfg.Address))
		var err error
		if cfg.TLSCertPath != "" {
			err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server failed", logging.Error(err))
		os.Exit(1)
	case <-sigCh:
		logger.Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", logging.Error(err))
	}
}
