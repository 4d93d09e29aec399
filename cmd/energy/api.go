package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"energy-forecast/internal/handlers"
	"energy-forecast/internal/prediction"
	"energy-forecast/internal/services"
	"energy-forecast/pkg/logging"
)

func runAPI(a *app, args []string) int {
	ctx := context.Background()
	a.logger.Info(ctx, "[STARTUP] Starting energy forecast API server", logging.Fields{
		"version":     version,
		"server_host": a.cfg.Server.Host,
		"server_port": a.cfg.Server.Port,
		"db_driver":   a.cfg.Database.Driver,
		"models_path": a.store.Dir(),
	})

	registry := prediction.NewRegistry(ctx, a.store, a.models, a.logger)
	forecasts := prediction.NewForecastPredictor(
		prediction.NewForecastService(a.repo, a.models, a.logger),
		registry, a.clock, a.logger, a.metrics,
	)
	stats := services.NewStatisticsService(a.repo, a.nominalPowers(), a.logger, a.metrics)
	handler := handlers.NewEnergyHandler(a.repo, registry, forecasts, stats, a.logger, a.metrics)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:      handlers.NewRouter(handler, nil),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return a.fatal(ctx, "[SERVER_ERROR] Server failed", err)
	case <-quit:
	}

	a.logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
		return 1
	}

	a.logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
	return 0
}
