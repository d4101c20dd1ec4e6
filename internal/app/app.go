package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"trayaudit/internal/config"
	"trayaudit/internal/logger"
	"trayaudit/internal/route"
	feedhub "trayaudit/internal/service/websocket"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	config   *config.Config
	logger   *logger.Logger
	pipeline *Pipeline
	hub      *feedhub.HubService
}

func NewApp(ctx context.Context) (*App, error) {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	pipeline, err := NewPipeline(ctx, cfg, log)
	if err != nil {
		log.Close()
		return nil, err
	}

	return &App{
		config:   cfg,
		logger:   log,
		pipeline: pipeline,
		hub:      feedhub.NewHubService(log),
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	go a.hub.Run(ctx)

	router := route.SetupRoutes(route.Services{
		Analyzer:  a.pipeline.Analyzer,
		Results:   a.pipeline.Results,
		Artifacts: a.pipeline.Artifacts,
		Hub:       a.hub,
	}, a.config, a.logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("Tray audit server listening on http://localhost:%d", a.config.Port)
	a.logger.Info("Storage backend: %s, database: %s", a.config.StorageBackend, a.config.DatabasePath)
	if a.config.Password == "" {
		a.logger.Warning("PASSWORD is not set, the API is open")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Close releases the pipeline and the log files.
func (a *App) Close() {
	a.pipeline.Close()
	a.logger.Close()
}
