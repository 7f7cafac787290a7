// Package bootstrap wires configuration, logging, storage, enrichment and
// detection into a runnable application.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"argus/anomaly"
	"argus/config"
	"argus/detect"
	"argus/enrich"
)

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	Storage  *StorageComponents
	Pipeline *enrich.Pipeline
	Engine   *detect.Engine
	Detector *anomaly.Detector

	sharedCache *enrich.RedisCache
	shutdownCh  chan struct{}
}

// NewApp loads configuration and initializes every component. A returned App
// is fully started; callers only need WaitForShutdown and Shutdown.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	cfg, err := InitConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, sugar, err := InitLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	sugar.Info("Argus correlation engine starting...")

	repos, err := InitStorage(ctx, cfg, sugar)
	if err != nil {
		return nil, err
	}

	pipeline, sharedCache, err := InitPipeline(ctx, cfg, sugar)
	if err != nil {
		_ = repos.Close(ctx)
		return nil, err
	}

	engine, err := InitEngine(ctx, cfg, pipeline, repos, sugar)
	if err != nil {
		if sharedCache != nil {
			_ = sharedCache.Close()
		}
		_ = repos.Close(ctx)
		return nil, err
	}

	return &App{
		Config:      cfg,
		Logger:      logger,
		Sugar:       sugar,
		Storage:     repos,
		Pipeline:    pipeline,
		Engine:      engine,
		Detector:    anomaly.NewDetector(cfg, sugar),
		sharedCache: sharedCache,
		shutdownCh:  make(chan struct{}),
	}, nil
}

// WaitForShutdown blocks until SIGINT/SIGTERM or a programmatic shutdown.
func (a *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.Sugar.Infow("Received shutdown signal", "signal", sig)
	case <-a.shutdownCh:
		a.Sugar.Info("Programmatic shutdown requested")
	}
}

// RequestShutdown unblocks WaitForShutdown.
func (a *App) RequestShutdown() {
	close(a.shutdownCh)
}

// Shutdown stops components in reverse initialization order.
func (a *App) Shutdown(ctx context.Context) {
	a.Sugar.Info("Shutting down...")

	a.Engine.Stop()
	if a.sharedCache != nil {
		if err := a.sharedCache.Close(); err != nil {
			a.Sugar.Warnw("Failed to close shared cache", "error", err)
		}
	}
	if err := a.Storage.Close(ctx); err != nil {
		a.Sugar.Warnw("Failed to close storage", "error", err)
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
