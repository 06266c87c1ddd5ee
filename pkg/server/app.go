package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"TradeDeck/internal/adapter/redismirror"
	"TradeDeck/internal/broadcast"
	"TradeDeck/internal/domain/repository"
	"TradeDeck/internal/transport"
	"TradeDeck/internal/usecase"
	"TradeDeck/pkg/config"
	xhttp "TradeDeck/pkg/http"
	applogger "TradeDeck/pkg/logger"
)

// App encapsulates the aggregator process lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	agg        *usecase.Aggregator
	manager    *transport.Manager
	bcast      *broadcast.Broadcaster
	adapters   []repository.Adapter
	httpServer *xhttp.Server
	mirror     *redismirror.Mirror
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	agg *usecase.Aggregator,
	manager *transport.Manager,
	bcast *broadcast.Broadcaster,
	adapters []repository.Adapter,
	httpServer *xhttp.Server,
	mirror *redismirror.Mirror,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		agg:        agg,
		manager:    manager,
		bcast:      bcast,
		adapters:   adapters,
		httpServer: httpServer,
		mirror:     mirror,
	}
}

// Run starts the aggregator and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// feed our own warn/error lines back through the pipeline
	a.log.SetCollector(usecase.NewSelfLogCollector(a.agg))

	a.agg.Start(ctx)

	for _, adapter := range a.adapters {
		if err := a.manager.Connect(ctx, adapter); err != nil {
			a.log.Error("source connect failed",
				applogger.String("source", adapter.SourceID()),
				applogger.Error(err))
			continue
		}
		a.log.Info("source registered",
			applogger.String("source", adapter.SourceID()),
			applogger.String("mode", string(adapter.Mode())))
	}

	var unsubMirror func()
	if a.mirror != nil {
		unsubMirror = a.bcast.Subscribe(a.mirror.Publish)
		a.log.Info("redis snapshot mirror enabled")
	}

	if err := a.httpServer.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(unsubMirror)
}

// shutdown stops ingestion first so the final snapshot stays consistent, then
// tears down the read surface.
func (a *App) shutdown(unsubMirror func()) error {
	a.log.SetCollector(nil)

	a.manager.Shutdown()
	a.agg.Stop()

	if unsubMirror != nil {
		unsubMirror()
	}
	a.bcast.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.log.Warn("redis mirror close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
