//go:build wireinject
// +build wireinject

package di

import (
	"TradeDeck/pkg/config"
	"TradeDeck/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// State pipeline
		ProvideEngine,
		ProvideStore,
		ProvideBroadcaster,
		ProvideAggregator,

		// Ingestion
		ProvideMonitor,
		ProvideNormalizer,
		ProvideManager,
		ProvideAdapters,

		// Read surface
		ProvideHandler,
		ProvideHTTPServer,
		ProvideMirror,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
