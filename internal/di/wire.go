//go:build wireinject
// +build wireinject

package di

import (
	"SignalHook/pkg/config"
	"SignalHook/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideTracer,
		ProvideMetrics,
		ProvideDB,
		ProvideCache,
		ProvideClickHouseClient,

		// Repositories
		ProvideSQLStore,
		ProvideMarketData,
		ProvideExecutor,

		// Use cases
		ProvideBotRegistry,
		ProvideTradeIntentIssuer,
		ProvideConsensusEngine,
		ProvideEventHub,
		ProvideSignalProcessor,
		ProvideDispatcher,
		ProvideKafkaConsumer,
		ProvideRateLimiter,
		ProvideWebhookIngest,
		ProvideEventQuery,
		ProvideSeeder,

		// HTTP
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
