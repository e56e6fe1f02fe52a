//go:build wireinject
// +build wireinject

package di

import (
	"CryptoPulse/pkg/config"
	"CryptoPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideMetricsPort,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideCache,
		ProvideClickHouseClient,

		// Repositories
		ProvideCandleArchive,
		ProvideHistoryStore,
		ProvideModelStore,
		ProvideResultPublisher,

		// Market data
		ProvideBinanceClient,
		ProvideBinanceStream,
		ProvideMarketData,
		ProvideCachedSource,

		// Use cases
		ProvideEngine,
		ProvideSummarizer,
		ProvideHistory,
		ProvideReporter,
		ProvideKafkaConsumer,
		ProvideTrainingQueue,
		ProvideTrainingScheduler,

		// HTTP
		ProvideRateLimiter,
		ProvideHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
