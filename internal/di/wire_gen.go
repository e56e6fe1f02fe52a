//go:build !wireinject
// +build !wireinject

// Hand-maintained counterpart of the wire.go injector. Keep the provider
// order in sync when providers change.

package di

import (
	"CryptoPulse/pkg/config"
	"CryptoPulse/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	producer, err := ProvideKafkaProducer(cfg)
	if err != nil {
		return nil, err
	}
	logger, err := ProvideLogger(cfg, producer)
	if err != nil {
		return nil, err
	}
	recorder := ProvideMetrics()
	metrics := ProvideMetricsPort(recorder)
	redisCache, err := ProvideRedisCache(cfg)
	if err != nil {
		return nil, err
	}
	service := ProvideCache(redisCache)
	client, err := ProvideClickHouseClient(cfg)
	if err != nil {
		return nil, err
	}
	candleArchive := ProvideCandleArchive(client, logger)
	historyStore := ProvideHistoryStore(client)
	modelStore, err := ProvideModelStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	resultPublisher := ProvideResultPublisher(cfg, producer)
	binanceClient := ProvideBinanceClient(cfg, logger)
	stream := ProvideBinanceStream(cfg, logger)
	marketData := ProvideMarketData(cfg, binanceClient, candleArchive, metrics, logger)
	cachedSource := ProvideCachedSource(cfg, marketData, service, logger)
	engine := ProvideEngine(cfg, cachedSource, modelStore, service, metrics, logger)
	sentimentSummarizer := ProvideSummarizer()
	history := ProvideHistory(historyStore, binanceClient, logger)
	reporter := ProvideReporter(engine, sentimentSummarizer, resultPublisher, history, logger)
	consumer, err := ProvideKafkaConsumer(cfg, history, logger)
	if err != nil {
		return nil, err
	}
	redisQueue := ProvideTrainingQueue(cfg, redisCache, engine, logger)
	trainingScheduler := ProvideTrainingScheduler(redisQueue)
	limiter := ProvideRateLimiter(cfg)
	handler := ProvideHandler(cfg, reporter, history, trainingScheduler, modelStore, cachedSource, stream, limiter, logger)
	httpServer := ProvideHTTPServer(cfg, handler, logger)
	app := ProvideApp(cfg, logger, httpServer, consumer, redisQueue, resultPublisher, historyStore, service, client)
	return app, nil
}
