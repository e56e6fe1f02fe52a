package di

import (
	"context"
	"fmt"
	"time"

	"CryptoPulse/internal/domain/repository"
	"CryptoPulse/internal/domain/service"
	"CryptoPulse/internal/handler/api"
	internalrepo "CryptoPulse/internal/repository"
	"CryptoPulse/internal/service/binance"
	icache "CryptoPulse/internal/service/cache"
	"CryptoPulse/internal/service/dataset"
	"CryptoPulse/internal/service/ratelimit"
	"CryptoPulse/internal/services/analytics"
	"CryptoPulse/internal/usecase"
	"CryptoPulse/pkg/cache"
	pkgch "CryptoPulse/pkg/clickhouse"
	"CryptoPulse/pkg/config"
	xhttp "CryptoPulse/pkg/http"
	pkgkafka "CryptoPulse/pkg/kafka"
	applogger "CryptoPulse/pkg/logger"
	"CryptoPulse/pkg/metrics"
	"CryptoPulse/pkg/queue"
	"CryptoPulse/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the app logger. Error logs are aggregated and shipped
// to Kafka when the collector is enabled and a producer exists.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			Service:        "cryptopulse",
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.CountThreshold,
			Topic:          cfg.Log.Collector.Topic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates the Prometheus recorder on the default registry so
// the /metrics handler exposes it.
func ProvideMetrics() *metrics.Recorder {
	pkgkafka.SetConsumerMetricsRegisterer(prometheus.DefaultRegisterer)
	return metrics.New(prometheus.DefaultRegisterer)
}

func ProvideMetricsPort(r *metrics.Recorder) repository.Metrics { return r }

// ProvideRedisCache connects to Redis, or returns nil when it is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.Pool.Size, cfg.Redis.Pool.MinIdleConns, cfg.Redis.Pool.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCache layers an in-process cache over Redis, or falls back to the
// in-process cache alone.
func ProvideCache(rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(2048), cache.WithMemoryCleanup(time.Minute))
	}
	return cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(1024), cache.WithLayeredMemoryTTL(30*time.Second))
}

// ProvideClickHouseClient connects and prepares the archive and history
// schemas, or returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := append(internalrepo.CandleArchiveSchema(client.Database()), internalrepo.HistorySchema(client.Database())...)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

func ProvideCandleArchive(ch *pkgch.Client, l *applogger.Logger) repository.CandleArchive {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHCandleArchive(ch, l)
}

func ProvideHistoryStore(ch *pkgch.Client) repository.HistoryStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHHistoryStore(ch)
}

func ProvideBinanceClient(cfg *config.Config, l *applogger.Logger) *binance.Client {
	return binance.New(binance.Config{
		BaseURL:        cfg.Binance.BaseURL,
		Timeout:        cfg.Binance.Timeout,
		PageLimit:      cfg.Binance.PageLimit,
		RequestsPerSec: cfg.Binance.RequestsPerSec,
		Retries:        cfg.Binance.Retries,
		RetryDelay:     cfg.Binance.RetryDelay,
	}, l)
}

func ProvideBinanceStream(cfg *config.Config, l *applogger.Logger) *binance.Stream {
	return binance.NewStream(binance.StreamConfig{
		URL:          cfg.Binance.StreamURL,
		PingInterval: cfg.Binance.PingInterval,
	}, l)
}

// ProvideMarketData chains exchange, archive and offline dataset sources.
func ProvideMarketData(
	cfg *config.Config,
	client *binance.Client,
	archive repository.CandleArchive,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.MarketData {
	var offline repository.CandleSource
	if cfg.Dataset.Dir != "" {
		offline = dataset.New(cfg.Dataset.Dir, l)
	}
	return usecase.NewMarketData(client, archive, offline, m, l)
}

func ProvideCachedSource(cfg *config.Config, md *usecase.MarketData, c cache.Service, l *applogger.Logger) *usecase.CachedSource {
	return usecase.NewCachedSource(md, c, cfg.Redis.CandleTTL, l)
}

func ProvideModelStore(cfg *config.Config, l *applogger.Logger) (repository.ModelStore, error) {
	store, err := internalrepo.NewFileModelStore(cfg.Models.Dir, icache.NewArtifactCache(cfg.Models.CacheTTL), l)
	if err != nil {
		return nil, fmt.Errorf("model store: %w", err)
	}
	return store, nil
}

// ProvideEngine builds the forecast engine. The shared cache doubles as the
// cross-replica training lock.
func ProvideEngine(
	cfg *config.Config,
	src *usecase.CachedSource,
	store repository.ModelStore,
	c cache.Service,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Engine {
	compat := internalrepo.Compatibility{MaxAge: cfg.Models.MaxAge, MaxDrift: cfg.Models.MaxDrift}
	return usecase.NewEngine(src, store, c, m, l, usecase.EngineConfig{
		Compatible: compat.Check,
		LockTTL:    cfg.Models.LockTimeout,
		NoiseSeed:  cfg.Models.NoiseSeed,
	})
}

func ProvideSummarizer() service.SentimentSummarizer { return analytics.NewSummarizer() }

// ProvideResultPublisher returns nil without Kafka; the reporter then writes
// history entries straight to the store.
func ProvideResultPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.ResultPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Forecast.PublishTopic, cfg.Forecast.HistoryTopic)
}

func ProvideHistory(store repository.HistoryStore, client *binance.Client, l *applogger.Logger) *usecase.History {
	return usecase.NewHistory(store, client, l)
}

func ProvideReporter(
	engine *usecase.Engine,
	summarizer service.SentimentSummarizer,
	pub repository.ResultPublisher,
	history *usecase.History,
	l *applogger.Logger,
) *usecase.Reporter {
	return usecase.NewReporter(engine, summarizer, pub, history, l)
}

// ProvideKafkaConsumer consumes the history topic into the history store. It
// is nil unless Kafka, the history topic and the store are all configured.
func ProvideKafkaConsumer(cfg *config.Config, history *usecase.History, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Forecast.HistoryTopic == "" || !history.Enabled() {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.LoggingHook(l))
	consumer.RegisterHandler(usecase.NewHistoryHandler(cfg.Forecast.HistoryTopic, history))
	return consumer, nil
}

// ProvideTrainingQueue creates the Redis retrain queue, or nil when disabled.
// With zero workers the replica only enqueues.
func ProvideTrainingQueue(cfg *config.Config, rc *cache.RedisCache, engine *usecase.Engine, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.TrainingQueue.Enabled || rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, queue.QueueConfig{
		Workers:    cfg.TrainingQueue.Workers,
		RetryLimit: cfg.TrainingQueue.MaxRetries,
		RetryDelay: cfg.TrainingQueue.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":queue:"+cfg.TrainingQueue.Name))
	q.RegisterJob(usecase.NewRetrainJob(engine, l))
	return q
}

func ProvideTrainingScheduler(q *queue.RedisQueue) *usecase.TrainingScheduler {
	if q == nil {
		return nil
	}
	return usecase.NewTrainingScheduler(q)
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSec)
}

func ProvideHandler(
	cfg *config.Config,
	reporter *usecase.Reporter,
	history *usecase.History,
	scheduler *usecase.TrainingScheduler,
	store repository.ModelStore,
	candles *usecase.CachedSource,
	stream *binance.Stream,
	limiter *ratelimit.Limiter,
	l *applogger.Logger,
) *api.Handler {
	return api.NewHandler(api.Deps{
		Reporter:  reporter,
		History:   history,
		Scheduler: scheduler,
		Store:     store,
		Candles:   candles,
		Ticker:    stream,
		Limiter:   limiter,
		Logger:    l,

		TickerMaxRPS: cfg.Server.TickerMaxRPS,
	})
}

func ProvideHTTPServer(cfg *config.Config, h *api.Handler, l *applogger.Logger) *xhttp.Server {
	path := ""
	if cfg.Metrics.Enabled {
		path = cfg.Metrics.Path
	}
	return xhttp.NewServer(h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(path),
		xhttp.WithLogger(l),
	)
}

// ProvideApp assembles the application lifecycle.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	pub repository.ResultPublisher,
	history repository.HistoryStore,
	c cache.Service,
	ch *pkgch.Client,
) *server.App {
	app := server.New(cfg, l, srv)
	if consumer != nil {
		app.AddComponent(server.ConsumerComponent(consumer))
	}
	if q != nil {
		app.AddComponent(server.QueueComponent(q))
	}
	if history != nil {
		app.AddCloser("history store", history.Close)
	}
	if pub != nil {
		app.AddCloser("result publisher", pub.Close)
	}
	app.AddCloser("cache", c.Close)
	if ch != nil {
		app.AddCloser("clickhouse", ch.Close)
	}
	return app
}
