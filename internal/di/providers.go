package di

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SignalHook/internal/domain/repository"
	"SignalHook/internal/handler/api"
	internalrepo "SignalHook/internal/repository"
	streammetrics "SignalHook/internal/service/metrics"
	"SignalHook/internal/service/ratelimit"
	"SignalHook/internal/services/consensus"
	"SignalHook/internal/services/indicators"
	"SignalHook/internal/usecase"
	"SignalHook/pkg/cache"
	pkgch "SignalHook/pkg/clickhouse"
	"SignalHook/pkg/config"
	xhttp "SignalHook/pkg/http"
	pkgkafka "SignalHook/pkg/kafka"
	applogger "SignalHook/pkg/logger"
	"SignalHook/pkg/metrics"
	"SignalHook/pkg/server"
	"SignalHook/pkg/tracing"
)

const (
	serviceName   = "signalhook"
	slowDispatch  = 2 * time.Second
	redisPrefix   = "signalhook"
	schemaTimeout = 10 * time.Second
)

// ProvideKafkaProducer creates the shared Kafka producer, or nil when no component needs it.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.KafkaEnabled() {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the zerolog logger and, when enabled, attaches the
// aggregating collector that ships repeated entries to Kafka.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			Service:        serviceName,
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.CountThreshold,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      producer,
			IgnoreFields:   []string{"event_id", "intent_id", "offset", "took"},
		})
	}
	return l, nil
}

// ProvideTracer creates the otel tracer; disabled tracing yields no-op spans.
func ProvideTracer(cfg *config.Config) (*tracing.Tracer, error) {
	t, err := tracing.New(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	return t, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	streammetrics.Register(nil)
	return metrics.New(nil)
}

// ProvideDB opens the ledger database and applies the schema.
func ProvideDB(cfg *config.Config) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()

	dialect := internalrepo.Dialect(cfg.Storage.Driver)
	db, err := internalrepo.OpenDB(ctx, dialect, cfg.Storage.DSN,
		internalrepo.WithPool(cfg.Storage.MaxOpenConns, cfg.Storage.MaxIdleConns, cfg.Storage.ConnMaxLife))
	if err != nil {
		return nil, err
	}
	if err := internalrepo.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ProvideSQLStore backs bots, events and trade intents with one database.
func ProvideSQLStore(db *sql.DB, cfg *config.Config, l *applogger.Logger) *internalrepo.SQLStore {
	return internalrepo.NewSQLStore(db, internalrepo.Dialect(cfg.Storage.Driver), l)
}

// ProvideCache selects the bot cache and event claim backend.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	switch cfg.Cache.Backend {
	case "redis", "layered":
		rc, err := cache.NewRedisCache(
			cache.WithRedisAddr(cfg.Cache.Redis.Addr),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
			cache.WithRedisPrefix(redisPrefix),
			cache.WithRedisPool(cfg.Cache.Redis.PoolSize, cfg.Cache.Redis.MinIdleConns, cfg.Cache.Redis.PoolTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		if cfg.Cache.Backend == "layered" {
			return cache.NewLayeredCache(rc,
				cache.WithLayeredMemorySize(cfg.Cache.MemorySize),
				cache.WithLayeredMemoryTTL(cfg.Cache.BotTTL),
			), nil
		}
		return rc, nil
	default:
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MemorySize),
			cache.WithMemoryCleanup(cfg.Cache.CleanupInterval),
		), nil
	}
}

func ProvideBotRegistry(store *internalrepo.SQLStore, c cache.Service, cfg *config.Config, l *applogger.Logger) *usecase.BotRegistry {
	return usecase.NewBotRegistry(store, c, cfg.Cache.BotTTL, l)
}

// ProvideClickHouseClient connects to the candle store, or returns nil when disabled.
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
		pkgch.WithReadonly(true),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if err := client.Health(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return client, nil
}

// ProvideMarketData returns the ClickHouse snapshot reader. Without ClickHouse,
// bots with indicators fail their events with a market data error.
func ProvideMarketData(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.MarketData, error) {
	if ch == nil {
		return nil, nil
	}
	md, err := internalrepo.NewCHMarketData(ch, cfg.ClickHouse.Table, l)
	if err != nil {
		return nil, err
	}
	return md, nil
}

// ProvideExecutor picks the downstream order sink.
func ProvideExecutor(cfg *config.Config, producer *pkgkafka.Producer, l *applogger.Logger) (repository.Executor, error) {
	switch cfg.Execution.Backend {
	case "kafka":
		if producer == nil {
			return nil, fmt.Errorf("kafka executor needs a producer")
		}
		return internalrepo.NewKafkaExecutor(producer, cfg.Kafka.Topics.Intents), nil
	case "http":
		return internalrepo.NewHTTPExecutor(cfg.Execution.URL, cfg.Execution.APIKey, cfg.Execution.Timeout), nil
	default:
		return internalrepo.NewLogExecutor(l), nil
	}
}

func ProvideTradeIntentIssuer(store *internalrepo.SQLStore, executor repository.Executor, cfg *config.Config, l *applogger.Logger) *usecase.TradeIntentIssuer {
	return usecase.NewTradeIntentIssuer(store, executor, cfg.Execution.TestOrders, l)
}

// ProvideConsensusEngine registers the configured CUSTOM decision services.
func ProvideConsensusEngine(cfg *config.Config, l *applogger.Logger) *consensus.Engine {
	engine := consensus.NewEngine()
	for botID, url := range cfg.Consensus.CustomPolicies {
		engine.RegisterPolicy(botID, consensus.NewHTTPPolicy(url, cfg.Consensus.PolicyTimeout, cfg.Consensus.PolicyAttempts))
		l.Info("custom policy registered", applogger.String("bot_id", botID), applogger.String("url", url))
	}
	return engine
}

func ProvideEventHub(l *applogger.Logger) *usecase.EventHub {
	return usecase.NewEventHub(l)
}

func ProvideSignalProcessor(
	cfg *config.Config,
	store *internalrepo.SQLStore,
	registry *usecase.BotRegistry,
	market repository.MarketData,
	engine *consensus.Engine,
	issuer *usecase.TradeIntentIssuer,
	hub *usecase.EventHub,
	c cache.Service,
	m repository.Metrics,
	tracer *tracing.Tracer,
	l *applogger.Logger,
) *usecase.SignalProcessor {
	return usecase.NewSignalProcessor(usecase.ProcessorConfig{
		RetryMax:          cfg.Processing.RetryMax,
		BackoffMin:        cfg.Processing.BackoffMin,
		BackoffMax:        cfg.Processing.BackoffMax,
		LookupTimeout:     cfg.Processing.LookupTimeout,
		MarketDataTimeout: cfg.Processing.MarketDataTimeout,
		ExecutionTimeout:  cfg.Processing.ExecutionTimeout,
		SnapshotBars:      cfg.Processing.SnapshotBars,
		ClaimTTL:          cfg.Processing.ClaimTTL,
		RecoveryBatch:     cfg.Processing.RecoveryBatch,
	}, usecase.ProcessorDeps{
		Events:    store,
		Registry:  registry,
		Market:    market,
		Evaluator: indicators.NewEvaluator(),
		Engine:    engine,
		Issuer:    issuer,
		Notifier:  hub,
		Locker:    c,
		Metrics:   m,
		Tracer:    tracer,
		Logger:    l,
	})
}

// ProvideDispatcher returns the per-bot in-process queues or the Kafka topic.
func ProvideDispatcher(cfg *config.Config, proc *usecase.SignalProcessor, producer *pkgkafka.Producer, m repository.Metrics, l *applogger.Logger) (repository.Dispatcher, error) {
	if cfg.Dispatch.Backend == "kafka" {
		if producer == nil {
			return nil, fmt.Errorf("kafka dispatch needs a producer")
		}
		return usecase.NewKafkaDispatcher(producer, cfg.Kafka.Topics.Dispatch), nil
	}
	return usecase.NewMemoryDispatcher(usecase.DispatcherConfig{
		QueueSize:   cfg.Dispatch.QueueSize,
		DropPolicy:  usecase.DropPolicy(cfg.Dispatch.DropPolicy),
		IdleTimeout: cfg.Dispatch.IdleTimeout,
	}, proc.Process, proc.FailBackpressure, m, l), nil
}

// ProvideKafkaConsumer creates the dispatch topic consumer, or nil for in-process dispatch.
func ProvideKafkaConsumer(cfg *config.Config, proc *usecase.SignalProcessor, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Dispatch.Backend != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.StartOffset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewDispatchHandler(cfg.Kafka.Topics.Dispatch, proc.Process, m))
	consumer.WithConsumerHook(usecase.NewDispatchHooks(l, slowDispatch))
	return consumer, nil
}

// ProvideRateLimiter returns nil when webhook rate limiting is disabled.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.Webhook.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.Webhook.RateLimit.Capacity, cfg.Webhook.RateLimit.Refill)
}

// ProvideWebhookIngest re-dispatches stale replays once the claim TTL has
// passed, so a live claim on the original is never raced.
func ProvideWebhookIngest(
	cfg *config.Config,
	registry *usecase.BotRegistry,
	store *internalrepo.SQLStore,
	dispatcher repository.Dispatcher,
	hub *usecase.EventHub,
	limiter *ratelimit.Limiter,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.WebhookIngest {
	return usecase.NewWebhookIngest(registry, store, dispatcher, hub, limiter, m, l,
		usecase.WithRedispatchAfter(cfg.Processing.ClaimTTL))
}

func ProvideEventQuery(registry *usecase.BotRegistry, store *internalrepo.SQLStore) *usecase.EventQuery {
	return usecase.NewEventQuery(registry, store, store)
}

func ProvideSeeder(store *internalrepo.SQLStore, registry *usecase.BotRegistry, l *applogger.Logger) *usecase.Seeder {
	return usecase.NewSeeder(store, registry, l)
}

// ProvideHandlers lists every route group served by the HTTP server.
func ProvideHandlers(cfg *config.Config, ingest *usecase.WebhookIngest, query *usecase.EventQuery, hub *usecase.EventHub, l *applogger.Logger) []xhttp.Handler {
	return []xhttp.Handler{
		api.NewWebhookEchoHandler(ingest, cfg.Webhook.MaxBodyBytes, l),
		api.NewBotsEchoHandler(query, ingest, hub, cfg.Auth.OwnerHeader, cfg.Webhook.MaxBodyBytes, l),
	}
}

func ProvideHTTPServer(cfg *config.Config, handlers []xhttp.Handler, l *applogger.Logger) *xhttp.Server {
	path := ""
	if cfg.Metrics.Enabled {
		path = cfg.Metrics.Path
	}
	return xhttp.NewServer(handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
		xhttp.WithMetricsPath(path),
		xhttp.WithCORS(cfg.Server.CORS),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	proc *usecase.SignalProcessor,
	dispatcher repository.Dispatcher,
	consumer *pkgkafka.Consumer,
	hub *usecase.EventHub,
	seeder *usecase.Seeder,
	limiter *ratelimit.Limiter,
	producer *pkgkafka.Producer,
	db *sql.DB,
	c cache.Service,
	ch *pkgch.Client,
	tracer *tracing.Tracer,
) *server.App {
	return server.New(server.Deps{
		Config:     cfg,
		Logger:     l,
		HTTP:       httpServer,
		Processor:  proc,
		Dispatcher: dispatcher,
		Consumer:   consumer,
		Hub:        hub,
		Seeder:     seeder,
		Limiter:    limiter,
		Producer:   producer,
		DB:         db,
		Cache:      c,
		ClickHouse: ch,
		Tracer:     tracer,
	})
}
