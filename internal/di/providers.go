package di

import (
	"context"
	"fmt"
	"time"

	"FinTrade/internal/domain/repository"
	"FinTrade/internal/domain/service"
	"FinTrade/internal/handler/api"
	internalrepo "FinTrade/internal/repository"
	"FinTrade/internal/service/bridge"
	"FinTrade/internal/service/quotes"
	"FinTrade/internal/services/analytics"
	"FinTrade/internal/services/features"
	"FinTrade/internal/services/model"
	"FinTrade/internal/usecase"
	"FinTrade/pkg/cache"
	pkgch "FinTrade/pkg/clickhouse"
	"FinTrade/pkg/config"
	xhttp "FinTrade/pkg/http"
	pkgkafka "FinTrade/pkg/kafka"
	applogger "FinTrade/pkg/logger"
	"FinTrade/pkg/metrics"
	"FinTrade/pkg/queue"
	"FinTrade/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProvideLogger creates the root logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates the Prometheus registry shared by every component.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.New(reg)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
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
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideCache creates the Redis cache when enabled and an in-process cache
// otherwise. Distributed ticket locks need Redis to span replicas.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(10000), cache.WithMemoryCleanup(time.Minute)), nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
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
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher publishes engine events to Kafka, or drops them.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideCandleBook creates the in-memory candle aggregate fed by the quote stream.
func ProvideCandleBook(cfg *config.Config) *quotes.CandleBook {
	return quotes.NewCandleBook(repository.NormalizeTimeframe(cfg.Sources.Candles.Timeframe), cfg.Quotes.MaxCandles)
}

// ProvideFeatureStore selects where feature sources read candles from.
func ProvideFeatureStore(cfg *config.Config, book *quotes.CandleBook, ch *pkgch.Client, l *applogger.Logger) (repository.FeatureStore, error) {
	if cfg.Sources.Candles.Store != "clickhouse" {
		return book, nil
	}
	store := internalrepo.NewCHFeatureStore(ch, cfg.ClickHouse.Database+"."+cfg.ClickHouse.CandlesTable, l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ch.InitSchema(ctx, store.Schema()); err != nil {
		return nil, fmt.Errorf("clickhouse candle schema: %w", err)
	}
	return store, nil
}

// ProvideFeatureAggregator wires the five deployed feature sources. Sources
// without a configured endpoint always fall back to their default.
func ProvideFeatureAggregator(
	cfg *config.Config,
	store repository.FeatureStore,
	c cache.Service,
	m repository.Metrics,
	l *applogger.Logger,
) (*usecase.FeatureAggregator, error) {
	src := cfg.Sources
	tf := repository.NormalizeTimeframe(src.Candles.Timeframe)

	var orderFlow, sentiment, insight usecase.FeatureSource
	if src.OrderFlow.URL != "" {
		orderFlow = analytics.NewOrderFlowSource(src.OrderFlow.URL, cfg.Trading.CallTimeout, src.OrderFlow.DepthLimit, src.OrderFlow.SymbolMap)
	}
	if src.Analytics.URL != "" {
		sentiment = analytics.NewSentimentSource(src.Analytics.URL, src.Analytics.Timeout, src.Analytics.Attempts, c, src.Analytics.CacheTTL)
		scorer := analytics.NewHTTPEdgeScorer(src.Analytics.URL, src.Analytics.Timeout, src.Analytics.Attempts)
		insight = analytics.NewInsightSource(store, scorer, tf, src.Candles.Lookback, src.Analytics.Horizon)
	}
	volatility := features.NewVolatilitySource(store, tf, src.Candles.ATRPeriod)
	riskFactor := features.NewRiskFactorSource(store, tf, 5, src.Candles.ATRPeriod)

	return usecase.NewFeatureAggregator(
		usecase.DefaultFeatureSpecs(orderFlow, sentiment, insight, volatility, riskFactor),
		cfg.Trading.CallTimeout, m, l,
	)
}

// ProvideArtifactStore creates the versioned model artifact store.
func ProvideArtifactStore(cfg *config.Config, l *applogger.Logger) *internalrepo.FileArtifactStore {
	return internalrepo.NewFileArtifactStore(cfg.Model, l)
}

// ProvideConfidenceModel loads the current artifact. A missing artifact is
// a cold start, not an error.
func ProvideConfidenceModel(cfg *config.Config, store repository.ArtifactStore, agg *usecase.FeatureAggregator, l *applogger.Logger) (*model.ConfidenceModel, error) {
	cm := model.NewConfidenceModel(store, cfg.Model, agg.Layout(), l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := cm.Load(ctx); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return cm, nil
}

// ProvideTradeHistory creates the configured trade history backend.
func ProvideTradeHistory(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (repository.TradeHistory, error) {
	if cfg.History.Backend != "clickhouse" {
		return internalrepo.NewFileTradeHistory(cfg.History.File, l), nil
	}
	h := internalrepo.NewCHTradeHistory(ch, cfg.ClickHouse.Database+"."+cfg.History.Table, l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ch.InitSchema(ctx, h.Schema()); err != nil {
		return nil, fmt.Errorf("clickhouse history schema: %w", err)
	}
	return h, nil
}

// ProvideBridge creates the execution bridge.
func ProvideBridge(cfg *config.Config, book *quotes.CandleBook, l *applogger.Logger) (service.Bridge, error) {
	if cfg.Bridge.Type == "http" {
		return bridge.NewHTTPBridge(cfg.Bridge, l)
	}
	return bridge.NewSimBridge(cfg.Bridge, cfg.Risk.MarginPerLot, book, l), nil
}

func ProvideRiskSizer(cfg *config.Config) *usecase.RiskSizer {
	return usecase.NewRiskSizer(cfg.Trading, cfg.Risk)
}

func ProvideDecisionPolicy(cfg *config.Config) *usecase.DecisionPolicy {
	return usecase.NewDecisionPolicy(cfg.Policy)
}

// ProvideLifecycleManager creates the ticket state machine. Ticket locks go
// through the cache when distributed locks are enabled.
func ProvideLifecycleManager(
	cfg *config.Config,
	b service.Bridge,
	sizer *usecase.RiskSizer,
	history repository.TradeHistory,
	events repository.EventPublisher,
	m repository.Metrics,
	c cache.Service,
	l *applogger.Logger,
) *usecase.LifecycleManager {
	var opts []usecase.LifecycleOption
	if cfg.Trading.DistributedLocks {
		opts = append(opts, usecase.WithDistributedLocks(c, cfg.Trading.LockTTL))
	}
	return usecase.NewLifecycleManager(b, sizer, history, events, m, cfg.Trading.CallTimeout, l, opts...)
}

func ProvideRetrainingLoop(
	cfg *config.Config,
	history repository.TradeHistory,
	store repository.ArtifactStore,
	cm *model.ConfidenceModel,
	events repository.EventPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.RetrainingLoop {
	return usecase.NewRetrainingLoop(cfg.Retraining, cfg.Model.MinSamples, history, store, cm, events, m, l)
}

// ProvideTrainingQueue creates the Redis job queue for training requests,
// or nil when the cache is not Redis.
func ProvideTrainingQueue(cfg *config.Config, c cache.Service, loop *usecase.RetrainingLoop, l *applogger.Logger) *queue.RedisQueue {
	rc, ok := c.(*cache.RedisCache)
	if !ok {
		return nil
	}
	q := queue.NewRedisQueue(l, queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Queue.Prefix))
	q.RegisterJobs(usecase.NewTrainingJob(loop, l))
	return q
}

func ProvideDecisionEngine(
	cfg *config.Config,
	agg *usecase.FeatureAggregator,
	cm *model.ConfidenceModel,
	policy *usecase.DecisionPolicy,
	sizer *usecase.RiskSizer,
	b service.Bridge,
	lifecycle *usecase.LifecycleManager,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.DecisionEngine {
	return usecase.NewDecisionEngine(cfg.Trading, agg, cm, policy, sizer, b, lifecycle, m, l)
}

func ProvideSignalDispatcher(cfg *config.Config, sizer *usecase.RiskSizer, lifecycle *usecase.LifecycleManager, l *applogger.Logger) *usecase.SignalDispatcher {
	return usecase.NewSignalDispatcher(cfg.Signals.File, cfg.Trading.Interval(), cfg.Signals.Watch, sizer, lifecycle, l)
}

func ProvideQuoteStream(cfg *config.Config, book *quotes.CandleBook, m repository.Metrics, l *applogger.Logger) *quotes.Stream {
	return quotes.NewStream(cfg.Quotes, book, m, l)
}

// ProvideKafkaConsumer creates the outcome consumer, or nil when disabled.
func ProvideKafkaConsumer(
	cfg *config.Config,
	lifecycle *usecase.LifecycleManager,
	history repository.TradeHistory,
	m repository.Metrics,
	reg *prometheus.Registry,
	l *applogger.Logger,
) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
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
		pkgkafka.WithConsumerRegisterer(reg),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewOutcomeHandler(cfg.Kafka.OutcomesTopic, lifecycle, history, m, l))
	return consumer, nil
}

func ProvideHTTPHandler(
	l *applogger.Logger,
	lifecycle *usecase.LifecycleManager,
	engine *usecase.DecisionEngine,
	cm *model.ConfidenceModel,
	loop *usecase.RetrainingLoop,
	sizer *usecase.RiskSizer,
	market *usecase.MarketUseCase,
	backtester *usecase.Backtester,
) xhttp.Handler {
	return xhttp.Handlers{
		api.NewEngineEchoHandler(l, lifecycle, engine, cm, loop, sizer),
		api.NewMarketEchoHandler(l, market, backtester),
	}
}

// ProvideMarketUseCase serves candle snapshots from the store the feature
// sources read.
func ProvideMarketUseCase(cfg *config.Config, store repository.FeatureStore) *usecase.MarketUseCase {
	return usecase.NewMarketUseCase(store, cfg.Sources.Candles.ATRPeriod)
}

// ProvideBacktester replays stored candles through the live model, policy
// and stop levels, valuing lots like the simulated terminal.
func ProvideBacktester(
	cfg *config.Config,
	store repository.FeatureStore,
	cm *model.ConfidenceModel,
	policy *usecase.DecisionPolicy,
	sizer *usecase.RiskSizer,
	l *applogger.Logger,
) *usecase.Backtester {
	return usecase.NewBacktester(store, cm, policy, sizer, cfg.Bridge.Sim.ContractSize, cfg.Sources.Candles.ATRPeriod, l)
}

// ProvideHTTPServer creates the operator API server, or nil when disabled.
func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg, reg))
	} else {
		opts = append(opts, xhttp.WithMetrics("", nil, nil))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideApp assembles the runners and closers of the process.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	ch *pkgch.Client,
	c cache.Service,
	events repository.EventPublisher,
	book *quotes.CandleBook,
	store repository.FeatureStore,
	cm *model.ConfidenceModel,
	engine *usecase.DecisionEngine,
	loop *usecase.RetrainingLoop,
	q *queue.RedisQueue,
	dispatcher *usecase.SignalDispatcher,
	stream *quotes.Stream,
	consumer *pkgkafka.Consumer,
	srv *xhttp.Server,
) *server.App {
	app := server.New(l, nil, nil)

	if q != nil {
		cm.SetTrainingRequester(usecase.NewQueueTrainingRequester(q))
		app.AddRunner(server.Runner{Name: "training_queue", Run: q.Run})
	} else {
		cm.SetTrainingRequester(loop)
	}

	app.AddRunner(server.Runner{Name: "decision_loop", Run: engine.Run})
	if cfg.Retraining.Enabled {
		app.AddRunner(server.Runner{Name: "retraining_loop", Run: loop.Run})
	}
	if cfg.Signals.Enabled {
		app.AddRunner(server.Runner{Name: "signal_dispatcher", Run: dispatcher.Run})
	}
	if cfg.Quotes.Enabled {
		app.AddRunner(server.Runner{Name: "quote_stream", Run: stream.Run})
	}
	if cs, ok := store.(*internalrepo.CHFeatureStore); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		quotes.Preload(ctx, book, cs, cfg.Quotes.Symbols, cfg.Sources.Candles.Lookback, l)
		cancel()
		if cfg.Quotes.Enabled {
			flusher := quotes.NewFlusher(book, cs, cfg.Quotes.Symbols, l)
			app.AddRunner(server.Runner{Name: "candle_flusher", Run: flusher.Run})
		}
	}
	if consumer != nil {
		app.AddRunner(server.Runner{Name: "outcome_consumer", Run: consumer.Run})
	}
	if srv != nil {
		app.AddRunner(server.Runner{Name: "http", Run: srv.Serve})
	}

	if ch != nil {
		app.AddCloser(server.Closer{Name: "clickhouse", Close: ch.Close})
	}
	app.AddCloser(server.Closer{Name: "cache", Close: c.Close})
	app.AddCloser(server.Closer{Name: "events", Close: events.Close})
	return app
}
