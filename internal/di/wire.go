//go:build wireinject
// +build wireinject

package di

import (
	"FinTrade/internal/domain/repository"
	internalrepo "FinTrade/internal/repository"
	"FinTrade/pkg/config"
	"FinTrade/pkg/metrics"
	"FinTrade/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),
	ProvideClickHouseClient,
	ProvideCache,
	ProvideKafkaProducer,
	ProvideEventPublisher,
)

var engineSet = wire.NewSet(
	ProvideCandleBook,
	ProvideFeatureStore,
	ProvideFeatureAggregator,
	ProvideArtifactStore,
	wire.Bind(new(repository.ArtifactStore), new(*internalrepo.FileArtifactStore)),
	ProvideConfidenceModel,
	ProvideTradeHistory,
	ProvideBridge,
	ProvideRiskSizer,
	ProvideDecisionPolicy,
	ProvideLifecycleManager,
	ProvideRetrainingLoop,
	ProvideTrainingQueue,
	ProvideDecisionEngine,
	ProvideSignalDispatcher,
	ProvideQuoteStream,
	ProvideKafkaConsumer,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		engineSet,
		ProvideMarketUseCase,
		ProvideBacktester,
		ProvideHTTPHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
