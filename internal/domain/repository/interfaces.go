package repository

import (
	"context"

	"FinTrade/internal/domain/models"
)

// TradeHistory is the append-only log of realized trades.
type TradeHistory interface {
	Append(ctx context.Context, r models.TradeRecord) error
	Load(ctx context.Context) ([]models.TradeRecord, error)
}

// ArtifactStore persists model artifacts. Publish replaces the current
// (predictor, scaler) pair atomically; readers see the old or the new pair.
type ArtifactStore interface {
	Publish(ctx context.Context, a models.ModelArtifact) error
	Load(ctx context.Context) (models.ModelArtifact, error)
	Current(ctx context.Context) (string, error)
}

// EventPublisher emits engine events to downstream consumers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, e models.EngineEvent) error
	Close() error
}

// TrainingRequester asks for an out-of-band training run without blocking.
type TrainingRequester interface {
	RequestTraining(ctx context.Context, reason string) error
}

type Metrics interface {
	RecordDecision(symbol, action string)
	RecordConfidence(symbol string, score float64)
	RecordRiskRejection(reason string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordBridgeCall(action, result string)
	RecordTransition(state string)
	RecordTraining(samples int, loss, accuracy float64)
	RecordFeatureDefault(feature string)
	RecordLastPrice(symbol string, price float64)
}
