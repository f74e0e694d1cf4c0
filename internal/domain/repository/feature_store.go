package repository

import (
	"context"

	"FinTrade/internal/domain/models"
)

// FeatureStore provides read-only access to candles for feature sources.
type FeatureStore interface {
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}
