package service

import (
	"context"

	"FinTrade/internal/domain/models"
)

// EdgeScorer predicts the probability of an upward move for a horizon.
type EdgeScorer interface {
	Predict(ctx context.Context, symbol string, features map[string]float64, horizon string) (models.EdgeScore, error)
}
