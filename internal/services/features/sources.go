package features

import (
	"context"
	"fmt"
	"math"

	domrepo "FinTrade/internal/domain/repository"
)

const (
	baseRiskFactor = 1.5
	minRiskScale   = 0.8
	maxRiskScale   = 1.2
)

// VolatilitySource reports ATR(period) relative to the last close.
type VolatilitySource struct {
	store  domrepo.FeatureStore
	tf     domrepo.Timeframe
	period int
}

func NewVolatilitySource(store domrepo.FeatureStore, tf domrepo.Timeframe, period int) *VolatilitySource {
	if period < 1 {
		period = 14
	}
	return &VolatilitySource{store: store, tf: tf, period: period}
}

func (s *VolatilitySource) Fetch(ctx context.Context, symbol string) (float64, error) {
	candles, err := s.store.GetLatestNCandles(ctx, symbol, s.period+1, s.tf)
	if err != nil {
		return 0, fmt.Errorf("load candles: %w", err)
	}
	atr, err := ATR(candles, s.period)
	if err != nil {
		return 0, err
	}
	last := candles[len(candles)-1].Close
	if last <= 0 {
		return 0, fmt.Errorf("non-positive close %v", last)
	}
	return atr / last, nil
}

// RiskFactorSource scales the base risk factor 1.5 by the ratio of short to
// long ATR, clamped to [0.8, 1.2]: recent expansion raises it.
type RiskFactorSource struct {
	store       domrepo.FeatureStore
	tf          domrepo.Timeframe
	short, long int
}

func NewRiskFactorSource(store domrepo.FeatureStore, tf domrepo.Timeframe, short, long int) *RiskFactorSource {
	if short < 1 {
		short = 5
	}
	if long <= short {
		long = short * 3
	}
	return &RiskFactorSource{store: store, tf: tf, short: short, long: long}
}

func (s *RiskFactorSource) Fetch(ctx context.Context, symbol string) (float64, error) {
	candles, err := s.store.GetLatestNCandles(ctx, symbol, s.long+1, s.tf)
	if err != nil {
		return 0, fmt.Errorf("load candles: %w", err)
	}
	longATR, err := ATR(candles, s.long)
	if err != nil {
		return 0, err
	}
	shortATR, err := ATR(candles, s.short)
	if err != nil {
		return 0, err
	}
	return RiskFactor(shortATR, longATR), nil
}

// RiskFactor is 1.5 × clamp(short/long, 0.8, 1.2) rounded to 3 decimals.
// A zero long ATR leaves the base factor.
func RiskFactor(shortATR, longATR float64) float64 {
	scale := 1.0
	if longATR > 0 {
		scale = math.Min(maxRiskScale, math.Max(minRiskScale, shortATR/longATR))
	}
	return round(baseRiskFactor*scale, 3)
}
