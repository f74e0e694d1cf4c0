package analytics

import (
	"context"
	"fmt"
	"math"

	domrepo "FinTrade/internal/domain/repository"
	domsvc "FinTrade/internal/domain/service"
	"FinTrade/internal/services/features"
)

const (
	rvWindow        = 20
	bollingerPeriod = 20
	trendSpan       = 14
	minInsightBars  = bollingerPeriod + 1
)

// InsightSource turns the prior model's up-move probability into the
// past_model_insight feature. The payload is built from recent candles.
type InsightSource struct {
	store    domrepo.FeatureStore
	scorer   domsvc.EdgeScorer
	tf       domrepo.Timeframe
	lookback int
	horizon  string
}

func NewInsightSource(store domrepo.FeatureStore, scorer domsvc.EdgeScorer, tf domrepo.Timeframe, lookback int, horizon string) *InsightSource {
	if lookback < minInsightBars {
		lookback = minInsightBars
	}
	return &InsightSource{store: store, scorer: scorer, tf: tf, lookback: lookback, horizon: horizon}
}

func (s *InsightSource) Fetch(ctx context.Context, symbol string) (float64, error) {
	payload, err := s.Payload(ctx, symbol)
	if err != nil {
		return 0, err
	}
	score, err := s.scorer.Predict(ctx, symbol, payload, s.horizon)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(score.ProbaUp) || score.ProbaUp < 0 || score.ProbaUp > 1 {
		return 0, fmt.Errorf("proba_up out of range: %v", score.ProbaUp)
	}
	return score.ProbaUp, nil
}

// Payload computes the indicator set posted to the edge scorer.
func (s *InsightSource) Payload(ctx context.Context, symbol string) (map[string]float64, error) {
	candles, err := s.store.GetLatestNCandles(ctx, symbol, s.lookback, s.tf)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	if len(candles) < minInsightBars {
		return nil, fmt.Errorf("insight needs %d candles, got %d", minInsightBars, len(candles))
	}

	closes := features.Closes(candles)
	last := closes[len(closes)-1]
	if last <= 0 {
		return nil, fmt.Errorf("non-positive close %v", last)
	}
	returns := features.ComputeLogReturns(candles)
	upper, lower, err := features.BollingerBands(closes, bollingerPeriod, 2)
	if err != nil {
		return nil, err
	}
	high, low := features.SwingRange(candles)
	fib := features.FibonacciLevels(high, low)

	return map[string]float64{
		"ret_1":     returns[len(returns)-1],
		"rv_20":     features.RealizedVolatility(returns, rvWindow, features.BarsPerYearForTF(string(s.tf))),
		"bb_pctb":   features.PercentB(last, upper, lower),
		"fib_618":   (last - fib[3]) / last,
		"trend_ema": features.TrendStrength(closes, trendSpan) / last,
	}, nil
}
