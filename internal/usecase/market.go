package usecase

import (
	"context"
	"fmt"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	domrepo "FinTrade/internal/domain/repository"
	"FinTrade/internal/services/features"
)

const (
	maxSnapshotCandles = 1000
	bollingerPeriod    = 20
	trendSpan          = 12
)

// MarketUseCase reads recent candles and the indicators the feature sources
// derive from them.
type MarketUseCase struct {
	store     domrepo.FeatureStore
	atrPeriod int
}

func NewMarketUseCase(store domrepo.FeatureStore, atrPeriod int) *MarketUseCase {
	if atrPeriod < 1 {
		atrPeriod = 14
	}
	return &MarketUseCase{store: store, atrPeriod: atrPeriod}
}

type SnapshotParams struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	N         int
}

// Indicators are computed over the returned candles. Fields whose window is
// longer than the available history are left nil.
type Indicators struct {
	ATR        *float64  `json:"atr,omitempty"`
	RiskFactor *float64  `json:"risk_factor,omitempty"`
	UpperBand  *float64  `json:"upper_band,omitempty"`
	LowerBand  *float64  `json:"lower_band,omitempty"`
	PercentB   *float64  `json:"percent_b,omitempty"`
	Trend      float64   `json:"trend"`
	SwingHigh  float64   `json:"swing_high"`
	SwingLow   float64   `json:"swing_low"`
	Fibonacci  []float64 `json:"fibonacci"`
}

type Snapshot struct {
	Symbol     string          `json:"symbol"`
	Timeframe  string          `json:"timeframe"`
	Count      int             `json:"count"`
	Candles    []models.Candle `json:"candles"`
	Indicators Indicators      `json:"indicators"`
}

func (uc *MarketUseCase) Snapshot(ctx context.Context, p SnapshotParams) (*Snapshot, error) {
	if p.Symbol == "" {
		return nil, errs.New(errs.KindInvalidSignal, "market.snapshot", "symbol required")
	}
	if p.N <= 0 {
		p.N = 100
	}
	if p.N > maxSnapshotCandles {
		p.N = maxSnapshotCandles
	}

	candles, err := uc.store.GetLatestNCandles(ctx, p.Symbol, p.N, p.Timeframe)
	if err != nil {
		return nil, errs.Wrap(errs.KindDataUnavailable, "market.snapshot", fmt.Errorf("get candles: %w", err)).WithSymbol(p.Symbol)
	}
	if len(candles) == 0 {
		return nil, errs.Wrap(errs.KindDataUnavailable, "market.snapshot", errs.ErrNoMarketData).WithSymbol(p.Symbol)
	}

	return &Snapshot{
		Symbol:     p.Symbol,
		Timeframe:  string(p.Timeframe),
		Count:      len(candles),
		Candles:    candles,
		Indicators: uc.indicators(candles),
	}, nil
}

func (uc *MarketUseCase) indicators(candles []models.Candle) Indicators {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	var ind Indicators
	if atr, err := features.ATR(candles, uc.atrPeriod); err == nil {
		ind.ATR = &atr
		if short, err := features.ATR(candles, min(5, uc.atrPeriod)); err == nil {
			rf := features.RiskFactor(short, atr)
			ind.RiskFactor = &rf
		}
	}
	if upper, lower, err := features.BollingerBands(closes, bollingerPeriod, 2); err == nil {
		pb := features.PercentB(closes[len(closes)-1], upper, lower)
		ind.UpperBand, ind.LowerBand, ind.PercentB = &upper, &lower, &pb
	}
	ind.Trend = features.TrendStrength(closes, trendSpan)
	ind.SwingHigh, ind.SwingLow = features.SwingRange(candles)
	ind.Fibonacci = features.FibonacciLevels(ind.SwingHigh, ind.SwingLow)
	return ind
}
