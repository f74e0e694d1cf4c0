package usecase

import (
	"context"
	"errors"
	"testing"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	domrepo "FinTrade/internal/domain/repository"
	"FinTrade/pkg/config"
	applogger "FinTrade/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedPredictor struct {
	score float64
	last  models.FeatureVector
	calls int
}

func (p *fixedPredictor) Predict(_ context.Context, fv models.FeatureVector) models.Prediction {
	p.calls++
	p.last = fv
	return models.Prediction{Symbol: fv.Symbol, Score: p.score, Version: "v3"}
}

func newBacktester(candles []models.Candle, score, rewardRatio float64) (*Backtester, *fixedPredictor) {
	model := &fixedPredictor{score: score}
	policy := NewDecisionPolicy(config.Policy{BuyThreshold: 0.6, SellThreshold: 0.4})
	sizer := NewRiskSizer(
		config.Trading{UseBaseLot: true, BaseLotSize: 0.1, MinLotSize: 0.01, MaxLotSize: 5},
		config.Risk{BaseFraction: 0.001, RewardRatio: rewardRatio, MarginPerLot: 1000},
	)
	return NewBacktester(memCandles{candles: candles}, model, policy, sizer, 100000, 14, applogger.Nop()), model
}

func TestBacktestWinningBuys(t *testing.T) {
	bt, model := newBacktester(risingCandles(60), 0.9, 2)

	rep, err := bt.Run(context.Background(), BacktestParams{Symbol: "EURUSD", Timeframe: domrepo.TF1m, N: 60})
	require.NoError(t, err)

	assert.Equal(t, 60, rep.Candles)
	assert.Equal(t, 0.1, rep.Lot)
	require.Greater(t, rep.Trades, 1)
	assert.Equal(t, rep.Trades, rep.Wins)
	assert.Zero(t, rep.Losses)
	assert.Equal(t, 1.0, rep.WinRate)
	assert.Greater(t, rep.TotalProfit, 0.0)
	assert.Zero(t, rep.MaxDrawdown)
	assert.Equal(t, "v3", rep.ModelVersion)

	first := rep.History[0]
	assert.Equal(t, models.ActionBuy, first.Side)
	assert.Equal(t, 14, first.EntryIndex)
	assert.Equal(t, ExitTakeProfit, first.ExitReason)
	assert.Equal(t, first.TakeProfit, first.Exit)
	assert.Less(t, first.StopLoss, first.Entry)

	// Only the candle-derived features are known while replaying.
	assert.ElementsMatch(t, []string{models.FeatureOrderFlow, models.FeatureSentiment, models.FeatureInsight}, model.last.Missing)
	rf, _ := model.last.Get(models.FeatureRiskFactor)
	assert.Equal(t, 1.5, rf)
	insight, _ := model.last.Get(models.FeatureInsight)
	assert.Equal(t, 0.5, insight)
}

func TestBacktestLosingSells(t *testing.T) {
	bt, _ := newBacktester(risingCandles(60), 0.1, 2)

	rep, err := bt.Run(context.Background(), BacktestParams{Symbol: "EURUSD", Timeframe: domrepo.TF1m, N: 60})
	require.NoError(t, err)

	require.Greater(t, rep.Trades, 1)
	assert.Equal(t, rep.Trades, rep.Losses)
	assert.Zero(t, rep.WinRate)
	assert.Less(t, rep.TotalProfit, 0.0)
	assert.InDelta(t, -rep.TotalProfit, rep.MaxDrawdown, 0.01)
	assert.Equal(t, ExitStopLoss, rep.History[0].ExitReason)
	assert.Greater(t, rep.History[0].StopLoss, rep.History[0].Entry)
}

func TestBacktestMaxHoldAndLotOverride(t *testing.T) {
	bt, _ := newBacktester(risingCandles(30), 0.9, 100)

	rep, err := bt.Run(context.Background(), BacktestParams{Symbol: "EURUSD", Timeframe: domrepo.TF1m, MaxHold: 2, Lot: 0.5})
	require.NoError(t, err)

	assert.Equal(t, 0.5, rep.Lot)
	require.NotEmpty(t, rep.History)
	first := rep.History[0]
	assert.Equal(t, ExitMaxHold, first.ExitReason)
	assert.Equal(t, first.EntryIndex+2, first.ExitIndex)
	// two bars of 0.001 on half a lot of 100000
	assert.InDelta(t, 100.0, first.Profit, 0.01)
}

func TestBacktestHoldNeverTrades(t *testing.T) {
	bt, model := newBacktester(risingCandles(30), 0.5, 2)

	rep, err := bt.Run(context.Background(), BacktestParams{Symbol: "EURUSD", Timeframe: domrepo.TF1m})
	require.NoError(t, err)
	assert.Zero(t, rep.Trades)
	assert.Zero(t, rep.WinRate)
	assert.Empty(t, rep.History)
	assert.Equal(t, 30-15, model.calls, "bars 14 through 28 are scored")
}

func TestBacktestErrors(t *testing.T) {
	ctx := context.Background()

	bt, _ := newBacktester(risingCandles(10), 0.9, 2)
	_, err := bt.Run(ctx, BacktestParams{})
	assert.True(t, errs.IsKind(err, errs.KindInvalidSignal))

	_, err = bt.Run(ctx, BacktestParams{Symbol: "EURUSD"})
	assert.True(t, errs.IsKind(err, errs.KindDataUnavailable))
	assert.ErrorIs(t, err, errs.ErrNoMarketData)

	model := &fixedPredictor{}
	down := NewBacktester(memCandles{err: errors.New("down")}, model, NewDecisionPolicy(config.Policy{BuyThreshold: 0.6, SellThreshold: 0.4}),
		NewRiskSizer(config.Trading{}, config.Risk{}), 0, 0, applogger.Nop())
	_, err = down.Run(ctx, BacktestParams{Symbol: "EURUSD"})
	assert.True(t, errs.IsKind(err, errs.KindDataUnavailable))
	assert.Zero(t, model.calls)
}
