package usecase

import (
	"context"
	"fmt"
	"math"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	domrepo "FinTrade/internal/domain/repository"
	"FinTrade/internal/services/features"
	applogger "FinTrade/pkg/logger"
)

const (
	maxBacktestCandles = 5000
	defaultMaxHold     = 20
	maxReportedTrades  = 200
	shortATRPeriod     = 5
)

// Exit reasons of a simulated trade.
const (
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
	ExitMaxHold    = "max_hold"
	ExitEndOfData  = "end_of_data"
)

// Backtester replays stored candles through the predictor, the decision
// policy and the stop levels of the risk sizer. Only the candle-derived
// features are known while replaying; the others keep their defaults and are
// reported missing, as they are for a live cycle whose sources failed.
type Backtester struct {
	store        domrepo.FeatureStore
	model        Predictor
	policy       *DecisionPolicy
	sizer        *RiskSizer
	contractSize float64
	atrPeriod    int
	l            *applogger.Logger
}

func NewBacktester(store domrepo.FeatureStore, model Predictor, policy *DecisionPolicy, sizer *RiskSizer, contractSize float64, atrPeriod int, l *applogger.Logger) *Backtester {
	if contractSize <= 0 {
		contractSize = 100000
	}
	if atrPeriod <= shortATRPeriod {
		atrPeriod = 14
	}
	return &Backtester{
		store:        store,
		model:        model,
		policy:       policy,
		sizer:        sizer,
		contractSize: contractSize,
		atrPeriod:    atrPeriod,
		l:            l.Named("backtest"),
	}
}

type BacktestParams struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	N         int
	// MaxHold closes a trade at the bar close after this many bars.
	MaxHold int
	// Lot overrides the sized lot when positive.
	Lot float64
}

type BacktestTrade struct {
	Side       models.Action `json:"side"`
	EntryIndex int           `json:"entry_index"`
	ExitIndex  int           `json:"exit_index"`
	Entry      float64       `json:"entry"`
	Exit       float64       `json:"exit"`
	StopLoss   float64       `json:"stop_loss"`
	TakeProfit float64       `json:"take_profit"`
	Confidence float64       `json:"confidence"`
	Profit     float64       `json:"profit"`
	ExitReason string        `json:"exit_reason"`
}

type BacktestReport struct {
	Symbol       string          `json:"symbol"`
	Timeframe    string          `json:"timeframe"`
	Candles      int             `json:"candles"`
	Lot          float64         `json:"lot"`
	Trades       int             `json:"trades"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
	WinRate      float64         `json:"win_rate"`
	TotalProfit  float64         `json:"total_profit"`
	AveragePnL   float64         `json:"average_pnl"`
	MaxDrawdown  float64         `json:"max_drawdown"`
	ModelVersion string          `json:"model_version,omitempty"`
	ColdStart    bool            `json:"cold_start"`
	History      []BacktestTrade `json:"history"`
}

// Run simulates one position at a time. A signal opens at the bar close and
// the last bar never opens. Each later bar checks the stop loss before the
// take profit, so a bar that spans both counts as a loss.
func (b *Backtester) Run(ctx context.Context, p BacktestParams) (*BacktestReport, error) {
	if p.Symbol == "" {
		return nil, errs.New(errs.KindInvalidSignal, "backtest.run", "symbol required")
	}
	if p.N <= 0 {
		p.N = 500
	}
	p.N = min(p.N, maxBacktestCandles)
	if p.MaxHold <= 0 {
		p.MaxHold = defaultMaxHold
	}
	lot := p.Lot
	if lot <= 0 {
		lot = b.sizer.Lot()
	}

	candles, err := b.store.GetLatestNCandles(ctx, p.Symbol, p.N, p.Timeframe)
	if err != nil {
		return nil, errs.Wrap(errs.KindDataUnavailable, "backtest.run", fmt.Errorf("get candles: %w", err)).WithSymbol(p.Symbol)
	}
	warmup := b.atrPeriod + 1
	if len(candles) <= warmup {
		return nil, errs.Wrap(errs.KindDataUnavailable, "backtest.run",
			fmt.Errorf("%w: %d candles, need more than %d", errs.ErrNoMarketData, len(candles), warmup)).WithSymbol(p.Symbol)
	}

	rep := &BacktestReport{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Candles:   len(candles),
		Lot:       lot,
		History:   []BacktestTrade{},
	}

	var (
		state  SmoothingState
		open   *BacktestTrade
		equity float64
		peak   float64
	)
	settle := func(t *BacktestTrade, i int, price float64, reason string) {
		t.ExitIndex, t.Exit, t.ExitReason = i, price, reason
		t.Profit = round((price-t.Entry)*t.Side.Sign()*lot*b.contractSize, 2)
		b.record(rep, *t)
		equity += t.Profit
		peak = math.Max(peak, equity)
		rep.MaxDrawdown = math.Max(rep.MaxDrawdown, round(peak-equity, 2))
	}

	for i := warmup - 1; i < len(candles); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := candles[i]

		if open != nil {
			if price, reason, done := exitAt(*open, bar); done {
				settle(open, i, price, reason)
				open = nil
			} else if i-open.EntryIndex >= p.MaxHold {
				settle(open, i, bar.Close, ExitMaxHold)
				open = nil
			}
			continue
		}
		if i == len(candles)-1 {
			break
		}

		fv, ok := b.replayFeatures(p.Symbol, candles[:i+1])
		if !ok {
			continue
		}
		pred := b.model.Predict(ctx, fv)
		rep.ModelVersion, rep.ColdStart = pred.Version, pred.ColdStart

		var (
			action   models.Action
			smoothed float64
		)
		action, smoothed, state = b.policy.Evaluate(pred.Score, state)
		if !action.Opens() {
			continue
		}
		vol, _ := fv.Get(models.FeatureVolatility)
		rf, _ := fv.Get(models.FeatureRiskFactor)
		sl, tp := b.sizer.StopLevels(bar.Close, action, vol, rf)
		open = &BacktestTrade{
			Side:       action,
			EntryIndex: i,
			Entry:      bar.Close,
			StopLoss:   sl,
			TakeProfit: tp,
			Confidence: round(smoothed, 4),
		}
	}
	if open != nil {
		last := len(candles) - 1
		settle(open, last, candles[last].Close, ExitEndOfData)
	}

	if rep.Trades > 0 {
		rep.WinRate = round(float64(rep.Wins)/float64(rep.Trades), 4)
		rep.AveragePnL = round(rep.TotalProfit/float64(rep.Trades), 2)
	}
	rep.TotalProfit = round(rep.TotalProfit, 2)

	b.l.Info("backtest finished",
		applogger.String("symbol", p.Symbol),
		applogger.Int("candles", len(candles)),
		applogger.Int("trades", rep.Trades),
		applogger.Float64("win_rate", rep.WinRate),
		applogger.Float64("total_profit", rep.TotalProfit))
	return rep, nil
}

func (b *Backtester) record(rep *BacktestReport, t BacktestTrade) {
	rep.Trades++
	rep.TotalProfit += t.Profit
	if t.Profit > 0 {
		rep.Wins++
	} else {
		rep.Losses++
	}
	if len(rep.History) < maxReportedTrades {
		rep.History = append(rep.History, t)
	}
}

// replayFeatures builds the vector a live cycle would have seen at the last
// of the given candles.
func (b *Backtester) replayFeatures(symbol string, history []models.Candle) (models.FeatureVector, bool) {
	last := history[len(history)-1]
	atr, err := features.ATR(history, b.atrPeriod)
	if err != nil || last.Close <= 0 {
		return models.FeatureVector{}, false
	}
	short, err := features.ATR(history, shortATRPeriod)
	if err != nil {
		return models.FeatureVector{}, false
	}

	values := map[string]float64{
		models.FeatureVolatility: atr / last.Close,
		models.FeatureRiskFactor: features.RiskFactor(short, atr),
	}
	fv := models.FeatureVector{
		Symbol:      symbol,
		Names:       append([]string(nil), models.DefaultFeatureOrder...),
		Values:      make([]float64, len(models.DefaultFeatureOrder)),
		CollectedAt: last.Bucket,
	}
	for i, name := range fv.Names {
		v, ok := values[name]
		if !ok {
			v = FeatureDefaults[name]
			fv.Missing = append(fv.Missing, name)
		}
		fv.Values[i] = v
	}
	return fv, true
}

// exitAt reports whether the bar touches the stop loss or the take profit.
func exitAt(t BacktestTrade, bar models.Candle) (float64, string, bool) {
	if t.Side == models.ActionBuy {
		switch {
		case t.StopLoss > 0 && bar.Low <= t.StopLoss:
			return t.StopLoss, ExitStopLoss, true
		case t.TakeProfit > 0 && bar.High >= t.TakeProfit:
			return t.TakeProfit, ExitTakeProfit, true
		}
		return 0, "", false
	}
	switch {
	case t.StopLoss > 0 && bar.High >= t.StopLoss:
		return t.StopLoss, ExitStopLoss, true
	case t.TakeProfit > 0 && bar.Low <= t.TakeProfit:
		return t.TakeProfit, ExitTakeProfit, true
	}
	return 0, "", false
}
