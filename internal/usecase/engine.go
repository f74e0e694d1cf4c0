package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	domrepo "FinTrade/internal/domain/repository"
	"FinTrade/internal/domain/service"
	"FinTrade/pkg/config"
	applogger "FinTrade/pkg/logger"
	"FinTrade/pkg/scheduler"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Decision outcomes.
const (
	OutcomeOpened       = "opened"
	OutcomeHolding      = "position_open"
	OutcomeNoMarketData = "no_market_data"
	OutcomeFlat         = "flat_signals"
	OutcomeNeutral      = "neutral"
	OutcomeRejected     = "risk_rejected"
	OutcomeFailed       = "failed"
)

// FeatureCollector builds the feature vector of a symbol.
type FeatureCollector interface {
	Collect(ctx context.Context, symbol string) (models.FeatureVector, error)
}

// Predictor scores a feature vector.
type Predictor interface {
	Predict(ctx context.Context, fv models.FeatureVector) models.Prediction
}

// DecisionEngine runs one decision cycle over every trading pair. Within a
// symbol the steps run strictly in order; symbols run concurrently.
type DecisionEngine struct {
	symbols     []string
	collector   FeatureCollector
	model       Predictor
	policy      *DecisionPolicy
	sizer       *RiskSizer
	quoter      service.PriceQuoter
	lifecycle   *LifecycleManager
	metrics     domrepo.Metrics
	interval    time.Duration
	callTimeout time.Duration
	cycleTO     time.Duration
	concurrency int
	skipFlat    bool
	l           *applogger.Logger

	mu        sync.Mutex
	smoothing map[string]SmoothingState
	last      map[string]models.Decision
}

func NewDecisionEngine(
	cfg config.Trading,
	collector FeatureCollector,
	model Predictor,
	policy *DecisionPolicy,
	sizer *RiskSizer,
	quoter service.PriceQuoter,
	lifecycle *LifecycleManager,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *DecisionEngine {
	return &DecisionEngine{
		symbols:     append([]string(nil), cfg.TradingPairs...),
		collector:   collector,
		model:       model,
		policy:      policy,
		sizer:       sizer,
		quoter:      quoter,
		lifecycle:   lifecycle,
		metrics:     metrics,
		interval:    cfg.Interval(),
		callTimeout: cfg.CallTimeout,
		cycleTO:     cfg.CycleTimeout,
		concurrency: max(cfg.MaxConcurrency, 1),
		skipFlat:    cfg.SkipFlatSignals,
		l:           l.Named("engine"),
		smoothing:   make(map[string]SmoothingState),
		last:        make(map[string]models.Decision),
	}
}

// Run drives RunCycle every trading interval until ctx is cancelled.
func (e *DecisionEngine) Run(ctx context.Context) error {
	return scheduler.RunUntilCancelled(ctx, e.interval, e.RunCycle,
		scheduler.WithName("decision"),
		scheduler.WithTimeout(e.cycleTO),
		scheduler.WithLogger(e.l),
	)
}

// RunCycle decides every symbol once. A failing symbol never affects the
// others; the returned error is always nil.
func (e *DecisionEngine) RunCycle(ctx context.Context) error {
	start := time.Now()
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, sym := range e.symbols {
		g.Go(func() error {
			d := e.Decide(ctx, sym)
			e.mu.Lock()
			e.last[sym] = d
			e.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	e.metrics.RecordLatency("cycle", time.Since(start).Seconds())
	return nil
}

// Decide runs collect, predict, policy, sizing and dispatch for one symbol.
func (e *DecisionEngine) Decide(ctx context.Context, symbol string) models.Decision {
	d := models.Decision{Symbol: symbol, Action: models.ActionNeutral, At: time.Now().UTC()}

	if p, ok := e.lifecycle.OpenFor(symbol); ok {
		d.Outcome = OutcomeHolding
		d.Ticket = p.Ticket
		return d
	}

	fv, err := e.collector.Collect(ctx, symbol)
	d.Degraded = fv.Missing
	if err != nil {
		e.skip(symbol, "collect", err)
		d.Outcome = OutcomeNoMarketData
		return d
	}
	if e.skipFlat && flat(fv) {
		e.l.Debug("flat signals, skipping", applogger.String("symbol", symbol))
		d.Outcome = OutcomeFlat
		return d
	}

	pred := e.model.Predict(ctx, fv)
	d.Confidence = pred.Score
	d.ModelVersion = pred.Version
	d.ColdStart = pred.ColdStart
	e.metrics.RecordConfidence(symbol, pred.Score)

	e.mu.Lock()
	action, smoothed, next := e.policy.Evaluate(pred.Score, e.smoothing[symbol])
	e.smoothing[symbol] = next
	e.mu.Unlock()
	d.Action = action
	d.Smoothed = smoothed
	e.metrics.RecordDecision(symbol, string(action))
	if action == models.ActionNeutral {
		d.Outcome = OutcomeNeutral
		return d
	}

	lot := e.sizer.Lot()
	pctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	price, err := e.quoter.GetCurrentPrice(pctx, symbol)
	cancel()
	if err != nil {
		e.metrics.RecordBridgeCall("price", "error")
		e.skip(symbol, "price", errs.Wrap(errs.KindBridgeFailure, "engine.price", err).WithSymbol(symbol))
		d.Outcome = OutcomeFailed
		return d
	}

	vol, _ := fv.Get(models.FeatureVolatility)
	rf, _ := fv.Get(models.FeatureRiskFactor)
	sl, tp := e.sizer.StopLevels(price, action, vol, rf)
	d.LotSize, d.StopLoss, d.TakeProfit = lot, sl, tp

	pos, err := e.lifecycle.Apply(ctx, models.TradeSignal{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Action:     action,
		LotSize:    lot,
		StopLoss:   sl,
		TakeProfit: tp,
		Confidence: smoothed,
		Features:   fv.Snapshot(),
		Volatility: vol,
		Source:     "engine",
		CreatedAt:  d.At,
	})
	d.Ticket = pos.Ticket
	switch {
	case err == nil:
		d.Outcome = OutcomeOpened
		e.l.Info("position opened",
			applogger.String("symbol", symbol),
			applogger.String("action", string(action)),
			applogger.Int64("ticket", pos.Ticket),
			applogger.Float64("confidence", smoothed),
			applogger.Float64("lot", lot))
	case errs.IsKind(err, errs.KindRiskRejected):
		d.Outcome = OutcomeRejected
		e.skip(symbol, "dispatch", err)
	default:
		d.Outcome = OutcomeFailed
		e.skip(symbol, "dispatch", err)
	}
	return d
}

// Decisions returns the last decision of every symbol.
func (e *DecisionEngine) Decisions() []models.Decision {
	e.mu.Lock()
	out := make([]models.Decision, 0, len(e.last))
	for _, d := range e.last {
		out = append(out, d)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (e *DecisionEngine) skip(symbol, op string, err error) {
	kind := errs.KindOf(err)
	e.metrics.RecordError(string(kind))
	e.l.Warn("symbol skipped",
		applogger.String("symbol", symbol),
		applogger.String("op", op),
		applogger.String("kind", string(kind)),
		applogger.String("reason", errs.ReasonOf(err)))
}

// flat reports whether both market signals were fetched and are exactly zero.
func flat(fv models.FeatureVector) bool {
	of, ok1 := fv.Get(models.FeatureOrderFlow)
	s, ok2 := fv.Get(models.FeatureSentiment)
	return ok1 && ok2 &&
		!fv.IsMissing(models.FeatureOrderFlow) && !fv.IsMissing(models.FeatureSentiment) &&
		of == 0 && s == 0
}
