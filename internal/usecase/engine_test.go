package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"FinTrade/internal/domain/models"
	"FinTrade/pkg/config"
	applogger "FinTrade/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPredictor struct {
	mu     sync.Mutex
	scores map[string]float64
	calls  int
}

func (p *stubPredictor) Predict(_ context.Context, fv models.FeatureVector) models.Prediction {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return models.Prediction{Symbol: fv.Symbol, Score: p.scores[fv.Symbol], Version: "v1"}
}

type engineFixture struct {
	engine *DecisionEngine
	bridge *fakeBridge
	model  *stubPredictor
}

func newEngineFixture(t *testing.T, specs []FeatureSpec, scores map[string]float64, pairs ...string) engineFixture {
	t.Helper()
	trading := testTrading()
	trading.TradingPairs = pairs
	trading.TradingInterval = 1
	trading.CallTimeout = time.Second
	trading.MaxConcurrency = 2
	trading.SkipFlatSignals = true

	agg, err := NewFeatureAggregator(specs, time.Second, newTestRecorder(), applogger.Nop())
	require.NoError(t, err)

	var policy config.Policy
	policy.BuyThreshold, policy.SellThreshold = 0.6, 0.4

	b := newFakeBridge()
	model := &stubPredictor{scores: scores}
	lc := newTestLifecycle(b, &memHistory{}, &eventLog{})
	e := NewDecisionEngine(trading, agg, model, NewDecisionPolicy(policy), NewRiskSizer(trading, testRisk()),
		b, lc, newTestRecorder(), applogger.Nop())
	return engineFixture{engine: e, bridge: b, model: model}
}

func liveSpecs() []FeatureSpec {
	return DefaultFeatureSpecs(constSource(0.3), constSource(0.2), constSource(0.7), constSource(0.01), constSource(1.5))
}

func decisionFor(t *testing.T, e *DecisionEngine, symbol string) models.Decision {
	t.Helper()
	for _, d := range e.Decisions() {
		if d.Symbol == symbol {
			return d
		}
	}
	t.Fatalf("no decision for %s", symbol)
	return models.Decision{}
}

func TestEngine_BuyOpensThenHolds(t *testing.T) {
	f := newEngineFixture(t, liveSpecs(), map[string]float64{"EURUSD": 0.75}, "EURUSD")
	ctx := context.Background()

	require.NoError(t, f.engine.RunCycle(ctx))
	d := decisionFor(t, f.engine, "EURUSD")
	assert.Equal(t, models.ActionBuy, d.Action)
	assert.Equal(t, OutcomeOpened, d.Outcome)
	assert.Equal(t, 0.2, d.LotSize)
	assert.Less(t, d.StopLoss, 1.1)
	assert.Greater(t, d.TakeProfit, 1.1)
	assert.Equal(t, "v1", d.ModelVersion)

	sent := f.bridge.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, models.ActionBuy, sent[0].Action)

	require.NoError(t, f.engine.RunCycle(ctx))
	d = decisionFor(t, f.engine, "EURUSD")
	assert.Equal(t, OutcomeHolding, d.Outcome)
	assert.Len(t, f.bridge.sent(), 1)
	assert.Equal(t, 1, f.model.calls)
}

func TestEngine_SellAndNeutral(t *testing.T) {
	f := newEngineFixture(t, liveSpecs(), map[string]float64{"EURUSD": 0.25, "GBPUSD": 0.5}, "EURUSD", "GBPUSD")
	require.NoError(t, f.engine.RunCycle(context.Background()))

	sell := decisionFor(t, f.engine, "EURUSD")
	assert.Equal(t, models.ActionSell, sell.Action)
	assert.Equal(t, OutcomeOpened, sell.Outcome)
	assert.Greater(t, sell.StopLoss, 1.1)

	neutral := decisionFor(t, f.engine, "GBPUSD")
	assert.Equal(t, models.ActionNeutral, neutral.Action)
	assert.Equal(t, OutcomeNeutral, neutral.Outcome)
	assert.Len(t, f.bridge.sent(), 1)
}

func TestEngine_NoMarketDataSkipsSymbol(t *testing.T) {
	specs := DefaultFeatureSpecs(failingSource(), failingSource(), failingSource(), failingSource(), failingSource())
	f := newEngineFixture(t, specs, map[string]float64{"EURUSD": 0.9}, "EURUSD")
	require.NoError(t, f.engine.RunCycle(context.Background()))

	d := decisionFor(t, f.engine, "EURUSD")
	assert.Equal(t, OutcomeNoMarketData, d.Outcome)
	assert.Len(t, d.Degraded, 5)
	assert.Zero(t, f.model.calls)
	assert.Empty(t, f.bridge.sent())
}

func TestEngine_FlatSignalsSkipped(t *testing.T) {
	specs := DefaultFeatureSpecs(constSource(0), constSource(0), constSource(0.7), constSource(0.01), constSource(1.5))
	f := newEngineFixture(t, specs, map[string]float64{"EURUSD": 0.9}, "EURUSD")
	require.NoError(t, f.engine.RunCycle(context.Background()))
	assert.Equal(t, OutcomeFlat, decisionFor(t, f.engine, "EURUSD").Outcome)

	// defaults of zero are not flat signals
	specs = DefaultFeatureSpecs(failingSource(), failingSource(), constSource(0.7), constSource(0.01), constSource(1.5))
	f = newEngineFixture(t, specs, map[string]float64{"EURUSD": 0.9}, "EURUSD")
	require.NoError(t, f.engine.RunCycle(context.Background()))
	assert.Equal(t, OutcomeOpened, decisionFor(t, f.engine, "EURUSD").Outcome)
}

func TestEngine_FailureIsolatedPerSymbol(t *testing.T) {
	f := newEngineFixture(t, liveSpecs(), map[string]float64{"EURUSD": 0.9, "XAUUSD": 0.9}, "EURUSD", "XAUUSD")
	require.NoError(t, f.engine.RunCycle(context.Background()))

	assert.Equal(t, OutcomeFailed, decisionFor(t, f.engine, "XAUUSD").Outcome)
	assert.Equal(t, OutcomeOpened, decisionFor(t, f.engine, "EURUSD").Outcome)
}

func TestEngine_RiskRejectionIsSkip(t *testing.T) {
	f := newEngineFixture(t, liveSpecs(), map[string]float64{"EURUSD": 0.9}, "EURUSD")
	f.bridge.account = models.AccountState{Balance: 10000, Equity: 500, MarginUsed: 1000, FreeMargin: 5000}
	require.NoError(t, f.engine.RunCycle(context.Background()))

	d := decisionFor(t, f.engine, "EURUSD")
	assert.Equal(t, OutcomeRejected, d.Outcome)
	assert.Empty(t, f.bridge.sent())
}
