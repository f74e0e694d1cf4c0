package usecase

import (
	"testing"

	"FinTrade/internal/domain/models"
	"FinTrade/pkg/config"

	"github.com/stretchr/testify/assert"
)

func testTrading() config.Trading {
	return config.Trading{
		TradingPairs:    []string{"EURUSDm"},
		AccountBalance:  10000,
		RiskPercentage:  2,
		MaxRiskPerTrade: 2,
		MinLotSize:      0.01,
		MaxLotSize:      5,
		MinMarginLevel:  100,
		BaseLotSize:     0.1,
	}
}

func testRisk() config.Risk {
	return config.Risk{BaseFraction: 0.001, RewardRatio: 2, MarginPerLot: 1000}
}

func TestSizeAlwaysWithinBounds(t *testing.T) {
	cases := []struct {
		name          string
		balance, risk float64
		want          float64
	}{
		{"default", 10000, 2, 0.2},
		{"clamped high", 1_000_000, 50, 5},
		{"clamped low", 100, 1, 0.01},
		{"negative", -100, 2, 0.01},
		{"rounded", 12345, 2, 0.25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lot := Size(tc.balance, tc.risk, 0.01, 5)
			assert.Equal(t, tc.want, lot)
			assert.GreaterOrEqual(t, lot, 0.01)
			assert.LessOrEqual(t, lot, 5.0)
		})
	}
}

func TestStopLevels(t *testing.T) {
	sl, tp := StopLevels(1.1, models.ActionBuy, 0, 1, 2, 0.001)
	assert.InDelta(t, 1.0989, sl, 1e-9)
	assert.InDelta(t, 1.1022, tp, 1e-9)

	sl, tp = StopLevels(1.1, models.ActionSell, 0, 1, 2, 0.001)
	assert.InDelta(t, 1.1011, sl, 1e-9)
	assert.InDelta(t, 1.0978, tp, 1e-9)

	sl, tp = StopLevels(1.1, models.ActionNeutral, 0, 1, 2, 0.001)
	assert.Zero(t, sl)
	assert.Zero(t, tp)
}

func TestStopLevelsScaleWithVolatility(t *testing.T) {
	calmSL, _ := StopLevels(100, models.ActionBuy, 0, 1.5, 2, 0.001)
	wildSL, _ := StopLevels(100, models.ActionBuy, 1, 1.5, 2, 0.001)
	assert.InDelta(t, 99.85, calmSL, 1e-9)
	assert.InDelta(t, 99.7, wildSL, 1e-9)
}

func TestValidate(t *testing.T) {
	s := NewRiskSizer(testTrading(), testRisk())
	cases := []struct {
		name   string
		lot    float64
		acct   models.AccountState
		reason string
	}{
		{"accepted", 0.1, models.AccountState{Balance: 10000, FreeMargin: 10000, Equity: 10000}, ""},
		{"insufficient margin", 0.1, models.AccountState{Balance: 10000, FreeMargin: 50, Equity: 10000}, ReasonInsufficientMargin},
		{"margin level too low", 0.1, models.AccountState{Balance: 10000, FreeMargin: 1000, Equity: 500, MarginUsed: 1000}, ReasonMarginLevelLow},
		{"exceeds max risk", 0.3, models.AccountState{Balance: 10000, FreeMargin: 10000, Equity: 10000}, ReasonExceedsMaxRisk},
		{"zero lot", 0, models.AccountState{Balance: 10000, FreeMargin: 10000, Equity: 10000}, ReasonInvalidLot},
		{"above max lot", 6, models.AccountState{Balance: 10000, FreeMargin: 100000, Equity: 10000}, ReasonInvalidLot},
		{"lot above allowance", 0.5, models.AccountState{Balance: 100000, FreeMargin: 100000, Equity: 100000}, ReasonExceedsLotLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := s.Validate("EURUSDm", models.ActionBuy, tc.lot, tc.acct)
			assert.Equal(t, tc.reason == "", v.Accepted)
			assert.Equal(t, tc.reason, v.Reason)
		})
	}
}

func TestLotUsesBaseLotWhenConfigured(t *testing.T) {
	tr := testTrading()
	tr.UseBaseLot = true
	assert.Equal(t, 0.1, NewRiskSizer(tr, testRisk()).Lot())
	tr.UseBaseLot = false
	assert.Equal(t, 0.2, NewRiskSizer(tr, testRisk()).Lot())
}
