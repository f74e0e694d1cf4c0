package usecase

import (
	"math"

	"FinTrade/internal/domain/models"
	"FinTrade/pkg/config"

	"github.com/shopspring/decimal"
)

// Rejection reasons reported by RiskSizer.Validate.
const (
	ReasonInvalidLot         = "invalid lot size"
	ReasonInsufficientMargin = "insufficient margin"
	ReasonExceedsMaxRisk     = "exceeds max risk per trade"
	ReasonMarginLevelLow     = "margin level too low"
	ReasonExceedsLotLimit    = "lot size exceeds risk limit"
)

// lotDivisor converts balance x percent into standard lots.
const lotDivisor = 100000.0

// Size returns clamp(balance*riskPct/100000, minLot, maxLot) rounded to two
// decimals. The result is always inside [minLot, maxLot].
func Size(balance, riskPct, minLot, maxLot float64) float64 {
	raw := balance * riskPct / lotDivisor
	if math.IsNaN(raw) || raw < 0 {
		raw = 0
	}
	lot := round(raw, 2)
	return math.Max(minLot, math.Min(maxLot, lot))
}

// StopLevels returns stop-loss and take-profit prices for an entry. The risk
// distance is |entry| * baseFraction * riskFactor * (1 + volatility).
// Actions other than BUY/SELL yield zero levels.
func StopLevels(entry float64, side models.Action, volatility, riskFactor, rewardRatio, baseFraction float64) (float64, float64) {
	sign := side.Sign()
	if sign == 0 || entry == 0 {
		return 0, 0
	}
	if riskFactor <= 0 || math.IsNaN(riskFactor) {
		riskFactor = 1
	}
	if volatility < 0 || math.IsNaN(volatility) {
		volatility = 0
	}
	distance := math.Abs(entry) * baseFraction * riskFactor * (1 + volatility)
	sl := entry - sign*distance
	tp := entry + sign*distance*rewardRatio
	return round(sl, 5), round(tp, 5)
}

// RiskSizer gates trades on current account state.
type RiskSizer struct {
	trading config.Trading
	risk    config.Risk
}

func NewRiskSizer(trading config.Trading, risk config.Risk) *RiskSizer {
	return &RiskSizer{trading: trading, risk: risk}
}

// Lot sizes a new position from the configured balance and risk.
func (s *RiskSizer) Lot() float64 {
	if s.trading.UseBaseLot {
		return math.Max(s.trading.MinLotSize, math.Min(s.trading.MaxLotSize, s.trading.BaseLotSize))
	}
	return Size(s.trading.AccountBalance, s.trading.RiskPercentage, s.trading.MinLotSize, s.trading.MaxLotSize)
}

// StopLevels applies the configured reward ratio and base fraction.
func (s *RiskSizer) StopLevels(entry float64, side models.Action, volatility, riskFactor float64) (float64, float64) {
	return StopLevels(entry, side, volatility, riskFactor, s.risk.RewardRatio, s.risk.BaseFraction)
}

// Validate checks a prospective trade. It never fails: a rejection is a
// verdict with a reason and the caller skips the trade.
func (s *RiskSizer) Validate(symbol string, side models.Action, lot float64, acct models.AccountState) models.RiskVerdict {
	balance := acct.Balance
	if balance <= 0 {
		balance = s.trading.AccountBalance
	}
	v := models.RiskVerdict{
		RequiredMargin: round(lot*s.risk.MarginPerLot, 2),
		MaxRisk:        round(balance*s.trading.MaxRiskPerTrade/100, 2),
		MarginLevel:    acct.MarginLevel(),
	}

	switch {
	case math.IsNaN(lot) || lot <= 0 || lot < s.trading.MinLotSize || lot > s.trading.MaxLotSize:
		v.Reason = ReasonInvalidLot
	case acct.FreeMargin < v.RequiredMargin:
		v.Reason = ReasonInsufficientMargin
	case v.RequiredMargin > v.MaxRisk:
		v.Reason = ReasonExceedsMaxRisk
	case v.MarginLevel < s.trading.MinMarginLevel:
		v.Reason = ReasonMarginLevelLow
	case lot > Size(s.trading.AccountBalance, s.trading.MaxRiskPerTrade, s.trading.MinLotSize, s.trading.MaxLotSize):
		v.Reason = ReasonExceedsLotLimit
	default:
		v.Accepted = true
	}
	return v
}

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
