package usecase

import (
	"math"

	"FinTrade/internal/domain/models"
	"FinTrade/pkg/config"
)

// NeutralConfidence is the score used when nothing better is known.
const NeutralConfidence = 0.5

// Thresholds are the independently tunable buy/sell cut points.
// A single-cutoff deployment is expressed as Buy=0.5, Sell=0.
type Thresholds struct {
	Buy  float64
	Sell float64
}

// Decide maps a confidence score onto an action. Scores strictly above Buy
// are BUY, strictly below Sell are SELL, everything in between is NEUTRAL.
func Decide(confidence float64, t Thresholds) models.Action {
	switch {
	case confidence > t.Buy:
		return models.ActionBuy
	case confidence < t.Sell:
		return models.ActionSell
	default:
		return models.ActionNeutral
	}
}

// SmoothingState is the previous smoothed score of one symbol.
type SmoothingState struct {
	Value  float64
	Seeded bool
}

// DecisionPolicy applies optional exponential smoothing before thresholding.
// It holds no per-symbol state; callers pass it in and keep what is returned.
type DecisionPolicy struct {
	thresholds Thresholds
	smoothing  bool
	alpha      float64
}

func NewDecisionPolicy(cfg config.Policy) *DecisionPolicy {
	return &DecisionPolicy{
		thresholds: Thresholds{Buy: cfg.BuyThreshold, Sell: cfg.SellThreshold},
		smoothing:  cfg.Smoothing.Enabled,
		alpha:      cfg.Smoothing.Alpha,
	}
}

func (p *DecisionPolicy) Thresholds() Thresholds { return p.thresholds }

// Evaluate returns the action, the score it was decided on and the next state.
func (p *DecisionPolicy) Evaluate(confidence float64, prev SmoothingState) (models.Action, float64, SmoothingState) {
	c := clampUnit(confidence)
	if !p.smoothing {
		return Decide(c, p.thresholds), c, SmoothingState{Value: c, Seeded: true}
	}

	base := NeutralConfidence
	if prev.Seeded {
		base = prev.Value
	}
	smoothed := p.alpha*c + (1-p.alpha)*base
	return Decide(smoothed, p.thresholds), smoothed, SmoothingState{Value: smoothed, Seeded: true}
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return NeutralConfidence
	}
	return math.Max(0, math.Min(1, v))
}
