package usecase

import (
	"testing"

	"FinTrade/internal/domain/models"
	"FinTrade/pkg/config"

	"github.com/stretchr/testify/assert"
)

func TestDecideDefaultThresholds(t *testing.T) {
	th := Thresholds{Buy: 0.6, Sell: 0.4}
	cases := []struct {
		confidence float64
		want       models.Action
	}{
		{0.75, models.ActionBuy},
		{0.25, models.ActionSell},
		{0.5, models.ActionNeutral},
		{0.6, models.ActionNeutral},
		{0.4, models.ActionNeutral},
		{1, models.ActionBuy},
		{0, models.ActionSell},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Decide(tc.confidence, th), "confidence %v", tc.confidence)
	}
}

func TestDecideSingleCutoff(t *testing.T) {
	th := Thresholds{Buy: 0.5, Sell: 0}
	assert.Equal(t, models.ActionBuy, Decide(0.51, th))
	assert.Equal(t, models.ActionNeutral, Decide(0.1, th))
	assert.Equal(t, models.ActionNeutral, Decide(0, th))
}

func TestEvaluateWithoutSmoothing(t *testing.T) {
	p := NewDecisionPolicy(config.Policy{BuyThreshold: 0.6, SellThreshold: 0.4})
	action, score, st := p.Evaluate(0.75, SmoothingState{})
	assert.Equal(t, models.ActionBuy, action)
	assert.Equal(t, 0.75, score)
	assert.Equal(t, SmoothingState{Value: 0.75, Seeded: true}, st)
}

func TestEvaluateSmoothingDampsSpike(t *testing.T) {
	cfg := config.Policy{BuyThreshold: 0.6, SellThreshold: 0.4}
	cfg.Smoothing.Enabled = true
	cfg.Smoothing.Alpha = 0.3
	p := NewDecisionPolicy(cfg)

	// first observation is smoothed against the neutral seed
	action, score, st := p.Evaluate(0.9, SmoothingState{})
	assert.InDelta(t, 0.62, score, 1e-9)
	assert.Equal(t, models.ActionBuy, action)

	action, score, _ = p.Evaluate(0.1, st)
	assert.InDelta(t, 0.464, score, 1e-9)
	assert.Equal(t, models.ActionNeutral, action)
}

func TestEvaluateClampsInput(t *testing.T) {
	p := NewDecisionPolicy(config.Policy{BuyThreshold: 0.6, SellThreshold: 0.4})
	_, score, _ := p.Evaluate(1.7, SmoothingState{})
	assert.Equal(t, 1.0, score)
}
