package models

import "time"

const (
	FeatureOrderFlow  = "order_flow"
	FeatureSentiment  = "sentiment"
	FeatureInsight    = "past_model_insight"
	FeatureVolatility = "volatility"
	FeatureRiskFactor = "risk_factor"
)

// DefaultFeatureOrder is the deployed feature layout. Training and inference
// must agree on it together with the scaler fit alongside the predictor.
var DefaultFeatureOrder = []string{
	FeatureOrderFlow,
	FeatureSentiment,
	FeatureInsight,
	FeatureVolatility,
	FeatureRiskFactor,
}

// LegacyFeatures rebuilds a vector for trade records written without a
// feature snapshot: only market volatility is known.
func LegacyFeatures(volatility float64) []float64 {
	return []float64{0, 0, 0.5, volatility, 1.0}
}

// FeatureVector is an ordered tuple of named numeric fields.
type FeatureVector struct {
	Symbol      string    `json:"symbol"`
	Names       []string  `json:"names"`
	Values      []float64 `json:"values"`
	Missing     []string  `json:"missing,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
}

// Get returns the value of a named field.
func (v FeatureVector) Get(name string) (float64, bool) {
	for i, n := range v.Names {
		if n == name && i < len(v.Values) {
			return v.Values[i], true
		}
	}
	return 0, false
}

// IsMissing reports whether a field carries its default instead of a fetched value.
func (v FeatureVector) IsMissing(name string) bool {
	for _, n := range v.Missing {
		if n == name {
			return true
		}
	}
	return false
}

// Degraded reports whether any field fell back to its default.
func (v FeatureVector) Degraded() bool { return len(v.Missing) > 0 }

// Snapshot returns a copy of the values.
func (v FeatureVector) Snapshot() []float64 {
	out := make([]float64, len(v.Values))
	copy(out, v.Values)
	return out
}

// SameLayout reports whether names match exactly, in order.
func SameLayout(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
