package features

import (
	"fmt"
	"math"

	"FinTrade/internal/domain/models"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FibonacciRatios are the retracement ratios reported by FibonacciLevels.
var FibonacciRatios = []float64{0.236, 0.382, 0.5, 0.618, 0.786}

// ATR is the mean true range of the last period bars. True range needs the
// previous close, so at least period+1 candles are required.
func ATR(candles []models.Candle, period int) (float64, error) {
	if period < 1 {
		return 0, fmt.Errorf("atr period must be positive, got %d", period)
	}
	if len(candles) < period+1 {
		return 0, fmt.Errorf("atr(%d) needs %d candles, got %d", period, period+1, len(candles))
	}
	start := len(candles) - period
	tr := make([]float64, 0, period)
	for i := start; i < len(candles); i++ {
		c, prev := candles[i], candles[i-1].Close
		tr = append(tr, math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev))))
	}
	return round(stat.Mean(tr, nil), 5), nil
}

// BollingerBands returns the upper and lower band over the last period closes
// at k sample standard deviations.
func BollingerBands(closes []float64, period int, k float64) (upper, lower float64, err error) {
	if period < 2 || len(closes) < period {
		return 0, 0, fmt.Errorf("bollinger(%d) needs %d closes, got %d", period, period, len(closes))
	}
	window := closes[len(closes)-period:]
	mean, sd := stat.MeanStdDev(window, nil)
	return round(mean+k*sd, 5), round(mean-k*sd, 5), nil
}

// PercentB locates price inside the bands: 0 at the lower band, 1 at the upper.
func PercentB(price, upper, lower float64) float64 {
	if upper == lower {
		return 0.5
	}
	return (price - lower) / (upper - lower)
}

// FibonacciLevels returns retracement prices from high towards low.
func FibonacciLevels(high, low float64) []float64 {
	diff := high - low
	out := make([]float64, len(FibonacciRatios))
	for i, r := range FibonacciRatios {
		out[i] = high - diff*r
	}
	return out
}

// SwingRange returns the highest high and lowest low of the candles.
func SwingRange(candles []models.Candle) (high, low float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i] = c.High, c.Low
	}
	return floats.Max(highs), floats.Min(lows)
}

// EMA is the exponential moving average with alpha 2/(span+1), seeded with
// the first value.
func EMA(values []float64, span int) []float64 {
	if len(values) == 0 || span < 1 {
		return nil
	}
	alpha := 2 / (float64(span) + 1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// TrendStrength is EMA(span) minus EMA(2*span) at the last bar. Positive is bullish.
func TrendStrength(closes []float64, span int) float64 {
	fast, slow := EMA(closes, span), EMA(closes, 2*span)
	if len(fast) == 0 {
		return 0
	}
	return fast[len(fast)-1] - slow[len(slow)-1]
}

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
