package quotes

import (
	"context"
	"fmt"
	"sync"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	domrepo "FinTrade/internal/domain/repository"
)

// CandleBook aggregates ticks into fixed-width candles per symbol and keeps
// the most recent candles up to a fixed size. It serves as the in-memory FeatureStore and
// as the price feed of the paper bridge.
type CandleBook struct {
	mu     sync.RWMutex
	tf     domrepo.Timeframe
	max    int
	series map[string][]models.Candle
	last   map[string]float64
}

func NewCandleBook(tf domrepo.Timeframe, size int) *CandleBook {
	if size <= 0 {
		size = 500
	}
	return &CandleBook{
		tf:     tf,
		max:    size,
		series: make(map[string][]models.Candle),
		last:   make(map[string]float64),
	}
}

// Observe folds a tick into the current candle of its symbol. Ticks older
// than the latest candle are dropped.
func (b *CandleBook) Observe(t models.Tick) {
	bucket := t.Timestamp.UTC().Truncate(b.tf.Duration())

	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.series[t.Symbol]
	if n := len(s); n > 0 {
		cur := &s[n-1]
		switch {
		case bucket.Equal(cur.Bucket):
			cur.High = max(cur.High, t.Price)
			cur.Low = min(cur.Low, t.Price)
			cur.Close = t.Price
			cur.Volume += t.Volume
			b.last[t.Symbol] = t.Price
			return
		case bucket.Before(cur.Bucket):
			return
		}
	}
	s = append(s, models.Candle{
		Bucket: bucket,
		Symbol: t.Symbol,
		Open:   t.Price,
		High:   t.Price,
		Low:    t.Price,
		Close:  t.Price,
		Volume: t.Volume,
	})
	if len(s) > b.max {
		s = append(s[:0:0], s[len(s)-b.max:]...)
	}
	b.series[t.Symbol] = s
	b.last[t.Symbol] = t.Price
}

// Seed replaces the series of a symbol, e.g. with history loaded at startup.
func (b *CandleBook) Seed(symbol string, candles []models.Candle) {
	if len(candles) > b.max {
		candles = candles[len(candles)-b.max:]
	}
	cp := make([]models.Candle, len(candles))
	copy(cp, candles)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.series[symbol] = cp
	if len(cp) > 0 {
		b.last[symbol] = cp[len(cp)-1].Close
	}
}

// GetLatestNCandles returns up to n candles, oldest first.
func (b *CandleBook) GetLatestNCandles(_ context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	if tf != b.tf {
		return nil, fmt.Errorf("candle book tracks %s, not %s", b.tf, tf)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	s := b.series[symbol]
	if len(s) == 0 {
		return nil, errs.Wrap(errs.KindDataUnavailable, "candles.latest", errs.ErrNoMarketData).WithSymbol(symbol)
	}
	if n > 0 && len(s) > n {
		s = s[len(s)-n:]
	}
	out := make([]models.Candle, len(s))
	copy(out, s)
	return out, nil
}

// LastPrice returns the most recent traded price of a symbol.
func (b *CandleBook) LastPrice(symbol string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.last[symbol]
	return p, ok
}

var _ domrepo.FeatureStore = (*CandleBook)(nil)
