package quotes

import (
	"context"
	"time"

	"FinTrade/internal/domain/models"
	domrepo "FinTrade/internal/domain/repository"
	applogger "FinTrade/pkg/logger"
	"FinTrade/pkg/scheduler"
)

// CandleSink persists closed candles.
type CandleSink interface {
	StoreCandles(ctx context.Context, candles []models.Candle) error
}

// Flusher copies bars the CandleBook has closed into a CandleSink. The bar
// still forming is never written.
type Flusher struct {
	book    *CandleBook
	sink    CandleSink
	symbols []string
	l       *applogger.Logger

	flushed map[string]time.Time
}

func NewFlusher(book *CandleBook, sink CandleSink, symbols []string, l *applogger.Logger) *Flusher {
	return &Flusher{
		book:    book,
		sink:    sink,
		symbols: append([]string(nil), symbols...),
		l:       l.Named("candle_flusher"),
		flushed: make(map[string]time.Time),
	}
}

// Run flushes once per candle width until ctx is cancelled.
func (f *Flusher) Run(ctx context.Context) error {
	return scheduler.RunUntilCancelled(ctx, f.book.tf.Duration(), f.Flush,
		scheduler.WithName("candle_flush"),
		scheduler.WithImmediate(false),
		scheduler.WithLogger(f.l),
	)
}

// Flush writes every closed bar newer than the last one written per symbol.
// Not safe for concurrent use; Run calls it from a single goroutine.
func (f *Flusher) Flush(ctx context.Context) error {
	var batch []models.Candle
	next := make(map[string]time.Time)
	for _, sym := range f.symbols {
		candles, err := f.book.GetLatestNCandles(ctx, sym, 0, f.book.tf)
		if err != nil || len(candles) < 2 {
			continue
		}
		closed := candles[:len(candles)-1]
		since := f.flushed[sym]
		for _, c := range closed {
			if c.Bucket.After(since) {
				batch = append(batch, c)
			}
		}
		next[sym] = closed[len(closed)-1].Bucket
	}
	if len(batch) == 0 {
		return nil
	}
	if err := f.sink.StoreCandles(ctx, batch); err != nil {
		return err
	}
	for sym, ts := range next {
		f.flushed[sym] = ts
	}
	f.l.Debug("candles flushed", applogger.Int("count", len(batch)))
	return nil
}

// Preload seeds the book from a store so features are available before the
// stream has produced enough bars.
func Preload(ctx context.Context, book *CandleBook, store domrepo.FeatureStore, symbols []string, n int, l *applogger.Logger) {
	for _, sym := range symbols {
		candles, err := store.GetLatestNCandles(ctx, sym, n, book.tf)
		if err != nil {
			l.Warn("candle preload failed", applogger.String("symbol", sym), applogger.Error(err))
			continue
		}
		book.Seed(sym, candles)
	}
}
