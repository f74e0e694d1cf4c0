package quotes

import (
	"context"
	"errors"
	"testing"
	"time"

	"FinTrade/internal/domain/models"
	domrepo "FinTrade/internal/domain/repository"
	applogger "FinTrade/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	stored []models.Candle
	err    error
}

func (s *memSink) StoreCandles(_ context.Context, candles []models.Candle) error {
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, candles...)
	return nil
}

func TestFlusher_WritesClosedBarsOnce(t *testing.T) {
	ctx := context.Background()
	book := NewCandleBook(domrepo.TF1m, 50)
	sink := &memSink{}
	f := NewFlusher(book, sink, []string{"EURUSD", "GBPUSD"}, applogger.Nop())
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	book.Observe(tick("EURUSD", 1.10, base))
	require.NoError(t, f.Flush(ctx))
	assert.Empty(t, sink.stored)

	book.Observe(tick("EURUSD", 1.11, base.Add(time.Minute)))
	book.Observe(tick("EURUSD", 1.12, base.Add(2*time.Minute)))
	require.NoError(t, f.Flush(ctx))
	require.Len(t, sink.stored, 2)
	assert.Equal(t, base, sink.stored[0].Bucket)
	assert.Equal(t, base.Add(time.Minute), sink.stored[1].Bucket)

	require.NoError(t, f.Flush(ctx))
	assert.Len(t, sink.stored, 2)

	sink.err = errors.New("insert failed")
	book.Observe(tick("EURUSD", 1.13, base.Add(3*time.Minute)))
	assert.Error(t, f.Flush(ctx))
	sink.err = nil
	require.NoError(t, f.Flush(ctx))
	require.Len(t, sink.stored, 3)
	assert.Equal(t, base.Add(2*time.Minute), sink.stored[2].Bucket)
}

type fixedStore []models.Candle

func (s fixedStore) GetLatestNCandles(_ context.Context, symbol string, n int, _ domrepo.Timeframe) ([]models.Candle, error) {
	if symbol != "EURUSD" {
		return nil, errors.New("no rows")
	}
	return s, nil
}

func TestPreload(t *testing.T) {
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	store := fixedStore{
		{Symbol: "EURUSD", Bucket: base, Close: 1.1},
		{Symbol: "EURUSD", Bucket: base.Add(time.Minute), Close: 1.2},
	}
	book := NewCandleBook(domrepo.TF1m, 10)
	Preload(context.Background(), book, store, []string{"EURUSD", "GBPUSD"}, 10, applogger.Nop())

	p, ok := book.LastPrice("EURUSD")
	require.True(t, ok)
	assert.Equal(t, 1.2, p)
	_, ok = book.LastPrice("GBPUSD")
	assert.False(t, ok)
}
