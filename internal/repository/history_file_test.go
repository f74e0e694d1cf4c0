package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"FinTrade/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHistoryAppendLoad(t *testing.T) {
	ctx := context.Background()
	h := NewFileTradeHistory(filepath.Join(t.TempDir(), "logs", "trade_history.jsonl"), nil)

	recs, err := h.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	require.NoError(t, h.Append(ctx, models.TradeRecord{Symbol: "EURUSDm", LotSize: 0.1, Profit: 12.5, Timestamp: ts, Features: []float64{0.1, 0.2, 0.5, 0.01, 1}}))
	require.NoError(t, h.Append(ctx, models.TradeRecord{Symbol: "USDJPYm", LotSize: 0.2, Profit: -3, Timestamp: ts}))

	recs, err = h.Load(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "EURUSDm", recs[0].Symbol)
	assert.Equal(t, []float64{0.1, 0.2, 0.5, 0.01, 1}, recs[0].Features)
	assert.Equal(t, 0, recs[1].Label())
	assert.True(t, ts.Equal(recs[1].Timestamp))
}

func TestFileHistoryConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	h := NewFileTradeHistory(filepath.Join(t.TempDir(), "h.jsonl"), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, h.Append(ctx, models.TradeRecord{Symbol: fmt.Sprintf("S%d", i), Profit: float64(i)}))
		}(i)
	}
	wg.Wait()

	recs, err := h.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 20)
}

func TestFileHistorySkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.jsonl")
	data := `{"symbol":"EURUSDm","profit":1,"timestamp":1728555010}
not json
{"profit":2}

{"symbol":"USDJPYm","profit":-1,"timestamp":"2024-10-10T10:10:10Z"}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	recs, err := NewFileTradeHistory(path, nil).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "USDJPYm", recs[1].Symbol)
}

func TestFileHistoryReadsJSONArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_history.json")
	data := `[{"symbol":"EURUSDm","lot_size":0.5,"stop_loss":20,"take_profit":40,"market_volatility":0.7,"profit":35.2,"timestamp":1728555010}]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	recs, err := NewFileTradeHistory(path, nil).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 0.7, recs[0].MarketVolatility)
	assert.Equal(t, 1, recs[0].Label())
}

func TestFileHistoryAppendAfterJSONArray(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trade_history.json")
	data := `[
  {"symbol":"EURUSDm","lot_size":0.5,"stop_loss":20,"take_profit":40,"market_volatility":0.7,"profit":35.2,"timestamp":1728555010},
  {"symbol":"USDJPYm","lot_size":1.0,"stop_loss":15,"take_profit":30,"market_volatility":0.4,"profit":-8,"timestamp":1728555070}
]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	h := NewFileTradeHistory(path, nil)

	require.NoError(t, h.Append(ctx, models.TradeRecord{Symbol: "GBPUSDm", LotSize: 0.2, Profit: 4, Timestamp: time.Unix(1728555130, 0).UTC()}))
	require.NoError(t, h.Append(ctx, models.TradeRecord{Symbol: "XAUUSDm", LotSize: 0.1, Profit: -1, Timestamp: time.Unix(1728555190, 0).UTC()}))

	recs, err := h.Load(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, []string{"EURUSDm", "USDJPYm", "GBPUSDm", "XAUUSDm"},
		[]string{recs[0].Symbol, recs[1].Symbol, recs[2].Symbol, recs[3].Symbol})
	assert.Equal(t, 0.7, recs[0].MarketVolatility)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte('{'), raw[0], "history is stored as json lines after the first append")
}

func TestFileHistoryReadsArrayFollowedByLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_history.json")
	data := `[{"symbol":"EURUSDm","profit":35.2,"timestamp":1728555010}]
{"symbol":"GBPUSDm","profit":-2,"timestamp":1728555070}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	recs, err := NewFileTradeHistory(path, nil).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "GBPUSDm", recs[1].Symbol)
}
