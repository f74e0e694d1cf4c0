package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"FinTrade/internal/domain/models"
	domrepo "FinTrade/internal/domain/repository"
	"FinTrade/pkg/cache"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderFlowSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "EURUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"bids":[["1.1","30"],["1.0","30"],["0.9","1000"]],"asks":[["1.2","20"]]}`))
	}))
	defer srv.Close()

	src := NewOrderFlowSource(srv.URL, time.Second, 2, map[string]string{"EURUSDm": "EURUSDT"})
	v, err := src.Fetch(context.Background(), "EURUSDm")
	require.NoError(t, err)
	// bids 60 (top two levels), asks 20
	assert.InDelta(t, 0.5, v, 1e-9)

	_, err = src.Fetch(context.Background(), "XAUUSD")
	assert.ErrorContains(t, err, "no venue symbol")
}

func TestImbalance_EmptyBook(t *testing.T) {
	_, err := Imbalance(decimal.Zero, decimal.Zero)
	assert.Error(t, err)
}

func TestSentimentSource_ClipsAndCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/sentiment/score", r.URL.Path)
		var req sentimentReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "EURUSD", req.Symbol)
		_, _ = w.Write([]byte(`{"score":1.7}`))
	}))
	defer srv.Close()

	mc := cache.NewMemoryCache()
	defer mc.Close()

	src := NewSentimentSource(srv.URL, time.Second, 1, mc, time.Minute)
	for i := 0; i < 3; i++ {
		v, err := src.Fetch(context.Background(), "EURUSD")
		require.NoError(t, err)
		assert.Equal(t, 1.0, v)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestPostJSONWithRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flaky":
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"score":0.2}`))
		default:
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	b := NewHTTPServiceBase(srv.URL, time.Second)
	var resp sentimentResp
	require.NoError(t, b.PostJSONWithRetry(context.Background(), "/flaky", nil, &resp, 3))
	assert.Equal(t, 0.2, resp.Score)

	calls.Store(0)
	err := b.PostJSONWithRetry(context.Background(), "/bad", nil, &resp, 3)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}

type fakeScorer struct {
	proba    float64
	features map[string]float64
}

func (f *fakeScorer) Predict(_ context.Context, symbol string, features map[string]float64, horizon string) (models.EdgeScore, error) {
	f.features = features
	return models.EdgeScore{Symbol: symbol, Horizon: horizon, ProbaUp: f.proba}, nil
}

type candleStore []models.Candle

func (s candleStore) GetLatestNCandles(_ context.Context, _ string, n int, _ domrepo.Timeframe) ([]models.Candle, error) {
	if len(s) > n {
		return s[len(s)-n:], nil
	}
	return s, nil
}

func risingCandles(n int) candleStore {
	out := make(candleStore, n)
	for i := range out {
		p := 100 + float64(i)*0.1
		out[i] = models.Candle{Open: p, High: p + 0.05, Low: p - 0.05, Close: p}
	}
	return out
}

func TestInsightSource(t *testing.T) {
	scorer := &fakeScorer{proba: 0.64}
	src := NewInsightSource(risingCandles(60), scorer, domrepo.TF1m, 60, "15m")

	v, err := src.Fetch(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 0.64, v)
	for _, k := range []string{"ret_1", "rv_20", "bb_pctb", "fib_618", "trend_ema"} {
		assert.Contains(t, scorer.features, k)
	}
	assert.Greater(t, scorer.features["ret_1"], 0.0)
	assert.Greater(t, scorer.features["trend_ema"], 0.0)

	scorer.proba = 1.5
	_, err = src.Fetch(context.Background(), "EURUSD")
	assert.Error(t, err)

	short := NewInsightSource(risingCandles(10), scorer, domrepo.TF1m, 60, "15m")
	_, err = short.Fetch(context.Background(), "EURUSD")
	assert.Error(t, err)
}
