// Command seedhistory writes synthetic trade records to the trade history
// so a fresh deployment has enough samples to train its first model.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand/v2"
	"time"

	"FinTrade/internal/domain/models"
	"FinTrade/internal/repository"
	"FinTrade/pkg/config"
	applogger "FinTrade/pkg/logger"

	"github.com/shopspring/decimal"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	n := flag.Int("n", 200, "number of records")
	seed := flag.Uint64("seed", 42, "random seed")
	out := flag.String("out", "", "history file (defaults to history.file)")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	path := cfg.History.File
	if *out != "" {
		path = *out
	}

	l, err := applogger.New(&applogger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	history := repository.NewFileTradeHistory(path, l)

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	records := Synthesize(*n, cfg.Trading.TradingPairs, rng, time.Now().UTC())
	ctx := context.Background()
	for _, r := range records {
		if err := history.Append(ctx, r); err != nil {
			log.Fatalf("append: %v", err)
		}
	}
	l.Info("synthetic history written",
		applogger.String("path", path),
		applogger.Int("records", len(records)))
}

// Synthesize returns n legacy records one minute apart, ending at end.
// Records carry no feature snapshot.
func Synthesize(n int, symbols []string, rng *rand.Rand, end time.Time) []models.TradeRecord {
	if len(symbols) == 0 {
		symbols = []string{"EURUSDm"}
	}
	out := make([]models.TradeRecord, 0, n)
	start := end.Add(-time.Duration(n) * time.Minute)
	for i := 0; i < n; i++ {
		action := models.ActionBuy
		if rng.IntN(2) == 1 {
			action = models.ActionSell
		}
		out = append(out, models.TradeRecord{
			Symbol:           symbols[i%len(symbols)],
			Action:           action,
			LotSize:          uniform(rng, 0.1, 5),
			StopLoss:         uniform(rng, 10, 50),
			TakeProfit:       uniform(rng, 10, 50),
			MarketVolatility: uniform(rng, 0.1, 1.5),
			Profit:           uniform(rng, -50, 100),
			Timestamp:        start.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	v, _ := decimal.NewFromFloat(lo + rng.Float64()*(hi-lo)).Round(2).Float64()
	return v
}
