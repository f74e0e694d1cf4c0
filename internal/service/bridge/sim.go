// Package bridge holds the execution bridge implementations: an in-memory
// paper broker and a REST gateway to the trading terminal.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinTrade/internal/domain/models"
	"FinTrade/internal/domain/service"
	"FinTrade/pkg/config"
	applogger "FinTrade/pkg/logger"

	"github.com/shopspring/decimal"
)

// PriceFeed supplies the last traded price of a symbol.
type PriceFeed interface {
	LastPrice(symbol string) (float64, bool)
}

type simPosition struct {
	ticket   int64
	symbol   string
	side     models.Action
	lot      float64
	entry    float64
	sl       float64
	tp       float64
	trailing bool
}

// SimBridge is a paper broker. It fills at the feed price, keeps balance
// and margin, and realises profit on close.
type SimBridge struct {
	mu           sync.Mutex
	feed         PriceFeed
	static       map[string]float64
	contract     float64
	marginPerLot float64
	balance      float64
	nextTicket   int64
	open         map[int64]*simPosition
	l            *applogger.Logger
}

func NewSimBridge(cfg config.Bridge, marginPerLot float64, feed PriceFeed, l *applogger.Logger) *SimBridge {
	static := make(map[string]float64, len(cfg.Sim.Prices))
	for k, v := range cfg.Sim.Prices {
		static[k] = v
	}
	contract := cfg.Sim.ContractSize
	if contract <= 0 {
		contract = 100000
	}
	return &SimBridge{
		feed:         feed,
		static:       static,
		contract:     contract,
		marginPerLot: marginPerLot,
		balance:      cfg.Sim.Balance,
		nextTicket:   1000,
		open:         make(map[int64]*simPosition),
		l:            l.Named("sim_bridge"),
	}
}

func (b *SimBridge) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.price(symbol)
}

func (b *SimBridge) price(symbol string) (float64, error) {
	if b.feed != nil {
		if p, ok := b.feed.LastPrice(symbol); ok && p > 0 {
			return p, nil
		}
	}
	if p, ok := b.static[symbol]; ok && p > 0 {
		return p, nil
	}
	return 0, fmt.Errorf("no price for %s", symbol)
}

// AccountInfo marks open positions to market. Positions without a price are
// carried at entry.
func (b *SimBridge) AccountInfo(ctx context.Context) (models.AccountState, error) {
	if err := ctx.Err(); err != nil {
		return models.AccountState{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var unrealized, used float64
	for _, p := range b.open {
		mark, err := b.price(p.symbol)
		if err != nil {
			mark = p.entry
		}
		unrealized += b.profit(p, mark)
		used += p.lot * b.marginPerLot
	}
	equity := b.balance + unrealized
	return models.AccountState{
		Balance:    round2(b.balance),
		Equity:     round2(equity),
		MarginUsed: round2(used),
		FreeMargin: round2(equity - used),
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// SendTradeAction executes an action. Broker refusals are reported as a
// rejected result, not an error.
func (b *SimBridge) SendTradeAction(ctx context.Context, a models.TradeAction) (models.BridgeResult, error) {
	if err := ctx.Err(); err != nil {
		return models.BridgeResult{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch a.Action {
	case models.ActionBuy, models.ActionSell:
		if a.Lot <= 0 {
			return reject("invalid lot"), nil
		}
		px, err := b.price(a.Symbol)
		if err != nil {
			return models.BridgeResult{}, err
		}
		b.nextTicket++
		p := &simPosition{
			ticket:   b.nextTicket,
			symbol:   a.Symbol,
			side:     a.Action,
			lot:      a.Lot,
			entry:    px,
			sl:       a.StopLoss,
			tp:       a.TakeProfit,
			trailing: a.Trail,
		}
		b.open[p.ticket] = p
		b.l.Info("sim position opened",
			applogger.Int64("ticket", p.ticket),
			applogger.String("symbol", p.symbol),
			applogger.String("side", string(p.side)),
			applogger.Float64("lot", p.lot),
			applogger.Float64("price", px))
		return models.BridgeResult{Accepted: true, Ticket: p.ticket, Price: px}, nil

	case models.ActionModify, models.ActionTrail:
		p, ok := b.open[a.Ticket]
		if !ok {
			return reject("unknown ticket"), nil
		}
		if a.StopLoss > 0 {
			p.sl = a.StopLoss
		}
		if a.TakeProfit > 0 {
			p.tp = a.TakeProfit
		}
		if a.Action == models.ActionTrail {
			p.trailing = true
		}
		return models.BridgeResult{Accepted: true, Ticket: p.ticket, Price: p.entry}, nil

	case models.ActionClose:
		p, ok := b.open[a.Ticket]
		if !ok {
			return reject("unknown ticket"), nil
		}
		px, err := b.price(p.symbol)
		if err != nil {
			return models.BridgeResult{}, err
		}
		profit := round2(b.profit(p, px))
		b.balance += profit
		delete(b.open, p.ticket)
		b.l.Info("sim position closed",
			applogger.Int64("ticket", p.ticket),
			applogger.Float64("price", px),
			applogger.Float64("profit", profit))
		return models.BridgeResult{Accepted: true, Ticket: p.ticket, Price: px, Profit: profit}, nil
	}
	return reject("unsupported action " + string(a.Action)), nil
}

func (b *SimBridge) profit(p *simPosition, exit float64) float64 {
	return (exit - p.entry) * p.lot * b.contract * p.side.Sign()
}

func reject(reason string) models.BridgeResult {
	return models.BridgeResult{Accepted: false, Reason: reason}
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

var _ service.Bridge = (*SimBridge)(nil)
