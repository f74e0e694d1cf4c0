package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"FinTrade/internal/domain/models"
	applogger "FinTrade/pkg/logger"
)

type fakeBridge struct {
	mu         sync.Mutex
	price      map[string]float64
	account    models.AccountState
	accountErr error
	sendErr    error
	refuse     string
	profit     float64
	nextTicket int64
	openTicket *int64
	actions    []models.TradeAction
	inFlight   int
	maxFlight  int
	delay      time.Duration
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		price:      map[string]float64{"EURUSD": 1.1, "GBPUSD": 1.25},
		account:    models.AccountState{Balance: 10000, Equity: 10000, FreeMargin: 10000},
		nextTicket: 500,
	}
}

func (b *fakeBridge) GetCurrentPrice(_ context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.price[symbol]
	if !ok {
		return 0, errors.New("no price")
	}
	return p, nil
}

func (b *fakeBridge) AccountInfo(context.Context) (models.AccountState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.account, b.accountErr
}

func (b *fakeBridge) SendTradeAction(_ context.Context, a models.TradeAction) (models.BridgeResult, error) {
	b.mu.Lock()
	b.inFlight++
	if b.inFlight > b.maxFlight {
		b.maxFlight = b.inFlight
	}
	delay := b.delay
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight--
	b.actions = append(b.actions, a)
	if b.sendErr != nil {
		return models.BridgeResult{}, b.sendErr
	}
	if b.refuse != "" {
		return models.BridgeResult{Reason: b.refuse}, nil
	}
	switch a.Action {
	case models.ActionBuy, models.ActionSell:
		if b.openTicket != nil {
			return models.BridgeResult{Accepted: true, Ticket: *b.openTicket, Price: b.price[a.Symbol]}, nil
		}
		b.nextTicket++
		return models.BridgeResult{Accepted: true, Ticket: b.nextTicket, Price: b.price[a.Symbol]}, nil
	case models.ActionClose:
		return models.BridgeResult{Accepted: true, Ticket: a.Ticket, Profit: b.profit}, nil
	}
	return models.BridgeResult{Accepted: true, Ticket: a.Ticket}, nil
}

func (b *fakeBridge) sent() []models.TradeAction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.TradeAction(nil), b.actions...)
}

type memHistory struct {
	mu      sync.Mutex
	records []models.TradeRecord
	loadErr error
}

func (h *memHistory) Append(_ context.Context, r models.TradeRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *memHistory) Load(context.Context) ([]models.TradeRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loadErr != nil {
		return nil, h.loadErr
	}
	return append([]models.TradeRecord(nil), h.records...), nil
}

func (h *memHistory) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

type eventLog struct {
	mu     sync.Mutex
	events []models.EngineEvent
}

func (e *eventLog) PublishEvent(_ context.Context, ev models.EngineEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *eventLog) Close() error { return nil }

func (e *eventLog) states(ticketFilter func(int64) bool) []models.TicketState {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.TicketState
	for _, ev := range e.events {
		if ev.Type == models.EventTradeTransition && (ticketFilter == nil || ticketFilter(ev.Ticket)) {
			out = append(out, ev.State)
		}
	}
	return out
}

func (e *eventLog) ofType(typ string) []models.EngineEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.EngineEvent
	for _, ev := range e.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func newTestLifecycle(b *fakeBridge, h *memHistory, ev *eventLog, opts ...LifecycleOption) *LifecycleManager {
	return NewLifecycleManager(b, NewRiskSizer(testTrading(), testRisk()), h, ev,
		newTestRecorder(), time.Second, applogger.Nop(), opts...)
}
