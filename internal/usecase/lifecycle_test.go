package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	"FinTrade/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buySignal(symbol string, lot float64) models.TradeSignal {
	return models.TradeSignal{
		ID:         "sig-1",
		Symbol:     symbol,
		Action:     models.ActionBuy,
		LotSize:    lot,
		StopLoss:   1.09,
		TakeProfit: 1.12,
		Volatility: 0.01,
		Features:   []float64{0.1, 0.2, 0.5, 0.01, 1.5},
	}
}

func TestLifecycle_FullTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	b, h, ev := newFakeBridge(), &memHistory{}, &eventLog{}
	b.profit = 42
	m := newTestLifecycle(b, h, ev)

	pos, err := m.Open(ctx, buySignal("EURUSD", 0.1))
	require.NoError(t, err)
	assert.Equal(t, models.StateOpen, pos.State)
	assert.Equal(t, int64(501), pos.Ticket)
	assert.Equal(t, 1.1, pos.EntryPrice)

	open, ok := m.OpenFor("EURUSD")
	require.True(t, ok)
	assert.Equal(t, pos.Ticket, open.Ticket)

	pos, err = m.Modify(ctx, models.TradeSignal{Action: models.ActionModify, Ticket: 501, StopLoss: 1.095, TakeProfit: 1.13})
	require.NoError(t, err)
	assert.Equal(t, models.StateModified, pos.State)
	assert.Equal(t, 1.095, pos.StopLoss)

	pos, err = m.Trail(ctx, models.TradeSignal{Action: models.ActionTrail, Ticket: 501})
	require.NoError(t, err)
	assert.Equal(t, models.StateTrailing, pos.State)
	assert.True(t, pos.Trailing)

	pos, err = m.Modify(ctx, models.TradeSignal{Action: models.ActionModify, Ticket: 501, TakeProfit: 1.14})
	require.NoError(t, err)
	assert.Equal(t, models.StateModified, pos.State)

	pos, err = m.Close(ctx, models.TradeSignal{Action: models.ActionClose, Ticket: 501})
	require.NoError(t, err)
	assert.Equal(t, models.StateClosed, pos.State)
	assert.Equal(t, 42.0, pos.Profit)
	require.NotNil(t, pos.ClosedAt)

	_, ok = m.OpenFor("EURUSD")
	assert.False(t, ok)
	assert.True(t, m.WasClosed(501))

	require.Equal(t, 1, h.len())
	rec := h.records[0]
	assert.Equal(t, 42.0, rec.Profit)
	assert.Equal(t, 1, rec.Label())
	assert.Equal(t, []float64{0.1, 0.2, 0.5, 0.01, 1.5}, rec.Features)

	assert.Equal(t, []models.TicketState{
		models.StateOpen, models.StateModified, models.StateTrailing, models.StateModified, models.StateClosed,
	}, ev.states(func(t int64) bool { return t == 501 }))
	assert.Equal(t, []models.TicketState{models.StatePendingOpen}, ev.states(func(t int64) bool { return t < 0 }))
}

func TestLifecycle_ClosedIsTerminal(t *testing.T) {
	ctx := context.Background()
	b := newFakeBridge()
	m := newTestLifecycle(b, &memHistory{}, &eventLog{})

	pos, err := m.Open(ctx, buySignal("EURUSD", 0.1))
	require.NoError(t, err)
	_, err = m.Close(ctx, models.TradeSignal{Action: models.ActionClose, Ticket: pos.Ticket})
	require.NoError(t, err)

	for _, a := range []models.Action{models.ActionModify, models.ActionTrail, models.ActionClose} {
		_, err = m.Apply(ctx, models.TradeSignal{Action: a, Ticket: pos.Ticket, StopLoss: 1})
		assert.True(t, errs.IsKind(err, errs.KindInvalidTransition), a)
		assert.ErrorIs(t, err, errs.ErrTerminalState)
	}
	assert.Len(t, b.sent(), 2)
}

func TestLifecycle_UnknownTicket(t *testing.T) {
	m := newTestLifecycle(newFakeBridge(), &memHistory{}, &eventLog{})
	_, err := m.Modify(context.Background(), models.TradeSignal{Action: models.ActionModify, Ticket: 9, StopLoss: 1})
	assert.True(t, errs.IsKind(err, errs.KindInvalidTransition))
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)

	_, err = m.Close(context.Background(), models.TradeSignal{Action: models.ActionClose})
	assert.True(t, errs.IsKind(err, errs.KindInvalidSignal))
}

func TestLifecycle_RiskRejection(t *testing.T) {
	b, ev := newFakeBridge(), &eventLog{}
	b.account = models.AccountState{Balance: 10000, Equity: 10000, FreeMargin: 50}
	m := newTestLifecycle(b, &memHistory{}, ev)

	pos, err := m.Open(context.Background(), buySignal("EURUSD", 0.1))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindRiskRejected))
	assert.Equal(t, ReasonInsufficientMargin, errs.ReasonOf(err))
	assert.Equal(t, models.StateRejected, pos.State)
	assert.Empty(t, b.sent())
	assert.Equal(t, []models.TicketState{models.StatePendingOpen, models.StateRejected}, ev.states(nil))

	_, ok := m.OpenFor("EURUSD")
	assert.False(t, ok)
	got, ok := m.Position(pos.Ticket)
	require.True(t, ok)
	assert.Equal(t, models.StateRejected, got.State)
}

func TestLifecycle_BridgeFailures(t *testing.T) {
	ctx := context.Background()

	b := newFakeBridge()
	b.accountErr = errors.New("terminal down")
	m := newTestLifecycle(b, &memHistory{}, &eventLog{})
	_, err := m.Open(ctx, buySignal("EURUSD", 0.1))
	assert.True(t, errs.IsKind(err, errs.KindBridgeFailure))
	assert.Empty(t, m.Positions())

	b = newFakeBridge()
	b.sendErr = errors.New("timeout")
	ev := &eventLog{}
	m = newTestLifecycle(b, &memHistory{}, ev)
	_, err = m.Open(ctx, buySignal("EURUSD", 0.1))
	assert.True(t, errs.IsKind(err, errs.KindBridgeFailure))
	_, ok := m.OpenFor("EURUSD")
	assert.False(t, ok)
	assert.Equal(t, []models.TicketState{models.StatePendingOpen, models.StateNone}, ev.states(nil))

	b = newFakeBridge()
	b.refuse = "market closed"
	m = newTestLifecycle(b, &memHistory{}, &eventLog{})
	pos, err := m.Open(ctx, buySignal("EURUSD", 0.1))
	assert.True(t, errs.IsKind(err, errs.KindBridgeFailure))
	assert.Equal(t, models.StateRejected, pos.State)
	assert.Equal(t, "market closed", pos.Reason)
}

func TestLifecycle_OnePositionPerSymbol(t *testing.T) {
	ctx := context.Background()
	m := newTestLifecycle(newFakeBridge(), &memHistory{}, &eventLog{})

	_, err := m.Open(ctx, buySignal("EURUSD", 0.1))
	require.NoError(t, err)
	_, err = m.Open(ctx, buySignal("EURUSD", 0.1))
	assert.True(t, errs.IsKind(err, errs.KindInvalidTransition))

	_, err = m.Open(ctx, buySignal("GBPUSD", 0.1))
	assert.NoError(t, err)
}

func TestLifecycle_OpenWithoutTerminalTicket(t *testing.T) {
	ctx := context.Background()
	b, h := newFakeBridge(), &memHistory{}
	b.profit = -3
	none := int64(0)
	b.openTicket = &none
	m := newTestLifecycle(b, h, &eventLog{})

	eur, err := m.Open(ctx, buySignal("EURUSD", 0.1))
	require.NoError(t, err)
	gbp, err := m.Open(ctx, buySignal("GBPUSD", 0.1))
	require.NoError(t, err)

	assert.Less(t, eur.Ticket, int64(0))
	assert.Less(t, gbp.Ticket, int64(0))
	assert.NotEqual(t, eur.Ticket, gbp.Ticket)
	assert.Equal(t, models.StateOpen, eur.State)

	got, ok := m.OpenFor("EURUSD")
	require.True(t, ok)
	assert.Equal(t, "EURUSD", got.Symbol)
	assert.Equal(t, eur.Ticket, got.Ticket)

	closed, err := m.Close(ctx, models.TradeSignal{Action: models.ActionClose, Ticket: eur.Ticket})
	require.NoError(t, err)
	assert.Equal(t, models.StateClosed, closed.State)
	_, ok = m.OpenFor("EURUSD")
	assert.False(t, ok)
	_, ok = m.OpenFor("GBPUSD")
	assert.True(t, ok)
	assert.Equal(t, 1, h.len())
}

func TestLifecycle_OpenTicketCollision(t *testing.T) {
	ctx := context.Background()
	b := newFakeBridge()
	m := newTestLifecycle(b, &memHistory{}, &eventLog{})

	eur, err := m.Open(ctx, buySignal("EURUSD", 0.1))
	require.NoError(t, err)

	reused := eur.Ticket
	b.openTicket = &reused
	gbp, err := m.Open(ctx, buySignal("GBPUSD", 0.1))
	require.NoError(t, err)
	assert.Less(t, gbp.Ticket, int64(0))

	got, ok := m.Position(eur.Ticket)
	require.True(t, ok)
	assert.Equal(t, "EURUSD", got.Symbol)
	got, ok = m.OpenFor("GBPUSD")
	require.True(t, ok)
	assert.Equal(t, gbp.Ticket, got.Ticket)
}

func TestLifecycle_SerialisesTicketMutations(t *testing.T) {
	ctx := context.Background()
	b := newFakeBridge()
	m := newTestLifecycle(b, &memHistory{}, &eventLog{})
	pos, err := m.Open(ctx, buySignal("EURUSD", 0.1))
	require.NoError(t, err)

	b.mu.Lock()
	b.delay = 5 * time.Millisecond
	b.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = m.Modify(ctx, models.TradeSignal{Action: models.ActionModify, Ticket: pos.Ticket, StopLoss: 1.0 + float64(i)/100})
		}(i)
	}
	wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, 1, b.maxFlight)
	assert.Len(t, b.actions, 9)
}

func TestLifecycle_DistributedLockHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()
	defer c.Close()
	m := newTestLifecycle(newFakeBridge(), &memHistory{}, &eventLog{}, WithDistributedLocks(c, time.Minute))

	pos, err := m.Open(ctx, buySignal("EURUSD", 0.1))
	require.NoError(t, err)

	ok, err := c.TryLock(ctx, "lock:ticket:501", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = m.Close(ctx, models.TradeSignal{Action: models.ActionClose, Ticket: pos.Ticket})
	assert.True(t, errs.IsKind(err, errs.KindBridgeFailure))

	require.NoError(t, c.Unlock(ctx, "lock:ticket:501"))
	_, err = m.Close(ctx, models.TradeSignal{Action: models.ActionClose, Ticket: pos.Ticket})
	assert.NoError(t, err)
}

func TestLifecycle_ObserveClosed(t *testing.T) {
	ctx := context.Background()
	h := &memHistory{}
	m := newTestLifecycle(newFakeBridge(), h, &eventLog{})
	pos, err := m.Open(ctx, buySignal("EURUSD", 0.1))
	require.NoError(t, err)

	applied, err := m.ObserveClosed(ctx, pos.Ticket, -12.5)
	require.NoError(t, err)
	assert.True(t, applied)
	require.Equal(t, 1, h.len())
	assert.Equal(t, -12.5, h.records[0].Profit)

	applied, err = m.ObserveClosed(ctx, pos.Ticket, -12.5)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 1, h.len())

	applied, err = m.ObserveClosed(ctx, 777, 1)
	require.NoError(t, err)
	assert.False(t, applied)
}
