package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	domrepo "FinTrade/internal/domain/repository"
	"FinTrade/internal/domain/service"
	"FinTrade/pkg/cache"
	applogger "FinTrade/pkg/logger"
)

// recentLimit bounds the closed and rejected positions kept for inspection.
const recentLimit = 200

// keyLocks hands out one mutex per key and forgets it once nobody holds it.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// LifecycleOption configures a LifecycleManager.
type LifecycleOption func(*LifecycleManager)

// WithDistributedLocks serialises ticket mutations across engine instances
// through the cache lock "lock:ticket:<id>".
func WithDistributedLocks(c cache.Service, ttl time.Duration) LifecycleOption {
	return func(m *LifecycleManager) {
		m.locker = c
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// LifecycleManager owns every position and is the only caller of bridge
// mutations. Opens are serialised per symbol, mutations per ticket.
type LifecycleManager struct {
	bridge  service.Bridge
	sizer   *RiskSizer
	history domrepo.TradeHistory
	events  domrepo.EventPublisher
	metrics domrepo.Metrics
	timeout time.Duration
	locker  cache.Service
	lockTTL time.Duration
	l       *applogger.Logger

	symbolLocks keyLocks
	ticketLocks keyLocks

	mu        sync.RWMutex
	positions map[int64]*models.Position
	bySymbol  map[string]int64
	recent    []models.Position
	pendingID int64
}

func NewLifecycleManager(
	bridge service.Bridge,
	sizer *RiskSizer,
	history domrepo.TradeHistory,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	callTimeout time.Duration,
	l *applogger.Logger,
	opts ...LifecycleOption,
) *LifecycleManager {
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	m := &LifecycleManager{
		bridge:    bridge,
		sizer:     sizer,
		history:   history,
		events:    events,
		metrics:   metrics,
		timeout:   callTimeout,
		lockTTL:   30 * time.Second,
		l:         l.Named("lifecycle"),
		positions: make(map[int64]*models.Position),
		bySymbol:  make(map[string]int64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply routes a validated signal to the matching transition.
func (m *LifecycleManager) Apply(ctx context.Context, sig models.TradeSignal) (models.Position, error) {
	switch sig.Action {
	case models.ActionBuy, models.ActionSell:
		return m.Open(ctx, sig)
	case models.ActionModify:
		return m.Modify(ctx, sig)
	case models.ActionTrail:
		return m.Trail(ctx, sig)
	case models.ActionClose:
		return m.Close(ctx, sig)
	}
	return models.Position{}, errs.New(errs.KindInvalidSignal, "lifecycle.apply", "action "+string(sig.Action)+" cannot be applied").
		WithSymbol(sig.Symbol)
}

// Open validates risk against a fresh account snapshot and opens a position.
// Only one position per symbol may be pending or live.
func (m *LifecycleManager) Open(ctx context.Context, sig models.TradeSignal) (models.Position, error) {
	const op = "lifecycle.open"
	if sig.Symbol == "" || !sig.Action.Opens() {
		return models.Position{}, errs.New(errs.KindInvalidSignal, op, "open needs a symbol and BUY or SELL")
	}
	unlock := m.symbolLocks.lock(sig.Symbol)
	defer unlock()

	if p, ok := m.OpenFor(sig.Symbol); ok {
		return p, errs.New(errs.KindInvalidTransition, op, fmt.Sprintf("position %d already open", p.Ticket)).
			WithSymbol(sig.Symbol)
	}

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	acct, err := m.bridge.AccountInfo(cctx)
	cancel()
	if err != nil {
		m.metrics.RecordBridgeCall("account", "error")
		return models.Position{}, errs.Wrap(errs.KindBridgeFailure, op, err).WithSymbol(sig.Symbol).WithReason("account info unavailable")
	}

	now := time.Now().UTC()
	pos := &models.Position{
		Ticket:     m.nextPendingID(),
		SignalID:   sig.ID,
		Symbol:     sig.Symbol,
		Side:       sig.Action,
		LotSize:    sig.LotSize,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Trailing:   sig.Trail,
		State:      models.StateNone,
		Volatility: sig.Volatility,
		Features:   sig.Features,
		OpenedAt:   now,
		UpdatedAt:  now,
	}
	m.mu.Lock()
	m.positions[pos.Ticket] = pos
	m.bySymbol[pos.Symbol] = pos.Ticket
	m.mu.Unlock()
	m.transition(ctx, pos, models.StatePendingOpen, "")

	verdict := m.sizer.Validate(sig.Symbol, sig.Action, sig.LotSize, acct)
	if !verdict.Accepted {
		m.metrics.RecordRiskRejection(verdict.Reason)
		m.finish(ctx, pos, models.StateRejected, verdict.Reason, 0)
		return *pos, errs.New(errs.KindRiskRejected, op, verdict.Reason).WithSymbol(sig.Symbol)
	}

	cctx, cancel = context.WithTimeout(ctx, m.timeout)
	res, err := m.bridge.SendTradeAction(cctx, models.TradeAction{
		Action:     sig.Action,
		Symbol:     sig.Symbol,
		Lot:        sig.LotSize,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Trail:      sig.Trail,
	})
	cancel()
	if err != nil {
		m.metrics.RecordBridgeCall(string(sig.Action), "error")
		m.discard(ctx, pos, err.Error())
		return models.Position{}, errs.Wrap(errs.KindBridgeFailure, op, err).WithSymbol(sig.Symbol)
	}
	if !res.Accepted {
		m.metrics.RecordBridgeCall(string(sig.Action), "refused")
		m.finish(ctx, pos, models.StateRejected, res.Reason, 0)
		return *pos, errs.New(errs.KindBridgeFailure, op, "terminal refused: "+res.Reason).WithSymbol(sig.Symbol)
	}
	m.metrics.RecordBridgeCall(string(sig.Action), "accepted")

	m.mu.Lock()
	local := pos.Ticket
	_, taken := m.positions[res.Ticket]
	if res.Ticket > 0 && !taken {
		delete(m.positions, local)
		pos.Ticket = res.Ticket
		m.positions[pos.Ticket] = pos
		m.bySymbol[pos.Symbol] = pos.Ticket
	}
	if res.Price > 0 {
		pos.EntryPrice = res.Price
	}
	m.mu.Unlock()
	reason := ""
	if pos.Ticket == local {
		reason = "terminal ticket unavailable, tracked by local id"
		m.l.Warn("open accepted without a usable ticket",
			applogger.String("symbol", pos.Symbol),
			applogger.Int64("terminal_ticket", res.Ticket),
			applogger.Int64("local_ticket", local))
	}
	m.transition(ctx, pos, models.StateOpen, reason)
	return m.snapshot(pos), nil
}

// Modify updates SL/TP of a live ticket.
func (m *LifecycleManager) Modify(ctx context.Context, sig models.TradeSignal) (models.Position, error) {
	return m.mutate(ctx, "lifecycle.modify", sig, models.StateModified)
}

// Trail activates the trailing stop of a live ticket.
func (m *LifecycleManager) Trail(ctx context.Context, sig models.TradeSignal) (models.Position, error) {
	return m.mutate(ctx, "lifecycle.trail", sig, models.StateTrailing)
}

// Close closes a live ticket and appends the realised trade to history.
func (m *LifecycleManager) Close(ctx context.Context, sig models.TradeSignal) (models.Position, error) {
	return m.mutate(ctx, "lifecycle.close", sig, models.StateClosed)
}

func (m *LifecycleManager) mutate(ctx context.Context, op string, sig models.TradeSignal, target models.TicketState) (models.Position, error) {
	if sig.Ticket == 0 {
		return models.Position{}, errs.New(errs.KindInvalidSignal, op, "ticket required").WithSymbol(sig.Symbol)
	}
	unlock, err := m.lockTicket(ctx, op, sig.Ticket)
	if err != nil {
		return models.Position{}, err
	}
	defer unlock()

	pos, err := m.live(op, sig.Ticket, target)
	if err != nil {
		return models.Position{}, err
	}

	action := models.TradeAction{
		Action:     actionFor(target),
		Symbol:     pos.Symbol,
		Lot:        pos.LotSize,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Trail:      target == models.StateTrailing || sig.Trail,
		Ticket:     pos.Ticket,
	}
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	res, err := m.bridge.SendTradeAction(cctx, action)
	cancel()
	if err != nil {
		m.metrics.RecordBridgeCall(string(action.Action), "error")
		return m.snapshot(pos), errs.Wrap(errs.KindBridgeFailure, op, err).WithSymbol(pos.Symbol)
	}
	if !res.Accepted {
		m.metrics.RecordBridgeCall(string(action.Action), "refused")
		return m.snapshot(pos), errs.New(errs.KindBridgeFailure, op, "terminal refused: "+res.Reason).WithSymbol(pos.Symbol)
	}
	m.metrics.RecordBridgeCall(string(action.Action), "accepted")

	if target == models.StateClosed {
		m.finish(ctx, pos, models.StateClosed, "", res.Profit)
		return m.snapshot(pos), nil
	}

	m.mu.Lock()
	if sig.StopLoss > 0 {
		pos.StopLoss = sig.StopLoss
	}
	if sig.TakeProfit > 0 {
		pos.TakeProfit = sig.TakeProfit
	}
	if target == models.StateTrailing || sig.Trail {
		pos.Trailing = true
	}
	m.mu.Unlock()
	m.transition(ctx, pos, target, "")
	return m.snapshot(pos), nil
}

// ObserveClosed applies a close that happened at the terminal (stop hit,
// manual close). It reports whether the ticket was live here; unknown
// tickets are left to the caller.
func (m *LifecycleManager) ObserveClosed(ctx context.Context, ticket int64, profit float64) (bool, error) {
	unlock, err := m.lockTicket(ctx, "lifecycle.observe_closed", ticket)
	if err != nil {
		return false, err
	}
	defer unlock()

	m.mu.RLock()
	pos, ok := m.positions[ticket]
	m.mu.RUnlock()
	if !ok || !pos.State.Live() {
		return false, nil
	}
	m.finish(ctx, pos, models.StateClosed, "closed at terminal", profit)
	return true, nil
}

// WasClosed reports whether a ticket was recently closed by this manager.
func (m *LifecycleManager) WasClosed(ticket int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.recent {
		if p.Ticket == ticket && p.State == models.StateClosed {
			return true
		}
	}
	return false
}

// Positions returns live and recently finished positions, newest first.
func (m *LifecycleManager) Positions() []models.Position {
	m.mu.RLock()
	out := make([]models.Position, 0, len(m.positions)+len(m.recent))
	for _, p := range m.positions {
		out = append(out, clonePosition(p))
	}
	out = append(out, m.recent...)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Position looks a ticket up among live and recent positions.
func (m *LifecycleManager) Position(ticket int64) (models.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.positions[ticket]; ok {
		return clonePosition(p), true
	}
	for i := len(m.recent) - 1; i >= 0; i-- {
		if m.recent[i].Ticket == ticket {
			return m.recent[i], true
		}
	}
	return models.Position{}, false
}

// OpenFor returns the pending or live position of a symbol.
func (m *LifecycleManager) OpenFor(symbol string) (models.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.bySymbol[symbol]
	if !ok {
		return models.Position{}, false
	}
	p, ok := m.positions[t]
	if !ok {
		return models.Position{}, false
	}
	return clonePosition(p), true
}

func (m *LifecycleManager) live(op string, ticket int64, target models.TicketState) (*models.Position, error) {
	m.mu.RLock()
	pos, ok := m.positions[ticket]
	m.mu.RUnlock()
	if !ok {
		for _, p := range m.recentCopy() {
			if p.Ticket == ticket && p.State.Terminal() {
				return nil, errs.Wrap(errs.KindInvalidTransition, op, errs.ErrTerminalState).
					WithSymbol(p.Symbol).WithReason(fmt.Sprintf("ticket %d is %s", ticket, p.State))
			}
		}
		return nil, errs.Wrap(errs.KindInvalidTransition, op, errs.ErrTicketNotFound).
			WithReason(fmt.Sprintf("ticket %d", ticket))
	}
	m.mu.RLock()
	from := pos.State
	m.mu.RUnlock()
	if !models.CanTransition(from, target) {
		return nil, errs.New(errs.KindInvalidTransition, op, fmt.Sprintf("%s -> %s not allowed", from, target)).
			WithSymbol(pos.Symbol)
	}
	return pos, nil
}

func (m *LifecycleManager) lockTicket(ctx context.Context, op string, ticket int64) (func(), error) {
	key := strconv.FormatInt(ticket, 10)
	unlock := m.ticketLocks.lock(key)
	if m.locker == nil {
		return unlock, nil
	}

	lockKey := "lock:ticket:" + key
	ok, err := m.locker.TryLock(ctx, lockKey, m.lockTTL)
	if err != nil || !ok {
		unlock()
		e := errs.New(errs.KindBridgeFailure, op, "ticket "+key+" is locked by another engine")
		if err != nil {
			e.Err = err
			e.Reason = "ticket lock unavailable"
		}
		return nil, e
	}
	return func() {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		if err := m.locker.Unlock(uctx, lockKey); err != nil {
			m.l.Warn("ticket unlock failed", applogger.String("key", lockKey), applogger.Error(err))
		}
		cancel()
		unlock()
	}, nil
}

// transition moves a position to a non-terminal state and emits the event.
func (m *LifecycleManager) transition(ctx context.Context, pos *models.Position, to models.TicketState, reason string) {
	m.mu.Lock()
	pos.State = to
	pos.Reason = reason
	pos.UpdatedAt = time.Now().UTC()
	snap := clonePosition(pos)
	m.mu.Unlock()
	m.emit(ctx, snap)
}

// finish moves a position to a terminal state and retires it.
func (m *LifecycleManager) finish(ctx context.Context, pos *models.Position, to models.TicketState, reason string, profit float64) {
	now := time.Now().UTC()
	m.mu.Lock()
	pos.State = to
	pos.Reason = reason
	pos.UpdatedAt = now
	if to == models.StateClosed {
		pos.Profit = profit
		pos.ClosedAt = &now
	}
	snap := clonePosition(pos)
	m.retire(pos)
	m.mu.Unlock()

	m.emit(ctx, snap)
	if to == models.StateClosed {
		m.record(ctx, snap)
	}
}

// discard drops a pending entry the terminal never saw.
func (m *LifecycleManager) discard(ctx context.Context, pos *models.Position, reason string) {
	m.mu.Lock()
	pos.State = models.StateNone
	pos.Reason = reason
	pos.UpdatedAt = time.Now().UTC()
	snap := clonePosition(pos)
	delete(m.positions, pos.Ticket)
	if m.bySymbol[pos.Symbol] == pos.Ticket {
		delete(m.bySymbol, pos.Symbol)
	}
	m.mu.Unlock()
	m.emit(ctx, snap)
}

// retire must be called with m.mu held.
func (m *LifecycleManager) retire(pos *models.Position) {
	delete(m.positions, pos.Ticket)
	if m.bySymbol[pos.Symbol] == pos.Ticket {
		delete(m.bySymbol, pos.Symbol)
	}
	m.recent = append(m.recent, clonePosition(pos))
	if len(m.recent) > recentLimit {
		m.recent = append(m.recent[:0:0], m.recent[len(m.recent)-recentLimit:]...)
	}
}

func (m *LifecycleManager) record(ctx context.Context, p models.Position) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()
	if err := m.history.Append(hctx, models.RecordFromPosition(p)); err != nil {
		m.metrics.RecordError("history_append")
		m.l.Error("trade history append failed",
			applogger.String("symbol", p.Symbol),
			applogger.Int64("ticket", p.Ticket),
			applogger.Error(err))
	}
}

func (m *LifecycleManager) emit(ctx context.Context, p models.Position) {
	m.metrics.RecordTransition(string(p.State))
	m.l.Info("position transition",
		applogger.String("symbol", p.Symbol),
		applogger.Int64("ticket", p.Ticket),
		applogger.String("state", string(p.State)),
		applogger.String("reason", p.Reason))

	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()
	err := m.events.PublishEvent(ectx, models.EngineEvent{
		Type:    models.EventTradeTransition,
		Symbol:  p.Symbol,
		Ticket:  p.Ticket,
		State:   p.State,
		Reason:  p.Reason,
		Payload: p,
	})
	if err != nil {
		m.l.Warn("trade event not published", applogger.Int64("ticket", p.Ticket), applogger.Error(err))
	}
}

func (m *LifecycleManager) nextPendingID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingID--
	return m.pendingID
}

func (m *LifecycleManager) snapshot(pos *models.Position) models.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clonePosition(pos)
}

func (m *LifecycleManager) recentCopy() []models.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Position(nil), m.recent...)
}

func clonePosition(p *models.Position) models.Position {
	c := *p
	if p.Features != nil {
		c.Features = append([]float64(nil), p.Features...)
	}
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		c.ClosedAt = &t
	}
	return c
}

func actionFor(target models.TicketState) models.Action {
	switch target {
	case models.StateModified:
		return models.ActionModify
	case models.StateTrailing:
		return models.ActionTrail
	default:
		return models.ActionClose
	}
}
