package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"FinTrade/pkg/util"
)

// Action is a trade instruction.
type Action string

const (
	ActionBuy     Action = "BUY"
	ActionSell    Action = "SELL"
	ActionNeutral Action = "NEUTRAL"
	ActionModify  Action = "MODIFY"
	ActionClose   Action = "CLOSE"
	ActionTrail   Action = "TRAIL"
)

// ParseAction normalises a raw action string.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case ActionBuy, ActionSell, ActionNeutral, ActionModify, ActionClose, ActionTrail:
		return a, true
	}
	return "", false
}

// Opens reports whether the action opens a new position.
func (a Action) Opens() bool { return a == ActionBuy || a == ActionSell }

// NeedsTicket reports whether the action targets an existing ticket.
func (a Action) NeedsTicket() bool {
	return a == ActionModify || a == ActionClose || a == ActionTrail
}

// Sign is +1 for BUY, -1 for SELL, 0 otherwise.
func (a Action) Sign() float64 {
	switch a {
	case ActionBuy:
		return 1
	case ActionSell:
		return -1
	}
	return 0
}

// TicketState is the lifecycle state of a position.
type TicketState string

const (
	StateNone        TicketState = "NONE"
	StatePendingOpen TicketState = "PENDING_OPEN"
	StateOpen        TicketState = "OPEN"
	StateModified    TicketState = "MODIFIED"
	StateTrailing    TicketState = "TRAILING"
	StateClosed      TicketState = "CLOSED"
	StateRejected    TicketState = "REJECTED"
)

var transitions = map[TicketState][]TicketState{
	StateNone:        {StatePendingOpen},
	StatePendingOpen: {StateOpen, StateRejected, StateNone},
	StateOpen:        {StateModified, StateTrailing, StateClosed},
	StateModified:    {StateModified, StateTrailing, StateClosed},
	StateTrailing:    {StateModified, StateTrailing, StateClosed},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to TicketState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s TicketState) Terminal() bool { return s == StateClosed || s == StateRejected }

// Live reports whether the position is open at the broker.
func (s TicketState) Live() bool {
	return s == StateOpen || s == StateModified || s == StateTrailing
}

// ParseTicketState normalises a raw state string.
func ParseTicketState(s string) (TicketState, bool) {
	st := TicketState(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := transitions[st]; ok || st == StateClosed || st == StateRejected {
		return st, true
	}
	return "", false
}

// TradeSignal is the unit handed to the lifecycle manager. It is consumed once.
type TradeSignal struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	LotSize    float64   `json:"lot_size"`
	StopLoss   float64   `json:"sl,omitempty"`
	TakeProfit float64   `json:"tp,omitempty"`
	Trail      bool      `json:"trail,omitempty"`
	Ticket     int64     `json:"ticket,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Features   []float64 `json:"features,omitempty"`
	Volatility float64   `json:"volatility,omitempty"`
	Source     string    `json:"source,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TradeAction is a mutating request sent to the execution bridge.
type TradeAction struct {
	Action     Action  `json:"action"`
	Symbol     string  `json:"symbol"`
	Lot        float64 `json:"lot"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
	Trail      bool    `json:"trail"`
	Ticket     int64   `json:"ticket"`
}

// BridgeResult is the bridge verdict for a TradeAction.
type BridgeResult struct {
	Accepted bool    `json:"accepted"`
	Reason   string  `json:"reason,omitempty"`
	Ticket   int64   `json:"ticket,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Profit   float64 `json:"profit,omitempty"`
}

// AccountState is fetched fresh every cycle and never cached.
type AccountState struct {
	Balance    float64   `json:"balance"`
	FreeMargin float64   `json:"free_margin"`
	Equity     float64   `json:"equity"`
	MarginUsed float64   `json:"margin_used"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// NoMarginLevel is reported when no margin is in use.
const NoMarginLevel = 9999.0

// MarginLevel is equity over used margin, in percent.
func (a AccountState) MarginLevel() float64 {
	if a.MarginUsed <= 0 {
		return NoMarginLevel
	}
	return a.Equity / a.MarginUsed * 100
}

// RiskVerdict is the outcome of a pre-trade risk check.
type RiskVerdict struct {
	Accepted       bool    `json:"accepted"`
	Reason         string  `json:"reason,omitempty"`
	RequiredMargin float64 `json:"required_margin"`
	MaxRisk        float64 `json:"max_risk"`
	MarginLevel    float64 `json:"margin_level"`
}

// Position is a ticket tracked by the lifecycle manager.
type Position struct {
	Ticket     int64       `json:"ticket"`
	SignalID   string      `json:"signal_id,omitempty"`
	Symbol     string      `json:"symbol"`
	Side       Action      `json:"side"`
	LotSize    float64     `json:"lot_size"`
	EntryPrice float64     `json:"entry_price"`
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit float64     `json:"take_profit"`
	Trailing   bool        `json:"trailing"`
	State      TicketState `json:"state"`
	Reason     string      `json:"reason,omitempty"`
	Profit     float64     `json:"profit"`
	Volatility float64     `json:"volatility"`
	Features   []float64   `json:"features,omitempty"`
	OpenedAt   time.Time   `json:"opened_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	ClosedAt   *time.Time  `json:"closed_at,omitempty"`
}

// TradeRecord is one realized trade. Records are append-only.
type TradeRecord struct {
	Symbol           string    `json:"symbol"`
	LotSize          float64   `json:"lot_size"`
	StopLoss         float64   `json:"stop_loss"`
	TakeProfit       float64   `json:"take_profit"`
	MarketVolatility float64   `json:"market_volatility"`
	Profit           float64   `json:"profit"`
	Timestamp        time.Time `json:"timestamp"`
	Ticket           int64     `json:"ticket,omitempty"`
	Action           Action    `json:"action,omitempty"`
	Features         []float64 `json:"features,omitempty"`
}

// Label is 1 for a profitable trade and 0 otherwise.
func (r TradeRecord) Label() int {
	if r.Profit > 0 {
		return 1
	}
	return 0
}

// UnmarshalJSON accepts RFC3339 strings, unix seconds or no timestamp at all.
func (r *TradeRecord) UnmarshalJSON(b []byte) error {
	type plain TradeRecord
	aux := struct {
		*plain
		Timestamp json.RawMessage `json:"timestamp"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.Timestamp = time.Time{}
	raw := strings.Trim(string(aux.Timestamp), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f > 0 {
		r.Timestamp = time.Unix(int64(f), 0).UTC()
		return nil
	}
	if t, ok := util.ParseTime(raw); ok {
		r.Timestamp = t
	}
	return nil
}

// RecordFromPosition converts a closed position into a training record.
func RecordFromPosition(p Position) TradeRecord {
	ts := p.UpdatedAt
	if p.ClosedAt != nil {
		ts = *p.ClosedAt
	}
	return TradeRecord{
		Symbol:           p.Symbol,
		LotSize:          p.LotSize,
		StopLoss:         p.StopLoss,
		TakeProfit:       p.TakeProfit,
		MarketVolatility: p.Volatility,
		Profit:           p.Profit,
		Timestamp:        ts,
		Ticket:           p.Ticket,
		Action:           p.Side,
		Features:         p.Features,
	}
}

// Decision is the outcome of one decision cycle for a symbol.
type Decision struct {
	Symbol       string    `json:"symbol"`
	Confidence   float64   `json:"confidence"`
	Smoothed     float64   `json:"smoothed"`
	Action       Action    `json:"action"`
	ModelVersion string    `json:"model_version,omitempty"`
	ColdStart    bool      `json:"cold_start"`
	Degraded     []string  `json:"degraded,omitempty"`
	LotSize      float64   `json:"lot_size,omitempty"`
	StopLoss     float64   `json:"stop_loss,omitempty"`
	TakeProfit   float64   `json:"take_profit,omitempty"`
	Ticket       int64     `json:"ticket,omitempty"`
	Outcome      string    `json:"outcome"`
	At           time.Time `json:"at"`
}
