package models

import "time"

const (
	EventTradeTransition = "trade.transition"
	EventModelTrained    = "model.trained"
)

// EngineEvent is published for every lifecycle transition and training run.
type EngineEvent struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol,omitempty"`
	Ticket    int64       `json:"ticket,omitempty"`
	State     TicketState `json:"state,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
