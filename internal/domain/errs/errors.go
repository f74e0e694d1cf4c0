// Package errs holds the engine's error taxonomy. Only KindConfig is fatal;
// every other kind is absorbed at the boundary of the operation that raised it.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an engine error.
type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindConfig            Kind = "config"
	KindDataUnavailable   Kind = "data_unavailable"
	KindModelMissing      Kind = "model_missing"
	KindInsufficientData  Kind = "insufficient_training_data"
	KindRiskRejected      Kind = "risk_rejected"
	KindBridgeFailure     Kind = "bridge_failure"
	KindInvalidTransition Kind = "invalid_transition"
	KindInvalidSignal     Kind = "invalid_signal"
)

var (
	ErrNoMarketData     = errors.New("no market data")
	ErrModelMissing     = errors.New("model artifact missing")
	ErrInsufficientData = errors.New("insufficient training data")
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrTerminalState    = errors.New("ticket in terminal state")
)

// Error is a classified error carrying the operation and symbol it belongs to.
type Error struct {
	Kind   Kind
	Op     string
	Symbol string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(" [")
		b.WriteString(e.Op)
		b.WriteString("]")
	}
	if e.Symbol != "" {
		b.WriteString(" ")
		b.WriteString(e.Symbol)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a reason.
func New(kind Kind, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithSymbol sets the symbol the error belongs to.
func (e *Error) WithSymbol(symbol string) *Error {
	e.Symbol = symbol
	return e
}

// WithReason sets a human readable reason.
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal reports whether err must terminate the process.
func IsFatal(err error) bool {
	return IsKind(err, KindConfig)
}

// ReasonOf returns the reason of the outermost classified error, or err.Error().
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return err.Error()
}
