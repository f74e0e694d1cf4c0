package service

import (
	"context"

	"FinTrade/internal/domain/models"
)

// PriceQuoter is the read-only price view of the execution bridge.
type PriceQuoter interface {
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Bridge is the execution terminal contract. Every call is fallible.
// Only the lifecycle manager may call SendTradeAction.
type Bridge interface {
	PriceQuoter
	SendTradeAction(ctx context.Context, a models.TradeAction) (models.BridgeResult, error)
	AccountInfo(ctx context.Context) (models.AccountState, error)
}
