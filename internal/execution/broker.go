package execution

import (
	"context"

	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
)

// Broker is the execution venue contract the OrderManager drives. Credential
// and request-signing details live entirely behind an implementation;
// callers only ever see symbols, sides, quantities and prices.
type Broker interface {
	PlaceOrder(ctx context.Context, order types.Order) (types.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrder(ctx context.Context, symbol, orderID string) (types.Order, error)
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetBalance(ctx context.Context) (decimal.Decimal, error)
}

// ErrMarketOrderFailed marks a market-order fallback failure as terminal;
// the OrderManager does not retry past it.
type ErrMarketOrderFailed struct {
	Symbol string
	Cause  error
}

func (e *ErrMarketOrderFailed) Error() string {
	return "market order failed for " + e.Symbol + ": " + e.Cause.Error()
}

func (e *ErrMarketOrderFailed) Unwrap() error { return e.Cause }
