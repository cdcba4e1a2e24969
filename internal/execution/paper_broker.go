package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/atlas-desktop/pairs-engine/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaperBroker fills every order immediately at (or near) the last price
// it was told, simulating a small slippage, satisfying the Broker
// interface without touching a real exchange.
type PaperBroker struct {
	logger *zap.Logger

	mu       sync.Mutex
	balance  decimal.Decimal
	prices   map[string]decimal.Decimal
	orders   map[string]types.Order
	slippage decimal.Decimal
}

// NewPaperBroker creates a paper broker starting with the given balance.
func NewPaperBroker(logger *zap.Logger, startingBalance decimal.Decimal) *PaperBroker {
	return &PaperBroker{
		logger:   logger.Named("paper-broker"),
		balance:  startingBalance,
		prices:   make(map[string]decimal.Decimal),
		orders:   make(map[string]types.Order),
		slippage: decimal.NewFromFloat(0.0005),
	}
}

// SetPrice feeds the broker's notion of "current price" for a symbol,
// used to fill market/limit orders realistically.
func (p *PaperBroker) SetPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

func (p *PaperBroker) PlaceOrder(ctx context.Context, order types.Order) (types.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	last, ok := p.prices[order.Symbol]
	if !ok {
		return types.Order{}, fmt.Errorf("paper broker: no price known for %s", order.Symbol)
	}

	fillPrice := last
	if order.Type == types.OrderTypeLimit {
		// A resting limit only fills if the market would have reached it;
		// paper trading treats every limit as immediately marketable at
		// its own price, mirroring the smart-order retry's own fallback.
		fillPrice = order.Price
	} else if order.Side == types.OrderSideBuy {
		fillPrice = last.Mul(decimal.NewFromInt(1).Add(p.slippage))
	} else {
		fillPrice = last.Mul(decimal.NewFromInt(1).Sub(p.slippage))
	}

	order.ID = utils.GenerateOrderID()
	order.Status = types.OrderStatusFilled
	order.FilledQty = order.Quantity
	order.AvgFillPrice = fillPrice
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()

	p.orders[order.ID] = order
	return order, nil
}

func (p *PaperBroker) CancelOrder(ctx context.Context, symbol, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("paper broker: unknown order %s", orderID)
	}
	o.Status = types.OrderStatusCancelled
	p.orders[orderID] = o
	return nil
}

func (p *PaperBroker) GetOrder(ctx context.Context, symbol, orderID string) (types.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return types.Order{}, fmt.Errorf("paper broker: unknown order %s", orderID)
	}
	return o, nil
}

func (p *PaperBroker) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("paper broker: no price known for %s", symbol)
	}
	return price, nil
}

func (p *PaperBroker) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}
