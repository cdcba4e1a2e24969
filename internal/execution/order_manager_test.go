package execution_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/atlas-desktop/pairs-engine/internal/execution"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestDeriveQuantityRejectsNonPositivePrice(t *testing.T) {
	om := execution.NewOrderManager(zap.NewNop(), nil, execution.NewRateLimiter())
	_, err := om.DeriveQuantity("BTCUSDT", decimal.NewFromInt(1000), decimal.Zero)
	if err == nil {
		t.Fatalf("expected an error on a zero price")
	}
}

func TestDeriveQuantityRejectsBelowMinimum(t *testing.T) {
	om := execution.NewOrderManager(zap.NewNop(), nil, execution.NewRateLimiter())
	// 1 USD at a price of 50000 rounds to far below BTCUSDT's 0.001 floor.
	_, err := om.DeriveQuantity("BTCUSDT", decimal.NewFromInt(1), decimal.NewFromInt(50000))
	if err == nil {
		t.Fatalf("expected an error below the symbol's minimum quantity")
	}
}

func TestDeriveQuantityRoundsToSymbolPrecision(t *testing.T) {
	om := execution.NewOrderManager(zap.NewNop(), nil, execution.NewRateLimiter())
	qty, err := om.DeriveQuantity("ETHUSDT", decimal.NewFromInt(1000), decimal.NewFromInt(3000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !qty.Equal(decimal.NewFromFloat(0.33)) {
		t.Fatalf("expected a quantity rounded to 2 decimals, got %s", qty)
	}
}

// stubBroker is a minimal in-memory Broker for exercising OrderManager's
// retry and two-leg compensation logic without a real exchange.
type stubBroker struct {
	mu          sync.Mutex
	price       decimal.Decimal
	failSymbol  string
	nextOrderID int
	orders      map[string]types.Order
}

func newStubBroker(price decimal.Decimal) *stubBroker {
	return &stubBroker{price: price, orders: make(map[string]types.Order)}
}

func (s *stubBroker) PlaceOrder(ctx context.Context, order types.Order) (types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.Symbol == s.failSymbol {
		return types.Order{}, fmt.Errorf("stub broker: forced failure for %s", order.Symbol)
	}

	s.nextOrderID++
	order.ID = fmt.Sprintf("ord-%d", s.nextOrderID)
	order.Status = types.OrderStatusFilled
	order.FilledQty = order.Quantity
	order.AvgFillPrice = s.price
	s.orders[order.ID] = order
	return order, nil
}

func (s *stubBroker) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return nil
}

func (s *stubBroker) GetOrder(ctx context.Context, symbol, orderID string) (types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return types.Order{}, fmt.Errorf("stub broker: unknown order %s", orderID)
	}
	return o, nil
}

func (s *stubBroker) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return s.price, nil
}

func (s *stubBroker) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(10000), nil
}

func TestExecuteEntrySucceedsOnBothLegsFilling(t *testing.T) {
	broker := newStubBroker(decimal.NewFromInt(100))
	om := execution.NewOrderManager(zap.NewNop(), broker, execution.NewRateLimiter())

	legA, legB, err := om.ExecuteEntry(context.Background(), "BTCUSDT", "ETHUSDT",
		types.OrderSideBuy, types.OrderSideSell,
		decimal.NewFromFloat(0.01), decimal.NewFromFloat(0.1),
		decimal.NewFromInt(100), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if legA.FilledQty.IsZero() || legB.FilledQty.IsZero() {
		t.Fatalf("expected both legs filled, got a=%s b=%s", legA.FilledQty, legB.FilledQty)
	}
}

func TestExecuteEntryCompensatesLegAWhenLegBFails(t *testing.T) {
	broker := newStubBroker(decimal.NewFromInt(100))
	broker.failSymbol = "ETHUSDT"
	om := execution.NewOrderManager(zap.NewNop(), broker, execution.NewRateLimiter())

	_, _, err := om.ExecuteEntry(context.Background(), "BTCUSDT", "ETHUSDT",
		types.OrderSideBuy, types.OrderSideSell,
		decimal.NewFromFloat(0.01), decimal.NewFromFloat(0.1),
		decimal.NewFromInt(100), decimal.NewFromInt(100))
	if err == nil {
		t.Fatalf("expected an error when leg b fails to fill")
	}

	broker.mu.Lock()
	defer broker.mu.Unlock()
	foundCompensation := false
	for _, o := range broker.orders {
		if o.Symbol == "BTCUSDT" && o.Side == types.OrderSideSell && o.ReduceOnly {
			foundCompensation = true
		}
	}
	if !foundCompensation {
		t.Fatalf("expected leg a to be compensated with a reduce-only opposite-side order")
	}
}
