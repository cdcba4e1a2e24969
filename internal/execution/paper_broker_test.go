package execution_test

import (
	"context"
	"testing"

	"github.com/atlas-desktop/pairs-engine/internal/execution"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestPaperBrokerRejectsOrderWithNoKnownPrice(t *testing.T) {
	b := execution.NewPaperBroker(zap.NewNop(), decimal.NewFromInt(10000))
	_, err := b.PlaceOrder(context.Background(), types.Order{Symbol: "BTCUSDT", Side: types.OrderSideBuy, Quantity: decimal.NewFromInt(1)})
	if err == nil {
		t.Fatalf("expected an error placing an order with no known price")
	}
}

func TestPaperBrokerFillsBuyAboveLastPriceOnSlippage(t *testing.T) {
	b := execution.NewPaperBroker(zap.NewNop(), decimal.NewFromInt(10000))
	b.SetPrice("BTCUSDT", decimal.NewFromInt(100))

	order, err := b.PlaceOrder(context.Background(), types.Order{
		Symbol:   "BTCUSDT",
		Side:     types.OrderSideBuy,
		Type:     types.OrderTypeMarket,
		Quantity: decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != types.OrderStatusFilled {
		t.Fatalf("expected an immediate fill, got status %s", order.Status)
	}
	if !order.AvgFillPrice.GreaterThan(decimal.NewFromInt(100)) {
		t.Fatalf("expected a buy fill above the last price due to slippage, got %s", order.AvgFillPrice)
	}
}

func TestPaperBrokerFillsSellBelowLastPriceOnSlippage(t *testing.T) {
	b := execution.NewPaperBroker(zap.NewNop(), decimal.NewFromInt(10000))
	b.SetPrice("BTCUSDT", decimal.NewFromInt(100))

	order, err := b.PlaceOrder(context.Background(), types.Order{
		Symbol:   "BTCUSDT",
		Side:     types.OrderSideSell,
		Type:     types.OrderTypeMarket,
		Quantity: decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !order.AvgFillPrice.LessThan(decimal.NewFromInt(100)) {
		t.Fatalf("expected a sell fill below the last price due to slippage, got %s", order.AvgFillPrice)
	}
}

func TestPaperBrokerLimitOrderFillsAtLimitPrice(t *testing.T) {
	b := execution.NewPaperBroker(zap.NewNop(), decimal.NewFromInt(10000))
	b.SetPrice("BTCUSDT", decimal.NewFromInt(100))

	order, err := b.PlaceOrder(context.Background(), types.Order{
		Symbol:   "BTCUSDT",
		Side:     types.OrderSideBuy,
		Type:     types.OrderTypeLimit,
		Quantity: decimal.NewFromInt(1),
		Price:    decimal.NewFromInt(95),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !order.AvgFillPrice.Equal(decimal.NewFromInt(95)) {
		t.Fatalf("expected a limit order to fill at its own price, got %s", order.AvgFillPrice)
	}
}

func TestPaperBrokerCancelOrder(t *testing.T) {
	b := execution.NewPaperBroker(zap.NewNop(), decimal.NewFromInt(10000))
	b.SetPrice("BTCUSDT", decimal.NewFromInt(100))

	order, err := b.PlaceOrder(context.Background(), types.Order{
		Symbol: "BTCUSDT", Side: types.OrderSideBuy, Type: types.OrderTypeMarket, Quantity: decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.CancelOrder(context.Background(), "BTCUSDT", order.ID); err != nil {
		t.Fatalf("unexpected error cancelling: %v", err)
	}
	got, err := b.GetOrder(context.Background(), "BTCUSDT", order.ID)
	if err != nil {
		t.Fatalf("unexpected error fetching cancelled order: %v", err)
	}
	if got.Status != types.OrderStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", got.Status)
	}
}

func TestPaperBrokerGetBalanceReturnsStartingBalance(t *testing.T) {
	b := execution.NewPaperBroker(zap.NewNop(), decimal.NewFromInt(5000))
	bal, err := b.GetBalance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bal.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected starting balance 5000, got %s", bal)
	}
}
