package strategy_test

import (
	"testing"

	"github.com/atlas-desktop/pairs-engine/internal/strategy"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
)

func bookWithImbalance(bidQty, askQty float64) types.OrderBookSnapshot {
	return types.OrderBookSnapshot{
		Bids: []types.OrderBookLevel{{Price: decimal.NewFromInt(100), Size: decimal.NewFromFloat(bidQty)}},
		Asks: []types.OrderBookLevel{{Price: decimal.NewFromInt(101), Size: decimal.NewFromFloat(askQty)}},
	}
}

func TestOrderBookImbalanceHoldsWithNoBook(t *testing.T) {
	s := strategy.NewOrderBookImbalance()
	sig := s.Evaluate(strategy.Inputs{PairID: "p1"})
	if sig.Action != types.ActionHold {
		t.Fatalf("expected hold with no book, got %s", sig.Action)
	}
}

func TestOrderBookImbalanceHoldsBelowEntryThreshold(t *testing.T) {
	s := strategy.NewOrderBookImbalance()
	sig := s.Evaluate(strategy.Inputs{PairID: "p1", HasBookA: true, OrderBookA: bookWithImbalance(10, 9)})
	if sig.Action != types.ActionHold {
		t.Fatalf("expected hold on a small imbalance, got %s", sig.Action)
	}
}

func TestOrderBookImbalanceEntersOnSustainedSkew(t *testing.T) {
	s := strategy.NewOrderBookImbalance()
	var sig types.StrategySignal
	for i := 0; i < 10; i++ {
		sig = s.Evaluate(strategy.Inputs{PairID: "p1", HasBookA: true, OrderBookA: bookWithImbalance(100, 10)})
	}
	if sig.Action != types.ActionLongSpread {
		t.Fatalf("expected a long-spread entry on a heavily bid-skewed book, got %s", sig.Action)
	}
}

func TestOrderBookImbalanceClosesOnProfitTarget(t *testing.T) {
	s := strategy.NewOrderBookImbalance()
	for i := 0; i < 10; i++ {
		s.Evaluate(strategy.Inputs{PairID: "p1", HasBookA: true, OrderBookA: bookWithImbalance(100, 10)})
	}
	s.RecordEntryPrices("p1", decimal.NewFromInt(100), decimal.NewFromInt(50))

	pos := &types.Position{
		SideA:         types.PositionSideLong,
		SideB:         types.PositionSideShort,
		CurrentPriceA: decimal.NewFromFloat(100.5),
		CurrentPriceB: decimal.NewFromInt(50),
	}
	sig := s.Evaluate(strategy.Inputs{
		PairID: "p1", HasBookA: true, OrderBookA: bookWithImbalance(100, 10),
		HasPosition: true, Position: pos,
	})
	if sig.Action != types.ActionClose {
		t.Fatalf("expected close on profit target, got %s (%s)", sig.Action, sig.Reason)
	}
}
