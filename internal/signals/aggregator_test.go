package signals_test

import (
	"testing"

	"github.com/atlas-desktop/pairs-engine/internal/signals"
	"github.com/atlas-desktop/pairs-engine/internal/strategy"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newManager(mode signals.Mode) *signals.Manager {
	registry := strategy.NewRegistry(zap.NewNop())
	return signals.NewManager(zap.NewNop(), registry, signals.Config{Mode: mode})
}

func TestEvaluateORWithNoSignalsReturnsEmpty(t *testing.T) {
	m := newManager(signals.ModeOR)
	result := m.Evaluate(strategy.Inputs{PairID: "p1"})
	if result.Mode != signals.ModeOR {
		t.Fatalf("expected OR mode result")
	}
	if len(result.ORSignals) != 0 {
		t.Fatalf("expected no OR signals with no strategy data, got %d", len(result.ORSignals))
	}
}

func TestEvaluateConsensusWithNoSignalsHolds(t *testing.T) {
	m := newManager(signals.ModeConsensus)
	result := m.Evaluate(strategy.Inputs{PairID: "p1"})
	if result.Mode != signals.ModeConsensus {
		t.Fatalf("expected consensus mode result")
	}
	if result.Signal.Action != types.ActionHold {
		t.Fatalf("expected hold consensus with no strategy data, got %s", result.Signal.Action)
	}
}

func TestEvaluateConsensusSingleNonHoldSignalWins(t *testing.T) {
	m := newManager(signals.ModeConsensus)

	// No price history, so EngleGranger/CorrelationRSI/MeanReversion all
	// Hold on insufficient samples; a lopsided order book leaves
	// OrderBookImbalance as the only strategy voting a real action.
	book := types.OrderBookSnapshot{
		Bids: []types.OrderBookLevel{{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(100)}},
		Asks: []types.OrderBookLevel{{Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(1)}},
	}

	result := m.Evaluate(strategy.Inputs{PairID: "p1", HasBookA: true, OrderBookA: book})
	if result.Signal.Action == types.ActionHold {
		t.Fatalf("expected the lone non-hold strategy's action to win, got hold")
	}
}

func TestInitialWeightsSumToOne(t *testing.T) {
	m := newManager(signals.ModeConsensus)
	weights := m.Weights()
	if len(weights) != 4 {
		t.Fatalf("expected 4 weighted strategies, got %d", len(weights))
	}
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	if !sum.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected initial weights to sum to 1, got %s", sum)
	}
}

func TestAdaptWeightsIgnoresStrategiesBelowMinTrades(t *testing.T) {
	m := newManager(signals.ModeConsensus)
	before := m.Weights()

	m.AdaptWeights(map[types.StrategyName]signals.WinRateStat{
		types.StrategyEngleGranger: {Trades: 3, WinRate: decimal.NewFromFloat(0.9)},
	})

	after := m.Weights()
	if !after[types.StrategyEngleGranger].Equal(before[types.StrategyEngleGranger]) {
		t.Fatalf("expected weight unchanged below the minimum trade count")
	}
}

func TestAdaptWeightsRewardsHigherWinRateAndRenormalizes(t *testing.T) {
	m := newManager(signals.ModeConsensus)

	m.AdaptWeights(map[types.StrategyName]signals.WinRateStat{
		types.StrategyEngleGranger:       {Trades: 20, WinRate: decimal.NewFromFloat(0.9)},
		types.StrategyOrderBookImbalance: {Trades: 20, WinRate: decimal.NewFromFloat(0.1)},
	})

	weights := m.Weights()
	if !weights[types.StrategyEngleGranger].GreaterThan(weights[types.StrategyOrderBookImbalance]) {
		t.Fatalf("expected the higher win-rate strategy to end up with a larger weight")
	}

	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(decimal.NewFromFloat(0.0001)) {
		t.Fatalf("expected renormalized weights to sum to ~1, got %s", sum)
	}
}

func TestAdaptWeightsClampsOutOfRangeWinRate(t *testing.T) {
	m := newManager(signals.ModeConsensus)
	m.AdaptWeights(map[types.StrategyName]signals.WinRateStat{
		types.StrategyEngleGranger: {Trades: 20, WinRate: decimal.NewFromFloat(-0.5)},
	})
	weights := m.Weights()
	if weights[types.StrategyEngleGranger].IsNegative() {
		t.Fatalf("expected a clamped, non-negative weight, got %s", weights[types.StrategyEngleGranger])
	}
}
