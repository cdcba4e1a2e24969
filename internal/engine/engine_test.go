package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atlas-desktop/pairs-engine/internal/engine"
	"github.com/atlas-desktop/pairs-engine/internal/execution"
	"github.com/atlas-desktop/pairs-engine/internal/marketdata"
	"github.com/atlas-desktop/pairs-engine/internal/orchestrator"
	"github.com/atlas-desktop/pairs-engine/internal/performance"
	"github.com/atlas-desktop/pairs-engine/internal/position"
	"github.com/atlas-desktop/pairs-engine/internal/pricehistory"
	"github.com/atlas-desktop/pairs-engine/internal/risk"
	"github.com/atlas-desktop/pairs-engine/internal/signals"
	"github.com/atlas-desktop/pairs-engine/internal/snapshot"
	"github.com/atlas-desktop/pairs-engine/internal/strategy"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, pairs []types.PairConfig, snap *snapshot.Writer) *engine.Engine {
	t.Helper()
	logger := zap.NewNop()

	broker := execution.NewPaperBroker(logger, decimal.NewFromInt(10000))
	market := marketdata.New(logger, marketdata.Config{Testnet: true})
	prices := pricehistory.NewStore()
	tracker := performance.NewTracker()
	positions := position.NewManager(logger, tracker)
	registry := strategy.NewRegistry(logger)
	strategyMgr := signals.NewManager(logger, registry, signals.Config{Mode: signals.ModeConsensus})
	riskAgent := risk.NewAgent(logger, risk.DefaultConfig())
	vol := risk.NewVolatilityEstimator()
	orch := orchestrator.New(logger, market, prices, strategyMgr, riskAgent, positions, vol)
	limiter := execution.NewRateLimiter()
	orders := execution.NewOrderManager(logger, broker, limiter)

	return engine.New(logger, orch, positions, orders, broker, tracker, snap, pairs, 2)
}

func TestTickWithNoPairsIsANoOp(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	if err := e.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error on an empty-pairs tick: %v", err)
	}
}

func TestTickWritesObservabilityFiles(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "snapshot.json")
	perfPath := filepath.Join(dir, "performance.json")
	writer := snapshot.NewWriter(snapPath, perfPath, time.Now())

	e := newTestEngine(t, nil, writer)
	if err := e.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(snapPath); err != nil {
		t.Errorf("expected a snapshot file to be written: %v", err)
	}
	if _, err := os.Stat(perfPath); err != nil {
		t.Errorf("expected a performance file to be written: %v", err)
	}
}

func TestTickSkipsPairsWithNoLivePriceYet(t *testing.T) {
	pairs := []types.PairConfig{{SymbolA: "BTCUSDT", SymbolB: "ETHUSDT", Enabled: true}}
	e := newTestEngine(t, pairs, nil)
	if err := e.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error with a pair lacking live market data: %v", err)
	}
}

func TestTickForceClosesWithNonZeroCommissionOnDrawdownBreach(t *testing.T) {
	logger := zap.NewNop()
	broker := execution.NewPaperBroker(logger, decimal.NewFromInt(10000))
	market := marketdata.New(logger, marketdata.Config{Testnet: true})
	prices := pricehistory.NewStore()
	tracker := performance.NewTracker()
	positions := position.NewManager(logger, tracker)
	registry := strategy.NewRegistry(logger)
	strategyMgr := signals.NewManager(logger, registry, signals.Config{Mode: signals.ModeConsensus})
	riskAgent := risk.NewAgent(logger, risk.DefaultConfig())
	vol := risk.NewVolatilityEstimator()
	orch := orchestrator.New(logger, market, prices, strategyMgr, riskAgent, positions, vol)
	limiter := execution.NewRateLimiter()
	orders := execution.NewOrderManager(logger, broker, limiter)

	pair := types.PairConfig{SymbolA: "BTCUSDT", SymbolB: "ETHUSDT", Enabled: true}
	e := engine.New(logger, orch, positions, orders, broker, tracker, nil, []types.PairConfig{pair}, 2)

	positions.Open(types.Position{
		PairID:      pair.PairID(),
		SymbolA:     pair.SymbolA,
		SymbolB:     pair.SymbolB,
		SideA:       types.PositionSideLong,
		SideB:       types.PositionSideShort,
		QtyA:        decimal.NewFromInt(1),
		QtyB:        decimal.NewFromInt(10),
		EntryPriceA: decimal.NewFromInt(50000),
		EntryPriceB: decimal.NewFromInt(3000),
		EntryTime:   time.Now(),
	})
	broker.SetPrice("BTCUSDT", decimal.NewFromInt(50000))
	broker.SetPrice("ETHUSDT", decimal.NewFromInt(3000))

	// First tick establishes the equity high-water-mark with the position
	// still unmarked (zero unrealized P&L).
	if err := e.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error on first tick: %v", err)
	}
	if positions.OpenCount() != 1 {
		t.Fatalf("expected the position to remain open after the first tick, got %d open", positions.OpenCount())
	}

	// Crash the long leg's price hard enough to breach the default 20%
	// drawdown limit against the mark just established.
	positions.Mark(pair.PairID(), decimal.NewFromInt(35000), decimal.NewFromInt(3000), decimal.Zero)
	broker.SetPrice("BTCUSDT", decimal.NewFromInt(35000))

	if err := e.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error on second tick: %v", err)
	}
	if positions.OpenCount() != 0 {
		t.Fatalf("expected the drawdown breach to force-close the open position")
	}

	trades := positions.Trades()
	if len(trades) != 1 {
		t.Fatalf("expected exactly one recorded trade, got %d", len(trades))
	}
	if trades[0].Commission.IsZero() {
		t.Fatalf("expected a nonzero round-trip commission on the forced close, got %s", trades[0].Commission)
	}
}
