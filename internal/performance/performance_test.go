package performance_test

import (
	"testing"

	"github.com/atlas-desktop/pairs-engine/internal/performance"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
)

func TestTrackerAccumulatesPerPairAndPerStrategy(t *testing.T) {
	tracker := performance.NewTracker()

	tracker.Record(types.Trade{PairID: "BTCUSDT_ETHUSDT", StrategyName: types.StrategyEngleGranger, PnL: decimal.NewFromInt(10)})
	tracker.Record(types.Trade{PairID: "BTCUSDT_ETHUSDT", StrategyName: types.StrategyEngleGranger, PnL: decimal.NewFromInt(-5)})
	tracker.Record(types.Trade{PairID: "SOLUSDT_AVAXUSDT", StrategyName: types.StrategyMeanReversion, PnL: decimal.NewFromInt(3)})

	pairStat := tracker.PairStat("BTCUSDT_ETHUSDT")
	if pairStat.Trades != 2 {
		t.Fatalf("expected 2 trades for pair, got %d", pairStat.Trades)
	}
	if !pairStat.WinRate.Equal(decimal.NewFromFloat(0.5)) {
		t.Fatalf("expected 0.5 win rate for pair, got %s", pairStat.WinRate)
	}

	stats := tracker.StrategyStats()
	eg, ok := stats[types.StrategyEngleGranger]
	if !ok {
		t.Fatal("expected engle_granger stats to be present")
	}
	if eg.Trades != 2 || !eg.WinRate.Equal(decimal.NewFromFloat(0.5)) {
		t.Fatalf("unexpected engle_granger stats: %+v", eg)
	}

	mr, ok := stats[types.StrategyMeanReversion]
	if !ok || mr.Trades != 1 || !mr.WinRate.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("unexpected mean_reversion stats: %+v", mr)
	}
}

func TestTrackerUnknownKeyReturnsZeroStat(t *testing.T) {
	tracker := performance.NewTracker()
	stat := tracker.PairStat("NOPE_NOPE")
	if stat.Trades != 0 || !stat.WinRate.IsZero() {
		t.Fatalf("expected zero stat for unknown pair, got %+v", stat)
	}
}

func TestTrackerReset(t *testing.T) {
	tracker := performance.NewTracker()
	tracker.Record(types.Trade{PairID: "A_B", StrategyName: types.StrategyMeanReversion, PnL: decimal.NewFromInt(1)})
	tracker.Reset()

	if stat := tracker.PairStat("A_B"); stat.Trades != 0 {
		t.Fatalf("expected reset to clear pair history, got %+v", stat)
	}
	if len(tracker.StrategyStats()) != 0 {
		t.Fatal("expected reset to clear strategy history")
	}
}
