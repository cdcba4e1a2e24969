// Package snapshot writes the two best-effort observability files the
// external dashboard reads: a per-tick account/per-pair snapshot and a
// rolling trade-history/strategy-performance file. Plain
// json.MarshalIndent followed by an os.WriteFile, no atomic rename —
// both files are regenerated wholesale on every write rather than
// appended to, so a simple write-in-place is enough.
package snapshot

import (
	"encoding/json"
	"os"
	"time"

	"github.com/atlas-desktop/pairs-engine/internal/performance"
	"github.com/atlas-desktop/pairs-engine/internal/position"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
)

// PairDiagnostics is one pair's latest strategy read-out, keyed by pair id
// in Snapshot.PerPair.
type PairDiagnostics struct {
	ZScore     decimal.Decimal `json:"zscore"`
	PValue     decimal.Decimal `json:"pvalue"`
	HedgeRatio decimal.Decimal `json:"hedge_ratio"`
	Signal     string          `json:"signal"`
	Confidence float64         `json:"confidence"`
	SizeAUSD   decimal.Decimal `json:"size_a_usd"`
	SizeBUSD   decimal.Decimal `json:"size_b_usd"`
	PriceA     decimal.Decimal `json:"price_a"`
	PriceB     decimal.Decimal `json:"price_b"`
}

// Snapshot is the per-tick account/book state the dashboard polls.
type Snapshot struct {
	AccountBalance   decimal.Decimal            `json:"account_balance"`
	AvailableBalance decimal.Decimal            `json:"available_balance"`
	TotalPnL         decimal.Decimal            `json:"total_pnl"`
	DailyPnL         decimal.Decimal            `json:"daily_pnl"`
	WinRate          decimal.Decimal            `json:"win_rate"`
	TotalTrades      int                        `json:"total_trades"`
	PerPair          map[string]PairDiagnostics `json:"per_pair_diagnostics"`
	UpdatedAt        time.Time                  `json:"updated_at"`
}

// PerformanceFile is the rolling trade-history/strategy-performance
// export, regenerated wholesale on every write.
type PerformanceFile struct {
	SessionStart        time.Time                               `json:"session_start"`
	Trades              []types.Trade                           `json:"trades"`
	StrategyPerformance map[types.StrategyName]performance.Stat `json:"strategy_performance"`
}

// Writer owns the two snapshot files' paths and the session start time
// stamped into PerformanceFile.
type Writer struct {
	snapshotPath    string
	performancePath string
	sessionStart    time.Time
}

// NewWriter builds a Writer over the two target paths.
func NewWriter(snapshotPath, performancePath string, sessionStart time.Time) *Writer {
	return &Writer{snapshotPath: snapshotPath, performancePath: performancePath, sessionStart: sessionStart}
}

// WriteSnapshot marshals snap and writes it to the snapshot path, best
// effort: a write failure is returned to the caller to log, never panics.
func (w *Writer) WriteSnapshot(snap Snapshot) error {
	snap.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(w.snapshotPath, data, 0644)
}

// WritePerformance regenerates the rolling trade-history/strategy-stats file.
func (w *Writer) WritePerformance(trades []types.Trade, strategyStats map[types.StrategyName]performance.Stat) error {
	file := PerformanceFile{
		SessionStart:        w.sessionStart,
		Trades:              trades,
		StrategyPerformance: strategyStats,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(w.performancePath, data, 0644)
}

// BuildSnapshot assembles a Snapshot from live book state; perPair comes
// from the caller (the engine already holds the latest per-pair Decision
// diagnostics from this tick's fan-out).
func BuildSnapshot(balance, availableBalance decimal.Decimal, positions *position.Manager, perPair map[string]PairDiagnostics) Snapshot {
	winRate, trades := positions.WinRate()
	return Snapshot{
		AccountBalance:   balance,
		AvailableBalance: availableBalance,
		TotalPnL:         positions.TotalPnL(),
		DailyPnL:         positions.DailyPnL(),
		WinRate:          winRate,
		TotalTrades:      trades,
		PerPair:          perPair,
	}
}
