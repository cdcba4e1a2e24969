// Package performance tracks realized win rates, both per pair (consumed
// by the RiskAgent's sizing multiplier) and per strategy (consumed by the
// StrategyManager's weight adaptation), as plain win/loss counters.
package performance

import (
	"sync"

	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
)

type record struct {
	trades int
	wins   int
}

func (r record) winRate() decimal.Decimal {
	if r.trades == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(r.wins)).Div(decimal.NewFromInt(int64(r.trades)))
}

// Stat is a read-only snapshot of one key's trade count and win rate.
type Stat struct {
	Trades  int
	WinRate decimal.Decimal
}

// Tracker accumulates win/loss outcomes keyed independently by pair id and
// by strategy name, both fed from the same stream of closed trades.
type Tracker struct {
	mu         sync.RWMutex
	byPair     map[string]record
	byStrategy map[types.StrategyName]record
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byPair:     make(map[string]record),
		byStrategy: make(map[types.StrategyName]record),
	}
}

// Record updates both the per-pair and per-strategy counters for a closed trade.
func (t *Tracker) Record(trade types.Trade) {
	t.mu.Lock()
	defer t.mu.Unlock()

	win := trade.PnL.Sign() > 0

	pr := t.byPair[trade.PairID]
	pr.trades++
	if win {
		pr.wins++
	}
	t.byPair[trade.PairID] = pr

	sr := t.byStrategy[trade.StrategyName]
	sr.trades++
	if win {
		sr.wins++
	}
	t.byStrategy[trade.StrategyName] = sr
}

// PairStat returns the accumulated stat for a pair id.
func (t *Tracker) PairStat(pairID string) Stat {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r := t.byPair[pairID]
	return Stat{Trades: r.trades, WinRate: r.winRate()}
}

// StrategyStats returns a snapshot of every strategy's accumulated stat,
// ready to feed signals.Manager.AdaptWeights.
func (t *Tracker) StrategyStats() map[types.StrategyName]Stat {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[types.StrategyName]Stat, len(t.byStrategy))
	for name, r := range t.byStrategy {
		out[name] = Stat{Trades: r.trades, WinRate: r.winRate()}
	}
	return out
}

// Reset clears all tracked history, used for a flat engine restart.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byPair = make(map[string]record)
	t.byStrategy = make(map[types.StrategyName]record)
}
