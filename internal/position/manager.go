// Package position is the authoritative in-memory store of open pair
// positions: a map keyed by pair id, each position recorded once from its
// two filled legs (no averaging over repeated fills), and realized P&L
// bookkeeping kept alongside it.
package position

import (
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/pairs-engine/internal/performance"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Manager tracks every open position keyed by pair id and accumulates
// realized P&L/trade history as positions close.
type Manager struct {
	logger  *zap.Logger
	tracker *performance.Tracker

	mu        sync.RWMutex
	open      map[string]*types.Position
	trades    []types.Trade
	totalPnL  decimal.Decimal
	dailyPnL  decimal.Decimal
	dailyFrom time.Time
}

// NewManager builds an empty position book reporting into tracker.
func NewManager(logger *zap.Logger, tracker *performance.Tracker) *Manager {
	return &Manager{
		logger:    logger.Named("position-manager"),
		tracker:   tracker,
		open:      make(map[string]*types.Position),
		dailyFrom: time.Now(),
	}
}

// Open records a newly-filled position. An attempt to open a pair that
// already has an open position is logged and ignored.
func (m *Manager) Open(pos types.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.open[pos.PairID]; exists {
		m.logger.Warn("position already open, rejecting add", zap.String("pairId", pos.PairID))
		return
	}
	posCopy := pos
	m.open[pos.PairID] = &posCopy
	m.logger.Info("position opened",
		zap.String("pairId", pos.PairID),
		zap.String("strategy", string(pos.StrategyName)),
		zap.String("sideA", string(pos.SideA)))
}

// Get returns a copy of the open position for a pair, or false if none is open.
func (m *Manager) Get(pairID string) (*types.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.open[pairID]
	if !ok {
		return nil, false
	}
	posCopy := *pos
	return &posCopy, true
}

// Mark updates a position's current prices and z-score, recomputing its
// unrealized P&L. Returns the live pointer so callers (the risk agent's
// exit ladder) can arm the trailing stop directly on the stored position.
func (m *Manager) Mark(pairID string, priceA, priceB, currentZScore decimal.Decimal) (*types.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.open[pairID]
	if !ok {
		return nil, false
	}

	pos.CurrentPriceA = priceA
	pos.CurrentPriceB = priceB
	pos.CurrentZScore = currentZScore
	pos.UnrealizedPnL = legPnL(pos.SideA, pos.QtyA, pos.EntryPriceA, priceA).
		Add(legPnL(pos.SideB, pos.QtyB, pos.EntryPriceB, priceB))
	return pos, true
}

// Close finalizes a position: computes realized P&L net of commission,
// appends a Trade to history, updates running/daily P&L, removes the
// position from the open book, and reports the outcome to the
// performance tracker for strategy-weight and pair-sizing adaptation.
func (m *Manager) Close(pairID string, exitPriceA, exitPriceB, commission decimal.Decimal, reason types.CloseReason, now time.Time) (types.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.open[pairID]
	if !ok {
		return types.Trade{}, fmt.Errorf("position manager: no open position for pair %s", pairID)
	}

	pnl := legPnL(pos.SideA, pos.QtyA, pos.EntryPriceA, exitPriceA).
		Add(legPnL(pos.SideB, pos.QtyB, pos.EntryPriceB, exitPriceB)).
		Sub(commission)

	entryNotional := pos.QtyA.Mul(pos.EntryPriceA).Add(pos.QtyB.Mul(pos.EntryPriceB))
	pnlPct := decimal.Zero
	if !entryNotional.IsZero() {
		pnlPct = pnl.Div(entryNotional)
	}

	trade := types.Trade{
		PairID:      pos.PairID,
		SymbolA:     pos.SymbolA,
		SymbolB:     pos.SymbolB,
		SideA:       pos.SideA,
		SideB:       pos.SideB,
		QtyA:        pos.QtyA,
		QtyB:        pos.QtyB,
		EntryPriceA: pos.EntryPriceA,
		EntryPriceB: pos.EntryPriceB,
		ExitPriceA:  exitPriceA,
		ExitPriceB:  exitPriceB,
		EntryTime:   pos.EntryTime,
		ExitTime:    now,
		PnL:         pnl,
		PnLPercent:  pnlPct,
		Commission:  commission,
		Reason:      reason,

		StrategyName: pos.StrategyName,
	}

	delete(m.open, pairID)
	m.resetDailyIfNeeded(now)
	m.trades = append(m.trades, trade)
	m.totalPnL = m.totalPnL.Add(pnl)
	m.dailyPnL = m.dailyPnL.Add(pnl)

	m.logger.Info("position closed",
		zap.String("pairId", pairID),
		zap.String("reason", string(reason)),
		zap.String("pnl", pnl.String()))

	if m.tracker != nil {
		m.tracker.Record(trade)
	}

	return trade, nil
}

func (m *Manager) resetDailyIfNeeded(now time.Time) {
	if now.Sub(m.dailyFrom) >= 24*time.Hour {
		m.dailyPnL = decimal.Zero
		m.dailyFrom = now
	}
}

// OpenCount returns the number of currently open positions.
func (m *Manager) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.open)
}

// OpenNotional sums the live mark-to-market notional across every open
// position, used by the risk agent's exposure-cap gate.
func (m *Manager) OpenNotional() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for _, pos := range m.open {
		total = total.Add(pos.NotionalUSD())
	}
	return total
}

// UnrealizedPnL sums live mark-to-market P&L across every open position,
// used to track the equity high-water-mark for the drawdown gate.
func (m *Manager) UnrealizedPnL() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for _, pos := range m.open {
		total = total.Add(pos.UnrealizedPnL)
	}
	return total
}

// DailyPnL returns realized P&L since the current 24h window started.
func (m *Manager) DailyPnL() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDailyIfNeeded(time.Now())
	return m.dailyPnL
}

// TotalPnL returns cumulative realized P&L across the book's lifetime.
func (m *Manager) TotalPnL() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalPnL
}

// Trades returns a snapshot of closed-trade history, oldest first.
func (m *Manager) Trades() []types.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Trade, len(m.trades))
	copy(out, m.trades)
	return out
}

// WinRate reports the fraction of closed trades with positive P&L.
func (m *Manager) WinRate() (decimal.Decimal, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.trades) == 0 {
		return decimal.Zero, 0
	}
	wins := 0
	for _, t := range m.trades {
		if t.PnL.Sign() > 0 {
			wins++
		}
	}
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(m.trades)))), len(m.trades)
}

// ClearHistory drops all closed-trade history, resets running P&L, and
// clears every open position.
func (m *Manager) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = nil
	m.totalPnL = decimal.Zero
	m.dailyPnL = decimal.Zero
	m.dailyFrom = time.Now()
	m.open = make(map[string]*types.Position)
}

func legPnL(side types.PositionSide, qty, entryPrice, currentPrice decimal.Decimal) decimal.Decimal {
	diff := currentPrice.Sub(entryPrice)
	if side == types.PositionSideShort {
		diff = diff.Neg()
	}
	return diff.Mul(qty)
}
