// Package engine drives the fixed-tick decision loop that ties the
// Orchestrator, PositionManager and OrderManager together: refresh
// market state, run every open position through the risk agent's exit
// ladder, fan out Decide across enabled pairs, and execute whatever
// comes back. Tick is one synchronous iteration that Run drives on its
// own ticker (or a test calls directly); the only goroutines it starts
// are the per-tick, semaphore-bounded Decide calls, all joined before
// Tick returns.
package engine

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/atlas-desktop/pairs-engine/internal/execution"
	"github.com/atlas-desktop/pairs-engine/internal/metrics"
	"github.com/atlas-desktop/pairs-engine/internal/orchestrator"
	"github.com/atlas-desktop/pairs-engine/internal/performance"
	"github.com/atlas-desktop/pairs-engine/internal/position"
	"github.com/atlas-desktop/pairs-engine/internal/snapshot"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// Tick is the target loop period; a slow tick still runs to
	// completion, it just skips the idle sleep.
	Tick = 1 * time.Second
	// ErrorBackoff is how long the loop sleeps after an unhandled
	// per-tick error before trying again.
	ErrorBackoff = 10 * time.Second
)

// Engine owns the book-wide tick: it never blocks on strategy work
// itself, only on the bounded worker pool it fans Decide out across.
type Engine struct {
	logger    *zap.Logger
	orch      *orchestrator.Orchestrator
	positions *position.Manager
	orders    *execution.OrderManager
	broker    execution.Broker
	tracker   *performance.Tracker
	snap      *snapshot.Writer
	pairs     []types.PairConfig
	workers   int
}

// New builds an Engine over already-wired components. workers bounds
// per-tick pair concurrency; zero selects runtime.NumCPU()*2. snap may be
// nil, in which case the engine skips writing the observability files.
func New(
	logger *zap.Logger,
	orch *orchestrator.Orchestrator,
	positions *position.Manager,
	orders *execution.OrderManager,
	broker execution.Broker,
	tracker *performance.Tracker,
	snap *snapshot.Writer,
	pairs []types.PairConfig,
	workers int,
) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	return &Engine{
		logger:    logger.Named("engine"),
		orch:      orch,
		positions: positions,
		orders:    orders,
		broker:    broker,
		tracker:   tracker,
		snap:      snap,
		pairs:     pairs,
		workers:   workers,
	}
}

// Run drives one tick every Tick until ctx is cancelled. A tick that
// returns an error is logged and followed by ErrorBackoff rather than
// terminating the loop — one bad balance fetch or broker hiccup should
// not take the whole engine down.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(Tick)
	defer ticker.Stop()

	for {
		start := time.Now()
		if err := e.Tick(ctx); err != nil {
			e.logger.Error("tick failed, backing off", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(ErrorBackoff):
			}
			continue
		}

		elapsed := time.Since(start)
		sleep := Tick - elapsed
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		case <-ticker.C:
		}
	}
}

// Tick runs exactly one iteration: re-check the pre-trade gate (a Close
// verdict closes every open position and ends the tick), fan Decide out
// across every enabled pair (Decide runs an open position's exit ladder
// before its strategies), and execute whatever decisions come back.
func (e *Engine) Tick(ctx context.Context) error {
	tickStart := time.Now()
	defer func() { metrics.IterationLatency.Observe(time.Since(tickStart).Seconds()) }()

	balance, err := e.broker.GetBalance(ctx)
	if err != nil {
		return err
	}

	verdict, reason := e.orch.PreTradeGate(balance)
	switch verdict {
	case types.RiskClose:
		e.logger.Warn("pre-trade gate forcing close of all open positions", zap.String("reason", reason))
		e.closeAllOpen(ctx, types.CloseReasonRiskViolation)
		return nil
	case types.RiskPause:
		e.logger.Debug("pre-trade gate paused new entries", zap.String("reason", reason))
	}

	allowNewEntries := verdict == types.RiskSafe
	decisions := e.fanOutDecide(allowNewEntries, balance)
	perPair := make(map[string]snapshot.PairDiagnostics, len(decisions))
	for _, d := range decisions {
		metrics.DecisionsTotal.WithLabelValues(string(d.Action)).Inc()
		perPair[d.PairID] = pairDiagnosticsOf(d)
		e.execute(ctx, d)
	}
	metrics.OpenPositions.Set(float64(e.positions.OpenCount()))

	e.orch.AdaptWeights(e.tracker.StrategyStats())
	e.writeObservability(balance, perPair)
	return nil
}

// writeObservability regenerates the two best-effort export files; a
// failure here is logged and never fails the tick.
func (e *Engine) writeObservability(balance decimal.Decimal, perPair map[string]snapshot.PairDiagnostics) {
	if e.snap == nil {
		return
	}
	snap := snapshot.BuildSnapshot(balance, balance.Sub(e.positions.OpenNotional()), e.positions, perPair)
	if err := e.snap.WriteSnapshot(snap); err != nil {
		e.logger.Warn("snapshot write failed", zap.Error(err))
	}

	stats := e.tracker.StrategyStats()
	if err := e.snap.WritePerformance(e.positions.Trades(), stats); err != nil {
		e.logger.Warn("performance file write failed", zap.Error(err))
	}
}

func pairDiagnosticsOf(d types.Decision) snapshot.PairDiagnostics {
	diag := snapshot.PairDiagnostics{
		HedgeRatio: d.HedgeRatio,
		Signal:     string(d.Action),
		Confidence: d.Confidence,
		SizeAUSD:   d.SizeAUSD,
		SizeBUSD:   d.SizeBUSD,
		ZScore:     d.ZScore,
	}
	if v, ok := d.Metadata["adf_pvalue"].(decimal.Decimal); ok {
		diag.PValue = v
	}
	return diag
}

// closeAllOpen force-closes every open position with the given reason,
// used by the pre-trade gate's hard failure path.
func (e *Engine) closeAllOpen(ctx context.Context, reason types.CloseReason) {
	for _, pair := range e.pairs {
		pos, ok := e.positions.Get(pair.PairID())
		if !ok {
			continue
		}
		e.executeExit(ctx, pos, reason, true)
	}
}

// fanOutDecide runs Decide for every enabled pair across a bounded
// worker pool sized and scoped to a single tick instead of long-lived
// goroutines.
func (e *Engine) fanOutDecide(allowNewEntries bool, balance decimal.Decimal) []types.Decision {
	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var decisions []types.Decision

	for _, pair := range e.pairs {
		if !pair.Enabled {
			continue
		}
		pair := pair
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			winRate, trades := e.tracker.PairStat(pair.PairID()).WinRate, e.tracker.PairStat(pair.PairID()).Trades
			d, ok := e.orch.Decide(orchestrator.DecideInput{
				Pair:            pair,
				AllowNewEntries: allowNewEntries,
				Balance:         balance,
				WinRate:         winRate,
				WinRateTrades:   trades,
				HasWinRate:      trades > 0,
			})
			if !ok {
				return
			}
			mu.Lock()
			decisions = append(decisions, d)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return decisions
}

// execute dispatches a Decision to the order manager and updates the
// position book, logging but not panicking on per-pair failures.
func (e *Engine) execute(ctx context.Context, d types.Decision) {
	if d.Action == types.ActionClose {
		pos, ok := e.positions.Get(d.PairID)
		if !ok {
			return
		}
		e.executeExit(ctx, pos, types.CloseReasonStrategySignal, false)
		return
	}
	e.executeEntry(ctx, d)
}

// executeEntry derives per-leg sides and quantities from a Decision and
// drives the two-leg atomic entry. long_spread means long A / short B;
// short_spread is the reverse.
func (e *Engine) executeEntry(ctx context.Context, d types.Decision) {
	sideA, sideB := spreadSides(d.Action)

	rawPriceA, err := e.broker.GetPrice(ctx, d.SymbolA)
	if err != nil {
		e.logger.Error("entry aborted, price fetch failed", zap.String("pair", d.PairID), zap.Error(err))
		return
	}
	rawPriceB, err := e.broker.GetPrice(ctx, d.SymbolB)
	if err != nil {
		e.logger.Error("entry aborted, price fetch failed", zap.String("pair", d.PairID), zap.Error(err))
		return
	}

	priceA, err := e.orders.ValidatePrice(ctx, d.SymbolA, rawPriceA)
	if err != nil {
		e.logger.Error("entry aborted, price validation failed", zap.String("pair", d.PairID), zap.Error(err))
		return
	}
	priceB, err := e.orders.ValidatePrice(ctx, d.SymbolB, rawPriceB)
	if err != nil {
		e.logger.Error("entry aborted, price validation failed", zap.String("pair", d.PairID), zap.Error(err))
		return
	}

	qtyA, err := e.orders.DeriveQuantity(d.SymbolA, d.SizeAUSD, priceA)
	if err != nil {
		e.logger.Error("entry aborted, quantity derivation failed", zap.String("pair", d.PairID), zap.Error(err))
		return
	}
	qtyB, err := e.orders.DeriveQuantity(d.SymbolB, d.SizeBUSD, priceB)
	if err != nil {
		e.logger.Error("entry aborted, quantity derivation failed", zap.String("pair", d.PairID), zap.Error(err))
		return
	}

	legA, legB, err := e.orders.ExecuteEntry(ctx, d.SymbolA, d.SymbolB, orderSide(sideA), orderSide(sideB), qtyA, qtyB, priceA, priceB)
	if err != nil {
		e.logger.Error("entry execution failed", zap.String("pair", d.PairID), zap.Error(err))
		return
	}
	metrics.OrdersFilledTotal.WithLabelValues(d.SymbolA, string(orderSide(sideA))).Inc()
	metrics.OrdersFilledTotal.WithLabelValues(d.SymbolB, string(orderSide(sideB))).Inc()

	now := time.Now()
	e.positions.Open(types.Position{
		PairID:        d.PairID,
		SymbolA:       d.SymbolA,
		SymbolB:       d.SymbolB,
		SideA:         sideA,
		SideB:         sideB,
		QtyA:          legA.FilledQty,
		QtyB:          legB.FilledQty,
		EntryPriceA:   legA.AvgPrice,
		EntryPriceB:   legB.AvgPrice,
		CurrentPriceA: legA.AvgPrice,
		CurrentPriceB: legB.AvgPrice,
		HedgeRatio:    d.HedgeRatio,
		EntryZScore:   d.ZScore,
		CurrentZScore: d.ZScore,
		EntryTime:     now,
		StrategyName:  d.StrategyName,
	})
}

// executeExit drives the two-leg exit for an open position and records
// the realized trade, regardless of whether the exit originated from the
// strategy signal, the risk agent's exit ladder or a forced book-wide close.
func (e *Engine) executeExit(ctx context.Context, pos *types.Position, reason types.CloseReason, force bool) {
	legA, legB, err := e.orders.ExecuteExit(ctx,
		pos.SymbolA, pos.SymbolB,
		orderSide(pos.SideA.Opposite()), orderSide(pos.SideB.Opposite()),
		pos.QtyA, pos.QtyB, pos.CurrentPriceA, pos.CurrentPriceB)
	if err != nil {
		e.logger.Error("exit execution failed, position remains open", zap.String("pair", pos.PairID), zap.Error(err))
		return
	}
	metrics.OrdersFilledTotal.WithLabelValues(pos.SymbolA, string(orderSide(pos.SideA.Opposite()))).Inc()
	metrics.OrdersFilledTotal.WithLabelValues(pos.SymbolB, string(orderSide(pos.SideB.Opposite()))).Inc()

	commission := roundTripCommission(pos, legA.AvgPrice, legB.AvgPrice)
	if _, err := e.positions.Close(pos.PairID, legA.AvgPrice, legB.AvgPrice, commission, reason, time.Now()); err != nil {
		e.logger.Error("position close bookkeeping failed", zap.String("pair", pos.PairID), zap.Error(err))
	}
}

// roundTripCommission is entry notional plus exit notional across both legs,
// taxed once at TakerFee per side per §6's round-trip formula.
func roundTripCommission(pos *types.Position, exitPriceA, exitPriceB decimal.Decimal) decimal.Decimal {
	fee := decimal.NewFromFloat(types.TakerFee)
	entryNotional := pos.EntryPriceA.Mul(pos.QtyA).Add(pos.EntryPriceB.Mul(pos.QtyB))
	exitNotional := exitPriceA.Mul(pos.QtyA).Add(exitPriceB.Mul(pos.QtyB))
	return entryNotional.Add(exitNotional).Mul(fee)
}

func spreadSides(action types.StrategyAction) (types.PositionSide, types.PositionSide) {
	if action == types.ActionShortSpread {
		return types.PositionSideShort, types.PositionSideLong
	}
	return types.PositionSideLong, types.PositionSideShort
}

func orderSide(side types.PositionSide) types.OrderSide {
	if side == types.PositionSideShort {
		return types.OrderSideSell
	}
	return types.OrderSideBuy
}
