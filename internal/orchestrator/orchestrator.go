// Package orchestrator wires MarketData, PriceHistory, the StrategyManager,
// the RiskAgent and PositionManager into the per-pair decision step: read
// prices/orderbook, run the four strategies, attach sizing and a risk
// verdict, and emit a Decision. A single-purpose, synchronous per-pair
// evaluator with no independent event loop of its own — the Engine drives
// it once per iteration per enabled pair.
package orchestrator

import (
	"sync"
	"time"

	"github.com/atlas-desktop/pairs-engine/internal/marketdata"
	"github.com/atlas-desktop/pairs-engine/internal/performance"
	"github.com/atlas-desktop/pairs-engine/internal/position"
	"github.com/atlas-desktop/pairs-engine/internal/pricehistory"
	"github.com/atlas-desktop/pairs-engine/internal/risk"
	"github.com/atlas-desktop/pairs-engine/internal/signals"
	"github.com/atlas-desktop/pairs-engine/internal/strategy"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const priceWindow = 60

// Orchestrator evaluates one pair's decision per call; the book-wide
// equity high-water-mark used by the drawdown gate is the only state it
// carries across calls.
type Orchestrator struct {
	logger      *zap.Logger
	market      *marketdata.Service
	prices      *pricehistory.Store
	strategyMgr *signals.Manager
	risk        *risk.Agent
	positions   *position.Manager
	vol         *risk.VolatilityEstimator

	mu        sync.Mutex
	maxEquity decimal.Decimal
}

// New builds an Orchestrator over the already-constructed engine components.
func New(
	logger *zap.Logger,
	market *marketdata.Service,
	prices *pricehistory.Store,
	strategyMgr *signals.Manager,
	riskAgent *risk.Agent,
	positions *position.Manager,
	vol *risk.VolatilityEstimator,
) *Orchestrator {
	return &Orchestrator{
		logger:      logger.Named("orchestrator"),
		market:      market,
		prices:      prices,
		strategyMgr: strategyMgr,
		risk:        riskAgent,
		positions:   positions,
		vol:         vol,
	}
}

// PreTradeGate computes the book-wide risk verdict ahead of a fan-out
// iteration, tracking the running equity high-water-mark the drawdown
// check needs. Call once per Engine iteration, before Decide.
func (o *Orchestrator) PreTradeGate(balance decimal.Decimal) (types.RiskVerdict, string) {
	currentEquity := balance.Add(o.positions.UnrealizedPnL())

	o.mu.Lock()
	if currentEquity.GreaterThan(o.maxEquity) {
		o.maxEquity = currentEquity
	}
	maxEquity := o.maxEquity
	o.mu.Unlock()

	state := risk.BookState{
		OpenPositions: o.positions.OpenCount(),
		DailyPnL:      o.positions.DailyPnL(),
		Balance:       balance,
		MaxEquity:     maxEquity,
		CurrentEquity: currentEquity,
		OpenNotional:  o.positions.OpenNotional(),
	}
	return o.risk.PreTradeVerdict(state)
}

// DecideInput is the per-pair context the Engine assembles once per
// iteration from book-wide state (balance, the pre-trade gate outcome,
// and the pair's historical win rate) before calling Decide.
type DecideInput struct {
	Pair            types.PairConfig
	AllowNewEntries bool
	Balance         decimal.Decimal
	WinRate         decimal.Decimal
	WinRateTrades   int
	HasWinRate      bool
}

// Decide evaluates one pair: refresh its price history, run the four
// strategies through the StrategyManager, and translate the winning
// signal into a sized Decision. Returns false when there is nothing to
// do (Hold, missing market data, or a suppressed entry).
func (o *Orchestrator) Decide(in DecideInput) (types.Decision, bool) {
	pairID := in.Pair.PairID()
	symbolA, symbolB := in.Pair.SymbolA, in.Pair.SymbolB

	priceA, okA := o.market.GetPrice(symbolA)
	priceB, okB := o.market.GetPrice(symbolB)
	if !okA || !okB {
		o.logger.Debug("skipping pair, no live price yet", zap.String("pair", pairID))
		return types.Decision{}, false
	}

	now := time.Now()
	o.prices.Update(symbolA, now, priceA)
	o.prices.Update(symbolB, now, priceB)
	o.vol.Observe(symbolA, priceA)
	o.vol.Observe(symbolB, priceB)

	samplesA := o.prices.LastSamples(symbolA, priceWindow)
	samplesB := o.prices.LastSamples(symbolB, priceWindow)
	pricesA, pricesB := pricehistory.AlignedPairs(samplesA, samplesB, priceWindow)

	book, hasBook := o.market.GetOrderBook(symbolA)
	pos, hasPos := o.positions.Get(pairID)

	if hasPos {
		marked, stillOpen := o.positions.Mark(pairID, priceA, priceB, pos.CurrentZScore)
		if !stillOpen {
			return types.Decision{}, false
		}
		pos = marked
		if exit := o.risk.PositionExit(pos, now); exit.Close {
			return o.closeDecision(pos, types.StrategySignal{
				Action:     types.ActionClose,
				Confidence: 1,
				Reason:     string(exit.Reason),
			}, signals.Result{}), true
		}
	}

	result := o.strategyMgr.Evaluate(strategy.Inputs{
		PairID:      pairID,
		SymbolA:     symbolA,
		SymbolB:     symbolB,
		PricesA:     pricesA,
		PricesB:     pricesB,
		OrderBookA:  book,
		HasBookA:    hasBook,
		Position:    pos,
		HasPosition: hasPos,
	})

	sig, ok := pickSignal(result)
	if !ok || sig.Action == types.ActionHold {
		return types.Decision{}, false
	}

	if hasPos {
		if sig.Action != types.ActionClose {
			return types.Decision{}, false
		}
		return o.closeDecision(pos, sig, result), true
	}

	if !sig.Action.IsEntry() {
		return types.Decision{}, false
	}
	if !in.AllowNewEntries {
		o.logger.Debug("entry suppressed by pre-trade risk gate", zap.String("pair", pairID))
		return types.Decision{}, false
	}

	volEstimate, hasVol := o.vol.Estimate(symbolA)
	size := o.risk.PositionSize(risk.SizingInput{
		Confidence:    sig.Confidence,
		Balance:       in.Balance,
		WinRate:       in.WinRate,
		WinRateTrades: in.WinRateTrades,
		HasWinRate:    in.HasWinRate,
		Volatility:    volEstimate,
		HasVolatility: hasVol,
	})

	return types.Decision{
		PairID:       pairID,
		SymbolA:      symbolA,
		SymbolB:      symbolB,
		Action:       sig.Action,
		Confidence:   sig.Confidence,
		Reason:       sig.Reason,
		SizeAUSD:     size,
		SizeBUSD:     size,
		HedgeRatio:   hedgeRatioOf(sig),
		StrategyName: strategyNameOf(result, sig),
		Consensus:    result.Consensus,
		ZScore:       zScoreOf(sig),
		Metadata:     sig.Diagnostics,
	}, true
}

// AdaptWeights forwards the latest per-strategy performance into the
// StrategyManager's weight adaptation, called once per Engine iteration.
func (o *Orchestrator) AdaptWeights(stats map[types.StrategyName]performance.Stat) {
	converted := make(map[types.StrategyName]signals.WinRateStat, len(stats))
	for name, stat := range stats {
		converted[name] = signals.WinRateStat{Trades: stat.Trades, WinRate: stat.WinRate}
	}
	o.strategyMgr.AdaptWeights(converted)
}

func (o *Orchestrator) closeDecision(pos *types.Position, sig types.StrategySignal, result signals.Result) types.Decision {
	return types.Decision{
		PairID:       pos.PairID,
		SymbolA:      pos.SymbolA,
		SymbolB:      pos.SymbolB,
		Action:       types.ActionClose,
		Confidence:   sig.Confidence,
		Reason:       sig.Reason,
		SizeAUSD:     pos.QtyA.Mul(pos.CurrentPriceA),
		SizeBUSD:     pos.QtyB.Mul(pos.CurrentPriceB),
		HedgeRatio:   pos.HedgeRatio,
		StrategyName: strategyNameOf(result, sig),
		Consensus:    result.Consensus,
		ZScore:       pos.CurrentZScore,
		Metadata:     sig.Diagnostics,
	}
}

// pickSignal reduces a StrategyManager result to the single signal that
// governs this pair's decision this iteration. In consensus mode that is
// always the aggregated Signal; in OR mode — where several strategies may
// each independently want to act — it is the highest-confidence signal,
// since a pair's decision/execution lifecycle is serialized and only one
// entry can be in flight at a time.
func pickSignal(r signals.Result) (types.StrategySignal, bool) {
	if r.Mode == signals.ModeOR {
		if len(r.ORSignals) == 0 {
			return types.StrategySignal{}, false
		}
		best := r.ORSignals[0]
		for _, s := range r.ORSignals[1:] {
			if s.Confidence > best.Confidence {
				best = s
			}
		}
		return best, true
	}
	return r.Signal, true
}

func strategyNameOf(result signals.Result, sig types.StrategySignal) types.StrategyName {
	if result.Mode == signals.ModeOR {
		return sig.Strategy
	}
	return ""
}

func hedgeRatioOf(sig types.StrategySignal) decimal.Decimal {
	if v, ok := sig.Diagnostics["hedge_ratio"].(decimal.Decimal); ok {
		return v
	}
	return decimal.NewFromInt(1)
}

func zScoreOf(sig types.StrategySignal) decimal.Decimal {
	if v, ok := sig.Diagnostics["zscore"].(decimal.Decimal); ok {
		return v
	}
	return decimal.Zero
}
