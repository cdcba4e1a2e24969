// Package signals runs the four pair-trading strategies for each pair and
// aggregates their signals into either a single consensus decision or a
// set of independently-forwarded strategy decisions.
package signals

import (
	"sync"

	"github.com/atlas-desktop/pairs-engine/internal/marketdata"
	"github.com/atlas-desktop/pairs-engine/internal/strategy"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/atlas-desktop/pairs-engine/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Mode selects how strategy signals are combined into decisions.
type Mode string

const (
	ModeConsensus Mode = "consensus"
	ModeOR        Mode = "or"
)

const (
	orConfidenceThreshold = 0.3

	candleHistoryLen  = 25
	breakoutATRPeriod = 14
	breakoutVolPeriod = 20
	breakoutVolMult   = 2.0
	breakoutRangeMult = 1.5
	breakoutBoost     = 1.2

	adaptMinTrades = 10
	adaptWeightLo  = 0.3
	adaptWeightHi  = 0.7
)

// WinRateStat is the per-strategy performance input to AdaptWeights.
type WinRateStat struct {
	Trades  int
	WinRate decimal.Decimal
}

// Config configures the manager's aggregation mode.
type Config struct {
	Mode Mode
}

// Result is the outcome of evaluating one pair's four strategies.
type Result struct {
	Mode       Mode
	Consensus  types.ConsensusLabel // only meaningful in consensus mode
	Signal     types.StrategySignal // consensus mode: the aggregated signal
	ORSignals  []types.StrategySignal
}

type candleSample struct {
	bar    utils.ATRBar
	volume decimal.Decimal
}

// Manager runs the fixed four-strategy registry per pair and combines
// their output into a single weighted verdict, closed over a fixed
// strategy set instead of pluggable signal sources.
type Manager struct {
	logger   *zap.Logger
	registry *strategy.Registry
	cfg      Config

	mu      sync.RWMutex
	weights map[types.StrategyName]decimal.Decimal

	candleMu sync.Mutex
	candles  map[string][]candleSample
}

// NewManager builds a StrategyManager with the fixed starting weights
// engle_granger=0.4, orderbook_imbalance=0.3, correlation_rsi=0.2, mean_reversion=0.1.
func NewManager(logger *zap.Logger, registry *strategy.Registry, cfg Config) *Manager {
	return &Manager{
		logger:   logger.Named("strategy-manager"),
		registry: registry,
		cfg:      cfg,
		weights: map[types.StrategyName]decimal.Decimal{
			types.StrategyEngleGranger:       decimal.NewFromFloat(0.4),
			types.StrategyOrderBookImbalance: decimal.NewFromFloat(0.3),
			types.StrategyCorrelationRSI:     decimal.NewFromFloat(0.2),
			types.StrategyMeanReversion:      decimal.NewFromFloat(0.1),
		},
		candles: make(map[string][]candleSample),
	}
}

// Observe feeds a confirmed candle into the per-symbol rolling history used
// by the breakout-confidence multiplier.
func (m *Manager) Observe(symbol string, c marketdata.Candle) {
	m.candleMu.Lock()
	defer m.candleMu.Unlock()

	hist := m.candles[symbol]
	hist = append(hist, candleSample{
		bar:    utils.ATRBar{High: c.High, Low: c.Low, Close: c.Close},
		volume: c.Volume,
	})
	if len(hist) > candleHistoryLen {
		hist = hist[len(hist)-candleHistoryLen:]
	}
	m.candles[symbol] = hist
}

// Evaluate runs all four strategies against in and combines them per the
// manager's configured mode.
func (m *Manager) Evaluate(in strategy.Inputs) Result {
	signals := make(map[types.StrategyName]types.StrategySignal)
	for _, s := range m.registry.All() {
		signals[s.Name()] = s.Evaluate(in)
	}

	if m.cfg.Mode == ModeOR {
		return m.evaluateOR(signals)
	}
	return m.evaluateConsensus(in.SymbolA, in.SymbolB, signals)
}

func (m *Manager) evaluateOR(signals map[types.StrategyName]types.StrategySignal) Result {
	var out []types.StrategySignal
	for _, sig := range signals {
		if sig.Action == types.ActionHold {
			continue
		}
		if sig.Confidence <= orConfidenceThreshold {
			continue
		}
		out = append(out, sig)
	}
	return Result{Mode: ModeOR, ORSignals: out}
}

type actionBucket struct {
	count         int
	weightedConf  decimal.Decimal
	strategies    []types.StrategyName
}

func (m *Manager) evaluateConsensus(symbolA, symbolB string, signals map[types.StrategyName]types.StrategySignal) Result {
	m.mu.RLock()
	weights := make(map[types.StrategyName]decimal.Decimal, len(m.weights))
	for k, v := range m.weights {
		weights[k] = v
	}
	m.mu.RUnlock()

	buckets := make(map[types.StrategyAction]*actionBucket)
	var weightSum decimal.Decimal
	for name, sig := range signals {
		w, ok := weights[name]
		if !ok {
			w = decimal.Zero
		}
		weightSum = weightSum.Add(w)

		b, ok := buckets[sig.Action]
		if !ok {
			b = &actionBucket{}
			buckets[sig.Action] = b
		}
		b.count++
		b.weightedConf = b.weightedConf.Add(w.Mul(decimal.NewFromFloat(sig.Confidence)))
		b.strategies = append(b.strategies, name)
	}
	if weightSum.IsZero() {
		weightSum = decimal.NewFromInt(1)
	}

	winningAction, winner := pickWinner(buckets)
	aggregatedConfidence := winner.weightedConf.Div(weightSum)

	consensus := classifyConsensus(buckets, len(signals))
	if consensus == types.ConsensusConflicting {
		winningAction = types.ActionHold
		aggregatedConfidence = decimal.Zero
	}

	out := types.StrategySignal{
		Strategy:   "",
		Action:     winningAction,
		Confidence: clampUnit(toFloat(aggregatedConfidence)),
		Reason:     "weighted consensus",
		Diagnostics: map[string]any{
			"contributing_strategies": winner.strategies,
			"vote_count":              winner.count,
		},
	}

	if winningAction.IsEntry() {
		boosted, newLabel := m.applyBreakoutMultiplier(symbolA, symbolB, out.Confidence, consensus)
		out.Confidence = boosted
		consensus = newLabel
	}

	return Result{Mode: ModeConsensus, Consensus: consensus, Signal: out}
}

// pickWinner compares only the non-Hold buckets, so a single signaling
// strategy always beats a Hold majority; Hold is returned only when no
// strategy signaled a real action.
func pickWinner(buckets map[types.StrategyAction]*actionBucket) (types.StrategyAction, *actionBucket) {
	var bestAction types.StrategyAction = types.ActionHold
	var best *actionBucket
	for action, b := range buckets {
		if action == types.ActionHold {
			continue
		}
		if best == nil {
			bestAction, best = action, b
			continue
		}
		switch {
		case b.count > best.count:
			bestAction, best = action, b
		case b.count == best.count && b.weightedConf.GreaterThan(best.weightedConf):
			bestAction, best = action, b
		}
	}
	if best == nil {
		if hold, ok := buckets[types.ActionHold]; ok {
			return types.ActionHold, hold
		}
		return types.ActionHold, &actionBucket{}
	}
	return bestAction, best
}

// classifyConsensus labels agreement strength: Strong when
// all strategies pick the same action; Moderate when at least half agree
// or any one action's summed weighted confidence exceeds 0.7; Weak otherwise;
// Conflicting when more than two distinct non-Hold actions are voted with
// comparable strength (the two leading buckets within 20% of each other).
func classifyConsensus(buckets map[types.StrategyAction]*actionBucket, total int) types.ConsensusLabel {
	if total == 0 {
		return types.ConsensusWeak
	}

	distinctActions := 0
	for action, b := range buckets {
		if action != types.ActionHold && b.count > 0 {
			distinctActions++
		}
	}

	var top, second *actionBucket
	for _, b := range buckets {
		if top == nil || b.count > top.count || (b.count == top.count && b.weightedConf.GreaterThan(top.weightedConf)) {
			second = top
			top = b
		} else if second == nil || b.count > second.count {
			second = b
		}
	}

	if distinctActions > 2 && top != nil && second != nil && !top.weightedConf.IsZero() {
		ratio := second.weightedConf.Div(top.weightedConf)
		if ratio.GreaterThan(decimal.NewFromFloat(0.8)) {
			return types.ConsensusConflicting
		}
	}

	if top != nil && top.count == total {
		return types.ConsensusStrong
	}

	for _, b := range buckets {
		if b.weightedConf.GreaterThan(decimal.NewFromFloat(0.7)) {
			return types.ConsensusModerate
		}
	}
	if top != nil && top.count*2 >= total {
		return types.ConsensusModerate
	}
	return types.ConsensusWeak
}

// applyBreakoutMultiplier boosts confidence 1.2x (capped at 1.0) and
// upgrades the consensus label to Strong when either leg shows volume
// > 2x its 20-period average and a bar range > 1.5x its ATR(14).
func (m *Manager) applyBreakoutMultiplier(symbolA, symbolB string, confidence float64, consensus types.ConsensusLabel) (float64, types.ConsensusLabel) {
	if m.legBreakingOut(symbolA) || m.legBreakingOut(symbolB) {
		boosted := clampUnit(confidence * breakoutBoost)
		return boosted, types.ConsensusStrong
	}
	return confidence, consensus
}

func (m *Manager) legBreakingOut(symbol string) bool {
	m.candleMu.Lock()
	hist := append([]candleSample(nil), m.candles[symbol]...)
	m.candleMu.Unlock()

	if len(hist) < breakoutVolPeriod+1 {
		return false
	}

	bars := make([]utils.ATRBar, len(hist))
	for i, h := range hist {
		bars[i] = h.bar
	}
	atr := utils.ATR(bars, breakoutATRPeriod)
	if atr.IsZero() {
		return false
	}

	volWindow := hist[len(hist)-breakoutVolPeriod:]
	var volSum decimal.Decimal
	for _, h := range volWindow {
		volSum = volSum.Add(h.volume)
	}
	avgVol := volSum.Div(decimal.NewFromInt(int64(len(volWindow))))
	if avgVol.IsZero() {
		return false
	}

	last := hist[len(hist)-1]
	currentRange := last.bar.High.Sub(last.bar.Low)

	volOK := last.volume.GreaterThan(avgVol.Mul(decimal.NewFromFloat(breakoutVolMult)))
	rangeOK := currentRange.GreaterThan(atr.Mul(decimal.NewFromFloat(breakoutRangeMult)))
	return volOK && rangeOK
}

// AdaptWeights remaps each strategy with >= 10 recorded trades to a weight
// in [0.3, 0.7] proportional to its observed win rate, and renormalizes
// every strategy's weight (adapted or not) to sum to 1.
func (m *Manager) AdaptWeights(stats map[types.StrategyName]WinRateStat) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, stat := range stats {
		if stat.Trades < adaptMinTrades {
			continue
		}
		wr := stat.WinRate
		if wr.LessThan(decimal.Zero) {
			wr = decimal.Zero
		}
		if wr.GreaterThan(decimal.NewFromInt(1)) {
			wr = decimal.NewFromInt(1)
		}
		span := decimal.NewFromFloat(adaptWeightHi - adaptWeightLo)
		m.weights[name] = decimal.NewFromFloat(adaptWeightLo).Add(wr.Mul(span))
	}

	var total decimal.Decimal
	for _, w := range m.weights {
		total = total.Add(w)
	}
	if total.IsZero() {
		return
	}
	for name, w := range m.weights {
		m.weights[name] = w.Div(total)
	}
}

// Weights returns a snapshot of the current per-strategy weights.
func (m *Manager) Weights() map[types.StrategyName]decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[types.StrategyName]decimal.Decimal, len(m.weights))
	for k, v := range m.weights {
		out[k] = v
	}
	return out
}

func clampUnit(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
