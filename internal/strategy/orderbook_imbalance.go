package strategy

import (
	"sync"
	"time"

	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
)

const (
	obiDepth              = 5
	obiSmoothWindow       = 10
	obiModerateThreshold  = 0.21
	obiEntryThreshold     = 0.3
	obiModerateConfidence = 0.65
	obiProfitTarget       = 0.001
	obiStopLoss           = -0.0005
	obiMaxHoldSeconds     = 120

	obiKillWindow   = 5 * time.Minute
	obiKillLossSum  = -0.02
	obiKillCooldown = 10 * time.Minute
)

type obiEntrySnapshot struct {
	entryTime    time.Time
	entryPriceA  decimal.Decimal
	entryPriceB  decimal.Decimal
}

type obiLossSample struct {
	at   time.Time
	pnl  float64
}

type obiState struct {
	mu           sync.Mutex
	imbalances   []float64
	entry        *obiEntrySnapshot
	lossHistory  []obiLossSample
	killUntil    time.Time
}

// OrderBookImbalance trades the smoothed bid/ask imbalance of symbol a's
// top-of-book depth, with a sticky per-pair entry snapshot and a rolling
// kill switch on recent realized losses.
type OrderBookImbalance struct {
	mu     sync.Mutex
	states map[string]*obiState
}

// NewOrderBookImbalance constructs the order-book imbalance strategy.
func NewOrderBookImbalance() *OrderBookImbalance {
	return &OrderBookImbalance{states: make(map[string]*obiState)}
}

func (s *OrderBookImbalance) Name() types.StrategyName { return types.StrategyOrderBookImbalance }

func (s *OrderBookImbalance) stateFor(pairID string) *obiState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[pairID]
	if !ok {
		st = &obiState{}
		s.states[pairID] = st
	}
	return st
}

func (s *OrderBookImbalance) Evaluate(in Inputs) types.StrategySignal {
	const name = types.StrategyOrderBookImbalance
	st := s.stateFor(in.PairID)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()

	if !in.HasBookA || len(in.OrderBookA.Bids) == 0 || len(in.OrderBookA.Asks) == 0 {
		return hold(name, "no orderbook for symbol a")
	}

	var bidVol, askVol decimal.Decimal
	bids := in.OrderBookA.Bids
	if len(bids) > obiDepth {
		bids = bids[:obiDepth]
	}
	asks := in.OrderBookA.Asks
	if len(asks) > obiDepth {
		asks = asks[:obiDepth]
	}
	for _, l := range bids {
		bidVol = bidVol.Add(l.Price.Mul(l.Size))
	}
	for _, l := range asks {
		askVol = askVol.Add(l.Price.Mul(l.Size))
	}
	total := bidVol.Add(askVol)
	if total.IsZero() {
		return hold(name, "empty book depth")
	}
	imbalance, _ := bidVol.Sub(askVol).Div(total).Float64()

	st.imbalances = append(st.imbalances, imbalance)
	if len(st.imbalances) > obiSmoothWindow {
		st.imbalances = st.imbalances[len(st.imbalances)-obiSmoothWindow:]
	}
	var sum float64
	for _, v := range st.imbalances {
		sum += v
	}
	smoothed := sum / float64(len(st.imbalances))

	diag := map[string]any{"imbalance": imbalance, "smoothed": smoothed}

	if !st.killUntil.IsZero() && now.Before(st.killUntil) {
		return types.StrategySignal{Strategy: name, Action: types.ActionHold, Confidence: 0, Reason: "kill switch active", Diagnostics: diag}
	}

	if in.HasPosition && st.entry != nil {
		pos := in.Position
		pnlA := signedPnLPct(pos.SideA, st.entry.entryPriceA, pos.CurrentPriceA)
		pnlB := signedPnLPct(pos.SideB, st.entry.entryPriceB, pos.CurrentPriceB)
		avgPnL := (pnlA + pnlB) / 2
		held := now.Sub(st.entry.entryTime)

		diag["avg_pnl"] = avgPnL

		if avgPnL >= obiProfitTarget || avgPnL <= obiStopLoss || held > obiMaxHoldSeconds*time.Second {
			st.lossHistory = append(st.lossHistory, obiLossSample{at: now, pnl: avgPnL})
			st.lossHistory = pruneLossHistory(st.lossHistory, now)
			if sumLosses(st.lossHistory) <= obiKillLossSum {
				st.killUntil = now.Add(obiKillCooldown)
			}
			st.entry = nil
			reason := "profit target"
			if avgPnL <= obiStopLoss {
				reason = "stop loss"
			} else if held > obiMaxHoldSeconds*time.Second {
				reason = "max hold time"
			}
			return types.StrategySignal{Strategy: name, Action: types.ActionClose, Confidence: 0.8, Reason: reason, Diagnostics: diag}
		}
		return types.StrategySignal{Strategy: name, Action: types.ActionHold, Confidence: 0, Reason: "position open, within band", Diagnostics: diag}
	}

	abs := smoothed
	if abs < 0 {
		abs = -abs
	}
	if abs < obiModerateThreshold {
		return types.StrategySignal{Strategy: name, Action: types.ActionHold, Confidence: 0, Reason: "insufficient imbalance", Diagnostics: diag}
	}

	var action types.StrategyAction
	if smoothed > 0 {
		action = types.ActionLongSpread
	} else {
		action = types.ActionShortSpread
	}

	var conf float64
	var reason string
	if abs < obiEntryThreshold {
		conf = obiModerateConfidence
		reason = "moderate orderbook imbalance entry"
	} else {
		conf = min(0.95, 0.6+0.5*abs)
		reason = "orderbook imbalance entry"
	}

	st.entry = &obiEntrySnapshot{entryTime: now}

	return types.StrategySignal{Strategy: name, Action: action, Confidence: conf, Reason: reason, Diagnostics: diag}
}

// RecordEntryPrices fills in the sticky snapshot's entry prices. No other
// package in this module calls it; until it is called the snapshot's
// entry prices are zero, each leg's P&L reads as 0, and only the
// max-hold rule closes the position.
func (s *OrderBookImbalance) RecordEntryPrices(pairID string, priceA, priceB decimal.Decimal) {
	st := s.stateFor(pairID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.entry != nil {
		st.entry.entryPriceA = priceA
		st.entry.entryPriceB = priceB
	}
}

func signedPnLPct(side types.PositionSide, entry, current decimal.Decimal) float64 {
	if entry.IsZero() {
		return 0
	}
	pct, _ := current.Sub(entry).Div(entry).Float64()
	if side == types.PositionSideShort {
		return -pct
	}
	return pct
}

func pruneLossHistory(history []obiLossSample, now time.Time) []obiLossSample {
	cutoff := now.Add(-obiKillWindow)
	out := history[:0]
	for _, h := range history {
		if h.at.After(cutoff) {
			out = append(out, h)
		}
	}
	return out
}

func sumLosses(history []obiLossSample) float64 {
	var sum float64
	for _, h := range history {
		if h.pnl < 0 {
			sum += h.pnl
		}
	}
	return sum
}
