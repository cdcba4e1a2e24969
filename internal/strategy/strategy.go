// Package strategy implements the four pair-trading strategies: each
// evaluates aligned price history (and, for order-book imbalance,
// top-of-book depth) into a typed signal. Three are pure functions of
// their inputs; order-book imbalance also keeps per-pair state (smoothing
// window, entry snapshot, kill switch). None of them place orders or
// touch PositionManager directly.
package strategy

import (
	"sync"

	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Inputs is the read-only snapshot every strategy evaluates against.
// PricesA/PricesB are aligned, deduplicated, ascending by time.
type Inputs struct {
	PairID  string
	SymbolA string
	SymbolB string

	PricesA []decimal.Decimal
	PricesB []decimal.Decimal

	OrderBookA types.OrderBookSnapshot
	HasBookA   bool

	Position   *types.Position // nil when flat
	HasPosition bool
}

// Strategy evaluates pair inputs into a signal. Implementations hold no
// reference to a Position; a nil/zero Position in Inputs only tells the
// strategy whether to run entry or exit logic.
type Strategy interface {
	Name() types.StrategyName
	Evaluate(in Inputs) types.StrategySignal
}

func hold(name types.StrategyName, reason string) types.StrategySignal {
	return types.StrategySignal{
		Strategy:   name,
		Action:     types.ActionHold,
		Confidence: 0,
		Reason:     reason,
	}
}

// Registry holds one instance of each of the four fixed strategies. The
// strategy set here is closed — the StrategyManager always runs exactly
// these four.
type Registry struct {
	logger     *zap.Logger
	mu         sync.RWMutex
	strategies map[types.StrategyName]Strategy
}

// NewRegistry builds the fixed four-strategy set.
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		logger:     logger,
		strategies: make(map[types.StrategyName]Strategy),
	}
	r.register(NewEngleGranger())
	r.register(NewOrderBookImbalance())
	r.register(NewCorrelationRSI())
	r.register(NewMeanReversion())
	return r
}

func (r *Registry) register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// All returns the four strategies in the fixed evaluation order used for
// weighting: engle_granger, orderbook_imbalance, correlation_rsi, mean_reversion.
func (r *Registry) All() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order := []types.StrategyName{
		types.StrategyEngleGranger,
		types.StrategyOrderBookImbalance,
		types.StrategyCorrelationRSI,
		types.StrategyMeanReversion,
	}
	out := make([]Strategy, 0, len(order))
	for _, name := range order {
		if s, ok := r.strategies[name]; ok {
			out = append(out, s)
		}
	}
	return out
}
