package risk

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"
)

const volatilityWindow = 20

// VolatilityEstimator keeps a rolling window of per-symbol returns and
// reports their standard deviation.
type VolatilityEstimator struct {
	mu      sync.Mutex
	returns map[string][]float64
	lastPx  map[string]decimal.Decimal
}

// NewVolatilityEstimator creates an empty estimator.
func NewVolatilityEstimator() *VolatilityEstimator {
	return &VolatilityEstimator{
		returns: make(map[string][]float64),
		lastPx:  make(map[string]decimal.Decimal),
	}
}

// Observe feeds a new price sample for symbol, updating its return window.
func (v *VolatilityEstimator) Observe(symbol string, price decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()

	last, ok := v.lastPx[symbol]
	v.lastPx[symbol] = price
	if !ok || last.IsZero() {
		return
	}

	ret, _ := price.Sub(last).Div(last).Float64()
	rs := append(v.returns[symbol], ret)
	if len(rs) > volatilityWindow {
		rs = rs[len(rs)-volatilityWindow:]
	}
	v.returns[symbol] = rs
}

// Estimate returns the standard deviation of symbol's recent returns, and
// whether enough samples exist to trust it.
func (v *VolatilityEstimator) Estimate(symbol string) (float64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	rs := v.returns[symbol]
	if len(rs) < 2 {
		return 0, false
	}

	var mean float64
	for _, r := range rs {
		mean += r
	}
	mean /= float64(len(rs))

	var variance float64
	for _, r := range rs {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(rs) - 1)

	return math.Sqrt(variance), true
}
