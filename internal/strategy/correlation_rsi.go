package strategy

import (
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/atlas-desktop/pairs-engine/pkg/utils"
	"github.com/shopspring/decimal"
)

// corrGateThreshold is the Pearson-correlation floor below which the
// strategy would normally refuse to trade. At -1.0 the gate accepts every
// correlation value and is effectively a no-op.
const corrGateThreshold = -1.0

const (
	crWindow     = 30
	crRSIPeriod  = 7
	crEntryZ     = 0.01
	crStopZ      = 1.5
	crReversionZ = 0.005
)

// CorrelationRSI looks for RSI divergence between the two legs confirmed
// by a price-ratio z-score, gated (nominally) by Pearson correlation.
type CorrelationRSI struct{}

// NewCorrelationRSI constructs the correlation+RSI strategy.
func NewCorrelationRSI() *CorrelationRSI { return &CorrelationRSI{} }

func (s *CorrelationRSI) Name() types.StrategyName { return types.StrategyCorrelationRSI }

func (s *CorrelationRSI) Evaluate(in Inputs) types.StrategySignal {
	const name = types.StrategyCorrelationRSI

	n := len(in.PricesA)
	if n != len(in.PricesB) || n < crWindow {
		return hold(name, "insufficient aligned samples")
	}
	pricesA := in.PricesA[n-crWindow:]
	pricesB := in.PricesB[n-crWindow:]

	corr := utils.PearsonCorrelation(pricesA, pricesB)
	corrF, _ := corr.Float64()
	if corrF < corrGateThreshold {
		return hold(name, "correlation gate")
	}

	rsiA := utils.RSI(pricesA, crRSIPeriod)
	rsiB := utils.RSI(pricesB, crRSIPeriod)
	rsiAF, _ := rsiA.Float64()
	rsiBF, _ := rsiB.Float64()

	ratios := make([]decimal.Decimal, len(pricesA))
	for i := range pricesA {
		if pricesA[i].IsZero() {
			ratios[i] = decimal.Zero
			continue
		}
		ratios[i] = pricesB[i].Div(pricesA[i])
	}
	mean := utils.CalculateMean(ratios)
	std := utils.CalculateStdDev(ratios)
	if std.IsZero() {
		return hold(name, "zero-variance ratio")
	}
	z := ratios[len(ratios)-1].Sub(mean).Div(std)
	zf, _ := z.Float64()

	diag := map[string]any{
		"correlation": corr,
		"rsi_a":       rsiA,
		"rsi_b":       rsiB,
		"zscore":      z,
	}

	if in.HasPosition {
		absZ := absFloat(zf)
		switch {
		case absZ > crStopZ:
			return types.StrategySignal{Strategy: name, Action: types.ActionClose, Confidence: 0.85, Reason: "zscore stop", Diagnostics: diag}
		case absZ < crReversionZ:
			return types.StrategySignal{Strategy: name, Action: types.ActionClose, Confidence: 0.6, Reason: "mean reversion complete", Diagnostics: diag}
		case rsiAF >= 40 && rsiAF <= 60 && rsiBF >= 40 && rsiBF <= 60:
			return types.StrategySignal{Strategy: name, Action: types.ActionClose, Confidence: 0.55, Reason: "rsi normalization", Diagnostics: diag}
		default:
			return types.StrategySignal{Strategy: name, Action: types.ActionHold, Confidence: 0, Reason: "position open, within band", Diagnostics: diag}
		}
	}

	switch {
	case rsiAF < 45 && rsiBF > 55 && zf < -crEntryZ:
		return types.StrategySignal{Strategy: name, Action: types.ActionLongSpread, Confidence: 0.8, Reason: "rsi divergence confirmed by ratio z-score", Diagnostics: diag}
	case rsiAF > 55 && rsiBF < 45 && zf > crEntryZ:
		return types.StrategySignal{Strategy: name, Action: types.ActionShortSpread, Confidence: 0.8, Reason: "rsi divergence confirmed by ratio z-score", Diagnostics: diag}
	case rsiAF < 45 && rsiBF > 55 && zf < -crEntryZ/2:
		return types.StrategySignal{Strategy: name, Action: types.ActionLongSpread, Confidence: 0.65, Reason: "rsi divergence, weak z-score", Diagnostics: diag}
	case rsiAF > 55 && rsiBF < 45 && zf > crEntryZ/2:
		return types.StrategySignal{Strategy: name, Action: types.ActionShortSpread, Confidence: 0.65, Reason: "rsi divergence, weak z-score", Diagnostics: diag}
	case absFloat(rsiAF-rsiBF) > 10 && absFloat(zf) > 0.3*crEntryZ:
		if rsiAF < rsiBF {
			return types.StrategySignal{Strategy: name, Action: types.ActionLongSpread, Confidence: 0.55, Reason: "rsi spread divergence", Diagnostics: diag}
		}
		return types.StrategySignal{Strategy: name, Action: types.ActionShortSpread, Confidence: 0.55, Reason: "rsi spread divergence", Diagnostics: diag}
	default:
		return types.StrategySignal{Strategy: name, Action: types.ActionHold, Confidence: 0, Reason: "no divergence", Diagnostics: diag}
	}
}
