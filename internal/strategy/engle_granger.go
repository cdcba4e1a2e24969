package strategy

import (
	"fmt"

	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/atlas-desktop/pairs-engine/pkg/utils"
	"github.com/shopspring/decimal"
)

const (
	eggMaxWindow = 60
	eggMinWindow = 30

	eggEntryZ   = 2.0
	eggStopZ    = 3.5
	eggReversionZ = 0.3

	eggStrongP = 0.10
	eggWeakP   = 0.20
)

// EngleGranger tests pricesA and pricesB for cointegration: OLS-regresses
// a on b to get the hedge ratio and spread, then runs an ADF unit-root
// test on the spread's residuals.
type EngleGranger struct{}

// NewEngleGranger constructs the cointegration strategy.
func NewEngleGranger() *EngleGranger { return &EngleGranger{} }

func (s *EngleGranger) Name() types.StrategyName { return types.StrategyEngleGranger }

func (s *EngleGranger) Evaluate(in Inputs) types.StrategySignal {
	const name = types.StrategyEngleGranger

	n := len(in.PricesA)
	if n != len(in.PricesB) || n < eggMinWindow {
		return hold(name, "insufficient aligned samples")
	}
	if n > eggMaxWindow {
		in.PricesA = in.PricesA[n-eggMaxWindow:]
		in.PricesB = in.PricesB[n-eggMaxWindow:]
	}

	reg, ok := utils.OLSRegress(in.PricesB, in.PricesA)
	if !ok {
		return hold(name, "degenerate regression (zero variance in symbol b)")
	}

	adf, ok := utils.ADFTest(reg.Residuals)
	if !ok {
		return hold(name, "adf test unavailable for this window")
	}

	if adf.PValue >= eggWeakP {
		return types.StrategySignal{
			Strategy:   name,
			Action:     types.ActionHold,
			Confidence: 0,
			Reason:     "not cointegrated",
			Diagnostics: map[string]any{
				"hedge_ratio": reg.Beta,
				"adf_pvalue":  adf.PValue,
			},
		}
	}
	strong := adf.PValue < eggStrongP

	mean := utils.CalculateMean(reg.Residuals)
	std := utils.CalculateStdDev(reg.Residuals)
	if std.IsZero() {
		return hold(name, "zero-variance spread")
	}
	epsNow := reg.Residuals[len(reg.Residuals)-1]
	z := epsNow.Sub(mean).Div(std)
	zf, _ := z.Float64()

	diag := map[string]any{
		"hedge_ratio": reg.Beta,
		"adf_pvalue":  adf.PValue,
		"zscore":      z,
		"strong":      strong,
	}

	if in.HasPosition {
		absZ := z.Abs()
		switch {
		case absZ.GreaterThan(decimal.NewFromFloat(eggStopZ)):
			return types.StrategySignal{Strategy: name, Action: types.ActionClose, Confidence: 0.9, Reason: "zscore stop", Diagnostics: diag}
		case absZ.LessThan(decimal.NewFromFloat(eggReversionZ)):
			return types.StrategySignal{Strategy: name, Action: types.ActionClose, Confidence: 0.7, Reason: "mean reversion complete", Diagnostics: diag}
		default:
			return types.StrategySignal{Strategy: name, Action: types.ActionHold, Confidence: 0, Reason: "position open, within band", Diagnostics: diag}
		}
	}

	quality := 1.0
	if !strong {
		quality = max(0.5, 1.0-(adf.PValue-eggStrongP)*5)
	}

	switch {
	case zf > eggEntryZ:
		conf := min(0.95, 0.6+absFloat(zf)/10) * quality
		return types.StrategySignal{Strategy: name, Action: types.ActionShortSpread, Confidence: conf, Reason: fmt.Sprintf("spread overextended, z=%.2f", zf), Diagnostics: diag}
	case zf < -eggEntryZ:
		conf := min(0.95, 0.6+absFloat(zf)/10) * quality
		return types.StrategySignal{Strategy: name, Action: types.ActionLongSpread, Confidence: conf, Reason: fmt.Sprintf("spread overextended, z=%.2f", zf), Diagnostics: diag}
	default:
		return types.StrategySignal{Strategy: name, Action: types.ActionHold, Confidence: 0, Reason: "within entry band", Diagnostics: diag}
	}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
