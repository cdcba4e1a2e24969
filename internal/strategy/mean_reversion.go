package strategy

import (
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/atlas-desktop/pairs-engine/pkg/utils"
	"github.com/shopspring/decimal"
)

const (
	mrWindow     = 30
	mrBandPeriod = 10
	mrBandWidth  = 1.5

	mrEntryZ    = 0.3
	mrStopZ     = 1.5
	mrReversionZ = 0.1
	mrCentralBandFrac = 0.2
)

// MeanReversion trades Bollinger-band excursions of the b/a price ratio,
// confirmed by a longer-window z-score on the same ratio.
type MeanReversion struct{}

// NewMeanReversion constructs the Bollinger mean-reversion strategy.
func NewMeanReversion() *MeanReversion { return &MeanReversion{} }

func (s *MeanReversion) Name() types.StrategyName { return types.StrategyMeanReversion }

func (s *MeanReversion) Evaluate(in Inputs) types.StrategySignal {
	const name = types.StrategyMeanReversion

	n := len(in.PricesA)
	if n != len(in.PricesB) || n < mrWindow {
		return hold(name, "insufficient aligned samples")
	}
	pricesA := in.PricesA[n-mrWindow:]
	pricesB := in.PricesB[n-mrWindow:]

	ratios := make([]decimal.Decimal, len(pricesA))
	for i := range pricesA {
		if pricesA[i].IsZero() {
			return hold(name, "zero price in symbol a")
		}
		ratios[i] = pricesB[i].Div(pricesA[i])
	}

	bandSlice := ratios
	if len(bandSlice) > mrBandPeriod {
		bandSlice = bandSlice[len(bandSlice)-mrBandPeriod:]
	}
	mid := utils.CalculateMean(bandSlice)
	sigma := utils.CalculateStdDev(bandSlice)
	width := sigma.Mul(decimal.NewFromFloat(mrBandWidth))
	lower := mid.Sub(width)
	upper := mid.Add(width)

	zMean := utils.CalculateMean(ratios)
	zStd := utils.CalculateStdDev(ratios)
	ratioNow := ratios[len(ratios)-1]
	var z decimal.Decimal
	if !zStd.IsZero() {
		z = ratioNow.Sub(zMean).Div(zStd)
	}
	zf, _ := z.Float64()

	diag := map[string]any{
		"ratio": ratioNow,
		"lower": lower,
		"upper": upper,
		"mid":   mid,
		"zscore": z,
	}

	bandWidthTotal := upper.Sub(lower)
	var centralFrac decimal.Decimal
	if !bandWidthTotal.IsZero() {
		centralFrac = ratioNow.Sub(mid).Abs().Div(bandWidthTotal.Div(decimal.NewFromInt(2)))
	}

	if in.HasPosition {
		absZ := absFloat(zf)
		switch {
		case absZ > mrStopZ:
			return types.StrategySignal{Strategy: name, Action: types.ActionClose, Confidence: 0.85, Reason: "zscore stop", Diagnostics: diag}
		case absZ < mrReversionZ:
			return types.StrategySignal{Strategy: name, Action: types.ActionClose, Confidence: 0.6, Reason: "mean reversion complete", Diagnostics: diag}
		case centralFrac.LessThan(decimal.NewFromFloat(mrCentralBandFrac)):
			return types.StrategySignal{Strategy: name, Action: types.ActionClose, Confidence: 0.55, Reason: "ratio back in central band", Diagnostics: diag}
		default:
			return types.StrategySignal{Strategy: name, Action: types.ActionHold, Confidence: 0, Reason: "position open, within band", Diagnostics: diag}
		}
	}

	switch {
	case ratioNow.LessThan(lower) && zf < -mrEntryZ:
		return types.StrategySignal{Strategy: name, Action: types.ActionLongSpread, Confidence: 0.75, Reason: "ratio below lower band", Diagnostics: diag}
	case ratioNow.GreaterThan(upper) && zf > mrEntryZ:
		return types.StrategySignal{Strategy: name, Action: types.ActionShortSpread, Confidence: 0.75, Reason: "ratio above upper band", Diagnostics: diag}
	case ratioNow.LessThan(lower) && zf < -mrEntryZ*0.7:
		return types.StrategySignal{Strategy: name, Action: types.ActionLongSpread, Confidence: 0.65, Reason: "ratio below lower band, weak z-score", Diagnostics: diag}
	case ratioNow.GreaterThan(upper) && zf > mrEntryZ*0.7:
		return types.StrategySignal{Strategy: name, Action: types.ActionShortSpread, Confidence: 0.65, Reason: "ratio above upper band, weak z-score", Diagnostics: diag}
	default:
		return types.StrategySignal{Strategy: name, Action: types.ActionHold, Confidence: 0, Reason: "ratio within bands", Diagnostics: diag}
	}
}
