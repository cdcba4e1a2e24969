package strategy_test

import (
	"testing"

	"github.com/atlas-desktop/pairs-engine/internal/strategy"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
)

func dseries(vals ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func TestEngleGrangerHoldsBelowMinWindow(t *testing.T) {
	s := strategy.NewEngleGranger()
	in := strategy.Inputs{PricesA: dseries(1, 2, 3), PricesB: dseries(1, 2, 3)}
	sig := s.Evaluate(in)
	if sig.Action != types.ActionHold {
		t.Fatalf("expected hold on insufficient samples, got %s", sig.Action)
	}
}

func TestEngleGrangerEntersOnOverextendedSpread(t *testing.T) {
	s := strategy.NewEngleGranger()

	a := make([]float64, 40)
	b := make([]float64, 40)
	for i := range a {
		a[i] = 100 + float64(i)*0.1
		b[i] = 50 + float64(i)*0.05
	}
	// Push the final spread observation far off the regression line.
	a[len(a)-1] = a[len(a)-1] + 20

	in := strategy.Inputs{PricesA: dseries(a...), PricesB: dseries(b...)}
	sig := s.Evaluate(in)

	if sig.Action == types.ActionHold {
		t.Fatalf("expected a non-hold entry signal on an overextended spread, got hold: %s", sig.Reason)
	}
}

func TestEngleGrangerClosesOnZScoreStopWhilePositionOpen(t *testing.T) {
	s := strategy.NewEngleGranger()

	a := make([]float64, 40)
	b := make([]float64, 40)
	for i := range a {
		a[i] = 100 + float64(i)*0.1
		b[i] = 50 + float64(i)*0.05
	}
	a[len(a)-1] += 50

	in := strategy.Inputs{
		PricesA:     dseries(a...),
		PricesB:     dseries(b...),
		HasPosition: true,
		Position:    &types.Position{},
	}
	sig := s.Evaluate(in)
	if sig.Action != types.ActionClose {
		t.Fatalf("expected close on extreme z-score with an open position, got %s (%s)", sig.Action, sig.Reason)
	}
}
