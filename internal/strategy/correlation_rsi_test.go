package strategy_test

import (
	"math"
	"testing"

	"github.com/atlas-desktop/pairs-engine/internal/strategy"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
)

func TestCorrelationRSIHoldsBelowWindow(t *testing.T) {
	s := strategy.NewCorrelationRSI()
	sig := s.Evaluate(strategy.Inputs{PricesA: dseries(1, 2, 3), PricesB: dseries(1, 2, 3)})
	if sig.Action != types.ActionHold {
		t.Fatalf("expected hold below window, got %s", sig.Action)
	}
}

func TestCorrelationRSIEntersOnDivergence(t *testing.T) {
	s := strategy.NewCorrelationRSI()

	a := make([]float64, 30)
	b := make([]float64, 30)
	for i := range a {
		// A trends down (oversold), B trends up (overbought), ratio b/a rises.
		a[i] = 100 - float64(i)*0.5
		b[i] = 50 + float64(i)*0.5
	}
	sig := s.Evaluate(strategy.Inputs{PricesA: dseries(a...), PricesB: dseries(b...)})
	if sig.Action == types.ActionHold {
		t.Fatalf("expected a divergence entry, got hold: %s", sig.Reason)
	}
}

func TestCorrelationRSIZeroVarianceRatioHolds(t *testing.T) {
	s := strategy.NewCorrelationRSI()
	a := make([]float64, 30)
	b := make([]float64, 30)
	for i := range a {
		a[i] = 100
		b[i] = 50
	}
	sig := s.Evaluate(strategy.Inputs{PricesA: dseries(a...), PricesB: dseries(b...)})
	if sig.Action != types.ActionHold {
		t.Fatalf("expected hold on a flat, zero-variance ratio, got %s", sig.Action)
	}
	if math.IsNaN(sig.Confidence) {
		t.Fatalf("confidence must never be NaN")
	}
}
