package strategy_test

import (
	"testing"

	"github.com/atlas-desktop/pairs-engine/internal/strategy"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
)

func TestMeanReversionHoldsBelowWindow(t *testing.T) {
	s := strategy.NewMeanReversion()
	sig := s.Evaluate(strategy.Inputs{PricesA: dseries(1, 2, 3), PricesB: dseries(1, 2, 3)})
	if sig.Action != types.ActionHold {
		t.Fatalf("expected hold below window, got %s", sig.Action)
	}
}

func TestMeanReversionEntersBelowLowerBand(t *testing.T) {
	s := strategy.NewMeanReversion()

	a := make([]float64, 30)
	b := make([]float64, 30)
	for i := range a {
		a[i] = 100
		b[i] = 50
	}
	// Spike the ratio down hard on the final bar.
	b[len(b)-1] = 30

	sig := s.Evaluate(strategy.Inputs{PricesA: dseries(a...), PricesB: dseries(b...)})
	if sig.Action != types.ActionLongSpread {
		t.Fatalf("expected long-spread entry on a ratio dip below the lower band, got %s (%s)", sig.Action, sig.Reason)
	}
}

func TestMeanReversionZeroPriceHolds(t *testing.T) {
	s := strategy.NewMeanReversion()
	a := make([]float64, 30)
	b := make([]float64, 30)
	for i := range a {
		a[i] = 100
		b[i] = 50
	}
	a[5] = 0
	sig := s.Evaluate(strategy.Inputs{PricesA: dseries(a...), PricesB: dseries(b...)})
	if sig.Action != types.ActionHold {
		t.Fatalf("expected hold on a zero price in symbol a, got %s", sig.Action)
	}
}
