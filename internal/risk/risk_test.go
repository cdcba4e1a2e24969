package risk_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/pairs-engine/internal/risk"
	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newAgent() *risk.Agent {
	return risk.NewAgent(zap.NewNop(), risk.DefaultConfig())
}

func TestPositionSizeScalesWithConfidence(t *testing.T) {
	agent := newAgent()

	low := agent.PositionSize(risk.SizingInput{Confidence: 0, Balance: decimal.NewFromInt(100000)})
	high := agent.PositionSize(risk.SizingInput{Confidence: 1, Balance: decimal.NewFromInt(100000)})

	if !high.GreaterThan(low) {
		t.Fatalf("expected higher confidence to size larger: low=%s high=%s", low, high)
	}
}

func TestPositionSizeRespectsMinNotionalFloor(t *testing.T) {
	agent := risk.NewAgent(zap.NewNop(), risk.Config{
		Limits: types.RiskLimits{
			MaxPositionSize: decimal.NewFromInt(10),
			RiskPerTrade:    decimal.NewFromFloat(0.001),
		},
	})

	size := agent.PositionSize(risk.SizingInput{Confidence: 0.5, Balance: decimal.NewFromInt(1000)})
	if size.LessThan(decimal.NewFromInt(500)) {
		t.Fatalf("expected size floored at 500, got %s", size)
	}
}

func TestPositionSizeDampensOnHighVolatility(t *testing.T) {
	agent := newAgent()

	calm := agent.PositionSize(risk.SizingInput{
		Confidence: 0.8, Balance: decimal.NewFromInt(100000),
		Volatility: 0.1, HasVolatility: true,
	})
	volatile := agent.PositionSize(risk.SizingInput{
		Confidence: 0.8, Balance: decimal.NewFromInt(100000),
		Volatility: 2.0, HasVolatility: true,
	})

	if !calm.GreaterThan(volatile) {
		t.Fatalf("expected volatility dampening to shrink size: calm=%s volatile=%s", calm, volatile)
	}
}

func TestPreTradeVerdictSafeWhenWithinLimits(t *testing.T) {
	agent := newAgent()

	verdict, reason := agent.PreTradeVerdict(risk.BookState{
		OpenPositions: 1,
		DailyPnL:      decimal.NewFromInt(-10),
		Balance:       decimal.NewFromInt(10000),
		MaxEquity:     decimal.NewFromInt(10000),
		CurrentEquity: decimal.NewFromInt(10000),
		OpenNotional:  decimal.NewFromInt(1000),
	})

	if verdict != types.RiskSafe {
		t.Fatalf("expected RiskSafe, got %s (%s)", verdict, reason)
	}
}

func TestPreTradeVerdictClosesOnDrawdownBreachWithOpenPositions(t *testing.T) {
	agent := newAgent()

	verdict, reason := agent.PreTradeVerdict(risk.BookState{
		OpenPositions: 2,
		Balance:       decimal.NewFromInt(8000),
		MaxEquity:     decimal.NewFromInt(10000),
		CurrentEquity: decimal.NewFromInt(7000), // 30% drawdown > 20% default
		OpenNotional:  decimal.NewFromInt(1000),
	})

	if verdict != types.RiskClose {
		t.Fatalf("expected RiskClose on drawdown breach, got %s (%s)", verdict, reason)
	}
}

func TestPreTradeVerdictPausesOnBreachWithNoOpenPositions(t *testing.T) {
	agent := newAgent()

	verdict, _ := agent.PreTradeVerdict(risk.BookState{
		OpenPositions: 0,
		DailyPnL:      decimal.NewFromInt(-1000), // breaches 500 default limit
		Balance:       decimal.NewFromInt(10000),
		MaxEquity:     decimal.NewFromInt(10000),
		CurrentEquity: decimal.NewFromInt(10000),
	})

	if verdict != types.RiskPause {
		t.Fatalf("expected RiskPause with no open positions to close, got %s", verdict)
	}
}

func TestPositionExitEmergencyStopIgnoresHoldDuration(t *testing.T) {
	agent := newAgent()
	pos := &types.Position{
		EntryTime:     time.Now(), // held 0 seconds
		UnrealizedPnL: decimal.NewFromInt(-150),
	}

	exit := agent.PositionExit(pos, time.Now())
	if !exit.Close || exit.Reason != types.CloseReasonEmergencyStop {
		t.Fatalf("expected immediate emergency stop, got %+v", exit)
	}
}

func TestPositionExitHoldsBeforeMinDuration(t *testing.T) {
	agent := newAgent()
	pos := &types.Position{
		EntryTime:     time.Now(),
		UnrealizedPnL: decimal.NewFromInt(5),
		QtyA:          decimal.NewFromInt(1),
		QtyB:          decimal.NewFromInt(1),
		EntryPriceA:   decimal.NewFromInt(100),
		EntryPriceB:   decimal.NewFromInt(100),
	}

	exit := agent.PositionExit(pos, time.Now())
	if exit.Close {
		t.Fatalf("expected no exit before minHoldDuration elapses, got %+v", exit)
	}
}

func TestPositionExitQuickProfit(t *testing.T) {
	agent := newAgent()
	now := time.Now()
	pos := &types.Position{
		EntryTime:     now.Add(-time.Minute),
		QtyA:          decimal.NewFromInt(1),
		QtyB:          decimal.NewFromInt(1),
		EntryPriceA:   decimal.NewFromInt(100),
		EntryPriceB:   decimal.NewFromInt(100),
		UnrealizedPnL: decimal.NewFromFloat(1), // 0.5% of 200 notional
	}

	exit := agent.PositionExit(pos, now)
	if !exit.Close || exit.Reason != types.CloseReasonQuickProfit {
		t.Fatalf("expected quick profit close, got %+v", exit)
	}
}

func TestPositionExitHardStop(t *testing.T) {
	agent := newAgent()
	now := time.Now()
	pos := &types.Position{
		EntryTime:     now.Add(-time.Hour),
		QtyA:          decimal.NewFromInt(1),
		QtyB:          decimal.NewFromInt(1),
		EntryPriceA:   decimal.NewFromInt(1000),
		EntryPriceB:   decimal.NewFromInt(1000),
		UnrealizedPnL: decimal.NewFromInt(-10), // -0.5% of 2000 notional, below -0.3% hard stop
	}

	exit := agent.PositionExit(pos, now)
	if !exit.Close || exit.Reason != types.CloseReasonHardStop {
		t.Fatalf("expected hard stop close, got %+v", exit)
	}
}

func TestPositionExitZScoreStoploss(t *testing.T) {
	agent := newAgent()
	now := time.Now()
	pos := &types.Position{
		EntryTime:     now.Add(-time.Hour),
		QtyA:          decimal.NewFromInt(1),
		QtyB:          decimal.NewFromInt(1),
		EntryPriceA:   decimal.NewFromInt(1000),
		EntryPriceB:   decimal.NewFromInt(1000),
		UnrealizedPnL: decimal.NewFromInt(-2), // -0.1% of 2000 notional: negative enough to skip break-even, not enough to hard-stop
		CurrentZScore: decimal.NewFromFloat(4.0), // beyond the 3.5 default stoploss threshold
	}

	exit := agent.PositionExit(pos, now)
	if !exit.Close || exit.Reason != types.CloseReasonZScoreStop {
		t.Fatalf("expected zscore stop close, got %+v", exit)
	}
}

func TestPositionExitMaxHoldingTime(t *testing.T) {
	agent := newAgent()
	now := time.Now()
	pos := &types.Position{
		EntryTime:     now.Add(-25 * time.Hour), // beyond the 24h default
		QtyA:          decimal.NewFromInt(1),
		QtyB:          decimal.NewFromInt(1),
		EntryPriceA:   decimal.NewFromInt(1000),
		EntryPriceB:   decimal.NewFromInt(1000),
		UnrealizedPnL: decimal.NewFromInt(-2), // -0.1%: skips break-even and hard stop
		CurrentZScore: decimal.NewFromFloat(1.0), // inside both zscore thresholds
	}

	exit := agent.PositionExit(pos, now)
	if !exit.Close || exit.Reason != types.CloseReasonMaxHoldingTime {
		t.Fatalf("expected max holding time close, got %+v", exit)
	}
}

func TestVolatilityEstimatorNeedsTwoSamples(t *testing.T) {
	v := risk.NewVolatilityEstimator()

	if _, ok := v.Estimate("BTCUSDT"); ok {
		t.Fatal("expected no estimate with zero samples")
	}

	v.Observe("BTCUSDT", decimal.NewFromInt(100))
	if _, ok := v.Estimate("BTCUSDT"); ok {
		t.Fatal("expected no estimate after a single price (zero returns yet)")
	}

	v.Observe("BTCUSDT", decimal.NewFromInt(105))
	if _, ok := v.Estimate("BTCUSDT"); ok {
		t.Fatal("expected no estimate with only one return sample")
	}

	v.Observe("BTCUSDT", decimal.NewFromInt(103))
	if _, ok := v.Estimate("BTCUSDT"); !ok {
		t.Fatal("expected an estimate after two return samples")
	}
}
