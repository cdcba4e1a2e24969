// Package risk implements the RiskAgent: position sizing, the pre-trade
// exposure/drawdown gate, and the per-position exit-rule ladder for a
// two-leg, z-score-aware spread position.
package risk

import (
	"sync"
	"time"

	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/atlas-desktop/pairs-engine/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	sizeConfidenceFloor   = 0.5
	sizeConfidenceSlope   = 0.5
	winRateHighThreshold  = 0.60
	winRateHighMultiplier = 2.0
	winRateMidThreshold   = 0.55
	winRateMidMultiplier  = 1.5
	winRateMinTrades      = 5

	volatilityDampenThreshold = 0.5
	volatilityDampenNumerator = 0.5

	riskPerTradeCapMultiplier = 10
	maxPositionFracOfBalance  = 0.2
	minNotionalFloor          = 500

	emergencyStopLoss  = -100
	minHoldDuration    = 30 * time.Second
	quickProfitPct     = 0.002
	breakEvenHold      = 120 * time.Second
	trailingArmPct     = 0.003
	trailingGivebackPct = 0.0015
	hardStopPct        = -0.003
)

// Config holds the RiskAgent's tunables. zscore_entry_threshold belongs
// to the strategies; the agent only needs the exit/stoploss pair plus
// the limits struct.
type Config struct {
	Limits             types.RiskLimits
	ZScoreExitThreshold     decimal.Decimal // default 0.3
	ZScoreStoplossThreshold decimal.Decimal // default 3.5
	MaxHoldingHours         int             // default 24
}

// DefaultConfig returns the engine's stated global defaults.
func DefaultConfig() Config {
	return Config{
		Limits:                  types.DefaultRiskLimits(),
		ZScoreExitThreshold:     decimal.NewFromFloat(0.3),
		ZScoreStoplossThreshold: decimal.NewFromFloat(3.5),
		MaxHoldingHours:         24,
	}
}

// SizingInput carries everything PositionSize needs to compute one pair's notional.
type SizingInput struct {
	Confidence     float64
	Balance        decimal.Decimal
	WinRate        decimal.Decimal
	WinRateTrades  int
	HasWinRate     bool
	Volatility     float64
	HasVolatility  bool
}

// BookState is the whole-book context the pre-trade gate evaluates.
type BookState struct {
	OpenPositions int
	DailyPnL      decimal.Decimal
	Balance       decimal.Decimal
	MaxEquity     decimal.Decimal
	CurrentEquity decimal.Decimal
	OpenNotional  decimal.Decimal
}

// Agent is the RiskAgent: stateless aside from its config and logger.
// Every method computes over its inputs; PositionExit also writes
// MaxProfitPct onto the position it is given.
type Agent struct {
	logger *zap.Logger
	mu     sync.RWMutex
	cfg    Config
}

// NewAgent builds a RiskAgent with the given config.
func NewAgent(logger *zap.Logger, cfg Config) *Agent {
	return &Agent{logger: logger.Named("risk-agent"), cfg: cfg}
}

// Config returns a copy of the agent's current configuration.
func (a *Agent) Config() Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// PositionSize computes the equal-notional USD size for both legs.
func (a *Agent) PositionSize(in SizingInput) decimal.Decimal {
	cfg := a.Config()

	size := cfg.Limits.MaxPositionSize
	size = size.Mul(decimal.NewFromFloat(sizeConfidenceFloor + sizeConfidenceSlope*in.Confidence))

	if in.HasWinRate && in.WinRateTrades >= winRateMinTrades {
		wr, _ := in.WinRate.Float64()
		switch {
		case wr >= winRateHighThreshold:
			size = size.Mul(decimal.NewFromFloat(winRateHighMultiplier))
		case wr >= winRateMidThreshold:
			size = size.Mul(decimal.NewFromFloat(winRateMidMultiplier))
		}
	}

	if in.HasVolatility && in.Volatility > volatilityDampenThreshold {
		mult := volatilityDampenNumerator / in.Volatility
		if mult > 1.0 {
			mult = 1.0
		}
		size = size.Mul(decimal.NewFromFloat(mult))
	}

	riskCap := cfg.Limits.RiskPerTrade.Mul(in.Balance).Mul(decimal.NewFromInt(riskPerTradeCapMultiplier))
	balanceCap := in.Balance.Mul(decimal.NewFromFloat(maxPositionFracOfBalance))
	floor := decimal.NewFromInt(minNotionalFloor)

	return utils.ClampDecimal(size, floor, utils.MinDecimal(riskCap, balanceCap))
}

// PreTradeVerdict runs the whole-book exposure/drawdown gate. When it
// fails and positions are open, the caller should force Close on every
// open position; when no positions are open, it forces Hold (there is
// nothing to close, and opening new risk is refused).
func (a *Agent) PreTradeVerdict(state BookState) (types.RiskVerdict, string) {
	cfg := a.Config()

	if state.OpenPositions >= cfg.Limits.MaxConcurrentPairs {
		return a.gateFailVerdict(state, "max concurrent pairs reached")
	}
	if !state.DailyPnL.GreaterThan(cfg.Limits.DailyLossLimit.Neg()) {
		return a.gateFailVerdict(state, "daily loss limit breached")
	}
	exposureCap := state.Balance.Mul(cfg.Limits.MaxExposureFrac)
	if state.OpenNotional.GreaterThan(exposureCap) {
		return a.gateFailVerdict(state, "exposure cap breached")
	}
	if !state.MaxEquity.IsZero() {
		drawdown := state.MaxEquity.Sub(state.CurrentEquity).Div(state.MaxEquity)
		if drawdown.GreaterThan(cfg.Limits.MaxDrawdown) {
			return a.gateFailVerdict(state, "drawdown limit breached")
		}
	}
	return types.RiskSafe, ""
}

func (a *Agent) gateFailVerdict(state BookState, reason string) (types.RiskVerdict, string) {
	if state.OpenPositions > 0 {
		return types.RiskClose, reason
	}
	return types.RiskPause, reason
}

// ExitDecision is the per-position outcome of the exit-rule ladder.
type ExitDecision struct {
	Close  bool
	Reason types.CloseReason
}

// PositionExit evaluates one open position's exit-rule ladder, given its
// live unrealized P&L percentage (signed so that positive always means
// favorable) and the current z-score. Takes a pointer because arming the
// trailing stop writes pos.MaxProfitPct back onto the caller's
// authoritative stored position.
func (a *Agent) PositionExit(pos *types.Position, now time.Time) ExitDecision {
	cfg := a.Config()

	if pos.UnrealizedPnL.LessThan(decimal.NewFromInt(emergencyStopLoss)) {
		return ExitDecision{Close: true, Reason: types.CloseReasonEmergencyStop}
	}

	held := pos.HeldFor(now)
	if held < minHoldDuration {
		return ExitDecision{Close: false}
	}

	pnlPct := positionPnLPct(*pos)

	if pnlPct.GreaterThanOrEqual(decimal.NewFromFloat(quickProfitPct)) {
		return ExitDecision{Close: true, Reason: types.CloseReasonQuickProfit}
	}
	if !pnlPct.IsNegative() && held >= breakEvenHold {
		return ExitDecision{Close: true, Reason: types.CloseReasonBreakEven}
	}

	if pnlPct.GreaterThanOrEqual(decimal.NewFromFloat(trailingArmPct)) {
		if pos.MaxProfitPct == nil || pnlPct.GreaterThan(*pos.MaxProfitPct) {
			armed := pnlPct
			pos.MaxProfitPct = &armed
		}
	}
	if pos.MaxProfitPct != nil {
		giveback := pos.MaxProfitPct.Sub(decimal.NewFromFloat(trailingGivebackPct))
		if pnlPct.LessThan(giveback) {
			return ExitDecision{Close: true, Reason: types.CloseReasonTrailingStop}
		}
	}

	if pnlPct.LessThanOrEqual(decimal.NewFromFloat(hardStopPct)) {
		return ExitDecision{Close: true, Reason: types.CloseReasonHardStop}
	}

	absZ := pos.CurrentZScore.Abs()
	if absZ.GreaterThan(cfg.ZScoreStoplossThreshold) {
		return ExitDecision{Close: true, Reason: types.CloseReasonZScoreStop}
	}
	if absZ.LessThan(cfg.ZScoreExitThreshold) {
		return ExitDecision{Close: true, Reason: types.CloseReasonMeanReversion}
	}

	if held > time.Duration(cfg.MaxHoldingHours)*time.Hour {
		return ExitDecision{Close: true, Reason: types.CloseReasonMaxHoldingTime}
	}

	return ExitDecision{Close: false}
}

// positionPnLPct returns unrealized P&L as a fraction of the two legs'
// combined entry notional.
func positionPnLPct(pos types.Position) decimal.Decimal {
	entryNotional := pos.QtyA.Mul(pos.EntryPriceA).Add(pos.QtyB.Mul(pos.EntryPriceB))
	if entryNotional.IsZero() {
		return decimal.Zero
	}
	return pos.UnrealizedPnL.Div(entryNotional)
}
