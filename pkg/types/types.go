// Package types provides shared type definitions for the pair-trading engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType represents the type of order sent to the broker.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus represents the lifecycle state of an order at the broker.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// IsTerminal reports whether the order will not transition further on its own.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// Order is a single-leg order submitted to a Broker.
type Order struct {
	ID            string          `json:"id"`
	ClientOrderID string          `json:"clientOrderId,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          OrderSide       `json:"side"`
	Type          OrderType       `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price,omitempty"`
	ReduceOnly    bool            `json:"reduceOnly"`
	Status        OrderStatus     `json:"status"`
	FilledQty     decimal.Decimal `json:"filledQty"`
	AvgFillPrice  decimal.Decimal `json:"avgFillPrice"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// PositionSide represents long or short.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Opposite returns the other side.
func (s PositionSide) Opposite() PositionSide {
	if s == PositionSideLong {
		return PositionSideShort
	}
	return PositionSideLong
}

// OHLCV represents a single candlestick.
type OHLCV struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Tick is a single timestamped price sample for one symbol.
type Tick struct {
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

// OrderBookLevel is a single price/size level.
type OrderBookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderBookSnapshot is a symbol's order book, bids descending by price, asks ascending.
type OrderBookSnapshot struct {
	Symbol     string           `json:"symbol"`
	Bids       []OrderBookLevel `json:"bids"`
	Asks       []OrderBookLevel `json:"asks"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// BestBid returns the top bid level and whether one exists.
func (b OrderBookSnapshot) BestBid() (OrderBookLevel, bool) {
	if len(b.Bids) == 0 {
		return OrderBookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask level and whether one exists.
func (b OrderBookSnapshot) BestAsk() (OrderBookLevel, bool) {
	if len(b.Asks) == 0 {
		return OrderBookLevel{}, false
	}
	return b.Asks[0], true
}

// PairConfig names a tradeable symbol pair.
type PairConfig struct {
	SymbolA string `json:"symbolA" mapstructure:"symbol_a"`
	SymbolB string `json:"symbolB" mapstructure:"symbol_b"`
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
}

// PairID returns the canonical "<symbol_a>_<symbol_b>" identifier.
func (p PairConfig) PairID() string {
	return p.SymbolA + "_" + p.SymbolB
}

// StrategyAction is the sum type every strategy and the aggregator emit.
type StrategyAction string

const (
	ActionHold        StrategyAction = "hold"
	ActionLongSpread  StrategyAction = "long_spread"
	ActionShortSpread StrategyAction = "short_spread"
	ActionClose       StrategyAction = "close"
)

// IsEntry reports whether the action opens a new spread position.
func (a StrategyAction) IsEntry() bool {
	return a == ActionLongSpread || a == ActionShortSpread
}

// StrategyName identifies one of the four fixed strategies.
type StrategyName string

const (
	StrategyEngleGranger      StrategyName = "engle_granger"
	StrategyOrderBookImbalance StrategyName = "orderbook_imbalance"
	StrategyCorrelationRSI    StrategyName = "correlation_rsi"
	StrategyMeanReversion     StrategyName = "mean_reversion"
)

// StrategySignal is the result of evaluating one strategy on one pair.
// Hold implies no position change, regardless of what diagnostics carry.
type StrategySignal struct {
	Strategy    StrategyName
	Action      StrategyAction
	Confidence  float64 // in [0,1]
	Reason      string
	Diagnostics map[string]any
}

// ConsensusLabel classifies how strongly the four strategies agree.
type ConsensusLabel string

const (
	ConsensusStrong      ConsensusLabel = "strong"
	ConsensusModerate    ConsensusLabel = "moderate"
	ConsensusWeak        ConsensusLabel = "weak"
	ConsensusConflicting ConsensusLabel = "conflicting"
)

// Decision is produced by the Orchestrator and consumed by the Engine.
type Decision struct {
	PairID       string
	SymbolA      string
	SymbolB      string
	Action       StrategyAction
	Confidence   float64
	Reason       string
	SizeAUSD     decimal.Decimal
	SizeBUSD     decimal.Decimal
	HedgeRatio   decimal.Decimal
	StrategyName StrategyName // empty in consensus mode
	Consensus    ConsensusLabel
	ZScore       decimal.Decimal
	Metadata     map[string]any
}

// Position is a two-leg, market-neutral spread position.
// Invariants: SideA != SideB; QtyA, QtyB > 0. Owned exclusively by PositionManager.
type Position struct {
	PairID     string
	SymbolA    string
	SymbolB    string
	SideA      PositionSide
	SideB      PositionSide
	QtyA       decimal.Decimal
	QtyB       decimal.Decimal

	EntryPriceA   decimal.Decimal
	EntryPriceB   decimal.Decimal
	CurrentPriceA decimal.Decimal
	CurrentPriceB decimal.Decimal

	HedgeRatio    decimal.Decimal
	EntryZScore   decimal.Decimal
	CurrentZScore decimal.Decimal

	EntryTime     time.Time
	UnrealizedPnL decimal.Decimal
	MaxProfitPct  *decimal.Decimal // nil until trailing-stop arms

	StrategyName StrategyName
}

// NotionalUSD returns the current mark-to-market notional of both legs.
func (p Position) NotionalUSD() decimal.Decimal {
	return p.QtyA.Mul(p.CurrentPriceA).Add(p.QtyB.Mul(p.CurrentPriceB))
}

// HeldFor returns how long the position has been open as of now.
func (p Position) HeldFor(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// CloseReason documents why a position or smart-order leg was closed.
type CloseReason string

const (
	CloseReasonEmergencyStop   CloseReason = "emergency_stop"
	CloseReasonQuickProfit     CloseReason = "quick_profit"
	CloseReasonBreakEven       CloseReason = "break_even"
	CloseReasonTrailingStop    CloseReason = "trailing_stop"
	CloseReasonHardStop        CloseReason = "hard_stop"
	CloseReasonZScoreStop      CloseReason = "zscore_stop"
	CloseReasonMeanReversion   CloseReason = "mean_reversion"
	CloseReasonMaxHoldingTime  CloseReason = "max_holding_time"
	CloseReasonRiskViolation   CloseReason = "risk_violation"
	CloseReasonStrategySignal  CloseReason = "strategy_signal"
	CloseReasonShutdown        CloseReason = "shutdown"
	CloseReasonLegBCompensated CloseReason = "leg_b_failure_compensation"
)

// TakerFee is the fixed per-side taker fee assumed for commission accounting.
const TakerFee = 0.0006

// Trade is the immutable record of a closed Position.
type Trade struct {
	PairID      string
	SymbolA     string
	SymbolB     string
	SideA       PositionSide
	SideB       PositionSide
	QtyA        decimal.Decimal
	QtyB        decimal.Decimal

	EntryPriceA decimal.Decimal
	EntryPriceB decimal.Decimal
	ExitPriceA  decimal.Decimal
	ExitPriceB  decimal.Decimal

	EntryTime time.Time
	ExitTime  time.Time

	PnL        decimal.Decimal
	PnLPercent decimal.Decimal
	Commission decimal.Decimal
	Reason     CloseReason

	StrategyName StrategyName
}

// DurationMinutes returns the holding period in minutes.
func (t Trade) DurationMinutes() float64 {
	return t.ExitTime.Sub(t.EntryTime).Minutes()
}

// RiskLimits bounds exposure and sizing for the whole book.
type RiskLimits struct {
	MaxConcurrentPairs int
	DailyLossLimit     decimal.Decimal
	RiskPerTrade       decimal.Decimal // fraction of balance
	MaxPositionSize    decimal.Decimal // USD
	MaxDrawdown        decimal.Decimal // fraction, default 0.20
	MaxExposureFrac    decimal.Decimal // fraction of balance, default 0.80
}

// DefaultRiskLimits returns the engine's stated global defaults.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxConcurrentPairs: 5,
		DailyLossLimit:     decimal.NewFromInt(500),
		RiskPerTrade:       decimal.NewFromFloat(0.02),
		MaxPositionSize:    decimal.NewFromInt(2000),
		MaxDrawdown:        decimal.NewFromFloat(0.20),
		MaxExposureFrac:    decimal.NewFromFloat(0.80),
	}
}

// SessionStats aggregates closed-trade performance for the running session.
type SessionStats struct {
	TotalTrades  int
	Wins         int
	Losses       int
	TotalPnL     decimal.Decimal
	DailyPnL     decimal.Decimal
	WinRate      decimal.Decimal
	Sharpe       decimal.Decimal
	ProfitFactor decimal.Decimal
	MaxDrawdown  decimal.Decimal
	MaxEquity    decimal.Decimal
}

// RiskVerdict is the result of the RiskAgent's pre-trade gate.
type RiskVerdict string

const (
	RiskSafe  RiskVerdict = "safe"
	RiskPause RiskVerdict = "pause"
	RiskClose RiskVerdict = "close"
)
