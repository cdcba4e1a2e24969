// Package execution drives a Broker through the smart per-leg order
// routine and the two-leg atomic entry/exit a pair trade needs: a thin
// driver holding no multi-exchange order book, only the bookkeeping
// needed to retry and compensate a two-leg trade.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/pairs-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	entryLimitOffset = 0.0003
	exitLimitOffset  = 0.0005
	entryWait        = 1500 * time.Millisecond
	exitWait         = 2 * time.Second
	legPacingDelay   = 100 * time.Millisecond
	limitAttempts    = 3
)

type symbolLimits struct {
	precision int32
	min       decimal.Decimal
	max       decimal.Decimal
	minPrice  decimal.Decimal
}

var defaultSymbolLimits = symbolLimits{precision: 2, min: decimal.NewFromFloat(0.01), max: decimal.NewFromInt(1_000_000)}

var knownSymbolLimits = map[string]symbolLimits{
	"BTCUSDT": {precision: 3, min: decimal.NewFromFloat(0.001), max: decimal.NewFromInt(100), minPrice: decimal.NewFromInt(10_000)},
	"ETHUSDT": {precision: 2, min: decimal.NewFromFloat(0.01), max: decimal.NewFromInt(1000), minPrice: decimal.NewFromInt(500)},
	"SOLUSDT": {precision: 1, min: decimal.NewFromFloat(0.01), max: decimal.NewFromInt(10_000), minPrice: decimal.NewFromInt(10)},
	"AVAXUSDT": {precision: 1, min: decimal.NewFromFloat(0.01), max: decimal.NewFromInt(10_000)},
	"XRPUSDT": {precision: 0, min: decimal.NewFromFloat(0.01), max: decimal.NewFromInt(50_000_000)},
	"DOGEUSDT": {precision: 0, min: decimal.NewFromFloat(0.01), max: decimal.NewFromInt(50_000_000)},
	"ADAUSDT": {precision: 0, min: decimal.NewFromFloat(0.01), max: decimal.NewFromInt(50_000_000)},
}

func limitsFor(symbol string) symbolLimits {
	if l, ok := knownSymbolLimits[symbol]; ok {
		return l
	}
	return defaultSymbolLimits
}

// LegResult is the filled outcome of one leg's smart order.
type LegResult struct {
	FilledQty decimal.Decimal
	AvgPrice  decimal.Decimal
}

// OrderManager drives a single Broker through quantity/price validation,
// the per-leg smart-order retry ladder, and two-leg atomic execution.
type OrderManager struct {
	logger  *zap.Logger
	broker  Broker
	limiter *RateLimiter
}

// NewOrderManager builds an OrderManager over broker, rate-limited by limiter.
func NewOrderManager(logger *zap.Logger, broker Broker, limiter *RateLimiter) *OrderManager {
	return &OrderManager{
		logger:  logger.Named("order-manager"),
		broker:  broker,
		limiter: limiter,
	}
}

// DeriveQuantity converts a USD notional into a per-symbol-rounded
// quantity and rejects it if it falls outside the symbol's hard bounds.
func (om *OrderManager) DeriveQuantity(symbol string, notionalUSD, price decimal.Decimal) (decimal.Decimal, error) {
	if price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("order manager: non-positive price for %s", symbol)
	}
	limits := limitsFor(symbol)
	qty := notionalUSD.Div(price).Round(limits.precision)

	if qty.LessThan(limits.min) {
		return decimal.Zero, fmt.Errorf("order manager: quantity %s below minimum %s for %s", qty, limits.min, symbol)
	}
	if qty.GreaterThan(limits.max) {
		return decimal.Zero, fmt.Errorf("order manager: quantity %s exceeds cap %s for %s", qty, limits.max, symbol)
	}
	return qty, nil
}

// ValidatePrice rejects non-positive or implausible prices, attempting one
// REST re-fetch through the broker before giving up.
func (om *OrderManager) ValidatePrice(ctx context.Context, symbol string, price decimal.Decimal) (decimal.Decimal, error) {
	if om.priceIsSane(symbol, price) {
		return price, nil
	}

	refetched, err := om.broker.GetPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("order manager: implausible price for %s and re-fetch failed: %w", symbol, err)
	}
	if !om.priceIsSane(symbol, refetched) {
		return decimal.Zero, fmt.Errorf("order manager: re-fetched price for %s still implausible", symbol)
	}
	return refetched, nil
}

func (om *OrderManager) priceIsSane(symbol string, price decimal.Decimal) bool {
	if price.Sign() <= 0 {
		return false
	}
	limits := limitsFor(symbol)
	if !limits.minPrice.IsZero() && price.LessThan(limits.minPrice) {
		return false
	}
	return true
}

// SmartOrder executes a single leg: up to three limit attempts at
// increasing offset, falling back to a market order for any quantity
// still unfilled. isEntry selects the entry/exit offset and wait profile.
func (om *OrderManager) SmartOrder(ctx context.Context, symbol string, side types.OrderSide, qty, price decimal.Decimal, reduceOnly, isEntry bool) (LegResult, error) {
	delta := exitLimitOffset
	wait := exitWait
	if isEntry {
		delta = entryLimitOffset
		wait = entryWait
	}

	remaining := qty
	var filled decimal.Decimal
	var notional decimal.Decimal

	for k := 0; k < limitAttempts && remaining.Sign() > 0; k++ {
		offset := decimal.NewFromFloat(delta).Mul(decimal.NewFromInt(int64(k)))
		var limitPrice decimal.Decimal
		if side == types.OrderSideBuy {
			limitPrice = price.Mul(decimal.NewFromInt(1).Add(offset))
		} else {
			limitPrice = price.Mul(decimal.NewFromInt(1).Sub(offset))
		}

		om.limiter.Acquire()
		order, err := om.broker.PlaceOrder(ctx, types.Order{
			Symbol:     symbol,
			Side:       side,
			Type:       types.OrderTypeLimit,
			Quantity:   remaining,
			Price:      limitPrice,
			ReduceOnly: reduceOnly,
		})
		if err != nil {
			om.limiter.OnBrokerError()
			om.logger.Warn("limit order placement failed", zap.String("symbol", symbol), zap.Int("attempt", k), zap.Error(err))
			continue
		}
		om.limiter.OnBrokerSuccess()

		time.Sleep(wait)

		status, err := om.broker.GetOrder(ctx, symbol, order.ID)
		if err != nil {
			om.logger.Warn("order status query failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		switch status.Status {
		case types.OrderStatusFilled:
			filled = filled.Add(status.FilledQty)
			notional = notional.Add(status.FilledQty.Mul(status.AvgFillPrice))
			remaining = remaining.Sub(status.FilledQty)
			continue
		case types.OrderStatusPartiallyFilled:
			filled = filled.Add(status.FilledQty)
			notional = notional.Add(status.FilledQty.Mul(status.AvgFillPrice))
			remaining = remaining.Sub(status.FilledQty)
			_ = om.broker.CancelOrder(ctx, symbol, order.ID)
			continue
		default:
			_ = om.broker.CancelOrder(ctx, symbol, order.ID)
			continue
		}
	}

	if remaining.Sign() > 0 {
		om.limiter.Acquire()
		order, err := om.broker.PlaceOrder(ctx, types.Order{
			Symbol:     symbol,
			Side:       side,
			Type:       types.OrderTypeMarket,
			Quantity:   remaining,
			ReduceOnly: reduceOnly,
		})
		if err != nil {
			om.limiter.OnBrokerError()
			return LegResult{}, &ErrMarketOrderFailed{Symbol: symbol, Cause: err}
		}
		om.limiter.OnBrokerSuccess()
		filled = filled.Add(order.FilledQty)
		notional = notional.Add(order.FilledQty.Mul(order.AvgFillPrice))
	}

	if filled.IsZero() {
		return LegResult{}, fmt.Errorf("order manager: leg for %s filled nothing", symbol)
	}
	return LegResult{FilledQty: filled, AvgPrice: notional.Div(filled)}, nil
}

// ExecuteEntry places leg A, waits the pacing delay, then places leg B.
// If leg B fails, it immediately compensates by smart-exiting leg A with
// the opposite side and reduce_only=true rather than leaving it unhedged.
func (om *OrderManager) ExecuteEntry(ctx context.Context, symbolA, symbolB string, sideA, sideB types.OrderSide, qtyA, qtyB, priceA, priceB decimal.Decimal) (LegResult, LegResult, error) {
	legA, err := om.SmartOrder(ctx, symbolA, sideA, qtyA, priceA, false, true)
	if err != nil {
		return LegResult{}, LegResult{}, fmt.Errorf("entry leg a failed: %w", err)
	}

	time.Sleep(legPacingDelay)

	legB, err := om.SmartOrder(ctx, symbolB, sideB, qtyB, priceB, false, true)
	if err != nil {
		om.logger.Error("entry leg b failed, compensating leg a", zap.String("symbolA", symbolA), zap.Error(err))
		if _, compErr := om.SmartOrder(ctx, symbolA, sideA.Opposite(), legA.FilledQty, priceA, true, false); compErr != nil {
			om.logger.Error("leg a compensation failed, position left unhedged", zap.String("symbolA", symbolA), zap.Error(compErr))
			return legA, LegResult{}, fmt.Errorf("entry leg b failed and compensation failed: %w", compErr)
		}
		return LegResult{}, LegResult{}, fmt.Errorf("entry leg b failed, leg a compensated: %w", err)
	}

	return legA, legB, nil
}

// ExecuteExit smart-exits both legs (reduce_only=true). Exits are never
// rolled back: a market-order failure on either leg is reported up and the
// position remains open for human intervention.
func (om *OrderManager) ExecuteExit(ctx context.Context, symbolA, symbolB string, sideA, sideB types.OrderSide, qtyA, qtyB, priceA, priceB decimal.Decimal) (LegResult, LegResult, error) {
	legA, err := om.SmartOrder(ctx, symbolA, sideA, qtyA, priceA, true, false)
	if err != nil {
		return LegResult{}, LegResult{}, fmt.Errorf("exit leg a failed: %w", err)
	}

	legB, err := om.SmartOrder(ctx, symbolB, sideB, qtyB, priceB, true, false)
	if err != nil {
		return legA, LegResult{}, fmt.Errorf("exit leg b failed, leg a already closed: %w", err)
	}

	return legA, legB, nil
}
