// Package utils provides utility functions for the trading backend.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// GenerateID generates a unique ID with optional prefix.
func GenerateID(prefix string) string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	id := hex.EncodeToString(bytes)
	if prefix != "" {
		return fmt.Sprintf("%s_%s", prefix, id)
	}
	return id
}

// GenerateOrderID generates a unique order ID.
func GenerateOrderID() string {
	return GenerateID("ord")
}

// CalculateMean calculates the mean of decimal values.
func CalculateMean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}

	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}

	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// CalculateStdDev calculates standard deviation of decimal values.
func CalculateStdDev(values []decimal.Decimal) decimal.Decimal {
	if len(values) < 2 {
		return decimal.Zero
	}

	mean := CalculateMean(values)

	sumSquares := decimal.Zero
	for _, v := range values {
		diff := v.Sub(mean)
		sumSquares = sumSquares.Add(diff.Mul(diff))
	}

	variance := sumSquares.Div(decimal.NewFromInt(int64(len(values) - 1)))
	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
}

// MinDecimal returns the minimum of two decimals.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxDecimal returns the maximum of two decimals.
func MaxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// ClampDecimal clamps a value between min and max.
func ClampDecimal(value, min, max decimal.Decimal) decimal.Decimal {
	if value.LessThan(min) {
		return min
	}
	if value.GreaterThan(max) {
		return max
	}
	return value
}

// PearsonCorrelation computes the Pearson correlation coefficient between
// two equal-length decimal series. Returns zero if either series has zero
// variance or fewer than two points.
func PearsonCorrelation(x, y []decimal.Decimal) decimal.Decimal {
	n := len(x)
	if n < 2 || n != len(y) {
		return decimal.Zero
	}

	meanX := CalculateMean(x)
	meanY := CalculateMean(y)

	var cov, varX, varY decimal.Decimal
	for i := 0; i < n; i++ {
		dx := x[i].Sub(meanX)
		dy := y[i].Sub(meanY)
		cov = cov.Add(dx.Mul(dy))
		varX = varX.Add(dx.Mul(dx))
		varY = varY.Add(dy.Mul(dy))
	}

	denom := varX.Mul(varY)
	if denom.Sign() <= 0 {
		return decimal.Zero
	}
	return cov.Div(decimal.NewFromFloat(math.Sqrt(denom.InexactFloat64())))
}

// OLSResult holds the output of a simple linear regression y = alpha + beta*x + resid.
type OLSResult struct {
	Alpha     decimal.Decimal
	Beta      decimal.Decimal
	Residuals []decimal.Decimal
}

// OLSRegress performs ordinary least squares of y on x (y = alpha + beta*x).
// Returns ok=false when x has zero variance (beta undefined).
func OLSRegress(x, y []decimal.Decimal) (OLSResult, bool) {
	n := len(x)
	if n < 2 || n != len(y) {
		return OLSResult{}, false
	}

	meanX := CalculateMean(x)
	meanY := CalculateMean(y)

	var covXY, varX decimal.Decimal
	for i := 0; i < n; i++ {
		dx := x[i].Sub(meanX)
		dy := y[i].Sub(meanY)
		covXY = covXY.Add(dx.Mul(dy))
		varX = varX.Add(dx.Mul(dx))
	}

	if varX.IsZero() {
		return OLSResult{}, false
	}

	beta := covXY.Div(varX)
	alpha := meanY.Sub(beta.Mul(meanX))

	residuals := make([]decimal.Decimal, n)
	for i := 0; i < n; i++ {
		fitted := alpha.Add(beta.Mul(x[i]))
		residuals[i] = y[i].Sub(fitted)
	}

	return OLSResult{Alpha: alpha, Beta: beta, Residuals: residuals}, true
}

// ADFResult holds the output of an Augmented Dickey-Fuller unit-root test.
type ADFResult struct {
	Statistic float64
	PValue    float64
}

// adfCriticalValues and adfCriticalPValues approximate MacKinnon's response
// surface for the constant-only ("c") regression, maxlag=1, via linear
// interpolation over a coarse table. This mirrors the statsmodels defaults
// the source calls with (maxlag=1, regression='c') without pulling in a
// numerical-methods dependency the rest of the pack never uses.
var adfCriticalValues = []float64{-3.75, -3.0, -2.6, -1.95, -1.6, -1.0, 0.0, 1.0}
var adfCriticalPValues = []float64{0.01, 0.05, 0.10, 0.20, 0.30, 0.50, 0.80, 0.95}

// ADFTest runs an Augmented Dickey-Fuller test with a constant regression
// term and a single lagged difference (maxlag=1), matching
// statsmodels.tsa.stattools.adfuller(series, maxlag=1, regression='c').
// Returns ok=false when there is insufficient data, zero variance, or
// exactly collinear regressors.
func ADFTest(series []decimal.Decimal) (ADFResult, bool) {
	n := len(series)
	if n < 4 {
		return ADFResult{}, false
	}

	// Build the regression: delta(y_t) = c + gamma*y_{t-1} + phi*delta(y_{t-1}) + e_t
	lvl := make([]float64, n)
	for i, v := range series {
		lvl[i] = v.InexactFloat64()
	}

	diff := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff[i-1] = lvl[i] - lvl[i-1]
	}

	// Rows usable once the single lag of the difference is available.
	rows := len(diff) - 1
	if rows < 2 {
		return ADFResult{}, false
	}

	// Design matrix columns: [1, y_{t-1}, delta(y_{t-1})], target: delta(y_t)
	var sumY, sumYY, sumD, sumDD, sumYD, sumTY, sumTD, sumT float64
	target := make([]float64, rows)
	yLag := make([]float64, rows)
	dLag := make([]float64, rows)
	for i := 0; i < rows; i++ {
		target[i] = diff[i+1]
		yLag[i] = lvl[i+1]
		dLag[i] = diff[i]
		sumY += yLag[i]
		sumYY += yLag[i] * yLag[i]
		sumD += dLag[i]
		sumDD += dLag[i] * dLag[i]
		sumYD += yLag[i] * dLag[i]
		sumTY += target[i] * yLag[i]
		sumTD += target[i] * dLag[i]
		sumT += target[i]
	}
	m := float64(rows)

	// Solve the 3x3 normal equations for [c, gamma, phi] directly.
	// Centered sums remove the intercept from the 2x2 system first.
	meanY := sumY / m
	meanD := sumD / m
	meanT := sumT / m

	sYY := sumYY - m*meanY*meanY
	sDD := sumDD - m*meanD*meanD
	sYD := sumYD - m*meanY*meanD
	sTY := sumTY - m*meanT*meanY
	sTD := sumTD - m*meanT*meanD

	det := sYY*sDD - sYD*sYD
	if math.Abs(det) < 1e-12 {
		return ADFResult{}, false
	}

	gamma := (sTY*sDD - sTD*sYD) / det
	phi := (sTD*sYY - sTY*sYD) / det
	c := meanT - gamma*meanY - phi*meanD

	// Residual variance for gamma's standard error.
	var ssr float64
	for i := 0; i < rows; i++ {
		fitted := c + gamma*yLag[i] + phi*dLag[i]
		resid := target[i] - fitted
		ssr += resid * resid
	}
	dof := m - 3
	if dof < 1 {
		return ADFResult{}, false
	}
	sigma2 := ssr / dof
	seGamma := math.Sqrt(sigma2 * sDD / det)
	if seGamma == 0 {
		return ADFResult{}, false
	}

	tStat := gamma / seGamma
	return ADFResult{Statistic: tStat, PValue: interpolatePValue(tStat)}, true
}

func interpolatePValue(stat float64) float64 {
	if stat <= adfCriticalValues[0] {
		return adfCriticalPValues[0]
	}
	last := len(adfCriticalValues) - 1
	if stat >= adfCriticalValues[last] {
		return adfCriticalPValues[last]
	}
	for i := 0; i < last; i++ {
		lo, hi := adfCriticalValues[i], adfCriticalValues[i+1]
		if stat >= lo && stat <= hi {
			frac := (stat - lo) / (hi - lo)
			return adfCriticalPValues[i] + frac*(adfCriticalPValues[i+1]-adfCriticalPValues[i])
		}
	}
	return 1.0
}

// RSI computes the Relative Strength Index over the given period using
// simple (not exponential) moving averages of gains and losses.
func RSI(prices []decimal.Decimal, period int) decimal.Decimal {
	if len(prices) < period+1 {
		return decimal.NewFromInt(50)
	}

	start := len(prices) - period - 1
	var gainSum, lossSum decimal.Decimal
	for i := start + 1; i < len(prices); i++ {
		delta := prices[i].Sub(prices[i-1])
		if delta.Sign() > 0 {
			gainSum = gainSum.Add(delta)
		} else {
			lossSum = lossSum.Add(delta.Abs())
		}
	}

	periods := decimal.NewFromInt(int64(period))
	avgGain := gainSum.Div(periods)
	avgLoss := lossSum.Div(periods)

	if avgLoss.IsZero() {
		if avgGain.IsZero() {
			return decimal.NewFromInt(50)
		}
		return decimal.NewFromInt(100)
	}

	rs := avgGain.Div(avgLoss)
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// ATRBar is the minimal bar shape ATR needs.
type ATRBar struct {
	High, Low, Close decimal.Decimal
}

// ATR computes the Average True Range over the given period of OHLCV bars.
func ATR(bars []ATRBar, period int) decimal.Decimal {
	if len(bars) < period+1 {
		return decimal.Zero
	}

	start := len(bars) - period
	var sum decimal.Decimal
	for i := start; i < len(bars); i++ {
		high, low, prevClose := bars[i].High, bars[i].Low, bars[i-1].Close
		tr := MaxDecimal(high.Sub(low), MaxDecimal(high.Sub(prevClose).Abs(), low.Sub(prevClose).Abs()))
		sum = sum.Add(tr)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}
