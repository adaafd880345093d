package options

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
)

// DefaultImpliedVolatility is used when a snapshot reports none.
var DefaultImpliedVolatility = decimal.RequireFromString("0.30")

const tradingYearDays = 365.0

var standardNormal = distuv.Normal{Mu: 0, Sigma: 1}

// ExpectedMove is the one standard deviation move of the underlying until
// expiration: price * iv * sqrt(days / 365). Non-positive days or iv give zero.
func ExpectedMove(price, iv decimal.Decimal, daysToExpiration int) decimal.Decimal {
	if daysToExpiration <= 0 || !iv.IsPositive() || !price.IsPositive() {
		return decimal.Zero
	}
	years := math.Sqrt(float64(daysToExpiration) / tradingYearDays)
	return price.Mul(iv).Mul(decimal.NewFromFloat(years)).Round(5)
}

// ProbabilityOfProfit estimates, in percent, the chance the underlying
// finishes on the profitable side of breakeven at expiration under a
// lognormal model. Bullish spreads profit above breakeven, bearish below.
func ProbabilityOfProfit(direction models.DirectionType, price, breakeven decimal.Decimal, daysToExpiration int, iv decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || !breakeven.IsPositive() {
		return decimal.Zero
	}
	if !iv.IsPositive() {
		iv = DefaultImpliedVolatility
	}
	if daysToExpiration < 1 {
		daysToExpiration = 1
	}

	sigma := iv.InexactFloat64() * math.Sqrt(float64(daysToExpiration)/tradingYearDays)
	z := math.Log(breakeven.InexactFloat64()/price.InexactFloat64()) / sigma

	var p float64
	if direction == models.DirectionBearish {
		p = standardNormal.CDF(z)
	} else {
		p = 1 - standardNormal.CDF(z)
	}
	return decimal.NewFromFloat(p * 100).Round(2)
}
