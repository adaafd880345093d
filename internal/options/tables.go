// Package options holds the fixed lookup tables and option math used to
// build vertical spreads: contract type, chain walk order and strike search
// operator per (strategy, direction), leg-role delta bands, probability of
// profit and the expiration calendar.
package options

import (
	"github.com/shopspring/decimal"

	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
)

// Key indexes every per-(strategy, direction) table.
type Key struct {
	Strategy  models.StrategyType
	Direction models.DirectionType
}

// SearchOp reports whether a strike is on the searchable side of the
// previous close. It is always applied as op(previousClose, strike).
type SearchOp func(previousClose, strike decimal.Decimal) bool

// GreaterOrEqual is previousClose >= strike.
func GreaterOrEqual(previousClose, strike decimal.Decimal) bool {
	return previousClose.GreaterThanOrEqual(strike)
}

// LessOrEqual is previousClose <= strike.
func LessOrEqual(previousClose, strike decimal.Decimal) bool {
	return previousClose.LessThanOrEqual(strike)
}

var contractTypes = map[Key]models.ContractType{
	{models.StrategyCredit, models.DirectionBullish}: models.ContractTypePut,
	{models.StrategyCredit, models.DirectionBearish}: models.ContractTypeCall,
	{models.StrategyDebit, models.DirectionBullish}:  models.ContractTypeCall,
	{models.StrategyDebit, models.DirectionBearish}:  models.ContractTypePut,
}

var requestOrders = map[Key]models.SortOrder{
	{models.StrategyCredit, models.DirectionBullish}: models.SortDesc,
	{models.StrategyCredit, models.DirectionBearish}: models.SortAsc,
	{models.StrategyDebit, models.DirectionBullish}:  models.SortAsc,
	{models.StrategyDebit, models.DirectionBearish}:  models.SortDesc,
}

var searchOps = map[Key]SearchOp{
	{models.StrategyCredit, models.DirectionBullish}: GreaterOrEqual,
	{models.StrategyCredit, models.DirectionBearish}: LessOrEqual,
	{models.StrategyDebit, models.DirectionBullish}:  LessOrEqual,
	{models.StrategyDebit, models.DirectionBearish}:  GreaterOrEqual,
}

// ContractTypeFor returns the option type traded for a thesis.
func ContractTypeFor(strategy models.StrategyType, direction models.DirectionType) (models.ContractType, bool) {
	ct, ok := contractTypes[Key{strategy, direction}]
	return ct, ok
}

// RequestOrderFor returns the strike order the chain is walked in.
func RequestOrderFor(strategy models.StrategyType, direction models.DirectionType) (models.SortOrder, bool) {
	order, ok := requestOrders[Key{strategy, direction}]
	return order, ok
}

// SearchOpFor returns the strike filter used by the first-leg pass.
func SearchOpFor(strategy models.StrategyType, direction models.DirectionType) (SearchOp, bool) {
	op, ok := searchOps[Key{strategy, direction}]
	return op, ok
}

// FirstLegIsShort reports whether the first selected leg is sold. Credit
// spreads sell the leg nearest the money; debit spreads buy it.
func FirstLegIsShort(strategy models.StrategyType) bool {
	return strategy == models.StrategyCredit
}

// DirectionSign is +1 for bullish and -1 for bearish.
func DirectionSign(direction models.DirectionType) decimal.Decimal {
	if direction == models.DirectionBearish {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// LegRole is the delta profile a leg is selected for.
type LegRole string

const (
	// RoleDirectional is the first leg, nearer the money.
	RoleDirectional LegRole = "DIRECTIONAL"
	// RoleHighProbability is the second leg, further out of the money.
	RoleHighProbability LegRole = "HIGH_PROBABILITY"
)

// DeltaRange is an inclusive band of absolute deltas.
type DeltaRange struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Contains reports whether |delta| lies inside the band.
func (r DeltaRange) Contains(delta decimal.Decimal) bool {
	d := delta.Abs()
	return d.GreaterThanOrEqual(r.Min) && d.LessThanOrEqual(r.Max)
}

// Valid reports whether the band is well formed.
func (r DeltaRange) Valid() bool {
	return !r.Min.IsNegative() && r.Min.LessThanOrEqual(r.Max) && r.Max.LessThanOrEqual(decimal.NewFromInt(1))
}

// Default delta bands per leg role.
var (
	DefaultDirectionalRange = DeltaRange{
		Min: decimal.RequireFromString("0.45"),
		Max: decimal.RequireFromString("0.70"),
	}
	DefaultHighProbabilityRange = DeltaRange{
		Min: decimal.RequireFromString("0.10"),
		Max: decimal.RequireFromString("0.30"),
	}
)

// DeltaRanges maps each leg role to its band.
type DeltaRanges map[LegRole]DeltaRange

// DefaultDeltaRanges returns a fresh copy of the default bands.
func DefaultDeltaRanges() DeltaRanges {
	return DeltaRanges{
		RoleDirectional:     DefaultDirectionalRange,
		RoleHighProbability: DefaultHighProbabilityRange,
	}
}

// For returns the band for a role, falling back to the defaults.
func (d DeltaRanges) For(role LegRole) DeltaRange {
	if r, ok := d[role]; ok {
		return r
	}
	return DefaultDeltaRanges()[role]
}

var standardWidths = []decimal.Decimal{
	decimal.NewFromInt(1),
	decimal.RequireFromString("2.5"),
	decimal.NewFromInt(5),
	decimal.NewFromInt(10),
	decimal.NewFromInt(25),
	decimal.NewFromInt(50),
}

// IsStandardWidth reports whether a strike distance is one of the widths
// commonly quoted by market makers.
func IsStandardWidth(width decimal.Decimal) bool {
	for _, w := range standardWidths {
		if w.Equal(width) {
			return true
		}
	}
	return false
}

// RoundToStandardWidth returns the standard width nearest to width.
func RoundToStandardWidth(width decimal.Decimal) decimal.Decimal {
	best := standardWidths[0]
	bestDiff := width.Sub(best).Abs()
	for _, w := range standardWidths[1:] {
		if diff := width.Sub(w).Abs(); diff.LessThan(bestDiff) {
			best, bestDiff = w, diff
		}
	}
	return best
}
