package trading

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
	"github.com/mousou2003/MouSouTrade-sub000/internal/options"
)

// Candidate is a contract considered for a leg, with its index in the
// caller's contract list and its snapshot when one is known.
type Candidate struct {
	Contract *models.Contract
	Position int
	Snapshot *models.Snapshot
}

// SelectionRequest carries the inputs of one selection.
type SelectionRequest struct {
	Contracts    []models.Contract
	Snapshots    map[string]*models.Snapshot
	Underlying   string
	Role         options.LegRole
	Strategy     models.StrategyType
	Direction    models.DirectionType
	CurrentPrice decimal.Decimal
}

// ContractSelector narrows an option chain to the contracts eligible for a leg.
type ContractSelector interface {
	SelectContracts(req SelectionRequest) []Candidate
}

// StandardContractSelector keeps contracts of the type implied by the
// thesis on the requested underlying, optionally dropping strikes too far
// from the current price.
type StandardContractSelector struct {
	// MaxStrikeDistance is the largest |strike - price| / price kept.
	// Zero disables the filter.
	MaxStrikeDistance decimal.Decimal
}

// NewStandardContractSelector creates a selector with the given strike
// distance filter.
func NewStandardContractSelector(maxStrikeDistance decimal.Decimal) *StandardContractSelector {
	return &StandardContractSelector{MaxStrikeDistance: maxStrikeDistance}
}

// SelectContracts returns matching candidates in the original contract
// order. The result is empty, never nil-with-error, when nothing matches.
func (s *StandardContractSelector) SelectContracts(req SelectionRequest) []Candidate {
	contractType, ok := options.ContractTypeFor(req.Strategy, req.Direction)
	if !ok {
		return []Candidate{}
	}

	candidates := make([]Candidate, 0, len(req.Contracts))
	for i := range req.Contracts {
		c := &req.Contracts[i]
		if c.ContractType != contractType {
			continue
		}
		if !strings.EqualFold(c.UnderlyingTicker, req.Underlying) {
			continue
		}
		if s.tooFar(c.StrikePrice, req.CurrentPrice) {
			continue
		}
		candidates = append(candidates, Candidate{
			Contract: c,
			Position: i,
			Snapshot: req.Snapshots[c.Ticker],
		})
	}
	return candidates
}

func (s *StandardContractSelector) tooFar(strike, price decimal.Decimal) bool {
	if !s.MaxStrikeDistance.IsPositive() || !price.IsPositive() {
		return false
	}
	return strike.Sub(price).Abs().GreaterThan(price.Mul(s.MaxStrikeDistance))
}

// sortCandidates orders candidates by strike in the given direction,
// keeping the original order among equal strikes.
func sortCandidates(candidates []Candidate, order models.SortOrder) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].Contract.StrikePrice, candidates[j].Contract.StrikePrice
		if order == models.SortDesc {
			return a.GreaterThan(b)
		}
		return a.LessThan(b)
	})
}

// beyond reports whether strike lies past pivot in walk order.
func beyond(strike, pivot decimal.Decimal, order models.SortOrder) bool {
	if order == models.SortDesc {
		return strike.LessThan(pivot)
	}
	return strike.GreaterThan(pivot)
}
