// Package trading builds and audits vertical option spreads: contract
// selection, two-pass spread matching, strategy validation and the scan
// pipeline that runs them over a watchlist.
package trading

import (
	"context"

	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
)

// Matcher fills a spread from an option chain.
type Matcher interface {
	Match(ctx context.Context, spread *models.Spread, chain Chain) (bool, error)
}

// SpreadSaver persists scanned spreads.
type SpreadSaver interface {
	SaveAll(ctx context.Context, spreads []*models.Spread) error
}

// Validator audits spreads and reports human-readable problems.
type Validator interface {
	ValidateSpread(s *models.Spread) []string
	ValidateSpreads(spreads []*models.Spread) []string
}

var (
	_ Matcher   = (*VerticalSpread)(nil)
	_ Validator = (*StrategyValidator)(nil)
)
