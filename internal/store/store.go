// Package store provides persistence of spreads and daily performance.
package store

import (
	"context"
	"time"

	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
)

// SpreadStore defines the interface for spread persistence.
type SpreadStore interface {
	// Spreads
	Save(ctx context.Context, spread *models.Spread) (string, error)
	SaveAll(ctx context.Context, spreads []*models.Spread) error
	LoadByTicker(ctx context.Context, ticker string) ([]*models.Spread, error)
	LoadByGUID(ctx context.Context, guid string) (*models.Spread, error)
	LoadAll(ctx context.Context, filter SpreadFilter) ([]*models.Spread, error)

	// Performance
	SavePerformance(ctx context.Context, perf models.DailyPerformance) error
	LatestPerformance(ctx context.Context) (*models.DailyPerformance, error)
	PerformanceHistory(ctx context.Context, limit int) ([]models.DailyPerformance, error)

	// Job runs
	GetLastRun(job string) time.Time
	SetLastRun(job string, t time.Time) error

	// Lifecycle
	Close() error
}

// SpreadFilter represents filters for querying spreads.
type SpreadFilter struct {
	Ticker      string
	Status      models.TradeState
	MatchedOnly bool
	Limit       int
}
