// Package marketdata provides access to option chains, contract snapshots
// and underlying daily bars.
package marketdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
	"github.com/mousou2003/MouSouTrade-sub000/internal/options"
)

// Source is a market data provider. Missing data is reported with an error
// wrapping errors.ErrNoDataFound; retryable failures are *errors.SourceError
// with Transient set.
type Source interface {
	// GetOptionContracts lists the contracts of one type on underlying
	// expiring between expiryFrom and expiryTo inclusive, sorted by strike
	// in the given order.
	GetOptionContracts(ctx context.Context, underlying string, expiryFrom, expiryTo time.Time, contractType models.ContractType, order models.SortOrder) ([]models.Contract, error)
	GetSnapshot(ctx context.Context, underlying, optionTicker string) (*models.Snapshot, error)
	GetPreviousClose(ctx context.Context, ticker string) (decimal.Decimal, error)
	GetDailyBar(ctx context.Context, ticker string, date time.Time) (*models.DailyBar, error)
}

// PreviousDayBar returns the bar of the last market day before now, walking
// back over weekends.
func PreviousDayBar(ctx context.Context, src Source, ticker string, now time.Time) (*models.DailyBar, error) {
	return src.GetDailyBar(ctx, ticker, options.PreviousMarketOpenDay(now))
}
