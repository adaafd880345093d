package marketdata

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
	"github.com/mousou2003/MouSouTrade-sub000/internal/options"
)

// Underlying is the market data recorded for one underlying ticker.
type Underlying struct {
	Ticker        string
	PreviousClose decimal.Decimal
	Bars          []models.DailyBar
	Contracts     []models.Contract
	Snapshots     map[string]*models.Snapshot
}

// MemorySource serves market data from memory. It is safe for concurrent use.
type MemorySource struct {
	mu          sync.RWMutex
	underlyings map[string]*Underlying
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{underlyings: make(map[string]*Underlying)}
}

// Put stores or replaces the data of one underlying.
func (m *MemorySource) Put(u *Underlying) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Snapshots == nil {
		u.Snapshots = make(map[string]*models.Snapshot)
	}
	m.underlyings[strings.ToUpper(u.Ticker)] = u
}

// Tickers returns the stored underlyings in alphabetical order.
func (m *MemorySource) Tickers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tickers := make([]string, 0, len(m.underlyings))
	for t := range m.underlyings {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

func (m *MemorySource) lookup(ticker string) (*Underlying, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.underlyings[strings.ToUpper(ticker)]
	if !ok {
		return nil, apperrors.NoData("underlying", ticker, "unknown ticker")
	}
	return u, nil
}

// GetOptionContracts implements Source.
func (m *MemorySource) GetOptionContracts(ctx context.Context, underlying string, expiryFrom, expiryTo time.Time, contractType models.ContractType, order models.SortOrder) ([]models.Contract, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := m.lookup(underlying)
	if err != nil {
		return nil, err
	}

	contracts := make([]models.Contract, 0, len(u.Contracts))
	for _, c := range u.Contracts {
		if contractType != "" && c.ContractType != contractType {
			continue
		}
		if !expiryFrom.IsZero() && !options.OnOrAfter(c.ExpirationDate, expiryFrom) {
			continue
		}
		if !expiryTo.IsZero() && !options.OnOrAfter(expiryTo, c.ExpirationDate) {
			continue
		}
		contracts = append(contracts, c)
	}
	if len(contracts) == 0 {
		return nil, apperrors.NoData("contracts", underlying, "no contracts in expiration window")
	}

	sort.SliceStable(contracts, func(i, j int) bool {
		if order == models.SortDesc {
			return contracts[i].StrikePrice.GreaterThan(contracts[j].StrikePrice)
		}
		return contracts[i].StrikePrice.LessThan(contracts[j].StrikePrice)
	})
	return contracts, nil
}

// GetSnapshot implements Source.
func (m *MemorySource) GetSnapshot(ctx context.Context, underlying, optionTicker string) (*models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := m.lookup(underlying)
	if err != nil {
		return nil, err
	}
	s, ok := u.Snapshots[optionTicker]
	if !ok || s == nil {
		return nil, apperrors.NoData("snapshot", optionTicker, "no snapshot")
	}
	return s, nil
}

// GetPreviousClose implements Source. Without an explicit previous close the
// close of the latest bar is used.
func (m *MemorySource) GetPreviousClose(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	u, err := m.lookup(ticker)
	if err != nil {
		return decimal.Zero, err
	}
	if u.PreviousClose.IsPositive() {
		return u.PreviousClose, nil
	}

	var latest *models.DailyBar
	for i := range u.Bars {
		if latest == nil || u.Bars[i].Date.After(latest.Date) {
			latest = &u.Bars[i]
		}
	}
	if latest == nil || !latest.Close.IsPositive() {
		return decimal.Zero, apperrors.NoData("previous_close", ticker, "no close price")
	}
	return latest.Close, nil
}

// GetDailyBar implements Source.
func (m *MemorySource) GetDailyBar(ctx context.Context, ticker string, date time.Time) (*models.DailyBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := m.lookup(ticker)
	if err != nil {
		return nil, err
	}
	for i := range u.Bars {
		if options.DaysBetween(u.Bars[i].Date, date) == 0 {
			bar := u.Bars[i]
			return &bar, nil
		}
	}
	return nil, apperrors.NoData("daily_bar", ticker, "no bar on "+date.Format("2006-01-02"))
}
