package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
)

var expiration = time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "spreads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func matchedSpread(ticker string) *models.Spread {
	s := models.NewSpread(ticker, models.StrategyCredit, models.DirectionBullish)
	s.ContractType = models.ContractTypePut
	s.ShortContract = &models.Contract{
		Ticker:           "O:SPY250321P00095000",
		UnderlyingTicker: ticker,
		ContractType:     models.ContractTypePut,
		StrikePrice:      decimal.NewFromInt(95),
		ExpirationDate:   expiration,
	}
	s.LongContract = &models.Contract{
		Ticker:           "O:SPY250321P00090000",
		UnderlyingTicker: ticker,
		ContractType:     models.ContractTypePut,
		StrikePrice:      decimal.NewFromInt(90),
		ExpirationDate:   expiration,
	}
	s.NetPremium = decimal.RequireFromString("1.14")
	s.MaxReward = decimal.NewFromInt(114)
	s.MaxRisk = decimal.NewFromInt(386)
	s.ExpirationDate = expiration
	s.Matched = true
	return s
}

func TestSaveAndLoadSpread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	spread := matchedSpread("SPY")
	guid, err := s.Save(ctx, spread)
	require.NoError(t, err)
	assert.Equal(t, spread.GUID, guid)

	loaded, err := s.LoadByGUID(ctx, guid)
	require.NoError(t, err)
	assert.Equal(t, "SPY", loaded.UnderlyingTicker)
	assert.True(t, loaded.NetPremium.Equal(spread.NetPremium))
	assert.True(t, loaded.ShortContract.StrikePrice.Equal(decimal.NewFromInt(95)))
	assert.True(t, loaded.ExpirationDate.Equal(expiration))

	byTicker, err := s.LoadByTicker(ctx, "spy")
	require.NoError(t, err)
	assert.Len(t, byTicker, 1)

	_, err = s.LoadByGUID(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNoDataFound)
}

func TestSaveReplacesIdleSpreadInSameSlot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := matchedSpread("SPY")
	_, err := s.Save(ctx, first)
	require.NoError(t, err)

	second := matchedSpread("SPY")
	second.NetPremium = decimal.RequireFromString("1.30")
	guid, err := s.Save(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, second.GUID, guid)

	all, err := s.LoadAll(ctx, SpreadFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, second.GUID, all[0].GUID)
}

func TestSaveKeepsActiveSpreadInSameSlot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := matchedSpread("SPY")
	active.AgentStatus = models.TradeStateActive
	_, err := s.Save(ctx, active)
	require.NoError(t, err)

	fresh := matchedSpread("SPY")
	guid, err := s.Save(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, active.GUID, guid)

	all, err := s.LoadAll(ctx, SpreadFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.TradeStateActive, all[0].AgentStatus)

	// The active spread itself can still be updated.
	active.AgentStatus = models.TradeStateCompleted
	active.TradeOutcome = models.OutcomeProfit
	_, err = s.Save(ctx, active)
	require.NoError(t, err)

	completed, err := s.LoadAll(ctx, SpreadFilter{Status: models.TradeStateCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, models.OutcomeProfit, completed[0].TradeOutcome)
}

func TestSaveAllAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	unmatched := models.NewSpread("QQQ", models.StrategyDebit, models.DirectionBearish)
	unmatched.ExpirationDate = expiration
	unmatched.Description = "No second leg found"

	require.NoError(t, s.SaveAll(ctx, []*models.Spread{matchedSpread("SPY"), unmatched}))
	require.NoError(t, s.SaveAll(ctx, nil))

	all, err := s.LoadAll(ctx, SpreadFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "QQQ", all[0].UnderlyingTicker)

	matched, err := s.LoadAll(ctx, SpreadFilter{MatchedOnly: true})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "SPY", matched[0].UnderlyingTicker)

	limited, err := s.LoadAll(ctx, SpreadFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = s.Save(ctx, nil)
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}

func TestPerformanceHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LatestPerformance(ctx)
	assert.ErrorIs(t, err, apperrors.ErrNoDataFound)

	for i, pnl := range []string{"100", "-50", "250.5"} {
		require.NoError(t, s.SavePerformance(ctx, models.DailyPerformance{
			Date:            time.Date(2025, 2, 3+i, 0, 0, 0, 0, time.UTC),
			TotalTrades:     3,
			WinningTrades:   2,
			CompletedTrades: 3,
			TotalPnL:        decimal.RequireFromString(pnl),
			WinRate:         decimal.RequireFromString("0.6667"),
		}))
	}

	latest, err := s.LatestPerformance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, latest.Date.Day())
	assert.True(t, latest.TotalPnL.Equal(decimal.RequireFromString("250.5")))

	history, err := s.PerformanceHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	// Same day replaces
	require.NoError(t, s.SavePerformance(ctx, models.DailyPerformance{
		Date:     time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC),
		TotalPnL: decimal.Zero,
		WinRate:  decimal.Zero,
	}))
	history, err = s.PerformanceHistory(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, history, 3)
	assert.True(t, history[0].TotalPnL.IsZero())
}

func TestLastRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)

	assert.True(t, s.GetLastRun("scan").IsZero())

	at := time.Date(2025, 2, 3, 9, 45, 0, 0, time.UTC)
	require.NoError(t, s.SetLastRun("scan", at))
	assert.True(t, s.GetLastRun("scan").Equal(at))
	require.NoError(t, s.Close())

	// Survives reopen
	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	assert.True(t, s.GetLastRun("scan").Equal(at))
}
