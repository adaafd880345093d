package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptionTicker(t *testing.T) {
	c, err := ParseOptionTicker("O:AAPL250117C00210000")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", c.UnderlyingTicker)
	assert.Equal(t, ContractTypeCall, c.ContractType)
	assert.True(t, c.StrikePrice.Equal(decimal.NewFromInt(210)), "strike %s", c.StrikePrice)
	assert.Equal(t, time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC), c.ExpirationDate)
	assert.Equal(t, 100, c.Multiplier())
}

func TestParseOptionTickerFractionalStrike(t *testing.T) {
	c, err := ParseOptionTicker("O:SPY250321P00412500")
	require.NoError(t, err)

	assert.Equal(t, ContractTypePut, c.ContractType)
	assert.Equal(t, "412.5", c.StrikePrice.String())
}

func TestParseOptionTickerRejectsMalformed(t *testing.T) {
	for _, ticker := range []string{"", "O:AAPL", "O:AAPL25011XC00210000", "O:AAPL250117X00210000", "O:AAPL250117C0021000A"} {
		_, err := ParseOptionTicker(ticker)
		assert.Error(t, err, ticker)
	}
}

func TestFormatOptionTickerRoundTrip(t *testing.T) {
	exp := time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)
	ticker := FormatOptionTicker("spy", exp, ContractTypePut, decimal.RequireFromString("412.5"))
	assert.Equal(t, "O:SPY250321P00412500", ticker)

	c, err := ParseOptionTicker(ticker)
	require.NoError(t, err)
	assert.Equal(t, "SPY", c.UnderlyingTicker)
}

func TestParseEnums(t *testing.T) {
	s, err := ParseStrategy("credit")
	require.NoError(t, err)
	assert.Equal(t, StrategyCredit, s)

	d, err := ParseDirection(" Bearish ")
	require.NoError(t, err)
	assert.Equal(t, DirectionBearish, d)

	_, err = ParseStrategy("iron condor")
	assert.Error(t, err)
	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestDailyBarPricesSkipsMissing(t *testing.T) {
	bar := &DailyBar{Open: decimal.NewFromInt(100), Close: decimal.NewFromInt(101)}
	assert.Len(t, bar.Prices(), 2)

	var nilBar *DailyBar
	assert.Empty(t, nilBar.Prices())
}

func TestNewSpreadDefaults(t *testing.T) {
	s := NewSpread("spy", StrategyCredit, DirectionBullish)

	assert.NotEmpty(t, s.GUID)
	assert.Equal(t, "SPY", s.UnderlyingTicker)
	assert.Equal(t, TradeStateNone, s.Status())
	assert.True(t, s.RewardThreshold().Equal(decimal.RequireFromString("0.8")))
	assert.True(t, s.StopThreshold().Equal(decimal.RequireFromString("1.2")))
	assert.False(t, s.HasLegs())
}

func TestSpreadCloneIsDeep(t *testing.T) {
	now := time.Now()
	s := NewSpread("SPY", StrategyDebit, DirectionBullish)
	s.EntryTimestamp = &now
	s.Stock = &DailyBar{Close: decimal.NewFromInt(1)}

	c := s.Clone()
	c.Stock.Close = decimal.NewFromInt(2)
	later := now.Add(time.Hour)
	*c.EntryTimestamp = later

	assert.True(t, s.Stock.Close.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, now, *s.EntryTimestamp)
}
