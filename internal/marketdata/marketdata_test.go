package marketdata

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
	"github.com/mousou2003/MouSouTrade-sub000/internal/resilience"
	"github.com/mousou2003/MouSouTrade-sub000/pkg/utils"
)

var (
	march = time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)
	april = time.Date(2025, 4, 18, 0, 0, 0, 0, time.UTC)
)

func TestFileSourceContracts(t *testing.T) {
	src := NewFileSource("testdata")
	ctx := context.Background()

	puts, err := src.GetOptionContracts(ctx, "spy", march, march, models.ContractTypePut, models.SortDesc)
	require.NoError(t, err)
	require.Len(t, puts, 4)
	assert.Equal(t, "O:SPY250321P00105000", puts[0].Ticker)
	assert.Equal(t, "O:SPY250321P00085000", puts[3].Ticker)
	assert.Equal(t, "SPY", puts[0].UnderlyingTicker)
	assert.Equal(t, models.ExerciseAmerican, puts[0].ExerciseStyle)

	calls, err := src.GetOptionContracts(ctx, "SPY", march, march, models.ContractTypeCall, models.SortAsc)
	require.NoError(t, err)
	require.Len(t, calls, 3)
	assert.True(t, calls[0].StrikePrice.Equal(decimal.NewFromInt(100)))

	all, err := src.GetOptionContracts(ctx, "SPY", march, april, models.ContractTypePut, models.SortAsc)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	_, err = src.GetOptionContracts(ctx, "SPY", april.AddDate(0, 1, 0), time.Time{}, models.ContractTypePut, models.SortAsc)
	assert.ErrorIs(t, err, apperrors.ErrNoDataFound)
}

func TestFileSourceSnapshotsAndBars(t *testing.T) {
	src := NewFileSource("testdata")
	ctx := context.Background()

	snap, err := src.GetSnapshot(ctx, "SPY", "O:SPY250321P00095000")
	require.NoError(t, err)
	assert.Equal(t, "O:SPY250321P00095000", snap.Ticker)
	assert.True(t, snap.Premium().Equal(decimal.NewFromInt(2)))
	assert.True(t, snap.Greeks.Delta.Equal(decimal.RequireFromString("-0.45")))
	assert.Equal(t, int64(5400), snap.OpenInterest)

	_, err = src.GetSnapshot(ctx, "SPY", "O:SPY250418P00095000")
	assert.ErrorIs(t, err, apperrors.ErrNoDataFound)

	prev, err := src.GetPreviousClose(ctx, "SPY")
	require.NoError(t, err)
	assert.True(t, prev.Equal(decimal.NewFromInt(100)))

	bar, err := src.GetDailyBar(ctx, "SPY", time.Date(2025, 2, 3, 16, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, bar.Close.Equal(decimal.RequireFromString("101.5")))

	// Monday walks back to Friday
	friday, err := PreviousDayBar(ctx, src, "SPY", time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, friday.Close.Equal(decimal.NewFromInt(100)))

	_, err = src.GetPreviousClose(ctx, "TSLA")
	assert.ErrorIs(t, err, apperrors.ErrNoDataFound)
}

func TestLoadFixtureRejectsBadData(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "BAD.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"ticker":"BAD","bars":[{"date":"03/02/2025"}]}`), 0644))
	_, err := LoadFixture(bad)
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	garbage := filepath.Join(dir, "GARBAGE.json")
	require.NoError(t, os.WriteFile(garbage, []byte(`{`), 0644))
	_, err = LoadFixture(garbage)
	assert.Error(t, err)
}

func TestMemorySourcePreviousCloseFallsBackToLatestBar(t *testing.T) {
	src := NewMemorySource()
	src.Put(&Underlying{
		Ticker: "qqq",
		Bars: []models.DailyBar{
			{Date: time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC), Close: decimal.NewFromInt(500)},
			{Date: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), Close: decimal.NewFromInt(505)},
		},
	})

	prev, err := src.GetPreviousClose(context.Background(), "QQQ")
	require.NoError(t, err)
	assert.True(t, prev.Equal(decimal.NewFromInt(505)))
	assert.Equal(t, []string{"QQQ"}, src.Tickers())
}

// flakySource fails transiently a fixed number of times before delegating.
type flakySource struct {
	Source
	failures int32
	calls    atomic.Int32
	err      error
}

func (f *flakySource) GetPreviousClose(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if f.calls.Add(1) <= f.failures {
		return decimal.Zero, f.err
	}
	return f.Source.GetPreviousClose(ctx, ticker)
}

func testOptions() Options {
	return Options{
		RateLimit: 1000,
		Burst:     10,
		Retry: utils.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  time.Millisecond,
			MaxDelay:      5 * time.Millisecond,
			BackoffFactor: 2,
		},
	}
}

func TestRetryingSourceRetriesTransientFailures(t *testing.T) {
	flaky := &flakySource{
		Source:   NewFileSource("testdata"),
		failures: 2,
		err:      apperrors.NewSourceError("previous_close", "SPY", true, errors.New("503")),
	}
	src := NewRetryingSource(flaky, testOptions(), zerolog.Nop())

	prev, err := src.GetPreviousClose(context.Background(), "SPY")
	require.NoError(t, err)
	assert.True(t, prev.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestRetryingSourceLogsEveryAttempt(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	flaky := &flakySource{
		Source:   NewFileSource("testdata"),
		failures: 1,
		err:      apperrors.NewSourceError("previous_close", "SPY", true, errors.New("503")),
	}
	src := NewRetryingSource(flaky, testOptions(), logger)

	_, err := src.GetPreviousClose(context.Background(), "SPY")
	require.NoError(t, err)

	logs := buf.String()
	assert.Equal(t, 2, strings.Count(logs, `"event":"api_call"`))
	assert.Equal(t, 2, strings.Count(logs, `"endpoint":"SPY"`))
	assert.Contains(t, logs, "Transient market data failure")
}

func TestRetryingSourceDoesNotRetryPermanentFailures(t *testing.T) {
	flaky := &flakySource{
		Source:   NewFileSource("testdata"),
		failures: 5,
		err:      apperrors.NoData("previous_close", "SPY", "none"),
	}
	src := NewRetryingSource(flaky, testOptions(), zerolog.Nop())

	_, err := src.GetPreviousClose(context.Background(), "SPY")
	assert.ErrorIs(t, err, apperrors.ErrNoDataFound)
	assert.Equal(t, int32(1), flaky.calls.Load())
}

func TestRetryingSourceGivesUpAfterMaxAttempts(t *testing.T) {
	flaky := &flakySource{
		Source:   NewFileSource("testdata"),
		failures: 10,
		err:      apperrors.NewSourceError("previous_close", "SPY", true, errors.New("timeout")),
	}
	src := NewRetryingSource(flaky, testOptions(), zerolog.Nop())

	_, err := src.GetPreviousClose(context.Background(), "SPY")
	assert.ErrorIs(t, err, apperrors.ErrTransientSource)
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestRetryingSourceDelegates(t *testing.T) {
	src := NewRetryingSource(NewFileSource("testdata"), DefaultOptions(), zerolog.Nop())
	ctx := context.Background()

	contracts, err := src.GetOptionContracts(ctx, "SPY", march, march, models.ContractTypeCall, models.SortAsc)
	require.NoError(t, err)
	assert.Len(t, contracts, 3)

	snap, err := src.GetSnapshot(ctx, "SPY", contracts[0].Ticker)
	require.NoError(t, err)
	assert.True(t, snap.Greeks.Delta.Equal(decimal.RequireFromString("0.5")))

	_, err = src.GetDailyBar(ctx, "SPY", time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
}

func TestRetryingSourceBreakerOpensAfterExhaustedRetries(t *testing.T) {
	flaky := &flakySource{
		Source:   NewFileSource("testdata"),
		failures: 100,
		err:      apperrors.NewSourceError("previous_close", "SPY", true, errors.New("503")),
	}
	opts := testOptions()
	opts.Breaker = resilience.CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Cooldown: time.Hour}
	src := NewRetryingSource(flaky, opts, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := src.GetPreviousClose(ctx, "SPY")
		assert.ErrorIs(t, err, apperrors.ErrTransientSource)
	}
	assert.Equal(t, int32(6), flaky.calls.Load())
	assert.Equal(t, resilience.CircuitOpen, src.BreakerStats().State)

	_, err := src.GetPreviousClose(ctx, "SPY")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.EqualError(t, err, "GetPreviousClose SPY: circuit breaker is open")
	assert.Equal(t, int32(6), flaky.calls.Load())
}

func TestRetryingSourceBreakerIgnoresMissingData(t *testing.T) {
	opts := testOptions()
	opts.Breaker = resilience.CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Hour}
	src := NewRetryingSource(NewFileSource("testdata"), opts, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := src.GetDailyBar(context.Background(), "SPY", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
		assert.ErrorIs(t, err, apperrors.ErrNoDataFound)
	}
	assert.Equal(t, resilience.CircuitClosed, src.BreakerStats().State)
}
