package trading

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mousou2003/MouSouTrade-sub000/internal/marketdata"
	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
)

type recordingSaver struct {
	mu      sync.Mutex
	spreads []*models.Spread
	batches int
	err     error
}

func (r *recordingSaver) SaveAll(_ context.Context, spreads []*models.Spread) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches++
	if r.err != nil {
		return r.err
	}
	r.spreads = append(r.spreads, spreads...)
	return nil
}

func newTestPipeline(saver SpreadSaver, matcher Matcher, watchlist ...string) *ScanPipeline {
	source := marketdata.NewFileSource("../marketdata/testdata")
	if matcher == nil {
		matcher = NewVerticalSpread(NewStandardContractSelector(decimal.Zero), source, DefaultMatcherConfig(), zerolog.Nop())
	}
	return NewScanPipeline(source, matcher, saver, PipelineConfig{Watchlist: watchlist, Workers: 2}, zerolog.Nop())
}

func TestScanPipelineMatchesEveryThesis(t *testing.T) {
	saver := &recordingSaver{}
	p := newTestPipeline(saver, nil, "spy")

	summary, err := p.Run(context.Background(), testToday)
	require.NoError(t, err)

	assert.True(t, summary.Expiration.Equal(testExpiration))
	assert.Equal(t, 4, summary.Matched)
	assert.Equal(t, 0, summary.Unmatched)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, saver.spreads, 4)

	byKey := map[string]*models.Spread{}
	for _, s := range saver.spreads {
		byKey[string(s.Direction)+"/"+string(s.Strategy)] = s
	}

	bullPut := byKey["BULLISH/CREDIT"]
	require.NotNil(t, bullPut)
	assert.Equal(t, models.ContractTypePut, bullPut.ContractType)
	assertDecimal(t, "95", bullPut.ShortContract.StrikePrice, "ShortContract")
	assertDecimal(t, "90", bullPut.LongContract.StrikePrice, "LongContract")
	assertDecimal(t, "1.425", bullPut.NetPremium, "NetPremium")

	bullCall := byKey["BULLISH/DEBIT"]
	require.NotNil(t, bullCall)
	assertDecimal(t, "100", bullCall.LongContract.StrikePrice, "LongContract")
	assertDecimal(t, "105", bullCall.ShortContract.StrikePrice, "ShortContract")

	bearCall := byKey["BEARISH/CREDIT"]
	require.NotNil(t, bearCall)
	assertDecimal(t, "100", bearCall.ShortContract.StrikePrice, "ShortContract")
	assertDecimal(t, "105", bearCall.LongContract.StrikePrice, "LongContract")

	bearPut := byKey["BEARISH/DEBIT"]
	require.NotNil(t, bearPut)
	assertDecimal(t, "95", bearPut.LongContract.StrikePrice, "LongContract")
	assertDecimal(t, "90", bearPut.ShortContract.StrikePrice, "ShortContract")
}

func TestScanPipelineIsolatesFailingUnderlying(t *testing.T) {
	saver := &recordingSaver{}
	p := newTestPipeline(saver, nil, "TSLA", "SPY", "spy", " ")

	summary, err := p.Run(context.Background(), testToday)
	require.NoError(t, err)

	require.Len(t, summary.Results, 2)
	assert.Equal(t, "TSLA", summary.Results[0].Ticker)
	assert.Error(t, summary.Results[0].Err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 4, summary.Matched)
	assert.Len(t, saver.spreads, 4)
}

func TestScanPipelinePersistsUnmatchedSpreads(t *testing.T) {
	saver := &recordingSaver{}
	p := newTestPipeline(saver, nil, "SPY")

	// The April chain has a single put without a snapshot.
	spreads, err := p.ScanUnderlying(context.Background(), "SPY", time.Date(2025, 4, 18, 0, 0, 0, 0, time.UTC), testToday)
	require.NoError(t, err)
	require.Len(t, spreads, 4)
	for _, s := range spreads {
		assert.False(t, s.Matched)
		assert.Equal(t, "No match for SPY", s.Description)
		assert.Equal(t, 18, s.ExpirationDate.Day())
	}
}

type panickingMatcher struct{}

func (panickingMatcher) Match(context.Context, *models.Spread, Chain) (bool, error) {
	panic("boom")
}

func TestScanPipelineRecoversFromPanics(t *testing.T) {
	p := newTestPipeline(nil, panickingMatcher{}, "SPY")

	summary, err := p.Run(context.Background(), testToday)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.ErrorContains(t, summary.Results[0].Err, "panic")
}

func TestScanPipelineReportsSaveFailures(t *testing.T) {
	saver := &recordingSaver{err: errors.New("disk full")}
	p := newTestPipeline(saver, nil, "SPY")

	_, err := p.Run(context.Background(), testToday)
	assert.ErrorContains(t, err, "disk full")
}

func TestScanPipelineHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(&recordingSaver{}, nil, "SPY")
	_, err := p.Run(ctx, testToday)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanPipelineEmptyWatchlist(t *testing.T) {
	p := newTestPipeline(&recordingSaver{}, nil)
	summary, err := p.Run(context.Background(), testToday)
	require.NoError(t, err)
	assert.Empty(t, summary.Results)
}
