package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/logging"
	"github.com/mousou2003/MouSouTrade-sub000/internal/marketdata"
	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
	"github.com/mousou2003/MouSouTrade-sub000/internal/options"
	"github.com/mousou2003/MouSouTrade-sub000/internal/performance"
)

const saveBatchSize = 16

// PipelineConfig holds the scan pipeline settings.
type PipelineConfig struct {
	Watchlist []string
	Workers   int
}

// ScanResult is the outcome of scanning one underlying.
type ScanResult struct {
	Ticker  string
	Spreads []*models.Spread
	Err     error
}

// ScanSummary aggregates a pipeline run.
type ScanSummary struct {
	Expiration time.Time
	Results    []ScanResult
	Matched    int
	Unmatched  int
	Failed     int
}

// ScanPipeline scans a watchlist for every strategy and direction and
// persists the resulting spreads, matched or not.
type ScanPipeline struct {
	source  marketdata.Source
	matcher Matcher
	saver   SpreadSaver
	cfg     PipelineConfig
	logger  zerolog.Logger
	now     func() time.Time
}

// NewScanPipeline creates a new scan pipeline. saver may be nil for dry runs.
func NewScanPipeline(source marketdata.Source, matcher Matcher, saver SpreadSaver, cfg PipelineConfig, logger zerolog.Logger) *ScanPipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &ScanPipeline{
		source:  source,
		matcher: matcher,
		saver:   saver,
		cfg:     cfg,
		logger:  logger.With().Str("component", "pipeline").Logger(),
		now:     time.Now,
	}
}

// Run scans every watchlist underlying against the monthly expiration
// following today. A failing underlying is logged and recorded in the
// summary without aborting the others.
func (p *ScanPipeline) Run(ctx context.Context, today time.Time) (*ScanSummary, error) {
	if today.IsZero() {
		today = p.now()
	}
	tickers := normalizeWatchlist(p.cfg.Watchlist)
	summary := &ScanSummary{
		Expiration: options.FollowingThirdFriday(today),
		Results:    make([]ScanResult, len(tickers)),
	}
	if len(tickers) == 0 {
		p.logger.Warn().Msg("Empty watchlist, nothing to scan")
		return summary, nil
	}

	var saveErrs []error
	var saveMu sync.Mutex
	batch := performance.NewBatchProcessor(saveBatchSize, func(spreads []*models.Spread) error {
		if p.saver == nil {
			return nil
		}
		return p.saver.SaveAll(ctx, spreads)
	})

	pool := performance.NewWorkerPool(p.cfg.Workers)
	pool.Start()

	var wg sync.WaitGroup
	var submitErr error
	for i, ticker := range tickers {
		i, ticker := i, ticker
		wg.Add(1)
		err := pool.SubmitContext(ctx, func() {
			defer wg.Done()
			result := p.scanSafely(ctx, ticker, summary.Expiration, today)
			summary.Results[i] = result
			for _, s := range result.Spreads {
				if err := batch.Add(s); err != nil {
					saveMu.Lock()
					saveErrs = append(saveErrs, err)
					saveMu.Unlock()
				}
			}
		})
		if err != nil {
			wg.Done()
			submitErr = err
			break
		}
	}
	wg.Wait()
	pool.Stop()

	if err := batch.Flush(); err != nil {
		saveErrs = append(saveErrs, err)
	}

	for i := range summary.Results {
		r := &summary.Results[i]
		if r.Ticker == "" {
			continue
		}
		if r.Err != nil {
			summary.Failed++
			continue
		}
		for _, s := range r.Spreads {
			if s.Matched {
				summary.Matched++
			} else {
				summary.Unmatched++
			}
		}
	}

	p.logger.Info().
		Int("underlyings", len(tickers)).
		Int("matched", summary.Matched).
		Int("unmatched", summary.Unmatched).
		Int("failed", summary.Failed).
		Str("expiration", summary.Expiration.Format("2006-01-02")).
		Msg("Scan complete")

	if submitErr != nil {
		return summary, fmt.Errorf("scan interrupted: %w", submitErr)
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	if len(saveErrs) > 0 {
		return summary, fmt.Errorf("failed to save spreads: %w", errors.Join(saveErrs...))
	}
	return summary, nil
}

// scanSafely runs ScanUnderlying, turning a panic into a failed result.
func (p *ScanPipeline) scanSafely(ctx context.Context, ticker string, expiration, today time.Time) (result ScanResult) {
	result.Ticker = ticker
	defer func() {
		if r := recover(); r != nil {
			result.Spreads = nil
			result.Err = fmt.Errorf("panic scanning %s: %v", ticker, r)
			p.logger.Error().Str("ticker", ticker).Interface("panic", r).Msg("Recovered from panic during scan")
		}
	}()

	spreads, err := p.ScanUnderlying(ctx, ticker, expiration, today)
	if err != nil {
		p.logger.Error().Err(err).Str("ticker", ticker).Msg("Failed to scan underlying")
		result.Err = err
		return result
	}
	result.Spreads = spreads
	return result
}

// ScanUnderlying matches one spread per strategy and direction for ticker
// at the given expiration.
func (p *ScanPipeline) ScanUnderlying(ctx context.Context, ticker string, expiration, today time.Time) ([]*models.Spread, error) {
	log := logging.WithTicker(p.logger, ticker)

	previousClose, err := p.source.GetPreviousClose(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to get previous close for %s: %w", ticker, err)
	}

	spreads := make([]*models.Spread, 0, len(models.Directions)*len(models.Strategies))
	for _, direction := range models.Directions {
		for _, strategy := range models.Strategies {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			contractType, _ := options.ContractTypeFor(strategy, direction)
			order, _ := options.RequestOrderFor(strategy, direction)
			contracts, err := p.source.GetOptionContracts(ctx, ticker, expiration, expiration, contractType, order)
			if err != nil && !errors.Is(err, apperrors.ErrNoDataFound) {
				return nil, fmt.Errorf("failed to get %s contracts for %s: %w", contractType, ticker, err)
			}

			spread := models.NewSpread(ticker, strategy, direction)
			spread.ExpirationDate = expiration
			if _, err := p.matcher.Match(ctx, spread, Chain{
				PreviousClose: previousClose,
				Contracts:     contracts,
				Today:         today,
			}); err != nil {
				return nil, fmt.Errorf("matching %s: %w", spread.Label(), err)
			}
			logging.LogMatch(log, spread)
			spreads = append(spreads, spread)
		}
	}
	return spreads, nil
}

func normalizeWatchlist(watchlist []string) []string {
	seen := make(map[string]bool, len(watchlist))
	tickers := make([]string, 0, len(watchlist))
	for _, t := range watchlist {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tickers = append(tickers, t)
	}
	return tickers
}
