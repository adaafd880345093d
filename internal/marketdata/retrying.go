package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/logging"
	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
	"github.com/mousou2003/MouSouTrade-sub000/internal/performance"
	"github.com/mousou2003/MouSouTrade-sub000/internal/resilience"
	"github.com/mousou2003/MouSouTrade-sub000/pkg/utils"
)

// Options configures a RetryingSource.
type Options struct {
	RateLimit float64 // requests per second
	Burst     int
	Retry     utils.RetryConfig
	// Breaker trips after repeated transient failures that survived the
	// retries. A zero FailureThreshold disables it.
	Breaker resilience.CircuitBreakerConfig
}

// DefaultOptions returns the default client options.
func DefaultOptions() Options {
	retry := utils.DefaultRetryConfig()
	retry.Retryable = apperrors.IsTransient
	return Options{RateLimit: 5, Burst: 5, Retry: retry, Breaker: resilience.DefaultCircuitBreakerConfig()}
}

// RetryingSource decorates a Source with a shared rate limiter, bounded
// exponential backoff on transient failures and a circuit breaker. It is
// safe for concurrent use when the wrapped source is.
type RetryingSource struct {
	src     Source
	limiter *performance.RateLimiter
	retry   utils.RetryConfig
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewRetryingSource wraps src.
func NewRetryingSource(src Source, opts Options, logger zerolog.Logger) *RetryingSource {
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = apperrors.IsTransient
	}
	if opts.Breaker.Counts == nil {
		opts.Breaker.Counts = apperrors.IsTransient
	}
	r := &RetryingSource{
		src:     src,
		limiter: performance.NewRateLimiter(opts.RateLimit, opts.Burst),
		retry:   opts.Retry,
		breaker: resilience.NewCircuitBreaker("marketdata", opts.Breaker),
		logger:  logger.With().Str("component", "marketdata").Logger(),
	}
	r.breaker.OnStateChange = func(name string, from, to resilience.CircuitState) {
		r.logger.Warn().Str("breaker", name).Str("from", string(from)).Str("to", string(to)).Msg("Circuit breaker state change")
	}
	return r
}

// BreakerStats reports the state of the source's circuit breaker.
func (r *RetryingSource) BreakerStats() resilience.CircuitBreakerStats {
	return r.breaker.Stats()
}

func call[T any](ctx context.Context, r *RetryingSource, method, endpoint string, fn func() (T, error)) (T, error) {
	v, err := resilience.ExecuteWithResult(r.breaker, ctx, func() (T, error) {
		return retried(ctx, r, method, endpoint, fn)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		var zero T
		return zero, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	return v, err
}

func retried[T any](ctx context.Context, r *RetryingSource, method, endpoint string, fn func() (T, error)) (T, error) {
	attempt := 0
	return utils.RetryWithResult(ctx, r.retry, func() (T, error) {
		var zero T
		if err := r.limiter.Wait(ctx); err != nil {
			return zero, err
		}
		attempt++
		start := time.Now()
		v, err := fn()
		logging.LogAPICall(r.logger, method, endpoint, time.Since(start), err)
		if err != nil && apperrors.IsTransient(err) {
			r.logger.Warn().Err(err).Str("method", method).Int("attempt", attempt).Msg("Transient market data failure")
		}
		return v, err
	})
}

// GetOptionContracts implements Source.
func (r *RetryingSource) GetOptionContracts(ctx context.Context, underlying string, expiryFrom, expiryTo time.Time, contractType models.ContractType, order models.SortOrder) ([]models.Contract, error) {
	return call(ctx, r, "GetOptionContracts", underlying, func() ([]models.Contract, error) {
		return r.src.GetOptionContracts(ctx, underlying, expiryFrom, expiryTo, contractType, order)
	})
}

// GetSnapshot implements Source.
func (r *RetryingSource) GetSnapshot(ctx context.Context, underlying, optionTicker string) (*models.Snapshot, error) {
	return call(ctx, r, "GetSnapshot", optionTicker, func() (*models.Snapshot, error) {
		return r.src.GetSnapshot(ctx, underlying, optionTicker)
	})
}

// GetPreviousClose implements Source.
func (r *RetryingSource) GetPreviousClose(ctx context.Context, ticker string) (decimal.Decimal, error) {
	return call(ctx, r, "GetPreviousClose", ticker, func() (decimal.Decimal, error) {
		return r.src.GetPreviousClose(ctx, ticker)
	})
}

// GetDailyBar implements Source.
func (r *RetryingSource) GetDailyBar(ctx context.Context, ticker string, date time.Time) (*models.DailyBar, error) {
	return call(ctx, r, "GetDailyBar", ticker, func() (*models.DailyBar, error) {
		return r.src.GetDailyBar(ctx, ticker, date)
	})
}
