package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
	"github.com/mousou2003/MouSouTrade-sub000/internal/store"
)

// BarSource provides the underlying's daily bar.
type BarSource interface {
	GetDailyBar(ctx context.Context, ticker string, date time.Time) (*models.DailyBar, error)
}

// SpreadRepository is the persistence the cycle needs.
type SpreadRepository interface {
	LoadAll(ctx context.Context, filter store.SpreadFilter) ([]*models.Spread, error)
	SaveAll(ctx context.Context, spreads []*models.Spread) error
	SavePerformance(ctx context.Context, perf models.DailyPerformance) error
}

// CycleNotifier is told what changed after a successful cycle.
type CycleNotifier interface {
	NotifyCycle(ctx context.Context, changed []*models.Spread, perf models.DailyPerformance) error
}

// CycleResult summarizes one agent cycle.
type CycleResult struct {
	Evaluated   int
	Changed     []*models.Spread
	MissingBars []string
	Performance models.DailyPerformance
}

// Cycle loads persisted spreads, attaches the day's bar of each underlying,
// runs the agent and persists what changed together with the day's
// performance.
type Cycle struct {
	agent  *TradingAgent
	repo   SpreadRepository
	bars   BarSource
	logger zerolog.Logger

	notifier CycleNotifier
}

// NewCycle creates a cycle runner around agent.
func NewCycle(agent *TradingAgent, repo SpreadRepository, bars BarSource, logger zerolog.Logger) *Cycle {
	return &Cycle{
		agent:  agent,
		repo:   repo,
		bars:   bars,
		logger: logger.With().Str("component", "cycle").Logger(),
	}
}

// WithNotifier sets the notifier told about each completed cycle.
func (c *Cycle) WithNotifier(n CycleNotifier) *Cycle {
	c.notifier = n
	return c
}

// Agent returns the agent driven by the cycle.
func (c *Cycle) Agent() *TradingAgent {
	return c.agent
}

// Run executes one cycle for today.
func (c *Cycle) Run(ctx context.Context, today time.Time) (*CycleResult, error) {
	spreads, err := c.repo.LoadAll(ctx, store.SpreadFilter{MatchedOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load spreads: %w", err)
	}

	result := &CycleResult{Evaluated: len(spreads)}
	bars := make(map[string]*models.DailyBar)
	for _, s := range spreads {
		if s.Status() == models.TradeStateCompleted {
			continue
		}
		bar, fetched := bars[s.UnderlyingTicker]
		if !fetched {
			bar, err = c.bars.GetDailyBar(ctx, s.UnderlyingTicker, today)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				event := c.logger.Error()
				if errors.Is(err, apperrors.ErrNoDataFound) {
					event = c.logger.Warn()
				}
				event.Err(err).Str("ticker", s.UnderlyingTicker).Msg("No daily bar for underlying")
				result.MissingBars = append(result.MissingBars, s.UnderlyingTicker)
				bar = nil
			}
			bars[s.UnderlyingTicker] = bar
		}
		if bar != nil {
			b := *bar
			s.Stock = &b
		}
	}

	changed, runErr := c.agent.Run(ctx, spreads, today)
	result.Changed = changed

	if len(changed) > 0 {
		if err := c.repo.SaveAll(ctx, changed); err != nil {
			return result, fmt.Errorf("failed to save changed spreads: %w", err)
		}
	}
	if runErr != nil {
		return result, runErr
	}

	result.Performance = c.agent.GetDailyPerformance(today)
	if err := c.repo.SavePerformance(ctx, result.Performance); err != nil {
		return result, fmt.Errorf("failed to save performance: %w", err)
	}

	c.logger.Info().
		Int("evaluated", result.Evaluated).
		Int("changed", len(changed)).
		Int("active", result.Performance.ActiveTrades).
		Int("completed", result.Performance.CompletedTrades).
		Str("total_pnl", result.Performance.TotalPnL.StringFixed(2)).
		Msg("Agent cycle complete")

	if c.notifier != nil {
		if err := c.notifier.NotifyCycle(ctx, changed, result.Performance); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to send cycle notifications")
		}
	}
	return result, nil
}
