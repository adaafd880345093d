// Package agents drives the lifecycle of matched spreads: paper entry on the
// underlying's daily bar, exit on reward or stop thresholds, forced exit ahead
// of expiration, and the aggregate performance of the run.
package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/logging"
	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
	"github.com/mousou2003/MouSouTrade-sub000/internal/options"
)


// AgentConfig holds the exit thresholds applied to spreads that carry none.
type AgentConfig struct {
	TargetReward decimal.Decimal
	TargetStop   decimal.Decimal
}

// DefaultAgentConfig returns the standard exit thresholds.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		TargetReward: models.DefaultTargetReward,
		TargetStop:   models.DefaultTargetStop,
	}
}

// TradingAgent advances spreads through NONE -> ACTIVE -> COMPLETED. A single
// agent must not run concurrent cycles; Run serializes them.
type TradingAgent struct {
	cfg    AgentConfig
	logger zerolog.Logger

	mu        sync.Mutex
	states    map[string]models.TradeState
	active    map[string]*models.Spread
	completed map[string]*models.Spread
	counted   map[string]bool

	totalTrades   int
	winningTrades int
	totalPnL      decimal.Decimal
}

// NewTradingAgent creates an agent with empty state.
func NewTradingAgent(cfg AgentConfig, logger zerolog.Logger) *TradingAgent {
	defaults := DefaultAgentConfig()
	if !cfg.TargetReward.IsPositive() {
		cfg.TargetReward = defaults.TargetReward
	}
	if !cfg.TargetStop.IsPositive() {
		cfg.TargetStop = defaults.TargetStop
	}
	return &TradingAgent{
		cfg:       cfg,
		logger:    logger.With().Str("component", "agent").Logger(),
		states:    make(map[string]models.TradeState),
		active:    make(map[string]*models.Spread),
		completed: make(map[string]*models.Spread),
		counted:   make(map[string]bool),
		totalPnL:  decimal.Zero,
	}
}

// transition is the outcome of evaluating one spread.
type transition struct {
	to     models.TradeState
	reason string
}

// Run evaluates every spread against its attached daily bar and returns the
// spreads whose state changed. A failing spread is logged, its tracked state
// is dropped so the next cycle re-adopts its persisted status, and the batch
// continues. Cancellation is checked between spreads.
func (a *TradingAgent) Run(ctx context.Context, spreads []*models.Spread, today time.Time) ([]*models.Spread, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	changed := make([]*models.Spread, 0)
	for _, spread := range spreads {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		if spread == nil {
			continue
		}
		ok, err := a.processSafely(spread, today)
		if err != nil {
			l := logging.WithSpread(a.logger, spread)
			l.Warn().Err(err).Msg("Spread processing failed, state reset")
			a.forget(spread.GUID)
			continue
		}
		if ok {
			changed = append(changed, spread)
		}
	}
	return changed, nil
}

// processSafely evaluates a spread on a copy and commits the copy only when
// evaluation succeeds, so a failure never leaves partial updates behind.
func (a *TradingAgent) processSafely(spread *models.Spread, today time.Time) (changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			changed = false
			err = apperrors.NewStateError(spread.GUID, string(spread.Status()), fmt.Sprintf("panic: %v", r))
		}
	}()

	guid := spread.EnsureGUID()
	current, seen := a.states[guid]
	if !seen {
		current = spread.Status()
		a.adopt(spread, current)
	}
	if current == models.TradeStateCompleted {
		return false, nil
	}

	work := spread.Clone()
	t, err := a.evaluate(work, current, today)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, nil
	}

	*spread = *work
	a.apply(spread, current, t.to)
	logging.LogTransition(a.logger, spread, current, t.to, t.reason)
	return true, nil
}

// adopt records an unseen spread at its persisted status.
func (a *TradingAgent) adopt(spread *models.Spread, state models.TradeState) {
	a.states[spread.GUID] = state
	switch state {
	case models.TradeStateActive:
		a.active[spread.GUID] = spread
		a.countEntry(spread.GUID)
	case models.TradeStateCompleted:
		a.countEntry(spread.GUID)
		a.archive(spread)
	}
}

func (a *TradingAgent) apply(spread *models.Spread, from, to models.TradeState) {
	a.states[spread.GUID] = to
	switch to {
	case models.TradeStateActive:
		a.active[spread.GUID] = spread
		a.countEntry(spread.GUID)
	case models.TradeStateCompleted:
		delete(a.active, spread.GUID)
		if from == models.TradeStateNone {
			a.countEntry(spread.GUID)
		}
		a.archive(spread)
	}
}

func (a *TradingAgent) countEntry(guid string) {
	if a.counted[guid] {
		return
	}
	a.counted[guid] = true
	a.totalTrades++
}

// archive moves a completed spread into the completed set, counting its
// outcome exactly once.
func (a *TradingAgent) archive(spread *models.Spread) {
	if _, ok := a.completed[spread.GUID]; ok {
		return
	}
	delete(a.active, spread.GUID)
	a.completed[spread.GUID] = spread
	if spread.TradeOutcome == models.OutcomeProfit {
		a.winningTrades++
	}
	a.totalPnL = a.totalPnL.Add(spread.RealizedPnL)
}

func (a *TradingAgent) forget(guid string) {
	delete(a.states, guid)
	delete(a.active, guid)
}

// evaluate decides the transition of a spread in state current. A nil
// transition means nothing changes.
func (a *TradingAgent) evaluate(s *models.Spread, current models.TradeState, today time.Time) (*transition, error) {
	prices := s.Stock.Prices()
	if len(prices) == 0 || (current == models.TradeStateActive && !s.Stock.Close.IsPositive()) {
		l := logging.WithSpread(a.logger, s)
		l.Warn().Str("state", string(current)).Msg("No usable price data, spread left unchanged")
		return nil, nil
	}

	switch current {
	case models.TradeStateNone:
		return a.tryEnter(s, prices, today)
	case models.TradeStateActive:
		if a.pastExitDate(s, today) {
			return a.forceExit(s, today)
		}
		return a.tryExit(s, today)
	default:
		return nil, apperrors.NewStateError(s.GUID, string(current), "unknown state")
	}
}

func (a *TradingAgent) pastExitDate(s *models.Spread, today time.Time) bool {
	return !s.ExitDate.IsZero() && options.DaysBetween(s.ExitDate, today) >= 0
}

// tryEnter fills a bullish spread at the lowest price at or above the entry
// price and a bearish spread at the highest price at or below it.
func (a *TradingAgent) tryEnter(s *models.Spread, prices []decimal.Decimal, today time.Time) (*transition, error) {
	if !s.EntryPrice.IsPositive() {
		return nil, apperrors.NewStateError(s.GUID, string(models.TradeStateNone), "missing entry price")
	}
	if a.pastExitDate(s, today) {
		return nil, nil
	}

	var fill decimal.Decimal
	found := false
	for _, p := range prices {
		if s.Direction == models.DirectionBullish {
			if p.GreaterThanOrEqual(s.EntryPrice) && (!found || p.LessThan(fill)) {
				fill, found = p, true
			}
		} else {
			if p.LessThanOrEqual(s.EntryPrice) && (!found || p.GreaterThan(fill)) {
				fill, found = p, true
			}
		}
	}
	if !found {
		return nil, nil
	}

	ts := today
	s.AgentStatus = models.TradeStateActive
	s.EntryTimestamp = &ts
	s.ActualEntryPrice = fill
	return &transition{to: models.TradeStateActive, reason: "entry price reached"}, nil
}

// tryExit closes an active spread once its P&L at the close breaches the
// reward or stop threshold.
func (a *TradingAgent) tryExit(s *models.Spread, today time.Time) (*transition, error) {
	pnl, err := a.currentPnL(s)
	if err != nil {
		return nil, err
	}

	reward := a.rewardThreshold(s).Mul(s.MaxReward)
	stop := a.stopThreshold(s).Mul(s.MaxRisk).Neg()

	switch {
	case pnl.GreaterThanOrEqual(reward):
		a.close(s, pnl, models.OutcomeProfit, today)
		return &transition{to: models.TradeStateCompleted, reason: "target reward reached"}, nil
	case pnl.LessThanOrEqual(stop):
		a.close(s, pnl, models.OutcomeLoss, today)
		return &transition{to: models.TradeStateCompleted, reason: "stop loss reached"}, nil
	}
	return nil, nil
}

// forceExit closes an active spread at the day's close once its exit date
// has been reached. The outcome follows the sign of the P&L.
func (a *TradingAgent) forceExit(s *models.Spread, today time.Time) (*transition, error) {
	pnl, err := a.currentPnL(s)
	if err != nil {
		return nil, err
	}
	outcome := models.OutcomeLoss
	if pnl.IsPositive() {
		outcome = models.OutcomeProfit
	}
	a.close(s, pnl, outcome, today)
	return &transition{to: models.TradeStateCompleted, reason: "exit date reached"}, nil
}

// currentPnL is (close - entry) x contract multiplier, negated for credit
// spreads.
func (a *TradingAgent) currentPnL(s *models.Spread) (decimal.Decimal, error) {
	if !s.Stock.Close.IsPositive() {
		return decimal.Zero, apperrors.NewStateError(s.GUID, string(models.TradeStateActive), "missing close price")
	}
	entry := s.ActualEntryPrice
	if !entry.IsPositive() {
		entry = s.EntryPrice
	}
	if !entry.IsPositive() {
		return decimal.Zero, apperrors.NewStateError(s.GUID, string(models.TradeStateActive), "missing entry price")
	}

	pnl := s.Stock.Close.Sub(entry).Mul(s.Multiplier())
	if s.Strategy == models.StrategyCredit {
		pnl = pnl.Neg()
	}
	return pnl, nil
}

func (a *TradingAgent) close(s *models.Spread, pnl decimal.Decimal, outcome models.TradeOutcome, today time.Time) {
	ts := today
	s.AgentStatus = models.TradeStateCompleted
	s.ExitTimestamp = &ts
	s.ActualExitPrice = s.Stock.Close
	s.RealizedPnL = pnl
	s.TradeOutcome = outcome
	s.IsProcessed = true
}

func (a *TradingAgent) rewardThreshold(s *models.Spread) decimal.Decimal {
	if s.TargetReward.IsPositive() {
		return s.TargetReward
	}
	return a.cfg.TargetReward
}

func (a *TradingAgent) stopThreshold(s *models.Spread) decimal.Decimal {
	if s.TargetStop.IsPositive() {
		return s.TargetStop
	}
	return a.cfg.TargetStop
}

// GetDailyPerformance returns the aggregate performance as of today.
func (a *TradingAgent) GetDailyPerformance(today time.Time) models.DailyPerformance {
	a.mu.Lock()
	defer a.mu.Unlock()

	y, m, d := today.Date()
	perf := models.DailyPerformance{
		Date:            time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		TotalTrades:     a.totalTrades,
		WinningTrades:   a.winningTrades,
		ActiveTrades:    len(a.active),
		CompletedTrades: len(a.completed),
		TotalPnL:        a.totalPnL,
		WinRate:         decimal.Zero,
	}
	if a.totalTrades > 0 {
		perf.WinRate = decimal.NewFromInt(int64(a.winningTrades)).
			Div(decimal.NewFromInt(int64(a.totalTrades))).
			Round(4)
	}
	return perf
}

// ActiveSpreads returns the spreads currently held.
func (a *TradingAgent) ActiveSpreads() []*models.Spread {
	a.mu.Lock()
	defer a.mu.Unlock()
	return collect(a.active)
}

// CompletedSpreads returns the spreads closed or archived by this agent.
func (a *TradingAgent) CompletedSpreads() []*models.Spread {
	a.mu.Lock()
	defer a.mu.Unlock()
	return collect(a.completed)
}

// State returns the tracked state of a spread, NONE when unseen.
func (a *TradingAgent) State(guid string) models.TradeState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.states[guid]; ok {
		return s
	}
	return models.TradeStateNone
}

func collect(set map[string]*models.Spread) []*models.Spread {
	out := make([]*models.Spread, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}
