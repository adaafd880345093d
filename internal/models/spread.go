package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Default exit thresholds applied by the trading agent.
var (
	DefaultTargetReward = decimal.RequireFromString("0.8")
	DefaultTargetStop   = decimal.RequireFromString("1.2")
)

// Spread is a vertical option spread: one short and one long leg on the same
// underlying, expiration and contract type. The matcher fills the pricing
// fields; the trading agent owns the lifecycle fields.
type Spread struct {
	GUID             string        `json:"guid"`
	UnderlyingTicker string        `json:"underlying_ticker"`
	Strategy         StrategyType  `json:"strategy"`
	Direction        DirectionType `json:"direction"`
	ContractType     ContractType  `json:"contract_type"`

	ShortContract *Contract `json:"short_contract,omitempty"`
	LongContract  *Contract `json:"long_contract,omitempty"`

	ShortPremium        decimal.Decimal `json:"short_premium"`
	LongPremium         decimal.Decimal `json:"long_premium"`
	NetPremium          decimal.Decimal `json:"net_premium"`
	DistanceBetweenLegs decimal.Decimal `json:"distance_between_strikes"`
	MaxRisk             decimal.Decimal `json:"max_risk"`
	MaxReward           decimal.Decimal `json:"max_reward"`
	Breakeven           decimal.Decimal `json:"breakeven"`
	PreviousClose       decimal.Decimal `json:"previous_close"`
	EntryPrice          decimal.Decimal `json:"entry_price"`
	TargetPrice         decimal.Decimal `json:"target_price"`
	StopPrice           decimal.Decimal `json:"stop_price"`
	ProbabilityOfProfit decimal.Decimal `json:"probability_of_profit"`
	ExpirationDate      time.Time       `json:"expiration_date"`
	ExitDate            time.Time       `json:"exit_date"`
	Description         string          `json:"description"`
	Matched             bool            `json:"matched"`
	UpdateDate          time.Time       `json:"update_date"`
	ShortOpenInterest   int64           `json:"short_open_interest,omitempty"`
	LongOpenInterest    int64           `json:"long_open_interest,omitempty"`
	ShortVolume         int64           `json:"short_volume,omitempty"`
	LongVolume          int64           `json:"long_volume,omitempty"`
	ImpliedVolatility   decimal.Decimal `json:"implied_volatility"`

	// Lifecycle
	AgentStatus      TradeState      `json:"agent_status"`
	EntryTimestamp   *time.Time      `json:"entry_timestamp,omitempty"`
	ExitTimestamp    *time.Time      `json:"exit_timestamp,omitempty"`
	ActualEntryPrice decimal.Decimal `json:"actual_entry_price"`
	ActualExitPrice  decimal.Decimal `json:"actual_exit_price"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	TradeOutcome     TradeOutcome    `json:"trade_outcome,omitempty"`
	IsProcessed      bool            `json:"is_processed"`
	TargetReward     decimal.Decimal `json:"target_reward"`
	TargetStop       decimal.Decimal `json:"target_stop"`
	Stock            *DailyBar       `json:"stock,omitempty"`
}

// NewSpread creates an empty spread for the given thesis with a fresh GUID
// and default exit thresholds.
func NewSpread(underlying string, strategy StrategyType, direction DirectionType) *Spread {
	return &Spread{
		GUID:             uuid.NewString(),
		UnderlyingTicker: strings.ToUpper(underlying),
		Strategy:         strategy,
		Direction:        direction,
		AgentStatus:      TradeStateNone,
		TargetReward:     DefaultTargetReward,
		TargetStop:       DefaultTargetStop,
	}
}

// EnsureGUID assigns a GUID if the spread has none and returns it.
func (s *Spread) EnsureGUID() string {
	if s.GUID == "" {
		s.GUID = uuid.NewString()
	}
	return s.GUID
}

// HasLegs reports whether both legs are assigned.
func (s *Spread) HasLegs() bool {
	return s.ShortContract != nil && s.LongContract != nil
}

// Multiplier is the share count one contract of the spread controls, taken
// from its legs.
func (s *Spread) Multiplier() decimal.Decimal {
	switch {
	case s.ShortContract != nil:
		return decimal.NewFromInt(int64(s.ShortContract.Multiplier()))
	case s.LongContract != nil:
		return decimal.NewFromInt(int64(s.LongContract.Multiplier()))
	}
	return decimal.NewFromInt(DefaultSharesPerContract)
}

// Status returns the lifecycle state, treating an unset state as NONE.
func (s *Spread) Status() TradeState {
	if s.AgentStatus == "" {
		return TradeStateNone
	}
	return s.AgentStatus
}

// RewardThreshold returns target_reward, defaulting when unset.
func (s *Spread) RewardThreshold() decimal.Decimal {
	if s.TargetReward.IsZero() {
		return DefaultTargetReward
	}
	return s.TargetReward
}

// StopThreshold returns target_stop, defaulting when unset.
func (s *Spread) StopThreshold() decimal.Decimal {
	if s.TargetStop.IsZero() {
		return DefaultTargetStop
	}
	return s.TargetStop
}

// Key identifies the slot a spread occupies for persistence: one spread per
// underlying, expiration, strategy and direction.
func (s *Spread) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", s.UnderlyingTicker, s.ExpirationDate.Format("2006-01-02"), s.Strategy, s.Direction)
}

// Label returns the conventional spread name, e.g. "Bullish Put Credit".
func (s *Spread) Label() string {
	return fmt.Sprintf("%s %s %s", Title(string(s.Direction)), Title(string(s.ContractType)), Title(string(s.Strategy)))
}

// Clone returns a copy that shares no mutable lifecycle pointers with s.
func (s *Spread) Clone() *Spread {
	c := *s
	if s.EntryTimestamp != nil {
		t := *s.EntryTimestamp
		c.EntryTimestamp = &t
	}
	if s.ExitTimestamp != nil {
		t := *s.ExitTimestamp
		c.ExitTimestamp = &t
	}
	if s.Stock != nil {
		b := *s.Stock
		c.Stock = &b
	}
	return &c
}
