// Package models provides domain models for the spread engine.
package models

import (
	"fmt"
	"strings"
)

// ContractType represents the type of an option contract.
type ContractType string

const (
	ContractTypeCall ContractType = "CALL"
	ContractTypePut  ContractType = "PUT"
)

// StrategyType represents whether a spread is opened for a credit or a debit.
type StrategyType string

const (
	StrategyCredit StrategyType = "CREDIT"
	StrategyDebit  StrategyType = "DEBIT"
)

// DirectionType represents the directional thesis on the underlying.
type DirectionType string

const (
	DirectionBullish DirectionType = "BULLISH"
	DirectionBearish DirectionType = "BEARISH"
)

// SortOrder is the strike ordering used when walking a chain.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// ExerciseStyle represents the exercise style of an option.
type ExerciseStyle string

const (
	ExerciseAmerican ExerciseStyle = "american"
	ExerciseEuropean ExerciseStyle = "european"
)

// TradeState is the lifecycle state of a spread tracked by the agent.
type TradeState string

const (
	TradeStateNone      TradeState = "NONE"
	TradeStateActive    TradeState = "ACTIVE"
	TradeStateCompleted TradeState = "COMPLETED"
)

// TradeOutcome is the result of a completed trade.
type TradeOutcome string

const (
	OutcomeProfit TradeOutcome = "profit"
	OutcomeLoss   TradeOutcome = "loss"
)

// Strategies lists every strategy in scan order.
var Strategies = []StrategyType{StrategyCredit, StrategyDebit}

// Directions lists every direction in scan order.
var Directions = []DirectionType{DirectionBullish, DirectionBearish}

// ParseStrategy parses a strategy name, case-insensitively.
func ParseStrategy(s string) (StrategyType, error) {
	switch StrategyType(strings.ToUpper(strings.TrimSpace(s))) {
	case StrategyCredit:
		return StrategyCredit, nil
	case StrategyDebit:
		return StrategyDebit, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// ParseDirection parses a direction name, case-insensitively.
func ParseDirection(s string) (DirectionType, error) {
	switch DirectionType(strings.ToUpper(strings.TrimSpace(s))) {
	case DirectionBullish:
		return DirectionBullish, nil
	case DirectionBearish:
		return DirectionBearish, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// ParseContractType parses "call"/"put" or the single letters used in OCC tickers.
func ParseContractType(s string) (ContractType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C":
		return ContractTypeCall, nil
	case "PUT", "P":
		return ContractTypePut, nil
	}
	return "", fmt.Errorf("unknown contract type %q", s)
}

// Title returns the capitalized form used in human readable messages ("Bullish", "Put").
func Title(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
