// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNoDataFound       = errors.New("no data found")
	ErrMatchFailure      = errors.New("no matching spread")
	ErrTransientSource   = errors.New("transient market data failure")
	ErrStateCorruption   = errors.New("trade state corruption")
	ErrInvalidSpread     = errors.New("invalid spread")
	ErrInvalidTicker     = errors.New("invalid option ticker")
	ErrRateLimited       = errors.New("rate limited")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrDatabaseError     = errors.New("database error")
	ErrInputValidation   = errors.New("input validation failed")
	ErrUnknownStrategy   = errors.New("unknown strategy/direction combination")
	ErrExpirationMissing = errors.New("contract expiration missing")
)

// SourceError represents a failure returned by a market data source.
// Transient failures may be retried; all others are final.
type SourceError struct {
	Op        string
	Ticker    string
	Transient bool
	Err       error
}

func (e *SourceError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Err != nil {
		return fmt.Sprintf("source error [%s] %s (%s): %v", e.Op, e.Ticker, kind, e.Err)
	}
	return fmt.Sprintf("source error [%s] %s (%s)", e.Op, e.Ticker, kind)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTransientSource) match transient source errors.
func (e *SourceError) Is(target error) bool {
	return target == ErrTransientSource && e.Transient
}

// NewSourceError creates a new SourceError.
func NewSourceError(op, ticker string, transient bool, err error) *SourceError {
	return &SourceError{
		Op:        op,
		Ticker:    ticker,
		Transient: transient,
		Err:       err,
	}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientSource)
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// StateError represents an inconsistent lifecycle state for a single spread.
type StateError struct {
	GUID   string
	State  string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error [%s] %s: %s", e.GUID, e.State, e.Reason)
}

func (e *StateError) Unwrap() error {
	return ErrStateCorruption
}

// NewStateError creates a new StateError.
func NewStateError(guid, state, reason string) *StateError {
	return &StateError{
		GUID:   guid,
		State:  state,
		Reason: reason,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// NoData returns a DataError wrapping ErrNoDataFound.
func NoData(dataType, symbol, message string) *DataError {
	return NewDataError(dataType, symbol, message, ErrNoDataFound)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
