package utils

import (
	"time"
)

// MarketStatus is the state of the US equity options session.
type MarketStatus string

const (
	MarketPreOpen MarketStatus = "PRE_OPEN"
	MarketOpen    MarketStatus = "OPEN"
	MarketClosed  MarketStatus = "CLOSED"
)

// NewYork is the timezone of the US option exchanges.
var NewYork *time.Location

func init() {
	var err error
	NewYork, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback to EST without daylight saving
		NewYork = time.FixedZone("EST", -5*60*60)
	}
}

// IsTradingDay reports whether t falls on a weekday. Exchange holidays are
// not modelled.
func IsTradingDay(t time.Time) bool {
	wd := t.In(NewYork).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// MarketStatusAt returns the session status at t.
func MarketStatusAt(t time.Time) MarketStatus {
	now := t.In(NewYork)
	if !IsTradingDay(now) {
		return MarketClosed
	}

	minutes := now.Hour()*60 + now.Minute()
	switch {
	case minutes >= 4*60 && minutes < 9*60+30:
		return MarketPreOpen
	case minutes >= 9*60+30 && minutes < 16*60:
		return MarketOpen
	}
	return MarketClosed
}

// GetMarketStatus returns the current market status.
func GetMarketStatus() MarketStatus {
	return MarketStatusAt(time.Now())
}

// NextMarketOpen returns the next session open after t.
func NextMarketOpen(t time.Time) time.Time {
	now := t.In(NewYork)
	next := time.Date(now.Year(), now.Month(), now.Day(), 9, 30, 0, 0, NewYork)
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	for !IsTradingDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// MarketClose returns the session close on t's trading date.
func MarketClose(t time.Time) time.Time {
	now := t.In(NewYork)
	return time.Date(now.Year(), now.Month(), now.Day(), 16, 0, 0, 0, NewYork)
}
