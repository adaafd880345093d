package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSharesPerContract is the standard US equity option multiplier.
const DefaultSharesPerContract = 100

// Contract represents a listed option contract. Contracts are immutable once
// loaded and are identified by Ticker.
type Contract struct {
	Ticker            string          `json:"ticker"`
	UnderlyingTicker  string          `json:"underlying_ticker"`
	ContractType      ContractType    `json:"contract_type"`
	StrikePrice       decimal.Decimal `json:"strike_price"`
	ExpirationDate    time.Time       `json:"expiration_date"`
	ExerciseStyle     ExerciseStyle   `json:"exercise_style,omitempty"`
	SharesPerContract int             `json:"shares_per_contract,omitempty"`
}

// Multiplier returns the number of shares a contract controls.
func (c *Contract) Multiplier() int {
	if c.SharesPerContract <= 0 {
		return DefaultSharesPerContract
	}
	return c.SharesPerContract
}

// SameExpiration reports whether two contracts expire on the same calendar day.
func (c *Contract) SameExpiration(other *Contract) bool {
	ay, am, ad := c.ExpirationDate.Date()
	by, bm, bd := other.ExpirationDate.Date()
	return ay == by && am == bm && ad == bd
}

// ParseOptionTicker decodes an OCC style option ticker such as
// "O:AAPL250117C00210000" into a Contract. The strike is encoded in
// thousandths of a dollar.
func ParseOptionTicker(ticker string) (*Contract, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(ticker), "O:")
	if len(raw) < 16 {
		return nil, fmt.Errorf("option ticker %q too short", ticker)
	}

	underlying := raw[:len(raw)-15]
	datePart := raw[len(raw)-15 : len(raw)-9]
	typePart := raw[len(raw)-9 : len(raw)-8]
	strikePart := raw[len(raw)-8:]

	expiration, err := time.Parse("060102", datePart)
	if err != nil {
		return nil, fmt.Errorf("option ticker %q: invalid expiration: %w", ticker, err)
	}
	contractType, err := ParseContractType(typePart)
	if err != nil {
		return nil, fmt.Errorf("option ticker %q: %w", ticker, err)
	}
	strikeMillis, err := decimal.NewFromString(strikePart)
	if err != nil || strikeMillis.IsNegative() {
		return nil, fmt.Errorf("option ticker %q: invalid strike %q", ticker, strikePart)
	}

	return &Contract{
		Ticker:            "O:" + raw,
		UnderlyingTicker:  underlying,
		ContractType:      contractType,
		StrikePrice:       strikeMillis.Shift(-3),
		ExpirationDate:    expiration,
		SharesPerContract: DefaultSharesPerContract,
	}, nil
}

// FormatOptionTicker builds the OCC style ticker for a contract.
func FormatOptionTicker(underlying string, expiration time.Time, contractType ContractType, strike decimal.Decimal) string {
	letter := "C"
	if contractType == ContractTypePut {
		letter = "P"
	}
	return fmt.Sprintf("O:%s%s%s%08d", strings.ToUpper(underlying), expiration.Format("060102"),
		letter, strike.Shift(3).Round(0).IntPart())
}

// DayData holds a contract's session prices. A zero value means the field
// was not reported.
type DayData struct {
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	LastTrade decimal.Decimal `json:"last_trade"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Volume    int64           `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// Greeks represents option greeks as reported by the data source.
type Greeks struct {
	Delta decimal.Decimal `json:"delta"`
	Gamma decimal.Decimal `json:"gamma"`
	Theta decimal.Decimal `json:"theta"`
	Vega  decimal.Decimal `json:"vega"`
	Rho   decimal.Decimal `json:"rho"`
}

// Snapshot is the latest market state of one contract. Snapshots are replaced
// wholesale on refresh.
type Snapshot struct {
	Ticker            string          `json:"ticker"`
	Day               DayData         `json:"day"`
	OpenInterest      int64           `json:"open_interest"`
	ImpliedVolatility decimal.Decimal `json:"implied_volatility"`
	Greeks            Greeks          `json:"greeks"`
}

// Premium returns the close price, falling back to the last trade.
func (s *Snapshot) Premium() decimal.Decimal {
	if !s.Day.Close.IsZero() {
		return s.Day.Close
	}
	return s.Day.LastTrade
}

// AbsDelta returns |delta|. Put deltas are reported negative.
func (s *Snapshot) AbsDelta() decimal.Decimal {
	return s.Greeks.Delta.Abs()
}

// HasPricing reports whether the snapshot carries the fields needed to price a leg.
func (s *Snapshot) HasPricing() bool {
	return s != nil && s.Premium().IsPositive() && !s.Greeks.Delta.IsZero()
}

// DailyBar is one daily OHLCV bar of an underlying.
type DailyBar struct {
	Ticker string          `json:"ticker"`
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Prices returns the reported OHLC prices, skipping missing ones.
func (b *DailyBar) Prices() []decimal.Decimal {
	if b == nil {
		return nil
	}
	prices := make([]decimal.Decimal, 0, 4)
	for _, p := range []decimal.Decimal{b.Open, b.High, b.Low, b.Close} {
		if p.IsPositive() {
			prices = append(prices, p)
		}
	}
	return prices
}
