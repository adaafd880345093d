package trading

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
)

// StrategyValidator audits populated spreads for strategy invariants. It is
// stateless and never mutates its input.
type StrategyValidator struct{}

// NewStrategyValidator creates a validator.
func NewStrategyValidator() *StrategyValidator {
	return &StrategyValidator{}
}

// ValidateSpread returns the problems found in one spread; empty means valid.
func (v *StrategyValidator) ValidateSpread(s *models.Spread) []string {
	return v.ValidateSpreads([]*models.Spread{s})
}

// ValidateSpreads validates a batch, debit spreads first, then credit spreads.
func (v *StrategyValidator) ValidateSpreads(spreads []*models.Spread) []string {
	var debit, credit []*models.Spread
	for _, s := range spreads {
		if s == nil {
			continue
		}
		switch s.Strategy {
		case models.StrategyDebit:
			debit = append(debit, s)
		case models.StrategyCredit:
			credit = append(credit, s)
		}
	}

	errs := []string{}
	for _, s := range debit {
		errs = append(errs, v.validateDebit(s)...)
	}
	for _, s := range credit {
		errs = append(errs, v.validateCredit(s)...)
	}
	return errs
}

func (v *StrategyValidator) validateDebit(s *models.Spread) []string {
	name := spreadName(s)
	errs, ok := v.validateLegs(s, name)
	if !ok {
		return errs
	}
	errs = append(errs, v.validateTargets(s, name)...)

	short, long := s.ShortContract, s.LongContract
	switch s.Direction {
	case models.DirectionBullish:
		if short.ContractType == models.ContractTypeCall && long.StrikePrice.GreaterThanOrEqual(short.StrikePrice) {
			errs = append(errs, name+": Bullish call debit spread should buy lower strike and sell higher strike")
		}
	case models.DirectionBearish:
		if short.ContractType == models.ContractTypePut && long.StrikePrice.LessThanOrEqual(short.StrikePrice) {
			errs = append(errs, name+": Bearish put debit spread should buy higher strike and sell lower strike")
		}
	}
	return errs
}

func (v *StrategyValidator) validateCredit(s *models.Spread) []string {
	name := spreadName(s)
	errs, ok := v.validateLegs(s, name)
	if !ok {
		return errs
	}
	errs = append(errs, v.validateTargets(s, name)...)

	short, long := s.ShortContract, s.LongContract
	switch s.Direction {
	case models.DirectionBullish:
		if short.ContractType == models.ContractTypePut && short.StrikePrice.LessThanOrEqual(long.StrikePrice) {
			errs = append(errs, name+": Bullish put credit spread should sell higher strike and buy lower strike")
		}
	case models.DirectionBearish:
		if short.ContractType == models.ContractTypeCall && short.StrikePrice.LessThanOrEqual(long.StrikePrice) {
			errs = append(errs, name+": Bearish call credit spread should sell higher strike and buy lower strike")
		}
	}
	return errs
}

// validateLegs checks presence and consistency of the legs. ok is false when
// the remaining checks cannot run.
func (v *StrategyValidator) validateLegs(s *models.Spread, name string) ([]string, bool) {
	if s.ShortContract == nil || s.LongContract == nil {
		return []string{name + ": Missing contract information"}, false
	}
	if s.ShortContract.StrikePrice.IsZero() || s.LongContract.StrikePrice.IsZero() {
		return []string{name + ": Missing strike price information"}, false
	}
	if s.ShortContract.ContractType != s.LongContract.ContractType {
		return []string{fmt.Sprintf("%s: Contract types don't match: %s vs %s",
			name, strings.ToLower(string(s.ShortContract.ContractType)), strings.ToLower(string(s.LongContract.ContractType)))}, false
	}
	return nil, true
}

func (v *StrategyValidator) validateTargets(s *models.Spread, name string) []string {
	var errs []string
	target, entry, stop := s.TargetPrice.StringFixed(2), s.EntryPrice.StringFixed(2), s.StopPrice.StringFixed(2)
	switch s.Direction {
	case models.DirectionBullish:
		if s.TargetPrice.LessThanOrEqual(s.EntryPrice) {
			errs = append(errs, fmt.Sprintf("%s: Bullish strategy has target price (%s) <= entry price (%s)", name, target, entry))
		}
		if s.StopPrice.GreaterThanOrEqual(s.EntryPrice) {
			errs = append(errs, fmt.Sprintf("%s: Bullish strategy has stop price (%s) >= entry price (%s)", name, stop, entry))
		}
	case models.DirectionBearish:
		if s.TargetPrice.GreaterThanOrEqual(s.EntryPrice) {
			errs = append(errs, fmt.Sprintf("%s: Bearish strategy has target price (%s) >= entry price (%s)", name, target, entry))
		}
		if s.StopPrice.LessThanOrEqual(s.EntryPrice) {
			errs = append(errs, fmt.Sprintf("%s: Bearish strategy has stop price (%s) <= entry price (%s)", name, stop, entry))
		}
	}
	return errs
}

func spreadName(s *models.Spread) string {
	contractType := s.ContractType
	if s.ShortContract != nil {
		contractType = s.ShortContract.ContractType
	}
	return fmt.Sprintf("%s %s %s spread", models.Title(string(s.Direction)),
		strings.ToLower(string(contractType)), strings.ToLower(string(s.Strategy)))
}

// InferDirection returns the direction implied by the legs for the spread's
// strategy and contract type, or the spread's own direction when the legs do
// not decide it.
func InferDirection(s *models.Spread) models.DirectionType {
	if !s.HasLegs() || s.ShortContract.ContractType != s.LongContract.ContractType {
		return s.Direction
	}
	short, long := s.ShortContract.StrikePrice, s.LongContract.StrikePrice
	if short.Equal(long) {
		return s.Direction
	}

	var bullish bool
	switch s.Strategy {
	case models.StrategyCredit:
		if s.ShortContract.ContractType == models.ContractTypePut {
			bullish = short.GreaterThan(long)
		} else {
			bullish = short.LessThan(long)
		}
	case models.StrategyDebit:
		if s.ShortContract.ContractType == models.ContractTypePut {
			bullish = long.GreaterThan(short)
		} else {
			bullish = long.LessThan(short)
		}
	default:
		return s.Direction
	}
	if bullish {
		return models.DirectionBullish
	}
	return models.DirectionBearish
}

// DirectionCorrection is a spread whose legs imply another direction than
// the one it was recorded with.
type DirectionCorrection struct {
	Spread   string               `json:"spread"`
	Declared models.DirectionType `json:"declared"`
	Inferred models.DirectionType `json:"inferred"`
}

// DirectionCorrections lists the spreads whose inferred direction differs
// from their declared one.
func DirectionCorrections(spreads []*models.Spread) []DirectionCorrection {
	corrections := []DirectionCorrection{}
	for _, s := range spreads {
		if s == nil {
			continue
		}
		if inferred := InferDirection(s); inferred != s.Direction {
			corrections = append(corrections, DirectionCorrection{
				Spread:   fmt.Sprintf("%s %s", s.UnderlyingTicker, spreadName(s)),
				Declared: s.Direction,
				Inferred: inferred,
			})
		}
	}
	return corrections
}

// Report record column names.
const (
	RecordTicker        = "Ticker"
	RecordStrategy      = "Strategy"
	RecordDirection     = "Direction"
	RecordShortContract = "Short Contract"
	RecordLongContract  = "Long Contract"
	RecordEntryPrice    = "Entry Price"
	RecordTargetPrice   = "Target Price"
	RecordStopPrice     = "Stop Price"
)

// SpreadFromRecord builds an auditable spread from a flat report row whose
// legs are given as OCC option tickers.
func SpreadFromRecord(record map[string]string) (*models.Spread, error) {
	strategy, err := models.ParseStrategy(record[RecordStrategy])
	if err != nil {
		return nil, apperrors.NewValidationError(RecordStrategy, record[RecordStrategy], err.Error())
	}
	direction, err := models.ParseDirection(record[RecordDirection])
	if err != nil {
		return nil, apperrors.NewValidationError(RecordDirection, record[RecordDirection], err.Error())
	}

	s := models.NewSpread(record[RecordTicker], strategy, direction)
	if raw := record[RecordShortContract]; raw != "" {
		c, err := models.ParseOptionTicker(raw)
		if err != nil {
			return nil, apperrors.NewValidationError(RecordShortContract, raw, err.Error())
		}
		s.ShortContract = c
		s.ContractType = c.ContractType
		s.ExpirationDate = c.ExpirationDate
	}
	if raw := record[RecordLongContract]; raw != "" {
		c, err := models.ParseOptionTicker(raw)
		if err != nil {
			return nil, apperrors.NewValidationError(RecordLongContract, raw, err.Error())
		}
		s.LongContract = c
	}

	prices := []struct {
		field string
		dst   *decimal.Decimal
	}{
		{RecordEntryPrice, &s.EntryPrice},
		{RecordTargetPrice, &s.TargetPrice},
		{RecordStopPrice, &s.StopPrice},
	}
	for _, p := range prices {
		raw := strings.TrimSpace(record[p.field])
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, apperrors.NewValidationError(p.field, raw, "not a decimal")
		}
		*p.dst = d
	}
	return s, nil
}
