package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
)

func recordSpread(t *testing.T, record map[string]string) *models.Spread {
	t.Helper()
	s, err := SpreadFromRecord(record)
	require.NoError(t, err)
	return s
}

func TestValidateBearCallCreditRecord(t *testing.T) {
	s := recordSpread(t, map[string]string{
		RecordTicker:        "NKE",
		RecordStrategy:      "CREDIT",
		RecordDirection:     "BEARISH",
		RecordShortContract: "O:NKE250411C00079000",
		RecordLongContract:  "O:NKE250411C00100000",
		RecordEntryPrice:    "78.59",
		RecordTargetPrice:   "370.00",
		RecordStopPrice:     "1730.00",
	})

	errs := NewStrategyValidator().ValidateSpread(s)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "Bearish strategy has target price (370.00) >= entry price (78.59)")
	assert.Contains(t, errs[1], "Bearish call credit spread should sell higher strike and buy lower strike")
	assert.Equal(t, models.DirectionBullish, InferDirection(s), "short 79 below long 100 reads bullish")
}

func TestValidateDebitStrikeOrder(t *testing.T) {
	s := recordSpread(t, map[string]string{
		RecordTicker:        "AAPL",
		RecordStrategy:      "debit",
		RecordDirection:     "bullish",
		RecordShortContract: "O:AAPL250321C00190000",
		RecordLongContract:  "O:AAPL250321C00200000",
		RecordEntryPrice:    "195",
		RecordTargetPrice:   "199",
		RecordStopPrice:     "192",
	})

	errs := NewStrategyValidator().ValidateSpread(s)
	require.Len(t, errs, 1)
	assert.Equal(t, "Bullish call debit spread: Bullish call debit spread should buy lower strike and sell higher strike", errs[0])

	s.ShortContract, s.LongContract = s.LongContract, s.ShortContract
	assert.Empty(t, NewStrategyValidator().ValidateSpread(s))
}

func TestValidateBearPutDebit(t *testing.T) {
	s := recordSpread(t, map[string]string{
		RecordTicker:        "QQQ",
		RecordStrategy:      "DEBIT",
		RecordDirection:     "BEARISH",
		RecordShortContract: "O:QQQ250321P00500000",
		RecordLongContract:  "O:QQQ250321P00490000",
		RecordEntryPrice:    "505",
		RecordTargetPrice:   "510",
		RecordStopPrice:     "500",
	})

	errs := NewStrategyValidator().ValidateSpread(s)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "Bearish strategy has target price (510.00) >= entry price (505.00)")
	assert.Contains(t, errs[1], "Bearish strategy has stop price (500.00) <= entry price (505.00)")
	assert.Contains(t, errs[2], "Bearish put debit spread should buy higher strike and sell lower strike")
}

func TestValidateMissingLegs(t *testing.T) {
	s := models.NewSpread("SPY", models.StrategyCredit, models.DirectionBullish)
	s.ContractType = models.ContractTypePut

	errs := NewStrategyValidator().ValidateSpread(s)
	require.Len(t, errs, 1)
	assert.Equal(t, "Bullish put credit spread: Missing contract information", errs[0])
}

func TestValidateMismatchedContractTypes(t *testing.T) {
	s := recordSpread(t, map[string]string{
		RecordTicker:        "SPY",
		RecordStrategy:      "CREDIT",
		RecordDirection:     "BULLISH",
		RecordShortContract: "O:SPY250321P00095000",
		RecordLongContract:  "O:SPY250321C00090000",
	})

	errs := NewStrategyValidator().ValidateSpread(s)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Contract types don't match: put vs call")
}

func TestValidateSpreadsOrdersDebitFirst(t *testing.T) {
	credit := models.NewSpread("SPY", models.StrategyCredit, models.DirectionBullish)
	debit := models.NewSpread("SPY", models.StrategyDebit, models.DirectionBullish)
	credit.ContractType = models.ContractTypePut
	debit.ContractType = models.ContractTypeCall

	errs := NewStrategyValidator().ValidateSpreads([]*models.Spread{credit, nil, debit})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "debit spread")
	assert.Contains(t, errs[1], "credit spread")

	assert.NotNil(t, NewStrategyValidator().ValidateSpreads(nil))
}

func TestValidatorDoesNotMutate(t *testing.T) {
	s := recordSpread(t, map[string]string{
		RecordTicker:        "NKE",
		RecordStrategy:      "CREDIT",
		RecordDirection:     "BEARISH",
		RecordShortContract: "O:NKE250411C00079000",
		RecordLongContract:  "O:NKE250411C00100000",
		RecordEntryPrice:    "78.59",
	})
	before := s.Clone()

	NewStrategyValidator().ValidateSpread(s)
	assert.Equal(t, before, s)
}

func TestInferDirection(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		short    string
		long     string
		want     models.DirectionType
	}{
		{"put credit selling higher", "CREDIT", "O:SPY250321P00095000", "O:SPY250321P00090000", models.DirectionBullish},
		{"put credit selling lower", "CREDIT", "O:SPY250321P00090000", "O:SPY250321P00095000", models.DirectionBearish},
		{"call credit selling lower", "CREDIT", "O:SPY250321C00100000", "O:SPY250321C00110000", models.DirectionBullish},
		{"call credit selling higher", "CREDIT", "O:SPY250321C00110000", "O:SPY250321C00100000", models.DirectionBearish},
		{"call debit buying lower", "DEBIT", "O:SPY250321C00105000", "O:SPY250321C00100000", models.DirectionBullish},
		{"call debit buying higher", "DEBIT", "O:SPY250321C00100000", "O:SPY250321C00105000", models.DirectionBearish},
		{"put debit buying higher", "DEBIT", "O:SPY250321P00090000", "O:SPY250321P00095000", models.DirectionBullish},
		{"put debit buying lower", "DEBIT", "O:SPY250321P00095000", "O:SPY250321P00090000", models.DirectionBearish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := recordSpread(t, map[string]string{
				RecordTicker:        "SPY",
				RecordStrategy:      tt.strategy,
				RecordDirection:     "BULLISH",
				RecordShortContract: tt.short,
				RecordLongContract:  tt.long,
			})
			assert.Equal(t, tt.want, InferDirection(s))
		})
	}

	s := models.NewSpread("SPY", models.StrategyCredit, models.DirectionBearish)
	assert.Equal(t, models.DirectionBearish, InferDirection(s))

	mixed := recordSpread(t, map[string]string{
		RecordTicker:        "SPY",
		RecordStrategy:      "CREDIT",
		RecordDirection:     "BEARISH",
		RecordShortContract: "O:SPY250321P00095000",
		RecordLongContract:  "O:SPY250321C00090000",
	})
	assert.Equal(t, models.DirectionBearish, InferDirection(mixed))
}

func TestDirectionCorrections(t *testing.T) {
	bearCall := recordSpread(t, map[string]string{
		RecordTicker:        "NKE",
		RecordStrategy:      "CREDIT",
		RecordDirection:     "BEARISH",
		RecordShortContract: "O:NKE250411C00079000",
		RecordLongContract:  "O:NKE250411C00100000",
	})
	bullPut := recordSpread(t, map[string]string{
		RecordTicker:        "SPY",
		RecordStrategy:      "CREDIT",
		RecordDirection:     "BULLISH",
		RecordShortContract: "O:SPY250321P00095000",
		RecordLongContract:  "O:SPY250321P00090000",
	})

	got := DirectionCorrections([]*models.Spread{bearCall, nil, bullPut})
	require.Len(t, got, 1)
	assert.Equal(t, DirectionCorrection{
		Spread:   "NKE Bearish call credit spread",
		Declared: models.DirectionBearish,
		Inferred: models.DirectionBullish,
	}, got[0])
	assert.Empty(t, DirectionCorrections([]*models.Spread{bullPut}))
}

func TestSpreadFromRecordErrors(t *testing.T) {
	_, err := SpreadFromRecord(map[string]string{RecordStrategy: "IRON", RecordDirection: "BULLISH"})
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	_, err = SpreadFromRecord(map[string]string{RecordStrategy: "CREDIT", RecordDirection: "SIDEWAYS"})
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	_, err = SpreadFromRecord(map[string]string{
		RecordStrategy:      "CREDIT",
		RecordDirection:     "BULLISH",
		RecordShortContract: "garbage",
	})
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	_, err = SpreadFromRecord(map[string]string{
		RecordStrategy:   "CREDIT",
		RecordDirection:  "BULLISH",
		RecordEntryPrice: "abc",
	})
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}
