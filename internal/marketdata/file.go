package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
)

const dateLayout = "2006-01-02"

// fixture is the on-disk form of one underlying's market data.
type fixture struct {
	Ticker        string                     `json:"ticker"`
	PreviousClose decimal.Decimal            `json:"previous_close"`
	Bars          []fixtureBar               `json:"bars"`
	Contracts     []fixtureContract          `json:"contracts"`
	Snapshots     map[string]models.Snapshot `json:"snapshots"`
}

type fixtureBar struct {
	Date   string          `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

type fixtureContract struct {
	Ticker            string          `json:"ticker"`
	ContractType      string          `json:"contract_type"`
	StrikePrice       decimal.Decimal `json:"strike_price"`
	ExpirationDate    string          `json:"expiration_date"`
	ExerciseStyle     string          `json:"exercise_style"`
	SharesPerContract int             `json:"shares_per_contract"`
}

func (f *fixture) underlying() (*Underlying, error) {
	ticker := strings.ToUpper(strings.TrimSpace(f.Ticker))
	if ticker == "" {
		return nil, apperrors.NewValidationError("ticker", f.Ticker, "fixture ticker is required")
	}
	u := &Underlying{
		Ticker:        ticker,
		PreviousClose: f.PreviousClose,
		Snapshots:     make(map[string]*models.Snapshot, len(f.Snapshots)),
	}

	for _, b := range f.Bars {
		date, err := time.Parse(dateLayout, b.Date)
		if err != nil {
			return nil, apperrors.NewValidationError("bars.date", b.Date, "expected YYYY-MM-DD")
		}
		u.Bars = append(u.Bars, models.DailyBar{
			Ticker: ticker, Date: date,
			Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
			Volume: b.Volume,
		})
	}

	for _, c := range f.Contracts {
		contract, err := c.contract(ticker)
		if err != nil {
			return nil, err
		}
		u.Contracts = append(u.Contracts, *contract)
	}

	for optionTicker, s := range f.Snapshots {
		snap := s
		snap.Ticker = optionTicker
		u.Snapshots[optionTicker] = &snap
	}
	return u, nil
}

// contract builds a contract from explicit fields, falling back to the OCC
// ticker for anything left out.
func (c fixtureContract) contract(underlying string) (*models.Contract, error) {
	parsed, err := models.ParseOptionTicker(c.Ticker)
	if err != nil {
		return nil, apperrors.NewValidationError("contracts.ticker", c.Ticker, err.Error())
	}
	parsed.UnderlyingTicker = underlying
	if c.ContractType != "" {
		ct, err := models.ParseContractType(c.ContractType)
		if err != nil {
			return nil, apperrors.NewValidationError("contracts.contract_type", c.ContractType, err.Error())
		}
		parsed.ContractType = ct
	}
	if c.StrikePrice.IsPositive() {
		parsed.StrikePrice = c.StrikePrice
	}
	if c.ExpirationDate != "" {
		exp, err := time.Parse(dateLayout, c.ExpirationDate)
		if err != nil {
			return nil, apperrors.NewValidationError("contracts.expiration_date", c.ExpirationDate, "expected YYYY-MM-DD")
		}
		parsed.ExpirationDate = exp
	}
	if c.ExerciseStyle != "" {
		parsed.ExerciseStyle = models.ExerciseStyle(strings.ToLower(c.ExerciseStyle))
	}
	if c.SharesPerContract > 0 {
		parsed.SharesPerContract = c.SharesPerContract
	}
	return parsed, nil
}

// FileSource replays market data from a directory holding one <TICKER>.json
// fixture per underlying. Fixtures are decoded on first use.
type FileSource struct {
	dir    string
	mem    *MemorySource
	mu     sync.Mutex
	loaded map[string]bool
}

// NewFileSource creates a source reading fixtures from dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{
		dir:    dir,
		mem:    NewMemorySource(),
		loaded: make(map[string]bool),
	}
}

// LoadFixture decodes a single fixture file into an Underlying.
func LoadFixture(path string) (*Underlying, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture %s: %w", path, err)
	}
	var f fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding fixture %s: %w", path, err)
	}
	return f.underlying()
}

func (s *FileSource) ensure(ticker string) error {
	ticker = strings.ToUpper(ticker)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded[ticker] {
		return nil
	}

	path := filepath.Join(s.dir, ticker+".json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return apperrors.NoData("fixture", ticker, "no fixture file")
	}
	u, err := LoadFixture(path)
	if err != nil {
		return err
	}
	s.mem.Put(u)
	s.loaded[ticker] = true
	return nil
}

// GetOptionContracts implements Source.
func (s *FileSource) GetOptionContracts(ctx context.Context, underlying string, expiryFrom, expiryTo time.Time, contractType models.ContractType, order models.SortOrder) ([]models.Contract, error) {
	if err := s.ensure(underlying); err != nil {
		return nil, err
	}
	return s.mem.GetOptionContracts(ctx, underlying, expiryFrom, expiryTo, contractType, order)
}

// GetSnapshot implements Source.
func (s *FileSource) GetSnapshot(ctx context.Context, underlying, optionTicker string) (*models.Snapshot, error) {
	if err := s.ensure(underlying); err != nil {
		return nil, err
	}
	return s.mem.GetSnapshot(ctx, underlying, optionTicker)
}

// GetPreviousClose implements Source.
func (s *FileSource) GetPreviousClose(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if err := s.ensure(ticker); err != nil {
		return decimal.Zero, err
	}
	return s.mem.GetPreviousClose(ctx, ticker)
}

// GetDailyBar implements Source.
func (s *FileSource) GetDailyBar(ctx context.Context, ticker string, date time.Time) (*models.DailyBar, error) {
	if err := s.ensure(ticker); err != nil {
		return nil, err
	}
	return s.mem.GetDailyBar(ctx, ticker, date)
}
