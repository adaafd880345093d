package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
)

const dateLayout = "2006-01-02"

// SQLiteStore implements SpreadStore using SQLite.
type SQLiteStore struct {
	db       *sql.DB
	mu       sync.RWMutex
	lastRuns map[string]time.Time
}

// NewSQLiteStore creates a new SQLite-based spread store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:       db,
		lastRuns: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Spreads, one row per (ticker, expiration, strategy, direction)
	CREATE TABLE IF NOT EXISTS spreads (
		guid TEXT PRIMARY KEY,
		spread_key TEXT NOT NULL UNIQUE,
		ticker TEXT NOT NULL,
		strategy TEXT NOT NULL,
		direction TEXT NOT NULL,
		agent_status TEXT NOT NULL DEFAULT 'NONE',
		matched INTEGER NOT NULL DEFAULT 0,
		expiration_date TEXT,
		update_date DATETIME,
		payload TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_spreads_ticker ON spreads(ticker);
	CREATE INDEX IF NOT EXISTS idx_spreads_status ON spreads(agent_status);

	-- Daily agent performance snapshots
	CREATE TABLE IF NOT EXISTS daily_performance (
		date TEXT PRIMARY KEY,
		total_trades INTEGER NOT NULL,
		winning_trades INTEGER NOT NULL,
		active_trades INTEGER NOT NULL,
		completed_trades INTEGER NOT NULL,
		total_pnl TEXT NOT NULL,
		win_rate TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Last successful run of scheduled jobs
	CREATE TABLE IF NOT EXISTS job_runs (
		job TEXT PRIMARY KEY,
		last_run DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Spread Methods
// ============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Save persists a spread and returns its GUID. A spread occupying the slot
// of another spread replaces it, unless the existing one has already been
// entered by the agent, in which case the existing GUID is returned and
// nothing is written.
func (s *SQLiteStore) Save(ctx context.Context, spread *models.Spread) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	guid, err := s.save(ctx, tx, spread)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return guid, nil
}

// SaveAll persists spreads in a single transaction.
func (s *SQLiteStore) SaveAll(ctx context.Context, spreads []*models.Spread) error {
	if len(spreads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, spread := range spreads {
		if _, err := s.save(ctx, tx, spread); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) save(ctx context.Context, tx execer, spread *models.Spread) (string, error) {
	if spread == nil {
		return "", apperrors.NewValidationError("spread", nil, "spread is required")
	}
	guid := spread.EnsureGUID()
	key := spread.Key()

	var existingGUID, existingStatus string
	err := tx.QueryRowContext(ctx, `
		SELECT guid, agent_status FROM spreads WHERE spread_key = ?
	`, key).Scan(&existingGUID, &existingStatus)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return "", fmt.Errorf("failed to query spread slot: %w", err)
	case existingGUID != guid:
		if models.TradeState(existingStatus) != models.TradeStateNone {
			return existingGUID, nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM spreads WHERE guid = ?`, existingGUID); err != nil {
			return "", fmt.Errorf("failed to replace spread: %w", err)
		}
	}

	payload, err := json.Marshal(spread)
	if err != nil {
		return "", fmt.Errorf("failed to encode spread: %w", err)
	}

	var expiration sql.NullString
	if !spread.ExpirationDate.IsZero() {
		expiration = sql.NullString{String: spread.ExpirationDate.Format(dateLayout), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO spreads (guid, spread_key, ticker, strategy, direction, agent_status, matched, expiration_date, update_date, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guid) DO UPDATE SET
			spread_key = excluded.spread_key,
			ticker = excluded.ticker,
			strategy = excluded.strategy,
			direction = excluded.direction,
			agent_status = excluded.agent_status,
			matched = excluded.matched,
			expiration_date = excluded.expiration_date,
			update_date = excluded.update_date,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, guid, key, spread.UnderlyingTicker, string(spread.Strategy), string(spread.Direction),
		string(spread.Status()), spread.Matched, expiration, spread.UpdateDate, string(payload), time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to save spread: %w", err)
	}
	return guid, nil
}

// LoadByTicker retrieves every spread of an underlying.
func (s *SQLiteStore) LoadByTicker(ctx context.Context, ticker string) ([]*models.Spread, error) {
	return s.LoadAll(ctx, SpreadFilter{Ticker: ticker})
}

// LoadByGUID retrieves one spread.
func (s *SQLiteStore) LoadByGUID(ctx context.Context, guid string) (*models.Spread, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM spreads WHERE guid = ?`, guid).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NoData("spread", guid, "not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query spread: %w", err)
	}
	return decodeSpread(payload)
}

// LoadAll retrieves spreads matching filter, ordered by ticker then key.
func (s *SQLiteStore) LoadAll(ctx context.Context, filter SpreadFilter) ([]*models.Spread, error) {
	query := `SELECT payload FROM spreads WHERE 1=1`
	var args []interface{}

	if filter.Ticker != "" {
		query += ` AND ticker = ?`
		args = append(args, strings.ToUpper(filter.Ticker))
	}
	if filter.Status != "" {
		query += ` AND agent_status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.MatchedOnly {
		query += ` AND matched = 1`
	}
	query += ` ORDER BY ticker ASC, spread_key ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query spreads: %w", err)
	}
	defer rows.Close()

	spreads := []*models.Spread{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan spread: %w", err)
		}
		spread, err := decodeSpread(payload)
		if err != nil {
			return nil, err
		}
		spreads = append(spreads, spread)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spreads: %w", err)
	}
	return spreads, nil
}

func decodeSpread(payload string) (*models.Spread, error) {
	var spread models.Spread
	if err := json.Unmarshal([]byte(payload), &spread); err != nil {
		return nil, fmt.Errorf("failed to decode spread: %w", err)
	}
	return &spread, nil
}

// ============================================================================
// Performance Methods
// ============================================================================

// SavePerformance stores the performance snapshot of a day, replacing any
// earlier snapshot of the same day.
func (s *SQLiteStore) SavePerformance(ctx context.Context, perf models.DailyPerformance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO daily_performance
			(date, total_trades, winning_trades, active_trades, completed_trades, total_pnl, win_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, perf.Date.Format(dateLayout), perf.TotalTrades, perf.WinningTrades, perf.ActiveTrades,
		perf.CompletedTrades, perf.TotalPnL.String(), perf.WinRate.String())
	if err != nil {
		return fmt.Errorf("failed to save performance: %w", err)
	}
	return nil
}

// LatestPerformance returns the most recent performance snapshot.
func (s *SQLiteStore) LatestPerformance(ctx context.Context) (*models.DailyPerformance, error) {
	history, err := s.PerformanceHistory(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, apperrors.NoData("performance", "", "no performance recorded")
	}
	return &history[0], nil
}

// PerformanceHistory returns up to limit snapshots, newest first.
func (s *SQLiteStore) PerformanceHistory(ctx context.Context, limit int) ([]models.DailyPerformance, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, total_trades, winning_trades, active_trades, completed_trades, total_pnl, win_rate
		FROM daily_performance
		ORDER BY date DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance: %w", err)
	}
	defer rows.Close()

	var history []models.DailyPerformance
	for rows.Next() {
		var p models.DailyPerformance
		var date, pnl, winRate string
		if err := rows.Scan(&date, &p.TotalTrades, &p.WinningTrades, &p.ActiveTrades, &p.CompletedTrades, &pnl, &winRate); err != nil {
			return nil, fmt.Errorf("failed to scan performance: %w", err)
		}
		if p.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("failed to parse performance date: %w", err)
		}
		if p.TotalPnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("failed to parse total pnl: %w", err)
		}
		if p.WinRate, err = decimal.NewFromString(winRate); err != nil {
			return nil, fmt.Errorf("failed to parse win rate: %w", err)
		}
		history = append(history, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating performance: %w", err)
	}
	return history, nil
}

// ============================================================================
// Job Run Methods
// ============================================================================

// GetLastRun returns the last recorded run of a job, zero if none.
func (s *SQLiteStore) GetLastRun(job string) time.Time {
	s.mu.RLock()
	if t, ok := s.lastRuns[job]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastRun time.Time
	err := s.db.QueryRow(`
		SELECT last_run FROM job_runs WHERE job = ?
	`, job).Scan(&lastRun)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.lastRuns[job] = lastRun
	s.mu.Unlock()

	return lastRun
}

// SetLastRun records the last run of a job.
func (s *SQLiteStore) SetLastRun(job string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO job_runs (job, last_run, updated_at)
		VALUES (?, ?, ?)
	`, job, t, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set last run: %w", err)
	}

	s.mu.Lock()
	s.lastRuns[job] = t
	s.mu.Unlock()

	return nil
}
