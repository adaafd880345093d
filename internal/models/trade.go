package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyPerformance is the agent's aggregate performance snapshot for a day.
type DailyPerformance struct {
	Date            time.Time       `json:"date"`
	TotalTrades     int             `json:"total_trades"`
	WinningTrades   int             `json:"winning_trades"`
	ActiveTrades    int             `json:"active_trades"`
	CompletedTrades int             `json:"completed_trades"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	WinRate         decimal.Decimal `json:"win_rate"`
}
