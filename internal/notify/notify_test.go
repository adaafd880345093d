package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
)

type recordingChannel struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (r *recordingChannel) Name() string    { return "recording" }
func (r *recordingChannel) IsEnabled() bool { return true }
func (r *recordingChannel) Send(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func testSpread(status models.TradeState) *models.Spread {
	s := models.NewSpread("SPY", models.StrategyCredit, models.DirectionBullish)
	s.ContractType = models.ContractTypePut
	s.ExpirationDate = time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)
	s.AgentStatus = status
	s.ActualEntryPrice = decimal.RequireFromString("100.2")
	s.TargetPrice = decimal.RequireFromString("100.91")
	s.StopPrice = decimal.RequireFromString("99.43")
	if status == models.TradeStateCompleted {
		s.ActualExitPrice = decimal.RequireFromString("101")
		s.RealizedPnL = decimal.RequireFromString("80")
		s.TradeOutcome = models.OutcomeProfit
	}
	return s
}

func TestTradeNotification(t *testing.T) {
	opened := TradeNotification(testSpread(models.TradeStateActive))
	assert.Equal(t, NotificationTrade, opened.Type)
	assert.Equal(t, "Opened SPY Bullish Put Credit", opened.Title)
	assert.Equal(t, "Entry 100.20, target 100.91, stop 99.43", opened.Message)

	closed := TradeNotification(testSpread(models.TradeStateCompleted))
	assert.Equal(t, "Closed SPY Bullish Put Credit", closed.Title)
	assert.Equal(t, "80.00", closed.Data["realized_pnl"])
	assert.Equal(t, "profit", closed.Data["outcome"])
}

func TestLevelFiltering(t *testing.T) {
	ctx := context.Background()
	perf := models.DailyPerformance{Date: time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), TotalTrades: 1}

	tests := []struct {
		level Level
		want  []NotificationType
	}{
		{LevelAll, []NotificationType{NotificationTrade, NotificationSummary, NotificationError}},
		{LevelTradesOnly, []NotificationType{NotificationTrade}},
		{LevelErrorsOnly, []NotificationType{NotificationError}},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			mn := New(Config{Level: tt.level}, zerolog.Nop())
			rec := &recordingChannel{}
			mn.AddChannel(rec)

			require.NoError(t, mn.NotifyCycle(ctx, []*models.Spread{testSpread(models.TradeStateActive)}, perf))
			require.NoError(t, mn.NotifyError(ctx, errors.New("boom"), "agent"))

			var got []NotificationType
			for _, n := range rec.sent {
				got = append(got, n.Type)
				assert.False(t, n.Timestamp.IsZero())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWebhookChannelPostsJSON(t *testing.T) {
	var received Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	mn := New(Config{WebhookURL: srv.URL}, zerolog.Nop())
	perf := models.DailyPerformance{
		Date:        time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
		TotalTrades: 4,
		WinRate:     decimal.RequireFromString("0.5"),
		TotalPnL:    decimal.RequireFromString("120"),
	}
	require.NoError(t, mn.Send(context.Background(), SummaryNotification(perf)))

	assert.Equal(t, NotificationSummary, received.Type)
	assert.Equal(t, "Daily summary 2025-02-03", received.Title)
	assert.Equal(t, "4 trades (0 active, 0 completed), win rate 50.0%, P&L +$120.00", received.Message)
}

func TestSendCollectsChannelFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	mn := New(Config{WebhookURL: srv.URL}, zerolog.Nop())
	rec := &recordingChannel{}
	mn.AddChannel(rec)

	err := mn.NotifyError(context.Background(), errors.New("boom"), "scan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook: webhook returned status 502")
	assert.Len(t, rec.sent, 1)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelAll, l)

	l, err = ParseLevel("Trades_Only")
	require.NoError(t, err)
	assert.Equal(t, LevelTradesOnly, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
