// Package notify sends trade lifecycle and performance notifications from
// the agent cycle to webhooks and the log.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
	"github.com/mousou2003/MouSouTrade-sub000/pkg/utils"
)

// Channel delivers notifications to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationTrade   NotificationType = "trade"
	NotificationError   NotificationType = "error"
	NotificationSummary NotificationType = "summary"
)

// Level filters which notification types are delivered.
type Level string

const (
	LevelAll        Level = "all"
	LevelTradesOnly Level = "trades_only"
	LevelErrorsOnly Level = "errors_only"
)

// ParseLevel validates a configured level; empty means all.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return LevelAll, nil
	case LevelAll, LevelTradesOnly, LevelErrorsOnly:
		return l, nil
	default:
		return "", fmt.Errorf("unknown notification level %q", s)
	}
}

// Config configures a MultiNotifier.
type Config struct {
	Level      Level
	WebhookURL string
	Timeout    time.Duration
}

// MultiNotifier fans notifications out to every enabled channel.
type MultiNotifier struct {
	level    Level
	mu       sync.RWMutex
	channels []Channel
	now      func() time.Time
}

// New creates a notifier that always logs and posts to the webhook when a
// URL is configured.
func New(cfg Config, logger zerolog.Logger) *MultiNotifier {
	mn := &MultiNotifier{level: cfg.Level, now: time.Now}
	if mn.level == "" {
		mn.level = LevelAll
	}
	mn.AddChannel(NewLogChannel(logger))
	if cfg.WebhookURL != "" {
		mn.AddChannel(NewWebhookChannel(cfg.WebhookURL, cfg.Timeout))
	}
	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch Channel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

func (mn *MultiNotifier) shouldSend(t NotificationType) bool {
	switch mn.level {
	case LevelTradesOnly:
		return t == NotificationTrade
	case LevelErrorsOnly:
		return t == NotificationError
	default:
		return true
	}
}

// Send delivers n to every enabled channel. Every channel is tried; the
// failures are reported together.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = mn.now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NotifyCycle reports every spread the agent moved this cycle, then the
// day's performance.
func (mn *MultiNotifier) NotifyCycle(ctx context.Context, changed []*models.Spread, perf models.DailyPerformance) error {
	var errs []string
	for _, s := range changed {
		if err := mn.Send(ctx, TradeNotification(s)); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := mn.Send(ctx, SummaryNotification(perf)); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// NotifyError reports a failed job run.
func (mn *MultiNotifier) NotifyError(ctx context.Context, err error, where string) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   "Error in " + where,
		Message: err.Error(),
		Data: map[string]interface{}{
			"context": where,
			"error":   err.Error(),
		},
	})
}

// TradeNotification describes a spread's lifecycle transition.
func TradeNotification(s *models.Spread) Notification {
	data := map[string]interface{}{
		"guid":       s.GUID,
		"ticker":     s.UnderlyingTicker,
		"spread":     s.Label(),
		"status":     string(s.Status()),
		"expiration": s.ExpirationDate.Format("2006-01-02"),
	}

	var title, message string
	switch s.Status() {
	case models.TradeStateCompleted:
		title = fmt.Sprintf("Closed %s %s", s.UnderlyingTicker, s.Label())
		message = fmt.Sprintf("Exit %s, P&L %s (%s)",
			s.ActualExitPrice.StringFixed(2), utils.FormatPnL(s.RealizedPnL), s.TradeOutcome)
		data["exit_price"] = s.ActualExitPrice.StringFixed(2)
		data["realized_pnl"] = s.RealizedPnL.StringFixed(2)
		data["outcome"] = string(s.TradeOutcome)
	default:
		title = fmt.Sprintf("Opened %s %s", s.UnderlyingTicker, s.Label())
		message = fmt.Sprintf("Entry %s, target %s, stop %s",
			s.ActualEntryPrice.StringFixed(2), s.TargetPrice.StringFixed(2), s.StopPrice.StringFixed(2))
		data["entry_price"] = s.ActualEntryPrice.StringFixed(2)
	}

	return Notification{Type: NotificationTrade, Title: title, Message: message, Data: data}
}

// SummaryNotification describes a day's performance snapshot.
func SummaryNotification(p models.DailyPerformance) Notification {
	date := p.Date.Format("2006-01-02")
	return Notification{
		Type:  NotificationSummary,
		Title: "Daily summary " + date,
		Message: fmt.Sprintf("%d trades (%d active, %d completed), win rate %s, P&L %s",
			p.TotalTrades, p.ActiveTrades, p.CompletedTrades, utils.FormatRatio(p.WinRate), utils.FormatPnL(p.TotalPnL)),
		Data: map[string]interface{}{
			"date":             date,
			"total_trades":     p.TotalTrades,
			"winning_trades":   p.WinningTrades,
			"active_trades":    p.ActiveTrades,
			"completed_trades": p.CompletedTrades,
			"total_pnl":        p.TotalPnL.StringFixed(2),
			"win_rate":         p.WinRate.StringFixed(4),
		},
	}
}

// WebhookChannel posts notifications as JSON.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel creates a webhook channel; a zero timeout uses 10s.
func NewWebhookChannel(url string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the name of the channel.
func (w *WebhookChannel) Name() string {
	return "webhook"
}

// IsEnabled returns whether the channel has a destination.
func (w *WebhookChannel) IsEnabled() bool {
	return w.url != ""
}

// Send posts n to the webhook URL.
func (w *WebhookChannel) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "MouSouTrade/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogChannel writes notifications to the structured log.
type LogChannel struct {
	logger zerolog.Logger
}

// NewLogChannel creates a log channel.
func NewLogChannel(logger zerolog.Logger) *LogChannel {
	return &LogChannel{logger: logger.With().Str("component", "notify").Logger()}
}

// Name returns the name of the channel.
func (l *LogChannel) Name() string {
	return "log"
}

// IsEnabled always returns true.
func (l *LogChannel) IsEnabled() bool {
	return true
}

// Send logs n; errors at error level, the rest at info.
func (l *LogChannel) Send(_ context.Context, n Notification) error {
	event := l.logger.Info()
	if n.Type == NotificationError {
		event = l.logger.Error()
	}
	event.Str("type", string(n.Type)).Str("title", n.Title).Msg(n.Message)
	return nil
}
