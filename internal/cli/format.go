package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
	"github.com/mousou2003/MouSouTrade-sub000/pkg/utils"
)

// DateLayout is the date format accepted by --date flags.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date at midnight New York time. An empty
// string yields today.
func ParseDate(s string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		n := now.In(utils.NewYork)
		return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, utils.NewYork), nil
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), utils.NewYork)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected %s", s, DateLayout)
	}
	return t, nil
}

// FormatDate formats a date.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02-Jan-2006")
}

// FormatDateTime formats a timestamp in New York time.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.In(utils.NewYork).Format("02-Jan-2006 15:04:05 MST")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// FormatLeg formats a leg as strike plus type letter, e.g. "95P".
func FormatLeg(c *models.Contract) string {
	if c == nil {
		return "-"
	}
	return utils.FormatStrike(c.StrikePrice) + string(c.ContractType)[:1]
}

// FormatLegs formats both legs as "short/long".
func FormatLegs(s *models.Spread) string {
	return FormatLeg(s.ShortContract) + "/" + FormatLeg(s.LongContract)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
