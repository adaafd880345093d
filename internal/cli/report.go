package cli

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
	"github.com/mousou2003/MouSouTrade-sub000/internal/scheduler"
	"github.com/mousou2003/MouSouTrade-sub000/internal/store"
	"github.com/mousou2003/MouSouTrade-sub000/pkg/utils"
)

func addReportCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newReportCmd(app))
	rootCmd.AddCommand(newSpreadsCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
}

// StatusReport is the JSON body of the status command.
type StatusReport struct {
	MarketStatus utils.MarketStatus       `json:"market_status"`
	LastRuns     map[string]*time.Time    `json:"last_runs"`
	Latest       *models.DailyPerformance `json:"latest,omitempty"`
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show market status, last job runs and the latest performance",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			db, err := app.OpenStore()
			if err != nil {
				return err
			}

			report := StatusReport{
				MarketStatus: utils.MarketStatusAt(app.now()),
				LastRuns:     map[string]*time.Time{},
			}
			for _, job := range []string{scheduler.ScanJobName, scheduler.AgentJobName} {
				if t := db.GetLastRun(job); !t.IsZero() {
					report.LastRuns[job] = &t
				} else {
					report.LastRuns[job] = nil
				}
			}
			latest, err := db.LatestPerformance(cmd.Context())
			if err != nil && !errors.Is(err, apperrors.ErrNoDataFound) {
				return err
			}
			report.Latest = latest

			if output.IsJSON() {
				return output.JSON(report)
			}

			output.Printf("Market:     %s\n", output.MarketStatus(report.MarketStatus))
			for _, job := range []string{scheduler.ScanJobName, scheduler.AgentJobName} {
				var last time.Time
				if t := report.LastRuns[job]; t != nil {
					last = *t
				}
				output.Printf("Last %-6s %s\n", job+":", FormatDateTime(last))
			}
			if latest != nil {
				output.Println()
				printPerformance(output, *latest)
			}
			return nil
		},
	}
}

func newReportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show daily agent performance",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			limit, _ := cmd.Flags().GetInt("limit")

			db, err := app.OpenStore()
			if err != nil {
				return err
			}
			history, err := db.PerformanceHistory(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				if history == nil {
					history = []models.DailyPerformance{}
				}
				return output.JSON(history)
			}
			if len(history) == 0 {
				output.Dim("No performance recorded yet. Run 'mousoutrade agent' first.")
				return nil
			}

			printPerformance(output, history[0])
			output.Println()

			table := NewTable(output, "DATE", "TRADES", "WINS", "ACTIVE", "COMPLETED", "WIN RATE", "P&L")
			for _, p := range history {
				table.AddRow(
					p.Date.Format(DateLayout),
					strconv.Itoa(p.TotalTrades),
					strconv.Itoa(p.WinningTrades),
					strconv.Itoa(p.ActiveTrades),
					strconv.Itoa(p.CompletedTrades),
					utils.FormatRatio(p.WinRate),
					output.PnL(p.TotalPnL),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().Int("limit", 30, "number of days to show")
	return cmd
}

func printPerformance(output *Output, p models.DailyPerformance) {
	output.Bold("Performance as of %s", FormatDate(p.Date))
	output.Printf("  Trades:    %d (%d active, %d completed)\n", p.TotalTrades, p.ActiveTrades, p.CompletedTrades)
	output.Printf("  Win rate:  %s (%d winning)\n", utils.FormatRatio(p.WinRate), p.WinningTrades)
	output.Printf("  Total P&L: %s\n", output.PnL(p.TotalPnL))
}

func newSpreadsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spreads [ticker]",
		Short: "List stored spreads",
		Args:  cobra.MaximumNArgs(1),
		Example: `  mousoutrade spreads
  mousoutrade spreads SPY --matched
  mousoutrade spreads --status ACTIVE`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			matched, _ := cmd.Flags().GetBool("matched")
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")

			filter := store.SpreadFilter{MatchedOnly: matched, Limit: limit}
			if len(args) == 1 {
				filter.Ticker = args[0]
			}
			if status != "" {
				state := models.TradeState(strings.ToUpper(status))
				switch state {
				case models.TradeStateNone, models.TradeStateActive, models.TradeStateCompleted:
					filter.Status = state
				default:
					return apperrors.NewValidationError("status", status, "must be NONE, ACTIVE or COMPLETED")
				}
			}

			db, err := app.OpenStore()
			if err != nil {
				return err
			}
			spreads, err := db.LoadAll(cmd.Context(), filter)
			if err != nil && !errors.Is(err, apperrors.ErrNoDataFound) {
				return err
			}

			if output.IsJSON() {
				if spreads == nil {
					spreads = []*models.Spread{}
				}
				return output.JSON(spreads)
			}
			if len(spreads) == 0 {
				output.Dim("No spreads found.")
				return nil
			}

			table := NewTable(output, "TICKER", "EXPIRATION", "SPREAD", "LEGS", "STATUS", "NET", "P&L", "NOTE")
			for _, s := range spreads {
				label := s.Label()
				if !s.Matched {
					label = models.Title(string(s.Direction)) + " " + models.Title(string(s.Strategy))
				}
				table.AddRow(
					s.UnderlyingTicker,
					FormatDate(s.ExpirationDate),
					label,
					FormatLegs(s),
					output.State(s.Status()),
					s.NetPremium.StringFixed(2),
					output.PnL(s.RealizedPnL),
					TruncateString(s.Description, 40),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().Bool("matched", false, "only matched spreads")
	cmd.Flags().String("status", "", "filter by agent status (NONE, ACTIVE, COMPLETED)")
	cmd.Flags().Int("limit", 0, "maximum spreads to list (0 = all)")
	return cmd
}
