// Package cli provides the command-line interface for the spread engine.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
	"github.com/mousou2003/MouSouTrade-sub000/pkg/utils"
)

// Terminal colors. Output decides per writer whether to use them, so they
// ignore color.NoColor.
var (
	ColorRed    = forced(color.FgRed)
	ColorGreen  = forced(color.FgGreen)
	ColorYellow = forced(color.FgYellow)
	ColorCyan   = forced(color.FgCyan)
	ColorBold   = forced(color.Bold)
	ColorDim    = forced(color.Faint)
)

func forced(attr color.Attribute) *color.Color {
	c := color.New(attr)
	c.EnableColor()
	return c
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Output handles formatted output for the CLI.
type Output struct {
	writer       io.Writer
	jsonMode     bool
	colorEnabled bool
}

// NewOutput creates a new Output instance.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{
		writer:       cmd.OutOrStdout(),
		jsonMode:     jsonMode,
		colorEnabled: !jsonMode && isTerminal(cmd.OutOrStdout()),
	}
}

// isTerminal checks if w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.colored(ColorGreen, format, args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.colored(ColorRed, format, args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.colored(ColorYellow, format, args...)
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.colored(ColorCyan, format, args...)
}

// Bold prints a bold message.
func (o *Output) Bold(format string, args ...interface{}) {
	o.colored(ColorBold, format, args...)
}

// Dim prints a dimmed message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.colored(ColorDim, format, args...)
}

func (o *Output) colored(c *color.Color, format string, args ...interface{}) {
	fmt.Fprintln(o.writer, o.ColoredString(c, fmt.Sprintf(format, args...)))
}

// ColoredString returns a colored string without newline. A nil color
// leaves text as is.
func (o *Output) ColoredString(c *color.Color, text string) string {
	if !o.colorEnabled || c == nil {
		return text
	}
	return c.Sprint(text)
}

// PnL formats a profit or loss with sign and color.
func (o *Output) PnL(pnl decimal.Decimal) string {
	var c *color.Color
	switch {
	case pnl.IsPositive():
		c = ColorGreen
	case pnl.IsNegative():
		c = ColorRed
	}
	return o.ColoredString(c, utils.FormatPnL(pnl))
}

// Direction colors a spread direction.
func (o *Output) Direction(d models.DirectionType) string {
	if d == models.DirectionBullish {
		return o.ColoredString(ColorGreen, string(d))
	}
	return o.ColoredString(ColorRed, string(d))
}

// State colors a lifecycle state.
func (o *Output) State(state models.TradeState) string {
	switch state {
	case models.TradeStateActive:
		return o.ColoredString(ColorCyan, string(state))
	case models.TradeStateCompleted:
		return o.ColoredString(ColorBold, string(state))
	}
	return o.ColoredString(ColorDim, string(state))
}

// MarketStatus colors the session status.
func (o *Output) MarketStatus(status utils.MarketStatus) string {
	switch status {
	case utils.MarketOpen:
		return o.ColoredString(ColorGreen, "● OPEN")
	case utils.MarketPreOpen:
		return o.ColoredString(ColorYellow, "● PRE-OPEN")
	case utils.MarketClosed:
		return o.ColoredString(ColorRed, "● CLOSED")
	}
	return string(status)
}

// Table represents a simple table for output.
type Table struct {
	headers []string
	rows    [][]string
	output  *Output
}

// NewTable creates a new table.
func NewTable(output *Output, headers ...string) *Table {
	return &Table{
		headers: headers,
		rows:    make([][]string, 0),
		output:  output,
	}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render renders the table.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visibleLen(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				if n := visibleLen(cell); n > widths[i] {
					widths[i] = n
				}
			}
		}
	}

	t.printRow(t.headers, widths, true)
	t.printSeparator(widths)
	for _, row := range t.rows {
		t.printRow(row, widths, false)
	}
}

func (t *Table) printRow(cells []string, widths []int, isHeader bool) {
	var parts []string
	for i, cell := range cells {
		if i < len(widths) {
			padding := widths[i] - visibleLen(cell)
			if padding < 0 || i == len(cells)-1 || i == len(widths)-1 {
				padding = 0
			}
			padded := cell + strings.Repeat(" ", padding)
			if isHeader {
				padded = t.output.ColoredString(ColorBold, padded)
			}
			parts = append(parts, padded)
		}
	}
	t.output.Println(strings.TrimRight(strings.Join(parts, "  "), " "))
}

func (t *Table) printSeparator(widths []int) {
	var parts []string
	for _, w := range widths {
		parts = append(parts, strings.Repeat("-", w))
	}
	t.output.Println(t.output.ColoredString(ColorDim, strings.Join(parts, "--")))
}

// stripANSI removes SGR escape codes.
func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

func visibleLen(s string) int {
	return len([]rune(stripANSI(s)))
}
