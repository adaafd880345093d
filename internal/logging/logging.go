// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	JSON       bool // raw JSON on the console instead of the pretty writer
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Output     io.Writer
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "mousoutrade", "logs", "mousoutrade.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	if cfg.Console {
		if cfg.JSON {
			writers = append(writers, out)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{
				Out:        out,
				TimeFormat: time.RFC3339,
				FormatLevel: func(i interface{}) string {
					if ll, ok := i.(string); ok {
						switch ll {
						case "debug":
							return "\033[36mDBG\033[0m"
						case "info":
							return "\033[32mINF\033[0m"
						case "warn":
							return "\033[33mWRN\033[0m"
						case "error":
							return "\033[31mERR\033[0m"
						default:
							return ll
						}
					}
					return "???"
				},
			})
		}
	}

	// File writer with rotation
	if cfg.File && cfg.FilePath != "" {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = out
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// ContextKey is the type for context keys.
type ContextKey string

// LoggerKey is the context key for the logger.
const LoggerKey ContextKey = "logger"

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithTicker adds an underlying ticker to the logger context.
func WithTicker(logger zerolog.Logger, ticker string) zerolog.Logger {
	return logger.With().Str("ticker", ticker).Logger()
}

// WithSpread adds the identifying fields of a spread to the logger context.
func WithSpread(logger zerolog.Logger, s *models.Spread) zerolog.Logger {
	return logger.With().
		Str("guid", s.GUID).
		Str("ticker", s.UnderlyingTicker).
		Str("strategy", string(s.Strategy)).
		Str("direction", string(s.Direction)).
		Logger()
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// LogMatch logs the outcome of one spread match.
func LogMatch(logger zerolog.Logger, s *models.Spread) {
	if !s.Matched {
		logger.Info().
			Str("event", "match").
			Str("ticker", s.UnderlyingTicker).
			Str("strategy", string(s.Strategy)).
			Str("direction", string(s.Direction)).
			Msg(s.Description)
		return
	}
	logger.Info().
		Str("event", "match").
		Str("ticker", s.UnderlyingTicker).
		Str("strategy", string(s.Strategy)).
		Str("direction", string(s.Direction)).
		Str("short", s.ShortContract.Ticker).
		Str("long", s.LongContract.Ticker).
		Str("net_premium", s.NetPremium.StringFixed(2)).
		Str("pop", s.ProbabilityOfProfit.StringFixed(2)).
		Msg("Spread matched")
}

// LogTransition logs a lifecycle state change of a spread.
func LogTransition(logger zerolog.Logger, s *models.Spread, from, to models.TradeState, reason string) {
	event := logger.Info().
		Str("event", "transition").
		Str("guid", s.GUID).
		Str("ticker", s.UnderlyingTicker).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("reason", reason)
	if to == models.TradeStateCompleted {
		event = event.
			Str("outcome", string(s.TradeOutcome)).
			Str("pnl", s.RealizedPnL.StringFixed(2))
	}
	event.Msg("Spread state changed")
}

// LogAPICall logs a market data call.
func LogAPICall(logger zerolog.Logger, method, endpoint string, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "api_call").
		Str("method", method).
		Str("endpoint", endpoint).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("API call failed")
	} else {
		event.Msg("API call completed")
	}
}
