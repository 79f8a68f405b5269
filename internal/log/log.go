// Package log provides structured, colored logging for powmint.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers for different parts of the system.
var (
	Issuance   zerolog.Logger
	Miner      zerolog.Logger
	Ledger     zerolog.Logger
	Governance zerolog.Logger
	P2P        zerolog.Logger
	RPC        zerolog.Logger
	Storage    zerolog.Logger
	Node       zerolog.Logger
)

func init() {
	// Default to colored console output
	Logger = NewConsoleLogger(os.Stdout, "info")
	initComponentLoggers()
}

// Init initializes the logger with the given configuration.
// When file is non-empty, logs are written to both the console (colored or
// JSON depending on jsonOutput) and the file (always JSON for machine parsing).
func Init(level string, jsonOutput bool, file string) error {
	console := consoleWriter(os.Stdout, jsonOutput)

	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		// File writer: always JSON (no ANSI codes, structured for parsing).
		console = zerolog.MultiLevelWriter(console, f)
	}

	SetOutput(console, level)
	return nil
}

// SetOutput replaces the global logger and all component loggers.
func SetOutput(w io.Writer, level string) {
	Logger = zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
	initComponentLoggers()
}

func consoleWriter(w io.Writer, jsonOutput bool) io.Writer {
	if jsonOutput {
		return w
	}
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}
}

// NewConsoleLogger creates a colored console logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(consoleWriter(w, false)).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// NewJSONLogger creates a structured JSON logger.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// parseLevel converts a string level to zerolog.Level. Unknown or empty
// levels fall back to info.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// initComponentLoggers initializes loggers for each component.
func initComponentLoggers() {
	Issuance = WithComponent("issuance")
	Miner = WithComponent("miner")
	Ledger = WithComponent("ledger")
	Governance = WithComponent("governance")
	P2P = WithComponent("p2p")
	RPC = WithComponent("rpc")
	Storage = WithComponent("storage")
	Node = WithComponent("node")
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithChainID returns a logger with a chain_id field.
func WithChainID(chainID string) zerolog.Logger {
	return Logger.With().Str("chain_id", chainID).Logger()
}

// Benchmark helper for timing operations.
func Benchmark(name string) func() {
	start := time.Now()
	return func() {
		Logger.Debug().
			Str("operation", name).
			Dur("duration", time.Since(start)).
			Msg("benchmark")
	}
}
