package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// Config controls logger construction
type Config struct {
	Level        string    // debug, info, warn or error; anything else means info
	JSON         bool      // JSON lines instead of styled text
	ReportCaller bool      // include file:line
	Output       io.Writer // defaults to stderr; stdout carries the MCP protocol
}

// DefaultConfig returns info-level text logging to stderr
func DefaultConfig() Config {
	return Config{Level: InfoLevel, Output: os.Stderr}
}

// ParseLevel maps a level name to a charm log level, defaulting to info
func ParseLevel(s string) log.Level {
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// New builds a logger from cfg
func New(cfg Config) *log.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	l := log.NewWithOptions(out, log.Options{
		ReportCaller:    cfg.ReportCaller,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           ParseLevel(cfg.Level),
	})
	if cfg.JSON {
		l.SetFormatter(log.JSONFormatter)
	} else {
		l.SetFormatter(log.TextFormatter)
	}
	return l
}

// Discard returns a logger that writes nothing
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// OrDiscard returns l, or a discard logger when l is nil
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

type ctxKey struct{}

// ContextWithLogger attaches l to ctx
func ContextWithLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or a discard logger
func FromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*log.Logger); ok && l != nil {
		return l
	}
	return Discard()
}
