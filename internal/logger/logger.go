package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"meteorgrid/internal/config"

	"github.com/rs/zerolog"
)

func getSLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func New() *slog.Logger {
	level := "info"
	if config.Config != nil {
		level = config.Config.LogLevel
	}
	return NewWithWriter(level, os.Stderr)
}

// NewWithWriter builds a console logger at the given level writing to out.
func NewWithWriter(level string, out io.Writer) *slog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerologLogger := zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    out != os.Stderr,
	}).Level(toZerologLevel(getSLogLevel(level))).With().Timestamp().Logger()
	return slog.New(newZerologHandler(&zerologLogger))
}
