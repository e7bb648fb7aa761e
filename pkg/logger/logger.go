package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin key/value facade over zerolog.
type Logger struct {
	zl zerolog.Logger
}

func NewLogger(level string) *Logger {
	return New(os.Stdout, level, os.Getenv("LOG_FORMAT"))
}

// New builds a Logger writing to w. format "console" gives human readable
// output, anything else gives JSON lines.
func New(w io.Writer, level, format string) *Logger {
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()

	return &Logger{zl: zl}
}

// Nop discards everything. Handy in tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) With(keyvals ...any) *Logger {
	return &Logger{zl: l.zl.With().Fields(keyvals).Logger()}
}

func (l *Logger) Debug(msg string, keyvals ...any) {
	l.zl.Debug().Fields(keyvals).Msg(msg)
}

func (l *Logger) Info(msg string, keyvals ...any) {
	l.zl.Info().Fields(keyvals).Msg(msg)
}

func (l *Logger) Warn(msg string, keyvals ...any) {
	l.zl.Warn().Fields(keyvals).Msg(msg)
}

func (l *Logger) Error(msg string, keyvals ...any) {
	l.zl.Error().Fields(keyvals).Msg(msg)
}
