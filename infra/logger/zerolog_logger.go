package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger on top of rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger builds a logger writing to stdout. Every entry carries the
// component field.
func NewZerologLogger(component string) Logger {
	return NewZerologLoggerTo(os.Stdout, component)
}

// NewZerologLoggerTo builds a logger writing to w. APP_ENV=dev selects the
// console writer and LOG_LEVEL (debug, info, warn, error) filters entries.
func NewZerologLoggerTo(w io.Writer, component string) Logger {
	out := w
	if strings.EqualFold(os.Getenv("APP_ENV"), "dev") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	level := zerolog.DebugLevel
	if lvl, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL"))); err == nil && lvl != zerolog.NoLevel {
		level = lvl
	}
	z := zerolog.New(out).Level(level).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	l.log.Debug().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Infow(msg string, fields map[string]any) {
	l.log.Info().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}

func (l *ZerologLogger) Errorw(msg string, fields map[string]any) {
	l.log.Error().Fields(fields).Msg(msg)
}
