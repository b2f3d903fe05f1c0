package logger

import corelogger "github.com/kilianp07/peakguard/core/logger"

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger discards every entry. Tests use it as the default logger.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Infow(string, map[string]any)  {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}
func (NopLogger) Errorw(string, map[string]any) {}

// New returns a Logger tagged with the given component. APP_ENV=dev switches
// to human readable console output and LOG_LEVEL sets the minimum level.
func New(component string) Logger {
	return NewZerologLogger(component)
}
