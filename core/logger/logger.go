package logger

// Logger exposes logging methods for common severity levels. The *w variants
// attach structured fields to the entry.
type Logger interface {
	Debugf(format string, args ...any)
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Infow(msg string, fields map[string]any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Errorw(msg string, fields map[string]any)
}
