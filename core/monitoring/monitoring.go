package monitoring

import (
	"fmt"
	"time"
)

// Monitor reports errors to an external tracker.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Flush(timeout time.Duration)
}

// NopMonitor drops every report.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Flush(time.Duration)                       {}

var current Monitor = NopMonitor{}

// Init sets the process wide monitor. Nil is ignored.
func Init(m Monitor) {
	if m != nil {
		current = m
	}
}

// CaptureException reports err with optional tags.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	current.CaptureException(err, tags)
}

// CapturePanic reports a recovered panic value and returns it as an error.
// Call it from a deferred function after recover().
func CapturePanic(r any, tags map[string]string) error {
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", r)
	}
	current.CaptureException(err, tags)
	return err
}

// Flush waits up to d for buffered reports to be sent.
func Flush(d time.Duration) {
	current.Flush(d)
}
