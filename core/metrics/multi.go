package metrics

import "errors"

// MultiSink fans results out to several sinks. Every sink is called even
// when an earlier one fails; the errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink combines sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordTick(res TickResult) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordTick(res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordSkippedTick forwards to sinks implementing SkipRecorder.
func (m *MultiSink) RecordSkippedTick() error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(SkipRecorder); ok {
			if err := r.RecordSkippedTick(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close releases sinks holding connections.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
