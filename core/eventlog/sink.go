package eventlog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/peakguard/core/logger"
)

// Emitter accepts fire-and-forget events.
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload map[string]any) Record
}

// ErrNoStore is returned by Sink.Log when the sink has no backing store.
var ErrNoStore = errors.New("event log has no store")

// Appender records an event and reports whether it was persisted.
type Appender interface {
	Log(ctx context.Context, eventType string, payload map[string]any) (Record, error)
}

// Sink stamps events with an id and time and appends them to a Store. Store
// failures are logged and dropped so callers never observe them.
type Sink struct {
	store   Store
	log     logger.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewSink wraps store. A nil store yields a sink that only stamps records.
func NewSink(store Store, log logger.Logger) *Sink {
	return &Sink{store: store, log: log, timeout: 2 * time.Second, now: time.Now}
}

// Emit appends the event and returns the stamped record.
func (s *Sink) Emit(ctx context.Context, eventType string, payload map[string]any) Record {
	rec, err := s.Log(ctx, eventType, payload)
	if err != nil && !errors.Is(err, ErrNoStore) {
		s.log.Errorf("event log append failed for %s: %v", eventType, err)
	}
	return rec
}

// Log appends the event like Emit but hands the store failure back. The
// record is stamped even when the append fails.
func (s *Sink) Log(ctx context.Context, eventType string, payload map[string]any) (Record, error) {
	rec := Record{
		ID:        uuid.NewString(),
		Timestamp: s.now().UTC(),
		EventType: eventType,
		Payload:   payload,
	}
	if s.store == nil {
		return rec, ErrNoStore
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	return rec, s.store.Append(ctx, rec)
}

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) Emit(_ context.Context, eventType string, payload map[string]any) Record {
	return Record{EventType: eventType, Payload: payload}
}
