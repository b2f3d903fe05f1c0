package eventlog

import (
	"context"
	"time"
)

// Record is one append-only event.
type Record struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Query filters records. Zero fields match everything. Limit keeps the most
// recent matches.
type Query struct {
	Start     time.Time
	End       time.Time
	EventType string
	Limit     int
}

// Matches reports whether r passes the time and type filters.
func (q Query) Matches(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.EventType != "" && r.EventType != q.EventType {
		return false
	}
	return true
}

func (q Query) trim(recs []Record) []Record {
	if q.Limit > 0 && len(recs) > q.Limit {
		return recs[len(recs)-q.Limit:]
	}
	return recs
}

// Store persists event records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}
