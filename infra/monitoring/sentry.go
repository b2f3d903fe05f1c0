package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/peakguard/config"
	coremon "github.com/kilianp07/peakguard/core/monitoring"
)

// NewSentryMonitor initializes Sentry using the provided configuration and
// returns a Monitor implementation. An empty DSN disables reporting.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
		ServerName:       cfg.Site,
	})
	if err != nil {
		return nil, err
	}
	return newHubMonitor(sentry.CurrentHub()), nil
}

type hubMonitor struct {
	hub *sentry.Hub
}

func newHubMonitor(hub *sentry.Hub) *hubMonitor {
	return &hubMonitor{hub: hub}
}

func (m *hubMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	if len(tags) == 0 {
		m.hub.CaptureException(err)
		return
	}
	m.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		m.hub.CaptureException(err)
	})
}

func (m *hubMonitor) Flush(timeout time.Duration) { m.hub.Flush(timeout) }
