package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	allocationapi "github.com/kilianp07/peakguard/api/allocation"
	eventsapi "github.com/kilianp07/peakguard/api/events"
	stateapi "github.com/kilianp07/peakguard/api/state"
	"github.com/kilianp07/peakguard/config"
	"github.com/kilianp07/peakguard/core/allocation"
	"github.com/kilianp07/peakguard/core/eventlog"
	"github.com/kilianp07/peakguard/core/logger"
	coremetrics "github.com/kilianp07/peakguard/core/metrics"
	"github.com/kilianp07/peakguard/core/monitoring"
	"github.com/kilianp07/peakguard/core/simulation"
	"github.com/kilianp07/peakguard/infra/llm"
	infralogger "github.com/kilianp07/peakguard/infra/logger"
	"github.com/kilianp07/peakguard/infra/metrics"
	inframon "github.com/kilianp07/peakguard/infra/monitoring"
	"github.com/kilianp07/peakguard/infra/mqtt"
)

// EventStarted is emitted once per Run.
const EventStarted = "simulation_started"

// Service wires the allocation engine, the simulation driver and their
// outer surfaces.
type Service struct {
	RunID  string
	Engine *allocation.Engine
	Driver *simulation.Driver
	Store  eventlog.Store
	Events *eventlog.Sink

	cfg       *config.Config
	log       logger.Logger
	sink      coremetrics.MetricsSink
	publisher *mqtt.StatePublisher
}

// NewEngine builds the allocation engine, with the external allocator when
// it is enabled.
func NewEngine(cfg *config.Config) *allocation.Engine {
	var ext *allocation.ExternalAdapter
	if cfg.External.Enabled {
		ext = allocation.NewExternalAdapter(llm.NewClient(cfg.External), cfg.External.Timeout(), infralogger.New("external-allocator"))
	}
	return allocation.NewEngine(cfg.Allocation, ext, infralogger.New("allocation"))
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	log := infralogger.New("service")

	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	monitoring.Init(mon)

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	store, err := eventlog.Open(cfg.EventLog)
	if err != nil {
		return nil, fmt.Errorf("event log: %w", err)
	}
	events := eventlog.NewSink(store, infralogger.New("eventlog"))

	seed := simulation.DefaultSeed()
	if cfg.Simulation.SeedFile != "" {
		if seed, err = simulation.LoadSeed(cfg.Simulation.SeedFile); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	initial, err := simulation.InitialState(seed, cfg.Simulation)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	engine := NewEngine(cfg)
	env := simulation.Env{
		Allocator: engine,
		Policy:    cfg.Allocation,
		Load:      simulation.NewRandomWalk(cfg.Simulation.BaseLoad, cfg.Simulation.RandomSeed),
		Events:    events,
		Config:    cfg.Simulation,
	}
	svc := &Service{
		RunID:  uuid.NewString(),
		Engine: engine,
		Driver: simulation.NewDriver(initial, env, sink, infralogger.New("simulation")),
		Store:  store,
		Events: events,
		cfg:    cfg,
		log:    log,
		sink:   sink,
	}

	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewStatePublisher(cfg.MQTT, infralogger.New("mqtt"))
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.publisher = pub
	}
	return svc, nil
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/allocate-load", allocationapi.NewHandler(s.Engine))
	mux.Handle("/api/log-event", eventsapi.NewIngestHandler(s.Events))
	mux.Handle("/api/events", eventsapi.NewQueryHandler(s.Store, s.cfg.HTTP.Token))
	mux.Handle("/api/state", stateapi.NewStateHandler(s.Driver))
	mux.Handle("/api/analytics", stateapi.NewAnalyticsHandler(s.Driver))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Run starts the simulation and its servers and blocks until ctx is
// canceled, the simulation stops on an invariant violation or a server
// fails. Server failures stop the simulation and are returned.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.Events.Emit(ctx, EventStarted, map[string]any{
		"runId":       s.RunID,
		"external":    s.Engine.ExternalEnabled(),
		"chargers":    len(s.Driver.Snapshot().Sessions),
		"interval_ms": s.cfg.Simulation.Interval.Milliseconds(),
	})
	s.log.Infow("simulation starting", map[string]any{
		"run_id":   s.RunID,
		"external": s.Engine.ExternalEnabled(),
		"http":     s.cfg.HTTP.Addr,
	})

	if s.publisher != nil {
		states := s.Driver.Subscribe()
		go func() {
			if err := s.publisher.Run(ctx, states); err != nil {
				s.log.Errorf("mqtt publisher: %v", err)
			}
		}()
	}
	serverErr := make(chan error, 2)
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
				serverErr <- fmt.Errorf("prom server: %w", err)
				cancel()
			}
		}()
	}

	srv := &http.Server{Addr: s.cfg.HTTP.Addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http shutdown: %v", err)
		}
	}()
	go func() {
		s.log.Infof("serving API on %s", s.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("http server: %v", err)
			serverErr <- fmt.Errorf("http server: %w", err)
			cancel()
		}
	}()

	if err := s.Driver.Run(ctx); err != nil {
		s.log.Errorf("simulation stopped: %v", err)
		return err
	}
	select {
	case err := <-serverErr:
		return err
	default:
		return nil
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.publisher != nil {
		s.publisher.Close()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	monitoring.Flush(2 * time.Second)
	return s.Store.Close()
}
