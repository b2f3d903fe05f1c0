package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/peakguard/core/metrics"
	"github.com/kilianp07/peakguard/infra/logger"
)

// InfluxConfig addresses an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	// Site tags every point so several sites can share a bucket.
	Site string `json:"site"`
}

// InfluxSink writes one site point and one point per charger for each tick.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	site     string
	log      logger.Logger
}

// NewInfluxSink creates a sink for cfg. A URL ending in /api/v2/write is
// accepted and trimmed.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	site := cfg.Site
	if site == "" {
		site = "default"
	}
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		site:     site,
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback health checks the server and returns a NopSink
// when it is unreachable or unhealthy.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordTick writes the site_tick point followed by charger_allocation
// points in a single request.
func (s *InfluxSink) RecordTick(res coremetrics.TickResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(res.Chargers)+1)
	points = append(points, write.NewPointWithMeasurement("site_tick").
		AddTag("site", s.site).
		AddTag("source", res.Source).
		AddField("tick", res.Tick).
		AddField("base_load_kw", round3(res.BaseLoadKw)).
		AddField("ev_load_kw", round3(res.EVLoadKw)).
		AddField("total_load_kw", round3(res.TotalLoadKw)).
		AddField("budget_kw", round3(res.BudgetKw)).
		AddField("avoided_kw", round3(res.AvoidedKw)).
		AddField("savings_usd", round3(res.EstimatedSavingsUsd)).
		AddField("throttled", res.Throttled).
		SetTime(res.Time))
	for _, c := range res.Chargers {
		points = append(points, write.NewPointWithMeasurement("charger_allocation").
			AddTag("site", s.site).
			AddTag("charger_id", c.ChargerID).
			AddTag("vehicle_id", c.VehicleID).
			AddTag("status", c.Status).
			AddField("tick", res.Tick).
			AddField("allocated_kw", round3(c.AllocatedKw)).
			AddField("delivered_kwh", round3(c.DeliveredKwh)).
			AddField("remaining_kwh", round3(c.RemainingKwh)).
			SetTime(res.Time))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
