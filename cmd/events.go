package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/peakguard/core/eventlog"
	"github.com/kilianp07/peakguard/pkg/export"
)

var (
	eventType  string
	eventSince time.Duration
	eventLimit int
	eventFmt   string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print recorded events as JSON lines or CSV",
	RunE:  runEvents,
}

func init() {
	eventsCmd.Flags().StringVarP(&eventType, "type", "t", "", "only events of this type")
	eventsCmd.Flags().DurationVar(&eventSince, "since", 0, "only events newer than this duration")
	eventsCmd.Flags().IntVarP(&eventLimit, "limit", "n", 50, "most recent events to print, 0 for all")
	eventsCmd.Flags().StringVarP(&eventFmt, "output", "o", export.FormatJSON, "output format: json or csv")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := eventlog.Open(cfg.EventLog)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	q := eventlog.Query{EventType: eventType, Limit: eventLimit}
	if eventSince > 0 {
		q.Start = time.Now().Add(-eventSince)
	}
	recs, err := store.Query(context.Background(), q)
	if err != nil {
		return err
	}
	return export.WriteEvents(cmd.OutOrStdout(), eventFmt, recs)
}
