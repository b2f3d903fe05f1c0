package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/peakguard/core/eventlog"
	"github.com/kilianp07/peakguard/core/model"
)

// Formats accepted by the writers.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// WritePlan writes plan to w in the given format.
func WritePlan(w io.Writer, format string, plan model.AllocationPlan) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	case FormatCSV:
		return writePlanCSV(w, plan)
	}
	return fmt.Errorf("unknown export format %q", format)
}

// WriteEvents writes records to w as JSON lines or CSV.
func WriteEvents(w io.Writer, format string, recs []eventlog.Record) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		for _, r := range recs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	case FormatCSV:
		return writeEventsCSV(w, recs)
	}
	return fmt.Errorf("unknown export format %q", format)
}

func writePlanCSV(w io.Writer, plan model.AllocationPlan) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"charger_id", "allocated_kw", "status", "urgency", "reason"}); err != nil {
		return err
	}
	for _, a := range plan.Allocations {
		rec := []string{
			a.ChargerID,
			strconv.FormatFloat(a.AllocatedKw, 'f', -1, 64),
			string(a.Status),
			strconv.FormatFloat(plan.Scores[a.ChargerID], 'f', 2, 64),
			a.Reason,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeEventsCSV(w io.Writer, recs []eventlog.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "timestamp", "event_type", "payload"}); err != nil {
		return err
	}
	for _, r := range recs {
		payload := ""
		if len(r.Payload) > 0 {
			b, err := json.Marshal(r.Payload)
			if err != nil {
				return err
			}
			payload = string(b)
		}
		if err := cw.Write([]string{r.ID, r.Timestamp.Format(time.RFC3339), r.EventType, payload}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
