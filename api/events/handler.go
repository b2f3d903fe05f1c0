package events

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/peakguard/api"
	"github.com/kilianp07/peakguard/core/eventlog"
)

// DefaultEventType is used when an ingested event names no type.
const DefaultEventType = "simulation_tick"

type ingestBody struct {
	EventType string `json:"eventType"`
	Payload   any    `json:"payload"`
}

type ingestReply struct {
	OK     bool   `json:"ok"`
	Logged bool   `json:"logged"`
	ID     string `json:"id,omitempty"`
}

// NewIngestHandler serves POST /api/log-event. It always answers 200 so
// clients can fire and forget; logged reports whether the store kept the
// event.
func NewIngestHandler(sink eventlog.Appender) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !api.RequireMethod(w, r, http.MethodPost) {
			return
		}
		var body ingestBody
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
			api.WriteJSON(w, http.StatusOK, ingestReply{OK: true})
			return
		}
		if body.EventType == "" {
			body.EventType = DefaultEventType
		}
		payload, ok := body.Payload.(map[string]any)
		if !ok && body.Payload != nil {
			payload = map[string]any{"message": body.Payload}
		}
		rec, err := sink.Log(r.Context(), body.EventType, payload)
		if err != nil {
			api.WriteJSON(w, http.StatusOK, ingestReply{OK: true})
			return
		}
		api.WriteJSON(w, http.StatusOK, ingestReply{OK: true, Logged: true, ID: rec.ID})
	})
}

// NewQueryHandler serves GET /api/events?type=&start=&end=&limit=. Times are
// RFC3339. Requests must carry "Bearer <token>" when token is non-empty.
func NewQueryHandler(store eventlog.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !api.RequireMethod(w, r, http.MethodGet) {
			return
		}
		if !api.Authorized(w, r, token) {
			return
		}
		q, details := parseQuery(r)
		if len(details) > 0 {
			api.WriteError(w, http.StatusBadRequest, "invalid query", details)
			return
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			api.WriteError(w, http.StatusInternalServerError, err.Error(), nil)
			return
		}
		if records == nil {
			records = []eventlog.Record{}
		}
		api.WriteJSON(w, http.StatusOK, records)
	})
}

func parseQuery(r *http.Request) (eventlog.Query, map[string]string) {
	v := r.URL.Query()
	q := eventlog.Query{EventType: v.Get("type")}
	details := map[string]string{}
	if s := v.Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			details["start"] = "must be RFC3339"
		}
		q.Start = t
	}
	if s := v.Get("end"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			details["end"] = "must be RFC3339"
		}
		q.End = t
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			details["limit"] = "must be a non-negative integer"
		}
		q.Limit = n
	}
	return q, details
}
