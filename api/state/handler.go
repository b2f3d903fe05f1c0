package state

import (
	"net/http"

	"github.com/kilianp07/peakguard/api"
	"github.com/kilianp07/peakguard/core/model"
	"github.com/kilianp07/peakguard/core/simulation"
)

// Source exposes the latest simulation snapshot.
type Source interface {
	Snapshot() model.SimulationState
}

// Analytics is the GET /api/analytics reply.
type Analytics struct {
	Tick                int                `json:"tick"`
	History             simulation.Summary `json:"history"`
	PeakLoadKw          float64            `json:"peakLoadKw"`
	PenaltyLimitKw      float64            `json:"penaltyLimitKw"`
	AvoidedPenaltyKw    float64            `json:"avoidedPenaltyKw"`
	EstimatedSavingsUsd float64            `json:"estimatedSavingsUsd"`
	EVShare             float64            `json:"evShare"`
	Throttled           int                `json:"throttled"`
	Ready               int                `json:"ready"`
}

// NewStateHandler serves GET /api/state with the current snapshot.
func NewStateHandler(src Source) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !api.RequireMethod(w, r, http.MethodGet) {
			return
		}
		api.WriteJSON(w, http.StatusOK, src.Snapshot())
	})
}

// NewAnalyticsHandler serves GET /api/analytics with statistics over the
// rolling load history.
func NewAnalyticsHandler(src Source) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !api.RequireMethod(w, r, http.MethodGet) {
			return
		}
		api.WriteJSON(w, http.StatusOK, Summarize(src.Snapshot()))
	})
}

// Summarize builds the analytics view of st.
func Summarize(st model.SimulationState) Analytics {
	out := Analytics{
		Tick:                st.TickCount,
		History:             simulation.Summarize(st.History),
		PeakLoadKw:          st.PeakLoadKw,
		PenaltyLimitKw:      st.PenaltyLimitKw,
		AvoidedPenaltyKw:    st.AvoidedPenaltyKw,
		EstimatedSavingsUsd: st.EstimatedSavingsUsd,
	}
	var ev, total float64
	for _, p := range st.History {
		ev += p.EVLoadKw
		total += p.TotalLoadKw
	}
	if total > 0 {
		out.EVShare = ev / total
	}
	for _, s := range st.Sessions {
		switch s.Status {
		case model.StatusThrottled:
			out.Throttled++
		case model.StatusReady:
			out.Ready++
		}
	}
	return out
}
