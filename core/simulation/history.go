package simulation

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/peakguard/core/model"
)

// Summary aggregates the rolling load history.
type Summary struct {
	Samples          int     `json:"samples"`
	MeanTotalKw      float64 `json:"meanTotalKw"`
	StdDevTotalKw    float64 `json:"stdDevTotalKw"`
	PeakTotalKw      float64 `json:"peakTotalKw"`
	MeanEVKw         float64 `json:"meanEvKw"`
	MinHeadroomKw    float64 `json:"minHeadroomKw"`
	OverLimitSamples int     `json:"overLimitSamples"`
}

// Summarize computes load statistics over points.
func Summarize(points []model.ChartPoint) Summary {
	if len(points) == 0 {
		return Summary{}
	}
	total := make([]float64, len(points))
	ev := make([]float64, len(points))
	headroom := make([]float64, len(points))
	over := 0
	for i, p := range points {
		total[i] = p.TotalLoadKw
		ev[i] = p.EVLoadKw
		headroom[i] = p.DemandLimitKw - p.TotalLoadKw
		if p.TotalLoadKw > p.DemandLimitKw {
			over++
		}
	}
	mean, std := stat.MeanStdDev(total, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return Summary{
		Samples:          len(points),
		MeanTotalKw:      round2(mean),
		StdDevTotalKw:    round2(std),
		PeakTotalKw:      floats.Max(total),
		MeanEVKw:         round2(stat.Mean(ev, nil)),
		MinHeadroomKw:    floats.Min(headroom),
		OverLimitSamples: over,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
