package simulation

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// BaseLoadSampler yields the next building base load from the current one.
type BaseLoadSampler interface {
	Next(currentKw float64) float64
}

// RandomWalk perturbs the base load by a small drift or, with
// ShockProbability, by a larger shock. The sign is random and the result is
// clamped to [MinKw, MaxKw] and rounded to whole kW.
type RandomWalk struct {
	cfg BaseLoadConfig
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomWalk seeds the walk. A zero seed draws one from the clock.
func NewRandomWalk(cfg BaseLoadConfig, seed uint64) *RandomWalk {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &RandomWalk{cfg: cfg, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (w *RandomWalk) Next(currentKw float64) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var delta float64
	if w.rng.Float64() < w.cfg.ShockProbability {
		delta = w.cfg.ShockMinKw + w.rng.Float64()*(w.cfg.ShockMaxKw-w.cfg.ShockMinKw)
	} else {
		delta = w.rng.Float64() * w.cfg.DriftKw
	}
	if w.rng.Float64() < 0.5 {
		delta = -delta
	}
	next := math.Min(w.cfg.MaxKw, math.Max(w.cfg.MinKw, currentKw+delta))
	return math.Round(next)
}

// ConstantLoad always returns the same base load.
type ConstantLoad float64

func (c ConstantLoad) Next(float64) float64 { return float64(c) }
