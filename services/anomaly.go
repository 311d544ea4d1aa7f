package services

import (
	"sync"

	"jjm/models"
)

// RandomSource is the subset of *math/rand.Rand the generator draws from
type RandomSource interface {
	Float64() float64
}

// ReadingGenerator draws synthetic readings: mostly inside the normal band,
// occasionally in one of the two out-of-band tails.
type ReadingGenerator struct {
	mu                 sync.Mutex
	rnd                RandomSource
	anomalyProbability float64
}

func NewReadingGenerator(rnd RandomSource, anomalyProbability float64) *ReadingGenerator {
	return &ReadingGenerator{
		rnd:                rnd,
		anomalyProbability: anomalyProbability,
	}
}

// Draw returns a rounded value and its classification for the given spec.
// An anomaly lands below NormalLo or above NormalHi with equal probability;
// when one tail has zero width the other is used.
func (g *ReadingGenerator) Draw(spec models.TypeSpec) (float64, models.SensorStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rnd.Float64() >= g.anomalyProbability {
		v := models.Round2(spec.NormalLo + g.rnd.Float64()*(spec.NormalHi-spec.NormalLo))
		return v, models.Classify(spec, v)
	}

	lowWidth := spec.NormalLo - spec.Min
	highWidth := spec.Max - spec.NormalHi
	below := g.rnd.Float64() < 0.5
	if lowWidth <= 0 {
		below = false
	} else if highWidth <= 0 {
		below = true
	}

	var v float64
	if below {
		v = spec.Min + g.rnd.Float64()*lowWidth
	} else {
		v = spec.NormalHi + g.rnd.Float64()*highWidth
	}
	v = models.Round2(v)
	return v, models.Classify(spec, v)
}

func (g *ReadingGenerator) AnomalyProbability() float64 {
	return g.anomalyProbability
}
