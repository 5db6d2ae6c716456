package audio

import (
	"math"
	"math/rand/v2"
)

const (
	// MinDB and MaxDB bound the metering window mapped onto [0, 1].
	MinDB = -60.0
	MaxDB = 0.0

	// SilenceDB is reported when there is no reading (idle, stopped).
	SilenceDB = -99.9

	// VisualScale shapes the peak bar height; VisualJitter is the upper bound
	// (exclusive) of the random liveliness added to every bar.
	VisualScale  = 0.7
	VisualJitter = 0.1

	DefaultBars = 30
)

// Source supplies jitter in [0, 1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// DefaultSource draws from the process-wide math/rand/v2 generator, which is
// safe for concurrent use.
var DefaultSource Source = globalSource{}

// MapLevel clamps db into [MinDB, MaxDB] and rescales it linearly to [0, 1].
// NaN maps to 0.
func MapLevel(db float64) float64 {
	if math.IsNaN(db) {
		return 0
	}
	v := (db - MinDB) / (MaxDB - MinDB)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// BarFactor is the parabolic decay of bar i around the center of a sequence
// of the given length, clamped to be non-negative.
func BarFactor(i, length int) float64 {
	center := length / 2
	if center == 0 {
		return 1
	}
	d := float64(i-center) / float64(center)
	f := 1 - d*d
	if f < 0 {
		return 0
	}
	return f
}

// VisualSequence returns length bar heights peaking at the center:
// level*BarFactor(i)*VisualScale plus jitter in [0, VisualJitter).
// A nil src adds no jitter.
func VisualSequence(level float64, length int, src Source) []float64 {
	if length <= 0 {
		return nil
	}
	if math.IsNaN(level) {
		level = 0
	}
	out := make([]float64, length)
	for i := range out {
		v := level * BarFactor(i, length) * VisualScale
		if src != nil {
			v += src.Float64() * VisualJitter
		}
		out[i] = v
	}
	return out
}
