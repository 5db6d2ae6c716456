package audio

import (
	"math"
	"testing"
)

type constSource float64

func (c constSource) Float64() float64 { return float64(c) }

func TestMapLevelBounds(t *testing.T) {
	tests := []struct {
		db   float64
		want float64
	}{
		{-160, 0},
		{-60, 0},
		{-30, 0.5},
		{-15, 0.75},
		{0, 1},
		{12, 1},
		{math.Inf(-1), 0},
		{math.Inf(1), 1},
		{math.NaN(), 0},
	}

	for _, tt := range tests {
		got := MapLevel(tt.db)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("MapLevel(%v) = %v, want %v", tt.db, got, tt.want)
		}
	}
}

func TestMapLevelMonotonic(t *testing.T) {
	prev := MapLevel(-60)
	for db := -60.0; db <= 0; db += 0.25 {
		got := MapLevel(db)
		if got < prev {
			t.Fatalf("MapLevel(%v) = %v < previous %v", db, got, prev)
		}
		prev = got
	}
}

func TestVisualSequenceShape(t *testing.T) {
	const length = 30
	center := length / 2
	seq := VisualSequence(1, length, nil)

	if len(seq) != length {
		t.Fatalf("len = %d, want %d", len(seq), length)
	}
	for i, v := range seq {
		if v > seq[center] {
			t.Errorf("bar %d = %v exceeds center %v", i, v, seq[center])
		}
	}
	if math.Abs(seq[center]-VisualScale) > 1e-9 {
		t.Errorf("center = %v, want %v", seq[center], VisualScale)
	}
	for i := 0; i < length; i++ {
		dist := i - center
		if dist < 0 {
			dist = -dist
		}
		if dist >= center && BarFactor(i, length) > 0 {
			t.Errorf("BarFactor(%d) = %v, want <= 0 at distance %d", i, BarFactor(i, length), dist)
		}
	}
}

func TestVisualSequenceJitterIsBounded(t *testing.T) {
	base := VisualSequence(0.5, 30, nil)
	jittered := VisualSequence(0.5, 30, constSource(0.999))

	for i := range base {
		diff := jittered[i] - base[i]
		if diff < 0 || diff >= VisualJitter {
			t.Errorf("bar %d jitter = %v, want in [0, %v)", i, diff, VisualJitter)
		}
	}
}

func TestVisualSequenceDegenerate(t *testing.T) {
	if got := VisualSequence(1, 0, nil); got != nil {
		t.Errorf("length 0 = %v, want nil", got)
	}
	one := VisualSequence(1, 1, nil)
	if len(one) != 1 || one[0] != VisualScale {
		t.Errorf("length 1 = %v", one)
	}
	for _, v := range VisualSequence(math.NaN(), 5, nil) {
		if v != 0 {
			t.Errorf("NaN level produced %v", v)
		}
	}
}
