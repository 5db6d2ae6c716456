package alert

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGateCooldownSequence(t *testing.T) {
	g := NewDefaultGate()
	t0 := time.Unix(1_700_000_000, 0)

	steps := []struct {
		risk float64
		at   time.Duration
		want bool
	}{
		{0.5, 0, false},
		{0.8, time.Second, true},
		{0.9, 5 * time.Second, false},
	}

	fired := 0
	for _, s := range steps {
		got := g.ShouldFire(s.risk, t0.Add(s.at))
		if got != s.want {
			t.Errorf("ShouldFire(%v, t+%s) = %v, want %v", s.risk, s.at, got, s.want)
		}
		if got {
			fired++
		}
	}
	if fired != 1 {
		t.Errorf("fired %d times, want 1", fired)
	}
	last, ok := g.LastFired()
	if !ok || !last.Equal(t0.Add(time.Second)) {
		t.Errorf("LastFired = %v, %v", last, ok)
	}
}

func TestGateFiresAgainAfterCooldown(t *testing.T) {
	g := NewDefaultGate()
	t0 := time.Unix(1_700_000_000, 0)

	if !g.ShouldFire(0.8, t0) {
		t.Fatal("first qualifying risk should fire")
	}
	if !g.ShouldFire(0.8, t0.Add(11*time.Second)) {
		t.Fatal("qualifying risk 11s later should fire")
	}
}

func TestGateExactBoundaries(t *testing.T) {
	g := NewGate(0.74, 10*time.Second)
	t0 := time.Unix(0, 0)

	if !g.ShouldFire(0.74, t0) {
		t.Error("risk equal to threshold should fire")
	}
	if !g.ShouldFire(0.74, t0.Add(10*time.Second)) {
		t.Error("exactly one cooldown later should fire")
	}
	if g.ShouldFire(0.7399, t0.Add(time.Hour)) {
		t.Error("below threshold fired")
	}
	if g.ShouldFire(math.NaN(), t0.Add(2*time.Hour)) {
		t.Error("NaN fired")
	}
}

func TestGateBelowThresholdDoesNotConsumeCooldown(t *testing.T) {
	g := NewDefaultGate()
	t0 := time.Unix(0, 0)

	g.ShouldFire(0.1, t0)
	if _, ok := g.LastFired(); ok {
		t.Fatal("non-qualifying risk recorded a fire")
	}
	if !g.ShouldFire(0.9, t0.Add(time.Millisecond)) {
		t.Fatal("expected fire")
	}
}

func TestGateConcurrentEvaluationsFireOnce(t *testing.T) {
	g := NewDefaultGate()
	now := time.Unix(0, 0)

	var fired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.ShouldFire(0.95, now) {
				fired.Add(1)
			}
		}()
	}
	wg.Wait()

	if fired.Load() != 1 {
		t.Fatalf("fired %d times, want 1", fired.Load())
	}
}
