package alert

import (
	"sync"
	"time"
)

const (
	DefaultThreshold = 0.74
	DefaultCooldown  = 10 * time.Second
)

// Gate rate-limits risk alerts. A positive decision records the fire time
// in the same critical section, so only call ShouldFire when the caller will
// actually deliver the alert.
type Gate struct {
	threshold float64
	cooldown  time.Duration

	mu        sync.Mutex
	lastFired time.Time
	hasFired  bool
}

func NewGate(threshold float64, cooldown time.Duration) *Gate {
	return &Gate{threshold: threshold, cooldown: cooldown}
}

func NewDefaultGate() *Gate {
	return NewGate(DefaultThreshold, DefaultCooldown)
}

func (g *Gate) Threshold() float64 {
	return g.threshold
}

// ShouldFire reports whether an alert for risk may be delivered at now.
func (g *Gate) ShouldFire(risk float64, now time.Time) bool {
	if !(risk >= g.threshold) {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.hasFired && now.Sub(g.lastFired) < g.cooldown {
		return false
	}
	g.lastFired = now
	g.hasFired = true
	return true
}

// LastFired returns the time of the last positive decision.
func (g *Gate) LastFired() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastFired, g.hasFired
}
