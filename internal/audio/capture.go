package audio

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrPermissionDenied means the OS refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrResource means the capture device could not be acquired, failed
	// while running, or could not be released.
	ErrResource = errors.New("audio resource unavailable")
)

// FloorDB is the lowest level a meter reports (digital silence).
const FloorDB = -160.0

// Callbacks receive events from an open capture handle. OnMeter is called
// once per metering interval with the loudest dBFS reading of that interval.
// OnFailure is called at most once if the device stops on its own.
type Callbacks struct {
	OnMeter   func(db float64)
	OnFailure func(err error)
}

// Capture opens the microphone with metering enabled.
type Capture interface {
	Open(meterInterval time.Duration, cb Callbacks) (Handle, error)
}

// Handle is an open recording. Release is idempotent.
type Handle interface {
	Release() error
}

// PCM16DBFS returns the RMS level of little-endian mono PCM16 samples in
// dBFS, floored at FloorDB.
func PCM16DBFS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return FloorDB
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(pcm[2*i])|int16(pcm[2*i+1])<<8) / 32768.0
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(n))
	if rms <= 0 {
		return FloorDB
	}
	db := 20 * math.Log10(rms)
	if db < FloorDB {
		return FloorDB
	}
	return db
}

// Meter throttles per-buffer readings down to one value per interval,
// keeping the loudest buffer seen since the last emit.
type Meter struct {
	interval time.Duration
	peak     float64
	lastEmit time.Time
}

func NewMeter(interval time.Duration) *Meter {
	return &Meter{interval: interval, peak: FloorDB}
}

// Process feeds one capture buffer. It returns the level to publish and true
// once per interval.
func (m *Meter) Process(pcm []byte, now time.Time) (float64, bool) {
	if db := PCM16DBFS(pcm); db > m.peak {
		m.peak = db
	}
	if !m.lastEmit.IsZero() && now.Sub(m.lastEmit) < m.interval {
		return 0, false
	}
	m.lastEmit = now
	db := m.peak
	m.peak = FloorDB
	return db, true
}
