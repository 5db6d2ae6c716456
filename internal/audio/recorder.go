package audio

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dooshek/murmur/internal/logger"
	"github.com/gen2brain/malgo"
)

const (
	channels = 1

	defaultSampleRate = 16000
)

// MalgoCapture opens the default capture device through miniaudio.
type MalgoCapture struct {
	SampleRate int
	// Archive, when set, receives the session audio on release.
	Archive *Archive
}

func NewMalgoCapture(sampleRate int, archive *Archive) *MalgoCapture {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	return &MalgoCapture{SampleRate: sampleRate, Archive: archive}
}

type malgoHandle struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	released atomic.Bool
	once     sync.Once
	levels   chan float64
	done     chan struct{}

	spool *Spool
}

// Open starts capturing. Failures to acquire the device are reported as
// ErrPermissionDenied or ErrResource.
func (c *MalgoCapture) Open(meterInterval time.Duration, cb Callbacks) (Handle, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, classifyDeviceError("initialize audio context", err)
	}

	h := &malgoHandle{
		ctx:    ctx,
		levels: make(chan float64, 16),
		done:   make(chan struct{}),
	}
	if c.Archive != nil {
		spool, err := c.Archive.Begin(time.Now())
		if err != nil {
			logger.Error("Session recording will not be archived", err)
		}
		h.spool = spool
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(c.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	meter := NewMeter(meterInterval)

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(outputBuffer, inputBuffer []byte, frameCount uint32) {
			if h.released.Load() {
				return
			}
			if h.spool != nil {
				h.spool.Write(inputBuffer)
			}
			db, ok := meter.Process(inputBuffer, time.Now())
			if !ok {
				return
			}
			// the audio thread never blocks on a slow consumer
			select {
			case h.levels <- db:
			default:
			}
		},
		Stop: func() {
			if h.released.Load() || cb.OnFailure == nil {
				return
			}
			go cb.OnFailure(fmt.Errorf("%w: capture device stopped", ErrResource))
		},
	})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		h.discardSpool()
		return nil, classifyDeviceError("initialize capture device", err)
	}
	h.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		h.discardSpool()
		return nil, classifyDeviceError("start capture device", err)
	}

	go h.forward(cb.OnMeter)

	logger.Debugf("Capture device started (%d Hz, meter every %s)", c.SampleRate, meterInterval)
	return h, nil
}

func (h *malgoHandle) forward(onMeter func(float64)) {
	for {
		select {
		case <-h.done:
			return
		case db := <-h.levels:
			if onMeter != nil && !h.released.Load() {
				onMeter(db)
			}
		}
	}
}

func (h *malgoHandle) Release() error {
	var err error
	h.once.Do(func() {
		h.released.Store(true)
		close(h.done)

		h.device.Uninit()
		if uerr := h.ctx.Uninit(); uerr != nil {
			err = fmt.Errorf("%w: uninit audio context: %v", ErrResource, uerr)
		}
		h.ctx.Free()

		// the device is uninitialized, so no more writes reach the spool
		if spool := h.spool; spool != nil {
			go func() {
				if _, aerr := spool.Finish(); aerr != nil {
					logger.Error("Failed to archive session recording", aerr)
				}
			}()
		}
		logger.Debug("Capture device released")
	})
	return err
}

func (h *malgoHandle) discardSpool() {
	if h.spool == nil {
		return
	}
	if path, _, err := h.spool.Close(); err == nil {
		os.Remove(path)
	}
}

// classifyDeviceError maps backend failures onto the capture error kinds.
// Backends only report permission problems in their message text.
func classifyDeviceError(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "access denied") {
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrResource, op, err)
}
