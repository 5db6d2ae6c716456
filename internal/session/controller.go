package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dooshek/murmur/internal/alert"
	"github.com/dooshek/murmur/internal/analysis"
	"github.com/dooshek/murmur/internal/audio"
	"github.com/dooshek/murmur/internal/logger"
	"github.com/dooshek/murmur/internal/notification"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultMeterInterval = 100 * time.Millisecond

type Options struct {
	Capture  audio.Capture
	Service  analysis.Service
	Notifier notification.Notifier
	Gate     *alert.Gate

	PollInterval   time.Duration
	RequestTimeout time.Duration
	MeterInterval  time.Duration
	Bars           int
	Urgency        notification.Urgency

	Observer Observer

	// Test seams. Zero values use the real clock, ticker, jitter and uuid.
	Now    func() time.Time
	Ticker analysis.TickerFunc
	Random audio.Source
	NewID  func() string
}

// Controller owns one monitoring session at a time: the microphone handle,
// the analysis poller and the alert gate. It is the only writer of session
// state; everyone else reads snapshots.
type Controller struct {
	opts Options
	log  zerolog.Logger

	// opMu serializes Start and Stop.
	opMu sync.Mutex

	mu            sync.Mutex
	state         State
	epoch         uint64
	snap          Snapshot
	handle        audio.Handle
	poller        *analysis.Poller
	lastDone      <-chan struct{}
	alertsEnabled bool
	peakRisk      float64
	subs          map[int]chan Snapshot
	nextSub       int
}

func NewController(opts Options) *Controller {
	if opts.Gate == nil {
		opts.Gate = alert.NewDefaultGate()
	}
	if opts.Notifier == nil {
		opts.Notifier = notification.NewSilent()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = analysis.DefaultInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = analysis.DefaultRequestTimeout
	}
	if opts.MeterInterval <= 0 {
		opts.MeterInterval = DefaultMeterInterval
	}
	if opts.Bars <= 0 {
		opts.Bars = audio.DefaultBars
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Ticker == nil {
		opts.Ticker = analysis.RealTicker
	}
	if opts.Random == nil {
		opts.Random = audio.DefaultSource
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	c := &Controller{
		opts: opts,
		log:  logger.With("session"),
		subs: make(map[int]chan Snapshot),
	}
	c.resetLocked()
	c.snap.UpdatedAt = opts.Now()
	return c
}

// RequestNotificationPermission asks the notifier once. Without permission
// sessions still run but the alert gate is never consulted.
func (c *Controller) RequestNotificationPermission(ctx context.Context) notification.Permission {
	perm := c.opts.Notifier.RequestPermission(ctx)
	if perm != notification.Granted {
		c.log.Warn().Msg("Notification permission denied, risk alerts are disabled")
	}

	c.mu.Lock()
	c.alertsEnabled = perm == notification.Granted
	c.snap.AlertsEnabled = c.alertsEnabled
	c.publishLocked()
	c.mu.Unlock()
	return perm
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.clone()
}

// Subscribe returns a channel that always holds the most recent snapshot.
// Slow readers skip intermediate states. The returned func unsubscribes
// and closes the channel.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snap.clone()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			close(ch)
			c.mu.Unlock()
		})
	}
}

// Start opens the microphone and begins polling. Starting an active session
// does nothing. If the microphone cannot be opened the session stays Idle
// and the error wraps audio.ErrPermissionDenied or audio.ErrResource.
func (c *Controller) Start() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.startLocked()
}

// Stop ends the active session. Stopping an idle controller does nothing.
// Once Stop returns no poll result or meter reading from the session is
// applied.
func (c *Controller) Stop() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.stopLocked(nil)
}

// Toggle starts an idle session or stops an active one and returns the
// resulting state.
func (c *Controller) Toggle() (State, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	var err error
	if c.State() == Listening {
		err = c.stopLocked(nil)
	} else {
		err = c.startLocked()
	}
	return c.State(), err
}

func (c *Controller) startLocked() error {
	c.mu.Lock()
	if c.state == Listening {
		c.mu.Unlock()
		c.log.Debug().Msg("Session already listening")
		return nil
	}
	c.epoch++
	epoch := c.epoch
	after := c.lastDone
	c.mu.Unlock()

	id := c.opts.NewID()
	handle, err := c.opts.Capture.Open(c.opts.MeterInterval, audio.Callbacks{
		OnMeter:   c.meterHandler(epoch),
		OnFailure: c.failureHandler(epoch),
	})
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to open microphone")
		c.mu.Lock()
		c.snap.Status = micUnavailable(err)
		c.snap.LastError = err.Error()
		c.snap.UpdatedAt = c.opts.Now()
		c.publishLocked()
		c.mu.Unlock()
		return fmt.Errorf("start session: %w", err)
	}

	poller := analysis.NewPoller(c.opts.Service, c.pollHandler(epoch), analysis.PollerOptions{
		Interval:       c.opts.PollInterval,
		RequestTimeout: c.opts.RequestTimeout,
		SessionID:      id,
		Ticker:         c.opts.Ticker,
		OnStale:        func(uint64) { c.opts.Observer.TickDropped() },
		After:          after,
	})

	now := c.opts.Now()
	c.mu.Lock()
	c.resetLocked()
	c.state = Listening
	c.handle = handle
	c.poller = poller
	c.peakRisk = 0
	c.snap.SessionID = id
	c.snap.Status = StatusListening
	c.snap.StartedAt = &now
	c.snap.UpdatedAt = now
	c.publishLocked()
	c.mu.Unlock()

	poller.Start(context.Background())
	c.opts.Observer.SessionStarted(id)
	c.log.Info().Str("session_id", id).Msg("Session started")
	return nil
}

func (c *Controller) stopLocked(cause error) error {
	c.mu.Lock()
	if c.state != Listening {
		c.mu.Unlock()
		return nil
	}
	c.state = Stopping
	c.epoch++
	poller, handle := c.poller, c.handle
	c.poller, c.handle = nil, nil
	c.lastDone = poller.Done()
	summary := Summary{
		SessionID: c.snap.SessionID,
		PeakRisk:  c.peakRisk,
		Alerts:    c.snap.AlertCount,
		Err:       cause,
	}
	if c.snap.StartedAt != nil {
		summary.StartedAt = *c.snap.StartedAt
	}
	c.clearReadingsLocked()
	c.snap.UpdatedAt = c.opts.Now()
	c.publishLocked()
	c.mu.Unlock()

	poller.Stop()

	var err error
	if rerr := handle.Release(); rerr != nil {
		c.log.Error().Err(rerr).Msg("Failed to release microphone")
		err = fmt.Errorf("stop session: %w", rerr)
	}

	now := c.opts.Now()
	c.mu.Lock()
	c.resetLocked()
	if cause != nil {
		c.snap.Status = micUnavailable(cause)
		c.snap.LastError = cause.Error()
	}
	c.snap.UpdatedAt = now
	c.publishLocked()
	c.mu.Unlock()

	summary.EndedAt = now
	c.opts.Observer.SessionEnded(summary)
	c.log.Info().Str("session_id", summary.SessionID).Dur("duration", summary.Duration()).Msg("Session stopped")
	return err
}

// resetLocked puts every session field back to its idle value. Alert
// permission and subscriptions survive.
func (c *Controller) resetLocked() {
	c.state = Idle
	c.snap = Snapshot{
		State:         Idle,
		Status:        StatusReady,
		Band:          BandCalm,
		DB:            audio.SilenceDB,
		Visual:        make([]float64, c.opts.Bars),
		AlertsEnabled: c.alertsEnabled,
	}
}

// clearReadingsLocked zeroes risk, triggers and metering. They only carry
// values while Listening.
func (c *Controller) clearReadingsLocked() {
	c.snap.Risk = 0
	c.snap.Band = BandCalm
	c.snap.Triggers = analysis.Triggers{}
	c.snap.DB = audio.SilenceDB
	c.snap.Level = 0
	c.snap.Visual = make([]float64, c.opts.Bars)
}

func (c *Controller) publishLocked() {
	c.snap.State = c.state
	snap := c.snap.clone()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (c *Controller) meterHandler(epoch uint64) func(float64) {
	return func(db float64) {
		level := audio.MapLevel(db)
		visual := audio.VisualSequence(level, c.opts.Bars, c.opts.Random)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.epoch != epoch || c.state != Listening {
			return
		}
		c.snap.DB = db
		c.snap.Level = level
		c.snap.Visual = visual
		c.snap.UpdatedAt = c.opts.Now()
		c.publishLocked()
	}
}

func (c *Controller) failureHandler(epoch uint64) func(error) {
	return func(err error) {
		go func() {
			c.opMu.Lock()
			defer c.opMu.Unlock()

			c.mu.Lock()
			current := c.epoch == epoch && c.state == Listening
			c.mu.Unlock()
			if !current {
				return
			}
			c.log.Error().Err(err).Msg("Microphone failed while listening")
			if serr := c.stopLocked(err); serr != nil {
				c.log.Warn().Err(serr).Msg("Stopping after microphone failure")
			}
		}()
	}
}

func (c *Controller) pollHandler(epoch uint64) analysis.Handler {
	return func(ctx context.Context, r analysis.Result) {
		kind := Classify(r.Err)
		c.opts.Observer.PollCompleted(kind, r.Latency)

		c.mu.Lock()
		if c.epoch != epoch || c.state != Listening {
			c.mu.Unlock()
			c.opts.Observer.TickDropped()
			return
		}

		now := c.opts.Now()
		var note *notification.Notification
		if r.Err != nil {
			c.log.Warn().Err(r.Err).Str("kind", kind.String()).Msg("Analysis poll failed")
			c.snap.Status = errorStatus(kind)
			c.snap.LastError = r.Err.Error()
		} else {
			note = c.applyTickLocked(r.Tick, now)
		}
		c.snap.UpdatedAt = now
		c.publishLocked()
		c.mu.Unlock()

		if r.Err == nil && r.Tick.Status == analysis.StatusAnalyzing {
			c.opts.Observer.RiskObserved(r.Tick.Risk)
		}
		if note != nil {
			c.deliver(ctx, *note, r.Tick)
		}
	}
}

// applyTickLocked folds a decoded tick into the snapshot and returns the
// alert to deliver, if the gate fired.
func (c *Controller) applyTickLocked(tick analysis.TickSample, now time.Time) *notification.Notification {
	switch tick.Status {
	case analysis.StatusAnalyzing:
	case analysis.StatusWarmingUp:
		c.snap.Status = StatusWarmingUp
		return nil
	default:
		c.snap.Status = serverStatus(tick.Status, tick.Message)
		return nil
	}

	c.snap.Risk = tick.Risk
	c.snap.Band = BandFor(tick.Risk)
	c.snap.Triggers = tick.Triggers
	c.snap.LastEvent = tick.TopEventLabel
	c.snap.Transcript = tick.Transcript
	c.snap.LastError = ""
	c.snap.Status = analyzingStatus(tick.TopEventLabel, tick.Transcript)
	if tick.Risk > c.peakRisk {
		c.peakRisk = tick.Risk
	}

	if !c.alertsEnabled {
		return nil
	}
	if !tick.Triggers.Event && tick.Risk < c.opts.Gate.Threshold() {
		return nil
	}
	if !c.opts.Gate.ShouldFire(tick.Risk, now) {
		return nil
	}

	c.snap.AlertCount++
	at := now
	c.snap.LastAlertAt = &at
	note := notification.NewRiskAlert(tick.Risk, tick.TopEventLabel, c.opts.Urgency)
	return &note
}

func (c *Controller) deliver(ctx context.Context, note notification.Notification, tick analysis.TickSample) {
	c.opts.Observer.AlertFired(tick.Risk, tick.TopEventLabel)
	c.log.Info().Float64("risk", tick.Risk).Str("event", tick.TopEventLabel).Msg("Risk alert")

	if err := c.opts.Notifier.Deliver(ctx, note); err != nil {
		c.log.Error().Err(err).Msg("Failed to deliver risk alert")
		c.opts.Observer.AlertFailed(err)
	}
}
