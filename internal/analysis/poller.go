package analysis

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dooshek/murmur/internal/logger"
	"github.com/rs/zerolog"
)

const (
	DefaultInterval       = 500 * time.Millisecond
	DefaultRequestTimeout = 2 * time.Second
)

// Result is the outcome of one poll. Seq increases with every scheduled
// request; Err wraps ErrNetwork or ErrDecode.
type Result struct {
	Seq     uint64
	Tick    TickSample
	Err     error
	Latency time.Duration
}

// Handler receives poll results. Calls are serialized.
type Handler func(ctx context.Context, r Result)

// TickerFunc returns a channel ticking every d and a function that stops it.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func RealTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type PollerOptions struct {
	Interval       time.Duration
	RequestTimeout time.Duration
	SessionID      string
	Ticker         TickerFunc

	// OnStale is called for every result dropped because a newer one was
	// already handled.
	OnStale func(seq uint64)

	// After delays /start until it is closed, for at most RequestTimeout.
	// Pass the previous poller's Done so its /stop reaches the service first.
	After <-chan struct{}
}

// Poller signals /start, polls the service on every tick and signals /stop
// once stopped. Polling begins without waiting for /start. A slow request
// never delays the next one; each tick issues its own request, and only
// results newer than the last handled one reach the handler. /stop is sent
// after /start has completed.
type Poller struct {
	svc     Service
	handler Handler
	opts    PollerOptions
	log     zerolog.Logger

	seq      atomic.Uint64
	inflight sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once

	lifeMu  sync.Mutex
	started bool
	halted  bool
	ctx     context.Context
	cancel  context.CancelFunc

	// mu serializes handler calls.
	mu          sync.Mutex
	stopped     bool
	lastApplied uint64
	stale       uint64
}

func NewPoller(svc Service, handler Handler, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Ticker == nil {
		opts.Ticker = RealTicker
	}
	return &Poller{
		svc:     svc,
		handler: handler,
		opts:    opts,
		log:     logger.With("poller"),
		done:    make(chan struct{}),
	}
}

// Start launches the loop. It returns immediately; calling it twice or
// after Stop does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.started || p.halted {
		return
	}
	p.started = true
	if p.opts.SessionID != "" {
		ctx = WithSession(ctx, p.opts.SessionID)
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	go p.loop()
}

// Stop cancels the schedule and in-flight requests. Once it returns the
// handler is never called again. The /stop signal is sent in the
// background; Done is closed after it has been answered.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.lifeMu.Lock()
		p.halted = true
		if p.cancel != nil {
			p.cancel()
		}
		if !p.started {
			close(p.done)
		}
		p.lifeMu.Unlock()

		// Waits for a running handler call to return.
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
	})
}

func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Stale returns the number of results dropped as out of order.
func (p *Poller) Stale() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stale
}

func (p *Poller) loop() {
	defer close(p.done)

	started := make(chan struct{})
	go p.sendStart(started)

	ticks, stopTicker := p.opts.Ticker(p.opts.Interval)
	defer stopTicker()

	for {
		select {
		case <-p.ctx.Done():
			<-started
			ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), p.opts.RequestTimeout)
			p.signal(ctx, "stop", p.svc.Stop)
			cancel()
			p.inflight.Wait()
			return
		case <-ticks:
			seq := p.seq.Add(1)
			p.inflight.Add(1)
			go p.poll(seq)
		}
	}
}

// sendStart waits for the previous session to finish and then signals
// /start. The request is not cancelled by Stop; /stop waits for it instead.
func (p *Poller) sendStart(started chan<- struct{}) {
	defer close(started)

	if p.opts.After != nil {
		timer := time.NewTimer(p.opts.RequestTimeout)
		select {
		case <-p.opts.After:
		case <-timer.C:
			p.log.Warn().Msg("Previous session did not stop in time, starting anyway")
		case <-p.ctx.Done():
		}
		timer.Stop()
	}
	if p.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), p.opts.RequestTimeout)
	defer cancel()
	p.signal(ctx, "start", p.svc.Start)
}

func (p *Poller) signal(ctx context.Context, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		p.log.Warn().Err(err).Str("signal", name).Msg("Analysis service signal failed")
		return
	}
	p.log.Debug().Str("signal", name).Msg("Analysis service signalled")
}

func (p *Poller) poll(seq uint64) {
	defer p.inflight.Done()

	ctx, cancel := context.WithTimeout(p.ctx, p.opts.RequestTimeout)
	defer cancel()

	started := time.Now()
	tick, err := p.svc.Fetch(ctx)
	p.deliver(p.ctx, Result{Seq: seq, Tick: tick, Err: err, Latency: time.Since(started)})
}

func (p *Poller) deliver(ctx context.Context, r Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || ctx.Err() != nil {
		return
	}
	if r.Seq <= p.lastApplied {
		p.stale++
		p.log.Debug().Uint64("seq", r.Seq).Uint64("last", p.lastApplied).Msg("Dropping out-of-order poll result")
		if p.opts.OnStale != nil {
			p.opts.OnStale(r.Seq)
		}
		return
	}
	p.lastApplied = r.Seq
	if r.Err != nil {
		p.log.Debug().Err(r.Err).Uint64("seq", r.Seq).Msg("Poll failed")
	}
	p.handler(ctx, r)
}
