package proctor

import (
	"errors"
	"sync"
	"time"
)

// DefaultTickInterval is the countdown resolution.
const DefaultTickInterval = time.Second

var (
	ErrInvalidDuration = errors.New("countdown needs a positive number of seconds")
	ErrCountdownUsed   = errors.New("countdown already armed or stopped")
)

// Ticker is the subset of time.Ticker the countdown needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// CountdownOption configures a Countdown.
type CountdownOption func(*Countdown)

// WithTickInterval overrides the one second tick.
func WithTickInterval(d time.Duration) CountdownOption {
	return func(c *Countdown) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTicker replaces the ticker source, mainly for tests.
func WithTicker(f TickerFactory) CountdownOption {
	return func(c *Countdown) {
		if f != nil {
			c.newTicker = f
		}
	}
}

// WithTickHandler registers fn to be called after every tick with the
// remaining seconds. fn runs on the countdown goroutine and must not block.
func WithTickHandler(fn func(remaining int)) CountdownOption {
	return func(c *Countdown) { c.onTick = fn }
}

// Countdown ticks down from a number of seconds and emits a single expiry.
// Stop always wins against an expiry that has not been consumed yet.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	armed     bool
	stopped   bool
	ticker    Ticker

	interval  time.Duration
	newTicker TickerFactory
	onTick    func(remaining int)

	expired  chan struct{}
	halt     chan struct{}
	haltOnce sync.Once
}

// NewCountdown creates a disarmed countdown of the given length.
func NewCountdown(seconds int, opts ...CountdownOption) *Countdown {
	c := &Countdown{
		remaining: seconds,
		interval:  DefaultTickInterval,
		newTicker: NewRealTicker,
		expired:   make(chan struct{}, 1),
		halt:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start arms the countdown. A countdown can be armed once.
func (c *Countdown) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remaining <= 0 {
		return ErrInvalidDuration
	}
	if c.armed || c.stopped {
		return ErrCountdownUsed
	}
	c.armed = true
	c.ticker = c.newTicker(c.interval)
	go c.run(c.ticker)
	return nil
}

// Expired delivers at most one value, when the countdown reaches zero.
func (c *Countdown) Expired() <-chan struct{} {
	return c.expired
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Stop disarms the countdown. It is idempotent and retracts a pending expiry
// nobody has received yet.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.expired:
	default:
	}
	if !c.stopped {
		c.stopped = true
		if c.ticker != nil {
			c.ticker.Stop()
		}
	}
	c.haltOnce.Do(func() { close(c.halt) })
}

func (c *Countdown) run(t Ticker) {
	for {
		select {
		case <-c.halt:
			return
		case <-t.C():
			remaining, last := c.tick()
			if c.onTick != nil && remaining >= 0 {
				c.onTick(remaining)
			}
			if last {
				return
			}
		}
	}
}

// tick returns the remaining seconds (-1 when already stopped) and whether
// the goroutine should exit.
func (c *Countdown) tick() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return -1, true
	}
	c.remaining--
	if c.remaining > 0 {
		return c.remaining, false
	}

	c.remaining = 0
	c.stopped = true
	c.ticker.Stop()
	c.expired <- struct{}{}
	return 0, true
}
