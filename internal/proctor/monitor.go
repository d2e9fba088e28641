package proctor

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Terminator receives termination requests. Implementations must not block.
type Terminator interface {
	RequestTermination(reason model.TerminationReason) bool
}

// Monitor turns the first environment signal or timer expiry into a single
// termination request and then detaches itself from every source.
type Monitor struct {
	term Terminator
	log  zerolog.Logger

	fired     atomic.Bool
	sub       Subscription
	unsubOnce sync.Once

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  atomic.Bool
}

// NewMonitor creates a monitor reporting to term.
func NewMonitor(term Terminator, log zerolog.Logger) *Monitor {
	return &Monitor{
		term: term,
		log:  log,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Watch subscribes to source (may be nil) and to the expiry channel (nil
// for untimed exams) and starts listening. Only the first call has an
// effect, and none once the monitor is stopped.
func (m *Monitor) Watch(source SignalSource, expired <-chan struct{}) {
	select {
	case <-m.stop:
		return
	default:
	}
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	var signals <-chan Delivery
	if source != nil {
		m.sub = source.Subscribe()
		signals = m.sub.Signals()
	}
	go m.run(signals, expired)
}

// Fired reports whether the monitor has requested a termination.
func (m *Monitor) Fired() bool {
	return m.fired.Load()
}

// Stop detaches the monitor. It is idempotent and waits for the listener.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	if m.started.Load() {
		<-m.done
	}
	m.unsubscribe()
}

func (m *Monitor) run(signals <-chan Delivery, expired <-chan struct{}) {
	defer close(m.done)

	for {
		select {
		case <-m.stop:
			m.unsubscribe()
			return
		case <-expired:
			m.fire(model.ReasonTimeExpired, "timer-expired")
			return
		case d, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			reason, known := d.Signal.Reason()
			if !known {
				m.log.Warn().Str("signal", string(d.Signal)).Msg("Ignoring unknown environment signal")
				d.Ack()
				continue
			}
			m.fire(reason, string(d.Signal))
			d.Ack()
			return
		}
	}
}

func (m *Monitor) fire(reason model.TerminationReason, origin string) {
	if !m.fired.CompareAndSwap(false, true) {
		return
	}
	won := m.term.RequestTermination(reason)
	m.unsubscribe()

	m.log.Info().
		Str("origin", origin).
		Str("reason", string(reason)).
		Bool("won", won).
		Msg("Termination requested by monitor")
}

func (m *Monitor) unsubscribe() {
	m.unsubOnce.Do(func() {
		if m.sub != nil {
			m.sub.Unsubscribe()
		}
	})
}
