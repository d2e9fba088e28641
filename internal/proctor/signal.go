package proctor

import (
	"context"
	"sync"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Signal is a discrete event observed in the candidate's environment.
type Signal string

const (
	SignalVisibilityHidden Signal = "visibility-hidden"
	SignalFocusLost        Signal = "focus-lost"
	SignalUnloadAttempted  Signal = "unload-attempted"
)

// Reason maps a signal to the termination reason it causes.
func (s Signal) Reason() (model.TerminationReason, bool) {
	switch s {
	case SignalVisibilityHidden:
		return model.ReasonTabSwitch, true
	case SignalFocusLost:
		return model.ReasonFocusLost, true
	case SignalUnloadAttempted:
		return model.ReasonUnloadAttempted, true
	}
	return model.ReasonNone, false
}

// Delivery is one signal handed to a subscriber. Ack reports that the
// subscriber has acted on it; it must be called exactly once.
type Delivery struct {
	Signal Signal
	ack    chan struct{}
}

// Ack releases a producer waiting in Deliver.
func (d Delivery) Ack() {
	if d.ack != nil {
		close(d.ack)
	}
}

// Subscription delivers signals until it is unsubscribed. Deliveries still
// buffered at Unsubscribe are acknowledged.
type Subscription interface {
	Signals() <-chan Delivery
	Unsubscribe()
}

// SignalSource produces zero or more signals to its subscribers.
type SignalSource interface {
	Subscribe() Subscription
}

const subscriptionBuffer = 8

// SignalHub is an in-process SignalSource. Producers (a WebSocket connection,
// the HTTP signal endpoint, a terminal) call Deliver or Emit; each subscriber
// gets its own buffered channel. Sends never block: when a subscriber is not
// keeping up the signal is dropped for that subscriber, which is harmless
// because only the first signal matters.
type SignalHub struct {
	mu   sync.Mutex
	subs map[*hubSubscription]struct{}
}

// NewSignalHub creates an empty hub.
func NewSignalHub() *SignalHub {
	return &SignalHub{subs: make(map[*hubSubscription]struct{})}
}

// Subscribe registers a new subscriber.
func (h *SignalHub) Subscribe() Subscription {
	sub := &hubSubscription{hub: h, ch: make(chan Delivery, subscriptionBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Emit delivers sig to every current subscriber without waiting for it to
// be handled and returns how many subscribers received it.
func (h *SignalHub) Emit(sig Signal) int {
	return len(h.send(sig, false))
}

// Deliver is Emit that also waits until every receiving subscriber has
// acted on sig, so that a termination it causes is decided before Deliver
// returns. The error is ctx.Err() when the wait was cut short.
func (h *SignalHub) Deliver(ctx context.Context, sig Signal) (int, error) {
	acks := h.send(sig, true)
	for _, ack := range acks {
		select {
		case <-ack:
		case <-ctx.Done():
			return len(acks), ctx.Err()
		}
	}
	return len(acks), nil
}

func (h *SignalHub) send(sig Signal, wait bool) []chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	var acks []chan struct{}
	for sub := range h.subs {
		d := Delivery{Signal: sig}
		if wait {
			d.ack = make(chan struct{})
		}
		select {
		case sub.ch <- d:
			acks = append(acks, d.ack)
		default:
		}
	}
	return acks
}

// Subscribers returns the number of live subscriptions.
func (h *SignalHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *SignalHub) remove(sub *hubSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
	for d := range sub.ch {
		d.Ack()
	}
}

type hubSubscription struct {
	hub *SignalHub
	ch  chan Delivery
}

func (s *hubSubscription) Signals() <-chan Delivery { return s.ch }

func (s *hubSubscription) Unsubscribe() { s.hub.remove(s) }
