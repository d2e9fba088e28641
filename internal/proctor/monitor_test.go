package proctor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

type recordingTerminator struct {
	mu      sync.Mutex
	reasons []model.TerminationReason
}

func (r *recordingTerminator) RequestTermination(reason model.TerminationReason) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
	return len(r.reasons) == 1
}

func (r *recordingTerminator) received() []model.TerminationReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.TerminationReason(nil), r.reasons...)
}

func TestMonitor_SignalMapping(t *testing.T) {
	tests := []struct {
		signal Signal
		want   model.TerminationReason
	}{
		{SignalVisibilityHidden, model.ReasonTabSwitch},
		{SignalFocusLost, model.ReasonFocusLost},
		{SignalUnloadAttempted, model.ReasonUnloadAttempted},
	}

	for _, tt := range tests {
		t.Run(string(tt.signal), func(t *testing.T) {
			hub := NewSignalHub()
			term := &recordingTerminator{}
			m := NewMonitor(term, zerolog.Nop())
			m.Watch(hub, nil)
			require.Equal(t, 1, hub.Subscribers())

			hub.Emit(tt.signal)
			require.Eventually(t, m.Fired, time.Second, time.Millisecond)
			m.Stop()

			assert.Equal(t, []model.TerminationReason{tt.want}, term.received())
			assert.Zero(t, hub.Subscribers(), "monitor must detach after firing")
		})
	}
}

func TestMonitor_FiresOnceForBurst(t *testing.T) {
	hub := NewSignalHub()
	term := &recordingTerminator{}
	m := NewMonitor(term, zerolog.Nop())
	m.Watch(hub, nil)

	hub.Emit(SignalVisibilityHidden)
	hub.Emit(SignalFocusLost)
	hub.Emit(SignalUnloadAttempted)

	require.Eventually(t, m.Fired, time.Second, time.Millisecond)
	m.Stop()
	assert.Equal(t, []model.TerminationReason{model.ReasonTabSwitch}, term.received())
	assert.Zero(t, hub.Emit(SignalFocusLost))
}

func TestMonitor_IgnoresUnknownSignal(t *testing.T) {
	hub := NewSignalHub()
	term := &recordingTerminator{}
	m := NewMonitor(term, zerolog.Nop())
	m.Watch(hub, nil)

	hub.Emit(Signal("resize"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, m.Fired())

	hub.Emit(SignalFocusLost)
	require.Eventually(t, m.Fired, time.Second, time.Millisecond)
	m.Stop()
	assert.Equal(t, []model.TerminationReason{model.ReasonFocusLost}, term.received())
}

func TestMonitor_Expiry(t *testing.T) {
	term := &recordingTerminator{}
	m := NewMonitor(term, zerolog.Nop())
	expired := make(chan struct{}, 1)
	m.Watch(nil, expired)

	expired <- struct{}{}
	require.Eventually(t, m.Fired, time.Second, time.Millisecond)
	m.Stop()
	assert.Equal(t, []model.TerminationReason{model.ReasonTimeExpired}, term.received())
}

func TestMonitor_StopDetaches(t *testing.T) {
	hub := NewSignalHub()
	term := &recordingTerminator{}
	m := NewMonitor(term, zerolog.Nop())
	m.Watch(hub, nil)

	m.Stop()
	m.Stop()
	assert.Zero(t, hub.Subscribers())
	assert.Zero(t, hub.Emit(SignalFocusLost))
	assert.False(t, m.Fired())
	assert.Empty(t, term.received())
}

func TestMonitor_StopWithoutWatch(t *testing.T) {
	m := NewMonitor(&recordingTerminator{}, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a monitor that never watched")
	}
}

func TestSignalHub_EmitNeverBlocks(t *testing.T) {
	hub := NewSignalHub()
	sub := hub.Subscribe()

	for i := 0; i < subscriptionBuffer*2; i++ {
		hub.Emit(SignalFocusLost)
	}
	assert.Len(t, sub.Signals(), subscriptionBuffer)

	sub.Unsubscribe()
	sub.Unsubscribe()
	_, open := <-drain(sub.Signals())
	assert.False(t, open)
}

func drain(ch <-chan Delivery) <-chan Delivery {
	for len(ch) > 0 {
		<-ch
	}
	return ch
}

func TestSignalHub_DeliverWaitsForMonitor(t *testing.T) {
	hub := NewSignalHub()
	term := &recordingTerminator{}
	m := NewMonitor(term, zerolog.Nop())
	m.Watch(hub, nil)
	defer m.Stop()

	n, err := hub.Deliver(waitCtx(t), Signal("resize"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, m.Fired())

	n, err = hub.Deliver(waitCtx(t), SignalVisibilityHidden)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	// No polling: the termination is decided once Deliver returns.
	assert.True(t, m.Fired())
	assert.Equal(t, []model.TerminationReason{model.ReasonTabSwitch}, term.received())

	n, err = hub.Deliver(waitCtx(t), SignalFocusLost)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSignalHub_UnsubscribeAcksPending(t *testing.T) {
	hub := NewSignalHub()
	sub := hub.Subscribe()

	done := make(chan error, 1)
	go func() {
		_, err := hub.Deliver(context.Background(), SignalFocusLost)
		done <- err
	}()
	require.Eventually(t, func() bool { return len(sub.Signals()) == 1 }, time.Second, time.Millisecond)

	sub.Unsubscribe()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Deliver still waiting after unsubscribe")
	}
}

func TestSignalHub_DeliverHonoursContext(t *testing.T) {
	hub := NewSignalHub()
	sub := hub.Subscribe()
	defer sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	n, err := hub.Deliver(ctx, SignalFocusLost)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMonitor_WatchAfterStopIsNoop(t *testing.T) {
	hub := NewSignalHub()
	m := NewMonitor(&recordingTerminator{}, zerolog.Nop())
	m.Stop()
	m.Watch(hub, nil)
	assert.Zero(t, hub.Subscribers())
}
