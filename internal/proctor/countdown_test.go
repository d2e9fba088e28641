package proctor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountdown_ExpiresOnce(t *testing.T) {
	mt := newManualTicker()
	var (
		mu    sync.Mutex
		ticks []int
	)
	cd := NewCountdown(3, WithTicker(mt.factory()), WithTickHandler(func(r int) {
		mu.Lock()
		ticks = append(ticks, r)
		mu.Unlock()
	}))
	require.NoError(t, cd.Start())

	mt.advance(t, 2)
	require.Eventually(t, func() bool { return cd.Remaining() == 1 }, time.Second, time.Millisecond)

	select {
	case <-cd.Expired():
		t.Fatal("expired too early")
	default:
	}

	mt.advance(t, 1)
	select {
	case <-cd.Expired():
	case <-time.After(time.Second):
		t.Fatal("no expiry")
	}
	assert.Equal(t, 0, cd.Remaining())
	assert.True(t, mt.stopped.Load(), "ticker must be disarmed after expiry")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ticks) == 3
	}, time.Second, time.Millisecond)
	assert.Equal(t, []int{2, 1, 0}, ticks)

	select {
	case <-cd.Expired():
		t.Fatal("second expiry")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCountdown_StopWinsTie(t *testing.T) {
	mt := newManualTicker()
	cd := NewCountdown(1, WithTicker(mt.factory()))
	require.NoError(t, cd.Start())

	mt.advance(t, 1)
	// The expiry is queued but nobody has received it yet.
	require.Eventually(t, func() bool { return cd.Remaining() == 0 }, time.Second, time.Millisecond)

	cd.Stop()
	select {
	case <-cd.Expired():
		t.Fatal("expiry delivered after Stop")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCountdown_StopBeforeExpiry(t *testing.T) {
	mt := newManualTicker()
	cd := NewCountdown(2, WithTicker(mt.factory()))
	require.NoError(t, cd.Start())

	mt.advance(t, 1)
	cd.Stop()
	cd.Stop()

	assert.True(t, mt.stopped.Load())
	select {
	case mt.ch <- time.Time{}:
		t.Fatal("stopped countdown still consuming ticks")
	case <-time.After(20 * time.Millisecond):
	}
	select {
	case <-cd.Expired():
		t.Fatal("expiry after Stop")
	default:
	}
}

func TestCountdown_StartValidation(t *testing.T) {
	assert.ErrorIs(t, NewCountdown(0).Start(), ErrInvalidDuration)

	mt := newManualTicker()
	cd := NewCountdown(5, WithTicker(mt.factory()))
	require.NoError(t, cd.Start())
	assert.ErrorIs(t, cd.Start(), ErrCountdownUsed)
	cd.Stop()

	stopped := NewCountdown(5)
	stopped.Stop()
	assert.ErrorIs(t, stopped.Start(), ErrCountdownUsed)
}

func TestCountdown_RealTicker(t *testing.T) {
	cd := NewCountdown(2, WithTickInterval(5*time.Millisecond))
	require.NoError(t, cd.Start())
	select {
	case <-cd.Expired():
	case <-time.After(time.Second):
		t.Fatal("no expiry from real ticker")
	}
}
