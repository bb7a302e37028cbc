package connector

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimers_InitialState(t *testing.T) {
	timers := NewTimers()

	for _, id := range []TimerID{0, 1, 127, 255} {
		info := timers.Snapshot(id)
		assert.Equal(t, id, info.ID)
		assert.Equal(t, TimerInactive, info.Status)
		assert.False(t, info.Armed)
		assert.Nil(t, info.Callback)
	}
}

func TestTimers_PeriodicRefire(t *testing.T) {
	timers := NewTimers()
	var fired atomic.Int32

	timers.ConfigureAndStart(42, 10*time.Millisecond, func(id TimerID) bool {
		assert.Equal(t, TimerID(42), id)
		fired.Add(1)
		return true
	})
	defer timers.Stop(42)

	require.Eventually(t, func() bool { return fired.Load() >= 5 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, TimerActive, timers.Snapshot(42).Status)
}

func TestTimers_OneShot(t *testing.T) {
	timers := NewTimers()
	var fired atomic.Int32

	timers.ConfigureAndStart(1, 10*time.Millisecond, func(TimerID) bool {
		fired.Add(1)
		return false
	})

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())

	// still active: Start fires it again without reconfiguring
	require.NoError(t, timers.Start(1))
	require.Eventually(t, func() bool { return fired.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestTimers_StopPreventsFiring(t *testing.T) {
	timers := NewTimers()
	var fired atomic.Int32

	timers.ConfigureAndStart(7, 30*time.Millisecond, func(TimerID) bool {
		fired.Add(1)
		return true
	})
	timers.Stop(7)
	timers.Stop(7)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, fired.Load())
	assert.Equal(t, TimerCanceled, timers.Snapshot(7).Status)
}

func TestTimers_StopDuringCallback(t *testing.T) {
	timers := NewTimers()
	var fired atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})

	timers.ConfigureAndStart(3, 5*time.Millisecond, func(TimerID) bool {
		if fired.Add(1) == 1 {
			close(entered)
			<-release
		}
		return true
	})

	<-entered
	timers.Stop(3)
	close(release)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestTimers_ReviveAfterStop(t *testing.T) {
	timers := NewTimers()
	var fired atomic.Int32

	timers.ConfigureAndStart(9, 10*time.Millisecond, func(TimerID) bool {
		fired.Add(1)
		return false
	})
	timers.Stop(9)

	require.NoError(t, timers.Revive(9))
	info := timers.Snapshot(9)
	assert.Equal(t, TimerActive, info.Status)
	assert.Equal(t, 10*time.Millisecond, info.Interval)
	assert.NotNil(t, info.Callback)

	require.NoError(t, timers.Start(9))
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestTimers_NotConfigured(t *testing.T) {
	timers := NewTimers()

	assert.ErrorIs(t, timers.Start(200), ErrTimerNotConfigured)
	assert.ErrorIs(t, timers.Revive(200), ErrTimerNotConfigured)

	timers.Stop(200)
	assert.Equal(t, TimerInactive, timers.Snapshot(200).Status)
}

func TestTimers_UpdateDoesNotArm(t *testing.T) {
	timers := NewTimers()
	var fired atomic.Int32

	timers.Update(5, 10*time.Millisecond, func(TimerID) bool {
		fired.Add(1)
		return false
	})

	info := timers.Snapshot(5)
	assert.Equal(t, TimerActive, info.Status)
	assert.False(t, info.Armed)

	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, fired.Load())

	require.NoError(t, timers.Start(5))
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, timers.Snapshot(5).Armed)
}

func TestTimers_ChangeInterval(t *testing.T) {
	timers := NewTimers()

	timers.Update(11, time.Hour, func(TimerID) bool { return false })
	timers.ChangeInterval(11, 5*time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, timers.Snapshot(11).Interval)
}

func TestTimers_ReconfigureReplacesCallback(t *testing.T) {
	timers := NewTimers()
	var first, second atomic.Int32

	timers.ConfigureAndStart(4, time.Hour, func(TimerID) bool {
		first.Add(1)
		return false
	})
	timers.ConfigureAndStart(4, 5*time.Millisecond, func(TimerID) bool {
		second.Add(1)
		return false
	})

	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, first.Load())
}

func TestTimers_SameSlotNeverOverlaps(t *testing.T) {
	timers := NewTimers()
	var inFlight, overlaps, fired atomic.Int32

	timers.ConfigureAndStart(2, time.Millisecond, func(TimerID) bool {
		if inFlight.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return fired.Add(1) < 10
	})

	require.Eventually(t, func() bool { return fired.Load() == 10 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, overlaps.Load())
}

func TestTimers_DifferentSlotsRunConcurrently(t *testing.T) {
	timers := NewTimers()
	release := make(chan struct{})
	var inFlight atomic.Int32
	both := make(chan struct{})

	cb := func(TimerID) bool {
		if inFlight.Add(1) == 2 {
			close(both)
		}
		<-release
		return false
	}
	timers.ConfigureAndStart(20, time.Millisecond, cb)
	timers.ConfigureAndStart(21, time.Millisecond, cb)

	select {
	case <-both:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for both slots to fire")
	}
	close(release)
}

func TestTimers_StopAll(t *testing.T) {
	timers := NewTimers()
	var fired atomic.Int32

	for _, id := range []TimerID{0, 100, 255} {
		timers.ConfigureAndStart(id, 20*time.Millisecond, func(TimerID) bool {
			fired.Add(1)
			return true
		})
	}
	timers.StopAll()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, fired.Load())
	for _, id := range []TimerID{0, 100, 255} {
		assert.Equal(t, TimerCanceled, timers.Snapshot(id).Status)
	}
}

func TestTimerStatus_String(t *testing.T) {
	assert.Equal(t, "INACTIVE", TimerInactive.String())
	assert.Equal(t, "ACTIVE", TimerActive.String())
	assert.Equal(t, "CANCELED", TimerCanceled.String())
	assert.Equal(t, "UNKNOWN", TimerStatus(9).String())
}
