package connector

import (
	"sync"
	"time"
)

// TimerID identifies a timer slot. Every connector owns one slot per id.
type TimerID uint8

// TimerEnd is the first id not reserved by the timer table itself.
// A layer built on top of Timers reserves its own ids starting here and
// publishes its own end constant for the next layer.
const TimerEnd TimerID = 0

const timerCount = 256

// TimerStatus is the lifecycle state of a timer slot.
type TimerStatus uint8

const (
	// TimerInactive means the slot has never been configured.
	TimerInactive TimerStatus = iota
	// TimerActive means the slot is configured and allowed to fire.
	TimerActive
	// TimerCanceled means the slot was stopped; callback and interval are kept.
	TimerCanceled
)

// String returns a human-readable status name.
func (s TimerStatus) String() string {
	switch s {
	case TimerInactive:
		return "INACTIVE"
	case TimerActive:
		return "ACTIVE"
	case TimerCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// TimerFunc is invoked when a slot fires. Return true to fire again after
// the slot's interval, false to leave the slot idle until restarted.
type TimerFunc func(id TimerID) bool

// TimerInfo is a copy of a slot's state.
type TimerInfo struct {
	ID       TimerID
	Status   TimerStatus
	Interval time.Duration
	Callback TimerFunc
	// Armed reports whether a wait has ever been scheduled for the slot.
	Armed bool
}

type timerSlot struct {
	mu       sync.Mutex
	id       TimerID
	status   TimerStatus
	interval time.Duration
	callback TimerFunc
	timer    *time.Timer
	// seq identifies the most recent arming; a wait that completes with an
	// older seq was superseded by Start and must not fire.
	seq uint64
}

// Timers is a fixed table of 256 addressable timers.
//
// Firings of the same slot never overlap. Firings of different slots run
// concurrently, each on its own goroutine. Configuration calls for a given
// id (ConfigureAndStart, Update, Start, Stop, Revive) must be serialized by
// the caller. Stop is best-effort: a callback that is already running
// finishes, but the slot will not be re-armed.
type Timers struct {
	slots [timerCount]timerSlot
}

// NewTimers creates a table with every slot inactive.
func NewTimers() *Timers {
	t := &Timers{}
	for i := range t.slots {
		t.slots[i].id = TimerID(i)
	}
	return t
}

// ConfigureAndStart installs callback and interval for id, replacing any
// previous ones, and arms the slot.
func (t *Timers) ConfigureAndStart(id TimerID, interval time.Duration, callback TimerFunc) {
	t.update(id, interval, callback, true)
}

// Update installs callback and interval for id without arming the slot.
func (t *Timers) Update(id TimerID, interval time.Duration, callback TimerFunc) {
	t.update(id, interval, callback, false)
}

func (t *Timers) update(id TimerID, interval time.Duration, callback TimerFunc, start bool) {
	s := &t.slots[id]
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = TimerActive
	s.interval = interval
	s.callback = callback

	if start {
		s.arm()
	}
}

// ChangeInterval sets the interval used from the next arming on.
func (t *Timers) ChangeInterval(id TimerID, interval time.Duration) {
	s := &t.slots[id]
	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()
}

// Start re-arms a configured slot from now, canceling any pending wait.
func (t *Timers) Start(id TimerID) error {
	s := &t.slots[id]
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == TimerInactive {
		return ErrTimerNotConfigured
	}

	s.status = TimerActive
	s.arm()

	return nil
}

// Revive marks a stopped slot active again without arming it.
// A callback that is still running and returns true will then re-arm it.
func (t *Timers) Revive(id TimerID) error {
	s := &t.slots[id]
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == TimerInactive {
		return ErrTimerNotConfigured
	}

	s.status = TimerActive
	return nil
}

// Stop cancels the pending wait of id. Stopping a stopped or inactive slot
// does nothing.
func (t *Timers) Stop(id TimerID) {
	t.slots[id].stop()
}

// StopAll stops every slot.
func (t *Timers) StopAll() {
	for i := range t.slots {
		t.slots[i].stop()
	}
}

// Snapshot returns a copy of the slot's current state.
func (t *Timers) Snapshot(id TimerID) TimerInfo {
	s := &t.slots[id]
	s.mu.Lock()
	defer s.mu.Unlock()

	return TimerInfo{
		ID:       s.id,
		Status:   s.status,
		Interval: s.interval,
		Callback: s.callback,
		Armed:    s.timer != nil,
	}
}

// arm schedules a wait of s.interval from now. s.mu must be held.
func (s *timerSlot) arm() {
	if s.timer != nil {
		s.timer.Stop()
	}

	s.seq++
	seq := s.seq
	s.timer = time.AfterFunc(s.interval, func() {
		s.fire(seq)
	})
}

func (s *timerSlot) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != TimerActive {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.status = TimerCanceled
}

func (s *timerSlot) fire(seq uint64) {
	s.mu.Lock()
	if s.seq != seq || s.status != TimerActive || s.callback == nil {
		s.mu.Unlock()
		return
	}
	callback, id := s.callback, s.id
	s.mu.Unlock()

	again := callback(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	// the callback may have restarted or stopped the slot itself
	if again && s.seq == seq && s.status == TimerActive {
		s.arm()
	}
}
