// Package timekeeper implements C2: a monotonic logical clock used to
// derive timestamps for pending-call simulation and for mined blocks.
package timekeeper

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock access so tests can pin "now" without sleeping.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager is the (offset, last_returned) pair of spec §4.2, guarded by a
// mutex since both current_call_timestamp and next_timestamp are called
// from the read and write paths respectively and must never observe a torn
// update.
type Manager struct {
	mu           sync.Mutex
	clock        Clock
	offsetSecs   int64
	lastReturned uint64
}

// New creates a Manager whose current_call_timestamp initially equals the
// wall clock (zero offset).
func New() *Manager {
	return &Manager{clock: realClock{}}
}

// NewWithClock is used by tests to inject a fake Clock.
func NewWithClock(c Clock) *Manager {
	return &Manager{clock: c}
}

// CurrentCallTimestamp is the value used for pending/call simulations:
// wall_clock + offset. It does not advance last_returned.
func (m *Manager) CurrentCallTimestamp() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nowWithOffset()
}

func (m *Manager) nowWithOffset() uint64 {
	now := m.clock.Now().Unix() + m.offsetSecs
	if now < 0 {
		return 0
	}
	return uint64(now)
}

// NextTimestamp returns the value used for the next mined block. It is
// monotonic non-decreasing: two successive calls without an intervening
// setter are separated by at least one second, even if wall-clock time has
// not advanced (e.g. two blocks mined within the same second).
func (m *Manager) NextTimestamp() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.nowWithOffset()
	if next <= m.lastReturned {
		next = m.lastReturned + 1
	}
	m.lastReturned = next
	return next
}

// SetNextTimestamp pins the exact value the next NextTimestamp call
// returns, adjusting the offset so that subsequent calls remain consistent
// with wall-clock drift.
func (m *Manager) SetNextTimestamp(ts uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.offsetSecs = int64(ts) - m.clock.Now().Unix()
	m.lastReturned = ts - 1
}

// Increase advances the offset by secs, shifting every future timestamp
// forward without otherwise changing last_returned.
func (m *Manager) Increase(secs uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offsetSecs += int64(secs)
}

// Reset sets last_returned = ts and clears the offset, the way a fork
// reset or reset_to_in_mem re-anchors the clock to a fresh genesis
// timestamp.
func (m *Manager) Reset(ts uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offsetSecs = 0
	m.lastReturned = ts
}

// State is the (offset, last_returned) pair captured by Capture and handed
// back to Restore, so evm_snapshot/evm_revert can roll the clock back to
// exactly what it read before the snapshot was taken.
type State struct {
	offsetSecs   int64
	lastReturned uint64
}

// Capture returns the Manager's current offset/last_returned pair.
func (m *Manager) Capture() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{offsetSecs: m.offsetSecs, lastReturned: m.lastReturned}
}

// Restore puts the Manager back into exactly the state a prior Capture
// observed.
func (m *Manager) Restore(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offsetSecs = s.offsetSecs
	m.lastReturned = s.lastReturned
}
