package timekeeper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func TestNextTimestampMonotonicWithoutClockAdvance(t *testing.T) {
	m := NewWithClock(fixedClock{t: time.Unix(1_000, 0)})

	a := m.NextTimestamp()
	b := m.NextTimestamp()
	require.GreaterOrEqual(t, b, a+1)
}

func TestSetNextTimestampPinsExactValue(t *testing.T) {
	m := NewWithClock(fixedClock{t: time.Unix(1_000, 0)})
	m.SetNextTimestamp(5_000)
	require.Equal(t, uint64(5_000), m.NextTimestamp())
}

func TestResetClearsOffsetAndLastReturned(t *testing.T) {
	m := NewWithClock(fixedClock{t: time.Unix(1_000, 0)})
	m.Increase(500)
	m.Reset(1_743_944_919)
	require.Equal(t, uint64(1_743_944_920), m.NextTimestamp())
}

func TestIncreaseShiftsFutureTimestamps(t *testing.T) {
	m := NewWithClock(fixedClock{t: time.Unix(1_000, 0)})
	before := m.CurrentCallTimestamp()
	m.Increase(100)
	after := m.CurrentCallTimestamp()
	require.Equal(t, before+100, after)
}
