package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTriggerGrowsExponentiallyUpToCap(t *testing.T) {
	th := New(10*time.Millisecond, 2, 50*time.Millisecond)

	d1 := th.Trigger()
	assert.Equal(t, 10*time.Millisecond, d1)

	d2 := th.Trigger()
	assert.Equal(t, 30*time.Millisecond, d2)

	d3 := th.Trigger()
	assert.Equal(t, 50*time.Millisecond, d3) // would be 50ms exactly, at the cap

	d4 := th.Trigger()
	assert.Equal(t, 50*time.Millisecond, d4) // capped
}

func TestActiveClearsAfterExpiry(t *testing.T) {
	th := New(5*time.Millisecond, 0, 0)
	th.Trigger()
	assert.True(t, th.Active())
	time.Sleep(10 * time.Millisecond)
	assert.False(t, th.Active())
}

func TestResetClearsBackoffCount(t *testing.T) {
	th := New(10*time.Millisecond, 2, 0)
	th.Trigger()
	th.Trigger()
	th.Reset()
	assert.False(t, th.Active())
	d := th.Trigger()
	assert.Equal(t, 10*time.Millisecond, d)
}
