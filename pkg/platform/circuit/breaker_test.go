package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTrips(t *testing.T) {
	b := New("paymongo", WithFailureThreshold(3))
	require.Equal(t, "paymongo", b.Name())
	require.Equal(t, StateClosed, b.State())

	for i := range 2 {
		fallback, change := b.RecordFailure()
		assert.False(t, fallback, "failure %d", i+1)
		assert.False(t, change.Opened)
	}
	b.RecordSuccess()
	assert.False(t, b.IsOpen(), "a success clears the failure streak")

	var change StateChange
	for range 3 {
		_, change = b.RecordFailure()
	}
	assert.True(t, change.Opened)
	assert.True(t, b.IsOpen())

	fallback, change := b.RecordFailure()
	assert.True(t, fallback)
	assert.False(t, change.Opened, "already open")
}

func TestBreakerRecovers(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		outcomes  []bool // true = success
		wantOpen  bool
	}{
		{name: "single probe closes", successes: 1, outcomes: []bool{true}, wantOpen: false},
		{name: "needs consecutive probes", successes: 2, outcomes: []bool{true}, wantOpen: true},
		{name: "failure restarts probe count", successes: 2, outcomes: []bool{true, false, true}, wantOpen: true},
		{name: "probe count reached", successes: 2, outcomes: []bool{true, false, true, true}, wantOpen: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("paymongo", WithFailureThreshold(1), WithSuccessThreshold(tt.successes))
			b.RecordFailure()
			require.True(t, b.IsOpen())

			for _, ok := range tt.outcomes {
				if ok {
					b.RecordSuccess()
				} else {
					b.RecordFailure()
				}
			}
			assert.Equal(t, tt.wantOpen, b.IsOpen())
		})
	}
}

func TestBreakerCooldown(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	b := New("paymongo", WithFailureThreshold(1), WithCooldown(30*time.Second), withClock(func() time.Time { return now }))

	b.RecordFailure()
	assert.False(t, b.Allow())

	now = now.Add(29 * time.Second)
	assert.False(t, b.Allow())

	now = now.Add(time.Second)
	assert.True(t, b.Allow(), "probe after cooldown")

	b.RecordFailure()
	assert.False(t, b.Allow(), "failed probe restarts the cooldown")

	b.Reset()
	assert.True(t, b.Allow())
	assert.Equal(t, StateClosed, b.State())
}
