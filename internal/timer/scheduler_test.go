package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManualScheduler(t *testing.T) (*Store, *Scheduler, *fakeClock, *manualTicks) {
	t.Helper()
	clock := newFakeClock()
	store := NewStore(clock)
	ticks := &manualTicks{}
	sched := NewScheduler(store, clock, time.Second)
	sched.every = ticks.every
	sched.Start()
	t.Cleanup(sched.Stop)
	return store, sched, clock, ticks
}

func TestScheduler_AnchorFromSavedElapsed(t *testing.T) {
	store, sched, clock, _ := newManualScheduler(t)
	require.NoError(t, store.Load("42", 30))

	start := clock.Now()
	require.NoError(t, store.StartTimer("42"))

	id, anchor, ok := sched.Anchor()
	require.True(t, ok)
	assert.Equal(t, "42", id)
	assert.Equal(t, start.Add(-30*time.Second), anchor)
}

func TestScheduler_TickComputesFromAnchor(t *testing.T) {
	store, _, clock, ticks := newManualScheduler(t)
	require.NoError(t, store.StartTimer("42"))

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		ticks.fireLive()
	}
	e, _ := store.Entry("42")
	assert.Equal(t, int64(3), e.Elapsed)
}

func TestScheduler_SkippedTicksDoNotLoseTime(t *testing.T) {
	tests := []struct {
		name  string
		e0    int64
		delta time.Duration
		want  int64
	}{
		{"backgrounded tab", 0, 40 * time.Second, 40},
		{"resumed entry", 5, 2500 * time.Millisecond, 7},
		{"sub-second", 12, 999 * time.Millisecond, 12},
		{"long sleep", 100, 3*time.Hour + 1500*time.Millisecond, 100 + 3*3600 + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _, clock, ticks := newManualScheduler(t)
			if tt.e0 > 0 {
				require.NoError(t, store.Load("X", tt.e0))
			}
			require.NoError(t, store.StartTimer("X"))

			clock.Advance(tt.delta)
			ticks.fireLive()

			e, _ := store.Entry("X")
			assert.Equal(t, tt.want, e.Elapsed)
		})
	}
}

func TestScheduler_PauseCancelsAndResumeReanchors(t *testing.T) {
	store, sched, clock, ticks := newManualScheduler(t)
	require.NoError(t, store.StartTimer("42"))

	clock.Advance(5 * time.Second)
	ticks.fireLive()
	require.NoError(t, store.PauseTimer("42"))

	_, _, ok := sched.Anchor()
	assert.False(t, ok)

	clock.Advance(time.Minute)
	ticks.fireLive()
	e, _ := store.Entry("42")
	assert.Equal(t, int64(5), e.Elapsed)

	require.NoError(t, store.ResumeTimer("42"))
	clock.Advance(2 * time.Second)
	ticks.fireLive()
	e, _ = store.Entry("42")
	assert.Equal(t, int64(7), e.Elapsed)
}

func TestScheduler_InFlightCallbackAfterSwitchIsRejected(t *testing.T) {
	store, _, clock, ticks := newManualScheduler(t)
	require.NoError(t, store.StartTimer("A"))
	clock.Advance(3 * time.Second)
	ticks.fireLive()

	require.NoError(t, store.StartTimer("B"))
	clock.Advance(10 * time.Second)

	// The cancelled task for A still runs once.
	ticks.fireAll()

	a, _ := store.Entry("A")
	b, _ := store.Entry("B")
	assert.Equal(t, int64(3), a.Elapsed)
	assert.False(t, a.Running)
	assert.Equal(t, int64(10), b.Elapsed)
}

func TestScheduler_EndCancels(t *testing.T) {
	store, sched, clock, ticks := newManualScheduler(t)
	require.NoError(t, store.StartTimer("A"))
	require.NoError(t, store.EndTimer("A"))

	_, _, ok := sched.Anchor()
	assert.False(t, ok)

	clock.Advance(time.Second)
	ticks.fireAll()
	_, exists := store.Entry("A")
	assert.False(t, exists)
}

func TestScheduler_StartPicksUpRunningIssue(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(clock)
	require.NoError(t, store.StartTimer("A"))

	sched := NewScheduler(store, clock, time.Second)
	ticks := &manualTicks{}
	sched.every = ticks.every
	sched.Start()
	defer sched.Stop()

	clock.Advance(2 * time.Second)
	ticks.fireLive()
	e, _ := store.Entry("A")
	assert.Equal(t, int64(2), e.Elapsed)
}

func TestScheduler_RealTicker(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(clock)
	sched := NewScheduler(store, clock, 5*time.Millisecond)
	sched.Start()
	defer sched.Stop()

	require.NoError(t, store.StartTimer("A"))
	clock.Advance(40 * time.Second)

	require.Eventually(t, func() bool {
		e, _ := store.Entry("A")
		return e.Elapsed == 40
	}, time.Second, 5*time.Millisecond)
}

func TestHandle_StopIsIdempotent(t *testing.T) {
	fired := make(chan struct{}, 16)
	h := Every(time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("handle never fired")
	}
	h.Stop()
	h.Stop()
}
