package subghz

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// fakeWakeTimer advances a virtual clock instead of sleeping and keeps
// a trace of the calls the orchestrator makes.
type fakeWakeTimer struct {
	elapsed time.Duration
	armed   bool
	trace   []string

	armFailAfter    int // fail the Nth Arm call, 0 = never
	disarmFailAfter int
	armCalls        int
	disarmCalls     int
}

func (f *fakeWakeTimer) Arm(d time.Duration) error {
	f.armCalls++
	if f.armFailAfter > 0 && f.armCalls >= f.armFailAfter {
		f.trace = append(f.trace, "arm-fail")
		return errors.New("lptim busy")
	}
	if f.armed {
		return errors.New("already armed")
	}
	f.armed = true
	f.elapsed += d
	f.trace = append(f.trace, "arm")
	return nil
}

func (f *fakeWakeTimer) Wait(mode DelayMode) {
	f.trace = append(f.trace, "wait")
}

func (f *fakeWakeTimer) Disarm() error {
	f.disarmCalls++
	if f.disarmFailAfter > 0 && f.disarmCalls >= f.disarmFailAfter {
		f.trace = append(f.trace, "disarm-fail")
		return errors.New("lptim stuck")
	}
	f.armed = false
	f.trace = append(f.trace, "disarm")
	return nil
}

func (f *fakeWakeTimer) ClearFlag() {
	f.trace = append(f.trace, "clear")
}

type countingWatchdog struct{ reloads int }

func (w *countingWatchdog) Reload() { w.reloads++ }

func TestDelay_ReloadsWatchdogPerSubInterval(t *testing.T) {
	tests := []struct {
		name       string
		d          time.Duration
		minReloads int
	}{
		{"shorter than one period", 3 * time.Second, 1},
		{"exactly one period", WatchdogRefreshPeriod, 1},
		{"just over one period", WatchdogRefreshPeriod + time.Millisecond, 2},
		{"many periods", 45 * time.Second, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wd := &countingWatchdog{}
			timer := &fakeWakeTimer{}
			o := NewOrchestrator(wd, timer)

			require.NoError(t, o.Delay(tc.d, DelayModeSleep))

			assert.GreaterOrEqual(t, wd.reloads, tc.minReloads)
			assert.Equal(t, tc.d, timer.elapsed, "armed sub-intervals must sum to the request")
		})
	}
}

func TestDelay_DecompositionProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := time.Duration(rapid.Int64Range(0, int64(2*time.Minute)).Draw(t, "d"))

		wd := &countingWatchdog{}
		timer := &fakeWakeTimer{}
		o := NewOrchestrator(wd, timer)
		require.NoError(t, o.Delay(d, DelayModeSleep))

		cycles := int((d + WatchdogRefreshPeriod - 1) / WatchdogRefreshPeriod)
		assert.GreaterOrEqual(t, wd.reloads, cycles)
		assert.Equal(t, d, timer.elapsed)
	})
}

func TestDelay_NoSubIntervalExceedsRefreshPeriod(t *testing.T) {
	timer := &fakeWakeTimer{}
	o := NewOrchestrator(&countingWatchdog{}, timer)

	longest := time.Duration(0)
	wrapped := &maxTrackingTimer{inner: timer, longest: &longest}
	o.timer = wrapped

	require.NoError(t, o.Delay(37*time.Second, DelayModeSleep))
	assert.LessOrEqual(t, longest, WatchdogRefreshPeriod)
}

type maxTrackingTimer struct {
	inner   WakeTimer
	longest *time.Duration
}

func (m *maxTrackingTimer) Arm(d time.Duration) error {
	if d > *m.longest {
		*m.longest = d
	}
	return m.inner.Arm(d)
}

func (m *maxTrackingTimer) Wait(mode DelayMode) { m.inner.Wait(mode) }
func (m *maxTrackingTimer) Disarm() error       { return m.inner.Disarm() }
func (m *maxTrackingTimer) ClearFlag()          { m.inner.ClearFlag() }

func TestDelay_DisarmsOnArmFailure(t *testing.T) {
	timer := &fakeWakeTimer{armFailAfter: 2}
	o := NewOrchestrator(&countingWatchdog{}, timer)

	err := o.Delay(25*time.Second, DelayModeSleep)
	require.ErrorIs(t, err, ErrTimer)
	assert.Equal(t, "disarm", timer.trace[len(timer.trace)-1],
		"timer must be disarmed on the failure path")
}

func TestDelay_FinalDisarmFailureIsReported(t *testing.T) {
	timer := &fakeWakeTimer{disarmFailAfter: 2}
	o := NewOrchestrator(&countingWatchdog{}, timer)

	err := o.Delay(time.Second, DelayModeSleep)
	require.ErrorIs(t, err, ErrTimer)
}

func TestDelay_ClearsWakeFlagAfterEachCycle(t *testing.T) {
	timer := &fakeWakeTimer{}
	o := NewOrchestrator(&countingWatchdog{}, timer)
	require.NoError(t, o.Delay(15*time.Second, DelayModeActive))

	// Each cycle is disarm, arm, wait, then flag clear after the reload.
	want := []string{
		"disarm", "arm", "wait", "clear",
		"disarm", "arm", "wait", "clear",
		"disarm",
	}
	assert.Equal(t, want, timer.trace)
}

func TestDelay_ZeroDurationStillDisarms(t *testing.T) {
	timer := &fakeWakeTimer{}
	o := NewOrchestrator(&countingWatchdog{}, timer)
	require.NoError(t, o.Delay(0, DelayModeSleep))
	assert.Equal(t, []string{"disarm"}, timer.trace)
}

func TestMonotonicWakeTimer_WallTimeFloorHolds(t *testing.T) {
	timer := NewMonotonicWakeTimer()
	o := NewOrchestrator(&countingWatchdog{}, timer)

	const d = 30 * time.Millisecond
	// A burst of external wakes must not shorten the delay.
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				timer.Wake()
				time.Sleep(time.Millisecond)
			}
		}
	}()

	start := time.Now()
	require.NoError(t, o.Delay(d, DelayModeSleep))
	close(stop)

	assert.GreaterOrEqual(t, time.Since(start), d)
}

func TestMonotonicWakeTimer_DoubleArmRejected(t *testing.T) {
	timer := NewMonotonicWakeTimer()
	require.NoError(t, timer.Arm(time.Minute))
	assert.Error(t, timer.Arm(time.Minute))
	require.NoError(t, timer.Disarm())
	assert.NoError(t, timer.Arm(time.Millisecond))
	timer.Wait(DelayModeActive)
	require.NoError(t, timer.Disarm())
}

func TestSoftwareWatchdog_DetectsStarvation(t *testing.T) {
	wd := NewSoftwareWatchdog(5 * time.Millisecond)
	wd.Reload()
	assert.False(t, wd.Starved())

	time.Sleep(10 * time.Millisecond)
	wd.Reload()
	assert.True(t, wd.Starved())
}
