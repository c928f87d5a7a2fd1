package subghz

/*------------------------------------------------------------------
 *
 * Purpose:   	Timing and power orchestrator.
 *
 * Description:	Converts an arbitrary delay request into bounded sleep
 *		cycles that never starve the watchdog.  The requested
 *		duration is decomposed into sub-intervals no longer
 *		than the watchdog refresh period; each iteration arms
 *		the wake timer, enters the requested wait, then reloads
 *		the watchdog and clears stale wake flags before the
 *		next cycle.  An external wake source may interleave
 *		without breaking the loop because every iteration
 *		re-arms independently.
 *
 *		The wake timer is unconditionally disarmed on every
 *		exit path, success or failure.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"sync"
	"time"
)

// DelayMode selects how the orchestrator waits out a sub-interval.
type DelayMode uint8

const (
	// DelayModeActive spins on the clock without entering low power.
	DelayModeActive DelayMode = iota
	// DelayModeSleep suspends until the wake timer (or a qualifying
	// external interrupt) fires.
	DelayModeSleep
)

// WatchdogRefreshPeriod bounds the worst-case time between two
// watchdog reloads, regardless of the requested delay.
const WatchdogRefreshPeriod = 10 * time.Second

// Watchdog is the hardware contract: reload it or the system resets.
type Watchdog interface {
	Reload()
}

// WakeTimer is the hardware contract for the low-power wake source.
type WakeTimer interface {
	// Arm schedules a wake after d.  Arming an armed timer is an error.
	Arm(d time.Duration) error
	// Wait blocks until the armed interval elapses.
	Wait(mode DelayMode)
	// Disarm cancels any pending wake.  Safe on an idle timer.
	Disarm() error
	// ClearFlag drops any stale wake indication.
	ClearFlag()
}

// Orchestrator sequences watchdog-safe delays.
type Orchestrator struct {
	wd     Watchdog
	timer  WakeTimer
	period time.Duration
}

// NewOrchestrator builds an orchestrator with the default refresh
// period.
func NewOrchestrator(wd Watchdog, timer WakeTimer) *Orchestrator {
	return &Orchestrator{wd: wd, timer: timer, period: WatchdogRefreshPeriod}
}

// Delay waits at least d in the requested mode.  The watchdog is
// reloaded at least ceil(d / period) times.
func (o *Orchestrator) Delay(d time.Duration, mode DelayMode) error {
	var failure error

	remaining := d
	for remaining > 0 {
		sub := remaining
		if sub > o.period {
			sub = o.period
		}
		remaining -= sub

		if err := o.timer.Disarm(); err != nil {
			failure = Tag(ComponentTimer, fmt.Errorf("%w: disarm: %w", ErrTimer, err))
			break
		}
		if err := o.timer.Arm(sub); err != nil {
			failure = Tag(ComponentTimer, fmt.Errorf("%w: arm: %w", ErrTimer, err))
			break
		}
		o.timer.Wait(mode)

		// Wake-up: feed the watchdog and drop stale flags before the
		// next cycle.
		o.wd.Reload()
		o.timer.ClearFlag()
	}

	// Disarm on every exit path.
	if err := o.timer.Disarm(); err != nil && failure == nil {
		failure = Tag(ComponentTimer, fmt.Errorf("%w: final disarm: %w", ErrTimer, err))
	}
	return failure
}

// MonotonicWakeTimer implements WakeTimer against the host monotonic
// clock.  External wake events delivered through Wake are absorbed
// without shortening the armed interval, so Delay's wall-time floor
// holds.
type MonotonicWakeTimer struct {
	mu       sync.Mutex
	deadline time.Time
	armed    bool
	wake     chan struct{}
}

func NewMonotonicWakeTimer() *MonotonicWakeTimer {
	return &MonotonicWakeTimer{wake: make(chan struct{}, 1)}
}

func (t *MonotonicWakeTimer) Arm(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed {
		return fmt.Errorf("wake timer already armed")
	}
	t.deadline = time.Now().Add(d)
	t.armed = true
	return nil
}

func (t *MonotonicWakeTimer) Wait(mode DelayMode) {
	t.mu.Lock()
	deadline := t.deadline
	t.mu.Unlock()

	for {
		left := time.Until(deadline)
		if left <= 0 {
			return
		}
		switch mode {
		case DelayModeActive:
			time.Sleep(left)
		case DelayModeSleep:
			select {
			case <-time.After(left):
			case <-t.wake:
				// External wake: loop re-checks the deadline.
			}
		}
	}
}

func (t *MonotonicWakeTimer) Disarm() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = false
	return nil
}

func (t *MonotonicWakeTimer) ClearFlag() {
	select {
	case <-t.wake:
	default:
	}
}

// Wake delivers an external wake event, e.g. from a GPIO edge.
// Non-blocking on the producer side.
func (t *MonotonicWakeTimer) Wake() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// SoftwareWatchdog tracks reload freshness on the host, standing in for
// the independent hardware watchdog.
type SoftwareWatchdog struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration
	starved  bool
}

// NewSoftwareWatchdog builds a watchdog that considers itself starved
// when two reloads are further apart than interval.
func NewSoftwareWatchdog(interval time.Duration) *SoftwareWatchdog {
	return &SoftwareWatchdog{last: time.Now(), interval: interval}
}

func (w *SoftwareWatchdog) Reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if now.Sub(w.last) > w.interval {
		w.starved = true
	}
	w.last = now
}

// Starved reports whether any reload gap exceeded the interval.
func (w *SoftwareWatchdog) Starved() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.starved
}
