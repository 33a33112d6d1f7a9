package timer

import "time"

// Timer provides a fancier timer than time.Timer
type Timer struct {
	timer    *time.Timer
	interval time.Duration
	running  bool
}

// New creates a new timer that will call the given function after
// the interval has elapsed
func New(d time.Duration, f func()) *Timer {
	t := &Timer{
		interval: d,
		running:  true,
	}
	t.timer = time.AfterFunc(d, t.preflight(f))
	return t
}

// preflight takes care of any housekeeping before calling the user's function
func (t *Timer) preflight(f func()) func() {
	p := func() {
		t.running = false
		f()
	}
	return p
}

// Reset re-arms the timer at the given interval, replacing whatever
// interval it was created or last reconfigured with. Used both for the
// ordinary "re-arm at the end of a firing" case (pass the existing
// interval back) and for runtime reconfiguration such as the
// equivalent of `bgp scan-time <5-60>`.
func (t *Timer) Reset(d time.Duration) {
	if !t.timer.Stop() {
		select {
		case <-t.timer.C:
		default:
		}
	}
	t.interval = d
	t.running = true
	t.timer.Reset(d)
}

// Rearm re-arms the timer at its current interval.
func (t *Timer) Rearm() {
	t.Reset(t.interval)
}

// Stop cancels the timer.
func (t *Timer) Stop() {
	if !t.timer.Stop() {
		select {
		case <-t.timer.C:
		default:
		}
	}
	t.running = false
}

// Running returns true if the timer is counting down, false otherwise.
func (t *Timer) Running() bool {
	return t.running
}

// Interval returns the timer's current interval.
func (t *Timer) Interval() time.Duration {
	return t.interval
}
