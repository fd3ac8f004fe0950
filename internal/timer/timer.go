// Package timer implements TimerDriver (C5): a single retransmission
// timer the engine rearms after every scan to fire at the soonest
// pending deadline across all live queries.
package timer

import "time"

// Driver wraps a time.Timer, exposing just the Reset/Stop/fire-channel
// surface the engine's event loop needs to select on.
type Driver struct {
	timer *time.Timer
}

// New returns a Driver with no timer armed; call Rearm to start it.
func New() *Driver {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return &Driver{timer: t}
}

// C is the channel that fires when the armed deadline elapses.
func (dr *Driver) C() <-chan time.Time {
	return dr.timer.C
}

// Rearm reschedules the timer to fire after d, draining any pending fire
// first so stale events never leak into the next select.
func (dr *Driver) Rearm(d time.Duration) {
	if !dr.timer.Stop() {
		select {
		case <-dr.timer.C:
		default:
		}
	}
	dr.timer.Reset(d)
}

// Stop disarms the timer.
func (dr *Driver) Stop() {
	if !dr.timer.Stop() {
		select {
		case <-dr.timer.C:
		default:
		}
	}
}

// NextDeadline returns the minimum of the given deadlines, or the zero
// Time if deadlines is empty. The engine calls this after every scan to
// compute the next Rearm duration.
func NextDeadline(deadlines []time.Time) time.Time {
	var min time.Time
	for _, d := range deadlines {
		if d.IsZero() {
			continue
		}
		if min.IsZero() || d.Before(min) {
			min = d
		}
	}
	return min
}
