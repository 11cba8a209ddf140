// Package clock abstracts time so the Audit Trail's sequencing, the
// Enforcement Engine's absolute L2 deadline, and the Approval Workflow's
// escalation timer can all share one monotonic source — spec.md §5 requires
// these two timers not drift apart — and so tests can drive them
// deterministically instead of sleeping. Grounded on the
// `clock func() time.Time` / `WithClock(...)` pattern repeated across the
// kernel lineage's ledger and escalation managers, generalized here into a
// small interface since this kernel also needs timer scheduling, not just
// a Now() override.
package clock

import "time"

// Clock is the monotonic time source every package in this module takes
// as a constructor dependency.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the handle returned by AfterFunc; Stop cancels a pending fire.
type Timer interface {
	Stop() bool
}

type realClock struct{}

// Real returns a Clock backed by the standard library's wall clock.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }
