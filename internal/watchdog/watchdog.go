// Package watchdog tracks wall-clock budget overruns for sandboxed
// callbacks.
package watchdog

import "time"

// Watchdog counts consecutive budget overruns and trips after a
// configured number of strikes. It is not safe for concurrent use;
// each sandboxed callee owns its own instance.
type Watchdog struct {
	budget  time.Duration
	strikes int
	streak  int
}

// New creates a watchdog with the given per-call budget and strike
// limit.
func New(budget time.Duration, strikes int) *Watchdog {
	return &Watchdog{budget: budget, strikes: strikes}
}

// Budget returns the per-call wall-clock budget.
func (w *Watchdog) Budget() time.Duration {
	return w.budget
}

// Observe records one call's duration. It returns true when the call
// overran the budget and the consecutive-overrun limit is reached.
func (w *Watchdog) Observe(elapsed time.Duration) bool {
	if elapsed <= w.budget {
		w.streak = 0

		return false
	}

	w.streak++

	return w.streak >= w.strikes
}

// Streak returns the current consecutive-overrun count.
func (w *Watchdog) Streak() int {
	return w.streak
}
