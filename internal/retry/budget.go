package retry

import "time"

// DefaultAttempts is the poll budget used when Budget.Attempts is unset.
const DefaultAttempts = 1_000_000

var sleep = time.Sleep

// Budget bounds a polling wait by attempt count rather than wall time.
//
// Interval is an optional pause between polls. Sleep overrides the package
// sleep function, mostly for tests.
type Budget struct {
	Attempts int
	Interval time.Duration
	Sleep    func(time.Duration)
}

// Poll calls done until it reports true or the budget is exhausted.
// It returns false on exhaustion.
func (b Budget) Poll(done func() bool) bool {
	n := b.Attempts
	if n <= 0 {
		n = DefaultAttempts
	}
	pause := b.Sleep
	if pause == nil {
		pause = sleep
	}
	for i := 0; i < n; i++ {
		if done() {
			return true
		}
		if b.Interval > 0 && i < n-1 {
			pause(b.Interval)
		}
	}
	return false
}
