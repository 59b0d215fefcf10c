package session

import "time"

// reconnector tracks the reconnect attempt counter and computes the backoff
// delay for the next attempt: min(base*2^attempt, max). The handshake
// reaching open resets the counter.
type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
}

func newReconnector(baseDelay, maxDelay time.Duration, maxAttempts int) *reconnector {
	return &reconnector{
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		maxAttempts: maxAttempts,
	}
}

// exhausted reports whether the retry budget is spent.
func (r *reconnector) exhausted() bool {
	return r.attempt >= r.maxAttempts
}

// nextDelay returns the backoff for the next attempt and consumes one unit
// of the budget.
func (r *reconnector) nextDelay() time.Duration {
	delay := r.baseDelay << r.attempt
	if delay > r.maxDelay || delay <= 0 {
		delay = r.maxDelay
	}
	r.attempt++
	return delay
}

func (r *reconnector) reset() {
	r.attempt = 0
}
