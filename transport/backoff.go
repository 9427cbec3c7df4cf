package transport

import (
	"math/rand"
	"time"
)

// NextDelay computes the delay before the next reconnection attempt:
// the current delay grows by factor, is capped at max, then gets
// normally-distributed jitter applied (stddev = delay * jitter) to
// prevent stampeding. The random source is injected so reconnect
// timing is testable.
func NextDelay(current time.Duration, factor float64, max time.Duration, jitter float64, rng *rand.Rand) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		next = max
	}
	if jitter > 0 {
		next = time.Duration(rng.NormFloat64()*float64(next)*jitter + float64(next))
	}
	if next < 0 {
		next = 0
	}
	return next
}

// Reconnector tracks reconnection state for a streaming connection:
// the current delay, the attempt count and the retry budget.
type Reconnector struct {
	Initial    time.Duration
	Max        time.Duration
	Factor     float64
	Jitter     float64
	MaxRetries int // 0 means unlimited

	delay   time.Duration
	retries int
	rng     *rand.Rand
}

// NewReconnector creates a reconnector seeded from the given source.
func NewReconnector(initial, max time.Duration, factor, jitter float64, maxRetries int, rng *rand.Rand) *Reconnector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Reconnector{
		Initial:    initial,
		Max:        max,
		Factor:     factor,
		Jitter:     jitter,
		MaxRetries: maxRetries,
		delay:      initial,
		rng:        rng,
	}
}

// Next returns the delay before the next attempt, or false when the
// retry budget is exhausted.
func (r *Reconnector) Next() (time.Duration, bool) {
	r.retries++
	if r.MaxRetries > 0 && r.retries > r.MaxRetries {
		return 0, false
	}
	r.delay = NextDelay(r.delay, r.Factor, r.Max, r.Jitter, r.rng)
	return r.delay, true
}

// Reset restores the initial delay after a successful connection.
func (r *Reconnector) Reset() {
	r.delay = r.Initial
	r.retries = 0
}

// Retries returns the number of attempts since the last reset.
func (r *Reconnector) Retries() int {
	return r.retries
}
