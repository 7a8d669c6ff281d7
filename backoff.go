package oauthclient

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// eagerBackOff implements backoff.BackOff with the refresh scheduler's own
// jitter formula rather than the library's default exponential policy:
// next = clamp(uniform(0, last) + last*2, min, max). The first call (with
// last == 0) has a zero jitter term and a zero multiplied term, so it is
// clamped up to min: a freshly failing refresh retries after exactly min.
type eagerBackOff struct {
	last time.Duration
	min  time.Duration
	max  time.Duration
	rand func(time.Duration) time.Duration
}

var _ backoff.BackOff = (*eagerBackOff)(nil)

func newEagerBackOff(min, max time.Duration) *eagerBackOff {
	return &eagerBackOff{min: min, max: max, rand: defaultJitter}
}

// NextBackOff returns the next retry delay and advances internal state.
func (b *eagerBackOff) NextBackOff() time.Duration {
	jitter := b.rand(b.last)
	next := jitter + b.last*2
	next = clampDuration(next, b.min, b.max)
	b.last = next
	return next
}

// Reset clears accumulated state so the next NextBackOff call behaves like
// the first retry after a fresh failure.
func (b *eagerBackOff) Reset() {
	b.last = 0
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

// defaultJitter returns a uniformly distributed duration in [0, last].
// Back-off jitter has no cryptographic requirement, so math/rand is fine
// here (contrast state/nonce generation in flow.go, which uses
// crypto/rand).
func defaultJitter(last time.Duration) time.Duration {
	if last <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(last) + 1))
}
