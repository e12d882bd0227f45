// Package backoff computes retry delays using exponential backoff with a cap
// and optional full jitter.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy describes an exponential backoff schedule: Base * 2^(attempt-1),
// capped at Max. With Jitter set, the delay is drawn uniformly from
// [MinDelay, computed delay].
type Policy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool

	// rand is swapped in tests to make jittered delays deterministic.
	rand func() float64
}

// MinDelay is the floor applied to jittered delays to avoid busy-looping.
const MinDelay = 10 * time.Millisecond

// New creates a policy. Non-positive base defaults to 1s; a max smaller than
// base is raised to base.
func New(base, max time.Duration, jitter bool) Policy {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return Policy{Base: base, Max: max, Jitter: jitter}
}

// Delay returns the wait before the given attempt (1-based). Attempts below 1
// are treated as the first attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	// Exponential backoff: base * 2^(attempt-1)
	expDelay := float64(p.Base) * math.Pow(2, float64(attempt-1))

	// Cap at max
	if p.Max > 0 && expDelay > float64(p.Max) {
		expDelay = float64(p.Max)
	}

	if !p.Jitter {
		return time.Duration(expDelay)
	}

	rnd := p.rand
	if rnd == nil {
		rnd = rand.Float64
	}
	jittered := time.Duration(rnd() * expDelay)
	if jittered < MinDelay {
		jittered = MinDelay
	}
	return jittered
}
