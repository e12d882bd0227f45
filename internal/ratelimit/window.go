package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow is an in-process limiter that admits at most Rate.Count
// callers in any trailing Rate.Period. It keeps the admission timestamps of
// the current window; a waiting caller sleeps until the oldest one ages out
// and then competes again.
type SlidingWindow struct {
	rate Rate
	now  func() time.Time

	mu       sync.Mutex
	admitted []time.Time
}

// NewSlidingWindow creates a limiter for rate. A non-positive count or
// period yields a limiter that never blocks.
func NewSlidingWindow(rate Rate) *SlidingWindow {
	return &SlidingWindow{rate: rate, now: time.Now}
}

// Rate returns the configured rate.
func (w *SlidingWindow) Rate() Rate { return w.rate }

// Admit blocks until fewer than Rate.Count admissions fall inside the
// trailing window, then records the caller's admission.
func (w *SlidingWindow) Admit(ctx context.Context) error {
	if w.rate.Count <= 0 || w.rate.Period <= 0 {
		return ctx.Err()
	}
	for {
		wait, ok := w.tryAdmit()
		if ok {
			return nil
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

func (w *SlidingWindow) tryAdmit() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.rate.Period)
	i := 0
	for i < len(w.admitted) && !w.admitted[i].After(cutoff) {
		i++
	}
	w.admitted = w.admitted[i:]

	if len(w.admitted) < w.rate.Count {
		w.admitted = append(w.admitted, now)
		return 0, true
	}
	wait := w.admitted[0].Add(w.rate.Period).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// InFlight reports how many admissions fall inside the current window.
func (w *SlidingWindow) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := w.now().Add(-w.rate.Period)
	n := 0
	for _, t := range w.admitted {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
