// Package ratelimit throttles batch submissions per delivery platform. Each
// platform gets a sliding-window limiter admitting at most N batches in any
// trailing period. Callers block in Admit until a slot frees or their
// context ends.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRate is returned by ParseRate for malformed rate strings.
var ErrInvalidRate = errors.New("ratelimit: invalid rate")

// Limiter admits one unit of work at a time.
type Limiter interface {
	// Admit blocks until the caller may proceed or ctx is done.
	Admit(ctx context.Context) error
}

// Rate is N admissions per Period.
type Rate struct {
	Count  int
	Period time.Duration
}

func (r Rate) String() string {
	return fmt.Sprintf("%d/%s", r.Count, r.Period)
}

// Interval is the average spacing between admissions at this rate.
func (r Rate) Interval() time.Duration {
	if r.Count <= 0 {
		return 0
	}
	return r.Period / time.Duration(r.Count)
}

var unitPeriods = map[string]time.Duration{
	"second": time.Second,
	"sec":    time.Second,
	"s":      time.Second,
	"minute": time.Minute,
	"min":    time.Minute,
	"m":      time.Minute,
	"hour":   time.Hour,
	"h":      time.Hour,
	"day":    24 * time.Hour,
	"d":      24 * time.Hour,
}

// ParseRate parses "100/minute", "5/second", "1000/hour" or a Go duration
// denominator such as "10/250ms".
func ParseRate(s string) (Rate, error) {
	count, unit, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Rate{}, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return Rate{}, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	unit = strings.ToLower(strings.TrimSpace(unit))
	if p, ok := unitPeriods[strings.TrimSuffix(unit, "s")]; ok && unit != "ms" {
		return Rate{Count: n, Period: p}, nil
	}
	if p, ok := unitPeriods[unit]; ok {
		return Rate{Count: n, Period: p}, nil
	}
	p, err := time.ParseDuration(unit)
	if err != nil || p <= 0 {
		return Rate{}, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	return Rate{Count: n, Period: p}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
