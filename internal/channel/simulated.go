package channel

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSimulatedOutage is returned by a Simulated adapter when it rejects a
// whole batch.
var ErrSimulatedOutage = errors.New("channel: simulated provider outage")

// SimulatedConfig tunes a Simulated adapter.
type SimulatedConfig struct {
	// Latency is slept per batch, honoring ctx.
	Latency time.Duration
	// RecipientFailureRate is the chance in [0,1] that any single recipient
	// is reported failed.
	RecipientFailureRate float64
	// BatchErrorRate is the chance in [0,1] that the whole call errors.
	BatchErrorRate float64
}

// Simulated is an in-process adapter used for local runs and tests. It
// never talks to a real provider.
type Simulated struct {
	cfg SimulatedConfig

	mu   sync.Mutex
	rand func() float64

	calls      atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64
}

// NewSimulated creates a simulated adapter.
func NewSimulated(cfg SimulatedConfig) *Simulated {
	return &Simulated{cfg: cfg, rand: rand.Float64}
}

// SendBatch implements Adapter.
func (s *Simulated) SendBatch(ctx context.Context, batch Batch) (Result, error) {
	s.calls.Add(1)

	if s.cfg.Latency > 0 {
		t := time.NewTimer(s.cfg.Latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return Result{}, ctx.Err()
		case <-t.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.BatchErrorRate > 0 && s.rand() < s.cfg.BatchErrorRate {
		return Result{}, ErrSimulatedOutage
	}

	var res Result
	for range batch.Recipients {
		if s.cfg.RecipientFailureRate > 0 && s.rand() < s.cfg.RecipientFailureRate {
			res.Failed++
		} else {
			res.Successful++
		}
	}
	s.successful.Add(int64(res.Successful))
	s.failed.Add(int64(res.Failed))
	return res, nil
}

// Stats returns call and recipient counters since creation.
func (s *Simulated) Stats() (calls, successful, failed int64) {
	return s.calls.Load(), s.successful.Load(), s.failed.Load()
}
