package worker

import (
	"sync"
	"sync/atomic"
)

// ExecutionStats collects the error and retry counts of one campaign
// execution. Platform executors and retry workers update it concurrently;
// the lifecycle manager folds it into the campaign once fan-out resolves.
type ExecutionStats struct {
	errors  atomic.Int64
	retries atomic.Int64

	mu      sync.Mutex
	lastErr error
}

// RecordError counts a platform failure or an exhausted batch.
func (s *ExecutionStats) RecordError(err error) {
	if s == nil {
		return
	}
	s.errors.Add(1)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
	}
}

// RecordRetry counts one scheduled retry attempt.
func (s *ExecutionStats) RecordRetry() {
	if s == nil {
		return
	}
	s.retries.Add(1)
}

func (s *ExecutionStats) Errors() int  { return int(s.errors.Load()) }
func (s *ExecutionStats) Retries() int { return int(s.retries.Load()) }

// LastError returns the most recently recorded error, if any.
func (s *ExecutionStats) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
