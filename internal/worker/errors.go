package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrPlatformNotConfigured means a target platform has no adapter, rate
	// limit or batch settings. It fails that platform only.
	ErrPlatformNotConfigured = errors.New("platform not configured")

	// ErrRetryExhausted is the final error of a batch whose retries all failed.
	ErrRetryExhausted = errors.New("batch retries exhausted")

	// ErrQueueFull is returned by Enqueue when the target lane is at capacity
	// or still draining after having been full.
	ErrQueueFull = errors.New("dispatch lane is full")

	// ErrNotRunning is returned when work is offered to a stopped component.
	ErrNotRunning = errors.New("worker not running")

	// ErrAlreadyRunning is returned by a second Start.
	ErrAlreadyRunning = errors.New("worker already running")
)

// BatchSendError wraps a transient adapter failure for one batch attempt.
type BatchSendError struct {
	Platform   string
	BatchIndex int
	Attempt    int
	Err        error
}

func (e *BatchSendError) Error() string {
	return fmt.Sprintf("%s batch %d attempt %d: %v", e.Platform, e.BatchIndex, e.Attempt, e.Err)
}

func (e *BatchSendError) Unwrap() error { return e.Err }
