package campaign

import (
	"errors"
	"fmt"
)

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound       = errors.New("campaign not found")
	ErrNotCancellable = errors.New("campaign cannot be cancelled")
	ErrNotFinished    = errors.New("campaign has not finished")
)

// ValidationError rejects a malformed submission before anything is queued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// EngineFailure is an orchestration fault during Execute. The campaign has
// been marked failed and archived by the time it is returned.
type EngineFailure struct {
	CampaignID string
	Err        error
}

func (e *EngineFailure) Error() string {
	return fmt.Sprintf("campaign %s: engine failure: %v", e.CampaignID, e.Err)
}

func (e *EngineFailure) Unwrap() error { return e.Err }
