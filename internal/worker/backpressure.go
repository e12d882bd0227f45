package worker

import (
	"sync"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// LaneBackpressure pauses intake on a lane once it has filled and resumes
// when the lane drains below half its capacity.
type LaneBackpressure struct {
	lane     domain.Lane
	capacity int
	paused   bool
	mu       sync.RWMutex
	log      *logger.Logger
}

// NewLaneBackpressure creates a monitor for a lane of the given capacity.
func NewLaneBackpressure(lane domain.Lane, capacity int) *LaneBackpressure {
	return &LaneBackpressure{
		lane:     lane,
		capacity: capacity,
		log:      logger.With("component", "backpressure", "lane", string(lane)),
	}
}

// Allow reports whether an enqueue may be attempted at the given depth.
func (bp *LaneBackpressure) Allow(depth int) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if !bp.paused {
		return true
	}
	if depth < bp.capacity/2 {
		bp.paused = false
		bp.log.Info("lane drained, resuming intake", "depth", depth, "resume_below", bp.capacity/2)
		return true
	}
	return false
}

// Trip pauses the lane after an enqueue found it full.
func (bp *LaneBackpressure) Trip(depth int) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if !bp.paused {
		bp.log.Warn("lane full, pausing intake", "depth", depth, "capacity", bp.capacity)
	}
	bp.paused = true
}

// IsPaused returns true while intake on the lane is paused.
func (bp *LaneBackpressure) IsPaused() bool {
	bp.mu.RLock()
	defer bp.mu.RUnlock()
	return bp.paused
}
