package worker

import (
	"sync"
	"time"

	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Scheduler holds deferred campaigns until their send time and then calls
// the fire function registered with them. A campaign can be cancelled any
// time before it fires; Cancel and firing race on the same map entry, so
// exactly one of them wins.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]scheduled
	gen     uint64
	stopped bool
	log     *logger.Logger
}

// scheduled is one pending timer. gen identifies the Schedule call that
// created it, so a replaced timer cannot claim its successor's entry.
type scheduled struct {
	timer *time.Timer
	gen   uint64
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		timers: make(map[string]scheduled),
		log:    logger.With("component", "scheduler"),
	}
}

// Schedule arranges for fire to run at at. A time in the past fires
// immediately on a new goroutine. Rescheduling an id replaces its timer.
func (s *Scheduler) Schedule(id string, at time.Time, fire func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrNotRunning
	}
	if prev, ok := s.timers[id]; ok {
		prev.timer.Stop()
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	s.gen++
	gen := s.gen
	t := time.AfterFunc(delay, func() {
		if !s.claim(id, gen) {
			return
		}
		fire()
	})
	s.timers[id] = scheduled{timer: t, gen: gen}
	s.log.Debug("campaign scheduled", "campaign_id", id, "send_at", at.UTC().Format(time.RFC3339), "delay", delay.String())
	return nil
}

// claim removes id so that only one of Cancel or the timer proceeds.
func (s *Scheduler) claim(id string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if cur, ok := s.timers[id]; !ok || cur.gen != gen {
		return false
	}
	delete(s.timers, id)
	return true
}

// Cancel removes a pending campaign. It returns false when the campaign has
// already fired or was never scheduled.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.timers[id]
	if !ok {
		return false
	}
	cur.timer.Stop()
	delete(s.timers, id)
	return true
}

// Pending returns the number of campaigns waiting to fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending timer and refuses new schedules. It returns
// the ids that were still pending.
func (s *Scheduler) Stop() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	ids := make([]string, 0, len(s.timers))
	for id, cur := range s.timers {
		cur.timer.Stop()
		ids = append(ids, id)
	}
	s.timers = make(map[string]scheduled)
	if len(ids) > 0 {
		s.log.Info("scheduler stopped with pending campaigns", "pending", len(ids))
	}
	return ids
}
