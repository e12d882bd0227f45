package worker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/events"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// =============================================================================
// PRIORITY DISPATCH QUEUE
// =============================================================================
// Two FIFO lanes, urgent (critical/high) and standard (medium/low), drained
// by a fixed worker pool split between them. Urgent workers only read the
// urgent lane and standard workers only the standard lane, so neither lane
// can starve the other. A pool of one worker is shared and always prefers
// the urgent lane.

// Item is one queued campaign.
type Item struct {
	CampaignID string          `json:"campaign_id"`
	Priority   domain.Priority `json:"priority"`
	Score      int             `json:"score"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Handler executes a dequeued campaign. The context it receives is not
// cancelled by Stop; an execution that has started runs to completion.
type Handler func(ctx context.Context, item Item)

// DispatchConfig sizes the queue and its worker pool.
type DispatchConfig struct {
	Workers      int
	UrgentRatio  float64
	LaneCapacity int
}

// DispatchStats is a point-in-time view of the queue.
type DispatchStats struct {
	Depths     map[domain.Lane]int `json:"depths"`
	InFlight   int64               `json:"in_flight"`
	Dispatched int64               `json:"dispatched"`
	Rejected   int64               `json:"rejected"`
	Workers    map[domain.Lane]int `json:"workers"`
}

// DispatchQueue feeds campaigns to a bounded worker pool by priority lane.
type DispatchQueue struct {
	cfg     DispatchConfig
	handler Handler
	bus     *events.Bus
	log     *logger.Logger

	lanes        map[domain.Lane]chan Item
	backpressure map[domain.Lane]*LaneBackpressure

	urgentWorkers   int
	standardWorkers int

	// Stats
	inFlight   atomic.Int64
	dispatched atomic.Int64
	rejected   atomic.Int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	stopped bool
	mu      sync.RWMutex
}

// NewDispatchQueue creates a stopped queue. Items may be enqueued before
// Start; they are picked up once workers run.
func NewDispatchQueue(cfg DispatchConfig, handler Handler, bus *events.Bus) *DispatchQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.UrgentRatio <= 0 || cfg.UrgentRatio >= 1 {
		cfg.UrgentRatio = 0.5
	}
	if cfg.LaneCapacity <= 0 {
		cfg.LaneCapacity = 10000
	}
	urgent, standard := splitWorkers(cfg.Workers, cfg.UrgentRatio)
	return &DispatchQueue{
		cfg:     cfg,
		handler: handler,
		bus:     bus,
		log:     logger.With("component", "dispatch"),
		lanes: map[domain.Lane]chan Item{
			domain.LaneUrgent:   make(chan Item, cfg.LaneCapacity),
			domain.LaneStandard: make(chan Item, cfg.LaneCapacity),
		},
		backpressure: map[domain.Lane]*LaneBackpressure{
			domain.LaneUrgent:   NewLaneBackpressure(domain.LaneUrgent, cfg.LaneCapacity),
			domain.LaneStandard: NewLaneBackpressure(domain.LaneStandard, cfg.LaneCapacity),
		},
		urgentWorkers:   urgent,
		standardWorkers: standard,
	}
}

// splitWorkers divides total workers by ratio, keeping at least one per lane.
// A total of one returns 0, 0: the single worker is shared.
func splitWorkers(total int, ratio float64) (urgent, standard int) {
	if total <= 1 {
		return 0, 0
	}
	urgent = int(math.Round(float64(total) * ratio))
	urgent = max(1, min(urgent, total-1))
	return urgent, total - urgent
}

// Start launches the worker pool.
func (q *DispatchQueue) Start() error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return ErrAlreadyRunning
	}
	if q.stopped {
		q.mu.Unlock()
		return ErrNotRunning
	}
	q.running = true
	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.mu.Unlock()

	q.log.Info("starting dispatch workers",
		"urgent_workers", q.urgentWorkers,
		"standard_workers", q.standardWorkers,
		"lane_capacity", q.cfg.LaneCapacity,
	)

	if q.urgentWorkers == 0 && q.standardWorkers == 0 {
		q.wg.Add(1)
		go q.sharedLoop()
		return nil
	}
	for i := 0; i < q.urgentWorkers; i++ {
		q.wg.Add(1)
		go q.laneLoop(domain.LaneUrgent)
	}
	for i := 0; i < q.standardWorkers; i++ {
		q.wg.Add(1)
		go q.laneLoop(domain.LaneStandard)
	}
	return nil
}

// Stop closes intake and waits for in-flight executions to finish. Items
// still queued are left unexecuted.
func (q *DispatchQueue) Stop() {
	q.mu.Lock()
	q.stopped = true
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()

	depths := q.Depths()
	q.log.Info("dispatch workers stopped",
		"left_urgent", depths[domain.LaneUrgent],
		"left_standard", depths[domain.LaneStandard],
	)
}

// Enqueue appends item to the lane matching its priority and returns its
// 1-based position in that lane.
func (q *DispatchQueue) Enqueue(item Item) (int, error) {
	q.mu.RLock()
	stopped := q.stopped
	q.mu.RUnlock()
	if stopped {
		return 0, ErrNotRunning
	}

	lane := domain.LaneFor(item.Priority)
	ch := q.lanes[lane]
	bp := q.backpressure[lane]
	if item.Score == 0 {
		item.Score = item.Priority.Score()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}

	if !bp.Allow(len(ch)) {
		q.rejected.Add(1)
		return 0, fmt.Errorf("%w: %s lane draining", ErrQueueFull, lane)
	}
	select {
	case ch <- item:
	default:
		bp.Trip(len(ch))
		q.rejected.Add(1)
		return 0, fmt.Errorf("%w: %s lane at capacity %d", ErrQueueFull, lane, q.cfg.LaneCapacity)
	}

	position := len(ch)
	q.publishDepths()
	q.log.Debug("campaign enqueued",
		"campaign_id", item.CampaignID,
		"lane", string(lane),
		"score", item.Score,
		"position", position,
	)
	return position, nil
}

// Depths returns the number of queued items per lane.
func (q *DispatchQueue) Depths() map[domain.Lane]int {
	return map[domain.Lane]int{
		domain.LaneUrgent:   len(q.lanes[domain.LaneUrgent]),
		domain.LaneStandard: len(q.lanes[domain.LaneStandard]),
	}
}

// Stats returns queue counters.
func (q *DispatchQueue) Stats() DispatchStats {
	workers := map[domain.Lane]int{
		domain.LaneUrgent:   q.urgentWorkers,
		domain.LaneStandard: q.standardWorkers,
	}
	if q.urgentWorkers == 0 && q.standardWorkers == 0 {
		workers[domain.LaneUrgent] = 1
	}
	return DispatchStats{
		Depths:     q.Depths(),
		InFlight:   q.inFlight.Load(),
		Dispatched: q.dispatched.Load(),
		Rejected:   q.rejected.Load(),
		Workers:    workers,
	}
}

func (q *DispatchQueue) laneLoop(lane domain.Lane) {
	defer q.wg.Done()
	ch := q.lanes[lane]
	for {
		select {
		case <-q.ctx.Done():
			return
		case item := <-ch:
			q.run(item)
		}
	}
}

func (q *DispatchQueue) sharedLoop() {
	defer q.wg.Done()
	urgent, standard := q.lanes[domain.LaneUrgent], q.lanes[domain.LaneStandard]
	for {
		select {
		case <-q.ctx.Done():
			return
		case item := <-urgent:
			q.run(item)
			continue
		default:
		}

		select {
		case <-q.ctx.Done():
			return
		case item := <-urgent:
			q.run(item)
		case item := <-standard:
			q.run(item)
		}
	}
}

func (q *DispatchQueue) run(item Item) {
	q.inFlight.Add(1)
	q.dispatched.Add(1)
	defer q.inFlight.Add(-1)
	q.publishDepths()

	defer func() {
		if r := recover(); r != nil {
			q.log.Error("campaign handler panicked", "campaign_id", item.CampaignID, "panic", fmt.Sprint(r))
		}
	}()
	q.handler(context.WithoutCancel(q.ctx), item)
}

func (q *DispatchQueue) publishDepths() {
	d := q.Depths()
	q.bus.Publish(context.Background(), events.QueueDepthChangedEvent{
		Urgent:   d[domain.LaneUrgent],
		Standard: d[domain.LaneStandard],
	})
}
