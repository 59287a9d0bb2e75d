package attackqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"lane-siege/server/internal/battle"
	"lane-siege/server/internal/telemetry"
)

// DefaultFireInterval is the fixed pacing between consecutive launches on one
// (battle, side, lane) key.
const DefaultFireInterval = 500 * time.Millisecond

// FireFunc performs one launch. It is invoked fire-and-forget: projectile
// travel and collision resolution must never delay the next scheduled launch.
type FireFunc func()

// Job is one pending launch on a key.
type Job struct {
	Fire       FireFunc
	Source     string
	ItemID     string
	EnqueuedAt time.Time
}

type laneKey struct {
	battleID battle.ID
	side     battle.Side
	lane     battle.Lane
}

type laneState struct {
	jobs       []Job
	lastFire   time.Time
	processing bool
}

// Queue is the per (battle, side, lane) rate limiter pacing projectile
// launches. It is the single chokepoint that keeps "every N projectiles"
// item triggers deterministic and prevents same-lane launch overlap. Keys
// never block one another.
type Queue struct {
	mu       sync.Mutex
	lanes    map[laneKey]*laneState
	interval time.Duration
	logger   telemetry.Logger

	enqueued metric.Int64Counter
	fired    metric.Int64Counter
}

// New creates a queue with the given inter-launch interval; zero or negative
// means DefaultFireInterval. Metrics come from the global OTel meter and are
// no-ops when no provider is configured.
func New(interval time.Duration, logger telemetry.Logger) (*Queue, error) {
	if interval <= 0 {
		interval = DefaultFireInterval
	}
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	q := &Queue{
		lanes:    make(map[laneKey]*laneState),
		interval: interval,
		logger:   logger,
	}

	m := otel.GetMeterProvider().Meter("lane-siege/server/attackqueue")

	var err error
	q.enqueued, err = m.Int64Counter(
		"attackqueue.jobs.enqueued",
		metric.WithDescription("Total launch jobs enqueued"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating enqueued counter: %w", err)
	}
	q.fired, err = m.Int64Counter(
		"attackqueue.jobs.fired",
		metric.WithDescription("Total launch jobs fired"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fired counter: %w", err)
	}

	depth, err := m.Int64ObservableGauge(
		"attackqueue.jobs.pending",
		metric.WithDescription("Pending launch jobs per lane key"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pending gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		q.mu.Lock()
		defer q.mu.Unlock()
		for key, st := range q.lanes {
			o.ObserveInt64(depth, int64(len(st.jobs)),
				metric.WithAttributes(
					attribute.String("battle", string(key.battleID)),
					attribute.String("side", string(key.side)),
					attribute.String("lane", string(key.lane)),
				))
		}
		return nil
	}, depth)
	if err != nil {
		return nil, fmt.Errorf("registering pending gauge callback: %w", err)
	}

	return q, nil
}

// Enqueue appends a launch job for the key and starts the key's processing
// loop when it is idle.
func (q *Queue) Enqueue(battleID battle.ID, side battle.Side, lane battle.Lane, fire FireFunc, source, itemID string) {
	if fire == nil {
		q.logger.Warn("enqueue without fire callback",
			"battle", string(battleID), "side", string(side), "lane", string(lane))
		return
	}

	key := laneKey{battleID: battleID, side: side, lane: lane}

	q.mu.Lock()
	st, ok := q.lanes[key]
	if !ok {
		st = &laneState{}
		q.lanes[key] = st
	}
	st.jobs = append(st.jobs, Job{Fire: fire, Source: source, ItemID: itemID, EnqueuedAt: time.Now()})
	start := !st.processing
	if start {
		st.processing = true
	}
	q.mu.Unlock()

	q.enqueued.Add(context.Background(), 1)

	if start {
		go q.process(key, st)
	}
}

// process drains one key's jobs, pacing each launch by the fixed interval.
// The loop exits once the key is empty, leaving it idle for the next Enqueue.
// It is bound to the lane state it was started for: ClearBattle replaces that
// state, so a loop finding a different (or missing) state under its key must
// exit without firing, even if the battle id was reused in the meantime.
func (q *Queue) process(key laneKey, st *laneState) {
	for {
		q.mu.Lock()
		if q.lanes[key] != st {
			q.mu.Unlock()
			return
		}
		if len(st.jobs) == 0 {
			st.processing = false
			q.mu.Unlock()
			return
		}
		job := st.jobs[0]
		st.jobs = st.jobs[1:]
		wait := q.interval - time.Since(st.lastFire)
		q.mu.Unlock()

		if wait > 0 {
			time.Sleep(wait)
		}

		q.mu.Lock()
		if q.lanes[key] != st {
			// Battle cleared while pacing; drop the popped job.
			q.mu.Unlock()
			return
		}
		st.lastFire = time.Now()
		q.mu.Unlock()

		go job.Fire()
		q.fired.Add(context.Background(), 1)
	}
}

// Pending reports the number of queued jobs for one key.
func (q *Queue) Pending(battleID battle.ID, side battle.Side, lane battle.Lane) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.lanes[laneKey{battleID: battleID, side: side, lane: lane}]
	if !ok {
		return 0
	}
	return len(st.jobs)
}

// ClearBattle removes every key scoped to the battle, dropping pending jobs.
func (q *Queue) ClearBattle(battleID battle.ID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for key := range q.lanes {
		if key.battleID == battleID {
			delete(q.lanes, key)
		}
	}
}
