package orchestrator

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"voltedge/internal/config"
	"voltedge/internal/model"
	"voltedge/internal/sim"
	"voltedge/internal/telemetry"
)

// Status is the lifecycle state of a simulation.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Simulation owns one grid instance, its event batch and its snapshot ring.
// mu serializes every tick and status transition, so grid state is only ever
// touched by one goroutine at a time.
type Simulation struct {
	ID uint64

	mu     sync.Mutex
	status Status
	errMsg string

	grid    *sim.Grid
	ring    *sim.MetricsRing
	batch   *sim.EventBatch
	metrics *telemetry.Metrics

	scenario *config.Scenario
	tickRate time.Duration

	eventSeq atomic.Int64

	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	// wall-clock budget for a single run; zero disables it
	wallBudget time.Duration
	runStarted time.Time

	// tripped-line count from the previous snapshot, for trip metrics
	trippedLines int

	stopCh chan struct{}
	done   chan struct{}
}

// Info is a point-in-time public view of a simulation.
type Info struct {
	ID          uint64    `json:"id"`
	Status      Status    `json:"status"`
	TickNumber  uint64    `json:"tick_number"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Info snapshots the simulation's lifecycle state.
func (s *Simulation) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:          s.ID,
		Status:      s.status,
		TickNumber:  s.grid.TickNumber(),
		CreatedAt:   s.createdAt,
		StartedAt:   s.startedAt,
		CompletedAt: s.completedAt,
		Error:       s.errMsg,
	}
}

// nextEvent builds an event envelope with a fresh monotonic id.
func (s *Simulation) nextEvent(now time.Time) sim.Event {
	return sim.Event{
		ID:        s.eventSeq.Add(1),
		Timestamp: now,
	}
}

// tickLocked advances one tick. Caller holds mu.
func (s *Simulation) tickLocked() (model.Snapshot, error) {
	events := s.batch.Drain()
	snap, err := s.grid.Advance(events)
	if err != nil {
		s.status = StatusError
		s.errMsg = err.Error()
		return model.Snapshot{}, err
	}
	pushed := s.ring.Push(snap)
	unmet := false
	for _, a := range snap.Alerts {
		if a.Kind == model.AlertUnmetDemand {
			unmet = true
		}
	}
	tripped := 0
	for _, ref := range snap.ActiveFailureIDs {
		if ref.Class == model.ClassLine {
			tripped++
		}
	}
	s.metrics.ObserveTick(unmet, !pushed)
	s.metrics.ObserveLineTrips(tripped - s.trippedLines)
	s.trippedLines = tripped
	return snap, nil
}

// runLoop paces ticks at the configured rate until stopped, paused, errored
// or over budget. Cancellation is only observed at tick boundaries.
func (s *Simulation) runLoop(clock sim.Clock) {
	defer close(s.done)
	ticker := time.NewTicker(s.tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.status != StatusRunning {
			s.mu.Unlock()
			return
		}
		if s.wallBudget > 0 && clock.Now().Sub(s.runStarted) > s.wallBudget {
			s.status = StatusError
			s.errMsg = fmt.Sprintf("%v after %s", sim.ErrTimedOut, s.wallBudget)
			s.completedAt = clock.Now()
			s.mu.Unlock()
			return
		}
		_, err := s.tickLocked()
		s.mu.Unlock()
		if err != nil {
			return
		}
	}
}
