package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"voltedge/internal/config"
	"voltedge/internal/model"
	"voltedge/internal/sim"
	"voltedge/internal/telemetry"
)

// Options tunes the orchestrator.
type Options struct {
	MaxSimulations  int
	RetentionWindow time.Duration
	WallClockBudget time.Duration
	RingCapacity    int
	Logger          *slog.Logger
	Metrics         *telemetry.Metrics
	// Clock stamps lifecycle transitions and event envelopes. Defaults to
	// the wall clock; tests pin it.
	Clock sim.Clock
}

// FromEngineConfig maps the YAML engine section onto Options.
func FromEngineConfig(ec config.Engine, logger *slog.Logger, metrics *telemetry.Metrics) Options {
	return Options{
		MaxSimulations:  ec.MaxSimulations,
		RetentionWindow: time.Duration(ec.RetentionWindowS) * time.Second,
		WallClockBudget: time.Duration(ec.WallClockBudgetS) * time.Second,
		RingCapacity:    ec.RingCapacity,
		Logger:          logger,
		Metrics:         metrics,
	}
}

// Orchestrator owns all simulations. The map is read-mostly: reads take the
// RLock, create/delete take the write lock. Per-simulation state is guarded
// by each Simulation's own mutex, never by the map lock.
type Orchestrator struct {
	mu     sync.RWMutex
	sims   map[uint64]*Simulation
	nextID uint64

	opts    Options
	logger  *slog.Logger
	metrics *telemetry.Metrics
	clock   sim.Clock

	sweepStop chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

func New(opts Options) *Orchestrator {
	if opts.MaxSimulations <= 0 {
		opts.MaxSimulations = 16
	}
	if opts.RetentionWindow <= 0 {
		opts.RetentionWindow = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = sim.WallClock{}
	}
	o := &Orchestrator{
		sims:      make(map[uint64]*Simulation),
		opts:      opts,
		logger:    opts.Logger.With(slog.String("component", "orchestrator")),
		metrics:   opts.Metrics,
		clock:     opts.Clock,
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go o.sweepLoop()
	return o
}

// Close stops the sweep and every running worker.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.sweepStop)
		<-o.sweepDone
	})
	o.mu.Lock()
	sims := make([]*Simulation, 0, len(o.sims))
	for _, s := range o.sims {
		sims = append(sims, s)
	}
	o.mu.Unlock()
	for _, s := range sims {
		_ = o.stopSim(s, StatusCompleted)
	}
}

// Create validates the scenario, builds its grid and registers a new
// simulation in the created state.
func (o *Orchestrator) Create(scenario *config.Scenario) (uint64, error) {
	if err := scenario.Validate(); err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sims) >= o.opts.MaxSimulations {
		return 0, fmt.Errorf("%w: limit %d", sim.ErrMaxSimulations, o.opts.MaxSimulations)
	}
	o.nextID++
	id := o.nextID

	plants, err := scenario.Plants()
	if err != nil {
		return 0, err
	}
	lines, err := scenario.Lines()
	if err != nil {
		return 0, err
	}
	grid, err := sim.NewGrid(sim.GridConfig{
		SimulationID:          id,
		BaseFrequencyHz:       scenario.BaseFrequency,
		BaseVoltageKV:         scenario.BaseVoltage,
		TickRate:              scenario.TickRate(),
		SeedRoot:              scenario.SeedRoot,
		FailureRateMultiplier: scenario.FailMult(),
	}, plants, lines, scenario.LoadModel(), sim.NewDeterministicClock(time.Unix(0, 0).UTC()), o.opts.Logger)
	if err != nil {
		return 0, err
	}

	s := &Simulation{
		ID:         id,
		status:     StatusCreated,
		grid:       grid,
		ring:       sim.NewMetricsRing(o.opts.RingCapacity),
		batch:      sim.NewEventBatch(sim.DefaultBatchCapacity),
		metrics:    o.metrics,
		scenario:   scenario,
		tickRate:   scenario.TickRate(),
		createdAt:  o.clock.Now(),
		wallBudget: o.opts.WallClockBudget,
	}
	o.sims[id] = s

	o.metrics.ObserveCreated()
	o.metrics.SetActive(len(o.sims))
	o.logger.Info("simulation created", slog.Uint64("id", id), slog.Int("plants", len(plants)), slog.Int("lines", len(lines)))
	return id, nil
}

// Delete removes a simulation; a running one is stopped first.
func (o *Orchestrator) Delete(id uint64) error {
	s, err := o.get(id)
	if err != nil {
		return err
	}
	_ = o.stopSim(s, StatusCompleted)

	o.mu.Lock()
	delete(o.sims, id)
	n := len(o.sims)
	o.mu.Unlock()

	o.metrics.SetActive(n)
	o.logger.Info("simulation deleted", slog.Uint64("id", id))
	return nil
}

// Start launches the simulation worker. Resuming from paused is allowed.
func (o *Orchestrator) Start(id uint64) error {
	s, err := o.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case StatusRunning:
		return fmt.Errorf("%w: simulation %d", sim.ErrAlreadyRunning, id)
	case StatusCompleted, StatusError:
		return fmt.Errorf("%w: simulation %d is %s", sim.ErrNotRunning, id, s.status)
	}
	s.status = StatusRunning
	now := o.clock.Now()
	if s.startedAt.IsZero() {
		s.startedAt = now
	}
	s.runStarted = now
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.runLoop(o.clock)
	o.logger.Info("simulation started", slog.Uint64("id", id))
	return nil
}

// Pause suspends the worker at the next tick boundary.
func (o *Orchestrator) Pause(id uint64) error {
	s, err := o.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return fmt.Errorf("%w: simulation %d is %s", sim.ErrNotRunning, id, s.status)
	}
	s.status = StatusPaused
	stop, done := s.stopCh, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	o.logger.Info("simulation paused", slog.Uint64("id", id))
	return nil
}

// Stop terminates the run; in-flight ticks complete first.
func (o *Orchestrator) Stop(id uint64) error {
	s, err := o.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.status != StatusRunning && s.status != StatusPaused {
		s.mu.Unlock()
		return fmt.Errorf("%w: simulation %d is %s", sim.ErrNotRunning, id, s.status)
	}
	s.mu.Unlock()
	if err := o.stopSim(s, StatusCompleted); err != nil {
		return err
	}
	o.logger.Info("simulation stopped", slog.Uint64("id", id))
	return nil
}

func (o *Orchestrator) stopSim(s *Simulation, terminal Status) error {
	s.mu.Lock()
	wasRunning := s.status == StatusRunning
	if !s.status.terminal() {
		s.status = terminal
		s.completedAt = o.clock.Now()
	}
	stop, done := s.stopCh, s.done
	s.mu.Unlock()

	if wasRunning && stop != nil {
		close(stop)
		<-done
	}
	return nil
}

// InjectFault validates the target synchronously and enqueues the fault for
// the next tick's drain.
func (o *Orchestrator) InjectFault(id uint64, targetID int64, kind model.FaultKind) error {
	s, err := o.get(id)
	if err != nil {
		return err
	}
	if err := s.grid.Injector().Validate(targetID, kind); err != nil {
		return err
	}
	ev := s.nextEvent(o.clock.Now())
	ev.Kind = sim.EventInjectFault
	ev.TargetID = targetID
	ev.Fault = kind
	if err := s.batch.Append(ev); err != nil {
		return err
	}
	o.metrics.ObserveFault(string(kind))
	return nil
}

// SetPlantOutput enqueues a setpoint change for the next tick.
func (o *Orchestrator) SetPlantOutput(id uint64, plantID int64, mw float64) error {
	s, err := o.get(id)
	if err != nil {
		return err
	}
	if _, ok := s.grid.Plant(plantID); !ok {
		return fmt.Errorf("%w: plant %d", sim.ErrUnknownComponent, plantID)
	}
	ev := s.nextEvent(o.clock.Now())
	ev.Kind = sim.EventSetOutput
	ev.TargetID = plantID
	ev.Value = mw
	return s.batch.Append(ev)
}

// RepairComponent enqueues a repair for the next tick.
func (o *Orchestrator) RepairComponent(id uint64, componentID int64) error {
	s, err := o.get(id)
	if err != nil {
		return err
	}
	if !s.grid.HasComponent(componentID) {
		return fmt.Errorf("%w: component %d", sim.ErrUnknownComponent, componentID)
	}
	ev := s.nextEvent(o.clock.Now())
	ev.Kind = sim.EventRepair
	ev.TargetID = componentID
	return s.batch.Append(ev)
}

// ScheduleLoadSpike enqueues a demand multiplier for a bounded number of
// ticks (disturbance tooling; also exercised by cascade scenarios).
func (o *Orchestrator) ScheduleLoadSpike(id uint64, factor float64, ticks int) error {
	s, err := o.get(id)
	if err != nil {
		return err
	}
	ev := s.nextEvent(o.clock.Now())
	ev.Kind = sim.EventLoadSpike
	ev.Value = factor
	ev.SpikeTicks = ticks
	return s.batch.Append(ev)
}

// Tick advances the named simulation by exactly one tick and returns the
// snapshot. Step mode only: a running simulation is rejected.
func (o *Orchestrator) Tick(id uint64) (model.Snapshot, error) {
	s, err := o.get(id)
	if err != nil {
		return model.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case StatusRunning:
		return model.Snapshot{}, fmt.Errorf("%w: simulation %d", sim.ErrAlreadyRunning, id)
	case StatusCompleted, StatusError:
		return model.Snapshot{}, fmt.Errorf("%w: simulation %d is %s", sim.ErrNotRunning, id, s.status)
	}
	return s.tickLocked()
}

// RunUntil advances ticks in step mode until endTick, a terminal state, or
// ctx cancellation.
func (o *Orchestrator) RunUntil(ctx context.Context, id uint64, endTick uint64) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s, err := o.get(id)
		if err != nil {
			return err
		}
		s.mu.Lock()
		cur := s.grid.TickNumber()
		s.mu.Unlock()
		if cur >= endTick {
			return nil
		}
		if _, err := o.Tick(id); err != nil {
			return err
		}
	}
}

// Snapshot returns the most recent snapshot without consuming ring entries.
func (o *Orchestrator) Snapshot(id uint64) (model.Snapshot, error) {
	s, err := o.get(id)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap, ok := s.ring.Latest()
	if !ok {
		return model.Snapshot{}, fmt.Errorf("%w: simulation %d has not ticked", sim.ErrNotRunning, id)
	}
	return snap, nil
}

// Subscribe returns the ring consumer handle for streaming snapshots.
func (o *Orchestrator) Subscribe(id uint64) (*sim.Reader, error) {
	s, err := o.get(id)
	if err != nil {
		return nil, err
	}
	return s.ring.NewReader(), nil
}

// GetInfo returns lifecycle info for one simulation.
func (o *Orchestrator) GetInfo(id uint64) (Info, error) {
	s, err := o.get(id)
	if err != nil {
		return Info{}, err
	}
	return s.Info(), nil
}

// List returns lifecycle info for all simulations in ascending id order.
func (o *Orchestrator) List() []Info {
	o.mu.RLock()
	sims := make([]*Simulation, 0, len(o.sims))
	for _, s := range o.sims {
		sims = append(sims, s)
	}
	o.mu.RUnlock()

	sort.Slice(sims, func(i, j int) bool { return sims[i].ID < sims[j].ID })
	out := make([]Info, 0, len(sims))
	for _, s := range sims {
		out = append(out, s.Info())
	}
	return out
}

func (o *Orchestrator) get(id uint64) (*Simulation, error) {
	o.mu.RLock()
	s, ok := o.sims[id]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: simulation %d", sim.ErrNotFound, id)
	}
	return s, nil
}

// sweepLoop periodically removes terminal simulations older than the
// retention window, emitting a lifecycle record before each removal.
func (o *Orchestrator) sweepLoop() {
	defer close(o.sweepDone)
	interval := o.opts.RetentionWindow / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-o.sweepStop:
			return
		case <-ticker.C:
			o.sweepOnce()
		}
	}
}

func (o *Orchestrator) sweepOnce() {
	cutoff := o.clock.Now().Add(-o.opts.RetentionWindow)

	o.mu.Lock()
	var swept []uint64
	for id, s := range o.sims {
		info := s.Info()
		if info.Status.terminal() && !info.CompletedAt.IsZero() && info.CompletedAt.Before(cutoff) {
			delete(o.sims, id)
			swept = append(swept, id)
		}
	}
	n := len(o.sims)
	o.mu.Unlock()

	for _, id := range swept {
		o.logger.Info("simulation swept", slog.Uint64("id", id), slog.Duration("retention", o.opts.RetentionWindow))
		o.metrics.ObserveSwept()
	}
	if len(swept) > 0 {
		o.metrics.SetActive(n)
	}
}
