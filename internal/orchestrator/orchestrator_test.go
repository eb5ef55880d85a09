package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"voltedge/internal/config"
	"voltedge/internal/model"
	"voltedge/internal/sim"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func steadyScenario() *config.Scenario {
	zero := 0.0
	return &config.Scenario{
		TickRateMS:            100,
		BaseFrequency:         50,
		BaseVoltage:           230,
		FailureRateMultiplier: &zero,
		PowerPlants: []config.PlantConfig{
			{ID: 1, Kind: "coal", MaxCapacityMW: 500, Efficiency: 0.38, RampRateMWPerMin: 25, InitialOutputMW: 300},
		},
		LoadProfile: config.LoadConfig{BaseLoadMW: 300},
	}
}

func newTestOrchestrator(t *testing.T, maxSims int) *Orchestrator {
	t.Helper()
	o := New(Options{
		MaxSimulations: maxSims,
		Logger:         slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError})),
	})
	t.Cleanup(o.Close)
	return o
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	id1, err := o.Create(steadyScenario())
	require.NoError(t, err)
	id2, err := o.Create(steadyScenario())
	require.NoError(t, err)
	assert.Equal(t, id1+1, id2)

	info, err := o.GetInfo(id1)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, info.Status)
}

func TestCreateRejectsInvalidScenario(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	bad := steadyScenario()
	bad.PowerPlants[0].MaxCapacityMW = -5
	_, err := o.Create(bad)
	assert.True(t, errors.Is(err, sim.ErrConfigurationInvalid))
	assert.Empty(t, o.List())
}

func TestCreateEnforcesMaxSimulations(t *testing.T) {
	o := newTestOrchestrator(t, 2)
	_, err := o.Create(steadyScenario())
	require.NoError(t, err)
	_, err = o.Create(steadyScenario())
	require.NoError(t, err)
	_, err = o.Create(steadyScenario())
	assert.True(t, errors.Is(err, sim.ErrMaxSimulations))
}

func TestTickStepMode(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	id, err := o.Create(steadyScenario())
	require.NoError(t, err)

	for i := uint64(1); i <= 5; i++ {
		snap, err := o.Tick(id)
		require.NoError(t, err)
		assert.Equal(t, i, snap.TickNumber)
	}

	latest, err := o.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), latest.TickNumber)
}

func TestSnapshotBeforeFirstTick(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	id, err := o.Create(steadyScenario())
	require.NoError(t, err)
	_, err = o.Snapshot(id)
	assert.Error(t, err)
}

func TestLifecycleTransitions(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	id, err := o.Create(steadyScenario())
	require.NoError(t, err)

	require.NoError(t, o.Start(id))
	assert.True(t, errors.Is(o.Start(id), sim.ErrAlreadyRunning))

	_, err = o.Tick(id)
	assert.True(t, errors.Is(err, sim.ErrAlreadyRunning))

	require.NoError(t, o.Pause(id))
	info, _ := o.GetInfo(id)
	assert.Equal(t, StatusPaused, info.Status)
	assert.True(t, errors.Is(o.Pause(id), sim.ErrNotRunning))

	// Paused simulations can step and resume.
	_, err = o.Tick(id)
	require.NoError(t, err)
	require.NoError(t, o.Start(id))

	require.NoError(t, o.Stop(id))
	info, _ = o.GetInfo(id)
	assert.Equal(t, StatusCompleted, info.Status)
	assert.True(t, errors.Is(o.Stop(id), sim.ErrNotRunning))
	assert.True(t, errors.Is(o.Start(id), sim.ErrNotRunning))
	_, err = o.Tick(id)
	assert.True(t, errors.Is(err, sim.ErrNotRunning))
}

func TestNotFound(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	assert.True(t, errors.Is(o.Start(99), sim.ErrNotFound))
	assert.True(t, errors.Is(o.Delete(99), sim.ErrNotFound))
	_, err := o.Tick(99)
	assert.True(t, errors.Is(err, sim.ErrNotFound))
}

func TestRunningWorkerAdvancesTicks(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	scenario := steadyScenario()
	scenario.TickRateMS = 1
	id, err := o.Create(scenario)
	require.NoError(t, err)

	require.NoError(t, o.Start(id))
	require.Eventually(t, func() bool {
		info, err := o.GetInfo(id)
		return err == nil && info.TickNumber > 3
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, o.Stop(id))
	info, _ := o.GetInfo(id)
	after := info.TickNumber

	// No ticks after stop.
	time.Sleep(20 * time.Millisecond)
	info, _ = o.GetInfo(id)
	assert.Equal(t, after, info.TickNumber)
}

func TestDeleteStopsRunningSimulation(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	scenario := steadyScenario()
	scenario.TickRateMS = 1
	id, err := o.Create(scenario)
	require.NoError(t, err)
	require.NoError(t, o.Start(id))

	require.NoError(t, o.Delete(id))
	_, err = o.GetInfo(id)
	assert.True(t, errors.Is(err, sim.ErrNotFound))
}

func TestInjectFaultValidatesSynchronously(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	id, err := o.Create(steadyScenario())
	require.NoError(t, err)

	err = o.InjectFault(id, 999, model.FaultPlantOutage)
	assert.True(t, errors.Is(err, sim.ErrUnknownComponent))

	err = o.InjectFault(id, 1, model.FaultLineTrip)
	assert.True(t, errors.Is(err, sim.ErrUnsupportedFault))

	// A valid fault lands on the next tick.
	require.NoError(t, o.InjectFault(id, 1, model.FaultPlantOutage))
	snap, err := o.Tick(id)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.FaultCount)
}

func TestSetPlantOutputAndRepair(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	id, err := o.Create(steadyScenario())
	require.NoError(t, err)

	require.NoError(t, o.InjectFault(id, 1, model.FaultPlantOutage))
	snap, err := o.Tick(id)
	require.NoError(t, err)
	require.Equal(t, 1, snap.FaultCount)

	require.NoError(t, o.RepairComponent(id, 1))
	require.NoError(t, o.SetPlantOutput(id, 1, 300))
	snap, err = o.Tick(id)
	require.NoError(t, err)
	assert.Zero(t, snap.FaultCount)

	assert.True(t, errors.Is(o.SetPlantOutput(id, 42, 10), sim.ErrUnknownComponent))
	assert.True(t, errors.Is(o.RepairComponent(id, 42), sim.ErrUnknownComponent))
}

func TestRunUntil(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	id, err := o.Create(steadyScenario())
	require.NoError(t, err)

	require.NoError(t, o.RunUntil(context.Background(), id, 20))
	info, _ := o.GetInfo(id)
	assert.Equal(t, uint64(20), info.TickNumber)

	// Already past the target: no-op.
	require.NoError(t, o.RunUntil(context.Background(), id, 10))
	info, _ = o.GetInfo(id)
	assert.Equal(t, uint64(20), info.TickNumber)
}

func TestRunUntilCancellable(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	id, err := o.Create(steadyScenario())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = o.RunUntil(ctx, id, 1_000_000)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSubscribeObservesSnapshotsInOrder(t *testing.T) {
	o := newTestOrchestrator(t, 4)
	id, err := o.Create(steadyScenario())
	require.NoError(t, err)

	reader, err := o.Subscribe(id)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := o.Tick(id)
		require.NoError(t, err)
	}
	for i := uint64(1); i <= 5; i++ {
		snap, ok := reader.Next()
		require.True(t, ok)
		assert.Equal(t, i, snap.TickNumber)
	}
	_, ok := reader.Next()
	assert.False(t, ok)
}

func TestDeterministicRunsProduceIdenticalStreams(t *testing.T) {
	run := func() []model.Snapshot {
		o := newTestOrchestrator(t, 1)
		id, err := o.Create(steadyScenario())
		require.NoError(t, err)
		require.NoError(t, o.InjectFault(id, 1, model.FaultPlantOutage))
		out := make([]model.Snapshot, 0, 10)
		for i := 0; i < 10; i++ {
			snap, err := o.Tick(id)
			require.NoError(t, err)
			out = append(out, snap)
		}
		return out
	}
	a := run()
	b := run()
	// Simulation ids match because each orchestrator assigns from 1.
	assert.Equal(t, a, b)
}

func TestRetentionSweepRemovesTerminalSimulations(t *testing.T) {
	o := New(Options{
		MaxSimulations:  4,
		RetentionWindow: 1500 * time.Millisecond,
		Logger:          slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError})),
	})
	t.Cleanup(o.Close)

	id, err := o.Create(steadyScenario())
	require.NoError(t, err)
	require.NoError(t, o.Start(id))
	require.NoError(t, o.Stop(id))

	require.Eventually(t, func() bool {
		_, err := o.GetInfo(id)
		return errors.Is(err, sim.ErrNotFound)
	}, 10*time.Second, 100*time.Millisecond)
}

func TestWallClockBudgetTimesOut(t *testing.T) {
	o := New(Options{
		MaxSimulations:  4,
		WallClockBudget: 30 * time.Millisecond,
		Logger:          slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError})),
	})
	t.Cleanup(o.Close)

	scenario := steadyScenario()
	scenario.TickRateMS = 1
	id, err := o.Create(scenario)
	require.NoError(t, err)
	require.NoError(t, o.Start(id))

	require.Eventually(t, func() bool {
		info, err := o.GetInfo(id)
		return err == nil && info.Status == StatusError
	}, 5*time.Second, 5*time.Millisecond)

	info, _ := o.GetInfo(id)
	assert.Contains(t, info.Error, "wall-clock")
}
