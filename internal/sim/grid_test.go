package sim

import (
	"testing"
	"time"

	"voltedge/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func steadyGrid(t *testing.T) *Grid {
	t.Helper()
	coal, err := model.NewPlant(model.PlantParams{ID: 1, Kind: model.KindCoal, MaxCapacityMW: 500, Efficiency: 0.38, RampRateMWPerMin: 25}, true, 300)
	require.NoError(t, err)
	g, err := NewGrid(GridConfig{SimulationID: 7, TickRate: 100 * time.Millisecond},
		[]*model.Plant{coal}, nil, model.Load{BaseLoadMW: 300}, nil, nil)
	require.NoError(t, err)
	return g
}

func hasAlert(snap model.Snapshot, kind model.AlertKind) bool {
	for _, a := range snap.Alerts {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

func hasFailure(snap model.Snapshot, class model.ComponentClass, id int64) bool {
	for _, ref := range snap.ActiveFailureIDs {
		if ref.Class == class && ref.ID == id {
			return true
		}
	}
	return false
}

// Steady state: one coal plant matching a constant load holds generation,
// consumption and frequency at nominal.
func TestGridSteadyStateBalance(t *testing.T) {
	g := steadyGrid(t)

	var snap model.Snapshot
	var err error
	for i := 0; i < 10; i++ {
		snap, err = g.Advance(nil)
		require.NoError(t, err)
	}

	assert.Equal(t, uint64(10), snap.TickNumber)
	assert.InDelta(t, 300.0, snap.TotalGenerationMW, 1e-9)
	assert.InDelta(t, 300.0, snap.TotalConsumptionMW, 1e-9)
	assert.InDelta(t, 50.0, snap.GridFrequencyHz, 0.01)
	assert.Zero(t, snap.FaultCount)
	assert.Empty(t, snap.ActiveFailureIDs)
	assert.InDelta(t, 100.0, snap.EfficiencyPercentage, 1e-9)
}

// Shortfall: demand with no generation raises an unmet-demand alert and
// drives frequency to the lower clamp.
func TestGridShortfall(t *testing.T) {
	g, err := NewGrid(GridConfig{SimulationID: 7, TickRate: 100 * time.Millisecond},
		nil, nil, model.Load{BaseLoadMW: 300}, nil, nil)
	require.NoError(t, err)

	snap, err := g.Advance(nil)
	require.NoError(t, err)

	assert.Zero(t, snap.FaultCount)
	assert.Zero(t, snap.TotalGenerationMW)
	require.True(t, hasAlert(snap, model.AlertUnmetDemand))
	for _, a := range snap.Alerts {
		if a.Kind == model.AlertUnmetDemand {
			assert.InDelta(t, 300, a.ShortfallMW, 1e-6)
		}
	}
	assert.Equal(t, 45.0, snap.GridFrequencyHz)
}

// Fault injection mid-run: the plant drops out on the next tick and stays
// out, surfacing in the failure list with a shortfall alert.
func TestGridFaultInjectionAtTickFive(t *testing.T) {
	g := steadyGrid(t)

	for i := 0; i < 5; i++ {
		_, err := g.Advance(nil)
		require.NoError(t, err)
	}

	outage := Event{ID: 1, Timestamp: time.Unix(1, 0), Kind: EventInjectFault, TargetID: 1, Fault: model.FaultPlantOutage}
	snap, err := g.Advance([]Event{outage})
	require.NoError(t, err)

	p, _ := g.Plant(1)
	assert.Equal(t, model.StateFault, p.State.Operating)
	assert.Zero(t, p.State.CurrentOutputMW)
	assert.True(t, hasFailure(snap, model.ClassPlant, 1))
	assert.True(t, hasAlert(snap, model.AlertUnmetDemand))
	assert.Equal(t, 1, snap.FaultCount)

	for i := 0; i < 4; i++ {
		snap, err = g.Advance(nil)
		require.NoError(t, err)
		assert.True(t, hasFailure(snap, model.ClassPlant, 1))
		assert.Zero(t, snap.TotalGenerationMW)
	}
}

// Cascade: a consumption spike drives frequency past the protective band;
// renewables are curtailed to zero while thermal plants ride through.
func TestGridCascadeCurtailsRenewables(t *testing.T) {
	coal, err := model.NewPlant(model.PlantParams{ID: 1, Kind: model.KindCoal, MaxCapacityMW: 250, Efficiency: 0.38, RampRateMWPerMin: 100}, true, 250)
	require.NoError(t, err)
	wind, err := model.NewPlant(model.PlantParams{ID: 2, Kind: model.KindWind, MaxCapacityMW: 100, Efficiency: 1}, true, 0)
	require.NoError(t, err)
	g, err := NewGrid(GridConfig{SimulationID: 4, TickRate: 100 * time.Millisecond},
		[]*model.Plant{coal, wind}, nil, model.Load{BaseLoadMW: 400}, nil, nil)
	require.NoError(t, err)

	for i := 0; i < 9; i++ {
		snap, err := g.Advance(nil)
		require.NoError(t, err)
		assert.False(t, hasAlert(snap, model.AlertCascadeShutdown))
	}

	// Wind has ramped toward its weather availability by now.
	assert.Greater(t, wind.State.CurrentOutputMW, 0.0)

	spike := Event{ID: 1, Timestamp: time.Unix(1, 0), Kind: EventLoadSpike, Value: 40, SpikeTicks: 1}
	snap, err := g.Advance([]Event{spike})
	require.NoError(t, err)

	assert.Equal(t, uint64(10), snap.TickNumber)
	assert.True(t, hasAlert(snap, model.AlertCascadeShutdown))
	assert.Zero(t, wind.State.CurrentOutputMW)
	assert.Equal(t, model.StateOnline, wind.State.Operating)
	assert.Greater(t, coal.State.CurrentOutputMW, 0.0)
	assert.LessOrEqual(t, coal.State.CurrentOutputMW, coal.Params.MaxCapacityMW)

	// The spike was bounded to one tick; dispatch recovers afterwards.
	snap, err = g.Advance(nil)
	require.NoError(t, err)
	assert.InDelta(t, 400, snap.TotalConsumptionMW, 1e-9)
}

// Determinism: identical configuration and event scripts produce identical
// snapshot sequences, including timestamps.
func TestGridDeterminism(t *testing.T) {
	build := func() *Grid {
		coal, err := model.NewPlant(model.PlantParams{ID: 1, Kind: model.KindCoal, MaxCapacityMW: 500, Efficiency: 0.38, RampRateMWPerMin: 25}, true, 300)
		require.NoError(t, err)
		solar, err := model.NewPlant(model.PlantParams{ID: 2, Kind: model.KindSolar, MaxCapacityMW: 80, Efficiency: 1}, true, 0)
		require.NoError(t, err)
		line, err := model.NewLine(model.LineParams{ID: 10, FromNode: 0, ToNode: 1, CapacityMW: 200, LengthKM: 50, ResistancePerKM: 0.05, ReactancePerKM: 0.2}, true)
		require.NoError(t, err)
		g, err := NewGrid(GridConfig{SimulationID: 11, SeedRoot: 99, TickRate: 100 * time.Millisecond, FailureRateMultiplier: 1},
			[]*model.Plant{coal, solar}, []*model.Line{line},
			model.Load{BaseLoadMW: 350, DailyVariation: 0.1, RandomVariation: 0.05}, nil, nil)
		require.NoError(t, err)
		return g
	}

	script := func(tick int) []Event {
		switch tick {
		case 3:
			return []Event{{ID: 1, Timestamp: time.Unix(1, 0), Kind: EventSetOutput, TargetID: 1, Value: 400}}
		case 7:
			return []Event{{ID: 2, Timestamp: time.Unix(2, 0), Kind: EventInjectFault, TargetID: 10, Fault: model.FaultLineTrip}}
		}
		return nil
	}

	run := func() []model.Snapshot {
		g := build()
		out := make([]model.Snapshot, 0, 50)
		for i := 1; i <= 50; i++ {
			snap, err := g.Advance(script(i))
			require.NoError(t, err)
			out = append(out, snap)
		}
		return out
	}

	assert.Equal(t, run(), run())
}

// Dispatch fills plants greedily in ascending id order up to demand.
func TestGridDispatchMinimality(t *testing.T) {
	mk := func(id int64) *model.Plant {
		p, err := model.NewPlant(model.PlantParams{ID: id, Kind: model.KindGas, MaxCapacityMW: 100, Efficiency: 0.5, RampRateMWPerMin: 60000}, true, 0)
		require.NoError(t, err)
		return p
	}
	g, err := NewGrid(GridConfig{SimulationID: 3, TickRate: 100 * time.Millisecond},
		[]*model.Plant{mk(1), mk(2), mk(3)}, nil, model.Load{BaseLoadMW: 250}, nil, nil)
	require.NoError(t, err)

	snap, err := g.Advance(nil)
	require.NoError(t, err)

	p1, _ := g.Plant(1)
	p2, _ := g.Plant(2)
	p3, _ := g.Plant(3)
	assert.InDelta(t, 100, p1.State.CurrentOutputMW, 1e-9)
	assert.InDelta(t, 100, p2.State.CurrentOutputMW, 1e-9)
	assert.InDelta(t, 50, p3.State.CurrentOutputMW, 1e-9)
	assert.InDelta(t, 250, snap.TotalGenerationMW, 1e-9)
	assert.False(t, hasAlert(snap, model.AlertUnmetDemand))
}

// Universal invariants over a busy scenario: monotonic ticks, bounded
// frequency, non-negative totals, plant and line bounds.
func TestGridInvariantsUnderChurn(t *testing.T) {
	coal, err := model.NewPlant(model.PlantParams{ID: 1, Kind: model.KindCoal, MaxCapacityMW: 400, Efficiency: 0.38}, true, 200)
	require.NoError(t, err)
	wind, err := model.NewPlant(model.PlantParams{ID: 2, Kind: model.KindWind, MaxCapacityMW: 150, Efficiency: 1}, true, 0)
	require.NoError(t, err)
	line, err := model.NewLine(model.LineParams{ID: 10, FromNode: 0, ToNode: 1, CapacityMW: 300, LengthKM: 120, ResistancePerKM: 0.05, ReactancePerKM: 0.2}, true)
	require.NoError(t, err)
	g, err := NewGrid(GridConfig{SimulationID: 5, SeedRoot: 17, TickRate: time.Second, FailureRateMultiplier: 1},
		[]*model.Plant{coal, wind}, []*model.Line{line},
		model.Load{BaseLoadMW: 380, DailyVariation: 0.3, RandomVariation: 0.1}, nil, nil)
	require.NoError(t, err)

	var prevTick uint64
	var prevTime time.Time
	for i := 0; i < 500; i++ {
		snap, err := g.Advance(nil)
		require.NoError(t, err)

		assert.Equal(t, prevTick+1, snap.TickNumber)
		assert.False(t, snap.Timestamp.Before(prevTime))
		prevTick = snap.TickNumber
		prevTime = snap.Timestamp

		assert.GreaterOrEqual(t, snap.TotalGenerationMW, 0.0)
		assert.GreaterOrEqual(t, snap.TotalConsumptionMW, 0.0)
		assert.GreaterOrEqual(t, snap.GridFrequencyHz, 45.0)
		assert.LessOrEqual(t, snap.GridFrequencyHz, 55.0)
		assert.GreaterOrEqual(t, snap.EfficiencyPercentage, 0.0)
		assert.LessOrEqual(t, snap.EfficiencyPercentage, 100.0)

		for _, p := range []*model.Plant{coal, wind} {
			if p.State.Operating == model.StateOnline {
				assert.GreaterOrEqual(t, p.State.CurrentOutputMW, p.MinOutputMW()-1e-9)
				assert.LessOrEqual(t, p.State.CurrentOutputMW, p.Params.MaxCapacityMW+1e-9)
			} else {
				assert.Zero(t, p.State.CurrentOutputMW)
			}
		}
		if line.State.Operating == model.LineOperational {
			assert.LessOrEqual(t, absf(line.State.FlowMW), line.State.ThermalRatingMW+1e-9)
		} else {
			assert.Zero(t, line.State.FlowMW)
		}
	}
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Event ordering: producer order does not matter, only (timestamp, id).
func TestGridEventOrderIndependence(t *testing.T) {
	run := func(events []Event) model.Snapshot {
		g := steadyGrid(t)
		b := NewEventBatch(16)
		for _, ev := range events {
			require.NoError(t, b.Append(ev))
		}
		snap, err := g.Advance(b.Drain())
		require.NoError(t, err)
		return snap
	}

	e1 := Event{ID: 1, Timestamp: time.Unix(1, 0), Kind: EventSetOutput, TargetID: 1, Value: 450}
	e2 := Event{ID: 2, Timestamp: time.Unix(2, 0), Kind: EventInjectFault, TargetID: 1, Fault: model.FaultPlantOutage}

	natural := run([]Event{e1, e2})
	reversed := run([]Event{e2, e1})
	assert.Equal(t, natural, reversed)
}

// A tripped line stays dark until repaired, then carries flow again.
func TestGridLineRepairRestoresFlow(t *testing.T) {
	line, err := model.NewLine(model.LineParams{ID: 10, FromNode: 0, ToNode: 1, CapacityMW: 200, LengthKM: 50, ResistancePerKM: 0.05, ReactancePerKM: 0.2}, true)
	require.NoError(t, err)
	g, err := NewGrid(GridConfig{SimulationID: 6, TickRate: 100 * time.Millisecond},
		nil, []*model.Line{line}, model.Load{}, nil, nil)
	require.NoError(t, err)

	_, err = g.Advance(nil)
	require.NoError(t, err)
	flowing := line.State.FlowMW

	trip := Event{ID: 1, Timestamp: time.Unix(1, 0), Kind: EventInjectFault, TargetID: 10, Fault: model.FaultLineTrip}
	snap, err := g.Advance([]Event{trip})
	require.NoError(t, err)
	assert.Zero(t, line.State.FlowMW)
	assert.True(t, hasFailure(snap, model.ClassLine, 10))

	repair := Event{ID: 2, Timestamp: time.Unix(2, 0), Kind: EventRepair, TargetID: 10}
	_, err = g.Advance([]Event{repair})
	require.NoError(t, err)
	assert.Equal(t, model.LineOperational, line.State.Operating)
	assert.InDelta(t, flowing, line.State.FlowMW, 1e-9)
}
