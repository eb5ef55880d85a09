package sim

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"voltedge/internal/model"
)

const (
	frequencyFloorHz    = 45
	frequencyCeilHz     = 55
	frequencyDamping    = 0.1
	cascadeWarnBandHz   = 2
	cascadeShedBandHz   = 3
	dispatchToleranceMW = 1e-9
)

// GridConfig fixes the per-simulation engine parameters.
type GridConfig struct {
	SimulationID          uint64
	BaseFrequencyHz       float64
	BaseVoltageKV         float64
	TickRate              time.Duration
	SeedRoot              uint64
	FailureRateMultiplier float64
}

func (c *GridConfig) applyDefaults() {
	if c.BaseFrequencyHz <= 0 {
		c.BaseFrequencyHz = 50
	}
	if c.BaseVoltageKV <= 0 {
		c.BaseVoltageKV = 230
	}
	if c.TickRate <= 0 {
		c.TickRate = 100 * time.Millisecond
	}
}

// Grid owns one simulation's plants, lines and load, and advances them
// through the fixed tick pipeline. A Grid is never shared across goroutines;
// the owning simulation serializes all access.
type Grid struct {
	cfg GridConfig

	plants   map[int64]*model.Plant
	plantIDs []int64
	lines    map[int64]*model.Line
	lineIDs  []int64
	load     model.Load

	clock  Clock
	logger *slog.Logger

	tick       uint64
	simSeconds float64

	frequencyHz float64
	voltages    []float64
	nodeCount   int

	spikeFactor    float64
	spikeTicksLeft int

	injector *FaultInjector
}

// NewGrid assembles a grid from validated components. Duplicate ids are
// ConfigurationInvalid. Nodes are implicit: the node count is one more than
// the highest line endpoint (at least one), so every endpoint names a node.
func NewGrid(cfg GridConfig, plants []*model.Plant, lines []*model.Line, load model.Load, clock Clock, logger *slog.Logger) (*Grid, error) {
	cfg.applyDefaults()
	if clock == nil {
		clock = NewDeterministicClock(time.Unix(0, 0).UTC())
	}
	if logger == nil {
		logger = slog.Default()
	}

	g := &Grid{
		cfg:         cfg,
		plants:      make(map[int64]*model.Plant, len(plants)),
		lines:       make(map[int64]*model.Line, len(lines)),
		load:        load,
		clock:       clock,
		logger:      logger.With(slog.Uint64("simulation_id", cfg.SimulationID)),
		frequencyHz: cfg.BaseFrequencyHz,
		spikeFactor: 1,
	}

	for _, p := range plants {
		if _, dup := g.plants[p.Params.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate plant id %d", ErrConfigurationInvalid, p.Params.ID)
		}
		g.plants[p.Params.ID] = p
		g.plantIDs = append(g.plantIDs, p.Params.ID)
	}
	sort.Slice(g.plantIDs, func(i, j int) bool { return g.plantIDs[i] < g.plantIDs[j] })

	nodes := 1
	for _, l := range lines {
		if _, dup := g.lines[l.Params.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate line id %d", ErrConfigurationInvalid, l.Params.ID)
		}
		g.lines[l.Params.ID] = l
		g.lineIDs = append(g.lineIDs, l.Params.ID)
		if l.Params.FromNode+1 > nodes {
			nodes = l.Params.FromNode + 1
		}
		if l.Params.ToNode+1 > nodes {
			nodes = l.Params.ToNode + 1
		}
	}
	sort.Slice(g.lineIDs, func(i, j int) bool { return g.lineIDs[i] < g.lineIDs[j] })

	g.nodeCount = nodes
	g.refreshVoltageField()
	g.injector = &FaultInjector{grid: g}
	return g, nil
}

// Injector exposes the grid's fault injector.
func (g *Grid) Injector() *FaultInjector { return g.injector }

// TickNumber returns the last completed tick.
func (g *Grid) TickNumber() uint64 { return g.tick }

// FrequencyHz returns the last computed grid frequency.
func (g *Grid) FrequencyHz() float64 { return g.frequencyHz }

// NodeCount returns the number of electrical nodes.
func (g *Grid) NodeCount() int { return g.nodeCount }

// Plant returns the plant with the given id.
func (g *Grid) Plant(id int64) (*model.Plant, bool) {
	p, ok := g.plants[id]
	return p, ok
}

// Line returns the line with the given id.
func (g *Grid) Line(id int64) (*model.Line, bool) {
	l, ok := g.lines[id]
	return l, ok
}

// HasComponent reports whether any component carries the id.
func (g *Grid) HasComponent(id int64) bool {
	_, p := g.plants[id]
	_, l := g.lines[id]
	return p || l
}

// Advance runs one tick: drain-applied events first, then the fixed pipeline,
// producing the end-of-tick snapshot.
func (g *Grid) Advance(events []Event) (model.Snapshot, error) {
	g.tick++
	dt := g.cfg.TickRate.Seconds()
	g.simSeconds += dt
	g.clock.Advance(g.cfg.TickRate)

	var alerts []model.Alert

	// 1. Apply drained events in causal order.
	for _, ev := range events {
		if err := g.applyEvent(ev); err != nil {
			g.logger.Warn("event rejected", slog.Int64("event_id", ev.ID), slog.String("kind", string(ev.Kind)), slog.String("error", err.Error()))
		}
	}

	// 2. Weather-dependent availability for the current simulation time.
	weatherAvail := make(map[int64]float64)
	for _, id := range g.plantIDs {
		p := g.plants[id]
		if p.Consts.WeatherDependent {
			weatherAvail[id] = p.WeatherAvailabilityMW(g.simSeconds)
		}
	}

	// 3. Demand.
	loadDraw := componentDraw(g.cfg.SeedRoot, g.cfg.SimulationID, -1, g.tick, saltLoad)
	demand := g.load.DemandMW(g.simSeconds, loadDraw)
	if g.spikeTicksLeft > 0 {
		demand *= g.spikeFactor
		g.spikeTicksLeft--
		if g.spikeTicksLeft == 0 {
			g.spikeFactor = 1
		}
	}

	// 4. Greedy merit-order dispatch in ascending plant id.
	remaining := demand
	for _, id := range g.plantIDs {
		p := g.plants[id]
		if p.State.Operating != model.StateOnline {
			continue
		}
		avail := p.Params.MaxCapacityMW
		if p.Consts.WeatherDependent {
			avail = weatherAvail[id]
		}
		desired := math.Min(remaining, avail)
		if desired < 0 {
			desired = 0
		}
		if p.Consts.WeatherDependent {
			// Weather kinds produce what the weather allows; operator
			// setpoints only cap them, they never dispatch upward.
			p.State.TargetOutputMW = desired
		} else {
			p.SetTarget(desired)
		}
		remaining -= p.State.TargetOutputMW
		if remaining < 0 {
			remaining = 0
		}
	}
	if remaining > dispatchToleranceMW {
		alerts = append(alerts, model.Alert{
			Kind:        model.AlertUnmetDemand,
			Message:     fmt.Sprintf("demand exceeds available capacity by %.1f MW", remaining),
			ShortfallMW: remaining,
		})
	}

	// 5. Ramp plants toward their targets.
	for _, id := range g.plantIDs {
		p := g.plants[id]
		draw := componentDraw(g.cfg.SeedRoot, g.cfg.SimulationID, id, g.tick, saltPlant)
		p.Advance(dt, draw, g.cfg.FailureRateMultiplier)
		if !isFinite(p.State.CurrentOutputMW) {
			// Arithmetic degeneracy is component-scoped: force the plant out
			// of service and keep the grid running.
			p.Fail()
			g.logger.Error("plant output degenerate, forcing fault", slog.Int64("plant_id", id))
		}
	}

	// 6. Line flows over the current voltage field.
	var losses float64
	for _, id := range g.lineIDs {
		l := g.lines[id]
		if l.State.Operating == model.LineTripped {
			l.State.FlowMW = 0
			l.State.ObservedFlowMW = 0
			continue
		}
		vFrom := g.nodeVoltage(l.Params.FromNode)
		vTo := g.nodeVoltage(l.Params.ToNode)
		raw := l.RawFlowMW(vFrom, vTo)
		if tripped := l.ApplyFlow(raw, vFrom, g.cfg.BaseVoltageKV); tripped {
			g.logger.Warn("line tripped by protection", slog.Int64("line_id", id), slog.String("cause", string(l.State.Cause)))
			continue
		}
		draw := componentDraw(g.cfg.SeedRoot, g.cfg.SimulationID, id, g.tick, saltLine)
		if tripped := l.Advance(dt, draw, g.cfg.FailureRateMultiplier); tripped {
			g.logger.Warn("line random failure", slog.Int64("line_id", id))
			continue
		}
		losses += l.State.PowerLossMW
	}

	// 7. Frequency from the generation/consumption imbalance.
	gen := g.totalGeneration()
	g.frequencyHz = clampHz(g.cfg.BaseFrequencyHz + (gen-demand)/math.Max(gen, 1)*frequencyDamping)

	// 8. Voltage field for the next tick's flows.
	g.refreshVoltageField()

	// 9. Cascade check and protective shutdown.
	deviation := math.Abs(g.frequencyHz - g.cfg.BaseFrequencyHz)
	if deviation > cascadeWarnBandHz {
		alerts = append(alerts, model.Alert{
			Kind:    model.AlertFrequencyWarning,
			Message: fmt.Sprintf("frequency %.2f Hz deviates %.2f Hz from nominal", g.frequencyHz, deviation),
		})
	}
	if deviation > cascadeShedBandHz {
		curtailed := 0
		for _, id := range g.plantIDs {
			p := g.plants[id]
			if p.Params.Kind == model.KindWind || p.Params.Kind == model.KindSolar {
				p.Curtail()
				curtailed++
			}
		}
		if curtailed > 0 {
			alerts = append(alerts, model.Alert{
				Kind:    model.AlertCascadeShutdown,
				Message: fmt.Sprintf("protective shutdown curtailed %d renewable plants", curtailed),
			})
			g.logger.Warn("protective shutdown", slog.Float64("frequency_hz", g.frequencyHz), slog.Int("curtailed", curtailed))
		}
	}

	// 10. Assemble the end-of-tick snapshot.
	return g.snapshot(demand, losses, alerts), nil
}

func (g *Grid) applyEvent(ev Event) error {
	switch ev.Kind {
	case EventSetOutput:
		p, ok := g.plants[ev.TargetID]
		if !ok {
			return fmt.Errorf("%w: plant %d", ErrUnknownComponent, ev.TargetID)
		}
		p.SetTarget(ev.Value)
		return nil
	case EventInjectFault:
		return g.injector.Inject(ev.TargetID, ev.Fault)
	case EventRepair:
		return g.Repair(ev.TargetID)
	case EventLoadSpike:
		if ev.Value <= 0 || ev.SpikeTicks <= 0 {
			return fmt.Errorf("%w: load spike needs positive factor and duration", ErrConfigurationInvalid)
		}
		g.spikeFactor = ev.Value
		g.spikeTicksLeft = ev.SpikeTicks
		return nil
	default:
		return fmt.Errorf("%w: event kind %q", ErrConfigurationInvalid, ev.Kind)
	}
}

// Repair returns a plant or line to service.
func (g *Grid) Repair(componentID int64) error {
	if p, ok := g.plants[componentID]; ok {
		p.Repair()
		return nil
	}
	if l, ok := g.lines[componentID]; ok {
		l.Repair()
		return nil
	}
	return fmt.Errorf("%w: component %d", ErrUnknownComponent, componentID)
}

func (g *Grid) totalGeneration() float64 {
	var gen float64
	for _, id := range g.plantIDs {
		gen += g.plants[id].State.CurrentOutputMW
	}
	if gen < 0 || !isFinite(gen) {
		gen = 0
	}
	return gen
}

func (g *Grid) nodeVoltage(node int) float64 {
	if node < 0 || node >= len(g.voltages) {
		return g.cfg.BaseVoltageKV
	}
	return g.voltages[node]
}

func (g *Grid) refreshVoltageField() {
	if len(g.voltages) != g.nodeCount {
		g.voltages = make([]float64, g.nodeCount)
	}
	for i := range g.voltages {
		g.voltages[i] = g.cfg.BaseVoltageKV * (1 + 0.05*math.Sin(0.1*float64(i)))
	}
}

func (g *Grid) snapshot(demand, losses float64, alerts []model.Alert) model.Snapshot {
	gen := g.totalGeneration()
	var co2 float64
	var failures []model.ComponentRef
	faultCount := 0
	for _, id := range g.plantIDs {
		p := g.plants[id]
		co2 += p.State.CO2Tonnes
		if p.State.Operating == model.StateFault || p.State.PermanentOutage {
			failures = append(failures, model.ComponentRef{Class: model.ClassPlant, ID: id})
			faultCount++
		}
	}
	for _, id := range g.lineIDs {
		if g.lines[id].State.Operating == model.LineTripped {
			failures = append(failures, model.ComponentRef{Class: model.ClassLine, ID: id})
			faultCount++
		}
	}
	efficiency := 0.0
	if demand > 0 {
		efficiency = clampPct(gen / demand * 100)
	}

	return model.Snapshot{
		SimulationID:         g.cfg.SimulationID,
		TickNumber:           g.tick,
		Timestamp:            g.clock.Now(),
		TotalGenerationMW:    gen,
		TotalConsumptionMW:   math.Max(demand, 0),
		GridFrequencyHz:      g.frequencyHz,
		GridVoltageKV:        g.nodeVoltage(0),
		EfficiencyPercentage: efficiency,
		FaultCount:           faultCount,
		ActiveFailureIDs:     failures,
		Alerts:               alerts,
		TotalLossesMW:        losses,
		TotalCO2Tonnes:       co2,
	}
}

const (
	saltPlant uint64 = 0x706c616e74 // "plant"
	saltLine  uint64 = 0x6c696e65   // "line"
	saltLoad  uint64 = 0x6c6f6164   // "load"
)

func clampHz(f float64) float64 {
	if math.IsNaN(f) || f < frequencyFloorHz {
		return frequencyFloorHz
	}
	if f > frequencyCeilHz {
		return frequencyCeilHz
	}
	return f
}

func clampPct(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
