package model

import (
	"errors"
	"fmt"
	"math"
)

// OperatingState is the lifecycle state of a plant.
type OperatingState string

const (
	StateOnline      OperatingState = "online"
	StateOffline     OperatingState = "offline"
	StateMaintenance OperatingState = "maintenance"
	StateFault       OperatingState = "fault"
	StateStartup     OperatingState = "startup"
	StateShutdown    OperatingState = "shutdown"
)

// PlantParams defines the fixed parameters of one generator.
// Units:
// - MaxCapacityMW: MW
// - Efficiency: 0..1
// - RampRateMWPerMin: MW per minute; 0 means use the kind default
type PlantParams struct {
	ID               int64
	Kind             PlantKind
	MaxCapacityMW    float64
	Efficiency       float64
	RampRateMWPerMin float64
	Location         string
}

// PlantState captures mutable per-tick state.
type PlantState struct {
	Operating        OperatingState
	CurrentOutputMW  float64
	TargetOutputMW   float64
	OperationalHours float64
	NextMaintenanceH float64

	// PermanentOutage marks a natural-disaster outage; only an explicit
	// repair clears it.
	PermanentOutage bool

	// Degraded marks a control-system compromise: the plant is faulted but
	// its output stays pinned at the forced setpoint until repaired.
	Degraded bool

	// hours spent in the current transitional state (startup, shutdown,
	// maintenance)
	stateElapsedH float64

	FuelMMBtu float64
	CO2Tonnes float64
}

// Plant is a convenience wrapper bundling params + state, with the kind's
// derived constants resolved at construction.
type Plant struct {
	Params PlantParams
	State  PlantState
	Consts KindConstants
}

func NewPlant(params PlantParams, operational bool, initialOutputMW float64) (*Plant, error) {
	consts, err := ConstantsFor(params.Kind)
	if err != nil {
		return nil, err
	}
	p := &Plant{Params: params, Consts: consts}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if operational {
		p.State.Operating = StateOnline
		p.State.CurrentOutputMW = clampRange(initialOutputMW, p.MinOutputMW(), params.MaxCapacityMW)
		p.State.TargetOutputMW = p.State.CurrentOutputMW
	} else {
		p.State.Operating = StateOffline
	}
	p.State.NextMaintenanceH = consts.MaintenanceIntervalH
	return p, nil
}

func (p *Plant) Validate() error {
	if p.Params.MaxCapacityMW <= 0 {
		return errors.New("MaxCapacityMW must be > 0")
	}
	if p.Params.Efficiency <= 0 || p.Params.Efficiency > 1 {
		return errors.New("Efficiency must be in (0, 1]")
	}
	if p.Params.RampRateMWPerMin < 0 {
		return errors.New("RampRateMWPerMin must be >= 0")
	}
	return nil
}

// MinOutputMW is the technical minimum while online.
func (p *Plant) MinOutputMW() float64 {
	return p.Consts.MinOutputRatio * p.Params.MaxCapacityMW
}

// RampMWPerMin is the effective ramp rate, falling back to the kind default.
func (p *Plant) RampMWPerMin() float64 {
	if p.Params.RampRateMWPerMin > 0 {
		return p.Params.RampRateMWPerMin
	}
	return p.Consts.RampRatioPerMin * p.Params.MaxCapacityMW
}

// SetTarget requests a new output setpoint, clamped to the feasible band.
// Setpoints only take effect while online; weather-dependent kinds treat the
// setpoint as a ceiling on top of the weather-derived availability.
func (p *Plant) SetTarget(mw float64) {
	if p.State.Operating != StateOnline {
		return
	}
	p.State.TargetOutputMW = clampRange(mw, p.MinOutputMW(), p.Params.MaxCapacityMW)
}

// WeatherAvailabilityMW returns the deterministic weather-driven output
// ceiling for the given simulation time. Non-weather kinds return nameplate.
func (p *Plant) WeatherAvailabilityMW(simSeconds float64) float64 {
	cap := p.Params.MaxCapacityMW
	peak := cap * p.Consts.CapacityFactor
	switch p.Params.Kind {
	case KindSolar:
		// Sine bump between 06:00 and 18:00 local, zero overnight.
		sec := math.Mod(simSeconds, 86400)
		if sec < 21600 || sec > 64800 {
			return 0
		}
		return clampRange(peak*math.Sin(math.Pi*(sec-21600)/43200), 0, cap)
	case KindWind:
		// Diurnal sine phase-shifted from solar; never fully still.
		sec := math.Mod(simSeconds, 86400)
		v := peak * (0.55 + 0.45*math.Sin(2*math.Pi*sec/86400+math.Pi/3))
		return clampRange(v, 0, cap)
	case KindHydro:
		// Slow seasonal variation around the capacity factor.
		day := math.Mod(simSeconds/86400, 365)
		v := peak * (0.85 + 0.15*math.Sin(2*math.Pi*day/365))
		return clampRange(v, 0, cap)
	default:
		return cap
	}
}

// Advance moves the plant through one tick of dtSeconds.
//
// draw is a deterministic pseudo-random value in [0,1) supplied by the grid
// for the random failure check; failMult scales the failure probability
// (0 disables random failures).
func (p *Plant) Advance(dtSeconds, draw, failMult float64) {
	dtH := dtSeconds / 3600

	switch p.State.Operating {
	case StateOffline, StateFault:
		if p.State.Operating == StateFault && p.State.Degraded {
			// Compromised controller holds the forced setpoint; protection
			// cannot zero it until the plant is repaired.
			return
		}
		p.State.CurrentOutputMW = 0
		p.State.TargetOutputMW = 0
		return
	case StateStartup:
		p.State.stateElapsedH += dtH
		if p.State.stateElapsedH >= p.Consts.StartupH {
			p.transition(StateOnline)
		}
		return
	case StateShutdown:
		p.State.stateElapsedH += dtH
		if p.State.stateElapsedH >= p.Consts.ShutdownH {
			p.transition(StateOffline)
		}
		return
	case StateMaintenance:
		p.State.stateElapsedH += dtH
		if p.State.stateElapsedH >= p.Consts.MaintenanceDurationH {
			p.transition(StateOnline)
		}
		return
	}

	// Online: ramp toward target bounded by the per-tick ramp budget.
	step := p.RampMWPerMin() * dtSeconds / 60
	delta := p.State.TargetOutputMW - p.State.CurrentOutputMW
	if delta > step {
		delta = step
	} else if delta < -step {
		delta = -step
	}
	p.State.CurrentOutputMW = clampRange(p.State.CurrentOutputMW+delta, p.MinOutputMW(), p.Params.MaxCapacityMW)

	// Fuel and emissions accounting for the energy produced this tick.
	energyMWh := p.State.CurrentOutputMW * dtH
	if p.Consts.HeatRateMMBtuPerMWh > 0 {
		p.State.FuelMMBtu += sanitize(energyMWh*p.Consts.HeatRateMMBtuPerMWh/p.Params.Efficiency, 0, math.MaxFloat64)
	}
	p.State.CO2Tonnes += sanitize(energyMWh*p.Consts.CO2TonnesPerMWh, 0, math.MaxFloat64)

	p.State.OperationalHours += dtH

	if p.State.OperationalHours >= p.State.NextMaintenanceH {
		p.transition(StateMaintenance)
		p.State.NextMaintenanceH = p.State.OperationalHours + p.Consts.MaintenanceIntervalH
		return
	}

	if failMult > 0 {
		prob := p.Consts.BaseFailurePerHour * dtH * (1 + p.State.OperationalHours/8760) * failMult
		if draw < prob {
			p.transition(StateFault)
		}
	}
}

// Curtail forces an online plant's output to zero for the current tick.
// Used by the protective cascade response; the plant stays online and the
// next dispatch may raise it again.
func (p *Plant) Curtail() {
	if p.State.Operating != StateOnline {
		return
	}
	p.State.TargetOutputMW = 0
	p.State.CurrentOutputMW = 0
}

// Start requests a transition from offline to online via startup.
func (p *Plant) Start() error {
	if p.State.PermanentOutage {
		return fmt.Errorf("plant %d is out of service pending repair", p.Params.ID)
	}
	if p.State.Operating != StateOffline {
		return fmt.Errorf("plant %d cannot start from state %s", p.Params.ID, p.State.Operating)
	}
	p.transition(StateStartup)
	return nil
}

// Stop requests a transition from online to offline via shutdown.
func (p *Plant) Stop() error {
	if p.State.Operating != StateOnline {
		return fmt.Errorf("plant %d cannot stop from state %s", p.Params.ID, p.State.Operating)
	}
	p.transition(StateShutdown)
	return nil
}

// Fail forces the plant into fault with zero output.
func (p *Plant) Fail() {
	p.transition(StateFault)
}

// Degrade marks the plant faulted by a control-system compromise while
// pinning its output at the given setpoint. Unlike Fail, the plant keeps
// generating; only Repair restores normal control.
func (p *Plant) Degrade(outputMW float64) {
	out := clampRange(outputMW, 0, p.Params.MaxCapacityMW)
	p.State.Operating = StateFault
	p.State.stateElapsedH = 0
	p.State.Degraded = true
	p.State.TargetOutputMW = out
	p.State.CurrentOutputMW = out
}

// TripOffline forces the plant offline (cascade and disaster response).
func (p *Plant) TripOffline(permanent bool) {
	p.transition(StateOffline)
	if permanent {
		p.State.PermanentOutage = true
	}
}

// Repair returns a faulted, offline or stuck plant to online service and
// clears any permanent-outage flag.
func (p *Plant) Repair() {
	p.State.PermanentOutage = false
	p.transition(StateOnline)
}

func (p *Plant) transition(next OperatingState) {
	p.State.Operating = next
	p.State.stateElapsedH = 0
	p.State.Degraded = false
	if next == StateOnline {
		// Re-entering service lands at the technical minimum so the online
		// output invariant holds before the next dispatch.
		p.State.CurrentOutputMW = p.MinOutputMW()
		p.State.TargetOutputMW = p.MinOutputMW()
	} else {
		p.State.CurrentOutputMW = 0
		p.State.TargetOutputMW = 0
	}
}

// clampRange bounds x to [lo, hi], coercing non-finite values to the nearer
// endpoint so NaN/Inf never propagate into grid state.
func clampRange(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	if x < lo || math.IsInf(x, -1) {
		return lo
	}
	if x > hi || math.IsInf(x, 1) {
		return hi
	}
	return x
}

// sanitize is clampRange for open-ended accumulators.
func sanitize(x, lo, hi float64) float64 {
	return clampRange(x, lo, hi)
}
