package model

import (
	"errors"
	"math"
)

// LineState is the lifecycle state of a transmission line.
type LineState string

const (
	LineOperational LineState = "operational"
	LineTripped     LineState = "tripped"
)

// TripCause records why a line left service.
type TripCause string

const (
	TripNone         TripCause = ""
	TripOvercurrent  TripCause = "overcurrent"
	TripOvervoltage  TripCause = "overvoltage"
	TripUndervoltage TripCause = "undervoltage"
	TripThermal      TripCause = "thermal"
	TripRandom       TripCause = "random_failure"
	TripInjected     TripCause = "injected"
)

// LineParams defines the fixed parameters of one transmission line.
// Units: CapacityMW MW, LengthKM km, resistance/reactance ohm per km.
type LineParams struct {
	ID              int64
	FromNode        int
	ToNode          int
	CapacityMW      float64
	LengthKM        float64
	ResistancePerKM float64
	ReactancePerKM  float64
}

// LineDynamic captures mutable per-tick state.
type LineDynamic struct {
	Operating LineState
	Cause     TripCause

	FlowMW float64
	// ObservedFlowMW is what telemetry reports; it diverges from FlowMW only
	// while a cyber-attack gain is applied.
	ObservedFlowMW float64

	VoltageFromKV float64
	VoltageToKV   float64
	PowerLossMW   float64

	ThermalRatingMW  float64
	ConductorTempC   float64
	OperationalHours float64

	// RatingHalved latches a cascading-failure injection; the derating
	// pipeline keeps honoring it until Repair.
	RatingHalved bool

	PermanentOutage bool
	observedGain    float64
}

// Line is a convenience wrapper bundling params + state.
type Line struct {
	Params LineParams
	State  LineDynamic
}

func NewLine(params LineParams, operational bool) (*Line, error) {
	l := &Line{Params: params}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if operational {
		l.State.Operating = LineOperational
	} else {
		l.State.Operating = LineTripped
		l.State.Cause = TripInjected
	}
	l.State.ThermalRatingMW = 1.1 * params.CapacityMW
	l.State.ConductorTempC = 25
	l.State.observedGain = 1
	return l, nil
}

func (l *Line) Validate() error {
	if l.Params.CapacityMW <= 0 {
		return errors.New("CapacityMW must be > 0")
	}
	if l.Params.LengthKM <= 0 {
		return errors.New("LengthKM must be > 0")
	}
	if l.Params.ResistancePerKM < 0 || l.Params.ReactancePerKM < 0 {
		return errors.New("per-km resistance/reactance must be >= 0")
	}
	if l.Params.FromNode < 0 || l.Params.ToNode < 0 {
		return errors.New("node indices must be >= 0")
	}
	if l.Params.FromNode == l.Params.ToNode {
		return errors.New("line endpoints must differ")
	}
	return nil
}

// ResistanceOhm is the total series resistance.
func (l *Line) ResistanceOhm() float64 {
	return l.Params.ResistancePerKM * l.Params.LengthKM
}

// ImpedanceOhm is the total series impedance magnitude.
func (l *Line) ImpedanceOhm() float64 {
	r := l.ResistanceOhm()
	x := l.Params.ReactancePerKM * l.Params.LengthKM
	z := math.Sqrt(r*r + x*x)
	if z <= 0 || math.IsNaN(z) || math.IsInf(z, 0) {
		// Degenerate impedance would divide flow by zero; treat the line as
		// a short stub with a floor impedance.
		return 0.01
	}
	return z
}

// RatedCurrentKA is the nominal current at nameplate capacity and base voltage.
func (l *Line) RatedCurrentKA(baseKV float64) float64 {
	if baseKV <= 0 {
		return 0
	}
	return l.Params.CapacityMW / (baseKV * math.Sqrt(3))
}

// RawFlowMW computes the simplified pre-protection power flow given the
// endpoint node voltages in kV.
func (l *Line) RawFlowMW(vFromKV, vToKV float64) float64 {
	flow := (vFromKV - vToKV) / l.ImpedanceOhm() * vFromKV * math.Sqrt(3)
	return clampRange(flow, -10*l.Params.CapacityMW, 10*l.Params.CapacityMW)
}

// ApplyFlow assigns a power flow for this tick and runs the protection and
// thermal pipeline. Returns true if the line tripped during the assignment.
//
// Trips latch: once tripped, flow is zero until Repair.
func (l *Line) ApplyFlow(flowMW, vFromKV, baseKV float64) bool {
	if l.State.Operating == LineTripped {
		l.State.FlowMW = 0
		l.State.ObservedFlowMW = 0
		l.State.PowerLossMW = 0
		return false
	}

	l.State.VoltageFromKV = clampRange(vFromKV, 0.01*baseKV, 10*baseKV)

	ratedKA := l.RatedCurrentKA(baseKV)
	currentKA := math.Abs(flowMW) / (l.State.VoltageFromKV * math.Sqrt(3))
	currentKA = clampRange(currentKA, 0, 1000)

	// Overcurrent protection fires on the raw assignment before clamping.
	if ratedKA > 0 && currentKA > 1.2*ratedKA {
		l.trip(TripOvercurrent)
		return true
	}
	if l.State.VoltageFromKV > 1.1*baseKV {
		l.trip(TripOvervoltage)
		return true
	}
	// Thermal protection: assignments beyond the current derated rating trip.
	if math.Abs(flowMW) > l.State.ThermalRatingMW {
		l.trip(TripThermal)
		return true
	}

	l.State.FlowMW = clampRange(flowMW, -l.State.ThermalRatingMW, l.State.ThermalRatingMW)
	l.State.ObservedFlowMW = l.State.FlowMW * l.State.observedGain
	l.State.observedGain = 1

	// Voltage drop along the line.
	vTo := l.State.VoltageFromKV - l.State.FlowMW*l.ResistanceOhm()/1000
	l.State.VoltageToKV = clampRange(vTo, 0.87*baseKV, 1.09*baseKV)

	// Resistive losses from the carried current.
	ampere := math.Abs(l.State.FlowMW) * 1000 / (l.State.VoltageFromKV * math.Sqrt(3))
	l.State.PowerLossMW = clampRange(ampere*ampere*l.ResistanceOhm()/1e6, 0, l.Params.CapacityMW)

	// Thermal derating from conductor heating.
	heating := 0.0
	if ratedKA > 0 {
		ratio := currentKA / ratedKA
		heating = ratio * ratio
	}
	l.State.ConductorTempC = clampRange(25+50*heating, 25, 500)
	if l.State.ConductorTempC > 75 {
		derate := math.Max(0.5, (100-l.State.ConductorTempC)/75)
		l.State.ThermalRatingMW = l.Params.CapacityMW * derate
	} else {
		l.State.ThermalRatingMW = 1.1 * l.Params.CapacityMW
	}
	if l.State.RatingHalved {
		l.State.ThermalRatingMW /= 2
	}

	// Undervoltage protection after the drop is applied.
	if l.State.VoltageToKV < 0.9*baseKV {
		l.trip(TripUndervoltage)
		return true
	}
	return false
}

// Advance accumulates service hours and runs the random failure check.
// draw is a deterministic pseudo-random value in [0,1); failMult scales the
// failure probability (0 disables random failures).
func (l *Line) Advance(dtSeconds, draw, failMult float64) bool {
	if l.State.Operating == LineTripped {
		return false
	}
	dtH := dtSeconds / 3600
	l.State.OperationalHours += dtH
	if failMult > 0 {
		// Longer spans fail more often; probability scales with length.
		prob := 2.0e-6 * dtH * l.Params.LengthKM * failMult
		if draw < prob {
			l.trip(TripRandom)
			return true
		}
	}
	return false
}

// Trip forces the line out of service (protection or injected fault).
func (l *Line) Trip(cause TripCause, permanent bool) {
	l.trip(cause)
	if permanent {
		l.State.PermanentOutage = true
	}
}

// HalveThermalRating applies the cascading-failure fault effect. Returns true
// if the line tripped because the present flow exceeds the new rating.
func (l *Line) HalveThermalRating() bool {
	l.State.RatingHalved = true
	l.State.ThermalRatingMW /= 2
	if l.State.Operating == LineOperational && math.Abs(l.State.FlowMW) > l.State.ThermalRatingMW {
		l.trip(TripThermal)
		return true
	}
	return false
}

// DistortObserved applies the cyber-attack observation gain for the current
// tick; the physical flow is untouched.
func (l *Line) DistortObserved(gain float64) {
	l.State.observedGain = gain
	l.State.ObservedFlowMW = l.State.FlowMW * gain
}

// Repair returns a tripped line to service and clears the permanent flag.
func (l *Line) Repair() {
	l.State.PermanentOutage = false
	l.State.RatingHalved = false
	l.State.Operating = LineOperational
	l.State.Cause = TripNone
	l.State.ThermalRatingMW = 1.1 * l.Params.CapacityMW
	l.State.ConductorTempC = 25
	l.State.observedGain = 1
}

func (l *Line) trip(cause TripCause) {
	l.State.Operating = LineTripped
	l.State.Cause = cause
	l.State.FlowMW = 0
	l.State.ObservedFlowMW = 0
	l.State.PowerLossMW = 0
}
