package models

import "voltedge/internal/config"

// CreateSimulationRequest carries the scenario to instantiate.
type CreateSimulationRequest struct {
	Scenario config.Scenario `json:"scenario"`
}

// InjectFaultRequest targets one component with a fault kind.
type InjectFaultRequest struct {
	ComponentID int64  `json:"component_id"`
	Kind        string `json:"kind" binding:"required"`
}

// SetOutputRequest changes a plant setpoint.
type SetOutputRequest struct {
	OutputMW float64 `json:"output_mw"`
}

// RepairRequest returns a component to service.
type RepairRequest struct {
	ComponentID int64 `json:"component_id"`
}

// LoadSpikeRequest schedules a bounded demand disturbance.
type LoadSpikeRequest struct {
	Factor float64 `json:"factor" binding:"required"`
	Ticks  int     `json:"ticks" binding:"required"`
}

// RunUntilRequest advances a simulation in step mode.
type RunUntilRequest struct {
	EndTick uint64 `json:"end_tick" binding:"required"`
}
