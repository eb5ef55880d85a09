package models

import (
	"voltedge/internal/model"
	"voltedge/internal/orchestrator"
)

// CreateSimulationResponse returns the assigned id.
type CreateSimulationResponse struct {
	ID     uint64 `json:"id"`
	Status string `json:"status"`
}

// SimulationResponse wraps lifecycle info.
type SimulationResponse struct {
	Simulation orchestrator.Info `json:"simulation"`
}

// ListSimulationsResponse lists all simulations.
type ListSimulationsResponse struct {
	Simulations []orchestrator.Info `json:"simulations"`
}

// SnapshotResponse wraps one tick snapshot.
type SnapshotResponse struct {
	Snapshot model.Snapshot `json:"snapshot"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
