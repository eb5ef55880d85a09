package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"voltedge/internal/api/models"
	"voltedge/internal/model"
	"voltedge/internal/orchestrator"
	"voltedge/internal/sim"

	"github.com/gin-gonic/gin"
)

// SimulationHandler exposes the orchestrator control surface over HTTP.
type SimulationHandler struct {
	orc *orchestrator.Orchestrator
}

func NewSimulationHandler(orc *orchestrator.Orchestrator) *SimulationHandler {
	return &SimulationHandler{orc: orc}
}

// Create handles POST /api/v1/simulations
func (h *SimulationHandler) Create(c *gin.Context) {
	var req models.CreateSimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	id, err := h.orc.Create(&req.Scenario)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.CreateSimulationResponse{ID: id, Status: string(orchestrator.StatusCreated)})
}

// List handles GET /api/v1/simulations
func (h *SimulationHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, models.ListSimulationsResponse{Simulations: h.orc.List()})
}

// Get handles GET /api/v1/simulations/:id
func (h *SimulationHandler) Get(c *gin.Context) {
	id, ok := h.simID(c)
	if !ok {
		return
	}
	info, err := h.orc.GetInfo(id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SimulationResponse{Simulation: info})
}

// Delete handles DELETE /api/v1/simulations/:id
func (h *SimulationHandler) Delete(c *gin.Context) {
	id, ok := h.simID(c)
	if !ok {
		return
	}
	if err := h.orc.Delete(id); err != nil {
		writeEngineError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Start handles POST /api/v1/simulations/:id/start
func (h *SimulationHandler) Start(c *gin.Context) {
	h.lifecycle(c, h.orc.Start)
}

// Pause handles POST /api/v1/simulations/:id/pause
func (h *SimulationHandler) Pause(c *gin.Context) {
	h.lifecycle(c, h.orc.Pause)
}

// Stop handles POST /api/v1/simulations/:id/stop
func (h *SimulationHandler) Stop(c *gin.Context) {
	h.lifecycle(c, h.orc.Stop)
}

func (h *SimulationHandler) lifecycle(c *gin.Context, op func(uint64) error) {
	id, ok := h.simID(c)
	if !ok {
		return
	}
	if err := op(id); err != nil {
		writeEngineError(c, err)
		return
	}
	info, err := h.orc.GetInfo(id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SimulationResponse{Simulation: info})
}

// InjectFault handles POST /api/v1/simulations/:id/faults
func (h *SimulationHandler) InjectFault(c *gin.Context) {
	id, ok := h.simID(c)
	if !ok {
		return
	}
	var req models.InjectFaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	kind, err := model.ParseFaultKind(req.Kind)
	if err != nil {
		writeError(c, http.StatusBadRequest, "UNSUPPORTED_FAULT", err.Error())
		return
	}
	if err := h.orc.InjectFault(id, req.ComponentID, kind); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// SetOutput handles POST /api/v1/simulations/:id/plants/:plant_id/output
func (h *SimulationHandler) SetOutput(c *gin.Context) {
	id, ok := h.simID(c)
	if !ok {
		return
	}
	plantID, err := strconv.ParseInt(c.Param("plant_id"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "plant_id must be an integer")
		return
	}
	var req models.SetOutputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if err := h.orc.SetPlantOutput(id, plantID, req.OutputMW); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// Repair handles POST /api/v1/simulations/:id/repair
func (h *SimulationHandler) Repair(c *gin.Context) {
	id, ok := h.simID(c)
	if !ok {
		return
	}
	var req models.RepairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if err := h.orc.RepairComponent(id, req.ComponentID); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// LoadSpike handles POST /api/v1/simulations/:id/load-spike
func (h *SimulationHandler) LoadSpike(c *gin.Context) {
	id, ok := h.simID(c)
	if !ok {
		return
	}
	var req models.LoadSpikeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if err := h.orc.ScheduleLoadSpike(id, req.Factor, req.Ticks); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// Tick handles POST /api/v1/simulations/:id/tick (step mode)
func (h *SimulationHandler) Tick(c *gin.Context) {
	id, ok := h.simID(c)
	if !ok {
		return
	}
	snap, err := h.orc.Tick(id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SnapshotResponse{Snapshot: snap})
}

// RunUntil handles POST /api/v1/simulations/:id/run-until (step mode)
func (h *SimulationHandler) RunUntil(c *gin.Context) {
	id, ok := h.simID(c)
	if !ok {
		return
	}
	var req models.RunUntilRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if err := h.orc.RunUntil(c.Request.Context(), id, req.EndTick); err != nil {
		writeEngineError(c, err)
		return
	}
	snap, err := h.orc.Snapshot(id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SnapshotResponse{Snapshot: snap})
}

// Snapshot handles GET /api/v1/simulations/:id/snapshot
func (h *SimulationHandler) Snapshot(c *gin.Context) {
	id, ok := h.simID(c)
	if !ok {
		return
	}
	snap, err := h.orc.Snapshot(id)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SnapshotResponse{Snapshot: snap})
}

// Stream handles GET /api/v1/simulations/:id/stream as server-sent events,
// draining the simulation's ring reader until the client disconnects.
func (h *SimulationHandler) Stream(c *gin.Context) {
	id, ok := h.simID(c)
	if !ok {
		return
	}
	reader, err := h.orc.Subscribe(id)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")

	ctx := c.Request.Context()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
		for {
			snap, ok := reader.Next()
			if !ok {
				return true
			}
			c.SSEvent("snapshot", snap)
		}
	})
}

func (h *SimulationHandler) simID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "simulation id must be an integer")
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, models.ErrorResponse{Error: models.ErrorDetail{Code: code, Message: msg}})
}

// writeEngineError maps the engine error taxonomy onto HTTP statuses.
func writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sim.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, sim.ErrUnknownComponent):
		writeError(c, http.StatusNotFound, "UNKNOWN_COMPONENT", err.Error())
	case errors.Is(err, sim.ErrUnsupportedFault):
		writeError(c, http.StatusBadRequest, "UNSUPPORTED_FAULT", err.Error())
	case errors.Is(err, sim.ErrConfigurationInvalid):
		writeError(c, http.StatusBadRequest, "CONFIGURATION_INVALID", err.Error())
	case errors.Is(err, sim.ErrMaxSimulations):
		writeError(c, http.StatusConflict, "MAX_SIMULATIONS", err.Error())
	case errors.Is(err, sim.ErrAlreadyRunning):
		writeError(c, http.StatusConflict, "ALREADY_RUNNING", err.Error())
	case errors.Is(err, sim.ErrNotRunning):
		writeError(c, http.StatusConflict, "NOT_RUNNING", err.Error())
	case errors.Is(err, sim.ErrBatchFull):
		writeError(c, http.StatusTooManyRequests, "BATCH_FULL", err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
