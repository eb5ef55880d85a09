package sim

import (
	"fmt"
	"log/slog"

	"voltedge/internal/model"
)

// FaultInjector validates and applies fault kinds to grid components.
// Repeat injection of a kind whose effect already holds is a no-op.
type FaultInjector struct {
	grid *Grid
}

// Validate checks that the target exists and the kind is compatible without
// mutating anything. The orchestrator calls this at enqueue time so callers
// get UnknownComponent/UnsupportedFault synchronously.
func (in *FaultInjector) Validate(targetID int64, kind model.FaultKind) error {
	g := in.grid
	switch kind {
	case model.FaultPlantOutage:
		if _, ok := g.plants[targetID]; !ok {
			return fmt.Errorf("%w: plant %d", ErrUnknownComponent, targetID)
		}
	case model.FaultLineTrip, model.FaultCascadingFailure:
		if _, ok := g.lines[targetID]; !ok {
			if _, isPlant := g.plants[targetID]; isPlant {
				return fmt.Errorf("%w: %s targets lines, %d is a plant", ErrUnsupportedFault, kind, targetID)
			}
			return fmt.Errorf("%w: line %d", ErrUnknownComponent, targetID)
		}
	case model.FaultSubstationFailure:
		if targetID < 0 || int(targetID) >= g.nodeCount {
			return fmt.Errorf("%w: node %d", ErrUnknownComponent, targetID)
		}
	case model.FaultCyberAttack, model.FaultNaturalDisaster:
		if !g.HasComponent(targetID) {
			return fmt.Errorf("%w: component %d", ErrUnknownComponent, targetID)
		}
	default:
		return fmt.Errorf("%w: fault kind %q", ErrUnsupportedFault, kind)
	}
	return nil
}

// Inject applies the fault effect immediately.
func (in *FaultInjector) Inject(targetID int64, kind model.FaultKind) error {
	if err := in.Validate(targetID, kind); err != nil {
		return err
	}
	g := in.grid

	switch kind {
	case model.FaultPlantOutage:
		p := g.plants[targetID]
		if p.State.Operating == model.StateFault && !p.State.Degraded {
			return nil
		}
		p.Fail()

	case model.FaultLineTrip:
		l := g.lines[targetID]
		if l.State.Operating == model.LineTripped {
			return nil
		}
		l.Trip(model.TripInjected, false)

	case model.FaultSubstationFailure:
		for _, id := range g.lineIDs {
			l := g.lines[id]
			if int64(l.Params.FromNode) == targetID || int64(l.Params.ToNode) == targetID {
				if l.State.Operating != model.LineTripped {
					l.Trip(model.TripInjected, false)
				}
			}
		}

	case model.FaultCascadingFailure:
		l := g.lines[targetID]
		if l.State.RatingHalved || l.State.Operating == model.LineTripped {
			return nil
		}
		l.HalveThermalRating()

	case model.FaultCyberAttack:
		if p, ok := g.plants[targetID]; ok {
			if p.State.Operating == model.StateFault {
				return nil
			}
			// The compromised controller forces 10% of capacity and holds it
			// there while the plant reports fault.
			p.Degrade(0.1 * p.Params.MaxCapacityMW)
		} else {
			// Lines: the observed flow reading is distorted this tick; the
			// physical flow is untouched.
			g.lines[targetID].DistortObserved(1.5)
		}

	case model.FaultNaturalDisaster:
		if p, ok := g.plants[targetID]; ok {
			if p.State.Operating == model.StateOffline && p.State.PermanentOutage {
				return nil
			}
			p.TripOffline(true)
		} else {
			l := g.lines[targetID]
			if l.State.Operating == model.LineTripped && l.State.PermanentOutage {
				return nil
			}
			l.Trip(model.TripInjected, true)
		}
	}

	g.logger.Info("fault injected", slog.Int64("target_id", targetID), slog.String("kind", string(kind)))
	return nil
}
