package model

import "fmt"

// FaultKind enumerates the injectable fault kinds.
type FaultKind string

const (
	FaultPlantOutage       FaultKind = "plant_outage"
	FaultLineTrip          FaultKind = "line_trip"
	FaultSubstationFailure FaultKind = "substation_failure"
	FaultCascadingFailure  FaultKind = "cascading_failure"
	FaultCyberAttack       FaultKind = "cyber_attack"
	FaultNaturalDisaster   FaultKind = "natural_disaster"
)

// ParseFaultKind validates an external fault kind string.
func ParseFaultKind(s string) (FaultKind, error) {
	switch FaultKind(s) {
	case FaultPlantOutage, FaultLineTrip, FaultSubstationFailure,
		FaultCascadingFailure, FaultCyberAttack, FaultNaturalDisaster:
		return FaultKind(s), nil
	}
	return "", fmt.Errorf("unknown fault kind %q", s)
}
