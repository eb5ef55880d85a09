package model

import "fmt"

// PlantKind identifies the generation technology of a plant.
// Keep these values stable; they appear in scenario YAML and in snapshots.
type PlantKind string

const (
	KindCoal           PlantKind = "coal"
	KindGas            PlantKind = "gas"
	KindNuclear        PlantKind = "nuclear"
	KindHydro          PlantKind = "hydro"
	KindWind           PlantKind = "wind"
	KindSolar          PlantKind = "solar"
	KindBatteryStorage PlantKind = "battery_storage"
	KindGeothermal     PlantKind = "geothermal"
)

// KindConstants bundles the derived constants a plant kind fixes.
// Units:
// - MinOutputRatio: fraction of max capacity [0,1]
// - RampRatioPerMin: fraction of max capacity per minute
// - HeatRateMMBtuPerMWh: MMBtu per MWh generated (0 for non-thermal kinds)
// - CO2TonnesPerMWh: tonnes CO2 per MWh generated
// - MaintenanceIntervalH / MaintenanceDurationH: hours
// - BaseFailurePerHour: probability of a random fault per operating hour
// - CapacityFactor: fraction of nameplate typically available
type KindConstants struct {
	MinOutputRatio       float64
	RampRatioPerMin      float64
	HeatRateMMBtuPerMWh  float64
	CO2TonnesPerMWh      float64
	MaintenanceIntervalH float64
	MaintenanceDurationH float64
	BaseFailurePerHour   float64
	CapacityFactor       float64
	WeatherDependent     bool
	StartupH             float64
	ShutdownH            float64
}

var kindTable = map[PlantKind]KindConstants{
	KindCoal:           {MinOutputRatio: 0.35, RampRatioPerMin: 0.02, HeatRateMMBtuPerMWh: 10.0, CO2TonnesPerMWh: 0.95, MaintenanceIntervalH: 2160, MaintenanceDurationH: 72, BaseFailurePerHour: 1.0e-4, CapacityFactor: 0.85, StartupH: 4, ShutdownH: 2},
	KindGas:            {MinOutputRatio: 0.20, RampRatioPerMin: 0.08, HeatRateMMBtuPerMWh: 7.5, CO2TonnesPerMWh: 0.45, MaintenanceIntervalH: 1440, MaintenanceDurationH: 48, BaseFailurePerHour: 8.0e-5, CapacityFactor: 0.87, StartupH: 0.5, ShutdownH: 0.25},
	KindNuclear:        {MinOutputRatio: 0.70, RampRatioPerMin: 0.005, HeatRateMMBtuPerMWh: 10.4, CO2TonnesPerMWh: 0, MaintenanceIntervalH: 4320, MaintenanceDurationH: 240, BaseFailurePerHour: 5.0e-5, CapacityFactor: 0.92, StartupH: 24, ShutdownH: 12},
	KindHydro:          {MinOutputRatio: 0.05, RampRatioPerMin: 0.15, MaintenanceIntervalH: 2880, MaintenanceDurationH: 96, BaseFailurePerHour: 3.0e-5, CapacityFactor: 0.45, WeatherDependent: true, StartupH: 0.1, ShutdownH: 0.1},
	KindWind:           {MinOutputRatio: 0, RampRatioPerMin: 0.30, MaintenanceIntervalH: 720, MaintenanceDurationH: 24, BaseFailurePerHour: 1.5e-4, CapacityFactor: 0.35, WeatherDependent: true, StartupH: 0.05, ShutdownH: 0.05},
	KindSolar:          {MinOutputRatio: 0, RampRatioPerMin: 0.50, MaintenanceIntervalH: 720, MaintenanceDurationH: 12, BaseFailurePerHour: 1.2e-4, CapacityFactor: 0.25, WeatherDependent: true, StartupH: 0.05, ShutdownH: 0.05},
	KindBatteryStorage: {MinOutputRatio: 0, RampRatioPerMin: 1.0, MaintenanceIntervalH: 1080, MaintenanceDurationH: 8, BaseFailurePerHour: 6.0e-5, CapacityFactor: 0.90, StartupH: 0.01, ShutdownH: 0.01},
	KindGeothermal:     {MinOutputRatio: 0.60, RampRatioPerMin: 0.01, CO2TonnesPerMWh: 0.05, MaintenanceIntervalH: 2160, MaintenanceDurationH: 120, BaseFailurePerHour: 7.0e-5, CapacityFactor: 0.80, StartupH: 6, ShutdownH: 3},
}

// ConstantsFor returns the derived constants for a kind.
func ConstantsFor(kind PlantKind) (KindConstants, error) {
	c, ok := kindTable[kind]
	if !ok {
		return KindConstants{}, fmt.Errorf("unknown plant kind %q", kind)
	}
	return c, nil
}

// KnownKinds lists all recognized plant kinds.
func KnownKinds() []PlantKind {
	return []PlantKind{
		KindCoal, KindGas, KindNuclear, KindHydro,
		KindWind, KindSolar, KindBatteryStorage, KindGeothermal,
	}
}
