package config

import (
	"fmt"
	"os"
	"time"

	"voltedge/internal/model"
	"voltedge/internal/sim"

	"gopkg.in/yaml.v3"
)

// Scenario is the on-disk simulation configuration shape (YAML).
type Scenario struct {
	TickRateMS            int      `yaml:"tick_rate_ms" json:"tick_rate_ms"`
	BaseFrequency         float64  `yaml:"base_frequency" json:"base_frequency"`
	BaseVoltage           float64  `yaml:"base_voltage" json:"base_voltage"`
	SeedRoot              uint64   `yaml:"seed_root" json:"seed_root"`
	FailureRateMultiplier *float64 `yaml:"failure_rate_multiplier" json:"failure_rate_multiplier,omitempty"`

	PowerPlants       []PlantConfig `yaml:"power_plants" json:"power_plants"`
	TransmissionLines []LineConfig  `yaml:"transmission_lines" json:"transmission_lines"`
	LoadProfile       LoadConfig    `yaml:"load_profile" json:"load_profile"`
}

// Engine is the orchestrator-level configuration.
type Engine struct {
	MaxSimulations   int `yaml:"max_simulations" json:"max_simulations"`
	RetentionWindowS int `yaml:"retention_window_s" json:"retention_window_s"`
	// WallClockBudgetS bounds a single run's wall time; 0 disables the budget.
	WallClockBudgetS int `yaml:"wall_clock_budget_s" json:"wall_clock_budget_s"`
	RingCapacity     int `yaml:"ring_capacity" json:"ring_capacity"`
}

type PlantConfig struct {
	ID               int64   `yaml:"id" json:"id"`
	Kind             string  `yaml:"kind" json:"kind"`
	MaxCapacityMW    float64 `yaml:"max_capacity_mw" json:"max_capacity_mw"`
	Efficiency       float64 `yaml:"efficiency" json:"efficiency"`
	RampRateMWPerMin float64 `yaml:"ramp_rate_mw_per_min" json:"ramp_rate_mw_per_min"`
	Location         string  `yaml:"location" json:"location"`
	Operational      *bool   `yaml:"operational" json:"operational,omitempty"`
	InitialOutputMW  float64 `yaml:"initial_output_mw" json:"initial_output_mw"`
}

type LineConfig struct {
	ID              int64   `yaml:"id" json:"id"`
	FromNode        int     `yaml:"from_node" json:"from_node"`
	ToNode          int     `yaml:"to_node" json:"to_node"`
	CapacityMW      float64 `yaml:"capacity_mw" json:"capacity_mw"`
	LengthKM        float64 `yaml:"length_km" json:"length_km"`
	ResistancePerKM float64 `yaml:"resistance_per_km" json:"resistance_per_km"`
	ReactancePerKM  float64 `yaml:"reactance_per_km" json:"reactance_per_km"`
	Operational     *bool   `yaml:"operational" json:"operational,omitempty"`
}

type LoadConfig struct {
	BaseLoadMW      float64 `yaml:"base_load_mw" json:"base_load_mw"`
	DailyVariation  float64 `yaml:"daily_variation" json:"daily_variation"`
	RandomVariation float64 `yaml:"random_variation" json:"random_variation"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	s, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadUnchecked reads a scenario without validating it. Useful for printing
// partial configs during debugging.
func LoadUnchecked(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", sim.ErrConfigurationInvalid, err)
	}
	return &s, nil
}

// TickRate returns the configured tick duration.
func (s *Scenario) TickRate() time.Duration {
	if s.TickRateMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(s.TickRateMS) * time.Millisecond
}

// FailMult returns the failure rate multiplier, defaulting to 1.
func (s *Scenario) FailMult() float64 {
	if s.FailureRateMultiplier == nil {
		return 1
	}
	if *s.FailureRateMultiplier < 0 {
		return 0
	}
	return *s.FailureRateMultiplier
}

func (s *Scenario) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: scenario is nil", sim.ErrConfigurationInvalid)
	}
	if s.TickRateMS < 0 {
		return fmt.Errorf("%w: tick_rate_ms must be >= 0", sim.ErrConfigurationInvalid)
	}
	if s.LoadProfile.BaseLoadMW < 0 {
		return fmt.Errorf("%w: load_profile.base_load_mw must be >= 0", sim.ErrConfigurationInvalid)
	}

	plantIDs := make(map[int64]bool, len(s.PowerPlants))
	for _, pc := range s.PowerPlants {
		if plantIDs[pc.ID] {
			return fmt.Errorf("%w: duplicate plant id %d", sim.ErrConfigurationInvalid, pc.ID)
		}
		plantIDs[pc.ID] = true
		// Construct to reuse the model's own parameter validation.
		if _, err := model.NewPlant(pc.toParams(), pc.operational(), pc.InitialOutputMW); err != nil {
			return fmt.Errorf("%w: plant %d: %v", sim.ErrConfigurationInvalid, pc.ID, err)
		}
	}

	lineIDs := make(map[int64]bool, len(s.TransmissionLines))
	for _, lc := range s.TransmissionLines {
		if lineIDs[lc.ID] {
			return fmt.Errorf("%w: duplicate line id %d", sim.ErrConfigurationInvalid, lc.ID)
		}
		lineIDs[lc.ID] = true
		if _, err := model.NewLine(lc.toParams(), lc.operational()); err != nil {
			return fmt.Errorf("%w: line %d: %v", sim.ErrConfigurationInvalid, lc.ID, err)
		}
	}
	return nil
}

// Plants builds the plant models.
func (s *Scenario) Plants() ([]*model.Plant, error) {
	out := make([]*model.Plant, 0, len(s.PowerPlants))
	for _, pc := range s.PowerPlants {
		p, err := model.NewPlant(pc.toParams(), pc.operational(), pc.InitialOutputMW)
		if err != nil {
			return nil, fmt.Errorf("%w: plant %d: %v", sim.ErrConfigurationInvalid, pc.ID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Lines builds the line models.
func (s *Scenario) Lines() ([]*model.Line, error) {
	out := make([]*model.Line, 0, len(s.TransmissionLines))
	for _, lc := range s.TransmissionLines {
		l, err := model.NewLine(lc.toParams(), lc.operational())
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", sim.ErrConfigurationInvalid, lc.ID, err)
		}
		out = append(out, l)
	}
	return out, nil
}

// LoadModel returns the demand model.
func (s *Scenario) LoadModel() model.Load {
	return model.Load{
		BaseLoadMW:      s.LoadProfile.BaseLoadMW,
		DailyVariation:  s.LoadProfile.DailyVariation,
		RandomVariation: s.LoadProfile.RandomVariation,
	}
}

func (pc PlantConfig) toParams() model.PlantParams {
	return model.PlantParams{
		ID:               pc.ID,
		Kind:             model.PlantKind(pc.Kind),
		MaxCapacityMW:    pc.MaxCapacityMW,
		Efficiency:       pc.Efficiency,
		RampRateMWPerMin: pc.RampRateMWPerMin,
		Location:         pc.Location,
	}
}

func (pc PlantConfig) operational() bool {
	if pc.Operational == nil {
		return true
	}
	return *pc.Operational
}

func (lc LineConfig) toParams() model.LineParams {
	return model.LineParams{
		ID:              lc.ID,
		FromNode:        lc.FromNode,
		ToNode:          lc.ToNode,
		CapacityMW:      lc.CapacityMW,
		LengthKM:        lc.LengthKM,
		ResistancePerKM: lc.ResistancePerKM,
		ReactancePerKM:  lc.ReactancePerKM,
	}
}

func (lc LineConfig) operational() bool {
	if lc.Operational == nil {
		return true
	}
	return *lc.Operational
}
