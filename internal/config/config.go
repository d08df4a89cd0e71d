// Package config holds the configuration surface for the scheduling kernel:
// solver limits, degradation parameters, and the AS co-optimization knobs
// listed in the external interface contract. It follows the same
// load/validate/marshal shape used throughout this codebase's predecessor
// services.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// CalendarBreakpoint is one (SOC, cost) point of the calendar-aging SOS2
// breakpoint table. SOC is expressed in kWh (spanning [0, E_nom]); Cost is
// EUR per hour at that SOC.
type CalendarBreakpoint struct {
	SOCKWh float64 `json:"soc_kwh"`
	Cost   float64 `json:"cost"`
}

// ActivationDefault holds the per-country expected-value activation weights
// used when UseAfrrEVWeighting is enabled and the caller does not override
// them explicitly.
type ActivationDefault struct {
	Pos float64
	Neg float64
}

// countryActivationDefaults holds the per-country aFRR activation rates.
// DE_LU is the only market with a documented rate so far; unknown countries
// fall back to 1.0/1.0 (deterministic, i.e. no EV weighting effect).
var countryActivationDefaults = map[string]ActivationDefault{
	"DE_LU": {Pos: 0.30, Neg: 0.30},
}

// Config is the mutable configuration surface for one scheduling kernel
// instance. It is independent of any one OptimizationRequest and is
// typically loaded once per process.
type Config struct {
	// Solver Driver (C6) knobs.
	SolverWallClock time.Duration `json:"-"`
	SolverMIPGap    float64       `json:"solver_mip_gap"`
	SolverOverride  string        `json:"solver_override,omitempty"`

	// Degradation Parameter Loader (C4) knobs.
	SegmentCosts        []float64            `json:"segment_costs"`
	CalendarBreakpoints []CalendarBreakpoint `json:"calendar_breakpoints"`
	LifoEpsilonKWh      float64              `json:"lifo_epsilon_kwh"`

	RequireSequentialSegmentActivation bool `json:"require_sequential_segment_activation"`

	// Model Builder (C5) co-optimization knobs.
	MaxASRatio float64 `json:"max_as_ratio"`

	// aFRR energy expected-value weighting.
	UseAfrrEVWeighting bool   `json:"use_afrr_ev_weighting"`
	Country            string `json:"country,omitempty"`

	// MPC Rolling-Horizon Driver (C8) knobs.
	MPCOptWindowHours  int `json:"mpc_opt_window_hours"`
	MPCExecWindowHours int `json:"mpc_exec_window_hours"`
}

// DefaultConfig returns a Config populated with the defaults named in the
// external interface contract.
func DefaultConfig() *Config {
	return &Config{
		SolverWallClock: 1200 * time.Second,
		SolverMIPGap:    0.01,

		SegmentCosts: []float64{0.02, 0.05, 0.10, 0.20},
		CalendarBreakpoints: []CalendarBreakpoint{
			{SOCKWh: 0, Cost: 0},
			{SOCKWh: 2236, Cost: 0.01},
			{SOCKWh: 4472, Cost: 0.05},
		},
		LifoEpsilonKWh: 5.0,

		RequireSequentialSegmentActivation: false,

		MaxASRatio: 0.8,

		UseAfrrEVWeighting: false,
		Country:            "DE_LU",

		MPCOptWindowHours:  6,
		MPCExecWindowHours: 4,
	}
}

// ActivationWeights resolves the (w_pos, w_neg) activation-probability
// weights to apply to the aFRR energy columns. Deterministic (1.0, 1.0)
// unless UseAfrrEVWeighting is set, in which case the per-country default is
// used (falling back to deterministic for an unrecognized country).
func (c *Config) ActivationWeights() (pos, neg float64) {
	if !c.UseAfrrEVWeighting {
		return 1.0, 1.0
	}
	if d, ok := countryActivationDefaults[c.Country]; ok {
		return d.Pos, d.Neg
	}
	return 1.0, 1.0
}

// Validate checks every field for internal consistency. It does not know
// about any particular OptimizationRequest's J (segment count) — callers
// that load segment costs from elsewhere must still check
// len(SegmentCosts) == J themselves (the Degradation Parameter Loader does
// this).
func (c *Config) Validate() error {
	if c.SolverWallClock <= 0 {
		return fmt.Errorf("solver_wall_clock must be positive, got %s", c.SolverWallClock)
	}
	if c.SolverMIPGap < 0 || c.SolverMIPGap >= 1 {
		return fmt.Errorf("solver_mip_gap must be in [0, 1), got %f", c.SolverMIPGap)
	}
	if len(c.SegmentCosts) == 0 {
		return fmt.Errorf("segment_costs must not be empty")
	}
	prev := -1.0
	for i, cost := range c.SegmentCosts {
		if cost < 0 {
			return fmt.Errorf("segment_costs[%d] = %f must be non-negative", i, cost)
		}
		if prev >= 0 && cost < prev {
			return fmt.Errorf("segment_costs must be non-strictly increasing: segment %d (%f) < segment %d (%f)", i, cost, i-1, prev)
		}
		prev = cost
	}
	if len(c.CalendarBreakpoints) < 2 {
		return fmt.Errorf("calendar_breakpoints must contain at least 2 points, got %d", len(c.CalendarBreakpoints))
	}
	prevSOC := -1.0
	for i, bp := range c.CalendarBreakpoints {
		if bp.Cost < 0 {
			return fmt.Errorf("calendar_breakpoints[%d].cost = %f must be non-negative", i, bp.Cost)
		}
		if bp.SOCKWh <= prevSOC {
			return fmt.Errorf("calendar_breakpoints must have strictly increasing soc_kwh: point %d (%f) <= point %d (%f)", i, bp.SOCKWh, i-1, prevSOC)
		}
		prevSOC = bp.SOCKWh
	}
	if c.LifoEpsilonKWh < 0 {
		return fmt.Errorf("lifo_epsilon_kwh must be non-negative, got %f", c.LifoEpsilonKWh)
	}
	if c.MaxASRatio <= 0 || c.MaxASRatio > 1 {
		return fmt.Errorf("max_as_ratio must be in (0, 1], got %f", c.MaxASRatio)
	}
	if c.MPCOptWindowHours <= 0 {
		return fmt.Errorf("mpc_opt_window_hours must be positive, got %d", c.MPCOptWindowHours)
	}
	if c.MPCExecWindowHours <= 0 || c.MPCExecWindowHours > c.MPCOptWindowHours {
		return fmt.Errorf("mpc_exec_window_hours must be in (0, mpc_opt_window_hours], got %d (opt window %d)", c.MPCExecWindowHours, c.MPCOptWindowHours)
	}
	return nil
}

// LoadConfig reads a Config from a JSON file and validates it.
func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	return LoadConfigFromReader(f)
}

// LoadConfigFromReader reads a Config from JSON and validates it. Fields
// absent from the input retain DefaultConfig's values.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	c := DefaultConfig()
	if err := json.NewDecoder(r).Decode(c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// SaveConfig writes the config to filename as indented JSON.
func (c *Config) SaveConfig(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()
	return c.SaveConfigToWriter(f)
}

// SaveConfigToWriter writes the config as indented JSON.
func (c *Config) SaveConfigToWriter(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// String returns the config as pretty JSON, mainly for logging.
func (c *Config) String() string {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("<config marshal error: %v>", err)
	}
	return string(b)
}

// MarshalJSON renders SolverWallClock as a human-readable duration string
// alongside the rest of the config.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config
	return json.Marshal(&struct {
		SolverWallClock string `json:"solver_wall_clock"`
		*alias
	}{
		SolverWallClock: c.SolverWallClock.String(),
		alias:           (*alias)(c),
	})
}

// UnmarshalJSON parses SolverWallClock from a duration string (e.g. "1200s")
// while decoding the rest of the config normally.
func (c *Config) UnmarshalJSON(data []byte) error {
	type alias Config
	aux := &struct {
		SolverWallClock string `json:"solver_wall_clock"`
		*alias
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.SolverWallClock != "" {
		d, err := time.ParseDuration(aux.SolverWallClock)
		if err != nil {
			return fmt.Errorf("invalid solver_wall_clock %q: %w", aux.SolverWallClock, err)
		}
		c.SolverWallClock = d
	}
	return nil
}
