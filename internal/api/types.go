// Package api defines the external request/response shapes and the error
// taxonomy shared by every component of the scheduling kernel.
package api

import (
	"errors"
	"time"
)

// ModelType selects which model in the I ⊂ II ⊂ III ⊂ III-Renew ladder to
// build.
type ModelType string

const (
	ModelI          ModelType = "I"
	ModelII         ModelType = "II"
	ModelIII        ModelType = "III"
	ModelIIIRenew   ModelType = "III-renew"
)

// Status is the termination outcome reported on every OptimizationResult.
type Status string

const (
	StatusOptimal     Status = "optimal"
	StatusFeasible    Status = "feasible"
	StatusInfeasible  Status = "infeasible"
	StatusTimeout     Status = "timeout"
	StatusError       Status = "error"
)

// Error kinds. These are sentinels, wrapped with fmt.Errorf("%w: ...", ...)
// at the point of failure so callers can errors.Is against them without
// caring about the detail string.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrConfiguration    = errors.New("configuration error")
	ErrSolver           = errors.New("solver error")
)

// MarketPrices is the raw price bundle supplied by the (out-of-scope) price
// ingesters. DayAhead/AfrrEnergyPos/AfrrEnergyNeg are 15-minute series of
// length 4H; Fcr/AfrrCapacityPos/AfrrCapacityNeg are 4-hour block series of
// length H/4.
type MarketPrices struct {
	DayAhead         []float64 `json:"day_ahead"`
	AfrrEnergyPos    []float64 `json:"afrr_energy_pos"`
	AfrrEnergyNeg    []float64 `json:"afrr_energy_neg"`
	Fcr              []float64 `json:"fcr"`
	AfrrCapacityPos  []float64 `json:"afrr_capacity_pos"`
	AfrrCapacityNeg  []float64 `json:"afrr_capacity_neg"`
}

// OptimizationRequest is the core input contract, filled by the (out of
// scope) adapter layer and handed to the scheduling kernel.
type OptimizationRequest struct {
	ModelType             ModelType     `json:"model_type"`
	HorizonHours          int           `json:"horizon_hours"`
	CRate                 float64       `json:"c_rate"`
	Alpha                 float64       `json:"alpha"`
	MarketPrices          MarketPrices  `json:"market_prices"`
	RenewableGenerationKW []float64     `json:"renewable_generation_kw,omitempty"`

	// StartTime anchors the 15-minute grid; defaults to 2024-01-01T00:00Z
	// when zero.
	StartTime time.Time `json:"start_time,omitempty"`

	// SiteLatitude/SiteLongitude are optional; when both are set the input
	// adapter runs the daylight sanity check against the renewable forecast.
	SiteLatitude  *float64 `json:"site_latitude,omitempty"`
	SiteLongitude *float64 `json:"site_longitude,omitempty"`

	// BatteryCapacityKWh is E_nom. CRate scales it into P_max via C3.
	BatteryCapacityKWh float64 `json:"battery_capacity_kwh"`
	Efficiency         float64 `json:"efficiency,omitempty"`
	InitialSOC         float64 `json:"initial_soc"`
	SOCMin             float64 `json:"soc_min,omitempty"`
	SOCMax             float64 `json:"soc_max,omitempty"`
}

// RevenueBreakdown reports the additive profit terms making up
// objective_value.
type RevenueBreakdown struct {
	DA               float64 `json:"da"`
	AfrrEnergy       float64 `json:"afrr_energy"`
	Fcr              float64 `json:"fcr"`
	RenewableExport  float64 `json:"renewable_export"`
}

// RenewableUtilization summarizes the self-consume/export/curtail split over
// the whole horizon (Model III-Renew only).
type RenewableUtilization struct {
	TotalGenKWh float64 `json:"total_gen_kwh"`
	SelfKWh     float64 `json:"self_kwh"`
	ExportKWh   float64 `json:"export_kwh"`
	CurtailKWh  float64 `json:"curtail_kwh"`
	Rate        float64 `json:"rate"`
}

// ScheduleEntry is one committed 15-minute row of the schedule.
type ScheduleEntry struct {
	Timestamp         time.Time `json:"timestamp"`
	Action            string    `json:"action"` // "charge" | "discharge" | "idle"
	PowerKW           float64   `json:"power_kw"`
	Market            string    `json:"market"` // "da" | "fcr" | "afrr_cap" | "afrr_energy"
	SOCAfter          float64   `json:"soc_after"`
	RenewableAction   *string   `json:"renewable_action,omitempty"`   // "self_consume" | "export" | "curtail"
	RenewablePowerKW  *float64  `json:"renewable_power_kw,omitempty"`
}

// OptimizationResult is the core output contract.
type OptimizationResult struct {
	Status              Status                `json:"status"`
	ObjectiveValue      float64               `json:"objective_value"`
	NetProfit           float64               `json:"net_profit"`
	RevenueBreakdown    RevenueBreakdown      `json:"revenue_breakdown"`
	CyclicAgingCost     float64               `json:"cyclic_aging_cost"`
	CalendarAgingCost   float64               `json:"calendar_aging_cost"`
	DegradationCost     float64               `json:"degradation_cost"`
	Schedule            []ScheduleEntry       `json:"schedule"`
	SOCTrajectory       []float64             `json:"soc_trajectory"`
	RenewableUtilization RenewableUtilization `json:"renewable_utilization"`
	SolveTimeSeconds    float64               `json:"solve_time_seconds"`
	SolverName          string                `json:"solver_name"`
	NumVariables        int                   `json:"num_variables"`
	NumConstraints      int                   `json:"num_constraints"`

	// Diagnostics carries non-fatal warnings raised anywhere in the
	// pipeline (segment cost monotonicity, negative aFRR prices, the
	// daylight sanity check) so a caller not watching logs still sees them.
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// RunResult wraps an OptimizationResult produced by the MPC rolling-horizon
// driver with a run identifier and per-iteration diagnostics.
type RunResult struct {
	RunID      string                `json:"run_id"`
	Result     OptimizationResult    `json:"result"`
	Iterations []IterationSummary    `json:"iterations"`
}

// IterationSummary describes one MPC window solve.
type IterationSummary struct {
	Index           int       `json:"index"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	CommitUntil     time.Time `json:"commit_until"`
	Status          Status    `json:"status"`
	ObjectiveValue  float64   `json:"objective_value"`
	SolveTimeSeconds float64  `json:"solve_time_seconds"`
}
