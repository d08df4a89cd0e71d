// Package solver selects a MILP backend, applies the configured wall-clock
// and MIP-gap limits, invokes the solve, and reports a termination outcome.
// It never raises for a failed or time-limited solve — callers read the
// returned Status.
package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/fenwick-grid/bess-scheduler/internal/api"
	"github.com/fenwick-grid/bess-scheduler/internal/config"
	"github.com/fenwick-grid/bess-scheduler/internal/milp"
)

// Backend is one MILP solver implementation the Driver can select. Exactly
// one ships in this repository ("milp-bb", the branch-and-bound engine in
// internal/milp) but the interface is shaped so a commercial backend could
// be registered alongside it without touching the Driver.
type Backend interface {
	Name() string
	Available() bool
	Solve(ctx context.Context, p *milp.Problem, limits milp.Limits) (*milp.Solution, error)
}

// bbBackend adapts the milp package's free Solve function to the Backend
// interface. It is always available — it has no external process or
// license server to fail to find.
type bbBackend struct{}

func (bbBackend) Name() string      { return "milp-bb" }
func (bbBackend) Available() bool   { return true }
func (bbBackend) Solve(ctx context.Context, p *milp.Problem, limits milp.Limits) (*milp.Solution, error) {
	return milp.Solve(ctx, p, limits)
}

// Driver holds an ordered precedence list of backends. Selection: an
// explicit override name wins if present and available; otherwise the
// first available backend in Backends order is used; if none are
// available the Driver returns an ErrConfiguration error without
// attempting a solve.
type Driver struct {
	Backends []Backend
}

// NewDriver returns a Driver with the default precedence list: the
// required open-source backend is always registered last (or first, since
// it is the only one shipped) so a solve never fails purely for lack of a
// backend.
func NewDriver() *Driver {
	return &Driver{Backends: []Backend{bbBackend{}}}
}

// Outcome is the termination result of one Solve call, including the
// metadata the Solution Extractor and OptimizationResult surface to
// callers.
type Outcome struct {
	Solution    *milp.Solution
	Status      api.Status
	SolverName  string
	WallClock   time.Duration
}

// Solve picks a backend per the override/precedence rule, applies cfg's
// wall-clock and MIP-gap limits, and returns a termination Outcome. It
// never returns a Go error for Infeasible/TimeLimit/SolverError — those are
// normal outcomes per the error-handling taxonomy; Solve only returns an
// error when no backend could even be selected, which the caller should
// treat as ConfigurationError-adjacent (it means this binary was built
// without any backend wired in, not a bad request).
func (d *Driver) Solve(ctx context.Context, p *milp.Problem, cfg *config.Config) (*Outcome, error) {
	backend, err := d.selectBackend(cfg.SolverOverride)
	if err != nil {
		return nil, err
	}

	limits := milp.Limits{WallClock: cfg.SolverWallClock, MIPGap: cfg.SolverMIPGap}
	start := time.Now()
	sol, err := backend.Solve(ctx, p, limits)
	elapsed := time.Since(start)
	if err != nil {
		return &Outcome{
			Status:     api.StatusError,
			SolverName: backend.Name(),
			WallClock:  elapsed,
		}, nil
	}

	return &Outcome{
		Solution:   sol,
		Status:     statusFor(sol.Status),
		SolverName: backend.Name(),
		WallClock:  sol.WallClock,
	}, nil
}

func (d *Driver) selectBackend(override string) (Backend, error) {
	if override != "" {
		for _, b := range d.Backends {
			if b.Name() == override && b.Available() {
				return b, nil
			}
		}
		return nil, fmt.Errorf("%w: requested solver backend %q is not registered or unavailable", api.ErrConfiguration, override)
	}
	for _, b := range d.Backends {
		if b.Available() {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: no MILP backend available", api.ErrConfiguration)
}

func statusFor(s milp.Status) api.Status {
	switch s {
	case milp.Optimal:
		return api.StatusOptimal
	case milp.Feasible:
		return api.StatusFeasible
	case milp.Infeasible:
		return api.StatusInfeasible
	case milp.TimeLimit:
		return api.StatusTimeout
	default:
		return api.StatusError
	}
}
