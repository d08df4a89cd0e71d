// Package pipeline wires C1-C7 together for one solve: time index, input
// adapter, battery and degradation parameter resolution, model build,
// solver invocation, and solution extraction. It is the single-solve path
// both the CLI's one-shot mode and the MPC rolling-horizon driver (C8) call
// once per window.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fenwick-grid/bess-scheduler/internal/api"
	"github.com/fenwick-grid/bess-scheduler/internal/battery"
	"github.com/fenwick-grid/bess-scheduler/internal/config"
	"github.com/fenwick-grid/bess-scheduler/internal/degradation"
	"github.com/fenwick-grid/bess-scheduler/internal/extract"
	"github.com/fenwick-grid/bess-scheduler/internal/marketdata"
	"github.com/fenwick-grid/bess-scheduler/internal/model"
	"github.com/fenwick-grid/bess-scheduler/internal/solver"
	"github.com/fenwick-grid/bess-scheduler/internal/timeindex"
)

// defaultStartTime anchors the 15-minute grid when a request does not
// specify one.
var defaultStartTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Solve runs one complete build/solve/extract cycle and returns the
// external-contract result. It never panics on Infeasible/TimeLimit/solver
// failure — those surface as a Status on the returned result, per the
// error-handling propagation policy. It returns a Go error for
// InvalidInput/ConfigurationError raised synchronously by C1-C5, and an
// ErrSolver-wrapped error when the solver driver cannot select a backend.
func Solve(ctx context.Context, req *api.OptimizationRequest, cfg *config.Config, drv *solver.Driver) (*api.OptimizationResult, error) {
	start := req.StartTime
	if start.IsZero() {
		start = defaultStartTime
	}

	idx, err := timeindex.New(start, req.HorizonHours)
	if err != nil {
		return nil, err
	}

	tbl, err := marketdata.Build(req, idx, cfg)
	if err != nil {
		return nil, err
	}

	bp, err := battery.Resolve(req)
	if err != nil {
		return nil, err
	}

	if req.Alpha < 0 {
		return nil, fmt.Errorf("%w: alpha must be >= 0, got %f", api.ErrInvalidInput, req.Alpha)
	}

	// Model I never references segment or calendar breakpoint data, so it
	// does not require cfg's degradation tables to validate against this
	// request's battery capacity — only the alpha check above applies to
	// it. Models II and above load the full Cyclic/Calendar parameter set.
	var degr *degradation.Params
	var degrWarnings []string
	if req.ModelType != api.ModelI {
		degr, degrWarnings, err = degradation.Load(bp, req.Alpha, cfg)
		if err != nil {
			return nil, err
		}
	}

	build, err := model.BuildModel(req.ModelType, idx, tbl, bp, degr, cfg)
	if err != nil {
		return nil, err
	}

	if drv == nil {
		drv = solver.NewDriver()
	}
	outcome, err := drv.Solve(ctx, build.Problem, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrSolver, err)
	}

	result := extract.Extract(build, outcome)
	result.Diagnostics = append(result.Diagnostics, degrWarnings...)
	return result, nil
}
