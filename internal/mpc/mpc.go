// Package mpc implements the rolling-horizon MPC driver (C8): it solves
// overlapping windows of length H_opt, commits the first H_exec hours of
// each, and chains the committed SOC forward until the full target horizon
// H_total is covered.
package mpc

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fenwick-grid/bess-scheduler/internal/api"
	"github.com/fenwick-grid/bess-scheduler/internal/config"
	"github.com/fenwick-grid/bess-scheduler/internal/pipeline"
	"github.com/fenwick-grid/bess-scheduler/internal/solver"
)

const stepsPerHour = 4

// Driver runs the rolling-horizon loop. DB and Bus are both optional and
// orthogonal to correctness: Run with neither set behaves exactly per the
// component design's window-slicing/SOC-chaining/commit-boundary contract.
type Driver struct {
	Cfg          *config.Config
	SolverDriver *solver.Driver
	DB           *sql.DB
	Bus          *ProgressBus
	Logger       *log.Logger
}

// NewDriver returns a Driver using cfg's MPC window knobs. DB and Bus are
// left nil; set them directly to opt into persistence/live progress.
func NewDriver(cfg *config.Config) *Driver {
	return &Driver{
		Cfg:          cfg,
		SolverDriver: solver.NewDriver(),
		Logger:       log.New(os.Stdout, "[mpc] ", log.LstdFlags),
	}
}

// Run solves req's full horizon as a sequence of overlapping windows and
// returns the stitched-together committed schedule plus per-iteration
// diagnostics. runID identifies this run for persistence/progress; pass any
// caller-chosen unique string.
func (d *Driver) Run(ctx context.Context, req *api.OptimizationRequest, runID string) (*api.RunResult, error) {
	cfg := d.Cfg
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	hOpt := cfg.MPCOptWindowHours
	hExec := cfg.MPCExecWindowHours
	hTotal := req.HorizonHours

	if hExec <= 0 || hOpt <= 0 || hExec > hOpt {
		return nil, fmt.Errorf("%w: mpc_opt_window_hours/mpc_exec_window_hours misconfigured (opt=%d, exec=%d)", api.ErrConfiguration, hOpt, hExec)
	}
	if hTotal <= 0 || hTotal%hExec != 0 {
		return nil, fmt.Errorf("%w: horizon_hours (%d) must be a positive multiple of mpc_exec_window_hours (%d)", api.ErrInvalidInput, hTotal, hExec)
	}

	if d.DB != nil {
		if err := ensureSchema(ctx, d.DB); err != nil {
			return nil, err
		}
		if err := saveRun(ctx, d.DB, runID, req); err != nil {
			return nil, err
		}
	}

	start := req.StartTime
	if start.IsZero() {
		start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	k := hTotal / hExec
	result := &api.RunResult{RunID: runID}

	socFrac := req.InitialSOC
	runningObjective := 0.0

	for i := 0; i < k; i++ {
		windowStartHour := i * hExec
		windowHours := hOpt
		if windowStartHour+windowHours > hTotal {
			windowHours = hTotal - windowStartHour
		}

		subReq, err := sliceRequest(req, windowStartHour, windowHours, socFrac, start)
		if err != nil {
			return nil, err
		}

		iterStart := time.Now()
		res, err := pipeline.Solve(ctx, subReq, cfg, d.SolverDriver)
		if err != nil {
			return nil, err
		}
		iterElapsed := time.Since(iterStart)

		commitHours := hExec
		if commitHours > windowHours {
			commitHours = windowHours
		}
		commitSteps := commitHours * stepsPerHour

		if commitSteps > len(res.Schedule) {
			commitSteps = len(res.Schedule)
		}
		committed := res.Schedule[:commitSteps]
		result.Result.Schedule = append(result.Result.Schedule, committed...)
		result.Result.SOCTrajectory = append(result.Result.SOCTrajectory, res.SOCTrajectory[:commitSteps]...)
		result.Result.Diagnostics = append(result.Result.Diagnostics, res.Diagnostics...)

		runningObjective += res.ObjectiveValue
		result.Result.Status = res.Status
		result.Result.SolverName = res.SolverName

		windowEnd := subReq.StartTime.Add(time.Duration(windowHours) * time.Hour)
		commitUntil := subReq.StartTime.Add(time.Duration(commitHours) * time.Hour)

		result.Iterations = append(result.Iterations, api.IterationSummary{
			Index:            i,
			WindowStart:      subReq.StartTime,
			WindowEnd:        windowEnd,
			CommitUntil:      commitUntil,
			Status:           res.Status,
			ObjectiveValue:   res.ObjectiveValue,
			SolveTimeSeconds: iterElapsed.Seconds(),
		})

		if d.DB != nil {
			if err := saveCommittedRows(ctx, d.DB, runID, res.SolverName, res.ObjectiveValue, committed); err != nil {
				d.logger().Printf("Warning: failed to persist MPC iteration %d: %v", i, err)
			}
		}
		if d.Bus != nil {
			d.Bus.Publish(IterationEvent{
				RunID:            runID,
				Iteration:        i,
				WindowStart:      subReq.StartTime,
				WindowEnd:        windowEnd,
				CommitUntil:      commitUntil,
				Status:           string(res.Status),
				ObjectiveValue:   res.ObjectiveValue,
				RunningObjective: runningObjective,
			})
		}

		if commitSteps > 0 && len(res.SOCTrajectory) >= commitSteps {
			socFrac = res.SOCTrajectory[commitSteps-1]
		}

		d.logger().Printf("iteration %d: window [%s, %s) status=%s objective=%.2f committed_through=%s",
			i, subReq.StartTime.Format(time.RFC3339), windowEnd.Format(time.RFC3339), res.Status, res.ObjectiveValue, commitUntil.Format(time.RFC3339))
	}

	result.Result.ObjectiveValue = runningObjective
	return result, nil
}

func (d *Driver) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

// sliceRequest builds the sub-window OptimizationRequest for one MPC
// iteration. 15-minute arrays are sliced by step range directly. 4-hour
// block arrays need an extra alignment step: internal/timeindex numbers a
// sub-window's blocks by that window's own calendar hour-of-day (BlockID 0
// is never reused across windows starting at different times of day), so a
// window that does not itself start at local midnight gets a first BlockID
// equal to its start hour's block-of-day, not 0. The sliced block array is
// therefore left-padded with that many unused leading slots so position
// localBlockID0+k holds the same price the full-horizon array holds at
// global block blockFrom+k.
func sliceRequest(req *api.OptimizationRequest, windowStartHour, windowHours int, initialSOC float64, overallStart time.Time) (*api.OptimizationRequest, error) {
	stepFrom := windowStartHour * stepsPerHour
	stepTo := (windowStartHour + windowHours) * stepsPerHour

	blockFrom := windowStartHour / 4
	blockTo := ceilDiv(windowStartHour+windowHours, 4)
	localBlockID0 := (windowStartHour % 24) / 4

	mp := req.MarketPrices
	if stepTo > len(mp.DayAhead) || blockTo > len(mp.Fcr) {
		return nil, fmt.Errorf("%w: mpc window [%d,%d)h needs market_prices data beyond the supplied horizon", api.ErrInvalidInput, windowStartHour, windowStartHour+windowHours)
	}

	sub := &api.OptimizationRequest{
		ModelType:          req.ModelType,
		HorizonHours:       windowHours,
		CRate:              req.CRate,
		Alpha:              req.Alpha,
		StartTime:          overallStart.Add(time.Duration(windowStartHour) * time.Hour),
		SiteLatitude:       req.SiteLatitude,
		SiteLongitude:      req.SiteLongitude,
		BatteryCapacityKWh: req.BatteryCapacityKWh,
		Efficiency:         req.Efficiency,
		InitialSOC:         initialSOC,
		SOCMin:             req.SOCMin,
		SOCMax:             req.SOCMax,
		MarketPrices: api.MarketPrices{
			DayAhead:        sliceSteps(mp.DayAhead, stepFrom, stepTo),
			AfrrEnergyPos:   sliceSteps(mp.AfrrEnergyPos, stepFrom, stepTo),
			AfrrEnergyNeg:   sliceSteps(mp.AfrrEnergyNeg, stepFrom, stepTo),
			Fcr:             sliceBlocksAligned(mp.Fcr, blockFrom, blockTo, localBlockID0),
			AfrrCapacityPos: sliceBlocksAligned(mp.AfrrCapacityPos, blockFrom, blockTo, localBlockID0),
			AfrrCapacityNeg: sliceBlocksAligned(mp.AfrrCapacityNeg, blockFrom, blockTo, localBlockID0),
		},
	}
	if len(req.RenewableGenerationKW) > 0 {
		sub.RenewableGenerationKW = sliceSteps(req.RenewableGenerationKW, stepFrom, stepTo)
	}

	return sub, nil
}

func sliceSteps(xs []float64, from, to int) []float64 {
	if xs == nil {
		return nil
	}
	if to > len(xs) {
		to = len(xs)
	}
	if from > to {
		from = to
	}
	out := make([]float64, to-from)
	copy(out, xs[from:to])
	return out
}

// sliceBlocksAligned copies global blocks [from, to) into a fresh array
// whose local index localOffset+k holds xs[from+k], leaving indices
// [0, localOffset) as unread padding.
func sliceBlocksAligned(xs []float64, from, to, localOffset int) []float64 {
	out := make([]float64, localOffset+(to-from))
	copy(out[localOffset:], sliceSteps(xs, from, to))
	return out
}

func ceilDiv(a, b int) int {
	if a%b == 0 {
		return a / b
	}
	return a/b + 1
}
