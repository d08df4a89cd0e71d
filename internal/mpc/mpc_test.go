package mpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fenwick-grid/bess-scheduler/internal/api"
	"github.com/fenwick-grid/bess-scheduler/internal/config"
)

func flatSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// mpcRequest builds a 24-hour Model I request: 96 15-minute steps and 6
// four-hour capacity blocks, with a distinct price per block so a
// misaligned slice would show up as a wrong objective rather than
// cancelling out against a flat price.
func mpcRequest(t *testing.T) *api.OptimizationRequest {
	t.Helper()
	const steps = 96
	const blocks = 6

	fcr := make([]float64, blocks)
	afrrPos := make([]float64, blocks)
	afrrNeg := make([]float64, blocks)
	for i := range fcr {
		fcr[i] = 10 + float64(i)
		afrrPos[i] = 5 + float64(i)
		afrrNeg[i] = 5 + float64(i)
	}

	return &api.OptimizationRequest{
		ModelType:          api.ModelI,
		HorizonHours:       24,
		CRate:              0.5,
		BatteryCapacityKWh: 1000,
		InitialSOC:         0.5,
		StartTime:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MarketPrices: api.MarketPrices{
			DayAhead:        flatSeries(steps, 50),
			AfrrEnergyPos:   flatSeries(steps, 0),
			AfrrEnergyNeg:   flatSeries(steps, 0),
			Fcr:             fcr,
			AfrrCapacityPos: afrrPos,
			AfrrCapacityNeg: afrrNeg,
		},
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.SolverWallClock = 5 * time.Second
	cfg.MPCOptWindowHours = 6
	cfg.MPCExecWindowHours = 4
	return cfg
}

func TestDriver_Run_StitchesFullHorizon(t *testing.T) {
	req := mpcRequest(t)
	cfg := testConfig()

	d := NewDriver(cfg)
	res, err := d.Run(context.Background(), req, "test-run-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantSteps := req.HorizonHours * stepsPerHour
	if len(res.Result.Schedule) != wantSteps {
		t.Fatalf("len(Schedule) = %d, want %d", len(res.Result.Schedule), wantSteps)
	}
	if len(res.Result.SOCTrajectory) != wantSteps {
		t.Fatalf("len(SOCTrajectory) = %d, want %d", len(res.Result.SOCTrajectory), wantSteps)
	}

	wantIterations := req.HorizonHours / cfg.MPCExecWindowHours
	if len(res.Iterations) != wantIterations {
		t.Fatalf("len(Iterations) = %d, want %d", len(res.Iterations), wantIterations)
	}
	for i, it := range res.Iterations {
		if it.Index != i {
			t.Errorf("Iterations[%d].Index = %d, want %d", i, it.Index, i)
		}
		if it.Status != api.StatusOptimal && it.Status != api.StatusFeasible {
			t.Errorf("Iterations[%d].Status = %v, want Optimal or Feasible", i, it.Status)
		}
	}

	// SOC must stay in-bounds across the stitched trajectory and must not
	// sit at the initial fraction for every committed step. Step-to-step
	// continuity between windows is not checked here.
	allSame := true
	for _, soc := range res.Result.SOCTrajectory {
		if soc < 0 || soc > 1 {
			t.Errorf("SOC out of bounds: %f", soc)
		}
		if soc != req.InitialSOC {
			allSame = false
		}
	}
	if allSame {
		t.Errorf("SOCTrajectory never left InitialSOC=%f across %d committed steps", req.InitialSOC, wantSteps)
	}
}

func TestDriver_Run_RejectsNonDivisibleHorizon(t *testing.T) {
	req := mpcRequest(t)
	req.HorizonHours = 25 // not a multiple of MPCExecWindowHours=4
	cfg := testConfig()

	d := NewDriver(cfg)
	_, err := d.Run(context.Background(), req, "test-run-2")
	if !errors.Is(err, api.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestDriver_Run_RejectsExecGreaterThanOpt(t *testing.T) {
	req := mpcRequest(t)
	cfg := testConfig()
	cfg.MPCExecWindowHours = 8
	cfg.MPCOptWindowHours = 6

	d := NewDriver(cfg)
	_, err := d.Run(context.Background(), req, "test-run-3")
	if !errors.Is(err, api.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestSliceBlocksAligned_PadsToGlobalPosition(t *testing.T) {
	// A window starting at local hour 8 (block-of-day 2) slicing global
	// blocks [2,4) must place them at local indices [2,4), not [0,2):
	// internal/timeindex numbers this window's own blocks starting at 2,
	// since BlockID is computed from the window's own calendar hour-of-day.
	global := []float64{100, 101, 102, 103, 104, 105}
	out := sliceBlocksAligned(global, 2, 4, 2)

	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
	if out[2] != 102 || out[3] != 103 {
		t.Errorf("out = %v, want padded [?, ?, 102, 103]", out)
	}
}

func TestSliceRequest_BlockAlignmentAcrossIterations(t *testing.T) {
	req := mpcRequest(t)
	// Second iteration's window starts at hour 4, local block-of-day 1.
	sub, err := sliceRequest(req, 4, 6, 0.5, req.StartTime)
	if err != nil {
		t.Fatalf("sliceRequest: %v", err)
	}

	// Global blocks covering hours [4,10) are block 1 (4-8h) and, partially,
	// block 2 (8-12h; hours 8-10 fall in it), so blockFrom=1,
	// blockTo=ceil(10/4)=3: global blocks {1,2}. localBlockID0 = (4%24)/4 = 1.
	if len(sub.MarketPrices.Fcr) != 3 { // localOffset(1) + 2 global blocks
		t.Fatalf("len(Fcr) = %d, want 3", len(sub.MarketPrices.Fcr))
	}
	if sub.MarketPrices.Fcr[1] != req.MarketPrices.Fcr[1] {
		t.Errorf("Fcr[1] = %f, want %f (global block 1)", sub.MarketPrices.Fcr[1], req.MarketPrices.Fcr[1])
	}
	if sub.MarketPrices.Fcr[2] != req.MarketPrices.Fcr[2] {
		t.Errorf("Fcr[2] = %f, want %f (global block 2)", sub.MarketPrices.Fcr[2], req.MarketPrices.Fcr[2])
	}
}
