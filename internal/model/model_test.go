package model

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/fenwick-grid/bess-scheduler/internal/api"
	"github.com/fenwick-grid/bess-scheduler/internal/battery"
	"github.com/fenwick-grid/bess-scheduler/internal/config"
	"github.com/fenwick-grid/bess-scheduler/internal/degradation"
	"github.com/fenwick-grid/bess-scheduler/internal/marketdata"
	"github.com/fenwick-grid/bess-scheduler/internal/milp"
	"github.com/fenwick-grid/bess-scheduler/internal/timeindex"
)

func flatSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// fixture assembles everything Build needs for a 4-hour, 1000 kWh, 0.5 C
// request. Callers mutate the returned request/config before building.
type fixture struct {
	req *api.OptimizationRequest
	cfg *config.Config
}

func newFixture() *fixture {
	cfg := config.DefaultConfig()
	// DefaultConfig's calendar table spans 4472 kWh; rescale to this
	// fixture's 1000 kWh battery so Model III loads cleanly.
	cfg.CalendarBreakpoints = []config.CalendarBreakpoint{
		{SOCKWh: 0, Cost: 0},
		{SOCKWh: 500, Cost: 0.01},
		{SOCKWh: 1000, Cost: 0.05},
	}
	return &fixture{
		req: &api.OptimizationRequest{
			ModelType:          api.ModelI,
			HorizonHours:       4,
			CRate:              0.5,
			Alpha:              1,
			BatteryCapacityKWh: 1000,
			InitialSOC:         0.5,
			MarketPrices: api.MarketPrices{
				DayAhead:        flatSeries(16, 50),
				AfrrEnergyPos:   flatSeries(16, 0),
				AfrrEnergyNeg:   flatSeries(16, 30),
				Fcr:             flatSeries(1, 10),
				AfrrCapacityPos: flatSeries(1, 5),
				AfrrCapacityNeg: flatSeries(1, 5),
			},
		},
		cfg: cfg,
	}
}

func (f *fixture) build(t *testing.T, modelType api.ModelType) *Build {
	t.Helper()
	f.req.ModelType = modelType

	idx, err := timeindex.New(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), f.req.HorizonHours)
	if err != nil {
		t.Fatalf("timeindex.New: %v", err)
	}
	tbl, err := marketdata.Build(f.req, idx, f.cfg)
	if err != nil {
		t.Fatalf("marketdata.Build: %v", err)
	}
	bp, err := battery.Resolve(f.req)
	if err != nil {
		t.Fatalf("battery.Resolve: %v", err)
	}

	var degr *degradation.Params
	if modelType != api.ModelI {
		degr, _, err = degradation.Load(bp, f.req.Alpha, f.cfg)
		if err != nil {
			t.Fatalf("degradation.Load: %v", err)
		}
	}

	b, err := BuildModel(modelType, idx, tbl, bp, degr, f.cfg)
	if err != nil {
		t.Fatalf("Build(%s): %v", modelType, err)
	}
	return b
}

func TestBuild_ModelI_Shapes(t *testing.T) {
	b := newFixture().build(t, api.ModelI)

	if got := len(b.PCh); got != 16 {
		t.Fatalf("len(PCh) = %d, want 16", got)
	}
	if got := len(b.CFcr); got != 1 {
		t.Fatalf("len(CFcr) = %d, want 1", got)
	}
	if b.NumSegments != 1 {
		t.Errorf("NumSegments = %d, want 1 for Model I", b.NumSegments)
	}
	if b.ZSeg != nil {
		t.Errorf("ZSeg != nil for Model I; LIFO machinery must not exist")
	}
	if b.LambdaCal != nil {
		t.Errorf("LambdaCal != nil for Model I; calendar aging must not exist")
	}
	if b.HasRenewable {
		t.Errorf("HasRenewable = true without a forecast")
	}
	if len(b.Problem.SOS2Sets) != 0 {
		t.Errorf("len(SOS2Sets) = %d, want 0 for Model I", len(b.Problem.SOS2Sets))
	}
}

func TestBuild_InactiveMarketForcesZeroUpperBound(t *testing.T) {
	// afrr_energy_pos is all zeros in the fixture; the adapter turns those
	// into NaN and the builder must pin the matching power variable at 0.
	// afrr_energy_neg carries a real price, so its variable keeps a live
	// upper bound.
	b := newFixture().build(t, api.ModelI)

	for tt := 0; tt < 16; tt++ {
		if ub := b.Problem.Vars[b.PAfrrPosE[tt]].UB; ub != 0 {
			t.Fatalf("PAfrrPosE[%d].UB = %f, want 0 (inactive market)", tt, ub)
		}
		if ub := b.Problem.Vars[b.PAfrrNegE[tt]].UB; ub != 500 {
			t.Fatalf("PAfrrNegE[%d].UB = %f, want 500 (P_max)", tt, ub)
		}
	}
}

func TestBuild_ModelII_SegmentMachinery(t *testing.T) {
	f := newFixture()
	b := f.build(t, api.ModelII)

	wantSegments := len(f.cfg.SegmentCosts)
	if b.NumSegments != wantSegments {
		t.Fatalf("NumSegments = %d, want %d", b.NumSegments, wantSegments)
	}
	if b.ZSeg == nil {
		t.Fatalf("ZSeg = nil, want per-step activation binaries")
	}
	for tt := 0; tt < 16; tt++ {
		if got := len(b.ESocSeg[tt]); got != wantSegments {
			t.Fatalf("len(ESocSeg[%d]) = %d, want %d", tt, got, wantSegments)
		}
	}
	if b.LambdaCal != nil {
		t.Errorf("LambdaCal != nil for Model II")
	}

	// Model II must carry strictly more rows than Model I: the stacked-tank
	// ordering, LIFO cap/fullness, and per-segment dynamics all add rows.
	bI := newFixture().build(t, api.ModelI)
	if b.Problem.NumConstraints() <= bI.Problem.NumConstraints() {
		t.Errorf("Model II constraints (%d) not greater than Model I (%d)",
			b.Problem.NumConstraints(), bI.Problem.NumConstraints())
	}
}

func TestBuild_ModelIII_SOS2PerStep(t *testing.T) {
	b := newFixture().build(t, api.ModelIII)

	if got := len(b.Problem.SOS2Sets); got != 16 {
		t.Fatalf("len(SOS2Sets) = %d, want one per step (16)", got)
	}
	if b.NumBreakpoints != 3 {
		t.Fatalf("NumBreakpoints = %d, want 3", b.NumBreakpoints)
	}
	for tt := 0; tt < 16; tt++ {
		if got := len(b.LambdaCal[tt]); got != 3 {
			t.Fatalf("len(LambdaCal[%d]) = %d, want 3", tt, got)
		}
	}
}

func TestBuild_ModelIIIRenew_RequiresForecast(t *testing.T) {
	f := newFixture()
	f.req.ModelType = api.ModelIIIRenew

	idx, err := timeindex.New(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), f.req.HorizonHours)
	if err != nil {
		t.Fatalf("timeindex.New: %v", err)
	}
	tbl, err := marketdata.Build(f.req, idx, f.cfg)
	if err != nil {
		t.Fatalf("marketdata.Build: %v", err)
	}
	bp, err := battery.Resolve(f.req)
	if err != nil {
		t.Fatalf("battery.Resolve: %v", err)
	}
	degr, _, err := degradation.Load(bp, f.req.Alpha, f.cfg)
	if err != nil {
		t.Fatalf("degradation.Load: %v", err)
	}

	_, err = BuildModel(api.ModelIIIRenew, idx, tbl, bp, degr, f.cfg)
	if !errors.Is(err, api.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput (no renewable forecast)", err)
	}
}

func TestBuild_ModelIIIRenew_SplitVariables(t *testing.T) {
	f := newFixture()
	f.req.RenewableGenerationKW = flatSeries(16, 200)
	b := f.build(t, api.ModelIIIRenew)

	if !b.HasRenewable {
		t.Fatalf("HasRenewable = false with a forecast present")
	}
	for tt := 0; tt < 16; tt++ {
		for _, idx := range []int{b.PSelf[tt], b.PExport[tt], b.PCurtail[tt]} {
			v := b.Problem.Vars[idx]
			if v.LB != 0 || v.UB != 200 {
				t.Fatalf("renewable split var bounds = [%f, %f], want [0, 200]", v.LB, v.UB)
			}
		}
	}
}

func TestBuild_UnknownModelType(t *testing.T) {
	f := newFixture()
	idx, err := timeindex.New(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 4)
	if err != nil {
		t.Fatalf("timeindex.New: %v", err)
	}
	tbl, err := marketdata.Build(f.req, idx, f.cfg)
	if err != nil {
		t.Fatalf("marketdata.Build: %v", err)
	}
	bp, err := battery.Resolve(f.req)
	if err != nil {
		t.Fatalf("battery.Resolve: %v", err)
	}

	_, err = BuildModel(api.ModelType("IV"), idx, tbl, bp, nil, f.cfg)
	if !errors.Is(err, api.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestBuild_StrictSegmentActivationAddsRows(t *testing.T) {
	relaxed := newFixture().build(t, api.ModelII)

	f := newFixture()
	f.cfg.RequireSequentialSegmentActivation = true
	strict := f.build(t, api.ModelII)

	if strict.Problem.NumConstraints() <= relaxed.Problem.NumConstraints() {
		t.Errorf("strict mode constraints (%d) not greater than relaxed (%d)",
			strict.Problem.NumConstraints(), relaxed.Problem.NumConstraints())
	}
}

func TestBuild_ASReservationCapDisabledAtRatioOne(t *testing.T) {
	capped := newFixture().build(t, api.ModelI)

	f := newFixture()
	f.cfg.MaxASRatio = 1.0
	uncapped := f.build(t, api.ModelI)

	if uncapped.Problem.NumConstraints() >= capped.Problem.NumConstraints() {
		t.Errorf("ratio=1.0 constraints (%d) not fewer than ratio=0.8 (%d); the reservation cap must be disabled",
			uncapped.Problem.NumConstraints(), capped.Problem.NumConstraints())
	}
}

// TestSolve_Arbitrage_DischargesIntoHighPrices is a scaled-down spread
// scenario: cheap power for the first two hours, expensive for the last two.
// The optimum must earn a positive DA profit and discharge somewhere inside
// the high-price window.
func TestSolve_Arbitrage_DischargesIntoHighPrices(t *testing.T) {
	f := newFixture()
	f.req.Alpha = 0
	prices := make([]float64, 16)
	for i := range prices {
		if i < 8 {
			prices[i] = 20
		} else {
			prices[i] = 100
		}
	}
	f.req.MarketPrices.DayAhead = prices
	f.req.MarketPrices.AfrrEnergyNeg = flatSeries(16, 0)
	f.req.MarketPrices.Fcr = flatSeries(1, 0)
	f.req.MarketPrices.AfrrCapacityPos = flatSeries(1, 0)
	f.req.MarketPrices.AfrrCapacityNeg = flatSeries(1, 0)
	b := f.build(t, api.ModelI)

	sol, err := milp.Solve(context.Background(), b.Problem, milp.Limits{WallClock: 30 * time.Second, MIPGap: 0.01})
	if err != nil {
		t.Fatalf("milp.Solve: %v", err)
	}
	if sol.Status != milp.Optimal && sol.Status != milp.Feasible {
		t.Fatalf("Status = %v, want Optimal or Feasible", sol.Status)
	}
	if sol.ObjectiveValue <= 0 {
		t.Fatalf("ObjectiveValue = %f, want > 0 (spread is profitable)", sol.ObjectiveValue)
	}

	discharged := false
	for tt := 8; tt < 16; tt++ {
		if sol.Values[b.PDis[tt]] > 1e-3 {
			discharged = true
			break
		}
	}
	if !discharged {
		t.Errorf("no discharge in the high-price window")
	}

	// SOC envelope holds at every step regardless of how hard the spread is
	// worked.
	for tt := 0; tt < 16; tt++ {
		soc := 0.0
		for _, idx := range b.ESocSeg[tt] {
			soc += sol.Values[idx]
		}
		if soc < -1e-6 || soc > 1000+1e-6 {
			t.Fatalf("aggregate SOC at step %d = %f kWh, outside [0, 1000]", tt, soc)
		}
	}
}

// TestSolve_ZeroPricesZeroAlpha_NoIncentiveToAct pins the round-trip law:
// with every price at zero and alpha zero there is nothing to earn, so the
// optimum does nothing and SOC stays at its initial value throughout.
func TestSolve_ZeroPricesZeroAlpha_NoIncentiveToAct(t *testing.T) {
	f := newFixture()
	f.req.Alpha = 0
	f.req.MarketPrices.DayAhead = flatSeries(16, 0)
	f.req.MarketPrices.AfrrEnergyNeg = flatSeries(16, 0)
	f.req.MarketPrices.Fcr = flatSeries(1, 0)
	f.req.MarketPrices.AfrrCapacityPos = flatSeries(1, 0)
	f.req.MarketPrices.AfrrCapacityNeg = flatSeries(1, 0)
	b := f.build(t, api.ModelI)

	sol, err := milp.Solve(context.Background(), b.Problem, milp.Limits{WallClock: 10 * time.Second})
	if err != nil {
		t.Fatalf("milp.Solve: %v", err)
	}
	if sol.Status != milp.Optimal {
		t.Fatalf("Status = %v, want Optimal", sol.Status)
	}
	if math.Abs(sol.ObjectiveValue) > 1e-6 {
		t.Errorf("ObjectiveValue = %f, want 0", sol.ObjectiveValue)
	}
	for tt := 0; tt < 16; tt++ {
		soc := 0.0
		for _, idx := range b.ESocSeg[tt] {
			soc += sol.Values[idx]
		}
		if math.Abs(soc-500) > 1e-3 {
			t.Fatalf("aggregate SOC at step %d = %f kWh, want 500 (initial, unchanged)", tt, soc)
		}
	}
}
