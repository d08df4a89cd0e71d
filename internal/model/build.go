// Package model builds the backend-neutral MILP instance for one solve. It
// is the only component that knows how the four model variants (I, II, III,
// III-Renew) differ; everything upstream (C1-C4) and downstream (C6-C8) is
// variant-agnostic.
//
// BuildModel never mutates a previously built Problem — every call constructs a
// fresh milp.Problem bound to exactly one time horizon and price table, even
// when called twice for the same model type. There is no cross-solve model
// cache here; that memoization, if wanted, belongs to the caller.
package model

import (
	"fmt"
	"math"

	"github.com/fenwick-grid/bess-scheduler/internal/api"
	"github.com/fenwick-grid/bess-scheduler/internal/battery"
	"github.com/fenwick-grid/bess-scheduler/internal/config"
	"github.com/fenwick-grid/bess-scheduler/internal/degradation"
	"github.com/fenwick-grid/bess-scheduler/internal/marketdata"
	"github.com/fenwick-grid/bess-scheduler/internal/milp"
	"github.com/fenwick-grid/bess-scheduler/internal/timeindex"
)

// dtHours is Delta expressed in hours, the unit every energy-balance
// constraint and profit term is scaled by.
const dtHours = float64(timeindex.Delta) / float64(3600_000_000_000)

// tauHours is the assumed reserve activation duration used by the
// energy-reserve constraints.
const tauHours = 0.25

// minBidFcrMW and minBidAfrrMW are the capacity-market minimum bid sizes.
// DA and aFRR-energy MinBid (0.1 MW) are intentionally not enforced; that
// would need per-step binaries.
const (
	minBidFcrMW   = 1.0
	minBidAfrrMW  = 1.0
)

// powerEps is the threshold below which a MinBid-style linkage is treated
// as numerically zero. No constraint in this package reads it; the
// extractor declares its own threshold of the same value (powerEpsKW).
const powerEps = 1e-3

// Build is the assembled MILP instance plus the variable-index bookkeeping
// the Solution Extractor (C7) needs to map primal values back onto the
// domain.
type Build struct {
	Problem     *milp.Problem
	ModelType   api.ModelType
	Idx         *timeindex.Index
	Table       *marketdata.Table
	Battery     *battery.Params
	Degradation *degradation.Params

	PCh, PDis            []int
	PAfrrPosE, PAfrrNegE []int
	PTotalCh, PTotalDis  []int
	YTotalCh, YTotalDis  []int

	CFcr, CAfrrPos, CAfrrNeg []int
	YFcr, YAfrrPos, YAfrrNeg []int

	// NumSegments is 1 for Model I (a single segment spanning all of
	// E_nom, with no LIFO/z_seg machinery) and Degradation.Cyclic.NumSegments
	// for Model II and above.
	NumSegments int
	ESocSeg     [][]int // [t][j]
	ZSeg        [][]int // [t][j]; nil for Model I

	// pChSeg/pDisSeg are the per-segment charge/discharge power splits.
	// Unexported: only PDisSegAt is needed outside this package (the
	// extractor's cyclic-cost recomputation), so only that accessor is
	// exported rather than the raw index slices.
	pChSeg, pDisSeg [][]int

	// NumBreakpoints is 0 unless calendar aging (Model III+) is active.
	NumBreakpoints int
	LambdaCal      [][]int // [t][i]; nil unless Model III+

	HasRenewable             bool
	PSelf, PExport, PCurtail []int
}

// BuildModel assembles the MILP instance for one solve. cfg supplies the
// co-optimization knobs (max_as_ratio, lifo_epsilon_kwh, segment activation
// strictness); degr must already have been loaded via degradation.Load for
// any variant at or above Model II.
func BuildModel(modelType api.ModelType, idx *timeindex.Index, tbl *marketdata.Table, bp *battery.Params, degr *degradation.Params, cfg *config.Config) (*Build, error) {
	switch modelType {
	case api.ModelI, api.ModelII, api.ModelIII, api.ModelIIIRenew:
	default:
		return nil, fmt.Errorf("%w: unknown model_type %q", api.ErrInvalidInput, modelType)
	}

	wantRenewable := modelType == api.ModelIIIRenew
	if wantRenewable && !tbl.HasRenewable {
		return nil, fmt.Errorf("%w: model_type %q requires a renewable forecast", api.ErrInvalidInput, modelType)
	}

	includeCyclic := modelType == api.ModelII || modelType == api.ModelIII || modelType == api.ModelIIIRenew
	includeCalendar := modelType == api.ModelIII || modelType == api.ModelIIIRenew

	n := idx.NumSteps()
	nb := idx.NumBlocks

	p := milp.NewProblem()
	b := &Build{
		Problem:   p,
		ModelType: modelType,
		Idx:       idx,
		Table:     tbl,
		Battery:   bp,
	}

	b.addCoreVars(n, nb, bp, tbl)

	numSegments := 1
	if includeCyclic {
		numSegments = degr.Cyclic.NumSegments
		b.Degradation = degr
	}
	b.NumSegments = numSegments
	b.addSegmentVars(n, numSegments, bp, includeCyclic, cfg)

	if includeCalendar {
		b.addCalendarVars(n, degr)
	}

	if wantRenewable {
		b.addRenewableVars(n, tbl)
	}

	b.addTotalLinkIdentity(n, wantRenewable)
	b.addNonSimultaneity(n, bp)
	b.addCoOptimizationLimits(n, bp)
	socExprAt := b.aggregateSOCFunc()
	b.addReserveConstraints(n, bp, cfg, socExprAt)
	b.addASExclusivity(nb)
	b.addCrossMarketExclusivity(n)
	b.addMinBidConstraints(nb, bp)
	b.addASReservationCap(nb, bp, cfg)

	b.addSOCDynamics(n, numSegments, bp)
	if numSegments > 1 {
		b.addStackedTankDiscipline(n, numSegments, degr, cfg, bp)
	}
	if includeCalendar {
		b.addCalendarAnchoring(n, degr)
	}
	if wantRenewable {
		b.addRenewableBalance(n, tbl)
	}

	obj := b.baseObjective(n, nb, tbl, bp)
	if includeCyclic {
		obj = append(obj, b.cyclicCostTerms(n, numSegments, degr, bp)...)
	}
	if includeCalendar {
		obj = append(obj, b.calendarCostTerms(n, degr)...)
	}
	if wantRenewable {
		obj = append(obj, b.renewableExportTerms(n, tbl)...)
	}
	p.SetObjective(obj, true)

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrConfiguration, err)
	}
	return b, nil
}

func (b *Build) addCoreVars(n, nb int, bp *battery.Params, tbl *marketdata.Table) {
	p := b.Problem
	b.PCh = make([]int, n)
	b.PDis = make([]int, n)
	b.PAfrrPosE = make([]int, n)
	b.PAfrrNegE = make([]int, n)
	b.PTotalCh = make([]int, n)
	b.PTotalDis = make([]int, n)
	b.YTotalCh = make([]int, n)
	b.YTotalDis = make([]int, n)

	for t := 0; t < n; t++ {
		b.PCh[t] = p.AddVar("p_ch", 0, bp.PMaxKW, milp.Continuous)
		b.PDis[t] = p.AddVar("p_dis", 0, bp.PMaxKW, milp.Continuous)

		posUB := bp.PMaxKW
		if math.IsNaN(tbl.PriceAfrrEnergyPos[t]) {
			posUB = 0 // market not activated this step
		}
		b.PAfrrPosE[t] = p.AddVar("p_afrr_pos_e", 0, posUB, milp.Continuous)

		negUB := bp.PMaxKW
		if math.IsNaN(tbl.PriceAfrrEnergyNeg[t]) {
			negUB = 0
		}
		b.PAfrrNegE[t] = p.AddVar("p_afrr_neg_e", 0, negUB, milp.Continuous)

		b.PTotalCh[t] = p.AddVar("p_total_ch", 0, bp.PMaxKW, milp.Continuous)
		b.PTotalDis[t] = p.AddVar("p_total_dis", 0, bp.PMaxKW, milp.Continuous)
		b.YTotalCh[t] = p.AddVar("y_total_ch", 0, 1, milp.Binary)
		b.YTotalDis[t] = p.AddVar("y_total_dis", 0, 1, milp.Binary)
	}

	capUB := bp.PMaxKW / 1000 // MW
	b.CFcr = make([]int, nb)
	b.CAfrrPos = make([]int, nb)
	b.CAfrrNeg = make([]int, nb)
	b.YFcr = make([]int, nb)
	b.YAfrrPos = make([]int, nb)
	b.YAfrrNeg = make([]int, nb)
	for bl := 0; bl < nb; bl++ {
		b.CFcr[bl] = p.AddVar("c_fcr", 0, capUB, milp.Continuous)
		b.CAfrrPos[bl] = p.AddVar("c_afrr_pos", 0, capUB, milp.Continuous)
		b.CAfrrNeg[bl] = p.AddVar("c_afrr_neg", 0, capUB, milp.Continuous)
		b.YFcr[bl] = p.AddVar("y_fcr", 0, 1, milp.Binary)
		b.YAfrrPos[bl] = p.AddVar("y_afrr_pos", 0, 1, milp.Binary)
		b.YAfrrNeg[bl] = p.AddVar("y_afrr_neg", 0, 1, milp.Binary)
	}
}

// addSegmentVars creates the stacked-tank segment SOC/power variables. For
// Model I, numSegments is 1 and no z_seg/LIFO machinery is created — the
// single segment behaves exactly like the scalar e_soc of the base model.
func (b *Build) addSegmentVars(n, numSegments int, bp *battery.Params, includeCyclic bool, cfg *config.Config) {
	p := b.Problem
	eSeg := bp.ENomKWh
	if includeCyclic {
		eSeg = b.Degradation.Cyclic.ESegKWh
	}

	b.ESocSeg = make([][]int, n)
	var pChSeg, pDisSeg [][]int
	pChSeg = make([][]int, n)
	pDisSeg = make([][]int, n)
	if includeCyclic {
		b.ZSeg = make([][]int, n)
	}

	for t := 0; t < n; t++ {
		b.ESocSeg[t] = make([]int, numSegments)
		pChSeg[t] = make([]int, numSegments)
		pDisSeg[t] = make([]int, numSegments)
		if includeCyclic {
			b.ZSeg[t] = make([]int, numSegments)
		}
		for j := 0; j < numSegments; j++ {
			b.ESocSeg[t][j] = p.AddVar("e_soc_seg", 0, eSeg, milp.Continuous)
			pChSeg[t][j] = p.AddVar("p_ch_seg", 0, bp.PMaxKW, milp.Continuous)
			pDisSeg[t][j] = p.AddVar("p_dis_seg", 0, bp.PMaxKW, milp.Continuous)
			if includeCyclic {
				b.ZSeg[t][j] = p.AddVar("z_seg", 0, 1, milp.Binary)
			}
		}
	}
	b.pChSeg = pChSeg
	b.pDisSeg = pDisSeg
}

// PDisSegAt returns the variable index of segment j's discharge power at
// step t, needed by the Solution Extractor to recompute the cyclic aging
// cost from the primal solution.
func (b *Build) PDisSegAt(t, j int) int { return b.pDisSeg[t][j] }

func (b *Build) addCalendarVars(n int, degr *degradation.Params) {
	p := b.Problem
	i := len(degr.Calendar.Breakpoints)
	b.NumBreakpoints = i
	b.LambdaCal = make([][]int, n)
	for t := 0; t < n; t++ {
		b.LambdaCal[t] = make([]int, i)
		for k := 0; k < i; k++ {
			b.LambdaCal[t][k] = p.AddVar("lambda_cal", 0, 1, milp.Continuous)
		}
		p.AddSOS2(fmt.Sprintf("sos2_cal_%d", t), b.LambdaCal[t])
	}
}

func (b *Build) addRenewableVars(n int, tbl *marketdata.Table) {
	p := b.Problem
	b.HasRenewable = true
	b.PSelf = make([]int, n)
	b.PExport = make([]int, n)
	b.PCurtail = make([]int, n)
	for t := 0; t < n; t++ {
		ub := tbl.RenewableForecastKW[t]
		if ub < 0 || math.IsNaN(ub) {
			ub = 0
		}
		b.PSelf[t] = p.AddVar("p_self", 0, ub, milp.Continuous)
		b.PExport[t] = p.AddVar("p_export", 0, ub, milp.Continuous)
		b.PCurtail[t] = p.AddVar("p_curtail", 0, ub, milp.Continuous)
	}
}
