package model

import (
	"fmt"

	"github.com/fenwick-grid/bess-scheduler/internal/battery"
	"github.com/fenwick-grid/bess-scheduler/internal/config"
	"github.com/fenwick-grid/bess-scheduler/internal/degradation"
	"github.com/fenwick-grid/bess-scheduler/internal/marketdata"
	"github.com/fenwick-grid/bess-scheduler/internal/milp"
)

// bigM is P_max doubling as the big-M constant everywhere the totals
// binaries link a continuous power variable to a 0/1 market-participation
// flag. See the Big-M and LIFO epsilon design note: this is a tractability
// constant, not a physical quantity.
func bigM(bp *battery.Params) float64 { return bp.PMaxKW }

// socExprFunc returns the linear expression for aggregate SOC at step t —
// either the scalar Model I representation (never used here; segments
// always exist, numSegments==1 for Model I) or the sum of per-segment SOC
// variables for Model II/III. Re-emitting constraints against this
// expression (rather than a single variable) is what the reserve-energy
// constraints need once the
// aggregate becomes an expression — see the SOC-as-expression design note.
type socExprFunc func(t int) milp.Expr

// aggregateSOCFunc builds the per-step aggregate-SOC expression from the
// per-segment SOC variables. Model I has exactly one segment (spanning all
// of E_nom), so the "aggregate" degenerates to that single variable with no
// behavioral difference from a true scalar.
func (b *Build) aggregateSOCFunc() socExprFunc {
	return func(t int) milp.Expr {
		row := b.ESocSeg[t]
		e := make(milp.Expr, 0, len(row))
		for _, v := range row {
			e = append(e, milp.Term{Var: v, Coef: 1})
		}
		return e
	}
}

// addTotalLinkIdentity wires p_total_ch/p_total_dis to the DA + aFRR energy
// (+ self-consumed renewable, in III-Renew) power legs. The self-consumption
// leg joins the identity only when wantRenewable.
func (b *Build) addTotalLinkIdentity(n int, wantRenewable bool) {
	p := b.Problem
	for t := 0; t < n; t++ {
		chTerms := milp.Expr{
			{Var: b.PTotalCh[t], Coef: 1},
			{Var: b.PCh[t], Coef: -1},
			{Var: b.PAfrrNegE[t], Coef: -1},
		}
		if wantRenewable {
			chTerms = append(chTerms, milp.Term{Var: b.PSelf[t], Coef: -1})
		}
		p.AddConstraint(fmt.Sprintf("total_ch_identity_%d", t), chTerms, milp.EQ, 0)

		p.AddConstraint(fmt.Sprintf("total_dis_identity_%d", t), milp.Expr{
			{Var: b.PTotalDis[t], Coef: 1},
			{Var: b.PDis[t], Coef: -1},
			{Var: b.PAfrrPosE[t], Coef: -1},
		}, milp.EQ, 0)
	}
}

// addNonSimultaneity emits the big-M linking of totals to the charge/
// discharge binaries, plus the non-simultaneity cap on their sum.
func (b *Build) addNonSimultaneity(n int, bp *battery.Params) {
	p := b.Problem
	m := bigM(bp)
	for t := 0; t < n; t++ {
		p.AddConstraint(fmt.Sprintf("bigm_ch_%d", t), milp.Expr{
			{Var: b.PTotalCh[t], Coef: 1},
			{Var: b.YTotalCh[t], Coef: -m},
		}, milp.LE, 0)
		p.AddConstraint(fmt.Sprintf("bigm_dis_%d", t), milp.Expr{
			{Var: b.PTotalDis[t], Coef: 1},
			{Var: b.YTotalDis[t], Coef: -m},
		}, milp.LE, 0)
		p.AddConstraint(fmt.Sprintf("non_simultaneity_%d", t), milp.Expr{
			{Var: b.YTotalCh[t], Coef: 1},
			{Var: b.YTotalDis[t], Coef: 1},
		}, milp.LE, 1)
	}
}

// addCoOptimizationLimits caps co-optimized power: at every step, total discharge (resp.
// charge) power plus the reserved FCR/aFRR-capacity headroom of the
// covering block cannot exceed P_max. The factor 1000 converts the
// capacity bids from MW to kW.
func (b *Build) addCoOptimizationLimits(n int, bp *battery.Params) {
	p := b.Problem
	for t := 0; t < n; t++ {
		bl := b.Idx.BlockID[t]
		p.AddConstraint(fmt.Sprintf("cooptim_dis_%d", t), milp.Expr{
			{Var: b.PTotalDis[t], Coef: 1},
			{Var: b.CFcr[bl], Coef: 1000},
			{Var: b.CAfrrPos[bl], Coef: 1000},
		}, milp.LE, bp.PMaxKW)
		p.AddConstraint(fmt.Sprintf("cooptim_ch_%d", t), milp.Expr{
			{Var: b.PTotalCh[t], Coef: 1},
			{Var: b.CFcr[bl], Coef: 1000},
			{Var: b.CAfrrNeg[bl], Coef: 1000},
		}, milp.LE, bp.PMaxKW)
	}
}

// addReserveConstraints emits the reserve-energy rows: the battery must hold enough headroom (in
// either direction) to deliver any reserved FCR/aFRR capacity for the
// activation duration tauHours, at the one-way efficiency of the relevant
// leg (discharge efficiency for upward, charge efficiency for downward). socAt is re-emitted against the aggregate-SOC expression
// (per the SOC-as-expression design note) rather than a single variable,
// so this same function serves Model I (single segment) and Model II/III
// (stacked-tank sum) alike.
func (b *Build) addReserveConstraints(n int, bp *battery.Params, cfg *config.Config, socAt socExprFunc) {
	p := b.Problem
	socMinKWh := bp.SOCMin * bp.ENomKWh
	socMaxKWh := bp.SOCMax * bp.ENomKWh
	for t := 0; t < n; t++ {
		bl := b.Idx.BlockID[t]

		// upward: (1000*c_fcr + 1000*c_afrr_pos)*tau/eta_dis <= e_soc[t] - SOC_min*E_nom
		up := socAt(t)
		up = append(up, milp.Term{Var: b.CFcr[bl], Coef: -1000 * tauHours / bp.EtaDis})
		up = append(up, milp.Term{Var: b.CAfrrPos[bl], Coef: -1000 * tauHours / bp.EtaDis})
		p.AddConstraint(fmt.Sprintf("reserve_up_%d", t), up, milp.GE, socMinKWh)

		// downward: (1000*c_fcr + 1000*c_afrr_neg)*tau*eta_ch <= SOC_max*E_nom - e_soc[t]
		down := socAt(t)
		for i := range down {
			down[i].Coef = -down[i].Coef
		}
		down = append(down, milp.Term{Var: b.CFcr[bl], Coef: -1000 * tauHours * bp.EtaCh})
		down = append(down, milp.Term{Var: b.CAfrrNeg[bl], Coef: -1000 * tauHours * bp.EtaCh})
		p.AddConstraint(fmt.Sprintf("reserve_down_%d", t), down, milp.GE, -socMaxKWh)
	}
}

// addASExclusivity allows at most one of FCR/aFRR+/aFRR- to be active
// per block.
func (b *Build) addASExclusivity(nb int) {
	p := b.Problem
	for bl := 0; bl < nb; bl++ {
		p.AddConstraint(fmt.Sprintf("as_exclusivity_%d", bl), milp.Expr{
			{Var: b.YFcr[bl], Coef: 1},
			{Var: b.YAfrrPos[bl], Coef: 1},
			{Var: b.YAfrrNeg[bl], Coef: 1},
		}, milp.LE, 1)
	}
}

// addCrossMarketExclusivity ties step binaries to block binaries: a step cannot be discharging (into
// DA/aFRR-energy) while its block also commits FCR or aFRR- capacity
// (symmetrically for charging vs. FCR/aFRR+).
func (b *Build) addCrossMarketExclusivity(n int) {
	p := b.Problem
	for t := 0; t < n; t++ {
		bl := b.Idx.BlockID[t]
		p.AddConstraint(fmt.Sprintf("cross_market_dis_%d", t), milp.Expr{
			{Var: b.YTotalDis[t], Coef: 1},
			{Var: b.YFcr[bl], Coef: 1},
			{Var: b.YAfrrNeg[bl], Coef: 1},
		}, milp.LE, 1)
		p.AddConstraint(fmt.Sprintf("cross_market_ch_%d", t), milp.Expr{
			{Var: b.YTotalCh[t], Coef: 1},
			{Var: b.YFcr[bl], Coef: 1},
			{Var: b.YAfrrPos[bl], Coef: 1},
		}, milp.LE, 1)
	}
}

// addMinBidConstraints forces capacity bids to be either zero or at least
// MinBid, linked through the block binary. DA and aFRR-energy MinBid are
// intentionally not enforced (see the MinBid discipline design note).
func (b *Build) addMinBidConstraints(nb int, bp *battery.Params) {
	p := b.Problem
	capUB := bp.PMaxKW / 1000
	link := func(label string, c, y int, minBid float64) {
		p.AddConstraint(fmt.Sprintf("minbid_lo_%s", label), milp.Expr{
			{Var: c, Coef: 1},
			{Var: y, Coef: -minBid},
		}, milp.GE, 0)
		p.AddConstraint(fmt.Sprintf("minbid_hi_%s", label), milp.Expr{
			{Var: c, Coef: 1},
			{Var: y, Coef: -capUB},
		}, milp.LE, 0)
	}
	for bl := 0; bl < nb; bl++ {
		link(fmt.Sprintf("fcr_%d", bl), b.CFcr[bl], b.YFcr[bl], minBidFcrMW)
		link(fmt.Sprintf("afrr_pos_%d", bl), b.CAfrrPos[bl], b.YAfrrPos[bl], minBidAfrrMW)
		link(fmt.Sprintf("afrr_neg_%d", bl), b.CAfrrNeg[bl], b.YAfrrNeg[bl], minBidAfrrMW)
	}
}

// addASReservationCap bounds total reservation: the sum of all three AS capacity bids in a
// block cannot exceed max_as_ratio * P_max (in MW). Disabled (no-op) when
// the ratio is configured at 1.0 — the co-optimization limits already bound
// each leg individually at that point.
func (b *Build) addASReservationCap(nb int, bp *battery.Params, cfg *config.Config) {
	if cfg.MaxASRatio >= 1.0 {
		return
	}
	p := b.Problem
	cap := cfg.MaxASRatio * bp.PMaxKW / 1000
	for bl := 0; bl < nb; bl++ {
		p.AddConstraint(fmt.Sprintf("as_reservation_cap_%d", bl), milp.Expr{
			{Var: b.CFcr[bl], Coef: 1},
			{Var: b.CAfrrPos[bl], Coef: 1},
			{Var: b.CAfrrNeg[bl], Coef: 1},
		}, milp.LE, cap)
	}
}

// addSOCDynamics emits the energy balance per segment: segment j's SOC evolves by
// its own charge/discharge split, scaled by efficiency and Delta. Segment 0
// (and, for Model I, the single segment) is initialized top-down per the
// stacked-tank initial-fill rule; segments beyond the one holding
// E_soc_init start empty.
func (b *Build) addSOCDynamics(n, numSegments int, bp *battery.Params) {
	p := b.Problem
	eSeg := bp.ENomKWh / float64(numSegments)
	if b.Degradation != nil {
		eSeg = b.Degradation.Cyclic.ESegKWh
	}

	initFill := make([]float64, numSegments)
	remaining := bp.ESocInit
	for j := 0; j < numSegments; j++ {
		fill := remaining
		if fill > eSeg {
			fill = eSeg
		}
		if fill < 0 {
			fill = 0
		}
		initFill[j] = fill
		remaining -= fill
	}

	for j := 0; j < numSegments; j++ {
		for t := 0; t < n; t++ {
			expr := milp.Expr{
				{Var: b.ESocSeg[t][j], Coef: 1},
				{Var: b.pChSeg[t][j], Coef: -bp.EtaCh * dtHours},
				{Var: b.pDisSeg[t][j], Coef: dtHours / bp.EtaDis},
			}
			rhs := 0.0
			if t == 0 {
				rhs = initFill[j]
			} else {
				expr = append(expr, milp.Term{Var: b.ESocSeg[t-1][j], Coef: -1})
			}
			p.AddConstraint(fmt.Sprintf("soc_dynamics_%d_%d", t, j), expr, milp.EQ, rhs)
		}

		// p_ch_seg/p_dis_seg aggregate into p_total_ch/p_total_dis; those
		// rows are emitted once per step in the separate loop below.
	}

	for t := 0; t < n; t++ {
		chExpr := make(milp.Expr, 0, numSegments+1)
		chExpr = append(chExpr, milp.Term{Var: b.PTotalCh[t], Coef: -1})
		disExpr := make(milp.Expr, 0, numSegments+1)
		disExpr = append(disExpr, milp.Term{Var: b.PTotalDis[t], Coef: -1})
		for j := 0; j < numSegments; j++ {
			chExpr = append(chExpr, milp.Term{Var: b.pChSeg[t][j], Coef: 1})
			disExpr = append(disExpr, milp.Term{Var: b.pDisSeg[t][j], Coef: 1})
		}
		p.AddConstraint(fmt.Sprintf("seg_ch_aggregation_%d", t), chExpr, milp.EQ, 0)
		p.AddConstraint(fmt.Sprintf("seg_dis_aggregation_%d", t), disExpr, milp.EQ, 0)
	}
}

// addStackedTankDiscipline emits the stacked-tank ordering and LIFO
// fullness constraints for Model II/III. epsilon (lifo_epsilon_kwh) is a
// tractability knob, not a physical quantity — see the Big-M/LIFO design
// note.
func (b *Build) addStackedTankDiscipline(n, numSegments int, degr *degradation.Params, cfg *config.Config, bp *battery.Params) {
	p := b.Problem
	eSeg := degr.Cyclic.ESegKWh
	eps := degr.Cyclic.LifoEpsilon

	for t := 0; t < n; t++ {
		for j := 0; j < numSegments-1; j++ {
			// Stacked-tank ordering: e_soc_j[t,j] >= e_soc_j[t,j+1]
			p.AddConstraint(fmt.Sprintf("stack_order_%d_%d", t, j), milp.Expr{
				{Var: b.ESocSeg[t][j], Coef: 1},
				{Var: b.ESocSeg[t][j+1], Coef: -1},
			}, milp.GE, 0)
		}
		for j := 0; j < numSegments; j++ {
			// z_seg bounds segment occupancy: e_soc_j[t,j] <= E_seg * z_seg[t,j]
			p.AddConstraint(fmt.Sprintf("lifo_cap_%d_%d", t, j), milp.Expr{
				{Var: b.ESocSeg[t][j], Coef: 1},
				{Var: b.ZSeg[t][j], Coef: -eSeg},
			}, milp.LE, 0)
			if j >= 1 {
				// LIFO fullness: e_soc_j[t,j-1] >= (E_seg - eps) * z_seg[t,j]
				p.AddConstraint(fmt.Sprintf("lifo_fullness_%d_%d", t, j), milp.Expr{
					{Var: b.ESocSeg[t][j-1], Coef: 1},
					{Var: b.ZSeg[t][j], Coef: -(eSeg - eps)},
				}, milp.GE, 0)
			}
			if cfg.RequireSequentialSegmentActivation {
				// Optional strict mode: segment power is gated by its own
				// activation binary. Off by default — the ordering/LIFO
				// constraints already produce near-sequential filling at
				// much lower solve-time cost (~8x, per the component design).
				p.AddConstraint(fmt.Sprintf("strict_ch_%d_%d", t, j), milp.Expr{
					{Var: b.pChSeg[t][j], Coef: 1},
					{Var: b.ZSeg[t][j], Coef: -bp.PMaxKW},
				}, milp.LE, 0)
				p.AddConstraint(fmt.Sprintf("strict_dis_%d_%d", t, j), milp.Expr{
					{Var: b.pDisSeg[t][j], Coef: 1},
					{Var: b.ZSeg[t][j], Coef: -bp.PMaxKW},
				}, milp.LE, 0)
			}
		}
	}
}

// addCalendarAnchoring is the Model III SOS2 block: the weights sum to one,
// the aggregate SOC anchors to the weighted breakpoint SOC, and the
// interpolated calendar cost expression is recorded for the objective.
func (b *Build) addCalendarAnchoring(n int, degr *degradation.Params) {
	p := b.Problem
	bps := degr.Calendar.Breakpoints
	for t := 0; t < n; t++ {
		sumExpr := make(milp.Expr, 0, len(bps))
		for i := range bps {
			sumExpr = append(sumExpr, milp.Term{Var: b.LambdaCal[t][i], Coef: 1})
		}
		p.AddConstraint(fmt.Sprintf("sos2_weight_sum_%d", t), sumExpr, milp.EQ, 1)

		anchor := make(milp.Expr, 0, len(b.ESocSeg[t])+len(bps))
		for _, v := range b.ESocSeg[t] {
			anchor = append(anchor, milp.Term{Var: v, Coef: 1})
		}
		for i, pt := range bps {
			anchor = append(anchor, milp.Term{Var: b.LambdaCal[t][i], Coef: -pt.SOCKWh})
		}
		p.AddConstraint(fmt.Sprintf("sos2_soc_anchor_%d", t), anchor, milp.EQ, 0)
	}
}

// addRenewableBalance requires generation to split exactly into
// self-consumption, export, and curtailment.
func (b *Build) addRenewableBalance(n int, tbl *marketdata.Table) {
	p := b.Problem
	for t := 0; t < n; t++ {
		p.AddConstraint(fmt.Sprintf("renewable_balance_%d", t), milp.Expr{
			{Var: b.PSelf[t], Coef: 1},
			{Var: b.PExport[t], Coef: 1},
			{Var: b.PCurtail[t], Coef: 1},
		}, milp.EQ, tbl.RenewableForecastKW[t])
	}
}
