package model

import (
	"math"

	"github.com/fenwick-grid/bess-scheduler/internal/battery"
	"github.com/fenwick-grid/bess-scheduler/internal/degradation"
	"github.com/fenwick-grid/bess-scheduler/internal/marketdata"
	"github.com/fenwick-grid/bess-scheduler/internal/milp"
)

// baseObjective assembles the Model I objective terms: DA arbitrage, aFRR
// energy revenue (additive per the spec's codified convention — see the
// aFRR- energy revenue sign design note), and AS capacity revenue. Prices
// are converted from EUR/MWh (DA, aFRR energy) or EUR/MW-per-block
// (capacity; already includes block duration, never multiply by 4h) into
// the kW/EUR units the power variables use.
func (b *Build) baseObjective(n, nb int, tbl *marketdata.Table, bp *battery.Params) milp.Expr {
	var obj milp.Expr

	for t := 0; t < n; t++ {
		daCoef := tbl.PriceDayAhead[t] / 1000 * dtHours
		obj = append(obj, milp.Term{Var: b.PDis[t], Coef: daCoef})
		obj = append(obj, milp.Term{Var: b.PCh[t], Coef: -daCoef})

		if !math.IsNaN(tbl.PriceAfrrEnergyPos[t]) {
			coef := tbl.PriceAfrrEnergyPos[t] / 1000 * tbl.WAfrrPos[t] * dtHours
			obj = append(obj, milp.Term{Var: b.PAfrrPosE[t], Coef: coef})
		}
		if !math.IsNaN(tbl.PriceAfrrEnergyNeg[t]) {
			coef := tbl.PriceAfrrEnergyNeg[t] / 1000 * tbl.WAfrrNeg[t] * dtHours
			obj = append(obj, milp.Term{Var: b.PAfrrNegE[t], Coef: coef})
		}
	}

	for bl := 0; bl < nb; bl++ {
		obj = append(obj, milp.Term{Var: b.CFcr[bl], Coef: tbl.PriceFcr[bl]})
		obj = append(obj, milp.Term{Var: b.CAfrrPos[bl], Coef: tbl.PriceAfrrPos[bl]})
		obj = append(obj, milp.Term{Var: b.CAfrrNeg[bl], Coef: tbl.PriceAfrrNeg[bl]})
	}

	return obj
}

// cyclicCostTerms is the Model II degradation subtraction: -alpha * sum_t
// sum_j c_cost[j] * (p_dis_seg[t,j]/eta_dis) * Delta. Charging is free of
// cyclic cost in this formulation: only discharged (exported) throughput
// wears the cell, so the marginal cost is charged per unit delivered.
func (b *Build) cyclicCostTerms(n, numSegments int, degr *degradation.Params, bp *battery.Params) milp.Expr {
	var obj milp.Expr
	alpha := degr.Cyclic.Alpha
	if alpha == 0 {
		return obj
	}
	for t := 0; t < n; t++ {
		for j := 0; j < numSegments; j++ {
			coef := -alpha * degr.Cyclic.CostPerKWh[j] / bp.EtaDis * dtHours
			obj = append(obj, milp.Term{Var: b.pDisSeg[t][j], Coef: coef})
		}
	}
	return obj
}

// calendarCostTerms is the Model III degradation subtraction: -alpha *
// sum_t c_cal_cost[t] * Delta, where c_cal_cost[t] is the SOS2-interpolated
// EUR/hour cost at the step's aggregate SOC.
func (b *Build) calendarCostTerms(n int, degr *degradation.Params) milp.Expr {
	var obj milp.Expr
	alpha := degr.Calendar.Alpha
	if alpha == 0 {
		return obj
	}
	bps := degr.Calendar.Breakpoints
	for t := 0; t < n; t++ {
		for i, pt := range bps {
			coef := -alpha * pt.Cost * dtHours
			if coef == 0 {
				continue
			}
			obj = append(obj, milp.Term{Var: b.LambdaCal[t][i], Coef: coef})
		}
	}
	return obj
}

// renewableExportTerms is the Model III-Renew objective gain: the DA price
// applied to exported renewable power. Curtailment and self-consumption
// contribute no direct objective term — self-consumption's value shows up
// indirectly through the avoided p_ch/segment throughput it displaces.
func (b *Build) renewableExportTerms(n int, tbl *marketdata.Table) milp.Expr {
	var obj milp.Expr
	for t := 0; t < n; t++ {
		coef := tbl.PriceDayAhead[t] / 1000 * dtHours
		obj = append(obj, milp.Term{Var: b.PExport[t], Coef: coef})
	}
	return obj
}
