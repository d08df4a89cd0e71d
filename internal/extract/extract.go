// Package extract reads the primal solution of a solved MILP instance back
// into the language-neutral OptimizationResult the external interface
// contract defines: named profit/cost expressions, the per-step power and
// SOC trajectory, the derived charge/discharge/idle schedule, and the
// renewable utilization summary.
package extract

import (
	"math"
	"time"

	"github.com/fenwick-grid/bess-scheduler/internal/api"
	"github.com/fenwick-grid/bess-scheduler/internal/model"
	"github.com/fenwick-grid/bess-scheduler/internal/solver"
	"github.com/fenwick-grid/bess-scheduler/internal/timeindex"
)

// powerEpsKW is the magnitude threshold below which a power variable is
// treated as zero for schedule classification purposes, per the component
// design's 1e-3 kW threshold.
const powerEpsKW = 1e-3

const dtHours = float64(timeindex.Delta) / float64(time.Hour)

// Extract reads outcome's primal solution through b's variable-index
// bookkeeping. If the solve did not produce a usable incumbent (Infeasible,
// Error, or TimeLimit with no incumbent) it returns an empty schedule and
// the diagnostic status — it never raises, per the error-handling
// propagation policy.
func Extract(b *model.Build, outcome *solver.Outcome) *api.OptimizationResult {
	res := &api.OptimizationResult{
		Status:           outcome.Status,
		SolverName:       outcome.SolverName,
		SolveTimeSeconds: outcome.WallClock.Seconds(),
		NumVariables:     b.Problem.NumVars(),
		NumConstraints:   b.Problem.NumConstraints(),
	}

	if outcome.Solution == nil {
		return res
	}
	switch outcome.Status {
	case api.StatusOptimal, api.StatusFeasible:
	default:
		// Infeasible, timeout-with-no-incumbent, or solver error: empty
		// schedule, diagnostic status, no panic.
		return res
	}

	vals := outcome.Solution.Values
	v := func(idx int) float64 { return vals[idx] }

	n := b.Idx.NumSteps()
	tbl := b.Table
	bp := b.Battery

	var profitDA, profitAfrrEnergy, profitAS, profitRenewExport float64
	var rawCyclicCost, rawCalendarCost float64

	for t := 0; t < n; t++ {
		daCoef := tbl.PriceDayAhead[t] / 1000 * dtHours
		profitDA += daCoef * (v(b.PDis[t]) - v(b.PCh[t]))

		if !math.IsNaN(tbl.PriceAfrrEnergyPos[t]) {
			profitAfrrEnergy += tbl.PriceAfrrEnergyPos[t] / 1000 * tbl.WAfrrPos[t] * dtHours * v(b.PAfrrPosE[t])
		}
		if !math.IsNaN(tbl.PriceAfrrEnergyNeg[t]) {
			profitAfrrEnergy += tbl.PriceAfrrEnergyNeg[t] / 1000 * tbl.WAfrrNeg[t] * dtHours * v(b.PAfrrNegE[t])
		}

		if b.Degradation != nil {
			for j := 0; j < b.NumSegments; j++ {
				rawCyclicCost += b.Degradation.Cyclic.CostPerKWh[j] / bp.EtaDis * dtHours * v(b.PDisSegAt(t, j))
			}
		}
		if b.LambdaCal != nil {
			for i, pt := range b.Degradation.Calendar.Breakpoints {
				rawCalendarCost += pt.Cost * dtHours * v(b.LambdaCal[t][i])
			}
		}
		if b.HasRenewable {
			profitRenewExport += daCoef * v(b.PExport[t])
		}
	}

	for bl := 0; bl < b.Idx.NumBlocks; bl++ {
		profitAS += tbl.PriceFcr[bl]*v(b.CFcr[bl]) + tbl.PriceAfrrPos[bl]*v(b.CAfrrPos[bl]) + tbl.PriceAfrrNeg[bl]*v(b.CAfrrNeg[bl])
	}

	degradationCost := rawCyclicCost + rawCalendarCost
	revenueTotal := profitDA + profitAfrrEnergy + profitAS + profitRenewExport

	res.ObjectiveValue = outcome.Solution.ObjectiveValue
	// net_profit uses the true (unweighted) degradation cost rather than
	// alpha's risk-weighted figure baked into objective_value: alpha tunes
	// how aggressively the dispatch avoids cycling, it does not change
	// what a cycle actually costs.
	res.NetProfit = revenueTotal - degradationCost
	res.RevenueBreakdown = api.RevenueBreakdown{
		DA:              profitDA,
		AfrrEnergy:      profitAfrrEnergy,
		Fcr:             profitAS,
		RenewableExport: profitRenewExport,
	}
	res.CyclicAgingCost = rawCyclicCost
	res.CalendarAgingCost = rawCalendarCost
	res.DegradationCost = degradationCost

	res.Schedule = make([]api.ScheduleEntry, n)
	res.SOCTrajectory = make([]float64, n)

	var totalGen, totalSelf, totalExport, totalCurtail float64

	for t := 0; t < n; t++ {
		pCh, pDis := v(b.PCh[t]), v(b.PDis[t])

		action := "idle"
		powerKW := 0.0
		switch {
		case pDis > powerEpsKW:
			action = "discharge"
			powerKW = pDis
		case pCh > powerEpsKW:
			action = "charge"
			powerKW = pCh
		}

		market := classifyMarket(b, v, t, pCh, pDis)

		socSum := 0.0
		for _, idx := range b.ESocSeg[t] {
			socSum += v(idx)
		}
		socAfter := socSum / bp.ENomKWh
		if socAfter < 0 {
			socAfter = 0
		}
		if socAfter > 1 {
			socAfter = 1
		}

		entry := api.ScheduleEntry{
			Timestamp: b.Idx.Timestamps[t],
			Action:    action,
			PowerKW:   powerKW,
			Market:    market,
			SOCAfter:  socAfter,
		}

		if b.HasRenewable {
			self, export, curtail := v(b.PSelf[t]), v(b.PExport[t]), v(b.PCurtail[t])
			totalGen += tbl.RenewableForecastKW[t] * dtHours
			totalSelf += self * dtHours
			totalExport += export * dtHours
			totalCurtail += curtail * dtHours

			renewAction := renewableActionFor(self, export, curtail)
			if renewAction != "" {
				ra := renewAction
				power := selectRenewablePower(renewAction, self, export, curtail)
				entry.RenewableAction = &ra
				entry.RenewablePowerKW = &power
			}
		}

		res.Schedule[t] = entry
		res.SOCTrajectory[t] = socAfter
	}

	if b.HasRenewable {
		rate := 0.0
		if totalGen > 0 {
			rate = (totalSelf + totalExport) / totalGen
		}
		res.RenewableUtilization = api.RenewableUtilization{
			TotalGenKWh: totalGen,
			SelfKWh:     totalSelf,
			ExportKWh:   totalExport,
			CurtailKWh:  totalCurtail,
			Rate:        rate,
		}
	}

	res.Diagnostics = append(res.Diagnostics, tbl.Diagnostics...)

	return res
}

func classifyMarket(b *model.Build, v func(int) float64, t int, pCh, pDis float64) string {
	if v(b.PAfrrPosE[t]) > powerEpsKW || v(b.PAfrrNegE[t]) > powerEpsKW {
		return "afrr_energy"
	}
	if pCh > powerEpsKW || pDis > powerEpsKW {
		return "da"
	}
	bl := b.Idx.BlockID[t]
	if v(b.CFcr[bl])*1000 > powerEpsKW {
		return "fcr"
	}
	if v(b.CAfrrPos[bl])*1000 > powerEpsKW || v(b.CAfrrNeg[bl])*1000 > powerEpsKW {
		return "afrr_cap"
	}
	return "da"
}

func renewableActionFor(self, export, curtail float64) string {
	switch {
	case self >= export && self >= curtail && self > powerEpsKW:
		return "self_consume"
	case export >= self && export >= curtail && export > powerEpsKW:
		return "export"
	case curtail > powerEpsKW:
		return "curtail"
	default:
		return ""
	}
}

func selectRenewablePower(action string, self, export, curtail float64) float64 {
	switch action {
	case "self_consume":
		return self
	case "export":
		return export
	default:
		return curtail
	}
}
