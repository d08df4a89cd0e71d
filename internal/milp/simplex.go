package milp

import (
	"fmt"
	"math"
)

const simplexEpsilon = 1e-7
const maxSimplexIterations = 50000

// lpResult is the outcome of solving one LP relaxation (bounds already
// resolved — branch-and-bound tightens bounds per node before calling this).
type lpResult struct {
	feasible   bool
	unbounded  bool
	values     []float64 // length p.NumVars(), original (unshifted) units
	objective  float64   // in the problem's own Maximize/minimize sense
}

// rowSpec is one linear row in shifted-variable space (x' = x - lb), already
// normalized to a non-negative RHS.
type rowSpec struct {
	coeffs map[int]float64
	rel    Relation
	rhs    float64
}

// solveLP solves the LP relaxation of p with the given per-variable bound
// overrides (used by branch-and-bound to fix/tighten variables for one
// search node). bounds not present in overrides use the variable's own
// LB/UB.
func solveLP(p *Problem, overrides map[int][2]float64) (*lpResult, error) {
	n := p.NumVars()
	lb := make([]float64, n)
	ub := make([]float64, n)
	for v, vr := range p.Vars {
		lb[v], ub[v] = vr.LB, vr.UB
		if ov, ok := overrides[v]; ok {
			lb[v], ub[v] = ov[0], ov[1]
		}
		if ub[v] < lb[v]-simplexEpsilon {
			return &lpResult{feasible: false}, nil
		}
	}

	rows, err := buildRows(p, lb, ub)
	if err != nil {
		return nil, err
	}

	nStruct := n
	nCols := nStruct
	type rowCols struct {
		slackOrSurplus int
		artificial     int
	}
	colForRow := make([]rowCols, len(rows))
	basis := make([]int, len(rows))
	artificial := make(map[int]bool)

	for i, r := range rows {
		switch r.rel {
		case LE:
			col := nCols
			nCols++
			colForRow[i].slackOrSurplus = col
			colForRow[i].artificial = -1
			basis[i] = col
		case GE:
			surplus := nCols
			nCols++
			art := nCols
			nCols++
			colForRow[i].slackOrSurplus = surplus
			colForRow[i].artificial = art
			basis[i] = art
			artificial[art] = true
		case EQ:
			art := nCols
			nCols++
			colForRow[i].slackOrSurplus = -1
			colForRow[i].artificial = art
			basis[i] = art
			artificial[art] = true
		}
	}

	nRows := len(rows)
	tableau := make([][]float64, nRows)
	for i := range tableau {
		tableau[i] = make([]float64, nCols+1)
		for v, c := range rows[i].coeffs {
			tableau[i][v] = c
		}
		switch rows[i].rel {
		case LE:
			tableau[i][colForRow[i].slackOrSurplus] = 1
		case GE:
			tableau[i][colForRow[i].slackOrSurplus] = -1
			tableau[i][colForRow[i].artificial] = 1
		case EQ:
			tableau[i][colForRow[i].artificial] = 1
		}
		tableau[i][nCols] = rows[i].rhs
	}

	if len(artificial) > 0 {
		cost1 := make([]float64, nCols)
		for col := range artificial {
			cost1[col] = 1
		}
		excluded := make(map[int]bool)
		obj1, unbounded, err := simplexIterate(tableau, basis, cost1, nRows, nCols, excluded)
		if err != nil {
			return nil, err
		}
		if unbounded {
			// Phase 1 is bounded by construction (artificial costs are
			// non-negative and the feasible region for the auxiliary
			// problem is bounded below by 0); treat as a solver defect.
			return nil, fmt.Errorf("milp: phase 1 reported unbounded, which should not happen")
		}
		if obj1 > simplexEpsilon {
			return &lpResult{feasible: false}, nil
		}
	}

	cost2 := make([]float64, nCols)
	for _, t := range p.Objective {
		c := t.Coef
		if p.Maximize {
			c = -c
		}
		cost2[t.Var] += c
	}
	excluded2 := make(map[int]bool)
	for col := range artificial {
		excluded2[col] = true
	}
	obj2, unbounded, err := simplexIterate(tableau, basis, cost2, nRows, nCols, excluded2)
	if err != nil {
		return nil, err
	}
	if unbounded {
		return &lpResult{unbounded: true}, nil
	}

	xPrime := make([]float64, nStruct)
	for i, b := range basis {
		if b < nStruct {
			v := tableau[i][nCols]
			if v < 0 && v > -simplexEpsilon {
				v = 0
			}
			xPrime[b] = v
		}
	}

	values := make([]float64, nStruct)
	for v := 0; v < nStruct; v++ {
		values[v] = xPrime[v] + lb[v]
	}

	objective := obj2
	if p.Maximize {
		objective = -obj2
	}

	return &lpResult{feasible: true, values: values, objective: objective}, nil
}

// simplexIterate runs the tableau simplex to optimality for the given cost
// vector (minimization), using Bland's rule throughout to guarantee
// termination without cycling. tableau and basis are mutated in place.
func simplexIterate(tableau [][]float64, basis []int, cost []float64, nRows, nCols int, excluded map[int]bool) (objective float64, unbounded bool, err error) {
	for iter := 0; ; iter++ {
		if iter > maxSimplexIterations {
			return 0, false, fmt.Errorf("milp: simplex exceeded %d iterations without converging", maxSimplexIterations)
		}

		cB := make([]float64, nRows)
		for i, b := range basis {
			cB[i] = cost[b]
		}

		entering := -1
		for j := 0; j < nCols; j++ {
			if excluded[j] {
				continue
			}
			reduced := cost[j]
			for i := 0; i < nRows; i++ {
				if cB[i] == 0 {
					continue
				}
				reduced -= cB[i] * tableau[i][j]
			}
			if reduced < -simplexEpsilon {
				entering = j
				break // Bland's rule: smallest index with negative reduced cost
			}
		}
		if entering == -1 {
			break // optimal
		}

		leaving := -1
		bestRatio := math.Inf(1)
		for i := 0; i < nRows; i++ {
			a := tableau[i][entering]
			if a <= simplexEpsilon {
				continue
			}
			ratio := tableau[i][nCols] / a
			if ratio < bestRatio-simplexEpsilon {
				bestRatio = ratio
				leaving = i
			} else if ratio < bestRatio+simplexEpsilon && leaving != -1 && basis[i] < basis[leaving] {
				leaving = i // Bland's rule tie-break: smallest basic variable index
			}
		}
		if leaving == -1 {
			return 0, true, nil
		}

		pivot := tableau[leaving][entering]
		for j := 0; j <= nCols; j++ {
			tableau[leaving][j] /= pivot
		}
		for i := 0; i < nRows; i++ {
			if i == leaving {
				continue
			}
			factor := tableau[i][entering]
			if factor == 0 {
				continue
			}
			for j := 0; j <= nCols; j++ {
				tableau[i][j] -= factor * tableau[leaving][j]
			}
		}
		basis[leaving] = entering
	}

	obj := 0.0
	for i, b := range basis {
		obj += cost[b] * tableau[i][nCols]
	}
	return obj, false, nil
}

// buildRows lowers a Problem's constraints plus explicit upper-bound rows
// into shifted-variable (x' = x - lb), non-negative-RHS rowSpecs.
func buildRows(p *Problem, lb, ub []float64) ([]rowSpec, error) {
	var rows []rowSpec

	for _, c := range p.Constraints {
		coeffs := make(map[int]float64, len(c.Expr))
		rhs := c.RHS
		for _, t := range c.Expr {
			coeffs[t.Var] += t.Coef
			rhs -= t.Coef * lb[t.Var]
		}
		rel := c.Rel
		if rhs < 0 {
			for v := range coeffs {
				coeffs[v] = -coeffs[v]
			}
			rhs = -rhs
			switch rel {
			case LE:
				rel = GE
			case GE:
				rel = LE
			}
		}
		rows = append(rows, rowSpec{coeffs: coeffs, rel: rel, rhs: rhs})
	}

	for v := range p.Vars {
		width := ub[v] - lb[v]
		if math.IsInf(width, 1) {
			continue
		}
		rows = append(rows, rowSpec{
			coeffs: map[int]float64{v: 1},
			rel:    LE,
			rhs:    width,
		})
	}

	return rows, nil
}
