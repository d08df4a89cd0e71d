package milp

import (
	"context"
	"math"
	"time"
)

// Status is the termination outcome of one MILP solve.
type Status int

const (
	Optimal Status = iota
	Feasible
	Infeasible
	TimeLimit
	SolverError
)

// Limits bounds one solve attempt.
type Limits struct {
	WallClock time.Duration
	MIPGap    float64 // relative; 0 disables the gap-based early stop
}

// Solution is the result of one branch-and-bound search.
type Solution struct {
	Status         Status
	ObjectiveValue float64
	Values         []float64 // length len(Problem.Vars); zero-valued if !feasible
	WallClock      time.Duration
}

const integerTolerance = 1e-6

// node is one branch-and-bound search node: a set of tightened bound
// overrides relative to the problem's own variable bounds.
type node struct {
	overrides map[int][2]float64
}

func cloneOverrides(o map[int][2]float64) map[int][2]float64 {
	cp := make(map[int][2]float64, len(o)+1)
	for k, v := range o {
		cp[k] = v
	}
	return cp
}

// Solve runs branch-and-bound to (within the wall-clock budget) optimality
// over p's binary variables and SOS2 sets.
func Solve(ctx context.Context, p *Problem, limits Limits) (*Solution, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	deadline := start.Add(limits.WallClock)

	var best *Solution
	var bestObj float64
	haveIncumbent := false

	stack := []node{{overrides: map[int][2]float64{}}}

	hitTimeLimit := false

	for len(stack) > 0 {
		if ctx.Err() != nil || time.Now().After(deadline) {
			hitTimeLimit = true
			break
		}

		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		relaxed, err := solveLP(p, n.overrides)
		if err != nil {
			return &Solution{Status: SolverError, WallClock: time.Since(start)}, nil
		}
		if !relaxed.feasible || relaxed.unbounded {
			continue
		}

		// Bound: a relaxation that cannot beat the incumbent (accounting
		// for the requested MIP gap) is pruned without branching further.
		if haveIncumbent && !improves(relaxed.objective, bestObj, p.Maximize, limits.MIPGap) {
			continue
		}

		branchVar, fracOK := mostFractionalBinary(p, relaxed.values)
		sosName, sosVars, sosSplit, sosOK := firstViolatedSOS2(p, relaxed.values)

		switch {
		case fracOK:
			lo := node{overrides: cloneOverrides(n.overrides)}
			lo.overrides[branchVar] = [2]float64{0, 0}
			hi := node{overrides: cloneOverrides(n.overrides)}
			hi.overrides[branchVar] = [2]float64{1, 1}
			stack = append(stack, lo, hi)

		case sosOK:
			// Beale-Tomlin bisection: the split index itself stays free in
			// both branches so the pair straddling it is reachable from
			// either side.
			_ = sosName
			left := node{overrides: cloneOverrides(n.overrides)}
			for _, v := range sosVars[sosSplit+1:] {
				left.overrides[v] = [2]float64{0, 0}
			}
			right := node{overrides: cloneOverrides(n.overrides)}
			for _, v := range sosVars[:sosSplit] {
				right.overrides[v] = [2]float64{0, 0}
			}
			stack = append(stack, left, right)

		default:
			// Integer- and SOS2-feasible: a candidate incumbent.
			if !haveIncumbent || better(relaxed.objective, bestObj, p.Maximize) {
				bestObj = relaxed.objective
				haveIncumbent = true
				best = &Solution{
					Status:         Optimal,
					ObjectiveValue: relaxed.objective,
					Values:         relaxed.values,
				}
			}
		}
	}

	elapsed := time.Since(start)
	if best == nil {
		if hitTimeLimit {
			return &Solution{Status: TimeLimit, WallClock: elapsed}, nil
		}
		return &Solution{Status: Infeasible, WallClock: elapsed}, nil
	}
	best.WallClock = elapsed
	if hitTimeLimit {
		best.Status = Feasible
	}
	return best, nil
}

// better reports whether a is a strictly better objective than b under the
// problem's optimization sense.
func better(a, b float64, maximize bool) bool {
	if maximize {
		return a > b+1e-9
	}
	return a < b-1e-9
}

// improves reports whether a relaxation bound a could still beat incumbent
// b once the requested relative MIP gap is taken into account; used to
// prune nodes whose relaxation cannot possibly yield a materially better
// integer solution.
func improves(a, b float64, maximize bool, gap float64) bool {
	if gap <= 0 {
		return better(a, b, maximize) || math.Abs(a-b) < 1e-9
	}
	threshold := b * (1 + sign(maximize)*gap)
	if maximize {
		return a > threshold-1e-9
	}
	return a < threshold+1e-9
}

func sign(maximize bool) float64 {
	if maximize {
		return 1
	}
	return -1
}

// mostFractionalBinary finds the binary variable whose relaxed value is
// farthest from {0,1}; returns ok=false if every binary variable is already
// integral within tolerance.
func mostFractionalBinary(p *Problem, values []float64) (v int, ok bool) {
	bestDist := integerTolerance
	found := -1
	for i, vr := range p.Vars {
		if vr.Kind != Binary {
			continue
		}
		frac := values[i] - math.Floor(values[i])
		dist := math.Min(frac, 1-frac)
		if dist > bestDist {
			bestDist = dist
			found = i
		}
	}
	if found == -1 {
		return 0, false
	}
	return found, true
}

// firstViolatedSOS2 finds the first SOS2 set whose relaxed solution has
// more than two nonzero members, or two nonzero members that are not
// adjacent, and returns a Beale-Tomlin bisection split point.
func firstViolatedSOS2(p *Problem, values []float64) (name string, vars []int, split int, ok bool) {
	for _, s := range p.SOS2Sets {
		nz := make([]int, 0, 2)
		for i, v := range s.Vars {
			if math.Abs(values[v]) > integerTolerance {
				nz = append(nz, i)
			}
		}
		violated := false
		switch len(nz) {
		case 0, 1:
			violated = false
		case 2:
			if nz[1]-nz[0] != 1 {
				violated = true
			}
		default:
			violated = true
		}
		if !violated {
			continue
		}
		mid := len(s.Vars) / 2
		if mid < 1 {
			mid = 1
		}
		if mid > len(s.Vars)-1 {
			mid = len(s.Vars) - 1
		}
		return s.Name, s.Vars, mid, true
	}
	return "", nil, 0, false
}
