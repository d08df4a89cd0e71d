package milp

import (
	"context"
	"math"
	"testing"
	"time"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestSolve_SimpleLP(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 0, 1000, Continuous)
	y := p.AddVar("y", 0, 1000, Continuous)
	p.AddConstraint("c1", Expr{{Var: x, Coef: 1}, {Var: y, Coef: 1}}, LE, 4)
	p.AddConstraint("c2", Expr{{Var: x, Coef: 1}, {Var: y, Coef: 3}}, LE, 6)
	p.SetObjective(Expr{{Var: x, Coef: 3}, {Var: y, Coef: 2}}, true)

	sol, err := Solve(context.Background(), p, Limits{WallClock: 5 * time.Second})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.Status != Optimal {
		t.Fatalf("Status = %v, want Optimal", sol.Status)
	}
	if !approxEqual(sol.ObjectiveValue, 12, 1e-4) {
		t.Errorf("ObjectiveValue = %f, want 12", sol.ObjectiveValue)
	}
	if !approxEqual(sol.Values[x], 4, 1e-4) || !approxEqual(sol.Values[y], 0, 1e-4) {
		t.Errorf("Values = (%f, %f), want (4, 0)", sol.Values[x], sol.Values[y])
	}
}

func TestSolve_BinaryKnapsack(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 0, 1, Binary)
	y := p.AddVar("y", 0, 1, Binary)
	p.AddConstraint("cap", Expr{{Var: x, Coef: 2}, {Var: y, Coef: 3}}, LE, 4)
	p.SetObjective(Expr{{Var: x, Coef: 5}, {Var: y, Coef: 4}}, true)

	sol, err := Solve(context.Background(), p, Limits{WallClock: 5 * time.Second})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.Status != Optimal {
		t.Fatalf("Status = %v, want Optimal", sol.Status)
	}
	if !approxEqual(sol.ObjectiveValue, 5, 1e-6) {
		t.Errorf("ObjectiveValue = %f, want 5", sol.ObjectiveValue)
	}
	if !approxEqual(sol.Values[x], 1, 1e-6) || !approxEqual(sol.Values[y], 0, 1e-6) {
		t.Errorf("Values = (%f, %f), want (1, 0)", sol.Values[x], sol.Values[y])
	}
}

func TestSolve_Infeasible(t *testing.T) {
	p := NewProblem()
	x := p.AddVar("x", 0, 1, Continuous)
	p.AddConstraint("lo", Expr{{Var: x, Coef: 1}}, GE, 2)
	p.SetObjective(Expr{{Var: x, Coef: 1}}, true)

	sol, err := Solve(context.Background(), p, Limits{WallClock: 5 * time.Second})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.Status != Infeasible {
		t.Fatalf("Status = %v, want Infeasible", sol.Status)
	}
}

func TestSolve_SOS2(t *testing.T) {
	p := NewProblem()
	vars := make([]int, 3)
	for i := range vars {
		vars[i] = p.AddVar("lam", 0, 1, Continuous)
	}
	// sum(lam) = 1, anchor = sum(lam_i * soc_i) with soc = [0, 5, 10];
	// minimizing anchor with SOS2 adjacency should park all weight at the
	// first breakpoint (anchor = 0).
	sum := Expr{}
	anchor := Expr{}
	socValues := []float64{0, 5, 10}
	for i, v := range vars {
		sum = append(sum, Term{Var: v, Coef: 1})
		anchor = append(anchor, Term{Var: v, Coef: socValues[i]})
	}
	p.AddConstraint("sum", sum, EQ, 1)
	p.AddSOS2("cal", vars)
	p.SetObjective(anchor, false) // minimize

	sol, err := Solve(context.Background(), p, Limits{WallClock: 5 * time.Second})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.Status != Optimal {
		t.Fatalf("Status = %v, want Optimal", sol.Status)
	}
	if !approxEqual(sol.ObjectiveValue, 0, 1e-4) {
		t.Errorf("ObjectiveValue = %f, want 0", sol.ObjectiveValue)
	}
	if !approxEqual(sol.Values[vars[0]], 1, 1e-4) {
		t.Errorf("Values[0] = %f, want 1", sol.Values[vars[0]])
	}
}
