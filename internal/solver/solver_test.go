package solver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fenwick-grid/bess-scheduler/internal/api"
	"github.com/fenwick-grid/bess-scheduler/internal/config"
	"github.com/fenwick-grid/bess-scheduler/internal/milp"
)

func trivialProblem() *milp.Problem {
	p := milp.NewProblem()
	x := p.AddVar("x", 0, 10, milp.Continuous)
	p.SetObjective(milp.Expr{{Var: x, Coef: 1}}, true)
	return p
}

func TestDriver_Solve_DefaultBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SolverWallClock = 5 * time.Second

	d := NewDriver()
	outcome, err := d.Solve(context.Background(), trivialProblem(), cfg)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if outcome.SolverName != "milp-bb" {
		t.Errorf("SolverName = %q, want milp-bb", outcome.SolverName)
	}
	if outcome.Status != api.StatusOptimal {
		t.Errorf("Status = %v, want Optimal", outcome.Status)
	}
	if outcome.Solution == nil || outcome.Solution.ObjectiveValue != 10 {
		t.Errorf("ObjectiveValue = %v, want 10", outcome.Solution)
	}
}

func TestDriver_Solve_UnknownOverrideIsConfigurationError(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SolverWallClock = 5 * time.Second
	cfg.SolverOverride = "gurobi"

	d := NewDriver()
	_, err := d.Solve(context.Background(), trivialProblem(), cfg)
	if !errors.Is(err, api.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestDriver_Solve_NoBackendsRegistered(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SolverWallClock = 5 * time.Second

	d := &Driver{}
	_, err := d.Solve(context.Background(), trivialProblem(), cfg)
	if !errors.Is(err, api.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		in   milp.Status
		want api.Status
	}{
		{milp.Optimal, api.StatusOptimal},
		{milp.Feasible, api.StatusFeasible},
		{milp.Infeasible, api.StatusInfeasible},
		{milp.TimeLimit, api.StatusTimeout},
		{milp.SolverError, api.StatusError},
	}
	for _, c := range cases {
		if got := statusFor(c.in); got != c.want {
			t.Errorf("statusFor(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
