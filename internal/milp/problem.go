// Package milp implements a small mixed-integer linear programming engine:
// a two-phase primal simplex LP relaxation solver plus a branch-and-bound
// search over binary variables and SOS2 sets. It is the one "required
// open-source backend" the Solver Driver always has available.
//
// The Model Builder never touches the simplex/branch-and-bound machinery
// directly — it only ever calls Problem's Add* methods, so a different
// backend can consume the same Problem without touching the builder.
package milp

import "fmt"

// VarKind distinguishes continuous variables from binary (0/1) ones. The
// formulation never needs general integers.
type VarKind int

const (
	Continuous VarKind = iota
	Binary
)

// Relation is the comparison operator of a linear constraint.
type Relation int

const (
	LE Relation = iota
	GE
	EQ
)

// Term is one coefficient*variable product in a linear expression.
type Term struct {
	Var  int
	Coef float64
}

// Expr is a linear expression: a sum of Terms.
type Expr []Term

// NewExpr builds an Expr from alternating (varIndex, coef) pairs; it exists
// purely so call sites in the model builder can write
// NewExpr(pCh, 1.0, pAfrrNegE, 1.0) instead of a longer composite literal.
// Each coef must be a float64; an untyped integer constant such as 1 is
// passed as int and panics.
func NewExpr(pairs ...interface{}) Expr {
	if len(pairs)%2 != 0 {
		panic("milp.NewExpr: odd number of arguments")
	}
	e := make(Expr, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		v := pairs[i].(int)
		c := pairs[i+1].(float64)
		e = append(e, Term{Var: v, Coef: c})
	}
	return e
}

// Var is one decision variable.
type Var struct {
	Name string
	LB   float64
	UB   float64 // +Inf for unbounded above
	Kind VarKind
}

// Constraint is one linear row: Expr Rel RHS.
type Constraint struct {
	Name string
	Expr Expr
	Rel  Relation
	RHS  float64
}

// SOS2 is a Special Ordered Set of type 2: at most two variables in Vars
// (in the given order) may be simultaneously nonzero, and if two are
// nonzero they must be adjacent in the list.
type SOS2 struct {
	Name string
	Vars []int
}

// Problem is a backend-neutral MILP instance. The Model Builder assembles
// one of these per solve; it is never mutated once handed to a Solver.
type Problem struct {
	Vars        []Var
	Constraints []Constraint
	SOS2Sets    []SOS2
	Objective   Expr
	Maximize    bool
}

// NewProblem returns an empty problem.
func NewProblem() *Problem {
	return &Problem{}
}

// AddVar registers a new variable and returns its index.
func (p *Problem) AddVar(name string, lb, ub float64, kind VarKind) int {
	p.Vars = append(p.Vars, Var{Name: name, LB: lb, UB: ub, Kind: kind})
	return len(p.Vars) - 1
}

// AddConstraint registers a new constraint and returns its index.
func (p *Problem) AddConstraint(name string, expr Expr, rel Relation, rhs float64) int {
	p.Constraints = append(p.Constraints, Constraint{Name: name, Expr: expr, Rel: rel, RHS: rhs})
	return len(p.Constraints) - 1
}

// AddSOS2 registers a new SOS2 set over the given variable indices, in
// order.
func (p *Problem) AddSOS2(name string, vars []int) {
	cp := append([]int(nil), vars...)
	p.SOS2Sets = append(p.SOS2Sets, SOS2{Name: name, Vars: cp})
}

// SetObjective replaces the objective.
func (p *Problem) SetObjective(expr Expr, maximize bool) {
	p.Objective = expr
	p.Maximize = maximize
}

// NumVars returns the number of decision variables.
func (p *Problem) NumVars() int { return len(p.Vars) }

// NumConstraints returns the number of linear constraint rows (SOS2 sets
// are not counted as rows — they are handled by branching, not by the
// tableau).
func (p *Problem) NumConstraints() int { return len(p.Constraints) }

// Validate does a structural sanity check: every term and SOS2 member must
// reference a variable index that exists.
func (p *Problem) Validate() error {
	n := len(p.Vars)
	check := func(v int) error {
		if v < 0 || v >= n {
			return fmt.Errorf("milp: variable index %d out of range [0, %d)", v, n)
		}
		return nil
	}
	for _, t := range p.Objective {
		if err := check(t.Var); err != nil {
			return err
		}
	}
	for _, c := range p.Constraints {
		for _, t := range c.Expr {
			if err := check(t.Var); err != nil {
				return fmt.Errorf("constraint %q: %w", c.Name, err)
			}
		}
	}
	for _, s := range p.SOS2Sets {
		for _, v := range s.Vars {
			if err := check(v); err != nil {
				return fmt.Errorf("sos2 %q: %w", s.Name, err)
			}
		}
	}
	return nil
}
