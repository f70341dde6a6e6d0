package oracle

import (
	"context"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"

	"satharness/internal/cnf"
	"satharness/internal/logging"
	"satharness/internal/outcome"
)

// Gini solves the instance in-process with github.com/go-air/gini.
type Gini struct{}

// NewGini returns the gini backend.
func NewGini() *Gini { return &Gini{} }

// Name implements Oracle.
func (*Gini) Name() string { return "gini" }

// ConfirmUnsat implements Oracle. Xor clauses are outside gini's input
// language, so such instances abstain.
func (g *Gini) ConfirmUnsat(ctx context.Context, path string, budget time.Duration) outcome.Result {
	inst, err := cnf.ReadFile(path)
	if err != nil {
		return outcome.Fatal(outcome.ClassInternal, "read %s: %v", path, err)
	}
	clauses, ok := inst.Regular()
	if !ok {
		return outcome.Abstained("gini cannot read xor clauses")
	}
	budget, ok = deadline(ctx, budget)
	if !ok {
		return outcome.Abstained(TooSlow)
	}

	s := gini.New()
	for _, c := range clauses {
		for _, lit := range c {
			s.Add(z.Dimacs2Lit(lit))
		}
		s.Add(z.LitNull)
	}

	var r int
	if budget > 0 {
		r = s.GoSolve().Try(budget)
	} else {
		r = s.Solve()
	}
	logging.OracleDebug("gini on %s: %d", path, r)

	switch r {
	case -1:
		return outcome.Confirmed("gini agrees the instance is unsatisfiable")
	case 1:
		model := make(cnf.Assignment, inst.MaxVar())
		for v := 1; v <= inst.MaxVar(); v++ {
			model[v] = s.Value(z.Dimacs2Lit(v))
		}
		return judgeModel("gini", path, inst, model)
	default:
		return outcome.Abstained(TooSlow)
	}
}
