package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/crillab/gophersat/solver"

	"satharness/internal/cnf"
	"satharness/internal/logging"
	"satharness/internal/outcome"
)

// Busy is the abstention reason while an abandoned solve still runs.
const Busy = "gophersat still busy with an abandoned solve"

// Gophersat solves the instance in-process with github.com/crillab/gophersat.
// gophersat has no cancellation hook: when the budget elapses the solve
// keeps running in its goroutine and its answer is discarded. At most one
// solve runs at a time; calls made while it is still running abstain.
type Gophersat struct {
	busy chan struct{}
}

// NewGophersat returns the gophersat backend.
func NewGophersat() *Gophersat { return &Gophersat{busy: make(chan struct{}, 1)} }

// Name implements Oracle.
func (*Gophersat) Name() string { return "gophersat" }

type gophersatAnswer struct {
	status solver.Status
	model  []bool
	err    error
}

// ConfirmUnsat implements Oracle.
func (g *Gophersat) ConfirmUnsat(ctx context.Context, path string, budget time.Duration) outcome.Result {
	inst, err := cnf.ReadFile(path)
	if err != nil {
		return outcome.Fatal(outcome.ClassInternal, "read %s: %v", path, err)
	}
	clauses, ok := inst.Regular()
	if !ok {
		return outcome.Abstained("gophersat cannot read xor clauses")
	}
	budget, ok = deadline(ctx, budget)
	if !ok {
		return outcome.Abstained(TooSlow)
	}

	select {
	case g.busy <- struct{}{}:
	default:
		logging.OracleWarn("gophersat skipped %s: previous solve still running", path)
		return outcome.Abstained(Busy)
	}
	done := make(chan gophersatAnswer, 1)
	go func() {
		ans := solveGophersat(clauses)
		<-g.busy
		done <- ans
	}()

	var timeout <-chan time.Time
	if budget > 0 {
		timer := time.NewTimer(budget)
		defer timer.Stop()
		timeout = timer.C
	}

	var ans gophersatAnswer
	select {
	case ans = <-done:
	case <-timeout:
		logging.OracleWarn("gophersat exceeded %s on %s", budget, path)
		return outcome.Abstained(TooSlow)
	case <-ctx.Done():
		return outcome.Abstained(TooSlow)
	}
	if ans.err != nil {
		return outcome.Abstained("gophersat failed: " + ans.err.Error())
	}
	logging.OracleDebug("gophersat on %s: %v", path, ans.status)

	switch ans.status {
	case solver.Unsat:
		return outcome.Confirmed("gophersat agrees the instance is unsatisfiable")
	case solver.Sat:
		model := make(cnf.Assignment, len(ans.model))
		for i, val := range ans.model {
			model[i+1] = val
		}
		return judgeModel("gophersat", path, inst, model)
	default:
		return outcome.Abstained("gophersat gave no answer")
	}
}

// solveGophersat converts panics from the library (empty literals, Model on
// a non-SAT solver) into errors.
func solveGophersat(clauses [][]int) (ans gophersatAnswer) {
	defer func() {
		if r := recover(); r != nil {
			ans.err = fmt.Errorf("%v", r)
		}
	}()
	s := solver.New(solver.ParseSlice(clauses))
	ans.status = s.Solve()
	if ans.status == solver.Sat {
		ans.model = s.Model()
	}
	return ans
}
