// Package oracle cross-checks unsatisfiability claims against an
// independent reference solver.
//
// A backend never turns "no answer" into a pass: a reference that runs out
// of budget, crashes or prints nothing usable abstains. Only a reference
// model contradicts a claim, and only a reference UNSAT confirms it.
package oracle

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"satharness/internal/cnf"
	"satharness/internal/outcome"
	"satharness/internal/tactile"
	"satharness/internal/verify"
)

// TooSlow is the abstention reason for a reference that exceeded its budget.
const TooSlow = "reference solver too slow"

// maxModelText bounds how much of a disagreeing model goes into a result.
const maxModelText = 512

// Oracle confirms that an instance on disk has no model.
type Oracle interface {
	// ConfirmUnsat solves the instance at path within budget. A zero budget
	// means no wall-clock bound beyond ctx.
	ConfirmUnsat(ctx context.Context, path string, budget time.Duration) outcome.Result

	// Name identifies the backend in logs and triage reports.
	Name() string
}

// Backend names accepted by New.
const (
	BackendExternal  = "external"
	BackendGini      = "gini"
	BackendGophersat = "gophersat"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path and Args configure the external backend.
	Path string
	Args []string
	// CPUTime caps the external reference with an rlimit. Zero disables it.
	CPUTime time.Duration
	// CheckModel re-verifies a reference model against the instance before
	// reporting a disagreement.
	CheckModel bool
}

// New builds the configured backend.
func New(opts Options, exec tactile.Executor) (Oracle, error) {
	switch opts.Backend {
	case "", BackendExternal:
		return NewExternal(exec, opts)
	case BackendGini:
		return NewGini(), nil
	case BackendGophersat:
		return NewGophersat(), nil
	default:
		return nil, outcome.Usagef("unknown reference backend %q", opts.Backend)
	}
}

// judgeModel turns a reference model into a disagreement, or into an
// abstention when the model does not actually satisfy the instance.
func judgeModel(name, path string, inst *cnf.Instance, model cnf.Assignment) outcome.Result {
	if inst != nil {
		if v := verify.Check(inst, model); v != nil {
			return outcome.Abstained(fmt.Sprintf("%s model is invalid: %v", name, v))
		}
	}
	return outcome.Disagreement(fmt.Sprintf("%s found a model for %s, which was claimed unsatisfiable: %s",
		name, path, modelText(model)))
}

func modelText(a cnf.Assignment) string {
	vars := make([]int, 0, len(a))
	for v := range a {
		vars = append(vars, v)
	}
	sort.Ints(vars)

	var b strings.Builder
	for _, v := range vars {
		if b.Len() > maxModelText {
			b.WriteString("...")
			return b.String()
		}
		if !a[v] {
			b.WriteByte('-')
		}
		fmt.Fprintf(&b, "%d ", v)
	}
	b.WriteString("0")
	return b.String()
}

// deadline returns the effective budget given ctx. ok is false when ctx
// is already done.
func deadline(ctx context.Context, budget time.Duration) (time.Duration, bool) {
	if ctx.Err() != nil {
		return 0, false
	}
	if d, has := ctx.Deadline(); has {
		left := time.Until(d)
		if left <= 0 {
			return 0, false
		}
		if budget <= 0 || left < budget {
			budget = left
		}
	}
	return budget, true
}
