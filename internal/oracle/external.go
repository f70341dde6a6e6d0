package oracle

import (
	"context"
	"os/exec"
	"time"

	"satharness/internal/cnf"
	"satharness/internal/logging"
	"satharness/internal/outcome"
	"satharness/internal/tactile"
	"satharness/internal/transcript"
)

// External runs a reference solver binary as a child process.
type External struct {
	exec       tactile.Executor
	path       string
	args       []string
	cpuTime    time.Duration
	checkModel bool
}

// NewExternal resolves the reference binary. A binary that cannot be found
// is a usage error.
func NewExternal(executor tactile.Executor, opts Options) (*External, error) {
	if opts.Path == "" {
		return nil, outcome.Usagef("no reference solver configured")
	}
	resolved, err := exec.LookPath(opts.Path)
	if err != nil {
		return nil, outcome.Usagef("reference solver %s is not executable: %v", opts.Path, err)
	}
	return &External{
		exec:       executor,
		path:       resolved,
		args:       append([]string(nil), opts.Args...),
		cpuTime:    opts.CPUTime,
		checkModel: opts.CheckModel,
	}, nil
}

// Name implements Oracle.
func (e *External) Name() string { return "reference " + e.path }

// ConfirmUnsat implements Oracle.
func (e *External) ConfirmUnsat(ctx context.Context, path string, budget time.Duration) outcome.Result {
	budget, ok := deadline(ctx, budget)
	if !ok {
		return outcome.Abstained(TooSlow)
	}

	limits := &tactile.ResourceLimits{TimeoutMs: budget.Milliseconds()}
	if e.cpuTime > 0 {
		limits.MaxCPUTimeMs = e.cpuTime.Milliseconds()
	}
	cmd := tactile.Command{
		Binary:    e.path,
		Arguments: append(append([]string(nil), e.args...), path),
		Limits:    limits,
		Tags:      map[string]string{"role": "reference"},
	}

	logging.OracleDebug("Checking %s with %s (budget %s)", path, e.path, budget)
	res, err := e.exec.Execute(ctx, cmd)
	if err != nil {
		return outcome.Fatal(outcome.ClassInternal, "run reference solver: %v", err)
	}
	if res.IsError() {
		return outcome.Fatal(outcome.ClassInternal, "run reference solver: %s", res.Error)
	}
	if res.Killed || (budget > 0 && res.Duration > budget) {
		logging.OracleWarn("Reference solver abstained on %s after %s (%s)", path, res.Duration, res.KillReason)
		return outcome.Abstained(TooSlow)
	}

	verdict := transcript.ParseText(res.Output(), transcript.Options{})
	switch verdict.Status {
	case transcript.Unsatisfiable:
		return outcome.Confirmed("reference solver agrees the instance is unsatisfiable")
	case transcript.Satisfiable:
		return e.disagree(path, verdict.Assignment)
	}

	// The exit status alone is not evidence either way.
	logging.OracleWarn("Reference output for %s is not interpretable: %s", path, verdict.Reason)
	return outcome.Abstained("reference output not interpretable: " + verdict.Reason)
}

func (e *External) disagree(path string, model cnf.Assignment) outcome.Result {
	var inst *cnf.Instance
	if e.checkModel {
		var err error
		inst, err = cnf.ReadFile(path)
		if err != nil {
			return outcome.Fatal(outcome.ClassInternal, "reread %s: %v", path, err)
		}
	}
	return judgeModel("reference solver", path, inst, model)
}
