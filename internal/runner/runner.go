// Package runner checks one instance end to end: run the solver under
// test, replay its checkpoint segments, then verify the final claim.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"satharness/internal/cnf"
	"satharness/internal/logging"
	"satharness/internal/oracle"
	"satharness/internal/outcome"
	"satharness/internal/replay"
	"satharness/internal/solverflags"
	"satharness/internal/tactile"
	"satharness/internal/transcript"
	"satharness/internal/verify"
)

// TooMuchTime is the abstention reason for a run over its wall-clock share.
const TooMuchTime = "too much time to solve"

// ProofVerifier checks an unsatisfiability certificate.
type ProofVerifier interface {
	Verify(ctx context.Context, instancePath, proofPath string) outcome.Result
}

// Config is what stays the same across runs.
type Config struct {
	Solver  string
	Fixed   solverflags.Fixed
	Extra   []string
	Threads int
	Verbose bool

	// Space, when set, adds a sampled configuration to every run.
	Space *solverflags.Space

	// CPUTime and Memory cap the solver of a time-limited run.
	CPUTime time.Duration
	Memory  int64
	// WallClock is the time-limited budget; a run taking longer than
	// WallClock/Threads abstains.
	WallClock time.Duration

	// OracleBudget bounds each reference solver call.
	OracleBudget time.Duration
	// CheckUnsat enables verification of UNSAT claims.
	CheckUnsat bool

	// WorkDir is where per-run directories are created. Empty means
	// os.TempDir.
	WorkDir string
}

// Request describes one check.
type Request struct {
	Instance string
	// Solution is a stored solver transcript. When set the solver is not
	// run and only SAT claims are checked.
	Solution string
	// ProofPath asks the solver for a proof and checks UNSAT with it.
	ProofPath string
	NewVar    bool
	// DebugLib forces debug-lib mode. It is implied when the instance
	// carries checkpoint markers.
	DebugLib  bool
	LimitTime bool
	// TolerateMissing treats a transcript with no claim as a timeout.
	TolerateMissing bool
	RequestID       string
}

// Runner is the run controller.
type Runner struct {
	cfg    Config
	exec   tactile.Executor
	oracle oracle.Oracle
	proof  ProofVerifier
	rng    *rand.Rand
}

// New validates the solver path. ref and checker may be nil, in which case
// the claims they would check abstain.
func New(cfg Config, executor tactile.Executor, ref oracle.Oracle, checker ProofVerifier, rng *rand.Rand) (*Runner, error) {
	if cfg.Solver != "" {
		resolved, err := exec.LookPath(cfg.Solver)
		if err != nil {
			return nil, outcome.Usagef("cannot find solver executable %s: %v", cfg.Solver, err)
		}
		cfg.Solver = resolved
	}
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return &Runner{cfg: cfg, exec: executor, oracle: ref, proof: checker, rng: rng}, nil
}

// Check runs one request to a single result.
func (r *Runner) Check(ctx context.Context, req Request) outcome.Result {
	log := logging.Get(logging.CategoryRun).With("instance", filepath.Base(req.Instance))
	if req.RequestID != "" {
		log = log.With("request", req.RequestID)
	}

	inst, err := cnf.ReadFile(req.Instance)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return outcome.FromError(outcome.Usagef("instance %s missing", req.Instance))
		}
		return outcome.Fatal(outcome.ClassInternal, "%v", err)
	}

	opts := transcript.Options{TolerateMissing: req.TolerateMissing}
	checkUnsat := r.cfg.CheckUnsat

	var output string
	if req.Solution != "" {
		data, err := os.ReadFile(req.Solution)
		if err != nil {
			return outcome.FromError(outcome.Usagef("solution file %s missing", req.Solution))
		}
		output = string(data)
		checkUnsat = false
		log.Debug("Read stored solution from %s", req.Solution)
	} else {
		var res outcome.Result
		var done bool
		output, res, done = r.solve(ctx, req, inst, &opts, log)
		if done {
			return res
		}
	}

	verdict := transcript.ParseText(output, opts)
	switch {
	case verdict.Status == transcript.Malformed:
		log.Error("Solver output is malformed: %s", verdict.Reason)
		return verdict.Result()
	case verdict.Unverifiable:
		return outcome.Abstained(verdict.Reason)
	case verdict.Status == transcript.Satisfiable:
		if v := verify.Check(inst, verdict.Assignment); v != nil {
			logging.VerifyError("%s: %v", req.Instance, v)
			return v.Result()
		}
		log.Info("Solution verified")
		return outcome.Confirmed("solution verified")
	}

	if !checkUnsat {
		log.Info("UNSAT claim left unchecked")
		return outcome.Abstained("UNSAT claim not checked")
	}
	if req.ProofPath != "" {
		if r.proof == nil {
			return outcome.FromError(outcome.Usagef("proof requested but no proof checker configured"))
		}
		return r.proof.Verify(ctx, req.Instance, req.ProofPath)
	}
	if r.oracle == nil {
		return outcome.Abstained("no reference solver")
	}
	res := r.oracle.ConfirmUnsat(ctx, req.Instance, r.cfg.OracleBudget)
	log.Info("Reference solver: %s", res)
	return res
}

// solve runs the solver and, in debug-lib mode, replays its segments. done
// is set when res is already the final result.
func (r *Runner) solve(ctx context.Context, req Request, inst *cnf.Instance, opts *transcript.Options, log *logging.Logger) (output string, res outcome.Result, done bool) {
	if r.cfg.Solver == "" {
		return "", outcome.FromError(outcome.Usagef("no solver configured")), true
	}

	instance, err := filepath.Abs(req.Instance)
	if err != nil {
		return "", outcome.Fatal(outcome.ClassInternal, "%v", err), true
	}
	proofPath := req.ProofPath
	if proofPath != "" {
		if proofPath, err = filepath.Abs(proofPath); err != nil {
			return "", outcome.Fatal(outcome.ClassInternal, "%v", err), true
		}
	}

	// Embedded checkpoint markers are only answered in debug-lib mode.
	debugLib := req.DebugLib || inst.Checkpoints > 0

	inv := solverflags.Invocation{
		Fixed:     r.cfg.Fixed,
		DebugLib:  debugLib,
		Verbose:   r.cfg.Verbose,
		NewVar:    req.NewVar,
		Threads:   r.cfg.Threads,
		Extra:     r.cfg.Extra,
		Instance:  instance,
		ProofPath: proofPath,
	}
	if r.cfg.Space != nil {
		inv.Random = r.cfg.Space.Sample(r.rng)
	}

	cmd := tactile.Command{
		Binary:    r.cfg.Solver,
		Arguments: inv.Argv(),
		RequestID: req.RequestID,
		Tags:      map[string]string{"role": "solver"},
	}
	if debugLib {
		dir, err := os.MkdirTemp(r.cfg.WorkDir, "run-*")
		if err != nil {
			return "", outcome.Fatal(outcome.ClassInternal, "create run directory: %v", err), true
		}
		defer os.RemoveAll(dir)
		cmd.WorkingDirectory = dir
	}
	if req.LimitTime {
		cmd.Limits = &tactile.ResourceLimits{
			TimeoutMs:      r.cfg.WallClock.Milliseconds(),
			MaxCPUTimeMs:   r.cfg.CPUTime.Milliseconds(),
			MaxMemoryBytes: r.cfg.Memory,
		}
	}

	log.Info("Executing: %s", cmd.CommandString())
	result, err := r.exec.Execute(ctx, cmd)
	if err != nil {
		return "", outcome.Fatal(outcome.ClassInternal, "run solver: %v", err), true
	}
	if result.IsError() {
		return "", outcome.Fatal(outcome.ClassInternal, "run solver: %s", result.Error), true
	}

	if req.LimitTime {
		share := r.cfg.WallClock / time.Duration(r.cfg.Threads)
		if share > 0 && result.Duration > share {
			log.Warn("Too much time to solve (%s > %s), aborted", result.Duration, share)
			return "", outcome.Abstained(TooMuchTime), true
		}
		log.Debug("Within time limit: %s", result.Duration)
		if result.Killed {
			// A capped child may die before printing a claim.
			opts.TolerateMissing = true
		}
	}

	if debugLib {
		rp := &replay.Replayer{
			Oracle:  r.oracle,
			Budget:  r.cfg.OracleBudget,
			TempDir: cmd.WorkingDirectory,
			Parse:   *opts,
		}
		sum, res := rp.Replay(ctx, inst, cmd.WorkingDirectory)
		if res.Halts() {
			return "", res, true
		}
		log.Info("Checkpoints: %s", sum)
	}

	return result.Output(), outcome.Result{}, false
}

// String describes the configuration for startup logs.
func (c Config) String() string {
	return fmt.Sprintf("solver=%s threads=%d cpu=%s wall=%s oracle-budget=%s check-unsat=%t",
		c.Solver, c.Threads, c.CPUTime, c.WallClock, c.OracleBudget, c.CheckUnsat)
}
