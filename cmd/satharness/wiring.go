package main

import (
	"math/rand/v2"
	"time"

	"github.com/google/shlex"

	"satharness/internal/config"
	"satharness/internal/logging"
	"satharness/internal/oracle"
	"satharness/internal/outcome"
	"satharness/internal/proof"
	"satharness/internal/runner"
	"satharness/internal/tactile"
)

// harness is the object graph one subcommand runs against.
type harness struct {
	exec     *tactile.DirectExecutor
	audit    *tactile.AuditLogger
	recorder *tactile.Recorder
	runner   *runner.Runner
}

type harnessOptions struct {
	checkUnsat bool
	drup       bool
	// sampled adds a random solver configuration to every run.
	sampled bool
	// stored runs only read transcripts; the solver need not exist.
	stored bool
	seed   uint64
}

func newHarness(c *config.Config, opts harnessOptions) (*harness, error) {
	h := &harness{
		audit:    tactile.NewAuditLogger(),
		recorder: &tactile.Recorder{},
	}
	h.audit.AddCallback(h.recorder.Record)
	h.audit.AddCallback(func(e tactile.AuditEvent) {
		logging.TactileDebug("%s %s", e.Type, e.Command.CommandString())
	})
	if auditPath != "" {
		if err := h.audit.EnableFileLogging(auditPath); err != nil {
			return nil, outcome.Usagef("cannot open audit log: %v", err)
		}
	}

	execCfg := tactile.DefaultExecutorConfig()
	execCfg.MaxOutputBytes = c.Limits.MaxOutputBytes
	execCfg.AuditCallback = h.audit.Log
	h.exec = tactile.NewDirectExecutorWithConfig(execCfg)

	extra, err := shlex.Split(c.Solver.ExtraOptions)
	if err != nil {
		return nil, outcome.Usagef("cannot split extra options %q: %v", c.Solver.ExtraOptions, err)
	}

	rc := runner.Config{
		Solver:       c.Solver.Path,
		Fixed:        c.Solver.Flags,
		Extra:        extra,
		Threads:      c.Solver.Threads,
		Verbose:      c.Solver.Verbose,
		CPUTime:      c.Limits.GetCPUTime(),
		Memory:       c.Limits.MemoryBytes(),
		WallClock:    c.Limits.GetWallClock(),
		OracleBudget: c.GetReferenceBudget(),
		CheckUnsat:   opts.checkUnsat,
		WorkDir:      c.Solver.WorkDir,
	}
	if opts.stored {
		rc.Solver = ""
	}
	if opts.sampled {
		space := c.SolverSpace()
		rc.Space = &space
	}

	var ref oracle.Oracle
	if opts.checkUnsat && !opts.drup {
		ref, err = oracle.New(oracle.Options{
			Backend:    c.Reference.Backend,
			Path:       c.Reference.Path,
			Args:       c.Reference.Args,
			CPUTime:    c.Limits.GetCPUTime(),
			CheckModel: c.Reference.CheckModel,
		}, h.exec)
		if err != nil {
			return nil, err
		}
		logging.BootDebug("Reference: %s", ref.Name())
	}

	var checker runner.ProofVerifier
	if opts.drup {
		pc, err := proof.NewChecker(h.exec, c.Proof.Checker, c.Proof.Args, c.GetProofTimeout())
		if err != nil {
			return nil, err
		}
		checker = pc
	}

	seed := opts.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	h.runner, err = runner.New(rc, h.exec, ref, checker, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
	if err != nil {
		return nil, err
	}
	return h, nil
}

// close flushes the audit trail and logs the execution totals.
func (h *harness) close() {
	m := h.audit.GetMetrics()
	logging.Boot("Child processes: %d run, %d killed (%d by limits), %d ms CPU",
		m.TotalExecutions, m.KilledExecutions, m.LimitKills, m.TotalCPUTimeMs)
	if err := h.audit.Close(); err != nil {
		logging.BootWarn("Closing audit log: %v", err)
	}
}
