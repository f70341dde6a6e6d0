package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"satharness/internal/fuzz"
	"satharness/internal/logging"
	"satharness/internal/outcome"
	"satharness/internal/regression"
	"satharness/internal/runner"
)

var (
	// check flags
	solutionFile   string
	checkDrup      bool
	checkUnsatFlag bool
	runSeed        uint64

	// regress flags
	testDir   string
	suiteFile string
	newVar    bool

	// checkdir flags
	solDir  string
	probDir string

	// fuzz flags
	fuzzDrup       bool
	fuzzSeed       uint64
	fuzzIterations int
)

// checkCmd checks one instance
var checkCmd = &cobra.Command{
	Use:   "check <instance>",
	Short: "Check one instance, solving it or reading a stored solution",
	Long: `Runs the solver with a sampled configuration on the instance and verifies
its answer. Checkpoint markers in the instance are replayed segment by segment.

With --solution the solver is not run: the stored transcript is parsed and a
SAT claim is checked against the instance. UNSAT claims in stored
transcripts cannot be checked.`,
	Args: usageArgs(cobra.ExactArgs(1)),
	RunE: runCheck,
}

// regressCmd runs the regression suite
var regressCmd = &cobra.Command{
	Use:   "regress",
	Short: "Check every instance of a regression directory, stopping at the first failure",
	Long: `Checks every *.cnf, *.cnf.gz and *.cnf.xz file of --dir in name order,
or the cases of a YAML suite file given with --suite. Each run gets a sampled
solver configuration, and instances with checkpoint markers are replayed.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runRegress,
}

// checkDirCmd checks stored solutions
var checkDirCmd = &cobra.Command{
	Use:   "checkdir",
	Short: "Check stored solver transcripts against their problems",
	Long: `For every <name>.out transcript in --soldir, checks the claim against the
instance <name> in --probdir. Truncated transcripts are tolerated.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runCheckDir,
}

// fuzzCmd runs a fuzz campaign
var fuzzCmd = &cobra.Command{
	Use:   "fuzz",
	Short: "Differentially fuzz the solver until a claim fails",
	Long: `Generates instances from the configured catalog, sprinkles checkpoint
markers into them and checks the solver on each with a random configuration.

The campaign stops at the first clause violation, disagreement or other
fatal result; the instance and a triage report are then kept on disk.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runFuzz,
}

func init() {
	checkCmd.Flags().StringVar(&solutionFile, "solution", "", "Stored solver transcript to check instead of solving")
	checkCmd.Flags().BoolVar(&checkDrup, "drup", false, "Check UNSAT claims with a DRUP proof")
	checkCmd.Flags().BoolVar(&checkUnsatFlag, "check-unsat", true, "Verify UNSAT claims")
	checkCmd.Flags().Uint64Var(&runSeed, "seed", 0, "Seed for the sampled solver configuration (0 = time)")

	regressCmd.Flags().StringVar(&testDir, "dir", "", "Directory holding the regression instances")
	regressCmd.Flags().StringVar(&suiteFile, "suite", "", "YAML suite file (instead of --dir)")
	regressCmd.Flags().BoolVar(&newVar, "new-var", false, "Pass the solver's new-variable debug flag")
	regressCmd.Flags().BoolVar(&checkUnsatFlag, "check-unsat", true, "Verify UNSAT claims")
	regressCmd.Flags().Uint64Var(&runSeed, "seed", 0, "Seed for the sampled solver configurations (0 = time)")

	checkDirCmd.Flags().StringVar(&solDir, "soldir", "", "Directory of stored transcripts")
	checkDirCmd.Flags().StringVar(&probDir, "probdir", "", "Directory of the problems")

	fuzzCmd.Flags().BoolVar(&fuzzDrup, "drup", false, "Check UNSAT claims with DRUP proofs")
	fuzzCmd.Flags().Uint64Var(&fuzzSeed, "seed", 0, "Campaign seed (0 = time)")
	fuzzCmd.Flags().IntVar(&fuzzIterations, "iterations", 0, "Stop after this many iterations (0 = forever)")
}

// checkUnsat resolves --check-unsat against the configuration.
func checkUnsat(cmd *cobra.Command) bool {
	if cmd.Flags().Changed("check-unsat") {
		return checkUnsatFlag
	}
	return cfg.Reference.CheckUnsat
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	stored := solutionFile != ""
	h, err := newHarness(cfg, harnessOptions{
		checkUnsat: !stored && checkUnsat(cmd),
		drup:       !stored && checkDrup,
		sampled:    !stored,
		stored:     stored,
		seed:       runSeed,
	})
	if err != nil {
		return err
	}
	defer h.close()

	req := runner.Request{Instance: args[0], Solution: solutionFile}
	if req.Solution != "" {
		logging.Run("Checking %s against proposed solution %s", req.Instance, req.Solution)
	}
	if checkDrup && !stored {
		f, err := os.CreateTemp(cfg.Solver.WorkDir, "satharness-*.drup")
		if err != nil {
			return err
		}
		req.ProofPath = f.Name()
		f.Close()
		defer os.Remove(req.ProofPath)
	}
	return finish(h.runner.Check(ctx, req))
}

func runRegress(cmd *cobra.Command, args []string) error {
	if (testDir == "") == (suiteFile == "") {
		return outcome.Usagef("exactly one of --dir and --suite is required")
	}

	var suite *regression.Suite
	var err error
	if suiteFile != "" {
		suite, err = regression.LoadSuite(suiteFile)
		if err != nil {
			return outcome.Usagef("%v", err)
		}
	} else if suite, err = regression.DirSuite(testDir, newVar); err != nil {
		return err
	}

	h, err := newHarness(cfg, harnessOptions{
		checkUnsat: checkUnsat(cmd),
		sampled:    true,
		seed:       runSeed,
	})
	if err != nil {
		return err
	}
	defer h.close()

	ctx, cancel := signalContext()
	defer cancel()
	return finishSuite(regression.RunSuite(ctx, suite, h.runner))
}

func runCheckDir(cmd *cobra.Command, args []string) error {
	if solDir == "" || probDir == "" {
		return outcome.Usagef("--soldir and --probdir are required")
	}
	suite, err := regression.SolutionSuite(solDir, probDir)
	if err != nil {
		return err
	}

	h, err := newHarness(cfg, harnessOptions{stored: true})
	if err != nil {
		return err
	}
	defer h.close()

	ctx, cancel := signalContext()
	defer cancel()
	return finishSuite(regression.RunSuite(ctx, suite, h.runner))
}

func finishSuite(results []regression.Result, res outcome.Result) error {
	var total int64
	for _, r := range results {
		total += r.DurationMs
	}
	logging.Regress("%d cases checked in %d ms", len(results), total)
	return finish(res)
}

func runFuzz(cmd *cobra.Command, args []string) error {
	seed := fuzzSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	h, err := newHarness(cfg, harnessOptions{
		checkUnsat: true,
		drup:       fuzzDrup,
		sampled:    true,
		seed:       seed + 1,
	})
	if err != nil {
		return err
	}
	defer h.close()

	campaign, err := fuzz.New(fuzz.Config{
		Catalog:          cfg.Fuzz.Catalog,
		GeneratorDir:     cfg.Fuzz.GeneratorDir,
		WorkDir:          cfg.Fuzz.WorkDir,
		Prefix:           cfg.Fuzz.Prefix,
		MaxCheckpoints:   cfg.Fuzz.MaxCheckpoints,
		GeneratorTimeout: cfg.Limits.GetGeneratorTimeout(),
		Iterations:       fuzzIterations,
		Seed:             seed,
		Drup:             fuzzDrup,
		Recorder:         h.recorder,
	}, h.exec, h.runner)
	if err != nil {
		return err
	}
	logging.Fuzz("Campaign %s seed %d", campaign.ID(), campaign.Seed())

	ctx, cancel := signalContext()
	defer cancel()
	return finish(campaign.Run(ctx))
}
