// Command satharness verifies SAT solver answers and differentially fuzzes
// solvers against an independent reference.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"satharness/internal/config"
	"satharness/internal/logging"
	"satharness/internal/outcome"
	"satharness/internal/tactile"
)

var (
	// Global flags
	verbose    bool
	configPath string
	solverPath string
	extraOpts  string
	threads    int
	auditPath  string

	// Resolved configuration, set by the root pre-run hook.
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "satharness",
	Short: "SAT solver verification and differential fuzzing harness",
	Long: `satharness runs a SAT solver on problem instances and checks every claim it makes.

Satisfying assignments are checked clause by clause. Unsatisfiability claims
are cross-checked by an independent reference solver or, with --drup, by a
proof checker. Checkpoint segments written in debug-lib mode are replayed
one by one.

Exit codes:
  0    success
  1    internal error
  64   usage error
  100  clause violation
  101  unassigned variable
  102  differential mismatch
  103  proof rejected
  104  malformed solver output`,
	Args:          usageArgs(cobra.NoArgs),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return outcome.Usagef("%v", err)
		}
		applyFlagOverrides(cmd, loaded)

		if err := logging.Initialize(loaded.Logging.Options(verbose)); err != nil {
			return outcome.Usagef("failed to initialize logger: %v", err)
		}
		if err := loaded.Validate(); err != nil {
			return outcome.Usagef("invalid configuration: %v", err)
		}
		cfg = loaded
		logging.BootDebug("Configuration resolved: solver=%s reference=%s threads=%d",
			cfg.Solver.Path, cfg.Reference.Backend, cfg.Solver.Threads)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return outcome.Usagef("a subcommand is required (check, regress, checkdir, fuzz)")
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging and solver output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigFile, "Configuration file")
	rootCmd.PersistentFlags().StringVar(&solverPath, "exec", "", "SAT solver executable (or set SATHARNESS_SOLVER)")
	rootCmd.PersistentFlags().StringVarP(&extraOpts, "extraopts", "e", "", "Extra options to give to the SAT solver")
	rootCmd.PersistentFlags().IntVarP(&threads, "threads", "t", 0, "Number of solver threads")
	rootCmd.PersistentFlags().StringVar(&auditPath, "audit-log", "", "Write child process events to this JSON Lines file")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return outcome.Usagef("%v", err)
	})

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(regressCmd)
	rootCmd.AddCommand(checkDirCmd)
	rootCmd.AddCommand(fuzzCmd)
}

func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("exec") {
		c.Solver.Path = solverPath
	}
	if flags.Changed("extraopts") {
		c.Solver.ExtraOptions = extraOpts
	}
	if threads > 0 {
		c.Solver.Threads = threads
	}
	if verbose {
		c.Solver.Verbose = true
	}
}

func main() {
	// Re-entered by the executor to apply rlimits before exec'ing a child.
	tactile.MaybeRunLimitShim()
	os.Exit(execute(os.Args[1:], os.Stderr))
}

// execute runs the command line and maps its outcome to an exit code.
func execute(args []string, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	return exitCode(rootCmd.Execute(), stderr)
}

// resultError carries a halting result out of a cobra RunE.
type resultError struct {
	res outcome.Result
}

func (e *resultError) Error() string { return e.res.String() }

// finish turns a result into the RunE return value.
func finish(res outcome.Result) error {
	if res.Halts() {
		return &resultError{res: res}
	}
	fmt.Fprintln(rootCmd.OutOrStdout(), res)
	return nil
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return outcome.ExitOK
	}
	var re *resultError
	if errors.As(err, &re) {
		fmt.Fprintln(stderr, re.res)
		return re.res.ExitCode()
	}
	res := outcome.FromError(err)
	fmt.Fprintf(stderr, "error: %s\n", res.Detail)
	return res.ExitCode()
}

// usageArgs classifies positional argument errors as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return outcome.Usagef("%v", err)
		}
		return nil
	}
}
