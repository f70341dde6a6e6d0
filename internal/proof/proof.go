// Package proof runs an external DRUP/DRAT proof checker over an
// unsatisfiability certificate written by the solver under test.
package proof

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"satharness/internal/logging"
	"satharness/internal/outcome"
	"satharness/internal/tactile"
)

// Verdict lines the checker prints for an accepted proof.
const (
	verdictVerified = "s VERIFIED"
	verdictTrivial  = "s TRIVIAL UNSAT"
)

// Checker invokes `<binary> <args...> <instance> <proof>`.
type Checker struct {
	exec    tactile.Executor
	binary  string
	args    []string
	timeout time.Duration
}

// NewChecker resolves the checker binary. A missing binary is a usage error.
func NewChecker(executor tactile.Executor, binary string, args []string, timeout time.Duration) (*Checker, error) {
	if binary == "" {
		return nil, outcome.Usagef("no proof checker configured")
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, outcome.Usagef("proof checker %s is not executable: %v", binary, err)
	}
	return &Checker{
		exec:    executor,
		binary:  resolved,
		args:    append([]string(nil), args...),
		timeout: timeout,
	}, nil
}

// Verify checks proofPath against the instance at instancePath.
func (c *Checker) Verify(ctx context.Context, instancePath, proofPath string) outcome.Result {
	if _, err := os.Stat(proofPath); err != nil {
		return outcome.Fatal(outcome.ClassProofRejected, "proof file %s missing: %v", proofPath, err)
	}

	args := append(append([]string(nil), c.args...), instancePath, proofPath)
	cmd := tactile.Command{
		Binary:    c.binary,
		Arguments: args,
		Limits:    &tactile.ResourceLimits{TimeoutMs: c.timeout.Milliseconds()},
		Tags:      map[string]string{"role": "proof"},
	}

	timer := logging.StartTimer(logging.CategoryProof, "Proof check of "+instancePath)
	res, err := c.exec.Execute(ctx, cmd)
	timer.Stop()
	if err != nil {
		return outcome.Fatal(outcome.ClassInternal, "run proof checker: %v", err)
	}
	if res.IsError() {
		return outcome.Fatal(outcome.ClassInternal, "run proof checker: %s", res.Error)
	}
	if res.Killed {
		return outcome.Fatal(outcome.ClassProofRejected, "proof checker killed (%s) before giving a verdict", res.KillReason)
	}

	return Judge(res.Lines())
}

// Judge scans checker output for the verdict line. Anything but an
// accepted verdict rejects the proof.
func Judge(lines []string) outcome.Result {
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, "s ") {
			continue
		}
		switch {
		case strings.HasPrefix(line, verdictVerified):
			logging.Proof("Proof verified")
			return outcome.Confirmed("proof verified")
		case strings.HasPrefix(line, verdictTrivial):
			logging.Proof("Instance trivially unsatisfiable")
			return outcome.Confirmed("trivially unsatisfiable")
		default:
			return outcome.Fatal(outcome.ClassProofRejected, "proof checker rejected the proof: %q", line)
		}
	}
	return outcome.Fatal(outcome.ClassProofRejected, "verifier produced no interpretable verdict")
}
