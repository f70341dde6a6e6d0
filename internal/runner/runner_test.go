package runner

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satharness/internal/oracle"
	"satharness/internal/outcome"
	"satharness/internal/solverflags"
	"satharness/internal/tactile"
)

func TestMain(m *testing.M) {
	tactile.MaybeRunLimitShim()
	os.Exit(m.Run())
}

type fakeOracle struct {
	result outcome.Result
	calls  []string
}

func (f *fakeOracle) Name() string { return "fake" }

func (f *fakeOracle) ConfirmUnsat(_ context.Context, path string, _ time.Duration) outcome.Result {
	f.calls = append(f.calls, path)
	return f.result
}

type fakeProof struct {
	result outcome.Result
	calls  [][2]string
}

func (f *fakeProof) Verify(_ context.Context, inst, proof string) outcome.Result {
	f.calls = append(f.calls, [2]string{inst, proof})
	return f.result
}

func solverScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts required")
	}
	path := filepath.Join(t.TempDir(), "solver.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func instance(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inst.cnf")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

const twoClauses = "p cnf 2 2\n1 2 0\n-1 -2 0\n"

// newRunner keeps nil fakes as nil interfaces.
func newRunner(t *testing.T, cfg Config, ref *fakeOracle, pv *fakeProof) *Runner {
	t.Helper()
	if cfg.Fixed.Threads == "" {
		cfg.Fixed = solverflags.DefaultFixed()
	}
	var o oracle.Oracle
	if ref != nil {
		o = ref
	}
	var checker ProofVerifier
	if pv != nil {
		checker = pv
	}
	r, err := New(cfg, tactile.NewDirectExecutor(), o, checker, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	return r
}

func TestCheckSatisfiable(t *testing.T) {
	solver := solverScript(t, `echo "c solving"; echo "s SATISFIABLE"; echo "v 1 -2 0"; exit 10`)
	r := newRunner(t, Config{Solver: solver, CheckUnsat: true}, nil, nil)

	res := r.Check(context.Background(), Request{Instance: instance(t, twoClauses)})
	assert.Equal(t, outcome.KindConfirmed, res.Kind, res.String())
}

func TestCheckClauseViolation(t *testing.T) {
	solver := solverScript(t, `echo "s SATISFIABLE"; echo "v 1 2 0"`)
	r := newRunner(t, Config{Solver: solver}, nil, nil)

	res := r.Check(context.Background(), Request{Instance: instance(t, twoClauses)})
	assert.Equal(t, outcome.ExitClauseViolation, res.ExitCode())
	assert.Contains(t, res.Detail, "-1 -2 0")
}

func TestCheckUnsatGoesToOracle(t *testing.T) {
	solver := solverScript(t, `echo "s UNSATISFIABLE"; exit 20`)
	inst := instance(t, twoClauses)

	ref := &fakeOracle{result: outcome.Disagreement("reference found a model")}
	r := newRunner(t, Config{Solver: solver, CheckUnsat: true, OracleBudget: time.Second}, ref, nil)
	res := r.Check(context.Background(), Request{Instance: inst})
	assert.Equal(t, outcome.ExitDifferentialMismatch, res.ExitCode())
	assert.Equal(t, []string{inst}, ref.calls)

	ref = &fakeOracle{result: outcome.Confirmed("agreed")}
	r = newRunner(t, Config{Solver: solver, CheckUnsat: false}, ref, nil)
	res = r.Check(context.Background(), Request{Instance: inst})
	assert.Equal(t, outcome.KindAbstained, res.Kind)
	assert.Empty(t, ref.calls)
}

func TestCheckUnsatWithProof(t *testing.T) {
	argv := filepath.Join(t.TempDir(), "argv")
	solver := solverScript(t, `echo "$@" > `+argv+`; echo "s UNSATISFIABLE"`)
	inst := instance(t, twoClauses)
	proofPath := filepath.Join(t.TempDir(), "out.drup")

	ref := &fakeOracle{result: outcome.Confirmed("agreed")}
	pv := &fakeProof{result: outcome.Fatal(outcome.ClassProofRejected, "no")}
	r := newRunner(t, Config{Solver: solver, CheckUnsat: true}, ref, pv)

	res := r.Check(context.Background(), Request{Instance: inst, ProofPath: proofPath})
	assert.Equal(t, outcome.ExitProofRejected, res.ExitCode())
	assert.Empty(t, ref.calls, "proof and oracle are exclusive")
	require.Len(t, pv.calls, 1)

	data, err := os.ReadFile(argv)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(string(data)), inst+" --drupexistscheck 0 "+proofPath))
}

func TestCheckMalformedOutput(t *testing.T) {
	solver := solverScript(t, `echo "c crashed before answering"`)
	inst := instance(t, twoClauses)
	r := newRunner(t, Config{Solver: solver}, nil, nil)

	res := r.Check(context.Background(), Request{Instance: inst})
	assert.Equal(t, outcome.ExitMalformedOutput, res.ExitCode())

	res = r.Check(context.Background(), Request{Instance: inst, TolerateMissing: true})
	assert.Equal(t, outcome.KindAbstained, res.Kind)
}

func TestCheckStoredSolution(t *testing.T) {
	inst := instance(t, twoClauses)
	r := newRunner(t, Config{CheckUnsat: true}, &fakeOracle{result: outcome.Confirmed("x")}, nil)

	sol := filepath.Join(t.TempDir(), "inst.cnf.out")
	require.NoError(t, os.WriteFile(sol, []byte("s SATISFIABLE\nv -1 2 0\n"), 0o644))
	res := r.Check(context.Background(), Request{Instance: inst, Solution: sol})
	assert.Equal(t, outcome.KindConfirmed, res.Kind)

	require.NoError(t, os.WriteFile(sol, []byte("s UNSATISFIABLE\n"), 0o644))
	res = r.Check(context.Background(), Request{Instance: inst, Solution: sol})
	assert.Equal(t, outcome.KindAbstained, res.Kind, "stored UNSAT claims are not checkable")

	res = r.Check(context.Background(), Request{Instance: inst, Solution: sol + ".missing"})
	assert.Equal(t, outcome.ExitUsage, res.ExitCode())
}

func TestCheckUsageErrors(t *testing.T) {
	_, err := New(Config{Solver: "/nonexistent/solver"}, tactile.NewDirectExecutor(), nil, nil, nil)
	assert.Equal(t, outcome.ClassUsage, outcome.ClassOf(err))

	r := newRunner(t, Config{}, nil, nil)
	res := r.Check(context.Background(), Request{Instance: filepath.Join(t.TempDir(), "absent.cnf")})
	assert.Equal(t, outcome.ExitUsage, res.ExitCode())

	res = r.Check(context.Background(), Request{Instance: instance(t, twoClauses)})
	assert.Equal(t, outcome.ExitUsage, res.ExitCode(), "no solver configured")
}

func TestCheckWallClockShare(t *testing.T) {
	solver := solverScript(t, `sleep 1; echo "s SATISFIABLE"; echo "v 1 -2 0"`)
	r := newRunner(t, Config{Solver: solver, Threads: 4, WallClock: 2 * time.Second}, nil, nil)

	res := r.Check(context.Background(), Request{Instance: instance(t, twoClauses), LimitTime: true})
	assert.Equal(t, outcome.Abstained(TooMuchTime), res)
}

func TestCheckCPUCapIsTolerated(t *testing.T) {
	if testing.Short() {
		t.Skip("burns a second of CPU")
	}
	solver := solverScript(t, `while :; do :; done`)
	r := newRunner(t, Config{Solver: solver, CPUTime: time.Second, WallClock: time.Minute}, nil, nil)

	res := r.Check(context.Background(), Request{Instance: instance(t, twoClauses), LimitTime: true})
	assert.Equal(t, outcome.KindAbstained, res.Kind, res.String())
}

func TestCheckDebugLibReplay(t *testing.T) {
	text := "p cnf 2 3\n1 2 0\nc Solver::solve()\n-1 0\nc Solver::solve()\n-2 0\n"
	inst := instance(t, text)

	// Segment 1 answers for {1 2}, segment 2 for {1 2, -1}.
	solver := solverScript(t, `
case "$*" in *--debuglib*) ;; *) echo "missing --debuglib"; exit 1;; esac
printf 's SATISFIABLE\nv 1 -2 0\n' > debugLibPart1.output
printf 's UNSATISFIABLE\n' > debugLibPart2.output
echo "s UNSATISFIABLE"`)

	ref := &fakeOracle{result: outcome.Confirmed("agreed")}
	work := t.TempDir()
	r := newRunner(t, Config{Solver: solver, CheckUnsat: true, WorkDir: work}, ref, nil)

	res := r.Check(context.Background(), Request{Instance: inst, DebugLib: true})
	assert.Equal(t, outcome.KindConfirmed, res.Kind, res.String())
	require.Len(t, ref.calls, 2, "one checkpoint and the final claim")
	assert.Equal(t, inst, ref.calls[1])

	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, entries, "run directory removed")
}

func TestCheckDebugLibViolationHalts(t *testing.T) {
	text := "p cnf 2 2\n1 2 0\nc Solver::solve()\n-1 0\n"
	solver := solverScript(t, `printf 's SATISFIABLE\nv -1 -2 0\n' > debugLibPart1.output; echo "s SATISFIABLE"; echo "v -1 2 0"`)
	r := newRunner(t, Config{Solver: solver}, nil, nil)

	res := r.Check(context.Background(), Request{Instance: instance(t, text), DebugLib: true})
	assert.Equal(t, outcome.ClassClauseViolation, res.Class)
	assert.Contains(t, res.Detail, "checkpoint 1")
}

func TestCheckpointMarkersImplyDebugLib(t *testing.T) {
	text := "p cnf 2 2\n1 2 0\nc Solver::solve()\n-1 0\n"
	solver := solverScript(t, `
case "$*" in *--debuglib*) ;; *) echo "s SATISFIABLE"; echo "v 1 -2 0"; exit 0;; esac
printf 's SATISFIABLE\nv -1 -2 0\n' > debugLibPart1.output
echo "s SATISFIABLE"; echo "v -1 2 0"`)
	r := newRunner(t, Config{Solver: solver}, nil, nil)

	res := r.Check(context.Background(), Request{Instance: instance(t, text)})
	assert.Equal(t, outcome.ClassClauseViolation, res.Class, res.String())
	assert.Contains(t, res.Detail, "checkpoint 1")
}

func TestNoMarkersNoDebugLib(t *testing.T) {
	argv := filepath.Join(t.TempDir(), "argv")
	solver := solverScript(t, `echo "$@" > `+argv+`; echo "s SATISFIABLE"; echo "v 1 -2 0"`)
	r := newRunner(t, Config{Solver: solver}, nil, nil)

	res := r.Check(context.Background(), Request{Instance: instance(t, twoClauses)})
	require.Equal(t, outcome.KindConfirmed, res.Kind, res.String())

	data, err := os.ReadFile(argv)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "--debuglib")
}

func TestRandomizedFlagsReachSolver(t *testing.T) {
	argv := filepath.Join(t.TempDir(), "argv")
	solver := solverScript(t, `echo "$@" > `+argv+`; echo "s SATISFIABLE"; echo "v 1 -2 0"`)
	space := solverflags.Space{Core: []solverflags.Descriptor{solverflags.OneOf("--restart", "geom")}}
	r := newRunner(t, Config{Solver: solver, Space: &space, Threads: 2, Extra: []string{"--presimp", "1"}}, nil, nil)

	inst := instance(t, twoClauses)
	res := r.Check(context.Background(), Request{Instance: inst})
	require.Equal(t, outcome.KindConfirmed, res.Kind)

	data, err := os.ReadFile(argv)
	require.NoError(t, err)
	assert.Equal(t, "--restart geom --verb 0 --threads=2 --presimp 1 "+inst, strings.TrimSpace(string(data)))
}
