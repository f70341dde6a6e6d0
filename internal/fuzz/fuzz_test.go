package fuzz

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"satharness/internal/cnf"
	"satharness/internal/outcome"
	"satharness/internal/runner"
	"satharness/internal/tactile"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedChecker answers with results[i] for iteration i (the last one
// repeats) and records every request.
type scriptedChecker struct {
	t         *testing.T
	results   []outcome.Result
	requests  []runner.Request
	instances []*cnf.Instance
}

func (s *scriptedChecker) Check(_ context.Context, req runner.Request) outcome.Result {
	inst, err := cnf.ReadFile(req.Instance)
	require.NoError(s.t, err)
	s.requests = append(s.requests, req)
	s.instances = append(s.instances, inst)

	i := len(s.requests) - 1
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i]
}

func builtinCatalog() []Generator {
	return []Generator{
		{Name: "rand3", Arity: ArityBuiltin, Builtin: BuiltinRand3Cnf, N: 20, M: 60},
		{Name: "php", Arity: ArityBuiltin, Builtin: BuiltinPhp, N: 4, M: 3},
	}
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	list, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range list {
		names = append(names, e.Name())
	}
	return names
}

func script(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

func TestScopeCreateSkipsTakenNames(t *testing.T) {
	dir := t.TempDir()
	foreign := filepath.Join(dir, "fuzzTest_1.cnf")
	require.NoError(t, os.WriteFile(foreign, []byte("theirs"), 0o644))

	s := NewScope(dir, "fuzzTest")
	a, err := s.Create(".cnf")
	require.NoError(t, err)
	b, err := s.Create(".cnf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fuzzTest_2.cnf"), a)
	assert.Equal(t, filepath.Join(dir, "fuzzTest_3.cnf"), b)

	require.NoError(t, s.Remove(a))
	assert.Equal(t, []string{b}, s.Files())

	require.NoError(t, s.Release())
	assert.Equal(t, []string{"fuzzTest_1.cnf"}, entries(t, dir), "only our files are released")
}

func TestScopePreserve(t *testing.T) {
	dir := t.TempDir()
	s := NewScope(dir, "keep")
	_, err := s.Create(".cnf")
	require.NoError(t, err)
	s.Preserve()
	require.NoError(t, s.Release())
	assert.Equal(t, []string{"keep_1.cnf"}, entries(t, dir))
}

func TestScopeReleaseCombinesErrors(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("directory permissions")
	}
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	s := NewScope(dir, "ro")
	for i := 0; i < 2; i++ {
		_, err := s.Create(".cnf")
		require.NoError(t, err)
	}
	require.NoError(t, os.Chmod(dir, 0o555))
	defer os.Chmod(dir, 0o755)

	err := s.Release()
	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(err.Error(), "permission denied"))
}

func TestGeneratorValidate(t *testing.T) {
	valid := []Generator{
		{Name: "biere", Arity: ArityPlain, Command: "cnf-fuzz-biere"},
		{Name: "sgen", Arity: AritySeeded, Command: "sgen4 -sat -n 50", SeedFlag: "-s"},
		{Name: "sha1", Arity: AritySeededExtra, Command: "sha1-gen --rounds 18", SeedFlag: "--seed", ExtraFlag: "--hash-bits"},
		{Name: "multi", Arity: ArityCombinator, Command: "multipart.py"},
		{Name: "bc", Arity: ArityBuiltin, Builtin: BuiltinBinCycle, N: 10},
	}
	for _, g := range valid {
		assert.NoError(t, g.Validate(), g.Name)
	}

	invalid := []Generator{
		{Arity: ArityPlain, Command: "x"},
		{Name: "a", Arity: ArityPlain},
		{Name: "b", Arity: AritySeeded, Command: "x"},
		{Name: "c", Arity: AritySeededExtra, Command: "x", SeedFlag: "-s"},
		{Name: "d", Arity: "weird", Command: "x"},
		{Name: "e", Arity: ArityBuiltin, Builtin: BuiltinPhp, N: 3},
		{Name: "f", Arity: ArityBuiltin, Builtin: "sudoku", N: 3},
		{Name: "g", Arity: ArityPlain, Command: `"unterminated`},
	}
	for _, g := range invalid {
		assert.Error(t, g.Validate(), g.Name)
	}
}

func TestSeededExtraCommand(t *testing.T) {
	g := Generator{Name: "sha1", Arity: AritySeededExtra, Command: "sha1-gen --cnf", SeedFlag: "--seed", ExtraFlag: "--hash-bits"}
	rng := rand.New(rand.NewPCG(7, 7))
	for i := 0; i < 200; i++ {
		cmd, call, err := g.command("", "out.cnf", rng, nil)
		require.NoError(t, err)
		assert.Equal(t, "sha1-gen", cmd.Binary)
		assert.Equal(t, "out.cnf", cmd.StdoutPath)
		require.Len(t, cmd.Arguments, 5)
		assert.Equal(t, "--hash-bits", cmd.Arguments[1])
		extra, err := strconv.Atoi(cmd.Arguments[2])
		require.NoError(t, err)
		assert.Equal(t, call.Extra, extra)
		assert.GreaterOrEqual(t, extra, 1)
		assert.LessOrEqual(t, extra, 79)
		assert.Equal(t, strconv.FormatUint(uint64(call.Seed), 10), cmd.Arguments[4])
	}
}

func TestBuiltinGenerators(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	for _, g := range append(builtinCatalog(), Generator{Name: "cycle", Arity: ArityBuiltin, Builtin: BuiltinBinCycle, N: 8}) {
		out := filepath.Join(t.TempDir(), "g.cnf")
		call, err := g.runBuiltin(out, rng)
		require.NoError(t, err, g.Name)
		assert.Equal(t, g.Name, call.Generator)

		inst, err := cnf.ReadFile(out)
		require.NoError(t, err)
		assert.NotEmpty(t, inst.Clauses, g.Name)
		assert.False(t, inst.HasXor())
	}
}

// Property: a campaign in which every check abstains confirms nothing and
// never halts.
func TestCampaignAbstentionIsInert(t *testing.T) {
	work := t.TempDir()
	check := &scriptedChecker{t: t, results: []outcome.Result{outcome.Abstained("reference solver too slow")}}
	c, err := New(Config{Catalog: builtinCatalog(), WorkDir: work, Iterations: 6, MaxCheckpoints: 4, Seed: 42},
		tactile.NewDirectExecutor(), check)
	require.NoError(t, err)

	res := c.Run(context.Background())
	assert.False(t, res.Halts())
	assert.Equal(t, outcome.KindAbstained, res.Kind)
	assert.Equal(t, 0, c.Stats().Tally.Confirmed)
	assert.Equal(t, 6, c.Stats().Tally.Abstained)
	assert.False(t, c.Stats().Halted())
	assert.Empty(t, entries(t, work), "every iteration cleans up")

	require.Len(t, check.requests, 6)
	for i, req := range check.requests {
		assert.True(t, req.DebugLib)
		assert.True(t, req.LimitTime)
		assert.Empty(t, req.ProofPath)
		assert.True(t, strings.HasPrefix(req.RequestID, c.ID()))
		assert.LessOrEqual(t, check.instances[i].Checkpoints, 4)
	}
	assert.Equal(t, 3, c.Stats().ByGenerator["rand3"].Abstained)
	assert.Equal(t, 3, c.Stats().ByGenerator["php"].Abstained)
}

func TestCampaignHaltPreservesArtifacts(t *testing.T) {
	work := t.TempDir()
	check := &scriptedChecker{t: t, results: []outcome.Result{
		outcome.Confirmed("ok"),
		outcome.Fatal(outcome.ClassClauseViolation, "clause 1 2 0 violated"),
	}}
	c, err := New(Config{Catalog: builtinCatalog(), WorkDir: work, Drup: true, Seed: 3},
		tactile.NewDirectExecutor(), check)
	require.NoError(t, err)

	res := c.Run(context.Background())
	assert.Equal(t, outcome.ExitClauseViolation, res.ExitCode())
	assert.Equal(t, 2, c.Stats().Iterations)

	var report string
	for _, name := range entries(t, work) {
		if strings.HasSuffix(name, ".triage.json") {
			report = filepath.Join(work, name)
		}
	}
	require.NotEmpty(t, report)
	data, err := os.ReadFile(report)
	require.NoError(t, err)

	var tr Triage
	require.NoError(t, json.Unmarshal(data, &tr))
	assert.Equal(t, c.ID(), tr.Campaign)
	assert.Equal(t, 1, tr.Iteration)
	assert.Equal(t, "php", tr.Generator)
	assert.Equal(t, uint64(3), tr.Seed)
	assert.Equal(t, "clause-violation", tr.Class)
	assert.Equal(t, outcome.ExitClauseViolation, tr.ExitCode)

	last := check.requests[1]
	assert.Contains(t, tr.Artifacts, last.Instance)
	assert.Contains(t, tr.Artifacts, last.ProofPath)
	for _, a := range tr.Artifacts {
		assert.FileExists(t, a)
	}
}

func externalExecutor(recorder *tactile.Recorder) *tactile.DirectExecutor {
	cfg := tactile.ExecutorConfig{AllowedEnvironment: []string{"PATH"}}
	if recorder != nil {
		cfg.AuditCallback = recorder.Record
	}
	return tactile.NewDirectExecutorWithConfig(cfg)
}

func TestCampaignExternalGenerators(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts required")
	}
	gens := t.TempDir()
	script(t, gens, "plain.sh", `printf 'p cnf 2 1\n1 2 0\n'`)
	script(t, gens, "seeded.sh", `printf 'c %s\np cnf 3 1\n-3 0\n' "$*"`)
	script(t, gens, "combine.sh", `echo "p cnf 3 $#"; for f in "$@"; do grep -v '^[cp]' "$f"; done`)

	catalog := []Generator{
		{Name: "combine", Arity: ArityCombinator, Command: "combine.sh"},
		{Name: "plain", Arity: ArityPlain, Command: "plain.sh"},
		{Name: "seeded", Arity: AritySeeded, Command: "seeded.sh", SeedFlag: "-s"},
	}

	work := t.TempDir()
	check := &scriptedChecker{t: t, results: []outcome.Result{outcome.Confirmed("ok")}}
	c, err := New(Config{Catalog: catalog, GeneratorDir: gens, WorkDir: work, Iterations: 3, Seed: 9},
		externalExecutor(nil), check)
	require.NoError(t, err)

	res := c.Run(context.Background())
	assert.Equal(t, outcome.KindConfirmed, res.Kind, res.String())
	assert.Empty(t, entries(t, work), "parts and instances are removed")

	require.Len(t, check.instances, 3)
	combined := check.instances[0]
	assert.GreaterOrEqual(t, len(combined.Clauses), 2)
	assert.LessOrEqual(t, len(combined.Clauses), 3)
	assert.Len(t, check.instances[1].Clauses, 1)
	assert.Equal(t, []int{-3}, check.instances[2].Clauses[0].Lits)
}

func TestCampaignGeneratorFailureAbstains(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts required")
	}
	gens := t.TempDir()
	script(t, gens, "broken.sh", `echo "out of memory" >&2; exit 3`)
	script(t, gens, "plain.sh", `printf 'p cnf 2 1\n1 2 0\n'`)

	recorder := &tactile.Recorder{}
	check := &scriptedChecker{t: t, results: []outcome.Result{outcome.Fatal(outcome.ClassMalformedOutput, "no status line")}}
	work := t.TempDir()
	c, err := New(Config{
		Catalog: []Generator{
			{Name: "broken", Arity: ArityPlain, Command: "broken.sh"},
			{Name: "plain", Arity: ArityPlain, Command: "plain.sh"},
		},
		GeneratorDir: gens,
		WorkDir:      work,
		Iterations:   2,
		Recorder:     recorder,
	}, externalExecutor(recorder), check)
	require.NoError(t, err)

	res := c.Run(context.Background())
	assert.Equal(t, outcome.ExitMalformedOutput, res.ExitCode())
	assert.Len(t, check.requests, 1, "the broken generator never reaches the checker")
	assert.Equal(t, 1, c.Stats().Reasons["generator failed"])

	var tr Triage
	for _, name := range entries(t, work) {
		if strings.HasSuffix(name, ".triage.json") {
			data, err := os.ReadFile(filepath.Join(work, name))
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(data, &tr))
		}
	}
	require.Len(t, tr.Commands, 1, "only the commands of the failing iteration")
	assert.Contains(t, tr.Commands[0], "plain.sh")
	require.Len(t, tr.Calls, 1)
	assert.Equal(t, "plain", tr.Calls[0].Generator)
}

func TestNewRejectsUnknownGenerator(t *testing.T) {
	_, err := New(Config{Catalog: []Generator{{Name: "x", Arity: ArityPlain, Command: "/nonexistent/fuzzer"}}},
		tactile.NewDirectExecutor(), &scriptedChecker{t: t})
	assert.Equal(t, outcome.ClassUsage, outcome.ClassOf(err))

	_, err = New(Config{}, tactile.NewDirectExecutor(), &scriptedChecker{t: t})
	assert.Equal(t, outcome.ClassUsage, outcome.ClassOf(err))
}

func TestCampaignStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	check := &scriptedChecker{t: t, results: []outcome.Result{outcome.Confirmed("ok")}}
	c, err := New(Config{Catalog: builtinCatalog(), WorkDir: t.TempDir()}, tactile.NewDirectExecutor(), check)
	require.NoError(t, err)

	res := c.Run(ctx)
	assert.Equal(t, outcome.KindAbstained, res.Kind)
	assert.Empty(t, check.requests)
}

func TestStatsString(t *testing.T) {
	s := NewStats()
	s.Record("a", outcome.Confirmed(""))
	s.Record("a", outcome.Abstained("slow"))
	s.Record("b", outcome.Disagreement("model"))

	assert.True(t, s.Halted())
	assert.Equal(t, "3 iterations: 1 confirmed, 1 abstained, 1 disagreements, 0 fatal; a 1/2; b 0/1", s.String())
	assert.Equal(t, 1, s.Reasons["slow"])
}
