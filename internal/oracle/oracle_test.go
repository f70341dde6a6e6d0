package oracle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satharness/internal/cnf"
	"satharness/internal/outcome"
	"satharness/internal/tactile"
)

func writeInstance(t *testing.T, clauses ...[]int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inst.cnf")
	require.NoError(t, cnf.WriteFile(path, cnf.NewInstance(clauses...)))
	return path
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts required")
	}
	path := filepath.Join(t.TempDir(), "reference.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// pigeonhole places p pigeons into h holes, one variable per pair.
func pigeonhole(p, h int) [][]int {
	v := func(i, j int) int { return i*h + j + 1 }
	var clauses [][]int
	for i := 0; i < p; i++ {
		var c []int
		for j := 0; j < h; j++ {
			c = append(c, v(i, j))
		}
		clauses = append(clauses, c)
	}
	for j := 0; j < h; j++ {
		for a := 0; a < p; a++ {
			for b := a + 1; b < p; b++ {
				clauses = append(clauses, []int{-v(a, j), -v(b, j)})
			}
		}
	}
	return clauses
}

var (
	satisfiable   = [][]int{{1, 2}, {-1, -2}}
	unsatisfiable = [][]int{{1, 2}, {-1, 2}, {1, -2}, {-1, -2}}
)

func TestInProcessBackends(t *testing.T) {
	backends := []Oracle{NewGini(), NewGophersat()}
	for _, o := range backends {
		t.Run(o.Name(), func(t *testing.T) {
			ctx := context.Background()

			res := o.ConfirmUnsat(ctx, writeInstance(t, unsatisfiable...), time.Minute)
			assert.Equal(t, outcome.KindConfirmed, res.Kind, res.String())

			res = o.ConfirmUnsat(ctx, writeInstance(t, satisfiable...), time.Minute)
			assert.Equal(t, outcome.KindDisagreement, res.Kind, res.String())
			assert.True(t, res.Halts())
			assert.Equal(t, outcome.ExitDifferentialMismatch, res.ExitCode())
			assert.Contains(t, res.Detail, "claimed unsatisfiable")
		})
	}
}

func TestInProcessBackendsAbstainOnXor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xor.cnf")
	require.NoError(t, os.WriteFile(path, []byte("p cnf 2 2\n1 2 0\nx1 2 0\n"), 0o644))

	for _, o := range []Oracle{NewGini(), NewGophersat()} {
		res := o.ConfirmUnsat(context.Background(), path, time.Second)
		assert.Equal(t, outcome.KindAbstained, res.Kind, o.Name())
	}
}

func TestGiniAbstainsWhenBudgetRunsOut(t *testing.T) {
	path := writeInstance(t, pigeonhole(12, 11)...)
	res := NewGini().ConfirmUnsat(context.Background(), path, 20*time.Millisecond)
	assert.Equal(t, outcome.Abstained(TooSlow), res)
}

func TestGophersatAbstainsWhileBusy(t *testing.T) {
	g := NewGophersat()
	g.busy <- struct{}{}

	res := g.ConfirmUnsat(context.Background(), writeInstance(t, unsatisfiable...), time.Minute)
	assert.Equal(t, outcome.Abstained(Busy), res)

	<-g.busy
	res = g.ConfirmUnsat(context.Background(), writeInstance(t, unsatisfiable...), time.Minute)
	assert.Equal(t, outcome.KindConfirmed, res.Kind, res.String())
}

func TestGophersatRunsOneSolveAtATime(t *testing.T) {
	g := NewGophersat()
	hard := writeInstance(t, pigeonhole(10, 9)...)

	res := g.ConfirmUnsat(context.Background(), hard, 20*time.Millisecond)
	require.Equal(t, outcome.Abstained(TooSlow), res)

	res = g.ConfirmUnsat(context.Background(), writeInstance(t, unsatisfiable...), time.Minute)
	assert.Equal(t, outcome.Abstained(Busy), res, "the abandoned solve still holds the slot")
}

func TestExternal(t *testing.T) {
	tests := []struct {
		name   string
		script string
		kind   outcome.Kind
		detail string
	}{
		{"unsat", `echo "c reference"; echo "s UNSATISFIABLE"; exit 20`, outcome.KindConfirmed, ""},
		{"sat", `echo "s SATISFIABLE"; echo "v 1 -2 0"; exit 10`, outcome.KindDisagreement, "1 -2 0"},
		{"garbage with unsat status", `echo "garbage"; exit 20`, outcome.KindAbstained, "not interpretable"},
		{"garbage with sat status", `echo "garbage"; exit 10`, outcome.KindAbstained, "not interpretable"},
		{"duplicate status line", `echo "s UNSATISFIABLE"; echo "s UNSATISFIABLE"; exit 20`, outcome.KindAbstained, "not interpretable"},
		{"nothing usable", `echo "garbage"; exit 3`, outcome.KindAbstained, "not interpretable"},
		{"invalid model", `echo "s SATISFIABLE"; echo "v 1 2 0"`, outcome.KindAbstained, "model is invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := NewExternal(tactile.NewDirectExecutor(), Options{
				Path:       writeScript(t, tt.script),
				CheckModel: true,
			})
			require.NoError(t, err)

			res := ref.ConfirmUnsat(context.Background(), writeInstance(t, satisfiable...), 10*time.Second)
			assert.Equal(t, tt.kind, res.Kind, res.String())
			assert.Contains(t, res.Detail, tt.detail)
		})
	}
}

func TestExternalTooSlow(t *testing.T) {
	ref, err := NewExternal(tactile.NewDirectExecutor(), Options{Path: writeScript(t, "sleep 5")})
	require.NoError(t, err)

	start := time.Now()
	res := ref.ConfirmUnsat(context.Background(), writeInstance(t, unsatisfiable...), 200*time.Millisecond)
	assert.Equal(t, outcome.Abstained(TooSlow), res)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestExternalPassesArguments(t *testing.T) {
	out := filepath.Join(t.TempDir(), "argv")
	script := writeScript(t, fmt.Sprintf(`echo "$@" > %s; echo "s UNSATISFIABLE"`, out))
	ref, err := NewExternal(tactile.NewDirectExecutor(), Options{Path: script, Args: []string{"-f"}})
	require.NoError(t, err)

	path := writeInstance(t, unsatisfiable...)
	res := ref.ConfirmUnsat(context.Background(), path, time.Minute)
	require.Equal(t, outcome.KindConfirmed, res.Kind)

	argv, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "-f "+path, strings.TrimSpace(string(argv)))
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	_, err := New(Options{Backend: "minisat-in-a-box"}, nil)
	assert.Equal(t, outcome.ClassUsage, outcome.ClassOf(err))

	_, err = New(Options{Backend: BackendExternal, Path: "/nonexistent/lingeling"}, tactile.NewDirectExecutor())
	assert.Equal(t, outcome.ClassUsage, outcome.ClassOf(err))

	_, err = New(Options{Backend: BackendExternal}, tactile.NewDirectExecutor())
	assert.Equal(t, outcome.ClassUsage, outcome.ClassOf(err))

	o, err := New(Options{Backend: BackendGini}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gini", o.Name())
}

func TestDeadline(t *testing.T) {
	budget, ok := deadline(context.Background(), time.Second)
	assert.True(t, ok)
	assert.Equal(t, time.Second, budget)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	budget, ok = deadline(ctx, time.Hour)
	assert.True(t, ok)
	assert.LessOrEqual(t, budget, 50*time.Millisecond)

	cancel()
	_, ok = deadline(ctx, time.Hour)
	assert.False(t, ok)
}

func TestModelText(t *testing.T) {
	a := cnf.Assignment{2: false, 1: true, 3: true}
	assert.Equal(t, "1 -2 3 0", modelText(a))

	big := make(cnf.Assignment)
	for v := 1; v <= 1000; v++ {
		big[v] = true
	}
	assert.True(t, strings.HasSuffix(modelText(big), "..."))
}
