package verify

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satharness/internal/cnf"
	"satharness/internal/outcome"
)

func TestCheckSatisfied(t *testing.T) {
	inst := cnf.NewInstance([]int{1, 2}, []int{-1, -2})
	v := Check(inst, cnf.Assignment{1: true, 2: false})
	assert.Nil(t, v)
}

func TestCheckReportsViolatedClause(t *testing.T) {
	inst := cnf.NewInstance([]int{1, 2}, []int{-1, -2})
	v := Check(inst, cnf.Assignment{1: true, 2: true})
	require.NotNil(t, v)
	assert.Equal(t, []int{-1, -2}, v.Clause.Lits)
	assert.Equal(t, outcome.ClassClauseViolation, v.Class())
	assert.Contains(t, v.Error(), "'-1 -2 0' not satisfied")
}

func TestCheckClauseWithNoAssignedVariables(t *testing.T) {
	inst := cnf.NewInstance([]int{3, -4})
	v := Check(inst, cnf.Assignment{1: true})
	require.NotNil(t, v)
	assert.False(t, v.Unassigned())
}

func TestCheckXor(t *testing.T) {
	tests := []struct {
		name string
		a    cnf.Assignment
		ok   bool
	}{
		// (1^0) ^ (0^0) ^ (0^1) = 1 ^ 0 ^ 1 = 0
		{"even parity fails", cnf.Assignment{1: true, 2: false, 3: false}, false},
		{"odd parity holds", cnf.Assignment{1: true, 2: false, 3: true}, true},
		{"negated literal flips", cnf.Assignment{1: false, 2: false, 3: false}, true},
	}
	xor := cnf.Clause{Kind: cnf.Xor, Lits: []int{1, 2, -3}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := CheckClause(xor, tt.a)
			if tt.ok {
				assert.Nil(t, v)
			} else {
				require.NotNil(t, v)
				assert.Equal(t, outcome.ClassClauseViolation, v.Class())
			}
		})
	}
}

func TestCheckXorUnassignedVariable(t *testing.T) {
	xor := cnf.Clause{Kind: cnf.Xor, Lits: []int{1, -7}}
	v := CheckClause(xor, cnf.Assignment{1: true})
	require.NotNil(t, v)
	assert.True(t, v.Unassigned())
	assert.Equal(t, 7, v.Var)
	assert.Equal(t, outcome.ClassUnassignedVariable, v.Class())
	assert.Equal(t, outcome.ExitUnassignedVariable, v.Result().ExitCode())
}

func TestCheckStopsAtFirstViolation(t *testing.T) {
	inst := cnf.NewInstance([]int{1}, []int{2}, []int{3})
	v := Check(inst, cnf.Assignment{1: true, 2: false, 3: false})
	require.NotNil(t, v)
	assert.Equal(t, []int{2}, v.Clause.Lits)
}

// A clause whose every variable is assigned against its polarity is always
// reported, and it is the one reported when it comes first.
func TestCheckDetectsFullyFalsifiedClause(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 200; i++ {
		width := 1 + rng.IntN(5)
		bad := make([]int, width)
		a := cnf.Assignment{}
		for j := range bad {
			v := j + 1
			if rng.IntN(2) == 0 {
				bad[j] = v
				a[v] = false
			} else {
				bad[j] = -v
				a[v] = true
			}
		}
		inst := cnf.NewInstance(bad, []int{1, -1})
		v := Check(inst, a)
		require.NotNil(t, v)
		assert.Equal(t, bad, v.Clause.Lits)
	}
}

// Whenever Check accepts, every clause evaluates true on its own.
func TestCheckSoundness(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for i := 0; i < 300; i++ {
		nvars := 1 + rng.IntN(6)
		inst := &cnf.Instance{}
		for c := 0; c < 1+rng.IntN(6); c++ {
			kind := cnf.Regular
			if rng.IntN(4) == 0 {
				kind = cnf.Xor
			}
			var lits []int
			for k := 0; k < 1+rng.IntN(3); k++ {
				lit := 1 + rng.IntN(nvars)
				if rng.IntN(2) == 0 {
					lit = -lit
				}
				lits = append(lits, lit)
			}
			inst.Clauses = append(inst.Clauses, cnf.Clause{Kind: kind, Lits: lits})
		}
		a := cnf.Assignment{}
		for v := 1; v <= nvars; v++ {
			a[v] = rng.IntN(2) == 1
		}

		if Check(inst, a) != nil {
			continue
		}
		for _, c := range inst.Clauses {
			assert.True(t, evaluate(c, a), "clause %s accepted but false", c)
		}
	}
}

func evaluate(c cnf.Clause, a cnf.Assignment) bool {
	if c.Kind == cnf.Xor {
		n := 0
		for _, lit := range c.Lits {
			v := lit
			if v < 0 {
				v = -v
			}
			if a[v] != (lit < 0) {
				n++
			}
		}
		return n%2 == 1
	}
	for _, lit := range c.Lits {
		v := lit
		if v < 0 {
			v = -v
		}
		if a[v] == (lit > 0) {
			return true
		}
	}
	return false
}
