// Package cnf reads and writes problem instances: DIMACS CNF with the xor
// extension and embedded checkpoint markers.
//
// Format summary:
//
//	c comment                 ignored
//	c Solver::solve()         checkpoint marker (a comment to every other tool)
//	p cnf <vars> <clauses>    header
//	1 -2 3 0                  regular clause (disjunction)
//	x1 2 -3 0                 xor clause (parity)
//	%                         logical end of file
package cnf

import (
	"strconv"
	"strings"
)

// CheckpointMarker is the comment line that requests an intermediate solve.
const CheckpointMarker = "c Solver::solve()"

// checkpointToken is what identifies a marker inside any comment line.
const checkpointToken = "Solver::solve()"

// ClauseKind distinguishes disjunctive from parity clauses.
type ClauseKind int

const (
	Regular ClauseKind = iota
	Xor
)

func (k ClauseKind) String() string {
	if k == Xor {
		return "xor"
	}
	return "regular"
}

// Clause is one constraint line of an instance.
type Clause struct {
	Kind ClauseKind
	// Lits are the signed literals, without the terminating 0.
	Lits []int
	// Checkpoint is the number of checkpoint markers that precede the clause.
	Checkpoint int
	// Line is the 1-based source line, 0 for clauses built in memory.
	Line int
}

// String renders the clause in on-disk form.
func (c Clause) String() string {
	var b strings.Builder
	if c.Kind == Xor {
		b.WriteByte('x')
	}
	for i, lit := range c.Lits {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(lit))
	}
	if len(c.Lits) > 0 {
		b.WriteByte(' ')
	}
	b.WriteByte('0')
	return b.String()
}

// Instance is an immutable parsed problem.
type Instance struct {
	// DeclaredVars and DeclaredClauses come from the header, when present.
	DeclaredVars    int
	DeclaredClauses int
	HasHeader       bool

	Clauses []Clause

	// Checkpoints is the total number of checkpoint markers in the source.
	Checkpoints int
}

// NewInstance builds an instance of regular clauses, mostly for tests and
// in-memory generators.
func NewInstance(clauses ...[]int) *Instance {
	inst := &Instance{}
	for _, lits := range clauses {
		inst.Clauses = append(inst.Clauses, Clause{Kind: Regular, Lits: append([]int(nil), lits...)})
	}
	inst.DeclaredVars = inst.MaxVar()
	inst.DeclaredClauses = len(inst.Clauses)
	inst.HasHeader = true
	return inst
}

// Prefix returns the sub-instance made of every clause strictly before
// checkpoint marker number n (1-based). Prefix(n) for n > Checkpoints is the
// whole instance.
func (inst *Instance) Prefix(n int) *Instance {
	sub := &Instance{}
	for _, c := range inst.Clauses {
		if c.Checkpoint >= n {
			break
		}
		sub.Clauses = append(sub.Clauses, c)
	}
	sub.DeclaredVars = sub.MaxVar()
	sub.DeclaredClauses = len(sub.Clauses)
	sub.HasHeader = true
	return sub
}

// MaxVar is the largest variable referenced by any clause.
func (inst *Instance) MaxVar() int {
	top := 0
	for _, c := range inst.Clauses {
		for _, lit := range c.Lits {
			if v := abs(lit); v > top {
				top = v
			}
		}
	}
	return top
}

// HasXor reports whether any clause is a parity clause.
func (inst *Instance) HasXor() bool {
	for _, c := range inst.Clauses {
		if c.Kind == Xor {
			return true
		}
	}
	return false
}

// Regular returns the literals of all clauses when every clause is regular.
// ok is false when the instance holds xor clauses.
func (inst *Instance) Regular() (clauses [][]int, ok bool) {
	clauses = make([][]int, 0, len(inst.Clauses))
	for _, c := range inst.Clauses {
		if c.Kind != Regular {
			return nil, false
		}
		clauses = append(clauses, c.Lits)
	}
	return clauses, true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
