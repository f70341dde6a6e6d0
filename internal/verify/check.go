// Package verify checks a candidate assignment against an instance.
package verify

import (
	"fmt"

	"satharness/internal/cnf"
	"satharness/internal/outcome"
)

// Violation identifies the first clause an assignment fails.
type Violation struct {
	Clause cnf.Clause
	// Var is set when an xor clause references a variable that has no value.
	Var int
}

// Unassigned reports whether the violation is a reference to an unsolved
// variable from an xor clause rather than a falsified clause.
func (v *Violation) Unassigned() bool { return v.Var != 0 }

// Class is the fatal class of the violation.
func (v *Violation) Class() outcome.Class {
	if v.Unassigned() {
		return outcome.ClassUnassignedVariable
	}
	return outcome.ClassClauseViolation
}

func (v *Violation) Error() string {
	where := ""
	if v.Clause.Line > 0 {
		where = fmt.Sprintf(" (line %d)", v.Clause.Line)
	}
	if v.Unassigned() {
		return fmt.Sprintf("var %d not solved, but referred to in xor-clause '%s'%s", v.Var, v.Clause, where)
	}
	if v.Clause.Kind == cnf.Xor {
		return fmt.Sprintf("xor-clause '%s' not satisfied%s", v.Clause, where)
	}
	return fmt.Sprintf("clause '%s' not satisfied%s", v.Clause, where)
}

// Result turns the violation into a fatal outcome.
func (v *Violation) Result() outcome.Result {
	return outcome.Fatal(v.Class(), "%s", v.Error())
}

// Check verifies every clause of inst under a. It returns nil when all
// clauses are satisfied and the first violation otherwise. Checking stops
// at the first violation.
func Check(inst *cnf.Instance, a cnf.Assignment) *Violation {
	for _, c := range inst.Clauses {
		if v := CheckClause(c, a); v != nil {
			return v
		}
	}
	return nil
}

// CheckClause verifies one clause.
func CheckClause(c cnf.Clause, a cnf.Assignment) *Violation {
	if c.Kind == cnf.Xor {
		return checkXor(c, a)
	}
	for _, lit := range c.Lits {
		value, ok := a.Lookup(lit)
		if !ok {
			continue
		}
		if value == (lit > 0) {
			return nil
		}
	}
	return &Violation{Clause: c}
}

// checkXor folds value XOR negated over the literals; the clause holds iff
// the fold ends true.
func checkXor(c cnf.Clause, a cnf.Assignment) *Violation {
	parity := false
	for _, lit := range c.Lits {
		value, ok := a.Lookup(lit)
		if !ok {
			v := lit
			if v < 0 {
				v = -v
			}
			return &Violation{Clause: c, Var: v}
		}
		parity = parity != (value != (lit < 0))
	}
	if !parity {
		return &Violation{Clause: c}
	}
	return nil
}
