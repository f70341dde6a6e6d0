package cnf

import (
	"sort"
	"strconv"
	"strings"
)

// Assignment maps a variable to its value. Variables absent from the map
// are unconstrained.
type Assignment map[int]bool

// Set records the value implied by a signed literal.
func (a Assignment) Set(lit int) {
	if lit > 0 {
		a[lit] = true
	} else if lit < 0 {
		a[-lit] = false
	}
}

// Lookup returns the value of the variable of lit and whether it is assigned.
func (a Assignment) Lookup(lit int) (value bool, ok bool) {
	value, ok = a[abs(lit)]
	return value, ok
}

// String renders the assignment as a sorted value line body: "1 -2 3 0".
func (a Assignment) String() string {
	vars := make([]int, 0, len(a))
	for v := range a {
		vars = append(vars, v)
	}
	sort.Ints(vars)

	var b strings.Builder
	for _, v := range vars {
		if !a[v] {
			b.WriteByte('-')
		}
		b.WriteString(strconv.Itoa(v))
		b.WriteByte(' ')
	}
	b.WriteByte('0')
	return b.String()
}
