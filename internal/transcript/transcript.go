// Package transcript turns the text a solver prints into a Verdict.
//
// Only three line kinds matter:
//
//	c ...                  comment, ignored
//	s SATISFIABLE          status line (UNSATISFIABLE for the negative claim)
//	v 1 -2 3 0             value line, may repeat; stops at the first 0
//
// Everything else is ignored, so solver chatter on stderr can be captured
// together with stdout.
package transcript

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"satharness/internal/cnf"
	"satharness/internal/logging"
	"satharness/internal/outcome"
)

// Status is the claim a transcript makes.
type Status int

const (
	Malformed Status = iota
	Unsatisfiable
	Satisfiable
)

func (s Status) String() string {
	switch s {
	case Unsatisfiable:
		return "UNSAT"
	case Satisfiable:
		return "SAT"
	default:
		return "MALFORMED"
	}
}

// Verdict is the parsed form of one transcript.
type Verdict struct {
	Status Status
	// Assignment is populated for Satisfiable verdicts.
	Assignment cnf.Assignment
	// Unverifiable is set on the synthetic Unsatisfiable verdict returned
	// for a transcript without a usable claim under TolerateMissing.
	Unverifiable bool
	// Reason explains a Malformed verdict.
	Reason string
}

// Result maps a Malformed verdict onto its fatal outcome.
func (v Verdict) Result() outcome.Result {
	return outcome.Fatal(outcome.ClassMalformedOutput, "unparseable solver output: %s", v.Reason)
}

// Options tunes parsing.
type Options struct {
	// TolerateMissing treats a transcript without a claim as a probable
	// timeout or crash instead of a malformed transcript.
	TolerateMissing bool
}

func malformed(format string, args ...interface{}) Verdict {
	return Verdict{Status: Malformed, Reason: fmt.Sprintf(format, args...)}
}

// Parse runs the line state machine over lines.
func Parse(lines []string, opts Options) Verdict {
	var (
		status     Status
		statusSeen bool
		valueSeen  bool
		assignment = cnf.Assignment{}
		nonEmpty   bool
	)

	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) != "" {
			nonEmpty = true
		}
		switch {
		case strings.HasPrefix(line, "c ") || line == "c":
			continue

		case strings.HasPrefix(line, "s ") || line == "s":
			if statusSeen {
				return malformed("status line repeated at line %d: %q", i+1, line)
			}
			switch {
			case strings.Contains(line, "UNSAT"):
				status = Unsatisfiable
			case strings.Contains(line, "SAT"):
				status = Satisfiable
			default:
				return malformed("status line without SAT/UNSAT at line %d: %q", i+1, line)
			}
			statusSeen = true

		case strings.HasPrefix(line, "v ") || line == "v":
			valueSeen = true
			if err := foldValues(assignment, line[1:]); err != nil {
				return malformed("line %d: %v", i+1, err)
			}
		}
	}

	missing := ""
	switch {
	case !nonEmpty:
		missing = "output is empty"
	case !statusSeen:
		missing = "no status line"
	case status == Satisfiable && !valueSeen:
		missing = "status is SAT but no value line"
	}
	if missing != "" {
		if opts.TolerateMissing {
			logging.ParseDebug("%s, probably a timeout; treating as unverifiable", missing)
			return Verdict{Status: Unsatisfiable, Unverifiable: true, Reason: missing}
		}
		return malformed("%s", missing)
	}

	if status == Unsatisfiable {
		return Verdict{Status: Unsatisfiable}
	}
	logging.ParseDebug("parsed SAT claim over %d variables", len(assignment))
	return Verdict{Status: Satisfiable, Assignment: assignment}
}

// foldValues adds the literals of one value line body to a.
func foldValues(a cnf.Assignment, body string) error {
	for _, tok := range strings.Fields(body) {
		lit, err := strconv.Atoi(tok)
		if err != nil {
			return fmt.Errorf("invalid value literal %q", tok)
		}
		if lit == 0 {
			return nil
		}
		a.Set(lit)
	}
	return nil
}

// ParseText splits text into lines and parses them.
func ParseText(text string, opts Options) Verdict {
	return Parse(strings.Split(text, "\n"), opts)
}

// ParseReader parses everything r yields.
func ParseReader(r io.Reader, opts Options) (Verdict, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return Verdict{}, fmt.Errorf("read transcript: %w", err)
	}
	return Parse(lines, opts), nil
}
