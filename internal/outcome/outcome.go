// Package outcome defines the result of checking one instance and the
// fatal error classes that map onto process exit codes.
//
// Every verification layer returns a Result by value. Nothing below the
// command layer terminates the process; the top-level dispatch turns a
// Result (or a classified error) into an exit code exactly once.
package outcome

import "fmt"

// Kind is the coarse classification a campaign accumulates statistics over.
type Kind int

const (
	// KindConfirmed means every claim that could be checked was verified.
	KindConfirmed Kind = iota
	// KindDisagreement means an independent reference contradicted a claim.
	KindDisagreement
	// KindAbstained means no verification signal was obtained.
	KindAbstained
	// KindFatal means a claim was shown wrong or the harness could not proceed.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindConfirmed:
		return "confirmed"
	case KindDisagreement:
		return "disagreement"
	case KindAbstained:
		return "abstained"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the immutable outcome of one check.
type Result struct {
	Kind   Kind
	Class  Class
	Detail string
}

// Confirmed builds a KindConfirmed result.
func Confirmed(detail string) Result {
	return Result{Kind: KindConfirmed, Detail: detail}
}

// Disagreement builds a KindDisagreement result. A disagreement always
// carries the DifferentialMismatch class.
func Disagreement(detail string) Result {
	return Result{Kind: KindDisagreement, Class: ClassDifferentialMismatch, Detail: detail}
}

// Abstained builds a KindAbstained result.
func Abstained(reason string) Result {
	return Result{Kind: KindAbstained, Detail: reason}
}

// Fatal builds a KindFatal result of the given class.
func Fatal(class Class, format string, args ...interface{}) Result {
	return Result{Kind: KindFatal, Class: class, Detail: fmt.Sprintf(format, args...)}
}

// Halts reports whether a campaign must stop on this result.
func (r Result) Halts() bool {
	return r.Kind == KindFatal || r.Kind == KindDisagreement
}

// ExitCode is the process exit code for this result.
func (r Result) ExitCode() int {
	if !r.Halts() {
		return ExitOK
	}
	return r.Class.ExitCode()
}

func (r Result) String() string {
	if r.Halts() {
		return fmt.Sprintf("%s [%s]: %s", r.Kind, r.Class, r.Detail)
	}
	if r.Detail == "" {
		return r.Kind.String()
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Detail)
}
