package outcome

import (
	"errors"
	"fmt"
)

// Class is a fatal error class. Each class has a stable exit code.
type Class int

const (
	ClassNone Class = iota
	ClassInternal
	ClassUsage
	ClassClauseViolation
	ClassUnassignedVariable
	ClassDifferentialMismatch
	ClassProofRejected
	ClassMalformedOutput
)

// Exit codes. Kept below 256 so the value survives the wait status.
const (
	ExitOK                   = 0
	ExitInternal             = 1
	ExitUsage                = 64
	ExitClauseViolation      = 100
	ExitUnassignedVariable   = 101
	ExitDifferentialMismatch = 102
	ExitProofRejected        = 103
	ExitMalformedOutput      = 104
)

var classNames = map[Class]string{
	ClassNone:                 "none",
	ClassInternal:             "internal",
	ClassUsage:                "usage",
	ClassClauseViolation:      "clause-violation",
	ClassUnassignedVariable:   "unassigned-variable",
	ClassDifferentialMismatch: "differential-mismatch",
	ClassProofRejected:        "proof-rejected",
	ClassMalformedOutput:      "malformed-output",
}

var classExitCodes = map[Class]int{
	ClassNone:                 ExitOK,
	ClassInternal:             ExitInternal,
	ClassUsage:                ExitUsage,
	ClassClauseViolation:      ExitClauseViolation,
	ClassUnassignedVariable:   ExitUnassignedVariable,
	ClassDifferentialMismatch: ExitDifferentialMismatch,
	ClassProofRejected:        ExitProofRejected,
	ClassMalformedOutput:      ExitMalformedOutput,
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// ExitCode returns the process exit code for the class.
func (c Class) ExitCode() int {
	if code, ok := classExitCodes[c]; ok {
		return code
	}
	return ExitInternal
}

// Error is an error tagged with a fatal class.
type Error struct {
	Class Class
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Usagef returns a usage error: missing executable, missing declared
// solution file, bad arguments.
func Usagef(format string, args ...interface{}) error {
	return &Error{Class: ClassUsage, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with class. A nil err stays nil.
func Wrap(class Class, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Msg: fmt.Sprintf(format, args...), Err: err}
}

// ClassOf returns the class carried by err, or ClassInternal.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassInternal
}

// FromError converts an infrastructure or usage error into a fatal Result.
func FromError(err error) Result {
	return Result{Kind: KindFatal, Class: ClassOf(err), Detail: err.Error()}
}
