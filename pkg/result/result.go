// Package result holds the outcome model shared by the dispatch core.
// Every dispatch step reports through a Result instead of letting a fault
// escape: success, or one of a closed set of error kinds with a reason.
package result

import (
	"errors"
	"fmt"
)

// Kind classifies a failed Result.
type Kind int

const (
	// UnknownCommand means no registered handler matched the input.
	UnknownCommand Kind = iota + 1
	// ParseFailed means an argument could not be converted or a declared
	// command path could not be resolved against the remote set.
	ParseFailed
	// BadArgs means a converted argument violated a handler constraint.
	BadArgs
	// Exception wraps an uncaught fault from a handler or converter.
	Exception
	// Unsuccessful is a handler-declared failure with no specific cause.
	Unsuccessful
)

var kindNames = map[Kind]string{
	UnknownCommand: "UnknownCommand",
	ParseFailed:    "ParseFailed",
	BadArgs:        "BadArgs",
	Exception:      "Exception",
	Unsuccessful:   "Unsuccessful",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Result is an immutable outcome. The zero value is a success.
type Result struct {
	kind   Kind
	reason string
	err    error
}

// Success returns a successful Result.
func Success() Result {
	return Result{}
}

// Fail returns a failed Result of the given kind.
func Fail(kind Kind, reason string) Result {
	return Result{kind: kind, reason: reason}
}

// FromPanic converts a recovered value into an Exception Result.
func FromPanic(recovered any) Result {
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("%v", recovered)
	}
	return Result{kind: Exception, reason: err.Error(), err: err}
}

// From maps a Go error onto a Result. nil is a success, a *Error anywhere in
// the chain keeps its kind, anything else becomes an Exception.
func From(err error) Result {
	if err == nil {
		return Success()
	}
	var re *Error
	if errors.As(err, &re) {
		return Result{kind: re.Kind, reason: re.Reason, err: err}
	}
	return Result{kind: Exception, reason: err.Error(), err: err}
}

// IsSuccess reports whether the Result carries no error kind.
func (r Result) IsSuccess() bool { return r.kind == 0 }

// Kind returns the error kind; zero for a success.
func (r Result) Kind() Kind { return r.kind }

// Reason returns the human readable failure reason.
func (r Result) Reason() string { return r.reason }

// Err returns the original fault, if the Result was built from one.
func (r Result) Err() error { return r.err }

// AsError converts a failed Result into a *Error; nil for a success.
func (r Result) AsError() error {
	if r.IsSuccess() {
		return nil
	}
	var re *Error
	if errors.As(r.err, &re) && re.Kind == r.kind {
		return re
	}
	return &Error{Kind: r.kind, Reason: r.reason, Cause: r.err}
}

func (r Result) String() string {
	if r.IsSuccess() {
		return "Success"
	}
	return fmt.Sprintf("%s: %s", r.kind, r.reason)
}
