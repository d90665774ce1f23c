package domain

import (
	"errors"
	"fmt"
	"strings"
)

// SkipError is returned by a body or a setup step to skip the case.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	if e.Reason == "" {
		return "skipped"
	}
	return "skipped: " + e.Reason
}

// Skip returns an error that reports the current case as skipped.
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// IsSkip reports whether err asks for the case to be skipped.
func IsSkip(err error) (*SkipError, bool) {
	var se *SkipError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// FatalError aborts the whole run. It is never converted into a report.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err so that it aborts the run.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return err
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// CompoundError collects several errors raised while tearing down one case.
// Errors are kept in the order the failing finalizers were invoked.
type CompoundError struct {
	Msg  string
	Errs []error
}

func (e *CompoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d errors)", e.Msg, len(e.Errs))
	for i, err := range e.Errs {
		fmt.Fprintf(&b, "\n  [%d] %v", i+1, err)
	}
	return b.String()
}

func (e *CompoundError) Unwrap() []error {
	return e.Errs
}

// Combine returns nil for no errors, the error itself for one, and a
// CompoundError for more than one.
func Combine(msg string, errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &CompoundError{Msg: msg, Errs: append([]error(nil), errs...)}
	}
}

// PanicError wraps a value recovered from a panicking body, factory or finalizer.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// ErrorLines flattens err into one line per underlying error.
func ErrorLines(err error) []string {
	if err == nil {
		return nil
	}
	var ce *CompoundError
	if errors.As(err, &ce) {
		lines := make([]string, 0, len(ce.Errs))
		for _, e := range ce.Errs {
			lines = append(lines, ErrorLines(e)...)
		}
		return lines
	}
	return []string{err.Error()}
}
